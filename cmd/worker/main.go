// Package main is the entry point for the stock ledger background worker.
// It relays the transactional outbox and expires idempotency records.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockledger/internal/config"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if cfg.StorageDriver != config.DriverPostgres {
		log.Fatalw("worker requires the postgres storage driver", "storage", cfg.StorageDriver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockledger worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.ApplicationName = "stockledger-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	m := metrics.New()
	m.RegisterPoolStats(func() metrics.PoolStats {
		s := pool.Stats()
		return metrics.PoolStats{Total: s.TotalConns, Acquired: s.AcquiredConns, Idle: s.IdleConns}
	})

	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.TxStatementTimeout)
	worker := NewWorker(cfg, pool, txm, m, log)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("metrics server forced to shutdown", "error", err)
	}

	log.Info("worker stopped")
}

// Worker drives the outbox relay and periodic cleanup.
type Worker struct {
	pool         *postgres.Pool
	relay        *postgres.OutboxRelay
	idempotency  *postgres.IdempotencyStore
	metrics      *metrics.Metrics
	log          *logger.Logger
	pollInterval time.Duration
	cleanup      time.Duration
}

func NewWorker(cfg *config.Config, pool *postgres.Pool, txm *postgres.TxManager, m *metrics.Metrics, log *logger.Logger) *Worker {
	w := &Worker{
		pool:         pool,
		idempotency:  postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		metrics:      m,
		log:          log.WithComponent("worker"),
		pollInterval: cfg.OutboxPollInterval,
		cleanup:      cfg.CleanupInterval,
	}
	w.relay = postgres.NewOutboxRelay(txm, cfg.OutboxBatchSize, postgres.OutboxHandlerFunc(w.deliver))
	return w
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cleanup)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(appctx.WithTrace(ctx, appctx.NewTraceContext()))
		case <-cleanupTicker.C:
			tickCtx := appctx.WithTrace(ctx, appctx.NewTraceContext())
			w.moveToDLQ(tickCtx)
			w.cleanupIdempotency(tickCtx)
			w.pool.LogStats(tickCtx)
		}
	}
}

// deliver hands one event to downstream consumers. Delivery is a structured
// log line until a broker is configured.
func (w *Worker) deliver(ctx context.Context, msg *postgres.OutboxMessage) error {
	w.log.WithContext(ctx).Infow("domain event",
		"event_id", msg.ID,
		"event_type", msg.EventType,
		"organization_id", msg.OrganizationID,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"retry_count", msg.RetryCount,
	)
	return nil
}

func (w *Worker) processOutbox(ctx context.Context) {
	res, err := w.relay.ProcessBatch(ctx)
	w.metrics.ObserveOutbox(res.Delivered, res.Failed)
	if err != nil {
		w.log.WithContext(ctx).Errorw("outbox batch failed", "error", err)
		return
	}
	if res.Delivered+res.Failed > 0 {
		w.log.WithContext(ctx).Debugw("processed outbox batch", "delivered", res.Delivered, "failed", res.Failed)
	}
}

func (w *Worker) moveToDLQ(ctx context.Context) {
	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.WithContext(ctx).Errorw("failed to move outbox messages to dlq", "error", err)
		return
	}
	if moved > 0 {
		w.log.WithContext(ctx).Warnw("moved outbox messages to dlq", "count", moved)
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	removed, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.WithContext(ctx).Errorw("failed to clean up idempotency keys", "error", err)
		return
	}
	if removed > 0 {
		w.log.WithContext(ctx).Infow("cleaned up idempotency keys", "count", removed)
	}
}
