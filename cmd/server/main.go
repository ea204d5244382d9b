// Package main is the entry point for the stock ledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/config"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/journal"
	"stockledger/internal/domain/ledger"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/idempotency"
	"stockledger/internal/infrastructure/metrics"
	sequences "stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
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

	ctx := context.Background()
	log.Infow("starting stockledger server", "storage", cfg.StorageDriver)

	m := metrics.New()
	be, err := openBackend(ctx, cfg, m)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer be.close()

	// --- Services ---
	unit := m.InstrumentTx(be.txManager)
	events := m.InstrumentEvents(be.events)

	balances := balance.NewService(be.balances, unit, balance.Options{ForbidNegative: cfg.ForbidNegativeStock})
	ledgerService := ledger.NewService(be.ledger, balances, be.numerator, unit, events)
	journals := journal.NewService(be.journals, ledgerService, balances, be.numerator, unit, be.audit, events)

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Issuer = cfg.JWTIssuer
	jwtConfig.AccessTokenTTL = cfg.JWTTTL
	jwtService := auth.NewJWTService(jwtConfig)

	var idem idempotency.Store
	if cfg.IdempotencyEnabled {
		idem = be.idempotency
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		JWTValidator:     jwtService,
		Ledger:           ledgerService,
		Journals:         journals,
		Balances:         balances,
		IdempotencyStore: idem,
		Metrics:          m,
		ReadinessChecks:  be.checks,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// backend bundles the storage-specific implementations of every port.
type backend struct {
	txManager   tx.Manager
	balances    balance.Repository
	ledger      ledger.Repository
	journals    journal.Repository
	numerator   numerator.Generator
	audit       audit.Trail
	events      domain.EventPublisher
	idempotency idempotency.Store
	checks      map[string]handlers.ReadinessCheck
	close       func()
}

func openBackend(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	if cfg.StorageDriver == config.DriverMemory {
		store := memory.New()
		return &backend{
			txManager:   store,
			balances:    store.Balances(),
			ledger:      store.Ledger(),
			journals:    store.Journals(),
			numerator:   store,
			audit:       store,
			events:      store,
			idempotency: idempotency.NewMemoryStore(cfg.IdempotencyTTL),
			close:       func() {},
		}, nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	m.RegisterPoolStats(func() metrics.PoolStats {
		s := pool.Stats()
		return metrics.PoolStats{Total: s.TotalConns, Acquired: s.AcquiredConns, Idle: s.IdleConns}
	})

	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.TxStatementTimeout)
	auditService, err := postgres.NewAuditService(txm)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &backend{
		txManager: txm,
		balances:  register_repo.NewBalanceRepo(txm),
		ledger:    register_repo.NewLedgerRepo(txm),
		journals:  document_repo.NewJournalRepo(txm),
		numerator: sequences.New(func(ctx context.Context) sequences.Querier {
			return txm.GetQuerier(ctx)
		}),
		audit:       auditService,
		events:      postgres.NewOutboxPublisher(txm),
		idempotency: postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		checks: map[string]handlers.ReadinessCheck{
			"database": pool.Ping,
		},
		close: pool.Close,
	}, nil
}
