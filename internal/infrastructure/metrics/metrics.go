// Package metrics exposes Prometheus metrics of the ledger service.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
)

// Metrics owns a private registry and the collectors registered in it.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	unitsTotal      *prometheus.CounterVec
	unitDuration    prometheus.Histogram
	eventsTotal     *prometheus.CounterVec
	outboxTotal     *prometheus.CounterVec
}

// PoolStats is a snapshot of a connection pool.
type PoolStats struct {
	Total    int32
	Acquired int32
	Idle     int32
}

// New creates the registry and the service collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		unitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_atomic_units_total",
			Help: "Top-level atomic units by outcome code; \"ok\" for committed units.",
		}, []string{"outcome"}),
		unitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockledger_atomic_unit_duration_seconds",
			Help:    "Duration of top-level atomic units.",
			Buckets: prometheus.DefBuckets,
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_domain_events_total",
			Help: "Domain events written by event type.",
		}, []string{"event_type"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_outbox_messages_total",
			Help: "Outbox messages handled by the relay, by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.unitsTotal, m.unitDuration,
		m.eventsTotal, m.outboxTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// RegisterPoolStats exposes connection pool gauges read from stats on scrape.
func (m *Metrics) RegisterPoolStats(stats func() PoolStats) {
	if m == nil {
		return
	}
	gauge := func(name, help string, value func(PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(value(stats()))
		})
	}
	m.registry.MustRegister(
		gauge("stockledger_db_pool_total_conns", "Open pool connections.", func(s PoolStats) int32 { return s.Total }),
		gauge("stockledger_db_pool_acquired_conns", "Pool connections in use.", func(s PoolStats) int32 { return s.Acquired }),
		gauge("stockledger_db_pool_idle_conns", "Idle pool connections.", func(s PoolStats) int32 { return s.Idle }),
	)
}

// ObserveOutbox counts relay results of one batch.
func (m *Metrics) ObserveOutbox(delivered, failed int) {
	if m == nil {
		return
	}
	m.outboxTotal.WithLabelValues("delivered").Add(float64(delivered))
	m.outboxTotal.WithLabelValues("failed").Add(float64(failed))
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// InstrumentTx wraps a transaction manager so every top-level unit is
// counted by outcome. Nested units are not counted twice.
func (m *Metrics) InstrumentTx(next tx.Manager) tx.Manager {
	if m == nil {
		return next
	}
	return &instrumentedTx{next: next, m: m}
}

type unitKey struct{}

type instrumentedTx struct {
	next tx.Manager
	m    *Metrics
}

func (t *instrumentedTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(unitKey{}) != nil {
		return t.next.RunInTransaction(ctx, fn)
	}

	start := time.Now()
	err := t.next.RunInTransaction(context.WithValue(ctx, unitKey{}, true), fn)
	t.m.unitDuration.Observe(time.Since(start).Seconds())
	t.m.unitsTotal.WithLabelValues(outcome(err)).Inc()
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return apperror.CodeInternal
}

// InstrumentEvents wraps a publisher so written events are counted.
// Events of a rolled-back unit are counted too.
func (m *Metrics) InstrumentEvents(next domain.EventPublisher) domain.EventPublisher {
	if m == nil {
		return next
	}
	return &instrumentedPublisher{next: next, m: m}
}

type instrumentedPublisher struct {
	next domain.EventPublisher
	m    *Metrics
}

func (p *instrumentedPublisher) Publish(ctx context.Context, event domain.Event) error {
	if err := p.next.Publish(ctx, event); err != nil {
		return err
	}
	p.m.eventsTotal.WithLabelValues(event.EventType).Inc()
	return nil
}
