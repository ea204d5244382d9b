package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain"
)

type passthroughTx struct{ calls int }

func (p *passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

func TestInstrumentTx_CountsTopLevelUnits(t *testing.T) {
	m := New()
	inner := &passthroughTx{}
	txm := m.InstrumentTx(inner)
	ctx := context.Background()

	require.NoError(t, txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return txm.RunInTransaction(ctx, func(context.Context) error { return nil })
	}))
	err := txm.RunInTransaction(ctx, func(context.Context) error {
		return apperror.NewValidation("bad")
	})
	require.Error(t, err)
	_ = txm.RunInTransaction(ctx, func(context.Context) error { return errors.New("raw") })

	assert.Equal(t, 4, inner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(apperror.CodeValidation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues(apperror.CodeInternal)))
}

func TestInstrumentEvents(t *testing.T) {
	m := New()
	pub := m.InstrumentEvents(domain.NopPublisher{})

	require.NoError(t, pub.Publish(context.Background(), domain.Event{EventType: domain.EventEntryPosted}))
	require.NoError(t, pub.Publish(context.Background(), domain.Event{EventType: domain.EventEntryPosted}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues(domain.EventEntryPosted)))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/items/:id", "GET", "204")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stockledger_http_requests_total")
}

func TestPoolStatsAndOutbox(t *testing.T) {
	m := New()
	m.RegisterPoolStats(func() PoolStats { return PoolStats{Total: 4, Acquired: 1, Idle: 3} })
	m.ObserveOutbox(3, 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.outboxTotal.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxTotal.WithLabelValues("failed")))

	n, err := testutil.GatherAndCount(m.registry, "stockledger_db_pool_idle_conns")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	inner := &passthroughTx{}
	require.NoError(t, m.InstrumentTx(inner).RunInTransaction(context.Background(), func(context.Context) error { return nil }))
	m.ObserveOutbox(1, 1)
	m.RegisterPoolStats(func() PoolStats { return PoolStats{} })

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
