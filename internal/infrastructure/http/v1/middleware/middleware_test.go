package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

type errorBody struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

func newEngine(log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Trace(), middleware.Logger(log), middleware.ErrorHandler(), middleware.Recovery())
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRecovery_RendersInternalErrorWithRequestID(t *testing.T) {
	r := newEngine(logger.Nop())
	r.GET("/boom", func(c *gin.Context) { panic("nil map") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	w := serve(r, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-42", body.Details["request_id"])
	assert.Equal(t, "req-42", w.Header().Get(middleware.HeaderRequestID))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderTraceID))
}

func TestErrorHandler_RetryableSetsRetryAfter(t *testing.T) {
	r := newEngine(logger.Nop())
	r.POST("/conflict", func(c *gin.Context) {
		_ = c.Error(apperror.NewConsistency(errors.New("serialization failure")))
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/conflict", nil))

	assert.GreaterOrEqual(t, w.Code, http.StatusConflict)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeConsistency, body.Code)
}

func TestErrorHandler_HidesUnknownErrors(t *testing.T) {
	r := newEngine(logger.Nop())
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("dial tcp: connection refused"))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/plain", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newEngine(logger.NewFromCore(core))
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("stock_journals", "x"))
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].ContextMap()["route"])
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}

func TestRequirePermission(t *testing.T) {
	withUser := func(user *appctx.UserContext) gin.HandlerFunc {
		return func(c *gin.Context) {
			if user != nil {
				c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
			}
		}
	}

	cases := []struct {
		name string
		user *appctx.UserContext
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"missing permission", &appctx.UserContext{UserID: "u", Permissions: []string{"stock:read"}}, http.StatusForbidden},
		{"granted", &appctx.UserContext{UserID: "u", Permissions: []string{"ledger:write"}}, http.StatusNoContent},
		{"admin", &appctx.UserContext{UserID: "u", IsAdmin: true}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(logger.Nop())
			r.POST("/x", withUser(tc.user), middleware.RequirePermission("ledger:write"), func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})
			w := serve(r, httptest.NewRequest(http.MethodPost, "/x", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
