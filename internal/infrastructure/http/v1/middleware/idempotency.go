package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/idempotency"
	"stockledger/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// Idempotency middleware protects against duplicate requests.
// Used for POST/PUT/PATCH/DELETE operations that should be idempotent.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		replay, err := store.Acquire(ctx, idempotency.Request{
			Key:       key,
			UserID:    appctx.GetUserID(ctx),
			Operation: c.Request.Method + " " + c.Request.URL.Path,
			// The organization is part of the fingerprint: one key never
			// replays across organizations.
			RequestHash: idempotency.Fingerprint(append([]byte(appctx.GetOrganizationID(ctx)+"\n"), body...)),
		})
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			if len(replay.Body) == 0 {
				c.Status(replay.StatusCode)
			} else {
				c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			}
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

func idempotencyFromContext(c *gin.Context) (string, idempotency.Store, bool) {
	key, ok := c.Get(ctxIdempotencyKey)
	if !ok {
		return "", nil, false
	}
	store, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return "", nil, false
	}
	s, ok := store.(idempotency.Store)
	if !ok || s == nil {
		return "", nil, false
	}
	return key.(string), s, true
}

// CompleteIdempotency stores a successful response under the request key, if
// the request carries one. A nil response replays as an empty body.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := idempotencyFromContext(c)
	if !ok {
		return
	}

	replay := idempotency.Replay{StatusCode: statusCode, ContentType: contentType}
	if response != nil {
		data, err := json.Marshal(response)
		if err != nil {
			logger.Warn(c.Request.Context(), "marshal idempotent response", "error", err)
			_ = store.Release(c.Request.Context(), key)
			return
		}
		replay.Body = data
	}
	if err := store.Complete(c.Request.Context(), key, replay); err != nil {
		logger.Warn(c.Request.Context(), "complete idempotency key", "key", key, "error", err)
	}
}

// FailIdempotency records a failed response under the request key. Retryable
// failures release the key instead, so that a resubmission runs again.
func FailIdempotency(c *gin.Context, statusCode int, body any) {
	key, store, ok := idempotencyFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if statusCode == http.StatusConflict || statusCode >= http.StatusInternalServerError {
		if err := store.Release(ctx, key); err != nil {
			logger.Warn(ctx, "release idempotency key", "key", key, "error", err)
		}
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		_ = store.Release(ctx, key)
		return
	}
	err = store.Fail(ctx, key, idempotency.Replay{
		StatusCode:  statusCode,
		ContentType: "application/json",
		Body:        data,
	})
	if err != nil {
		logger.Warn(ctx, "fail idempotency key", "key", key, "error", err)
	}
}
