package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// RetryAfterSeconds is sent with every retryable error response.
const RetryAfterSeconds = 1

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body gin.H

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			details := appErr.Details
			if status >= http.StatusInternalServerError {
				details = make(map[string]any, len(appErr.Details)+1)
				for k, v := range appErr.Details {
					details[k] = v
				}
				details["request_id"] = c.GetString("request_id")
			}
			body = gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": details,
			}
			if appErr.Retryable {
				c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": c.GetString("request_id"),
				},
			}
		}

		// Best-effort: the stored failure replays the exact response.
		FailIdempotency(c, status, body)

		c.JSON(status, body)
	}
}
