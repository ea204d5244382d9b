package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Logger installs log as the request logger and writes one access line per
// request. Server errors log at error level, client errors at warn, health checks
// at debug.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if codes := errorCodes(c); len(codes) > 0 {
			fields = append(fields, "error_codes", codes)
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw("http request", fields...)
		case status >= 400:
			l.Warnw("http request", fields...)
		case strings.HasPrefix(c.Request.URL.Path, "/health"):
			l.Debugw("http request", fields...)
		default:
			l.Infow("http request", fields...)
		}
	}
}

// errorCodes lists the codes of the errors handlers attached to c.
func errorCodes(c *gin.Context) []string {
	var codes []string
	for _, e := range c.Errors {
		if appErr, ok := apperror.AsAppError(e.Err); ok {
			codes = append(codes, appErr.Code)
			continue
		}
		codes = append(codes, apperror.CodeInternal)
	}
	return codes
}
