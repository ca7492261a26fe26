package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"overflow.app/questions/common/logger"
)

// Logger writes one access log line per request. Level follows the status class.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		c.Request = c.Request.WithContext(logger.WithLogFields(c.Request.Context(), logger.LogFields{
			Component: "questions.http",
		}))

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if caller := CallerFrom(ctx); caller.Authenticated() {
			attrs = append(attrs, "caller_id", caller.ID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}
