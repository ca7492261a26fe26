package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500. A response that already started
// streaming is left alone since its status line is on the wire.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			ctx := c.Request.Context()
			attrs := []any{
				"panic", fmt.Sprint(rec),
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			}
			if caller := CallerFrom(ctx); caller.Authenticated() {
				attrs = append(attrs, "caller_id", caller.ID)
			}
			slog.ErrorContext(ctx, "handler panicked", attrs...)

			_ = c.Error(fmt.Errorf("panic: %v", rec))
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
		}()
		c.Next()
	}
}
