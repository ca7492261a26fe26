package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"overflow.app/questions/internal/service"
)

// SyncHeader is set on mutation responses whose events could not be published yet.
// The mutation itself is committed; search results may lag until the outbox drains.
const SyncHeader = "X-Projection-Sync"

func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the asker can change this question"})
	case errors.Is(err, service.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
	case errors.Is(err, service.ErrAnswerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func markSync(c *gin.Context, status service.SyncStatus) {
	if status.Degraded {
		c.Header(SyncHeader, "degraded")
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
