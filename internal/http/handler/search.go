package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/http/dto"
	"overflow.app/questions/internal/search"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type SearchHandler struct {
	searcher search.Searcher
}

func NewSearchHandler(searcher search.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search queries the projection. Results are eventually consistent with the store.
func (h *SearchHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxSearchLimit)
	}

	q := search.Query{Text: c.Query("q"), Limit: limit}
	if tag, ok := c.GetQuery("tag"); ok && tag != "" {
		q.Tag = &tag
	}

	docs, err := h.searcher.Search(ctx, q)
	if errors.Is(err, search.ErrInvalidQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search unavailable"})
		return
	}
	c.JSON(http.StatusOK, dto.ToSearchHits(docs))
}

// EventSchemas serves the JSON Schema of every event published on the stream.
func EventSchemas(c *gin.Context) {
	c.JSON(http.StatusOK, domain.Schemas())
}
