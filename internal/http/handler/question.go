package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"overflow.app/questions/internal/http/dto"
	"overflow.app/questions/internal/http/middleware"
	"overflow.app/questions/internal/service"
)

type QuestionHandler struct {
	questions service.QuestionService
}

func NewQuestionHandler(questions service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

func (h *QuestionHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, status, err := h.questions.CreateQuestion(ctx, middleware.CallerFrom(ctx), service.CreateQuestionParams{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	markSync(c, status)
	c.JSON(http.StatusCreated, dto.ToQuestionResponse(q))
}

func (h *QuestionHandler) List(c *gin.Context) {
	var tag *string
	if t, ok := c.GetQuery("tag"); ok {
		tag = &t
	}

	questions, err := h.questions.ListQuestions(c.Request.Context(), tag)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToQuestionList(questions))
}

func (h *QuestionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	q, err := h.questions.GetQuestion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToQuestionResponse(q))
}

func (h *QuestionHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.questions.UpdateQuestion(ctx, middleware.CallerFrom(ctx), id, service.UpdateQuestionParams{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	markSync(c, status)
	c.Status(http.StatusNoContent)
}

func (h *QuestionHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	status, err := h.questions.DeleteQuestion(ctx, middleware.CallerFrom(ctx), id)
	if err != nil {
		respondError(c, err)
		return
	}

	markSync(c, status)
	c.Status(http.StatusNoContent)
}
