package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"overflow.app/questions/internal/http/dto"
	"overflow.app/questions/internal/http/middleware"
	"overflow.app/questions/internal/service"
)

type AnswerHandler struct {
	answers service.AnswerService
}

func NewAnswerHandler(answers service.AnswerService) *AnswerHandler {
	return &AnswerHandler{answers: answers}
}

func (h *AnswerHandler) Add(c *gin.Context) {
	ctx := c.Request.Context()
	questionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, status, err := h.answers.AddAnswer(ctx, middleware.CallerFrom(ctx), questionID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	markSync(c, status)
	c.JSON(http.StatusCreated, dto.ToAnswerResponse(answer))
}

func (h *AnswerHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	answerID, ok := pathID(c, "answerId")
	if !ok {
		return
	}

	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.answers.UpdateAnswer(ctx, middleware.CallerFrom(ctx), answerID, req.Content); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AnswerHandler) Delete(c *gin.Context) {
	questionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	answerID, ok := pathID(c, "answerId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	status, err := h.answers.DeleteAnswer(ctx, middleware.CallerFrom(ctx), questionID, answerID)
	if err != nil {
		respondError(c, err)
		return
	}

	markSync(c, status)
	c.Status(http.StatusNoContent)
}

func (h *AnswerHandler) Accept(c *gin.Context) {
	questionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	answerID, ok := pathID(c, "answerId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	status, err := h.answers.AcceptAnswer(ctx, middleware.CallerFrom(ctx), questionID, answerID)
	if err != nil {
		respondError(c, err)
		return
	}

	markSync(c, status)
	c.Status(http.StatusNoContent)
}
