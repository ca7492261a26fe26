package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"overflow.app/questions/common/metrics"
	"overflow.app/questions/internal/http/handler"
	"overflow.app/questions/internal/http/middleware"
	"overflow.app/questions/internal/search"
	"overflow.app/questions/internal/service"
)

type RouterConfig struct {
	Verifier *middleware.TokenVerifier
	Searcher search.Searcher
	Metrics  *metrics.Collector
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	router.GET("/events/schemas", handler.EventSchemas)

	api := router.Group("")
	if cfg.Verifier != nil {
		api.Use(middleware.Authenticate(cfg.Verifier))
	}

	QuestionRouter(api.Group("/questions"),
		handler.NewQuestionHandler(services.Questions()),
		handler.NewAnswerHandler(services.Answers()))

	if cfg.Searcher != nil {
		SearchRouter(api.Group("/search"), handler.NewSearchHandler(cfg.Searcher))
	}
}

func QuestionRouter(rg *gin.RouterGroup, questions *handler.QuestionHandler, answers *handler.AnswerHandler) {
	rg.POST("", questions.Create)
	rg.GET("", questions.List)
	rg.GET("/:id", questions.Get)
	rg.PUT("/:id", questions.Update)
	rg.DELETE("/:id", questions.Delete)

	rg.POST("/:id/answers", answers.Add)
	rg.PUT("/:id/answers/:answerId", answers.Update)
	rg.DELETE("/:id/answers/:answerId", answers.Delete)
	rg.POST("/:id/answers/:answerId/accept", answers.Accept)
}

func SearchRouter(rg *gin.RouterGroup, h *handler.SearchHandler) {
	rg.GET("", h.Search)
}
