package handler_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/internal/http/handler"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/service"
)

var _ = Describe("AnswerHandler", func() {
	var (
		router *gin.Engine
		svc    *mockAnswerService
	)

	BeforeEach(func() {
		router = gin.New()
		router.Use(asCaller(ada))
		svc = &mockAnswerService{}
		h := handler.NewAnswerHandler(svc)
		router.POST("/questions/:id/answers", h.Add)
		router.PUT("/questions/:id/answers/:answerId", h.Update)
		router.DELETE("/questions/:id/answers/:answerId", h.Delete)
		router.POST("/questions/:id/answers/:answerId/accept", h.Accept)
	})

	It("adds an answer as the caller", func() {
		svc.addFn = func(_ context.Context, caller model.Caller, questionID int64, content string) (*model.Answer, service.SyncStatus, error) {
			Expect(caller).To(Equal(ada))
			return &model.Answer{ID: 9, QuestionID: questionID, Content: content, Author: caller.Snapshot()}, service.SyncStatus{}, nil
		}
		w := do(router, http.MethodPost, "/questions/42/answers", map[string]any{"content": "try this"})
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).To(ContainSubstring(`"display_name":"Ada"`))
	})

	It("returns 404 when the question is gone", func() {
		svc.addFn = func(context.Context, model.Caller, int64, string) (*model.Answer, service.SyncStatus, error) {
			return nil, service.SyncStatus{}, service.ErrQuestionNotFound
		}
		w := do(router, http.MethodPost, "/questions/42/answers", map[string]any{"content": "x"})
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("updates content", func() {
		svc.updateFn = func(_ context.Context, caller model.Caller, answerID int64, content string) error {
			Expect(caller).To(Equal(ada))
			Expect(answerID).To(BeEquivalentTo(9))
			Expect(content).To(Equal("better"))
			return nil
		}
		w := do(router, http.MethodPut, "/questions/42/answers/9", map[string]any{"content": "better"})
		Expect(w.Code).To(Equal(http.StatusNoContent))
	})

	DescribeTable("maps invariant violations to 409",
		func(method, path string) {
			conflict := fmt.Errorf("%w: question already has an accepted answer", service.ErrConflict)
			svc.deleteFn = func(context.Context, model.Caller, int64, int64) (service.SyncStatus, error) {
				return service.SyncStatus{}, conflict
			}
			svc.acceptFn = func(context.Context, model.Caller, int64, int64) (service.SyncStatus, error) {
				return service.SyncStatus{}, conflict
			}
			w := do(router, method, path, nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(w.Body.String()).To(ContainSubstring("accepted answer"))
		},
		Entry("delete", http.MethodDelete, "/questions/42/answers/9"),
		Entry("accept", http.MethodPost, "/questions/42/answers/9/accept"),
	)

	It("accepts and flags degraded sync", func() {
		svc.acceptFn = func(_ context.Context, caller model.Caller, questionID, answerID int64) (service.SyncStatus, error) {
			Expect(caller).To(Equal(ada))
			Expect(questionID).To(BeEquivalentTo(42))
			Expect(answerID).To(BeEquivalentTo(9))
			return service.SyncStatus{Degraded: true}, nil
		}
		w := do(router, http.MethodPost, "/questions/42/answers/9/accept", nil)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Header().Get(handler.SyncHeader)).To(Equal("degraded"))
	})

	DescribeTable("returns 401 for anonymous mutations",
		func(method, path string, body any) {
			anonymous := gin.New()
			h := handler.NewAnswerHandler(svc)
			anonymous.PUT("/questions/:id/answers/:answerId", h.Update)
			anonymous.DELETE("/questions/:id/answers/:answerId", h.Delete)
			anonymous.POST("/questions/:id/answers/:answerId/accept", h.Accept)

			var seen []model.Caller
			svc.updateFn = func(_ context.Context, caller model.Caller, _ int64, _ string) error {
				seen = append(seen, caller)
				return service.ErrUnauthenticated
			}
			svc.deleteFn = func(_ context.Context, caller model.Caller, _, _ int64) (service.SyncStatus, error) {
				seen = append(seen, caller)
				return service.SyncStatus{}, service.ErrUnauthenticated
			}
			svc.acceptFn = func(_ context.Context, caller model.Caller, _, _ int64) (service.SyncStatus, error) {
				seen = append(seen, caller)
				return service.SyncStatus{}, service.ErrUnauthenticated
			}

			w := do(anonymous, method, path, body)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].Authenticated()).To(BeFalse())
		},
		Entry("update", http.MethodPut, "/questions/42/answers/9", map[string]any{"content": "better"}),
		Entry("delete", http.MethodDelete, "/questions/42/answers/9", nil),
		Entry("accept", http.MethodPost, "/questions/42/answers/9/accept", nil),
	)

	It("returns 400 for malformed answer ids", func() {
		w := do(router, http.MethodDelete, "/questions/42/answers/x", nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
