package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/internal/http/handler"
	"overflow.app/questions/internal/search"
	"overflow.app/questions/internal/search/searchtest"
)

var _ = Describe("SearchHandler", func() {
	var (
		router *gin.Engine
		index  *searchtest.Memory
	)

	BeforeEach(func() {
		index = searchtest.New(
			search.Document{ID: "1", Title: "goroutine leak", Tag: []string{"go"}, CreatedAt: 100},
			search.Document{ID: "2", Title: "postgres deadlock", Tag: []string{"sql"}, CreatedAt: 200},
		)
		router = gin.New()
		router.GET("/search", handler.NewSearchHandler(index).Search)
		router.GET("/events/schemas", handler.EventSchemas)
	})

	It("filters by tag", func() {
		w := do(router, http.MethodGet, "/search?tag=sql", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		var hits []map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &hits)).To(Succeed())
		Expect(hits).To(HaveLen(1))
		Expect(hits[0]["id"]).To(Equal("2"))
	})

	It("rejects a tag that would break out of the filter", func() {
		w := do(router, http.MethodGet, "/search?tag=go%60%5D%20%7C%7C%20tag:%3D%5B%60sql", nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("backtick"))
	})

	It("rejects a bad limit", func() {
		Expect(do(router, http.MethodGet, "/search?limit=-1", nil).Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 503 when the index is down", func() {
		index.SetFail(errors.New("503"))
		Expect(do(router, http.MethodGet, "/search?q=go", nil).Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("serves the event schemas", func() {
		w := do(router, http.MethodGet, "/events/schemas", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		var schemas map[string]json.RawMessage
		Expect(json.Unmarshal(w.Body.Bytes(), &schemas)).To(Succeed())
		Expect(schemas).To(HaveKey("question_created"))
		Expect(schemas).To(HaveKey("answer_accepted"))
	})
})
