package reconcile_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/reconcile"
	"overflow.app/questions/internal/search"
	"overflow.app/questions/internal/search/searchtest"
	"overflow.app/questions/internal/store/storetest"
)

var asked = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func question(id int64, title string) model.Question {
	return model.Question{
		ID:        id,
		Title:     title,
		Content:   "body of " + title,
		Tags:      []string{"go"},
		CreatedAt: asked,
		EventSeq:  1,
	}
}

var _ = Describe("Verifier", func() {
	var (
		ctx      context.Context
		stores   *storetest.Memory
		index    *searchtest.Memory
		proj     *projector.Projector
		verifier *reconcile.Verifier
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = storetest.New("go")
		index = searchtest.New()
		proj = projector.New(projector.NewMemoryStateStore(), index, nil)
		verifier = reconcile.NewVerifier(index, stores.Questions(), proj, nil)
	})

	It("repairs missing documents and removes orphans", func() {
		a, b := question(1, "A"), question(2, "B")
		stores.PutQuestion(a)
		stores.PutQuestion(b)
		Expect(index.Upsert(ctx, projector.DocumentOf(a))).To(Succeed())
		Expect(index.Upsert(ctx, search.Document{ID: "3", Title: "C"})).To(Succeed())

		report, err := verifier.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report).To(Equal(reconcile.Report{Repaired: 1, Missing: 1, Orphaned: 1}))
		Expect(index.IDs()).To(ConsistOf("1", "2"))

		doc, _ := index.Get("2")
		Expect(doc).To(Equal(projector.DocumentOf(b)))
	})

	It("rewrites drifted documents from the store", func() {
		q := question(1, "A")
		q.AnswerCount = 2
		stores.PutQuestion(q)
		stale := projector.DocumentOf(q)
		stale.AnswerCount = 0
		Expect(index.Upsert(ctx, stale)).To(Succeed())

		report, err := verifier.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report).To(Equal(reconcile.Report{Repaired: 1, Drifted: 1}))

		doc, _ := index.Get("1")
		Expect(doc.AnswerCount).To(BeEquivalentTo(2))
	})

	It("finds nothing to do when the index is in sync", func() {
		q := question(1, "A")
		stores.PutQuestion(q)
		Expect(index.Upsert(ctx, projector.DocumentOf(q))).To(Succeed())

		report, err := verifier.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report).To(BeZero())
	})

	It("pages through every stored question", func() {
		for id := int64(1); id <= 1200; id++ {
			stores.PutQuestion(question(id, "Q"))
		}
		report, err := verifier.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Missing).To(Equal(1200))
		Expect(index.IDs()).To(HaveLen(1200))
	})

	It("does not resurrect a question the projector already deleted", func() {
		q := question(1, "A")
		stores.PutQuestion(q)
		env, err := domain.NewEnvelope("1", 2, domain.QuestionDeleted{QuestionID: "1"}, "")
		Expect(err).NotTo(HaveOccurred())
		_, err = proj.OnEvent(ctx, env)
		Expect(err).NotTo(HaveOccurred())

		report, err := verifier.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Missing).To(Equal(1))
		Expect(report.Repaired).To(BeZero())
		Expect(index.IDs()).To(BeEmpty())
	})

	It("fails the pass when the index cannot be exported", func() {
		index.SetFail(errors.New("503"))
		_, err := verifier.Reconcile(ctx)
		Expect(err).To(MatchError(ContainSubstring("exporting index")))
	})
})
