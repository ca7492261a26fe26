package service_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/search/searchtest"
	"overflow.app/questions/internal/service"
)

var _ = Describe("AnswerService", func() {
	var (
		ctx context.Context
		h   *harness
		q   *model.Question
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()

		var err error
		q, _, err = h.questions.CreateQuestion(ctx, ada, params("X", "go"))
		Expect(err).NotTo(HaveOccurred())
	})

	// expectConsistent checks the derived fields against the answer rows.
	expectConsistent := func(questionID int64) *model.Question {
		stored, err := h.mem.Questions().GetByID(ctx, questionID)
		Expect(err).NotTo(HaveOccurred())

		rows := h.mem.AnswerRows(questionID)
		accepted := 0
		for _, a := range rows {
			if a.Accepted {
				accepted++
			}
		}
		Expect(stored.AnswerCount).To(BeEquivalentTo(len(rows)))
		Expect(accepted).To(BeNumerically("<=", 1))
		Expect(stored.HasAcceptedAnswer).To(Equal(accepted == 1))
		return stored
	}

	add := func() *model.Answer {
		a, status, err := h.answers.AddAnswer(ctx, grace, q.ID, "try this")
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Degraded).To(BeFalse())
		return a
	}

	Describe("AddAnswer", func() {
		It("increments the answer count and publishes it", func() {
			a := add()
			Expect(a.QuestionID).To(Equal(q.ID))
			Expect(a.Author).To(Equal(model.Author{ID: "u-grace", DisplayName: "Grace"}))
			add()

			Expect(expectConsistent(q.ID).AnswerCount).To(BeEquivalentTo(2))

			sent := h.channel.Sent()
			last, err := domain.Decode(sent[len(sent)-1])
			Expect(err).NotTo(HaveOccurred())
			Expect(last).To(Equal(domain.AnswerCountUpdated{QuestionID: key(q), AnswerCount: 2}))
			Expect(sent[len(sent)-1].Sequence).To(BeEquivalentTo(3))
		})

		It("requires an authenticated caller", func() {
			_, _, err := h.answers.AddAnswer(ctx, model.Caller{}, q.ID, "try this")
			Expect(err).To(MatchError(service.ErrUnauthenticated))
		})

		It("reports unknown questions", func() {
			_, _, err := h.answers.AddAnswer(ctx, grace, 42, "try this")
			Expect(err).To(MatchError(service.ErrQuestionNotFound))
			Expect(h.mem.AnswerRows(42)).To(BeEmpty())
		})

		It("rejects empty content", func() {
			_, _, err := h.answers.AddAnswer(ctx, grace, q.ID, "")
			Expect(err).To(MatchError(service.ErrValidation))
		})
	})

	Describe("UpdateAnswer", func() {
		It("edits the content without emitting an event", func() {
			a := add()
			before := len(h.mem.Events())

			Expect(h.answers.UpdateAnswer(ctx, grace, a.ID, "better")).To(Succeed())
			Expect(h.mem.AnswerRows(q.ID)[0].Content).To(Equal("better"))
			Expect(h.mem.Events()).To(HaveLen(before))
		})

		It("reports unknown answers", func() {
			Expect(h.answers.UpdateAnswer(ctx, grace, 42, "better")).To(MatchError(service.ErrAnswerNotFound))
		})

		It("requires an authenticated caller", func() {
			a := add()
			Expect(h.answers.UpdateAnswer(ctx, model.Caller{}, a.ID, "better")).To(MatchError(service.ErrUnauthenticated))
			Expect(h.mem.AnswerRows(q.ID)[0].Content).To(Equal("try this"))
		})
	})

	Describe("DeleteAnswer", func() {
		It("decrements the answer count", func() {
			a := add()
			add()

			_, err := h.answers.DeleteAnswer(ctx, grace, q.ID, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(expectConsistent(q.ID).AnswerCount).To(BeEquivalentTo(1))
		})

		It("rejects answers of another question", func() {
			other, _, err := h.questions.CreateQuestion(ctx, ada, params("Y", "go"))
			Expect(err).NotTo(HaveOccurred())
			a := add()

			_, err = h.answers.DeleteAnswer(ctx, grace, other.ID, a.ID)
			Expect(err).To(MatchError(service.ErrConflict))
			Expect(h.mem.AnswerRows(q.ID)).To(HaveLen(1))
		})

		It("reports unknown answers and questions", func() {
			_, err := h.answers.DeleteAnswer(ctx, grace, q.ID, 42)
			Expect(err).To(MatchError(service.ErrAnswerNotFound))
			_, err = h.answers.DeleteAnswer(ctx, grace, 42, 42)
			Expect(err).To(MatchError(service.ErrQuestionNotFound))
		})

		It("requires an authenticated caller", func() {
			a := add()
			before := len(h.mem.Events())

			_, err := h.answers.DeleteAnswer(ctx, model.Caller{}, q.ID, a.ID)
			Expect(err).To(MatchError(service.ErrUnauthenticated))
			Expect(h.mem.AnswerRows(q.ID)).To(HaveLen(1))
			Expect(h.mem.Events()).To(HaveLen(before))
		})
	})

	Describe("AcceptAnswer", func() {
		It("accepts once and then protects the accepted answer", func() {
			a1 := add()
			a2 := add()

			_, err := h.answers.AcceptAnswer(ctx, ada, q.ID, a1.ID)
			Expect(err).NotTo(HaveOccurred())
			stored := expectConsistent(q.ID)
			Expect(stored.HasAcceptedAnswer).To(BeTrue())

			rows := h.mem.AnswerRows(q.ID)
			for _, a := range rows {
				Expect(a.Accepted).To(Equal(a.ID == a1.ID))
			}

			_, err = h.answers.DeleteAnswer(ctx, grace, q.ID, a1.ID)
			Expect(err).To(MatchError(service.ErrConflict))

			_, err = h.answers.AcceptAnswer(ctx, ada, q.ID, a2.ID)
			Expect(err).To(MatchError(service.ErrConflict))

			expectConsistent(q.ID)
			Expect(h.channel.Types(key(q))).To(Equal([]domain.EventType{
				domain.EventTypeQuestionCreated,
				domain.EventTypeAnswerCountUpdated,
				domain.EventTypeAnswerCountUpdated,
				domain.EventTypeAnswerAccepted,
			}))
		})

		It("rejects answers of another question", func() {
			other, _, err := h.questions.CreateQuestion(ctx, ada, params("Y", "go"))
			Expect(err).NotTo(HaveOccurred())
			a := add()

			_, err = h.answers.AcceptAnswer(ctx, ada, other.ID, a.ID)
			Expect(err).To(MatchError(service.ErrConflict))
			expectConsistent(other.ID)
		})

		It("requires an authenticated caller", func() {
			a := add()

			_, err := h.answers.AcceptAnswer(ctx, model.Caller{}, q.ID, a.ID)
			Expect(err).To(MatchError(service.ErrUnauthenticated))
			Expect(expectConsistent(q.ID).HasAcceptedAnswer).To(BeFalse())
		})
	})

	It("feeds a projection that matches the store", func() {
		a1 := add()
		add()
		_, err := h.answers.AcceptAnswer(ctx, ada, q.ID, a1.ID)
		Expect(err).NotTo(HaveOccurred())
		_, err = h.questions.UpdateQuestion(ctx, ada, q.ID, params("Y", "go", "sql"))
		Expect(err).NotTo(HaveOccurred())

		index := searchtest.New()
		proj := projector.New(projector.NewMemoryStateStore(), index, nil)

		// Deliver newest first, then everything again.
		sent := h.channel.Sent()
		for i := len(sent) - 1; i >= 0; i-- {
			_, err := proj.OnEvent(ctx, sent[i])
			Expect(err).NotTo(HaveOccurred())
		}
		for _, env := range sent {
			_, err := proj.OnEvent(ctx, env)
			Expect(err).NotTo(HaveOccurred())
		}

		stored := expectConsistent(q.ID)
		doc, ok := index.Get(key(q))
		Expect(ok).To(BeTrue())
		Expect(doc).To(Equal(projector.DocumentOf(*stored)))
	})
})
