package domain_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/internal/domain"
)

var _ = Describe("Envelope", func() {
	It("wraps a payload with a fresh id and its type", func() {
		env, err := domain.NewEnvelope("42", 3, domain.AnswerCountUpdated{QuestionID: "42", AnswerCount: 5}, "abc")
		Expect(err).NotTo(HaveOccurred())

		Expect(env.ID).NotTo(BeEmpty())
		Expect(env.Type).To(Equal(domain.EventTypeAnswerCountUpdated))
		Expect(env.AggregateID).To(Equal("42"))
		Expect(env.Sequence).To(BeEquivalentTo(3))
		Expect(env.TraceID).To(Equal("abc"))
		Expect(env.Payload).To(MatchJSON(`{"question_id":"42","answer_count":5}`))
	})

	It("gives every envelope a distinct id", func() {
		a, _ := domain.NewEnvelope("1", 1, domain.QuestionDeleted{QuestionID: "1"}, "")
		b, _ := domain.NewEnvelope("1", 1, domain.QuestionDeleted{QuestionID: "1"}, "")
		Expect(a.ID).NotTo(Equal(b.ID))
	})
})

var _ = Describe("Decode", func() {
	It("returns the concrete payload", func() {
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		env, err := domain.NewEnvelope("7", 1, domain.QuestionCreated{
			QuestionID: "7",
			Title:      "X",
			Content:    "body",
			Tags:       []string{"go"},
			CreatedAt:  created,
		}, "")
		Expect(err).NotTo(HaveOccurred())

		event, err := domain.Decode(env)
		Expect(err).NotTo(HaveOccurred())
		Expect(event).To(Equal(domain.QuestionCreated{
			QuestionID: "7",
			Title:      "X",
			Content:    "body",
			Tags:       []string{"go"},
			CreatedAt:  created,
		}))
	})

	It("reports unknown types", func() {
		_, err := domain.Decode(domain.Envelope{Type: domain.EventType("question_archived"), Payload: json.RawMessage(`{}`)})
		Expect(err).To(MatchError(domain.ErrUnknownEventType))
	})

	It("reports malformed payloads", func() {
		_, err := domain.Decode(domain.Envelope{Type: domain.EventTypeAnswerAccepted, Payload: json.RawMessage(`[1,2]`)})
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(domain.ErrUnknownEventType))
	})
})

var _ = Describe("Schemas", func() {
	It("covers every event type and forbids extra properties", func() {
		schemas := domain.Schemas()
		Expect(schemas).To(HaveLen(5))

		s := schemas[domain.EventTypeAnswerCountUpdated]
		Expect(s).NotTo(BeNil())
		Expect(s.Required).To(ConsistOf("question_id", "answer_count"))

		raw, err := json.Marshal(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"additionalProperties":false`))
	})
})
