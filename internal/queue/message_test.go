package queue_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/queue"
)

var _ = Describe("ParseMessage", func() {
	var values map[string]any

	BeforeEach(func() {
		// Redis hands every field back as a string.
		values = map[string]any{
			"event_id":     "5b0c1c1e-8d0f-4c43-9d39-3f3f0f6c2a11",
			"event_type":   "answer_count_updated",
			"aggregate_id": "1790000000000000001",
			"sequence":     "4",
			"occurred_at":  "2024-05-01T10:00:00.123456Z",
			"payload":      `{"question_id":"1790000000000000001","answer_count":2}`,
			"trace_id":     "4bf92f3577b34da6a3ce929d0e0e4736",
			"attempt":      "2",
			"last_error":   "projection unavailable",
		}
	})

	It("decodes the envelope and delivery metadata", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
		Expect(err).NotTo(HaveOccurred())

		Expect(msg.ID).To(Equal("1-0"))
		Expect(msg.Key()).To(Equal("1790000000000000001"))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.LastError).To(Equal("projection unavailable"))

		env := msg.Envelope
		Expect(env.Type).To(Equal(domain.EventTypeAnswerCountUpdated))
		Expect(env.Sequence).To(BeEquivalentTo(4))
		Expect(env.OccurredAt).To(Equal(time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)))
		Expect(env.TraceID).To(Equal("4bf92f3577b34da6a3ce929d0e0e4736"))
		Expect(env.Payload).To(MatchJSON(`{"question_id":"1790000000000000001","answer_count":2}`))
	})

	It("defaults the attempt to 1", func() {
		delete(values, "attempt")
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
	})

	It("keeps unknown event types for the projector to skip", func() {
		values["event_type"] = "question_archived"
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Envelope.Type).To(BeEquivalentTo("question_archived"))
	})

	DescribeTable("rejects malformed entries",
		func(mutate func(map[string]any)) {
			mutate(values)
			_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
			Expect(err).To(HaveOccurred())
		},
		Entry("missing aggregate id", func(v map[string]any) { delete(v, "aggregate_id") }),
		Entry("empty aggregate id", func(v map[string]any) { v["aggregate_id"] = "" }),
		Entry("non-numeric sequence", func(v map[string]any) { v["sequence"] = "four" }),
		Entry("payload not JSON", func(v map[string]any) { v["payload"] = "{oops" }),
		Entry("bad timestamp", func(v map[string]any) { v["occurred_at"] = "yesterday" }),
		Entry("missing event id", func(v map[string]any) { delete(v, "event_id") }),
	)
})
