package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/queue"
	"overflow.app/questions/internal/worker"
)

func message(id, question string, seq int64, attempt int) queue.Message {
	return queue.Message{
		ID:      id,
		Attempt: attempt,
		Envelope: domain.Envelope{
			ID:          "evt-" + id,
			Type:        domain.EventTypeAnswerCountUpdated,
			AggregateID: question,
			Sequence:    seq,
			Payload:     json.RawMessage(fmt.Sprintf(`{"question_id":%q,"answer_count":1}`, question)),
		},
	}
}

var _ = Describe("Worker", func() {
	var (
		ctx       context.Context
		consumer  *mockConsumer
		processor *mockProcessor
		cfg       worker.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		processor = &mockProcessor{}
		cfg = worker.Config{
			MaxAttempts:  3,
			Parallelism:  4,
			ApplyRetries: 2,
			ApplyBackoff: time.Millisecond,
		}
	})

	newWorker := func() *worker.Worker {
		return worker.New(consumer, processor, cfg, nil)
	}

	It("acks every applied message", func() {
		newWorker().HandleBatch(ctx, []queue.Message{
			message("1-0", "q1", 1, 1),
			message("2-0", "q2", 1, 1),
		})
		Expect(consumer.Acked()).To(ConsistOf("1-0", "2-0"))
		Expect(consumer.Requeued()).To(BeEmpty())
	})

	It("acks skipped outcomes too", func() {
		processor.onEventFn = func(context.Context, domain.Envelope) (projector.Outcome, error) {
			return projector.OutcomeSkippedStale, nil
		}
		newWorker().HandleBatch(ctx, []queue.Message{message("1-0", "q1", 1, 1)})
		Expect(consumer.Acked()).To(Equal([]string{"1-0"}))
	})

	It("applies messages of one question in delivery order", func() {
		var batch []queue.Message
		for seq := int64(1); seq <= 20; seq++ {
			batch = append(batch,
				message(fmt.Sprintf("a%d", seq), "qa", seq, 1),
				message(fmt.Sprintf("b%d", seq), "qb", seq, 1),
			)
		}
		newWorker().HandleBatch(ctx, batch)

		want := make([]int64, 20)
		for i := range want {
			want[i] = int64(i + 1)
		}
		Expect(processor.Seen("qa")).To(Equal(want))
		Expect(processor.Seen("qb")).To(Equal(want))
		Expect(consumer.Acked()).To(HaveLen(40))
	})

	It("retries in place while the projection is unavailable", func() {
		failures := 2
		processor.onEventFn = func(context.Context, domain.Envelope) (projector.Outcome, error) {
			if failures > 0 {
				failures--
				return "", projector.ErrProjectionUnavailable
			}
			return projector.OutcomeApplied, nil
		}

		newWorker().HandleBatch(ctx, []queue.Message{message("1-0", "q1", 1, 1)})
		Expect(processor.Calls()).To(Equal(3))
		Expect(consumer.Acked()).To(Equal([]string{"1-0"}))
	})

	It("requeues when in-place retries are exhausted", func() {
		processor.onEventFn = func(context.Context, domain.Envelope) (projector.Outcome, error) {
			return "", projector.ErrProjectionUnavailable
		}

		newWorker().HandleBatch(ctx, []queue.Message{message("1-0", "q1", 1, 1)})
		Expect(processor.Calls()).To(Equal(cfg.ApplyRetries + 1))
		Expect(consumer.Requeued()).To(Equal([]string{"1-0"}))
		Expect(consumer.Acked()).To(BeEmpty())
	})

	It("dead-letters after the last allowed attempt", func() {
		processor.onEventFn = func(context.Context, domain.Envelope) (projector.Outcome, error) {
			return "", projector.ErrProjectionUnavailable
		}

		newWorker().HandleBatch(ctx, []queue.Message{message("1-0", "q1", 1, cfg.MaxAttempts)})
		Expect(consumer.DLQ()).To(Equal([]string{"1-0"}))
		Expect(consumer.Requeued()).To(BeEmpty())
	})

	It("dead-letters malformed events without retrying", func() {
		processor.onEventFn = func(context.Context, domain.Envelope) (projector.Outcome, error) {
			return "", fmt.Errorf("%w: bad payload", projector.ErrMalformedEvent)
		}

		newWorker().HandleBatch(ctx, []queue.Message{message("1-0", "q1", 1, 1)})
		Expect(processor.Calls()).To(Equal(1))
		Expect(consumer.DLQ()).To(Equal([]string{"1-0"}))
	})

	It("keeps going after a failure within the same question", func() {
		processor.onEventFn = func(_ context.Context, env domain.Envelope) (projector.Outcome, error) {
			if env.Sequence == 2 {
				return "", errors.New("boom")
			}
			return projector.OutcomeApplied, nil
		}

		newWorker().HandleBatch(ctx, []queue.Message{
			message("1-0", "q1", 1, 1),
			message("2-0", "q1", 2, 1),
			message("3-0", "q1", 3, 1),
		})
		Expect(consumer.Acked()).To(Equal([]string{"1-0", "3-0"}))
		Expect(consumer.Requeued()).To(Equal([]string{"2-0"}))
	})

	It("recovers from a panicking processor", func() {
		processor.onEventFn = func(context.Context, domain.Envelope) (projector.Outcome, error) {
			panic("nil map")
		}

		Expect(func() {
			newWorker().HandleBatch(ctx, []queue.Message{message("1-0", "q1", 1, 1)})
		}).NotTo(Panic())
		Expect(consumer.Requeued()).To(Equal([]string{"1-0"}))
	})

	It("stops the run loop on Stop", func() {
		consumer.readFn = func(context.Context) ([]queue.Message, error) {
			time.Sleep(time.Millisecond)
			return nil, nil
		}
		w := newWorker()
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		w.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})
})

var _ = Describe("Reclaimer", func() {
	It("dead-letters undecodable entries and processes the rest", func() {
		ctx := context.Background()
		consumer := &mockConsumer{}
		processor := &mockProcessor{}
		claimer := &mockClaimer{
			claimFn: func(context.Context, time.Duration, int64) ([]redis.XMessage, error) {
				return []redis.XMessage{
					{ID: "1-0", Values: map[string]any{"event_type": "question_created"}},
					{ID: "2-0", Values: map[string]any{
						"event_id":     "e2",
						"event_type":   "question_deleted",
						"aggregate_id": "q1",
						"sequence":     "3",
						"payload":      `{"question_id":"q1"}`,
						"attempt":      "1",
					}},
				}, nil
			},
		}

		w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3}, nil)
		r := worker.NewReclaimer(claimer, w, worker.ReclaimerConfig{MinIdle: time.Minute, BatchSize: 10})

		n, err := r.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(claimer.deadLettered).To(Equal([]string{"1-0"}))
		Expect(processor.Seen("q1")).To(Equal([]int64{3}))
		Expect(consumer.Acked()).To(Equal([]string{"2-0"}))
	})

	It("surfaces claim failures", func() {
		claimer := &mockClaimer{
			claimFn: func(context.Context, time.Duration, int64) ([]redis.XMessage, error) {
				return nil, errors.New("connection refused")
			},
		}
		r := worker.NewReclaimer(claimer, worker.New(&mockConsumer{}, &mockProcessor{}, worker.Config{}, nil), worker.ReclaimerConfig{})
		_, err := r.ReclaimOnce(context.Background())
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})
})
