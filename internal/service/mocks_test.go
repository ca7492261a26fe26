package service_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/publisher"
	"overflow.app/questions/internal/service"
	"overflow.app/questions/internal/store/storetest"
)

type mockTagValidator struct {
	areTagsValidFn func(ctx context.Context, tags []string) (bool, error)
}

func (m *mockTagValidator) AreTagsValid(ctx context.Context, tags []string) (bool, error) {
	if m.areTagsValidFn != nil {
		return m.areTagsValidFn(ctx, tags)
	}
	return true, nil
}

// mockChannel records every envelope handed to the message channel.
type mockChannel struct {
	mu   sync.Mutex
	fail error
	sent []domain.Envelope
}

func (m *mockChannel) Enqueue(_ context.Context, env domain.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, env)
	return nil
}

func (m *mockChannel) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *mockChannel) Sent() []domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

func (m *mockChannel) Types(aggregateID string) []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventType
	for _, env := range m.sent {
		if env.AggregateID == aggregateID {
			out = append(out, env.Type)
		}
	}
	return out
}

type harness struct {
	mem       *storetest.Memory
	channel   *mockChannel
	tags      *mockTagValidator
	relay     *publisher.Relay
	questions service.QuestionService
	answers   service.AnswerService
}

func newHarness() *harness {
	h := &harness{
		mem:     storetest.New("go", "sql"),
		channel: &mockChannel{},
		tags:    &mockTagValidator{},
	}
	pub := publisher.New(h.channel, publisher.Config{MaxAttempts: 1, BreakerFailures: 100}, nil)
	h.relay = publisher.NewRelay(h.mem, pub, 10)
	flusher := service.NewPostCommitFlusher(h.relay, time.Second, nil)

	h.questions = service.NewQuestionService(h.mem, h.mem.Questions(), h.mem.Answers(), h.tags, flusher)
	h.answers = service.NewAnswerService(h.mem, h.mem.Answers(), flusher)
	return h
}
