// Package storetest provides an in-memory implementation of the stores for tests.
// Transactions are serialized and roll back to a snapshot when fn fails.
package storetest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/service"
	"overflow.app/questions/internal/store"
)

type Memory struct {
	txMu sync.Mutex
	mu   sync.Mutex

	questions map[int64]model.Question
	answers   map[int64]model.Answer
	outbox    []model.OutboxEvent
	tags      map[string]bool
}

var (
	_ service.TxRunner      = (*Memory)(nil)
	_ service.StoreProvider = (*Memory)(nil)
)

func New(tags ...string) *Memory {
	m := &Memory{
		questions: map[int64]model.Question{},
		answers:   map[int64]model.Answer{},
		tags:      map[string]bool{},
	}
	for _, t := range tags {
		m.tags[t] = true
	}
	return m
}

func (m *Memory) WithTx(ctx context.Context, fn func(stores service.StoreProvider) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// WithOutbox runs fn in a transaction exposing only the outbox.
func (m *Memory) WithOutbox(ctx context.Context, fn func(outbox store.OutboxStore) error) error {
	return m.WithTx(ctx, func(stores service.StoreProvider) error {
		return fn(stores.Outbox())
	})
}

func (m *Memory) Questions() store.QuestionStore { return questions{m} }
func (m *Memory) Answers() store.AnswerStore     { return answers{m} }
func (m *Memory) Outbox() store.OutboxStore      { return outbox{m} }
func (m *Memory) Tags() store.TagStore           { return tags{m} }

// Events returns a copy of every outbox record in append order.
func (m *Memory) Events() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.outbox)
}

// AnswerRows returns the stored answers of a question, bypassing the service.
func (m *Memory) AnswerRows(questionID int64) []model.Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Answer
	for _, a := range m.answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out
}

// PutQuestion stores q as is. Used to seed state that bypasses the service.
func (m *Memory) PutQuestion(q model.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = cloneQuestion(q)
}

type snapshot struct {
	questions map[int64]model.Question
	answers   map[int64]model.Answer
	outbox    []model.OutboxEvent
}

func (m *Memory) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		questions: make(map[int64]model.Question, len(m.questions)),
		answers:   make(map[int64]model.Answer, len(m.answers)),
		outbox:    slices.Clone(m.outbox),
	}
	for k, v := range m.questions {
		s.questions[k] = cloneQuestion(v)
	}
	for k, v := range m.answers {
		s.answers[k] = v
	}
	return s
}

func (m *Memory) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = s.questions
	m.answers = s.answers
	m.outbox = s.outbox
}

func cloneQuestion(q model.Question) model.Question {
	q.Tags = slices.Clone(q.Tags)
	q.Answers = nil
	return q
}

type questions struct{ m *Memory }

func (s questions) Create(_ context.Context, q *model.Question) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.questions[q.ID]; ok {
		return store.ErrConflict
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	s.m.questions[q.ID] = cloneQuestion(*q)
	return nil
}

func (s questions) GetByID(_ context.Context, id int64) (*model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	q, ok := s.m.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	q = cloneQuestion(q)
	return &q, nil
}

func (s questions) GetForUpdate(ctx context.Context, id int64) (*model.Question, error) {
	return s.GetByID(ctx, id)
}

func (s questions) IncrementViewCount(_ context.Context, id int64) (*model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	q, ok := s.m.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	q.ViewCount++
	s.m.questions[id] = q
	q = cloneQuestion(q)
	return &q, nil
}

func (s questions) List(_ context.Context, tag *string) ([]model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Question
	for _, q := range s.m.questions {
		if tag != nil && !slices.Contains(q.Tags, *tag) {
			continue
		}
		out = append(out, cloneQuestion(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s questions) ListPage(_ context.Context, afterID int64, limit int) ([]model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Question
	for id, q := range s.m.questions {
		if id > afterID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s questions) Update(_ context.Context, q *model.Question) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.questions[q.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Title = q.Title
	cur.Content = q.Content
	cur.Tags = slices.Clone(q.Tags)
	cur.UpdatedAt = q.UpdatedAt
	cur.AnswerCount = q.AnswerCount
	cur.HasAcceptedAnswer = q.HasAcceptedAnswer
	cur.EventSeq = q.EventSeq
	s.m.questions[q.ID] = cur
	return nil
}

func (s questions) Delete(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.questions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.m.questions, id)
	return nil
}

type answers struct{ m *Memory }

func (s answers) Create(_ context.Context, a *model.Answer) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.questions[a.QuestionID]; !ok {
		return store.ErrNotFound
	}
	a.CreatedAt = time.Now().UTC()
	s.m.answers[a.ID] = *a
	return nil
}

func (s answers) GetByID(_ context.Context, id int64) (*model.Answer, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.answers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s answers) ListByQuestion(_ context.Context, questionID int64) ([]model.Answer, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Answer
	for _, a := range s.m.answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s answers) CountByQuestion(ctx context.Context, questionID int64) (int32, error) {
	list, _ := s.ListByQuestion(ctx, questionID)
	return int32(len(list)), nil
}

func (s answers) CountAccepted(ctx context.Context, questionID int64) (int32, error) {
	list, _ := s.ListByQuestion(ctx, questionID)
	var n int32
	for _, a := range list {
		if a.Accepted {
			n++
		}
	}
	return n, nil
}

func (s answers) UpdateContent(_ context.Context, id int64, content string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.answers[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	a.Content = content
	a.UpdatedAt = &now
	s.m.answers[id] = a
	return nil
}

func (s answers) SetAccepted(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.answers[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, other := range s.m.answers {
		if other.QuestionID == a.QuestionID && other.Accepted && other.ID != id {
			return store.ErrConflict
		}
	}
	a.Accepted = true
	s.m.answers[id] = a
	return nil
}

func (s answers) Delete(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.answers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.m.answers, id)
	return nil
}

func (s answers) DeleteByQuestion(_ context.Context, questionID int64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for id, a := range s.m.answers {
		if a.QuestionID == questionID {
			delete(s.m.answers, id)
			n++
		}
	}
	return n, nil
}

type outbox struct{ m *Memory }

func (s outbox) Append(_ context.Context, e *model.OutboxEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.outbox {
		if existing.AggregateID == e.AggregateID && existing.Sequence == e.Sequence {
			return store.ErrConflict
		}
	}
	s.m.outbox = append(s.m.outbox, *e)
	return nil
}

func (s outbox) LockAggregate(context.Context, int64) error { return nil }

func (s outbox) ListPending(_ context.Context, aggregateID int64) ([]model.OutboxEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.OutboxEvent
	for _, e := range s.m.outbox {
		if e.AggregateID == aggregateID && e.PublishedAt == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s outbox) MarkPublished(_ context.Context, aggregateID, throughSeq int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := time.Now().UTC()
	for i, e := range s.m.outbox {
		if e.AggregateID == aggregateID && e.Sequence <= throughSeq && e.PublishedAt == nil {
			s.m.outbox[i].PublishedAt = &now
			s.m.outbox[i].LastError = nil
		}
	}
	return nil
}

func (s outbox) RecordFailure(_ context.Context, id string, reason string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, e := range s.m.outbox {
		if e.ID == id {
			s.m.outbox[i].Attempts++
			s.m.outbox[i].LastError = &reason
		}
	}
	return nil
}

func (s outbox) ListPendingAggregates(_ context.Context, limit int) ([]int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, e := range s.m.outbox {
		if e.PublishedAt != nil || seen[e.AggregateID] {
			continue
		}
		seen[e.AggregateID] = true
		ids = append(ids, e.AggregateID)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

type tags struct{ m *Memory }

func (s tags) ListSlugs(context.Context) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]string, 0, len(s.m.tags))
	for t := range s.m.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
