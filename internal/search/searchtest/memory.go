// Package searchtest provides an in-memory search index for tests.
package searchtest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"overflow.app/questions/internal/search"
)

type Memory struct {
	mu   sync.Mutex
	docs map[string]search.Document

	// Fail, when set, is returned by every call that touches the index.
	Fail error

	upserts int
	ensured bool
}

var (
	_ search.Index    = (*Memory)(nil)
	_ search.Searcher = (*Memory)(nil)
)

func New(docs ...search.Document) *Memory {
	m := &Memory{docs: map[string]search.Document{}}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = err
}

func (m *Memory) EnsureCollection(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.ensured = true
	return nil
}

func (m *Memory) Upsert(_ context.Context, doc search.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	doc.Tag = slices.Clone(doc.Tag)
	m.docs[doc.ID] = doc
	m.upserts++
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory) Export(context.Context) ([]search.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	return m.sorted(), nil
}

func (m *Memory) Search(_ context.Context, q search.Query) ([]search.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))
	var out []search.Document
	for _, d := range m.sorted() {
		if q.Tag != nil && !slices.Contains(d.Tag, *q.Tag) {
			continue
		}
		if text != "" && text != "*" &&
			!strings.Contains(strings.ToLower(d.Title), text) &&
			!strings.Contains(strings.ToLower(d.Content), text) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Get returns the stored document and whether it exists.
func (m *Memory) Get(id string) (search.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d, ok
}

func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

func (m *Memory) Ensured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensured
}

func (m *Memory) sorted() []search.Document {
	out := make([]search.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}
