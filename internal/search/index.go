package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid search query")

// Document is the denormalized read model of a question in the search collection.
// JSON names match the collection schema.
type Document struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Tag               []string `json:"tag"`
	CreatedAt         int64    `json:"createdAt"`
	AnswerCount       int32    `json:"answerCount"`
	HasAcceptedAnswer bool     `json:"hasAcceptedAnswer"`
}

// Equal reports whether two documents would render the same search result.
func (d Document) Equal(o Document) bool {
	return d.ID == o.ID &&
		d.Title == o.Title &&
		d.Content == o.Content &&
		slices.Equal(d.Tag, o.Tag) &&
		d.CreatedAt == o.CreatedAt &&
		d.AnswerCount == o.AnswerCount &&
		d.HasAcceptedAnswer == o.HasAcceptedAnswer
}

// Index is the write side of the search projection.
type Index interface {
	// EnsureCollection creates the collection when absent. An existing collection is left untouched.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, doc Document) error
	// Delete succeeds when the document is already gone.
	Delete(ctx context.Context, id string) error
	// Export returns every document currently in the collection.
	Export(ctx context.Context) ([]Document, error)
}

type Query struct {
	Text  string
	Tag   *string
	Limit int
}

// Validate rejects tags that cannot be quoted inside a backtick filter value.
func (q Query) Validate() error {
	if q.Tag != nil && strings.ContainsRune(*q.Tag, '`') {
		return fmt.Errorf("%w: tag %q contains a backtick", ErrInvalidQuery, *q.Tag)
	}
	return nil
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Document, error)
}
