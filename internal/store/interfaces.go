package store

import (
	"context"
	"errors"

	"overflow.app/questions/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint
var ErrConflict = errors.New("conflict")

// QuestionStore defines the contract for question data access
type QuestionStore interface {
	Create(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id int64) (*model.Question, error)
	// GetForUpdate locks the question row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*model.Question, error)
	IncrementViewCount(ctx context.Context, id int64) (*model.Question, error)
	List(ctx context.Context, tag *string) ([]model.Question, error)
	// ListPage returns questions ordered by id, starting after afterID.
	ListPage(ctx context.Context, afterID int64, limit int) ([]model.Question, error)
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id int64) error
}

// AnswerStore defines the contract for answer data access
type AnswerStore interface {
	Create(ctx context.Context, a *model.Answer) error
	GetByID(ctx context.Context, id int64) (*model.Answer, error)
	ListByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error)
	CountByQuestion(ctx context.Context, questionID int64) (int32, error)
	CountAccepted(ctx context.Context, questionID int64) (int32, error)
	UpdateContent(ctx context.Context, id int64, content string) error
	SetAccepted(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	DeleteByQuestion(ctx context.Context, questionID int64) (int64, error)
}

// OutboxStore defines the contract for the transactional event outbox
type OutboxStore interface {
	Append(ctx context.Context, e *model.OutboxEvent) error
	// LockAggregate serializes relays flushing the same aggregate until the transaction ends.
	LockAggregate(ctx context.Context, aggregateID int64) error
	ListPending(ctx context.Context, aggregateID int64) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, aggregateID, throughSeq int64) error
	RecordFailure(ctx context.Context, id string, reason string) error
	ListPendingAggregates(ctx context.Context, limit int) ([]int64, error)
}

// TagStore defines the contract for the tag vocabulary
type TagStore interface {
	ListSlugs(ctx context.Context) ([]string, error)
}
