package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"overflow.app/questions/common/id"
	"overflow.app/questions/common/logger"
	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/store"
)

type QuestionService interface {
	CreateQuestion(ctx context.Context, caller model.Caller, params CreateQuestionParams) (*model.Question, SyncStatus, error)
	UpdateQuestion(ctx context.Context, caller model.Caller, id int64, params UpdateQuestionParams) (SyncStatus, error)
	DeleteQuestion(ctx context.Context, caller model.Caller, id int64) (SyncStatus, error)
	// GetQuestion counts a view on every call, even if the caller never uses the result.
	GetQuestion(ctx context.Context, id int64) (*model.Question, error)
	ListQuestions(ctx context.Context, tag *string) ([]model.Question, error)
}

type questionService struct {
	txRunner  TxRunner
	questions store.QuestionStore
	answers   store.AnswerStore
	tags      TagValidator
	flusher   *PostCommitFlusher
}

func NewQuestionService(
	txRunner TxRunner,
	questions store.QuestionStore,
	answers store.AnswerStore,
	tags TagValidator,
	flusher *PostCommitFlusher,
) QuestionService {
	return &questionService{
		txRunner:  txRunner,
		questions: questions,
		answers:   answers,
		tags:      tags,
		flusher:   flusher,
	}
}

func (s *questionService) CreateQuestion(ctx context.Context, caller model.Caller, params CreateQuestionParams) (*model.Question, SyncStatus, error) {
	if !caller.Authenticated() {
		return nil, SyncStatus{}, ErrUnauthenticated
	}
	if err := validateStruct(params); err != nil {
		return nil, SyncStatus{}, err
	}
	if err := s.checkTags(ctx, params.Tags); err != nil {
		return nil, SyncStatus{}, err
	}

	q := &model.Question{
		ID:        id.New(),
		Title:     params.Title,
		Content:   params.Content,
		Tags:      params.Tags,
		Asker:     caller.Snapshot(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(questionIDString(q.ID)),
		CallerID:   logger.Ptr(caller.ID),
	})

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		seq := q.NextSeq()
		if err := stores.Questions().Create(ctx, q); err != nil {
			return fmt.Errorf("creating question: %w", err)
		}
		return recordEvent(ctx, stores.Outbox(), q.ID, seq, domain.QuestionCreated{
			QuestionID: questionIDString(q.ID),
			Title:      q.Title,
			Content:    q.Content,
			Tags:       q.Tags,
			CreatedAt:  q.CreatedAt,
		})
	})
	if err != nil {
		return nil, SyncStatus{}, err
	}

	slog.InfoContext(ctx, "question created", "tags", q.Tags)
	return q, s.flusher.Flush(ctx, q.ID), nil
}

func (s *questionService) UpdateQuestion(ctx context.Context, caller model.Caller, questionID int64, params UpdateQuestionParams) (SyncStatus, error) {
	if !caller.Authenticated() {
		return SyncStatus{}, ErrUnauthenticated
	}
	if err := validateStruct(params); err != nil {
		return SyncStatus{}, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(questionIDString(questionID)),
		CallerID:   logger.Ptr(caller.ID),
	})

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		q, err := lockQuestion(ctx, stores, questionID)
		if err != nil {
			return err
		}
		if !q.IsAskedBy(caller) {
			return ErrForbidden
		}
		if err := s.checkTags(ctx, params.Tags); err != nil {
			return err
		}

		now := time.Now().UTC()
		q.Title = params.Title
		q.Content = params.Content
		q.Tags = params.Tags
		q.UpdatedAt = &now
		if err := refreshDerived(ctx, stores.Answers(), q); err != nil {
			return err
		}
		return commitQuestion(ctx, stores, q, domain.QuestionUpdated{
			QuestionID: questionIDString(q.ID),
			Title:      q.Title,
			Content:    q.Content,
			Tags:       q.Tags,
		})
	})
	if err != nil {
		return SyncStatus{}, err
	}

	slog.InfoContext(ctx, "question updated")
	return s.flusher.Flush(ctx, questionID), nil
}

// DeleteQuestion removes the question and its answers in one transaction.
func (s *questionService) DeleteQuestion(ctx context.Context, caller model.Caller, questionID int64) (SyncStatus, error) {
	if !caller.Authenticated() {
		return SyncStatus{}, ErrUnauthenticated
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(questionIDString(questionID)),
		CallerID:   logger.Ptr(caller.ID),
	})

	var removed int64
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		q, err := lockQuestion(ctx, stores, questionID)
		if err != nil {
			return err
		}
		if !q.IsAskedBy(caller) {
			return ErrForbidden
		}

		removed, err = stores.Answers().DeleteByQuestion(ctx, q.ID)
		if err != nil {
			return fmt.Errorf("deleting answers: %w", err)
		}
		if err := stores.Questions().Delete(ctx, q.ID); err != nil {
			return fmt.Errorf("deleting question: %w", err)
		}

		return recordEvent(ctx, stores.Outbox(), q.ID, q.NextSeq(), domain.QuestionDeleted{
			QuestionID: questionIDString(q.ID),
		})
	})
	if err != nil {
		return SyncStatus{}, err
	}

	slog.InfoContext(ctx, "question deleted", "answers_removed", removed)
	return s.flusher.Flush(ctx, questionID), nil
}

func (s *questionService) GetQuestion(ctx context.Context, questionID int64) (*model.Question, error) {
	q, err := s.questions.IncrementViewCount(ctx, questionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("getting question: %w", err)
	}

	answers, err := s.answers.ListByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("listing answers: %w", err)
	}
	q.Answers = answers

	return q, nil
}

func (s *questionService) ListQuestions(ctx context.Context, tag *string) ([]model.Question, error) {
	if tag != nil && strings.TrimSpace(*tag) == "" {
		tag = nil
	}

	questions, err := s.questions.List(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

func (s *questionService) checkTags(ctx context.Context, tags []string) error {
	ok, err := s.tags.AreTagsValid(ctx, tags)
	if err != nil {
		return fmt.Errorf("validating tags: %w", err)
	}
	if !ok {
		return ErrInvalidTags
	}
	return nil
}

// lockQuestion loads the question under a row lock held until the transaction ends.
func lockQuestion(ctx context.Context, stores StoreProvider, questionID int64) (*model.Question, error) {
	q, err := stores.Questions().GetForUpdate(ctx, questionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("locking question: %w", err)
	}
	return q, nil
}
