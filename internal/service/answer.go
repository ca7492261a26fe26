package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"overflow.app/questions/common/id"
	"overflow.app/questions/common/logger"
	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/store"
)

type AnswerService interface {
	AddAnswer(ctx context.Context, caller model.Caller, questionID int64, content string) (*model.Answer, SyncStatus, error)
	// UpdateAnswer edits content only. No projected field changes so no event is emitted.
	UpdateAnswer(ctx context.Context, caller model.Caller, answerID int64, content string) error
	DeleteAnswer(ctx context.Context, caller model.Caller, questionID, answerID int64) (SyncStatus, error)
	AcceptAnswer(ctx context.Context, caller model.Caller, questionID, answerID int64) (SyncStatus, error)
}

type answerService struct {
	txRunner TxRunner
	answers  store.AnswerStore
	flusher  *PostCommitFlusher
}

func NewAnswerService(txRunner TxRunner, answers store.AnswerStore, flusher *PostCommitFlusher) AnswerService {
	return &answerService{
		txRunner: txRunner,
		answers:  answers,
		flusher:  flusher,
	}
}

func (s *answerService) AddAnswer(ctx context.Context, caller model.Caller, questionID int64, content string) (*model.Answer, SyncStatus, error) {
	if !caller.Authenticated() {
		return nil, SyncStatus{}, ErrUnauthenticated
	}
	if err := validateStruct(answerParams{Content: content}); err != nil {
		return nil, SyncStatus{}, err
	}

	answer := &model.Answer{
		ID:         id.New(),
		QuestionID: questionID,
		Content:    content,
		Author:     caller.Snapshot(),
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(questionIDString(questionID)),
		AnswerID:   logger.Ptr(strconv.FormatInt(answer.ID, 10)),
		CallerID:   logger.Ptr(caller.ID),
	})

	var count int32
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		q, err := lockQuestion(ctx, stores, questionID)
		if err != nil {
			return err
		}
		if err := stores.Answers().Create(ctx, answer); err != nil {
			return fmt.Errorf("creating answer: %w", err)
		}

		if err := refreshDerived(ctx, stores.Answers(), q); err != nil {
			return err
		}
		count = q.AnswerCount
		return commitQuestion(ctx, stores, q, domain.AnswerCountUpdated{
			QuestionID:  questionIDString(q.ID),
			AnswerCount: q.AnswerCount,
		})
	})
	if err != nil {
		return nil, SyncStatus{}, err
	}

	slog.InfoContext(ctx, "answer added", "answer_count", count)
	return answer, s.flusher.Flush(ctx, questionID), nil
}

func (s *answerService) UpdateAnswer(ctx context.Context, caller model.Caller, answerID int64, content string) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if err := validateStruct(answerParams{Content: content}); err != nil {
		return err
	}

	if err := s.answers.UpdateContent(ctx, answerID, content); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAnswerNotFound
		}
		return fmt.Errorf("updating answer: %w", err)
	}
	return nil
}

// DeleteAnswer rejects answers that belong to another question or are accepted.
func (s *answerService) DeleteAnswer(ctx context.Context, caller model.Caller, questionID, answerID int64) (SyncStatus, error) {
	if !caller.Authenticated() {
		return SyncStatus{}, ErrUnauthenticated
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(questionIDString(questionID)),
		AnswerID:   logger.Ptr(strconv.FormatInt(answerID, 10)),
		CallerID:   logger.Ptr(caller.ID),
	})

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		q, err := lockQuestion(ctx, stores, questionID)
		if err != nil {
			return err
		}
		answer, err := getAnswer(ctx, stores, answerID)
		if err != nil {
			return err
		}
		if answer.QuestionID != q.ID {
			return fmt.Errorf("%w: answer belongs to another question", ErrConflict)
		}
		if answer.Accepted {
			return fmt.Errorf("%w: accepted answers cannot be deleted", ErrConflict)
		}

		if err := stores.Answers().Delete(ctx, answer.ID); err != nil {
			return fmt.Errorf("deleting answer: %w", err)
		}

		if err := refreshDerived(ctx, stores.Answers(), q); err != nil {
			return err
		}
		return commitQuestion(ctx, stores, q, domain.AnswerCountUpdated{
			QuestionID:  questionIDString(q.ID),
			AnswerCount: q.AnswerCount,
		})
	})
	if err != nil {
		return SyncStatus{}, err
	}

	slog.InfoContext(ctx, "answer deleted")
	return s.flusher.Flush(ctx, questionID), nil
}

func (s *answerService) AcceptAnswer(ctx context.Context, caller model.Caller, questionID, answerID int64) (SyncStatus, error) {
	if !caller.Authenticated() {
		return SyncStatus{}, ErrUnauthenticated
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(questionIDString(questionID)),
		AnswerID:   logger.Ptr(strconv.FormatInt(answerID, 10)),
		CallerID:   logger.Ptr(caller.ID),
	})

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		q, err := lockQuestion(ctx, stores, questionID)
		if err != nil {
			return err
		}
		answer, err := getAnswer(ctx, stores, answerID)
		if err != nil {
			return err
		}
		if answer.QuestionID != q.ID {
			return fmt.Errorf("%w: answer belongs to another question", ErrConflict)
		}

		if err := refreshDerived(ctx, stores.Answers(), q); err != nil {
			return err
		}
		if q.HasAcceptedAnswer {
			return fmt.Errorf("%w: question already has an accepted answer", ErrConflict)
		}

		if err := stores.Answers().SetAccepted(ctx, answer.ID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: question already has an accepted answer", ErrConflict)
			}
			return fmt.Errorf("accepting answer: %w", err)
		}

		if err := refreshDerived(ctx, stores.Answers(), q); err != nil {
			return err
		}
		return commitQuestion(ctx, stores, q, domain.AnswerAccepted{
			QuestionID: questionIDString(q.ID),
			AnswerID:   strconv.FormatInt(answer.ID, 10),
		})
	})
	if err != nil {
		return SyncStatus{}, err
	}

	slog.InfoContext(ctx, "answer accepted")
	return s.flusher.Flush(ctx, questionID), nil
}

func getAnswer(ctx context.Context, stores StoreProvider, answerID int64) (*model.Answer, error) {
	answer, err := stores.Answers().GetByID(ctx, answerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("getting answer: %w", err)
	}
	return answer, nil
}

// commitQuestion writes q back with a fresh sequence and records event under it.
func commitQuestion(ctx context.Context, stores StoreProvider, q *model.Question, event domain.Event) error {
	seq := q.NextSeq()
	if err := stores.Questions().Update(ctx, q); err != nil {
		return fmt.Errorf("updating question: %w", err)
	}
	return recordEvent(ctx, stores.Outbox(), q.ID, seq, event)
}
