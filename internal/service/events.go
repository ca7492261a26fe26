package service

import (
	"context"
	"fmt"
	"strconv"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/store"
)

// recordEvent appends event to the outbox in the caller's transaction under the given sequence.
func recordEvent(ctx context.Context, outbox store.OutboxStore, questionID, seq int64, event domain.Event) error {
	env, err := domain.NewEnvelope(strconv.FormatInt(questionID, 10), seq, event, logger.TraceIDFromContext(ctx))
	if err != nil {
		return err
	}

	err = outbox.Append(ctx, &model.OutboxEvent{
		ID:          env.ID,
		AggregateID: questionID,
		Sequence:    env.Sequence,
		Type:        string(env.Type),
		Payload:     env.Payload,
		TraceID:     env.TraceID,
		OccurredAt:  env.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("recording %s: %w", env.Type, err)
	}
	return nil
}

// refreshDerived recomputes the answer-derived fields of q from the answer rows.
// It runs under the question row lock just before the question is written back.
func refreshDerived(ctx context.Context, answers store.AnswerStore, q *model.Question) error {
	count, err := answers.CountByQuestion(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("counting answers: %w", err)
	}
	accepted, err := answers.CountAccepted(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("counting accepted answers: %w", err)
	}
	if accepted > 1 {
		return fmt.Errorf("%w: question has %d accepted answers", ErrConflict, accepted)
	}

	q.AnswerCount = count
	q.HasAcceptedAnswer = accepted == 1
	return nil
}

func questionIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
