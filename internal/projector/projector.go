package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/common/metrics"
	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/search"
)

var (
	// ErrProjectionUnavailable marks transient state-store or index failures. Retry.
	ErrProjectionUnavailable = errors.New("projection unavailable")

	// ErrMalformedEvent marks an event whose payload cannot be decoded. Retrying cannot help.
	ErrMalformedEvent = errors.New("malformed event")
)

// maxSyncRounds bounds how often one call chases a state that keeps moving
// under it. Whoever moved it is responsible for pushing the newer revision.
const maxSyncRounds = 3

// Projector keeps the search index convergent with the event stream.
// Every event is first merged into per-question state under version rules,
// then the merged document is pushed to the index. Redelivery, duplicates and
// reordering only ever re-push the same merged document.
type Projector struct {
	states  StateStore
	index   search.Index
	metrics *metrics.Collector
}

func New(states StateStore, index search.Index, m *metrics.Collector) *Projector {
	return &Projector{states: states, index: index, metrics: m}
}

func (p *Projector) OnEvent(ctx context.Context, env domain.Envelope) (outcome Outcome, err error) {
	start := time.Now()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(env.AggregateID),
		EventID:    logger.Ptr(env.ID),
		EventType:  logger.Ptr(string(env.Type)),
		Sequence:   logger.Ptr(env.Sequence),
		Component:  "questions.projector",
	})
	defer func() {
		if err == nil {
			p.metrics.ProjectorOutcome(string(env.Type), string(outcome), time.Since(start))
		}
	}()

	event, err := domain.Decode(env)
	if errors.Is(err, domain.ErrUnknownEventType) {
		slog.WarnContext(ctx, "skipping unknown event type")
		return OutcomeSkippedUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	st, err := p.states.Update(ctx, env.AggregateID, func(s *State) error {
		outcome = s.Apply(env.Sequence, event)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProjectionUnavailable, err)
	}

	if err := p.sync(ctx, env.AggregateID, st); err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "event projected", "outcome", outcome)
	return outcome, nil
}

// Repair re-derives the document from the store's canonical row.
// A tombstoned question is left alone: the store snapshot predates its deletion.
func (p *Projector) Repair(ctx context.Context, q model.Question) (Outcome, error) {
	id := strconv.FormatInt(q.ID, 10)

	var outcome Outcome
	st, err := p.states.Update(ctx, id, func(s *State) error {
		outcome = s.Restore(q)
		if outcome == OutcomeSkippedDuplicate && s.Synced == s.Revision {
			// State already matches; the index is what drifted.
			s.Synced = s.Revision - 1
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProjectionUnavailable, err)
	}

	if err := p.sync(ctx, id, st); err != nil {
		return "", err
	}
	return outcome, nil
}

// Remove tombstones a question that no longer exists in the store and deletes its document.
func (p *Projector) Remove(ctx context.Context, id string) error {
	st, err := p.states.Update(ctx, id, func(s *State) error {
		if !s.Deleted {
			s.Deleted = true
			s.Revision++
			return nil
		}
		if s.Synced == s.Revision {
			s.Synced = s.Revision - 1
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProjectionUnavailable, err)
	}
	return p.sync(ctx, id, st)
}

// sync pushes st to the index until the stored state is marked synced.
func (p *Projector) sync(ctx context.Context, id string, st State) error {
	for round := 0; round < maxSyncRounds && st.NeedsSync(); round++ {
		rev := st.Revision

		var err error
		if st.Deleted {
			err = p.index.Delete(ctx, id)
		} else {
			err = p.index.Upsert(ctx, st.Document)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProjectionUnavailable, err)
		}

		st, err = p.states.Update(ctx, id, func(s *State) error {
			if s.Synced < rev {
				s.Synced = rev
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProjectionUnavailable, err)
		}
	}
	return nil
}
