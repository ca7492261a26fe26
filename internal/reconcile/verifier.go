package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/common/metrics"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/search"
)

const defaultPageSize = 500

type QuestionLister interface {
	ListPage(ctx context.Context, afterID int64, limit int) ([]model.Question, error)
}

// Repairer rewrites a single question's projection from canonical data.
type Repairer interface {
	Repair(ctx context.Context, q model.Question) (projector.Outcome, error)
	Remove(ctx context.Context, id string) error
}

// Report counts what one reconciliation pass found and fixed.
type Report struct {
	Repaired int // Missing or drifted documents rewritten
	Missing  int // In the store, absent from the index
	Orphaned int // In the index, absent from the store
	Drifted  int // In both, with different content
}

// Verifier compares the search index against the question store and repairs divergence.
type Verifier struct {
	index     search.Index
	questions QuestionLister
	repairer  Repairer
	pageSize  int
	metrics   *metrics.Collector
}

func NewVerifier(index search.Index, questions QuestionLister, repairer Repairer, m *metrics.Collector) *Verifier {
	return &Verifier{
		index:     index,
		questions: questions,
		repairer:  repairer,
		pageSize:  defaultPageSize,
		metrics:   m,
	}
}

// Reconcile runs one full pass. The index is exported before the store is read,
// so anything deleted in between is seen as orphaned rather than resurrected.
// Per-document failures do not stop the pass; they are joined into the returned error.
func (v *Verifier) Reconcile(ctx context.Context) (report Report, err error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "questions.reconcile",
	})
	sc := logger.StartSpan(ctx, "reconcile.pass")
	defer sc.End()
	ctx = sc.Context()

	start := time.Now()
	defer func() {
		sc.RecordError(err)
		v.metrics.Reconciled(report.Repaired, report.Missing, report.Orphaned, report.Drifted, err)
	}()

	docs, err := v.index.Export(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("exporting index: %w", err)
	}
	indexed := make(map[string]search.Document, len(docs))
	for _, d := range docs {
		indexed[d.ID] = d
	}

	var errs []error
	var afterID int64
	for {
		page, err := v.questions.ListPage(ctx, afterID, v.pageSize)
		if err != nil {
			return report, fmt.Errorf("listing questions after %d: %w", afterID, err)
		}
		for _, q := range page {
			if err := v.check(ctx, q, indexed, &report); err != nil {
				errs = append(errs, err)
			}
		}
		if len(page) < v.pageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	for id := range indexed {
		report.Orphaned++
		if err := v.repairer.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("removing orphan %s: %w", id, err))
		}
	}

	err = errors.Join(errs...)
	slog.InfoContext(ctx, "reconciliation finished",
		"repaired", report.Repaired,
		"missing", report.Missing,
		"orphaned", report.Orphaned,
		"drifted", report.Drifted,
		"failures", len(errs),
		"duration_ms", time.Since(start).Milliseconds())
	return report, err
}

// check compares one stored question with its indexed document and consumes it from indexed.
func (v *Verifier) check(ctx context.Context, q model.Question, indexed map[string]search.Document, report *Report) error {
	id := strconv.FormatInt(q.ID, 10)
	doc, ok := indexed[id]
	delete(indexed, id)

	switch {
	case !ok:
		report.Missing++
	case !doc.Equal(projector.DocumentOf(q)):
		report.Drifted++
	default:
		return nil
	}

	outcome, err := v.repairer.Repair(ctx, q)
	if err != nil {
		return fmt.Errorf("repairing question %s: %w", id, err)
	}
	if outcome != projector.OutcomeSkippedDeleted {
		report.Repaired++
	}
	slog.DebugContext(ctx, "question repaired",
		"question_id", id,
		"indexed", ok,
		"outcome", outcome)
	return nil
}
