package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingQuerier captures statements and answers them with canned results.
type recordingQuerier struct {
	statements []string
	args       [][]any
	execTag    pgconn.CommandTag
	err        error
}

func (r *recordingQuerier) record(sql string, args []any) {
	r.statements = append(r.statements, sql)
	r.args = append(r.args, args)
}

func (r *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.record(sql, args)
	return r.execTag, r.err
}

func (r *recordingQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.record(sql, args)
	if r.err != nil {
		return nil, r.err
	}
	return nil, errors.New("recordingQuerier: no rows configured")
}

func (r *recordingQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.record(sql, args)
	return errRow{err: r.err}
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error {
	if e.err != nil {
		return e.err
	}
	return pgx.ErrNoRows
}

var oneAcceptedViolation = &pgconn.PgError{
	Code:           "23505",
	ConstraintName: "uq_answers_one_accepted",
	Message:        `duplicate key value violates unique constraint "uq_answers_one_accepted"`,
}

var _ = Describe("mapErr", func() {
	DescribeTable("translates driver errors",
		func(in error, want error) {
			Expect(mapErr(in)).To(MatchError(want))
		},
		Entry("no rows", pgx.ErrNoRows, ErrNotFound),
		Entry("wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound),
		Entry("unique violation", oneAcceptedViolation, ErrConflict),
		Entry("wrapped unique violation", fmt.Errorf("exec: %w", oneAcceptedViolation), ErrConflict),
	)

	It("passes nil and unrelated errors through", func() {
		Expect(mapErr(nil)).To(Succeed())

		fk := &pgconn.PgError{Code: "23503"}
		Expect(mapErr(fk)).To(BeIdenticalTo(error(fk)))
	})
})

var _ = Describe("SQL stores", func() {
	var (
		ctx context.Context
		q   *recordingQuerier
		s   *Stores
	)

	BeforeEach(func() {
		ctx = context.Background()
		q = &recordingQuerier{}
		s = NewStores(q)
	})

	Describe("answers", func() {
		It("reports a second accepted answer as a conflict", func() {
			q.err = oneAcceptedViolation
			Expect(s.Answers().SetAccepted(ctx, 9)).To(MatchError(ErrConflict))
			Expect(q.args[0]).To(Equal([]any{int64(9)}))
		})

		It("reports an accept on a missing answer as not found", func() {
			q.execTag = pgconn.NewCommandTag("UPDATE 0")
			Expect(s.Answers().SetAccepted(ctx, 9)).To(MatchError(ErrNotFound))
		})

		It("accepts when one row is updated", func() {
			q.execTag = pgconn.NewCommandTag("UPDATE 1")
			Expect(s.Answers().SetAccepted(ctx, 9)).To(Succeed())
		})

		It("maps a missing answer to not found", func() {
			_, err := s.Answers().GetByID(ctx, 9)
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("questions", func() {
		It("locks the row when loading for update", func() {
			_, err := s.Questions().GetForUpdate(ctx, 42)
			Expect(err).To(MatchError(ErrNotFound))
			Expect(q.statements[0]).To(ContainSubstring("WHERE id = $1 FOR UPDATE"))
			Expect(q.args[0]).To(Equal([]any{int64(42)}))
		})

		It("does not lock on a plain read", func() {
			_, err := s.Questions().GetByID(ctx, 42)
			Expect(err).To(MatchError(ErrNotFound))
			Expect(q.statements[0]).NotTo(ContainSubstring("FOR UPDATE"))
		})
	})

	Describe("outbox", func() {
		It("takes a transaction-scoped advisory lock on the aggregate", func() {
			Expect(s.Outbox().LockAggregate(ctx, 42)).To(Succeed())
			Expect(q.statements[0]).To(Equal(`SELECT pg_advisory_xact_lock($1)`))
			Expect(q.args[0]).To(Equal([]any{int64(42)}))
		})

		It("locks pending rows in sequence order", func() {
			q.err = errors.New("connection reset")
			_, err := s.Outbox().ListPending(ctx, 42)
			Expect(err).To(MatchError("connection reset"))
			Expect(q.statements[0]).To(ContainSubstring("published_at IS NULL"))
			Expect(q.statements[0]).To(MatchRegexp(`ORDER BY sequence\s+FOR UPDATE`))
		})

		It("marks everything through the given sequence", func() {
			Expect(s.Outbox().MarkPublished(ctx, 42, 7)).To(Succeed())
			Expect(q.statements[0]).To(ContainSubstring("sequence <= $2"))
			Expect(q.args[0]).To(Equal([]any{int64(42), int64(7)}))
		})
	})
})
