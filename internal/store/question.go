package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/model"
)

const questionColumns = `id, title, content, tags, asker_id, asker_name, created_at, updated_at,
	view_count, answer_count, has_accepted_answer, event_seq`

type questionStore struct {
	q db.Querier
}

func newQuestionStore(q db.Querier) QuestionStore {
	return &questionStore{q: q}
}

func (s *questionStore) Create(ctx context.Context, q *model.Question) error {
	if q.Tags == nil {
		q.Tags = []string{}
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO questions (id, title, content, tags, asker_id, asker_name, created_at,
			answer_count, has_accepted_answer, event_seq)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), $8, $9, $10)
		RETURNING `+questionColumns,
		q.ID, q.Title, q.Content, q.Tags, q.Asker.ID, q.Asker.DisplayName, createdAt(q),
		q.AnswerCount, q.HasAcceptedAnswer, q.EventSeq,
	)
	created, err := scanQuestion(row)
	if err != nil {
		return mapErr(err)
	}
	*q = *created
	return nil
}

func (s *questionStore) GetByID(ctx context.Context, id int64) (*model.Question, error) {
	row := s.q.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return q, nil
}

func (s *questionStore) GetForUpdate(ctx context.Context, id int64) (*model.Question, error) {
	row := s.q.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1 FOR UPDATE`, id)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return q, nil
}

// IncrementViewCount bumps the counter in a single statement so concurrent readers never lose a view.
func (s *questionStore) IncrementViewCount(ctx context.Context, id int64) (*model.Question, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE questions SET view_count = view_count + 1
		WHERE id = $1
		RETURNING `+questionColumns, id)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return q, nil
}

func (s *questionStore) List(ctx context.Context, tag *string) ([]model.Question, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+questionColumns+` FROM questions
		WHERE $1::text IS NULL OR $1::text = ANY(tags)
		ORDER BY created_at DESC, id DESC`, tag)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

func (s *questionStore) ListPage(ctx context.Context, afterID int64, limit int) ([]model.Question, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+questionColumns+` FROM questions
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

func (s *questionStore) Update(ctx context.Context, q *model.Question) error {
	if q.Tags == nil {
		q.Tags = []string{}
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE questions
		SET title = $2, content = $3, tags = $4, updated_at = $5,
			answer_count = $6, has_accepted_answer = $7, event_seq = $8
		WHERE id = $1`,
		q.ID, q.Title, q.Content, q.Tags, q.UpdatedAt, q.AnswerCount, q.HasAcceptedAnswer, q.EventSeq,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *questionStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func createdAt(q *model.Question) *time.Time {
	if q.CreatedAt.IsZero() {
		return nil
	}
	return &q.CreatedAt
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	var (
		q         model.Question
		updatedAt *time.Time
	)
	err := row.Scan(
		&q.ID, &q.Title, &q.Content, &q.Tags, &q.Asker.ID, &q.Asker.DisplayName,
		&q.CreatedAt, &updatedAt, &q.ViewCount, &q.AnswerCount, &q.HasAcceptedAnswer, &q.EventSeq,
	)
	if err != nil {
		return nil, err
	}
	q.UpdatedAt = updatedAt
	return &q, nil
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}
