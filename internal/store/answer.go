package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/model"
)

const answerColumns = `id, question_id, content, author_id, author_name, accepted, created_at, updated_at`

type answerStore struct {
	q db.Querier
}

func newAnswerStore(q db.Querier) AnswerStore {
	return &answerStore{q: q}
}

func (s *answerStore) Create(ctx context.Context, a *model.Answer) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO answers (id, question_id, content, author_id, author_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+answerColumns,
		a.ID, a.QuestionID, a.Content, a.Author.ID, a.Author.DisplayName,
	)
	created, err := scanAnswer(row)
	if err != nil {
		return mapErr(err)
	}
	*a = *created
	return nil
}

func (s *answerStore) GetByID(ctx context.Context, id int64) (*model.Answer, error) {
	a, err := scanAnswer(s.q.QueryRow(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (s *answerStore) ListByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+answerColumns+` FROM answers
		WHERE question_id = $1
		ORDER BY created_at, id`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *answerStore) CountByQuestion(ctx context.Context, questionID int64) (int32, error) {
	var n int32
	err := s.q.QueryRow(ctx, `SELECT count(*) FROM answers WHERE question_id = $1`, questionID).Scan(&n)
	return n, err
}

func (s *answerStore) CountAccepted(ctx context.Context, questionID int64) (int32, error) {
	var n int32
	err := s.q.QueryRow(ctx, `SELECT count(*) FROM answers WHERE question_id = $1 AND accepted`, questionID).Scan(&n)
	return n, err
}

func (s *answerStore) UpdateContent(ctx context.Context, id int64, content string) error {
	tag, err := s.q.Exec(ctx, `UPDATE answers SET content = $2, updated_at = now() WHERE id = $1`, id, content)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAccepted returns ErrConflict when the question already has an accepted answer.
func (s *answerStore) SetAccepted(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `UPDATE answers SET accepted = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *answerStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM answers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *answerStore) DeleteByQuestion(ctx context.Context, questionID int64) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM answers WHERE question_id = $1`, questionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	var a model.Answer
	err := row.Scan(&a.ID, &a.QuestionID, &a.Content, &a.Author.ID, &a.Author.DisplayName,
		&a.Accepted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
