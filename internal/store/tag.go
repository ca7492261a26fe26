package store

import (
	"context"

	"overflow.app/questions/core/db"
)

type tagStore struct {
	q db.Querier
}

func newTagStore(q db.Querier) TagStore {
	return &tagStore{q: q}
}

func (s *tagStore) ListSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT slug FROM tags ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}
