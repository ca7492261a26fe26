package dto

import (
	"time"

	"overflow.app/questions/internal/search"
)

type SearchHit struct {
	ID                string    `json:"id"`
	Slug              string    `json:"slug"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	Tags              []string  `json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
	AnswerCount       int32     `json:"answer_count"`
	HasAcceptedAnswer bool      `json:"has_accepted_answer"`
}

func ToSearchHits(docs []search.Document) []SearchHit {
	out := make([]SearchHit, len(docs))
	for i, d := range docs {
		tags := d.Tag
		if tags == nil {
			tags = []string{}
		}
		out[i] = SearchHit{
			ID:                d.ID,
			Slug:              slugFor(d.Title, d.ID),
			Title:             d.Title,
			Content:           d.Content,
			Tags:              tags,
			CreatedAt:         time.Unix(d.CreatedAt, 0).UTC(),
			AnswerCount:       d.AnswerCount,
			HasAcceptedAnswer: d.HasAcceptedAnswer,
		}
	}
	return out
}
