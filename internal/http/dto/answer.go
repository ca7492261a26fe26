package dto

import (
	"time"

	"overflow.app/questions/internal/model"
)

type AnswerRequest struct {
	Content string `json:"content"`
}

type AnswerResponse struct {
	ID         int64          `json:"id,string"`
	QuestionID int64          `json:"question_id,string"`
	Content    string         `json:"content"`
	Author     AuthorResponse `json:"author"`
	Accepted   bool           `json:"accepted"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
}

func ToAnswerResponse(a *model.Answer) AnswerResponse {
	return AnswerResponse{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		Content:    a.Content,
		Author:     toAuthor(a.Author),
		Accepted:   a.Accepted,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}
