package dto

import (
	"strconv"
	"time"

	"overflow.app/questions/common"
	"overflow.app/questions/internal/model"
)

// QuestionRequest is the body of create and update. Field rules are enforced by the service.
type QuestionRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type AuthorResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type QuestionResponse struct {
	ID                int64            `json:"id,string"`
	Slug              string           `json:"slug"`
	Title             string           `json:"title"`
	Content           string           `json:"content"`
	Tags              []string         `json:"tags"`
	Asker             AuthorResponse   `json:"asker"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         *time.Time       `json:"updated_at,omitempty"`
	ViewCount         int64            `json:"view_count"`
	AnswerCount       int32            `json:"answer_count"`
	HasAcceptedAnswer bool             `json:"has_accepted_answer"`
	Answers           []AnswerResponse `json:"answers,omitempty"`
}

func ToQuestionResponse(q *model.Question) QuestionResponse {
	resp := QuestionResponse{
		ID:                q.ID,
		Slug:              slugFor(q.Title, strconv.FormatInt(q.ID, 10)),
		Title:             q.Title,
		Content:           q.Content,
		Tags:              q.Tags,
		Asker:             toAuthor(q.Asker),
		CreatedAt:         q.CreatedAt,
		UpdatedAt:         q.UpdatedAt,
		ViewCount:         q.ViewCount,
		AnswerCount:       q.AnswerCount,
		HasAcceptedAnswer: q.HasAcceptedAnswer,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	for i := range q.Answers {
		resp.Answers = append(resp.Answers, ToAnswerResponse(&q.Answers[i]))
	}
	return resp
}

func ToQuestionList(qs []model.Question) []QuestionResponse {
	out := make([]QuestionResponse, len(qs))
	for i := range qs {
		out[i] = ToQuestionResponse(&qs[i])
	}
	return out
}

func toAuthor(a model.Author) AuthorResponse {
	return AuthorResponse{ID: a.ID, DisplayName: a.DisplayName}
}

func slugFor(title, id string) string {
	slug, err := common.Slugify(title, "question-"+id)
	if err != nil {
		return ""
	}
	return slug
}
