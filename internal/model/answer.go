package model

import "time"

type Answer struct {
	ID         int64      `json:"id,string"`
	QuestionID int64      `json:"question_id,string"`
	Content    string     `json:"content"`
	Author     Author     `json:"author"`
	Accepted   bool       `json:"accepted"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}
