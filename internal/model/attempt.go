package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Section is a row of the sections table.
type Section struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// SectionQuestionRow is a stored question including its correct answer.
// The answer never leaves the server.
type SectionQuestionRow struct {
	ID            uuid.UUID       `json:"id"`
	SectionID     string          `json:"section_id"`
	Key           string          `json:"question_key"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"-"`
	OrderNum      int             `json:"order_num"`
}

// SectionAttempt is a scored submission.
type SectionAttempt struct {
	ID               uuid.UUID                  `json:"id"`
	SectionID        string                     `json:"section_id"`
	CandidateID      int                        `json:"candidate_id"`
	MockID           *string                    `json:"mock_id"`
	Answers          map[string]json.RawMessage `json:"answers"`
	CorrectCount     int                        `json:"correct_count"`
	TotalCount       int                        `json:"total_count"`
	Score            float64                    `json:"score"`
	TimeTakenSeconds int                        `json:"time_taken_seconds"`
	EarlyExit        bool                       `json:"early_exit"`
	SubmittedAt      time.Time                  `json:"submitted_at"`
}

// ExamStatusEvent travels through the exam-status queue.
type ExamStatusEvent struct {
	ExamID      string     `json:"exam_id"`
	CandidateID int        `json:"candidate_id"`
	Status      ExamStatus `json:"status"`
	At          time.Time  `json:"at"`
}
