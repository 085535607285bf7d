package model

import (
	"encoding/json"
	"errors"
)

// ErrContentUnavailable is returned when a section's duration or questions
// cannot be loaded. It is fatal to the stage being mounted.
var ErrContentUnavailable = errors.New("section content unavailable")

// SectionStatus enumerates the states of a timed section.
type SectionStatus string

const (
	SectionStatusTaking    SectionStatus = "TAKING"
	SectionStatusPaused    SectionStatus = "PAUSED"
	SectionStatusReviewing SectionStatus = "REVIEWING"
	SectionStatusCompleted SectionStatus = "COMPLETED"
)

// SectionQuestion is a question as handed to the candidate (no answer key).
type SectionQuestion struct {
	Key      string          `json:"key"`
	Prompt   string          `json:"prompt"`
	Options  json.RawMessage `json:"options,omitempty"`
	OrderNum int             `json:"order_num"`
}

// SectionContent is what the content provider returns for a section.
type SectionContent struct {
	SectionID       string            `json:"section_id"`
	Title           string            `json:"title"`
	DurationSeconds int               `json:"duration_seconds"`
	Questions       []SectionQuestion `json:"questions"`
}

// PersistedProgress is the checkpoint written while a section is active.
// RemainingSeconds is fractional so a reload keeps sub-second precision.
type PersistedProgress struct {
	Answers          map[string]json.RawMessage `json:"answers"`
	Bookmarks        []string                   `json:"bookmarks"`
	RemainingSeconds float64                    `json:"remainingSeconds"`
	StartedAtEpochMs int64                      `json:"startedAtEpochMs"`
}

// ScoreRequest is handed to the scoring collaborator on submission.
type ScoreRequest struct {
	SectionID        string                     `json:"section_id"`
	CandidateID      int                        `json:"candidate_id"`
	MockID           string                     `json:"mock_id,omitempty"`
	Answers          map[string]json.RawMessage `json:"answers"`
	TimeTakenSeconds int                        `json:"time_taken_seconds"`
	EarlyExit        bool                       `json:"early_exit"`
}

// SubmissionResult is the outcome of a successful submission.
type SubmissionResult struct {
	AttemptID        string  `json:"attempt_id"`
	Score            float64 `json:"score"`
	CorrectCount     int     `json:"correct_count"`
	TotalCount       int     `json:"total_count"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
	EarlyExit        bool    `json:"early_exit,omitempty"`
}

// ReviewRecord is a historic attempt opened read-only.
type ReviewRecord struct {
	AttemptID string                     `json:"attempt_id"`
	Answers   map[string]json.RawMessage `json:"answers"`
	Bookmarks []string                   `json:"bookmarks,omitempty"`
}

// SectionSnapshot is the read-only view of a section session.
type SectionSnapshot struct {
	SectionID        string                     `json:"section_id"`
	MockID           string                     `json:"mock_id,omitempty"`
	Stage            Stage                      `json:"stage,omitempty"`
	Status           SectionStatus              `json:"status"`
	DurationSeconds  int                        `json:"duration_seconds"`
	RemainingSeconds int                        `json:"remaining_seconds"`
	ClockRunning     bool                       `json:"clock_running"`
	Answers          map[string]json.RawMessage `json:"answers"`
	Bookmarks        []string                   `json:"bookmarks"`
	AttemptID        *string                    `json:"attempt_id"`
	Submitting       bool                       `json:"submitting"`
	LastError        string                     `json:"last_error,omitempty"`
	Result           *SubmissionResult          `json:"result,omitempty"`
	Abandoned        bool                       `json:"abandoned,omitempty"`
}
