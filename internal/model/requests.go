package model

import "encoding/json"

// MountSectionRequest mounts a section, optionally as a stage of a mock. An
// empty stage means the active stage of the mock.
type MountSectionRequest struct {
	MockID string `json:"mock_id" binding:"omitempty,max=64"`
	Stage  string `json:"stage" binding:"omitempty,stage"`
}

// SetAnswerRequest records one answer. The value is opaque to the engine.
type SetAnswerRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// ReviewRequest opens a stored attempt of the section read-only.
type ReviewRequest struct {
	AttemptID string `json:"attempt_id" binding:"required,uuid"`
}

// MountMockRequest mounts the orchestrator of a multi-section exam.
type MountMockRequest struct {
	ExamID     string   `json:"exam_id" binding:"required,max=64"`
	Sections   []string `json:"sections" binding:"required,min=1,max=8,dive,required,max=64"`
	AudioCheck bool     `json:"audio_check"`
}
