package model

import (
	"fmt"
	"strings"
)

// Stage is one orchestrator step: the audio check, a section, or results.
type Stage string

const (
	StageAudioCheck Stage = "AUDIO_CHECK"
	StageResults    Stage = "RESULTS"
)

// SectionStage returns the stage name of the n-th section (1-based).
func SectionStage(n int) Stage {
	return Stage(fmt.Sprintf("SECTION_%d", n))
}

// IsSection reports whether the stage runs a section.
func (s Stage) IsSection() bool {
	return strings.HasPrefix(string(s), "SECTION_")
}

// OutcomeKind distinguishes how a stage ended.
type OutcomeKind string

const (
	OutcomeSubmitted OutcomeKind = "submitted"
	OutcomeEarlyExit OutcomeKind = "early_exit"
	// OutcomeSkipped marks a stage that was never reached because of an
	// early exit. Its result is always nil.
	OutcomeSkipped OutcomeKind = "skipped"
)

// StageOutcome is the recorded end of a stage.
type StageOutcome struct {
	Kind   OutcomeKind       `json:"kind"`
	Result *SubmissionResult `json:"result"`
}

// CompletionSignal is the message a section leaves in the mailbox when it
// finishes.
type CompletionSignal struct {
	Stage            Stage            `json:"stage"`
	Result           SubmissionResult `json:"result"`
	EarlyExit        bool             `json:"early_exit"`
	WrittenAtEpochMs int64            `json:"written_at_epoch_ms"`
}

// ExamStatus is reported to the exam-status collaborator.
type ExamStatus string

const (
	ExamStatusStarted   ExamStatus = "started"
	ExamStatusCompleted ExamStatus = "completed"
)

// MockState is the read-only view of a mock orchestrator.
type MockState struct {
	MockID       string                  `json:"mock_id"`
	ExamID       string                  `json:"exam_id"`
	CurrentStage Stage                   `json:"current_stage"`
	Stages       []Stage                 `json:"stages"`
	Sections     map[Stage]string        `json:"sections"`
	StageResults map[Stage]*StageOutcome `json:"stage_results"`
	Finished     bool                    `json:"finished"`
}
