package config

import "fmt"

// StoreKeyStruct builds the keys of the local persistent store. Keys under one
// mock or section share a prefix so they can be dropped together.
type StoreKeyStruct struct{}

// Progress returns the checkpoint key of a section. Orchestrated sections are
// namespaced by their mock.
func (StoreKeyStruct) Progress(mockID, sectionID string) string {
	if mockID == "" {
		return fmt.Sprintf("progress:%s", sectionID)
	}
	return fmt.Sprintf("progress:%s:%s", mockID, sectionID)
}

// ProgressPrefix matches every checkpoint belonging to a mock.
func (StoreKeyStruct) ProgressPrefix(mockID string) string {
	return fmt.Sprintf("progress:%s:", mockID)
}

// MailboxCompleted is the "true" sentinel announcing a finished stage.
func (StoreKeyStruct) MailboxCompleted(mockID, stage string) string {
	return fmt.Sprintf("mailbox:%s:%s:completed", mockID, stage)
}

// MailboxResult holds the serialized completion signal of a stage.
func (StoreKeyStruct) MailboxResult(mockID, stage string) string {
	return fmt.Sprintf("mailbox:%s:%s:result", mockID, stage)
}

// MailboxForceSubmit is the early-exit broadcast for a stage.
func (StoreKeyStruct) MailboxForceSubmit(mockID, stage string) string {
	return fmt.Sprintf("mailbox:%s:%s:force_submit", mockID, stage)
}

// MailboxPrefix matches every mailbox key of a mock.
func (StoreKeyStruct) MailboxPrefix(mockID string) string {
	return fmt.Sprintf("mailbox:%s:", mockID)
}

func (StoreKeyStruct) OrchestratorStage(mockID string) string {
	return fmt.Sprintf("orchestrator:%s:currentStage", mockID)
}

func (StoreKeyStruct) OrchestratorResults(mockID string) string {
	return fmt.Sprintf("orchestrator:%s:stageResults", mockID)
}

// OrchestratorStarted records that the exam-status collaborator was told
// the exam started.
func (StoreKeyStruct) OrchestratorStarted(mockID string) string {
	return fmt.Sprintf("orchestrator:%s:started", mockID)
}

// OrchestratorPrefix matches every orchestrator key of a mock.
func (StoreKeyStruct) OrchestratorPrefix(mockID string) string {
	return fmt.Sprintf("orchestrator:%s:", mockID)
}

var StoreKey = StoreKeyStruct{}
