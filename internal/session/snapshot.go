package session

import (
	"github.com/stemsi/exstem-mock/internal/model"
)

// Snapshot renders the current state for the transport layer.
func (s *Session) Snapshot() model.SectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.SectionSnapshot{
		SectionID:        s.opts.SectionID,
		MockID:           s.opts.MockID,
		Stage:            s.opts.Stage,
		Status:           s.status,
		DurationSeconds:  s.content.DurationSeconds,
		RemainingSeconds: s.clock.RemainingSeconds(),
		ClockRunning:     s.clock.Running(),
		Answers:          s.ledger.Answers(),
		Bookmarks:        s.ledger.Bookmarks(),
		Submitting:       s.inFlight,
		Abandoned:        s.abandoned,
	}
	if s.attemptID != nil {
		id := *s.attemptID
		snap.AttemptID = &id
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Session) Status() model.SectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AttemptID is nil until the section is submitted or a review is loaded.
func (s *Session) AttemptID() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attemptID == nil {
		return nil
	}
	id := *s.attemptID
	return &id
}

func (s *Session) SectionID() string { return s.opts.SectionID }

func (s *Session) Stage() model.Stage { return s.opts.Stage }

// Content returns the loaded section content.
func (s *Session) Content() *model.SectionContent { return s.content }

// Closed reports whether the session was closed or abandoned.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
