package session

import (
	"context"
	"encoding/json"

	"github.com/stemsi/exstem-mock/internal/model"
)

// Start begins the countdown of a section that waits for its first answer.
// It is a no-op when the clock already runs.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.status != model.SectionStatusTaking {
		return ErrInvalidTransition
	}
	if !s.clock.Running() {
		s.clock.Start()
		_ = s.ledger.Save(ctx)
	}
	return nil
}

// Pause freezes the countdown and checkpoints.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	switch s.status {
	case model.SectionStatusPaused:
		return nil
	case model.SectionStatusTaking:
	default:
		return ErrInvalidTransition
	}

	s.clock.Pause()
	s.status = model.SectionStatusPaused
	_ = s.ledger.Save(ctx)
	s.log.Debug().Int("remaining_seconds", s.clock.RemainingSeconds()).Msg("Section paused")
	return nil
}

// Resume continues the countdown from exactly where it was paused or
// restored.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	switch s.status {
	case model.SectionStatusTaking:
		return nil
	case model.SectionStatusPaused:
	default:
		return ErrInvalidTransition
	}

	s.status = model.SectionStatusTaking
	if !s.waitingForFirstAnswer() {
		s.clock.Resume()
	}
	_ = s.ledger.Save(ctx)
	s.log.Debug().Int("remaining_seconds", s.clock.RemainingSeconds()).Msg("Section resumed")
	return nil
}

// SetAnswer records an answer, last write wins. It reports whether the
// answer was accepted; REVIEWING and COMPLETED sections ignore mutations.
func (s *Session) SetAnswer(ctx context.Context, questionKey string, value json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.active() || !json.Valid(value) {
		return false
	}

	if s.status == model.SectionStatusTaking && s.waitingForFirstAnswer() {
		s.clock.Start()
		s.log.Debug().Msg("First answer recorded, countdown started")
	}
	return s.ledger.SetAnswer(ctx, questionKey, value)
}

// ToggleBookmark flips the bookmark of a question.
func (s *Session) ToggleBookmark(ctx context.Context, questionKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.active() {
		return false
	}
	return s.ledger.ToggleBookmark(ctx, questionKey)
}

// Review loads a finished attempt read-only. The clock stops and the
// checkpoint is left untouched.
func (s *Session) Review(record model.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.inFlight {
		return ErrSubmissionInFlight
	}

	s.clock.Stop()
	s.ledger.Replace(record.Answers, record.Bookmarks)
	s.ledger.Lock()

	id := record.AttemptID
	s.attemptID = &id
	s.pastAttempts[id] = struct{}{}
	s.status = model.SectionStatusReviewing
	s.log.Info().Str("attempt_id", id).Msg("Reviewing attempt")
	return nil
}

// Retake starts a fresh attempt of a reviewed or completed section. A
// section inside a mock is taken once; its outcome belongs to the mock.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	if s.opts.MockID != "" {
		return ErrInvalidTransition
	}
	if s.status != model.SectionStatusReviewing && s.status != model.SectionStatusCompleted {
		return ErrInvalidTransition
	}

	s.ledger.Unlock()
	s.ledger.Reset()
	_ = s.ledger.Clear(ctx)

	s.clock.Reset()
	s.attemptID = nil
	s.result = nil
	s.lastErr = nil
	s.expiryHandled = false
	s.status = model.SectionStatusTaking

	if !s.opts.StartOnFirstAnswer {
		s.clock.Start()
	}
	_ = s.ledger.Save(ctx)

	s.log.Info().Msg("Section retake started")
	return nil
}

// Abandon discards the attempt without scoring and closes the session.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrSubmissionInFlight
	}

	s.abandoned = true
	s.clock.Stop()
	s.ledger.Lock()
	err := s.ledger.Clear(ctx)
	s.log.Info().Msg("Section abandoned")
	s.mu.Unlock()

	if cerr := s.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// waitingForFirstAnswer reports whether the countdown is still gated on
// the first answer.
func (s *Session) waitingForFirstAnswer() bool {
	return s.opts.StartOnFirstAnswer && !s.clock.Started() && !s.ledger.HasInteracted()
}
