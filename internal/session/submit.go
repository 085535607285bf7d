package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-mock/internal/model"
)

// Finish submits the section on the candidate's request.
func (s *Session) Finish(ctx context.Context) (*model.SubmissionResult, error) {
	return s.submit(ctx, false)
}

// ForceSubmit submits the section as an early exit. The result is flagged
// so the orchestrator can skip the remaining stages.
func (s *Session) ForceSubmit(ctx context.Context) (*model.SubmissionResult, error) {
	return s.submit(ctx, true)
}

// submit is the one path to COMPLETED. On scorer failure the status, the
// answers and the checkpoint are left exactly as they were.
func (s *Session) submit(ctx context.Context, earlyExit bool) (*model.SubmissionResult, error) {
	req, err := s.beginSubmit(ctx, earlyExit)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("answers", len(req.Answers)).
		Int("time_taken_seconds", req.TimeTakenSeconds).
		Bool("early_exit", earlyExit).
		Msg("Submitting section")

	res, scoreErr := s.deps.Scorer.ScoreAndPersist(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if scoreErr == nil && res == nil {
		scoreErr = errors.New("scorer returned no result")
	}
	if scoreErr == nil && res.AttemptID == "" {
		scoreErr = errors.New("scorer returned no attempt id")
	}
	if scoreErr == nil {
		if _, seen := s.pastAttempts[res.AttemptID]; seen {
			scoreErr = fmt.Errorf("scorer reused attempt id %s", res.AttemptID)
		}
	}
	if scoreErr != nil {
		s.lastErr = scoreErr
		s.log.Warn().Err(scoreErr).Msg("Submission failed, section unchanged")
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, scoreErr)
	}

	out := *res
	out.TimeTakenSeconds = req.TimeTakenSeconds
	out.EarlyExit = earlyExit

	s.markCompleted(&out)

	if s.mailbox != nil {
		s.postSignal(ctx, model.CompletionSignal{
			Stage:     s.opts.Stage,
			Result:    out,
			EarlyExit: earlyExit,
		})
		if earlyExit {
			_ = s.mailbox.ClearForceSubmit(ctx, s.opts.Stage)
		}
	}
	if s.pendingSignal == nil {
		_ = s.ledger.Clear(ctx)
	}

	s.log.Info().
		Str("attempt_id", out.AttemptID).
		Float64("score", out.Score).
		Msg("Section submitted")

	result := out
	return &result, nil
}

// beginSubmit validates the request and marks the submission in flight.
func (s *Session) beginSubmit(ctx context.Context, earlyExit bool) (model.ScoreRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return model.ScoreRequest{}, ErrClosed
	case s.inFlight:
		return model.ScoreRequest{}, ErrSubmissionInFlight
	case s.status == model.SectionStatusCompleted:
		return model.ScoreRequest{}, ErrAlreadyCompleted
	case s.status == model.SectionStatusReviewing:
		return model.ScoreRequest{}, ErrInvalidTransition
	case s.opts.CandidateID <= 0 || s.opts.SectionID == "" || s.content == nil:
		return model.ScoreRequest{}, ErrMissingContext
	}

	if s.mailbox != nil {
		live, err := s.mailbox.Has(ctx, s.opts.Stage)
		if err != nil {
			return model.ScoreRequest{}, fmt.Errorf("check completion signal: %w", err)
		}
		if live {
			return model.ScoreRequest{}, ErrAlreadySignaled
		}
	}

	s.inFlight = true
	s.lastErr = nil

	return model.ScoreRequest{
		SectionID:        s.opts.SectionID,
		CandidateID:      s.opts.CandidateID,
		MockID:           s.opts.MockID,
		Answers:          s.ledger.Answers(),
		TimeTakenSeconds: s.clock.ElapsedSeconds(),
		EarlyExit:        earlyExit,
	}, nil
}

// markCompleted moves to COMPLETED. Caller holds the lock.
func (s *Session) markCompleted(res *model.SubmissionResult) {
	s.clock.Stop()
	s.ledger.Lock()
	s.status = model.SectionStatusCompleted
	s.result = res

	id := res.AttemptID
	s.attemptID = &id
	s.pastAttempts[id] = struct{}{}
}

// postSignal writes the completion signal, keeping it for a retry on the
// next flush if the store is unavailable. Caller holds the lock.
func (s *Session) postSignal(ctx context.Context, sig model.CompletionSignal) error {
	err := s.mailbox.Post(ctx, sig)
	switch {
	case err == nil, errors.Is(err, ErrAlreadySignaled):
		s.pendingSignal = nil
		return nil
	default:
		s.pendingSignal = &sig
		s.log.Error().Err(err).Msg("Failed to post completion signal, will retry")
		return err
	}
}

// retrySignal posts a pending completion signal and drops the checkpoint
// once the signal is out. Caller holds the lock.
func (s *Session) retrySignal(ctx context.Context) error {
	if s.pendingSignal == nil {
		return nil
	}
	if err := s.postSignal(ctx, *s.pendingSignal); err != nil {
		return fmt.Errorf("post completion signal: %w", err)
	}
	s.log.Info().Msg("Pending completion signal posted")
	return s.ledger.Clear(ctx)
}
