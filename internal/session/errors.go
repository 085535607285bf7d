package session

import (
	"errors"

	"github.com/stemsi/exstem-mock/internal/mailbox"
)

var (
	// ErrSubmissionInFlight rejects a submit while another one is outstanding.
	// It is a local guard, not a failure to show the candidate.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrMissingContext means the candidate identity or the content reference
	// is missing, so nothing can be scored.
	ErrMissingContext = errors.New("submission context is incomplete")
	// ErrSubmissionFailed wraps a scoring collaborator failure. The session
	// state is left unchanged and the caller may retry.
	ErrSubmissionFailed = errors.New("submission failed")
	ErrAlreadyCompleted = errors.New("section already completed")
	// ErrAlreadySignaled rejects a submit for a stage whose completion signal
	// has not been consumed yet.
	ErrAlreadySignaled   = mailbox.ErrAlreadySignaled
	ErrInvalidTransition = errors.New("transition not allowed from the current status")
	ErrClosed            = errors.New("section session is closed")
)
