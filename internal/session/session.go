// Package session runs one timed section: the TAKING/PAUSED/REVIEWING/
// COMPLETED state machine, its checkpointing and the submission pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-mock/internal/clock"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/ledger"
	"github.com/stemsi/exstem-mock/internal/mailbox"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/store"
)

const (
	DefaultTickInterval  = time.Second
	DefaultFlushInterval = 5 * time.Second
	// autoSubmitTimeout bounds submissions started by the clock or by a
	// force-submit broadcast, which outlive the request that mounted us.
	autoSubmitTimeout = 30 * time.Second
)

// ContentProvider loads the duration and questions of a section.
type ContentProvider interface {
	GetSectionContent(ctx context.Context, sectionID string) (*model.SectionContent, error)
}

// Scorer scores a submission and persists the attempt.
type Scorer interface {
	ScoreAndPersist(ctx context.Context, req model.ScoreRequest) (*model.SubmissionResult, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Store   store.Store
	Content ContentProvider
	Scorer  Scorer
	Log     zerolog.Logger
}

// Options identify a section session and tune its schedules.
type Options struct {
	SectionID   string
	CandidateID int
	// MockID and Stage are set when the section runs inside a mock.
	MockID string
	Stage  model.Stage

	StartOnFirstAnswer bool
	TickInterval       time.Duration
	FlushInterval      time.Duration
	Now                func() time.Time
}

// Session is a single timed section. All methods are safe for concurrent
// use; state changes are serialised by one mutex, and the scoring call runs
// outside it so the session stays responsive while a submission is in flight.
type Session struct {
	mu sync.Mutex

	opts    Options
	deps    Deps
	log     zerolog.Logger
	content *model.SectionContent

	status  model.SectionStatus
	clock   *clock.Clock
	ledger  *ledger.Ledger
	mailbox *mailbox.Mailbox

	attemptID    *string
	pastAttempts map[string]struct{}
	result       *model.SubmissionResult
	// pendingSignal is a completion signal whose post failed. Flush and Close
	// retry it, and the checkpoint stays until it is posted.
	pendingSignal *model.CompletionSignal

	inFlight      bool
	expiryHandled bool
	lastErr       error
	abandoned     bool

	cancel context.CancelFunc
	group  *errgroup.Group
	closed bool
}

// New loads the section content and builds the session. If a checkpoint
// exists the session is restored PAUSED; otherwise it enters TAKING.
func New(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	content, err := deps.Content.GetSectionContent(ctx, opts.SectionID)
	if err != nil {
		if !errors.Is(err, model.ErrContentUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrContentUnavailable, err)
		}
		return nil, err
	}
	if content == nil || content.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: section %s has no duration", model.ErrContentUnavailable, opts.SectionID)
	}

	s := &Session{
		opts:         opts,
		deps:         deps,
		content:      content,
		pastAttempts: make(map[string]struct{}),
		clock:        clock.New(time.Duration(content.DurationSeconds)*time.Second, opts.Now),
	}

	logCtx := deps.Log.With().
		Str("component", "section_session").
		Str("section_id", opts.SectionID)
	if opts.MockID != "" {
		logCtx = logCtx.Str("mock_id", opts.MockID).Str("stage", string(opts.Stage))
		s.mailbox = mailbox.New(deps.Store, opts.MockID, opts.Now)
	}
	s.log = logCtx.Logger()

	s.ledger = ledger.New(
		deps.Store,
		config.StoreKey.Progress(opts.MockID, opts.SectionID),
		s.timing,
		s.log,
	)

	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Session) timing() ledger.Timing {
	return ledger.Timing{Remaining: s.clock.Remaining(), Anchor: s.clock.Anchor()}
}

// restore decides the initial status. Called once from New.
func (s *Session) restore(ctx context.Context) error {
	// A live signal means this stage was submitted before the remount and
	// the orchestrator has not consumed it yet.
	if s.mailbox != nil {
		sig, ok, err := s.mailbox.Peek(ctx, s.opts.Stage)
		if err != nil && !errors.Is(err, mailbox.ErrCorruptSignal) {
			return fmt.Errorf("check completion signal: %w", err)
		}
		if ok && sig != nil {
			s.markCompleted(&sig.Result)
			s.log.Info().Str("attempt_id", sig.Result.AttemptID).Msg("Stage already signaled, mounted as completed")
			return nil
		}
	}

	p, ok, err := s.ledger.Load(ctx)
	if err != nil {
		// An unreadable checkpoint must not block the candidate.
		s.log.Warn().Err(err).Msg("Discarding unreadable progress checkpoint")
		_ = s.ledger.Clear(ctx)
		ok = false
	}

	if ok {
		var anchor time.Time
		if p.StartedAtEpochMs > 0 {
			anchor = time.UnixMilli(p.StartedAtEpochMs)
		}
		s.clock.Restore(time.Duration(p.RemainingSeconds*float64(time.Second)), anchor)
		s.status = model.SectionStatusPaused
		s.log.Info().
			Float64("remaining_seconds", p.RemainingSeconds).
			Int("answers", s.ledger.Len()).
			Msg("Progress restored, waiting for resume")
		return nil
	}

	s.status = model.SectionStatusTaking
	if !s.opts.StartOnFirstAnswer {
		s.clock.Start()
	}
	s.log.Info().Int("duration_seconds", s.content.DurationSeconds).Msg("Section started")
	return nil
}

// Run starts the clock tick and the safety-net flush. They stop on Close or
// when ctx is done.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	s.cancel, s.group = cancel, g
	s.mu.Unlock()

	g.Go(func() error { return every(ctx, s.opts.TickInterval, s.Tick) })
	g.Go(func() error {
		return every(ctx, s.opts.FlushInterval, func(ctx context.Context) { _ = s.Flush(ctx) })
	})
}

func every(ctx context.Context, d time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn(ctx)
		}
	}
}

// Close stops the schedules, waits for them, and checkpoints a section that
// is still active. It is the teardown path of every mount and is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		_ = g.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingSignal != nil {
		return s.retrySignal(ctx)
	}
	if s.active() && !s.abandoned {
		return s.ledger.Save(ctx)
	}
	return nil
}

// Tick advances the clock and reacts to expiry and to a pending
// force-submit broadcast.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var submit, earlyExit bool

	if s.mailbox != nil && s.active() && !s.inFlight {
		pending, err := s.mailbox.ForceSubmitRequested(ctx, s.opts.Stage)
		if err != nil {
			s.log.Warn().Err(err).Msg("Force-submit check failed")
		}
		if pending {
			submit, earlyExit = true, true
		}
	}

	if _, expired := s.clock.Tick(); expired && !s.expiryHandled {
		s.expiryHandled = true
		if s.status == model.SectionStatusTaking && !s.inFlight {
			s.log.Info().Msg("Time is up, submitting")
			submit = true
		}
	}
	s.mu.Unlock()

	if !submit {
		return
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), autoSubmitTimeout)
	defer cancel()

	if _, err := s.submit(subCtx, earlyExit); err != nil && !errors.Is(err, ErrSubmissionInFlight) {
		s.log.Error().Err(err).Bool("early_exit", earlyExit).Msg("Automatic submission failed")
	}
}

// Flush re-saves the full checkpoint and retries an unposted completion
// signal.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingSignal != nil {
		return s.retrySignal(ctx)
	}

	if s.closed || !s.active() {
		return nil
	}
	return s.ledger.Save(ctx)
}

// active reports whether answers may still change.
func (s *Session) active() bool {
	return s.status == model.SectionStatusTaking || s.status == model.SectionStatusPaused
}
