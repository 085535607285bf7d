// Package registry keeps the live section sessions and mock orchestrators of
// every connected candidate and releases the ones nobody touches anymore.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/orchestrator"
	"github.com/stemsi/exstem-mock/internal/session"
	"github.com/stemsi/exstem-mock/internal/store"
)

var (
	ErrSectionNotMounted = errors.New("section is not mounted")
	ErrMockNotMounted    = errors.New("mock is not mounted")
	ErrStageMismatch     = errors.New("section is not the active stage of the mock")
	ErrMockMismatch      = errors.New("mock is already mounted with a different exam")
)

type Deps struct {
	Store      store.Store
	Content    session.ContentProvider
	Scorer     session.Scorer
	ExamStatus orchestrator.ExamStatusSetter
	Log        zerolog.Logger
}

type Options struct {
	TickInterval       time.Duration
	FlushInterval      time.Duration
	PollInterval       time.Duration
	StartOnFirstAnswer bool
	// IdleTimeout closes instances that were not accessed for this long.
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

type sectionKey struct {
	candidateID int
	mockID      string
	sectionID   string
}

type mockKey struct {
	candidateID int
	mockID      string
}

type sectionEntry struct {
	sess     *session.Session
	lastSeen time.Time
}

type mockEntry struct {
	orch     *orchestrator.Orchestrator
	examID   string
	lastSeen time.Time
}

// Registry owns the background loops of every mounted instance. They run
// on the registry context, not on the request that mounted them.
type Registry struct {
	mu sync.Mutex

	deps Deps
	opts Options
	log  zerolog.Logger

	sections map[sectionKey]*sectionEntry
	mocks    map[mockKey]*mockEntry

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

func New(deps Deps, opts Options) *Registry {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:     deps,
		opts:     opts,
		log:      logger.Component(deps.Log, "registry"),
		sections: make(map[sectionKey]*sectionEntry),
		mocks:    make(map[mockKey]*mockEntry),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs the idle cleanup until Close.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.cleanupLoop()
}

func (r *Registry) cleanupLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup(r.ctx)
		}
	}
}

// candidateStore scopes the shared store to one candidate.
func (r *Registry) candidateStore(candidateID int) store.Store {
	return store.WithPrefix(r.deps.Store, config.CacheKey.CandidateNamespace(candidateID))
}

// MountSection returns the live session of a section, creating it if
// needed. For an orchestrated section an empty stage means the active stage
// of the mock, and any other stage must match it.
func (r *Registry) MountSection(ctx context.Context, candidateID int, sectionID, mockID string, stage model.Stage) (*session.Session, error) {
	key := sectionKey{candidateID, mockID, sectionID}

	if mockID != "" {
		orch, err := r.Mock(candidateID, mockID)
		if err != nil {
			return nil, err
		}
		current, currentSection := orch.CurrentSection()
		if stage == "" {
			stage = current
		}
		if stage != current || currentSection != sectionID {
			return nil, fmt.Errorf("%w: active stage is %s", ErrStageMismatch, current)
		}
	}

	r.mu.Lock()
	e, ok := r.sections[key]
	if ok && !e.sess.Closed() {
		e.lastSeen = r.opts.Now()
	}
	r.mu.Unlock()

	if ok && r.reattach(ctx, e.sess) {
		return e.sess, nil
	}

	sess, err := session.New(ctx, session.Deps{
		Store:   r.candidateStore(candidateID),
		Content: r.deps.Content,
		Scorer:  r.deps.Scorer,
		Log:     r.deps.Log.With().Int("candidate_id", candidateID).Logger(),
	}, session.Options{
		SectionID:          sectionID,
		CandidateID:        candidateID,
		MockID:             mockID,
		Stage:              stage,
		StartOnFirstAnswer: r.opts.StartOnFirstAnswer,
		TickInterval:       r.opts.TickInterval,
		FlushInterval:      r.opts.FlushInterval,
		Now:                r.opts.Now,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another request may have mounted the same section meanwhile.
	if e, ok := r.sections[key]; ok && !e.sess.Closed() {
		_ = sess.Close(ctx)
		e.lastSeen = r.opts.Now()
		return e.sess, nil
	}

	sess.Run(r.ctx)
	r.sections[key] = &sectionEntry{sess: sess, lastSeen: r.opts.Now()}
	return sess, nil
}

// reattach hands a live session to a new mount. A mount means the candidate
// reloaded, so a running countdown is frozen until they resume. It reports
// false when the session closed in the meantime.
func (r *Registry) reattach(ctx context.Context, sess *session.Session) bool {
	return !errors.Is(sess.Pause(ctx), session.ErrClosed)
}

// Section returns a mounted section.
func (r *Registry) Section(candidateID int, sectionID, mockID string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sections[sectionKey{candidateID, mockID, sectionID}]
	if !ok || e.sess.Closed() {
		return nil, ErrSectionNotMounted
	}
	e.lastSeen = r.opts.Now()
	return e.sess, nil
}

// UnmountSection closes a section, checkpointing it if it is still active.
func (r *Registry) UnmountSection(ctx context.Context, candidateID int, sectionID, mockID string) error {
	key := sectionKey{candidateID, mockID, sectionID}

	r.mu.Lock()
	e, ok := r.sections[key]
	delete(r.sections, key)
	r.mu.Unlock()

	if !ok {
		return ErrSectionNotMounted
	}
	return e.sess.Close(ctx)
}

// MountMock returns the live orchestrator of a mock, creating it if needed.
func (r *Registry) MountMock(ctx context.Context, candidateID int, mockID string, req model.MountMockRequest) (*orchestrator.Orchestrator, error) {
	key := mockKey{candidateID, mockID}

	r.mu.Lock()
	if e, ok := r.mocks[key]; ok {
		e.lastSeen = r.opts.Now()
		r.mu.Unlock()
		if e.examID != req.ExamID {
			return nil, ErrMockMismatch
		}
		return e.orch, nil
	}
	r.mu.Unlock()

	orch, err := orchestrator.Mount(ctx, orchestrator.Deps{
		Store:      r.candidateStore(candidateID),
		ExamStatus: r.deps.ExamStatus,
		Log:        r.deps.Log.With().Int("candidate_id", candidateID).Logger(),
	}, orchestrator.Config{
		MockID:       mockID,
		ExamID:       req.ExamID,
		CandidateID:  candidateID,
		Sections:     req.Sections,
		AudioCheck:   req.AudioCheck,
		PollInterval: r.opts.PollInterval,
		OnForce:      r.forwardForceSubmit(candidateID, mockID),
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.mocks[key]; ok {
		_ = orch.Close()
		return e.orch, nil
	}

	orch.Run(r.ctx)
	r.mocks[key] = &mockEntry{orch: orch, examID: req.ExamID, lastSeen: r.opts.Now()}
	return orch, nil
}

// Mock returns a mounted orchestrator.
func (r *Registry) Mock(candidateID int, mockID string) (*orchestrator.Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.mocks[mockKey{candidateID, mockID}]
	if !ok {
		return nil, ErrMockNotMounted
	}
	e.lastSeen = r.opts.Now()
	return e.orch, nil
}

// forwardForceSubmit hands an early exit straight to the mounted section of
// the stage, if there is one. Otherwise the section picks up the broadcast
// when it is next mounted.
func (r *Registry) forwardForceSubmit(candidateID int, mockID string) orchestrator.ForceSubmitFunc {
	return func(ctx context.Context, stage model.Stage) {
		var target *session.Session

		r.mu.Lock()
		for key, e := range r.sections {
			if key.candidateID == candidateID && key.mockID == mockID && e.sess.Stage() == stage {
				target = e.sess
				break
			}
		}
		r.mu.Unlock()

		if target == nil {
			return
		}
		if _, err := target.ForceSubmit(ctx); err != nil && !errors.Is(err, session.ErrSubmissionInFlight) {
			r.log.Warn().Err(err).Str("mock_id", mockID).Str("stage", string(stage)).Msg("Forwarded force submit failed")
		}
	}
}

// Cleanup closes instances that finished or sat idle past the timeout.
func (r *Registry) Cleanup(ctx context.Context) {
	cutoff := r.opts.Now().Add(-r.opts.IdleTimeout)

	var sessions []*session.Session
	var orchs []*orchestrator.Orchestrator

	r.mu.Lock()
	for key, e := range r.sections {
		if e.sess.Closed() || e.lastSeen.Before(cutoff) {
			sessions = append(sessions, e.sess)
			delete(r.sections, key)
		}
	}
	for key, e := range r.mocks {
		if e.lastSeen.Before(cutoff) {
			orchs = append(orchs, e.orch)
			delete(r.mocks, key)
		}
	}
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			r.log.Warn().Err(err).Str("section_id", s.SectionID()).Msg("Checkpoint on idle close failed")
		}
	}
	for _, o := range orchs {
		_ = o.Close()
	}

	if n := len(sessions) + len(orchs); n > 0 {
		r.log.Info().Int("sections", len(sessions)).Int("mocks", len(orchs)).Msg("Released idle instances")
	}
}

// Close stops the cleanup loop and closes every instance, checkpointing the
// active sections.
func (r *Registry) Close(ctx context.Context) error {
	r.cancel()

	r.mu.Lock()
	started := r.started
	sections, mocks := r.sections, r.mocks
	r.sections = make(map[sectionKey]*sectionEntry)
	r.mocks = make(map[mockKey]*mockEntry)
	r.mu.Unlock()

	var errs []error
	for _, e := range sections {
		if err := e.sess.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range mocks {
		_ = e.orch.Close()
	}

	if started {
		<-r.done
	}

	return errors.Join(errs...)
}

// Counts reports how many sections and mocks are mounted.
func (r *Registry) Counts() (sections, mocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sections), len(r.mocks)
}
