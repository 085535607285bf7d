// Package orchestrator sequences the stages of a mock exam. It advances only
// on completion signals read from the mailbox, recovers its position after a
// remount and implements the early-exit protocol.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/mailbox"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/store"
)

const DefaultPollInterval = time.Second

var (
	ErrInvalidConfig     = errors.New("invalid mock configuration")
	ErrInvalidTransition = errors.New("transition not allowed from the current stage")
	ErrClosed            = errors.New("orchestrator is closed")
)

// ExamStatusSetter receives the started and completed notices of an exam.
type ExamStatusSetter interface {
	SetExamStatus(ctx context.Context, examID string, candidateID int, status model.ExamStatus) error
}

// ForceSubmitFunc forwards an early exit to a section session mounted in
// the same process, so it does not wait for its next tick.
type ForceSubmitFunc func(ctx context.Context, stage model.Stage)

type Deps struct {
	Store      store.Store
	ExamStatus ExamStatusSetter
	Log        zerolog.Logger
}

type Config struct {
	MockID      string
	ExamID      string
	CandidateID int
	// Sections are the section ids in the order they are taken.
	Sections     []string
	AudioCheck   bool
	PollInterval time.Duration
	Now          func() time.Time
	OnForce      ForceSubmitFunc
}

// Orchestrator owns the stage position of one mock exam.
type Orchestrator struct {
	mu sync.Mutex

	cfg     Config
	deps    Deps
	log     zerolog.Logger
	mailbox *mailbox.Mailbox

	stages   []model.Stage
	sections map[model.Stage]string
	current  model.Stage
	results  map[model.Stage]*model.StageOutcome

	started bool
	// exitRequested survives until the signal of the active stage is read.
	exitRequested bool
	finished      bool
	// completedSent is false while the completed notice still needs a retry.
	completedSent bool

	cancel context.CancelFunc
	group  *errgroup.Group
	closed bool
}

// Mount builds the orchestrator, recovers its stage and polls the mailbox
// once before returning.
func Mount(ctx context.Context, deps Deps, cfg Config) (*Orchestrator, error) {
	if cfg.MockID == "" || cfg.ExamID == "" || len(cfg.Sections) == 0 {
		return nil, ErrInvalidConfig
	}
	if slices.Contains(cfg.Sections, "") {
		return nil, fmt.Errorf("%w: empty section id", ErrInvalidConfig)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		mailbox:  mailbox.New(deps.Store, cfg.MockID, cfg.Now),
		sections: make(map[model.Stage]string, len(cfg.Sections)),
		results:  make(map[model.Stage]*model.StageOutcome),
		log: deps.Log.With().
			Str("component", "mock_orchestrator").
			Str("mock_id", cfg.MockID).
			Str("exam_id", cfg.ExamID).
			Logger(),
	}

	if cfg.AudioCheck {
		o.stages = append(o.stages, model.StageAudioCheck)
	}
	for i, id := range cfg.Sections {
		st := model.SectionStage(i + 1)
		o.stages = append(o.stages, st)
		o.sections[st] = id
	}
	o.stages = append(o.stages, model.StageResults)

	if err := o.recover(ctx); err != nil {
		return nil, err
	}

	o.Poll(ctx)
	return o, nil
}

// recover picks the starting stage: the furthest stage with a live signal,
// then the persisted stage, then the first stage. It never lands on or
// before a stage that already has a recorded outcome.
func (o *Orchestrator) recover(ctx context.Context) error {
	st := o.deps.Store

	if raw, ok, err := st.Get(ctx, config.StoreKey.OrchestratorResults(o.cfg.MockID)); err != nil {
		return fmt.Errorf("load stage results: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &o.results); err != nil {
			o.log.Warn().Err(err).Msg("Discarding unreadable stage results")
			o.results = make(map[model.Stage]*model.StageOutcome)
		}
		for stage := range o.results {
			if o.index(stage) < 0 {
				delete(o.results, stage)
			}
		}
	}

	if v, ok, err := st.Get(ctx, config.StoreKey.OrchestratorStarted(o.cfg.MockID)); err == nil && ok && v == "true" {
		o.started = true
	}

	persisted, hasPersisted, err := st.Get(ctx, config.StoreKey.OrchestratorStage(o.cfg.MockID))
	if err != nil {
		return fmt.Errorf("load current stage: %w", err)
	}

	o.current = o.stages[0]
	source := "first"

	if hasPersisted && o.index(model.Stage(persisted)) >= 0 {
		o.current = model.Stage(persisted)
		source = "persisted"
	}

	for i := len(o.stages) - 1; i >= 0; i-- {
		stage := o.stages[i]
		if !stage.IsSection() {
			continue
		}
		live, err := o.mailbox.Has(ctx, stage)
		if err != nil {
			return fmt.Errorf("check completion signal: %w", err)
		}
		if live {
			o.current = stage
			source = "signal"
			break
		}
	}

	if floor := o.afterLastOutcome(); o.index(o.current) < floor {
		o.current = o.stages[floor]
	}

	if o.current == model.StageResults {
		o.finished = true
	}

	o.log.Info().Str("stage", string(o.current)).Str("source", source).Msg("Mock mounted")
	return nil
}

// Run starts the mailbox poll. It stops on Close or when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	if o.closed || o.cancel != nil {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	o.cancel, o.group = cancel, g
	o.mu.Unlock()

	g.Go(func() error {
		t := time.NewTicker(o.cfg.PollInterval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				o.Poll(ctx)
			}
		}
	})
}

// Close stops the poll and waits for it.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	cancel, g := o.cancel, o.group
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		return g.Wait()
	}
	return nil
}

// index returns the position of stage, or -1.
func (o *Orchestrator) index(stage model.Stage) int {
	return slices.Index(o.stages, stage)
}

// afterLastOutcome is the index just past the furthest stage with an outcome.
func (o *Orchestrator) afterLastOutcome() int {
	floor := 0
	for stage, out := range o.results {
		if out == nil {
			continue
		}
		if i := o.index(stage); i+1 > floor {
			floor = i + 1
		}
	}
	return min(floor, len(o.stages)-1)
}
