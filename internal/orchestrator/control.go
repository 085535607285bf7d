package orchestrator

import (
	"context"
	"maps"
	"slices"

	"github.com/stemsi/exstem-mock/internal/model"
)

// CompleteAudioCheck leaves the audio check for the first section.
func (o *Orchestrator) CompleteAudioCheck(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.current != model.StageAudioCheck {
		return ErrInvalidTransition
	}

	o.current = o.stages[o.index(model.StageAudioCheck)+1]
	o.log.Info().Str("stage", string(o.current)).Msg("Audio check completed")

	o.reportStarted(ctx)
	o.persist(ctx)
	return nil
}

// ForceSubmit ends the exam early. The active section is asked to submit
// what it has; its early-exit signal then moves the mock to RESULTS. During
// the audio check every section is skipped at once. After RESULTS it is a
// no-op.
func (o *Orchestrator) ForceSubmit(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.finished {
		o.mu.Unlock()
		return nil
	}

	if o.current == model.StageAudioCheck {
		o.log.Info().Msg("Early exit during audio check, skipping every section")
		o.skipRemaining()
		o.current = model.StageResults
		o.finished = true
		o.finish(ctx)
		o.mu.Unlock()
		return nil
	}

	stage := o.current
	o.exitRequested = true
	err := o.mailbox.RequestForceSubmit(ctx, stage)
	forward := o.cfg.OnForce
	o.mu.Unlock()

	if err != nil {
		return err
	}
	o.log.Info().Str("stage", string(stage)).Msg("Early exit requested")

	if forward != nil {
		forward(ctx, stage)
	}
	o.Poll(ctx)
	return nil
}

// State returns a copy of the orchestrator state.
func (o *Orchestrator) State() model.MockState {
	o.mu.Lock()
	defer o.mu.Unlock()

	results := make(map[model.Stage]*model.StageOutcome, len(o.results))
	for stage, out := range o.results {
		if out == nil {
			continue
		}
		cp := *out
		if out.Result != nil {
			r := *out.Result
			cp.Result = &r
		}
		results[stage] = &cp
	}

	return model.MockState{
		MockID:       o.cfg.MockID,
		ExamID:       o.cfg.ExamID,
		CurrentStage: o.current,
		Stages:       slices.Clone(o.stages),
		Sections:     maps.Clone(o.sections),
		StageResults: results,
		Finished:     o.finished,
	}
}

// CurrentSection returns the active stage and, when it is a section, the
// section id to mount for it.
func (o *Orchestrator) CurrentSection() (model.Stage, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.sections[o.current]
}

func (o *Orchestrator) MockID() string { return o.cfg.MockID }

func (o *Orchestrator) Finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}
