package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/mailbox"
	"github.com/stemsi/exstem-mock/internal/model"
)

// Poll consumes every live completion signal in stage order and advances.
// A consumed signal is gone, so a later poll never advances past the same
// stage twice.
func (o *Orchestrator) Poll(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	if o.finished {
		o.finish(ctx)
		return
	}

	changed := false
	for _, stage := range o.stages {
		if !stage.IsSection() {
			continue
		}

		sig, ok, err := o.mailbox.Consume(ctx, stage)
		if errors.Is(err, mailbox.ErrCorruptSignal) {
			o.log.Warn().Err(err).Str("stage", string(stage)).Msg("Dropped corrupt completion signal")
			continue
		}
		if err != nil {
			o.log.Warn().Err(err).Str("stage", string(stage)).Msg("Mailbox poll failed")
			return
		}
		if !ok {
			continue
		}

		if o.results[stage] != nil {
			o.log.Info().Str("stage", string(stage)).Msg("Discarded signal for a stage that already has an outcome")
			continue
		}

		if o.index(stage) > o.index(o.current) {
			o.log.Info().
				Str("from", string(o.current)).
				Str("to", string(stage)).
				Msg("Signal for an unreached stage, fast-forwarding")
		}

		early := sig.EarlyExit || o.forcePending(ctx, stage)
		kind := model.OutcomeSubmitted
		if early {
			kind = model.OutcomeEarlyExit
		}
		result := sig.Result
		o.results[stage] = &model.StageOutcome{Kind: kind, Result: &result}
		changed = true

		o.log.Info().
			Str("stage", string(stage)).
			Str("attempt_id", result.AttemptID).
			Bool("early_exit", early).
			Msg("Stage completed")

		if early {
			o.skipRemaining()
			o.current = model.StageResults
			break
		}
		if o.index(stage) >= o.index(o.current) {
			o.current = o.stages[o.index(stage)+1]
		}
	}

	o.reportStarted(ctx)

	if o.current == model.StageResults {
		o.finished = true
		o.finish(ctx)
		return
	}
	if changed {
		o.persist(ctx)
	}
}

// forcePending reports whether an early exit was requested for stage. It
// catches a normal submission that raced the force-submit broadcast.
func (o *Orchestrator) forcePending(ctx context.Context, stage model.Stage) bool {
	if o.exitRequested && stage == o.current {
		return true
	}
	pending, err := o.mailbox.ForceSubmitRequested(ctx, stage)
	if err != nil {
		o.log.Warn().Err(err).Msg("Force-submit check failed")
	}
	return pending
}

// skipRemaining records every section without an outcome as skipped.
func (o *Orchestrator) skipRemaining() {
	for _, stage := range o.stages {
		if stage.IsSection() && o.results[stage] == nil {
			o.results[stage] = &model.StageOutcome{Kind: model.OutcomeSkipped}
		}
	}
}

// reportStarted sends the started notice once a section stage is active.
func (o *Orchestrator) reportStarted(ctx context.Context) {
	if o.started || !o.current.IsSection() {
		return
	}
	if err := o.deps.ExamStatus.SetExamStatus(ctx, o.cfg.ExamID, o.cfg.CandidateID, model.ExamStatusStarted); err != nil {
		o.log.Warn().Err(err).Msg("Failed to report exam start, will retry")
		return
	}
	o.started = true
	if err := o.deps.Store.Set(ctx, config.StoreKey.OrchestratorStarted(o.cfg.MockID), "true"); err != nil {
		o.log.Warn().Err(err).Msg("Failed to persist exam start flag")
	}
}

// finish reports completion and then drops every key of the mock. The
// in-memory state stays so repeated calls are no-ops.
func (o *Orchestrator) finish(ctx context.Context) {
	if o.completedSent {
		return
	}

	if err := o.deps.ExamStatus.SetExamStatus(ctx, o.cfg.ExamID, o.cfg.CandidateID, model.ExamStatusCompleted); err != nil {
		o.log.Error().Err(err).Msg("Failed to report exam completion, will retry")
		o.persist(ctx)
		return
	}
	o.completedSent = true

	st := o.deps.Store
	for _, prefix := range []string{
		config.StoreKey.MailboxPrefix(o.cfg.MockID),
		config.StoreKey.ProgressPrefix(o.cfg.MockID),
		config.StoreKey.OrchestratorPrefix(o.cfg.MockID),
	} {
		if err := st.DeletePrefix(ctx, prefix); err != nil {
			o.log.Warn().Err(err).Str("prefix", prefix).Msg("Failed to clear mock state")
		}
	}

	o.log.Info().Msg("Mock finished")
}

// persist writes the current stage and the stage results. Failures are
// logged; the next change writes the full state again.
func (o *Orchestrator) persist(ctx context.Context) {
	b, err := json.Marshal(o.results)
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to encode stage results")
		return
	}

	st := o.deps.Store
	// Results first: a crash in between recovers to an earlier stage, which
	// the recorded outcomes then push forward again.
	if err := st.Set(ctx, config.StoreKey.OrchestratorResults(o.cfg.MockID), string(b)); err != nil {
		o.log.Warn().Err(err).Msg("Failed to persist stage results")
		return
	}
	if err := st.Set(ctx, config.StoreKey.OrchestratorStage(o.cfg.MockID), string(o.current)); err != nil {
		o.log.Warn().Err(err).Msg("Failed to persist current stage")
	}
}
