package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/clock"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/mailbox"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/session"
	"github.com/stemsi/exstem-mock/internal/store"
)

var (
	stage1 = model.SectionStage(1)
	stage2 = model.SectionStage(2)
	stage3 = model.SectionStage(3)
)

type fakeStatus struct {
	mu       sync.Mutex
	statuses []model.ExamStatus
	fail     int
}

func (f *fakeStatus) SetExamStatus(_ context.Context, _ string, _ int, status model.ExamStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("queue unavailable")
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStatus) Statuses() []model.ExamStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ExamStatus(nil), f.statuses...)
}

type fakeContent struct{}

func (fakeContent) GetSectionContent(_ context.Context, id string) (*model.SectionContent, error) {
	return &model.SectionContent{SectionID: id, DurationSeconds: 600}, nil
}

type fakeScorer struct {
	mu   sync.Mutex
	next int
}

func (f *fakeScorer) ScoreAndPersist(_ context.Context, req model.ScoreRequest) (*model.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return &model.SubmissionResult{
		AttemptID:    fmt.Sprintf("attempt-%d", f.next),
		CorrectCount: len(req.Answers),
		TotalCount:   2,
	}, nil
}

type harness struct {
	t      *testing.T
	store  *store.Memory
	now    *clock.Manual
	status *fakeStatus
	scorer *fakeScorer
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:      t,
		store:  store.NewMemory(),
		now:    clock.NewManual(time.UnixMilli(1_700_000_000_000)),
		status: &fakeStatus{},
		scorer: &fakeScorer{},
	}
}

func (h *harness) config() Config {
	return Config{
		MockID:      "mock-1",
		ExamID:      "exam-9",
		CandidateID: 7,
		Sections:    []string{"listening", "reading", "writing"},
		Now:         h.now.Now,
	}
}

func (h *harness) mount(cfg Config) *Orchestrator {
	h.t.Helper()
	o, err := Mount(context.Background(), Deps{Store: h.store, ExamStatus: h.status, Log: zerolog.Nop()}, cfg)
	if err != nil {
		h.t.Fatalf("Mount() error = %v", err)
	}
	return o
}

func (h *harness) section(stage model.Stage, sectionID string) *session.Session {
	h.t.Helper()
	s, err := session.New(context.Background(), session.Deps{
		Store:   h.store,
		Content: fakeContent{},
		Scorer:  h.scorer,
		Log:     zerolog.Nop(),
	}, session.Options{
		SectionID:   sectionID,
		CandidateID: 7,
		MockID:      "mock-1",
		Stage:       stage,
		Now:         h.now.Now,
	})
	if err != nil {
		h.t.Fatalf("session.New() error = %v", err)
	}
	return s
}

func (h *harness) post(stage model.Stage, attemptID string) {
	h.t.Helper()
	mb := mailbox.New(h.store, "mock-1", h.now.Now)
	err := mb.Post(context.Background(), model.CompletionSignal{
		Stage:  stage,
		Result: model.SubmissionResult{AttemptID: attemptID},
	})
	if err != nil {
		h.t.Fatalf("Post() error = %v", err)
	}
}

func TestForceSubmitDuringSecondSection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var live *session.Session
	cfg := h.config()
	cfg.OnForce = func(ctx context.Context, stage model.Stage) {
		if live != nil && live.Stage() == stage {
			_, _ = live.ForceSubmit(ctx)
		}
	}
	o := h.mount(cfg)

	first := h.section(stage1, "listening")
	first.SetAnswer(ctx, "q1", json.RawMessage(`"A"`))
	if _, err := first.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	o.Poll(ctx)

	stage, sectionID := o.CurrentSection()
	if stage != stage2 || sectionID != "reading" {
		t.Fatalf("current = %s/%s, want SECTION_2/reading", stage, sectionID)
	}

	live = h.section(stage2, "reading")
	if err := o.ForceSubmit(ctx); err != nil {
		t.Fatalf("ForceSubmit() error = %v", err)
	}

	state := o.State()
	want := map[model.Stage]*model.StageOutcome{
		stage1: {Kind: model.OutcomeSubmitted, Result: &model.SubmissionResult{AttemptID: "attempt-1", CorrectCount: 1, TotalCount: 2}},
		stage2: {Kind: model.OutcomeEarlyExit, Result: &model.SubmissionResult{AttemptID: "attempt-2", TotalCount: 2, EarlyExit: true}},
		stage3: {Kind: model.OutcomeSkipped},
	}
	if diff := cmp.Diff(want, state.StageResults); diff != "" {
		t.Errorf("stage results (-want +got):\n%s", diff)
	}
	if state.CurrentStage != model.StageResults || !state.Finished {
		t.Errorf("current = %s finished = %v", state.CurrentStage, state.Finished)
	}
	if diff := cmp.Diff([]model.ExamStatus{model.ExamStatusStarted, model.ExamStatusCompleted}, h.status.Statuses()); diff != "" {
		t.Errorf("exam statuses (-want +got):\n%s", diff)
	}
	if keys := h.store.Keys(); len(keys) != 0 {
		t.Errorf("keys left after RESULTS: %v", keys)
	}

	if err := o.ForceSubmit(ctx); err != nil {
		t.Fatalf("second ForceSubmit() error = %v", err)
	}
	if got := len(h.status.Statuses()); got != 2 {
		t.Errorf("exam status calls = %d after a repeated force submit, want 2", got)
	}
}

func TestForceSubmitPickedUpOnSectionTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.mount(h.config())

	sec := h.section(stage1, "listening")
	if err := o.ForceSubmit(ctx); err != nil {
		t.Fatalf("ForceSubmit() error = %v", err)
	}
	if o.Finished() {
		t.Fatal("finished before the section submitted")
	}

	sec.Tick(ctx)
	o.Poll(ctx)

	state := o.State()
	if state.CurrentStage != model.StageResults {
		t.Fatalf("current = %s, want RESULTS", state.CurrentStage)
	}
	if got := state.StageResults[stage1].Kind; got != model.OutcomeEarlyExit {
		t.Errorf("stage1 outcome = %s", got)
	}
	for _, st := range []model.Stage{stage2, stage3} {
		if out := state.StageResults[st]; out.Kind != model.OutcomeSkipped || out.Result != nil {
			t.Errorf("%s outcome = %+v, want skipped with no result", st, out)
		}
	}
}

func TestNormalSubmitRacingForceSubmitEndsExam(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.mount(h.config())

	mb := mailbox.New(h.store, "mock-1", h.now.Now)
	_ = mb.RequestForceSubmit(ctx, stage1)
	h.post(stage1, "attempt-x")
	o.Poll(ctx)

	if state := o.State(); state.CurrentStage != model.StageResults {
		t.Errorf("current = %s, want RESULTS", state.CurrentStage)
	}
}

func TestConsumedSignalNeverReadvances(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.mount(h.config())

	h.post(stage1, "attempt-1")
	o.Poll(ctx)
	o.Poll(ctx)

	if stage, _ := o.CurrentSection(); stage != stage2 {
		t.Fatalf("current = %s, want SECTION_2", stage)
	}
	if live, _ := mailbox.New(h.store, "mock-1", h.now.Now).Has(ctx, stage1); live {
		t.Error("signal still live after consumption")
	}

	// A stale second signal for the same stage is dropped.
	h.post(stage1, "attempt-9")
	o.Poll(ctx)

	state := o.State()
	if state.CurrentStage != stage2 {
		t.Errorf("current = %s, want SECTION_2", state.CurrentStage)
	}
	if got := state.StageResults[stage1].Result.AttemptID; got != "attempt-1" {
		t.Errorf("stage1 attempt = %s, want attempt-1", got)
	}
}

func TestRecoveryPrefersSignalOverPersistedStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_ = h.store.Set(ctx, config.StoreKey.OrchestratorStage("mock-1"), string(stage1))
	h.post(stage2, "attempt-2")

	o := h.mount(h.config())

	state := o.State()
	if state.CurrentStage != stage3 {
		t.Errorf("current = %s, want SECTION_3", state.CurrentStage)
	}
	if out := state.StageResults[stage2]; out == nil || out.Result.AttemptID != "attempt-2" {
		t.Errorf("stage2 outcome = %+v", out)
	}
}

func TestRecoveryFromPersistedStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	o := h.mount(h.config())
	h.post(stage1, "attempt-1")
	o.Poll(ctx)
	_ = o.Close()

	again := h.mount(h.config())
	state := again.State()
	if state.CurrentStage != stage2 {
		t.Errorf("current = %s, want SECTION_2", state.CurrentStage)
	}
	if out := state.StageResults[stage1]; out == nil || out.Result.AttemptID != "attempt-1" {
		t.Errorf("stage1 outcome = %+v", out)
	}
	if got := len(h.status.Statuses()); got != 1 {
		t.Errorf("started reported %d times, want once", got)
	}
}

func TestRecoveryNeverRegressesBelowOutcome(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	results := `{"SECTION_1":{"kind":"submitted","result":{"attempt_id":"a-1","score":0,"correct_count":0,"total_count":0,"time_taken_seconds":0}}}`
	_ = h.store.Set(ctx, config.StoreKey.OrchestratorResults("mock-1"), results)
	_ = h.store.Set(ctx, config.StoreKey.OrchestratorStage("mock-1"), string(stage1))

	o := h.mount(h.config())
	if stage, _ := o.CurrentSection(); stage != stage2 {
		t.Errorf("current = %s, want SECTION_2", stage)
	}
}

func TestAudioCheck(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := h.config()
	cfg.AudioCheck = true
	o := h.mount(cfg)

	if stage, _ := o.CurrentSection(); stage != model.StageAudioCheck {
		t.Fatalf("current = %s, want AUDIO_CHECK", stage)
	}
	if got := len(h.status.Statuses()); got != 0 {
		t.Errorf("exam reported started during audio check")
	}

	if err := o.CompleteAudioCheck(ctx); err != nil {
		t.Fatalf("CompleteAudioCheck() error = %v", err)
	}
	if stage, id := o.CurrentSection(); stage != stage1 || id != "listening" {
		t.Errorf("current = %s/%s", stage, id)
	}
	if diff := cmp.Diff([]model.ExamStatus{model.ExamStatusStarted}, h.status.Statuses()); diff != "" {
		t.Errorf("exam statuses (-want +got):\n%s", diff)
	}
	if err := o.CompleteAudioCheck(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second CompleteAudioCheck() error = %v", err)
	}
}

func TestForceSubmitDuringAudioCheck(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := h.config()
	cfg.AudioCheck = true
	o := h.mount(cfg)

	if err := o.ForceSubmit(ctx); err != nil {
		t.Fatalf("ForceSubmit() error = %v", err)
	}

	state := o.State()
	if state.CurrentStage != model.StageResults {
		t.Fatalf("current = %s, want RESULTS", state.CurrentStage)
	}
	for _, st := range []model.Stage{stage1, stage2, stage3} {
		if out := state.StageResults[st]; out == nil || out.Kind != model.OutcomeSkipped {
			t.Errorf("%s outcome = %+v, want skipped", st, out)
		}
	}
	if diff := cmp.Diff([]model.ExamStatus{model.ExamStatusCompleted}, h.status.Statuses()); diff != "" {
		t.Errorf("exam statuses (-want +got):\n%s", diff)
	}
}

func TestCompletionReportRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := h.config()
	cfg.Sections = []string{"listening"}
	o := h.mount(cfg)

	h.status.fail = 1
	h.post(stage1, "attempt-1")
	o.Poll(ctx)

	if !o.Finished() {
		t.Fatal("not finished after the last stage")
	}
	if v, ok, _ := h.store.Get(ctx, config.StoreKey.OrchestratorStage("mock-1")); !ok || v != string(model.StageResults) {
		t.Errorf("persisted stage = %q %v, want RESULTS kept until reported", v, ok)
	}

	o.Poll(ctx)
	if diff := cmp.Diff([]model.ExamStatus{model.ExamStatusStarted, model.ExamStatusCompleted}, h.status.Statuses()); diff != "" {
		t.Errorf("exam statuses (-want +got):\n%s", diff)
	}
	if keys := h.store.Keys(); len(keys) != 0 {
		t.Errorf("keys left after completion: %v", keys)
	}
}

func TestMountValidation(t *testing.T) {
	h := newHarness(t)
	deps := Deps{Store: h.store, ExamStatus: h.status, Log: zerolog.Nop()}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no mock id", Config{ExamID: "e", Sections: []string{"a"}}},
		{"no exam id", Config{MockID: "m", Sections: []string{"a"}}},
		{"no sections", Config{MockID: "m", ExamID: "e"}},
		{"blank section", Config{MockID: "m", ExamID: "e", Sections: []string{"a", ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Mount(context.Background(), deps, tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Mount() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRunPollsUntilClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := h.config()
	cfg.PollInterval = time.Millisecond
	o := h.mount(cfg)
	o.Run(ctx)

	h.post(stage1, "attempt-1")

	deadline := time.After(2 * time.Second)
	for {
		if stage, _ := o.CurrentSection(); stage == stage2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poll loop never consumed the signal")
		case <-time.After(time.Millisecond):
		}
	}

	if err := o.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := o.ForceSubmit(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("ForceSubmit() after Close error = %v", err)
	}
}
