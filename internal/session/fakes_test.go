package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/clock"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/store"
)

type fakeContent struct {
	sections map[string]*model.SectionContent
	err      error
}

func (f *fakeContent) GetSectionContent(_ context.Context, sectionID string) (*model.SectionContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.sections[sectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrContentUnavailable, sectionID)
	}
	return c, nil
}

// fakeScorer hands out sequential attempt ids. failures makes the next n
// calls fail; gate, when set, blocks every call until it is closed.
type fakeScorer struct {
	mu       sync.Mutex
	calls    []model.ScoreRequest
	failures int
	gate     chan struct{}
	entered  chan struct{}
	next     int
}

func (f *fakeScorer) ScoreAndPersist(ctx context.Context, req model.ScoreRequest) (*model.SubmissionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate, entered := f.gate, f.entered
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("scoring service unavailable")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return &model.SubmissionResult{
		AttemptID:    fmt.Sprintf("attempt-%d", f.next),
		CorrectCount: len(req.Answers),
		TotalCount:   3,
	}, nil
}

func (f *fakeScorer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeScorer) Last() model.ScoreRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type harness struct {
	t      *testing.T
	store  *store.Memory
	now    *clock.Manual
	scorer *fakeScorer
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := store.NewMemory()
	scorer := &fakeScorer{}
	return &harness{
		t:      t,
		store:  s,
		now:    clock.NewManual(time.UnixMilli(1_700_000_000_000)),
		scorer: scorer,
		deps: Deps{
			Store: s,
			Content: &fakeContent{sections: map[string]*model.SectionContent{
				"reading-1": {SectionID: "reading-1", Title: "Reading", DurationSeconds: 40},
			}},
			Scorer: scorer,
			Log:    zerolog.Nop(),
		},
	}
}

func (h *harness) options() Options {
	return Options{SectionID: "reading-1", CandidateID: 7, Now: h.now.Now}
}

func (h *harness) mount(opts Options) *Session {
	h.t.Helper()
	s, err := New(context.Background(), h.deps, opts)
	if err != nil {
		h.t.Fatalf("New() error = %v", err)
	}
	return s
}

// flakyStore fails writes to keys starting with failOn while failing is set.
type flakyStore struct {
	*store.Memory
	failOn string

	mu      sync.Mutex
	failing bool
}

func (f *flakyStore) SetFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing && strings.HasPrefix(key, f.failOn) {
		return errors.New("store unavailable")
	}
	return f.Memory.Set(ctx, key, value)
}
