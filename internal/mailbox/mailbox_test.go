package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/store"
)

var stage1 = model.SectionStage(1)

func fixedNow() time.Time { return time.UnixMilli(1_700_000_000_000) }

func TestPostThenConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mb := New(s, "mock-1", fixedNow)

	sig := model.CompletionSignal{
		Stage:  stage1,
		Result: model.SubmissionResult{AttemptID: "a-1", CorrectCount: 3, TotalCount: 4},
	}
	if err := mb.Post(ctx, sig); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	got, ok, err := mb.Consume(ctx, stage1)
	if err != nil || !ok {
		t.Fatalf("Consume() = %v %v", ok, err)
	}

	sig.WrittenAtEpochMs = fixedNow().UnixMilli()
	if diff := cmp.Diff(&sig, got); diff != "" {
		t.Errorf("signal mismatch (-want +got):\n%s", diff)
	}

	if _, ok, _ := mb.Consume(ctx, stage1); ok {
		t.Error("second Consume() returned the signal again")
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("keys left after consume: %v", keys)
	}
}

func TestSecondPostRejected(t *testing.T) {
	ctx := context.Background()
	mb := New(store.NewMemory(), "mock-1", fixedNow)

	if err := mb.Post(ctx, model.CompletionSignal{Stage: stage1}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if err := mb.Post(ctx, model.CompletionSignal{Stage: stage1}); !errors.Is(err, ErrAlreadySignaled) {
		t.Fatalf("second Post() error = %v, want ErrAlreadySignaled", err)
	}
}

func TestMailboxesAreNamespacedByMock(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	a := New(s, "mock-a", fixedNow)
	b := New(s, "mock-b", fixedNow)

	_ = a.Post(ctx, model.CompletionSignal{Stage: stage1})

	if live, _ := b.Has(ctx, stage1); live {
		t.Fatal("signal leaked across mocks")
	}

	if err := a.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if live, _ := a.Has(ctx, stage1); live {
		t.Fatal("signal survived Purge")
	}
}

func TestCorruptSignalIsDropped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	mb := New(s, "mock-1", fixedNow)

	_ = s.Set(ctx, "mailbox:mock-1:SECTION_1:completed", "true")
	_ = s.Set(ctx, "mailbox:mock-1:SECTION_1:result", "{not json")

	if _, _, err := mb.Consume(ctx, stage1); !errors.Is(err, ErrCorruptSignal) {
		t.Fatalf("Consume() error = %v, want ErrCorruptSignal", err)
	}
	if live, _ := mb.Has(ctx, stage1); live {
		t.Error("corrupt signal left in place")
	}
}

func TestForceSubmitBroadcast(t *testing.T) {
	ctx := context.Background()
	mb := New(store.NewMemory(), "mock-1", fixedNow)
	stage2 := model.SectionStage(2)

	if pending, _ := mb.ForceSubmitRequested(ctx, stage2); pending {
		t.Fatal("force submit pending before any request")
	}

	_ = mb.RequestForceSubmit(ctx, stage2)
	if pending, _ := mb.ForceSubmitRequested(ctx, stage2); !pending {
		t.Fatal("force submit not visible after request")
	}
	if pending, _ := mb.ForceSubmitRequested(ctx, stage1); pending {
		t.Fatal("force submit visible for another stage")
	}

	_ = mb.ClearForceSubmit(ctx, stage2)
	if pending, _ := mb.ForceSubmitRequested(ctx, stage2); pending {
		t.Fatal("force submit still pending after clear")
	}
}
