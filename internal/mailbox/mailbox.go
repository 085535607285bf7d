// Package mailbox implements the completion protocol between a section and
// the orchestrator of its mock. Neither side holds a reference to the other:
// a section posts a signal into the store, the orchestrator consumes it
// (read once, then delete) whenever it next polls.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/store"
)

const sentinel = "true"

var (
	// ErrAlreadySignaled rejects a second live signal for the same stage.
	ErrAlreadySignaled = errors.New("stage already has a live completion signal")
	// ErrCorruptSignal means a completed sentinel exists without a readable result.
	ErrCorruptSignal = errors.New("completion signal is unreadable")
)

// Mailbox is the per-mock view of the protocol.
type Mailbox struct {
	store  store.Store
	mockID string
	now    func() time.Time
}

// New opens the mailbox of mockID.
func New(s store.Store, mockID string, now func() time.Time) *Mailbox {
	if now == nil {
		now = time.Now
	}
	return &Mailbox{store: s, mockID: mockID, now: now}
}

func (m *Mailbox) MockID() string { return m.mockID }

// Post announces that sig.Stage finished. The result is written before the
// sentinel so a visible sentinel always has a result behind it.
func (m *Mailbox) Post(ctx context.Context, sig model.CompletionSignal) error {
	live, err := m.Has(ctx, sig.Stage)
	if err != nil {
		return err
	}
	if live {
		return ErrAlreadySignaled
	}

	if sig.WrittenAtEpochMs == 0 {
		sig.WrittenAtEpochMs = m.now().UnixMilli()
	}

	b, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	stage := string(sig.Stage)
	if err := m.store.Set(ctx, config.StoreKey.MailboxResult(m.mockID, stage), string(b)); err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	if err := m.store.Set(ctx, config.StoreKey.MailboxCompleted(m.mockID, stage), sentinel); err != nil {
		return fmt.Errorf("post sentinel: %w", err)
	}
	return nil
}

// Has reports whether a live signal exists for stage.
func (m *Mailbox) Has(ctx context.Context, stage model.Stage) (bool, error) {
	v, ok, err := m.store.Get(ctx, config.StoreKey.MailboxCompleted(m.mockID, string(stage)))
	if err != nil {
		return false, fmt.Errorf("read sentinel: %w", err)
	}
	return ok && v == sentinel, nil
}

// Peek reads the signal of stage without consuming it.
func (m *Mailbox) Peek(ctx context.Context, stage model.Stage) (*model.CompletionSignal, bool, error) {
	live, err := m.Has(ctx, stage)
	if err != nil || !live {
		return nil, false, err
	}

	raw, ok, err := m.store.Get(ctx, config.StoreKey.MailboxResult(m.mockID, string(stage)))
	if err != nil {
		return nil, false, fmt.Errorf("read result: %w", err)
	}
	if !ok {
		return nil, true, ErrCorruptSignal
	}

	var sig model.CompletionSignal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrCorruptSignal, err)
	}
	sig.Stage = stage

	return &sig, true, nil
}

// Consume reads the signal of stage and deletes it. A corrupt signal is
// deleted too and reported with ErrCorruptSignal.
func (m *Mailbox) Consume(ctx context.Context, stage model.Stage) (*model.CompletionSignal, bool, error) {
	sig, ok, err := m.Peek(ctx, stage)
	if !ok {
		return nil, false, err
	}

	s := string(stage)
	delErr := m.store.Delete(ctx,
		config.StoreKey.MailboxCompleted(m.mockID, s),
		config.StoreKey.MailboxResult(m.mockID, s),
	)
	if err != nil {
		return nil, false, err
	}
	if delErr != nil {
		return nil, false, fmt.Errorf("consume signal: %w", delErr)
	}

	return sig, true, nil
}

// RequestForceSubmit broadcasts an early exit to whichever section is
// mounted for stage.
func (m *Mailbox) RequestForceSubmit(ctx context.Context, stage model.Stage) error {
	return m.store.Set(ctx, config.StoreKey.MailboxForceSubmit(m.mockID, string(stage)), sentinel)
}

// ForceSubmitRequested reports whether an early exit is pending for stage.
func (m *Mailbox) ForceSubmitRequested(ctx context.Context, stage model.Stage) (bool, error) {
	v, ok, err := m.store.Get(ctx, config.StoreKey.MailboxForceSubmit(m.mockID, string(stage)))
	if err != nil {
		return false, err
	}
	return ok && v == sentinel, nil
}

func (m *Mailbox) ClearForceSubmit(ctx context.Context, stage model.Stage) error {
	return m.store.Delete(ctx, config.StoreKey.MailboxForceSubmit(m.mockID, string(stage)))
}

// Purge drops every mailbox key of the mock.
func (m *Mailbox) Purge(ctx context.Context) error {
	return m.store.DeletePrefix(ctx, config.StoreKey.MailboxPrefix(m.mockID))
}
