// Package ledger records a candidate's answers and bookmarks for one section
// and checkpoints them, together with the clock state, to the local store.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/store"
)

// Timing is the clock state captured in every checkpoint.
type Timing struct {
	Remaining time.Duration
	Anchor    time.Time
}

// Ledger maps question keys to opaque answer payloads. It is not safe for
// concurrent use; the owning session serialises access.
type Ledger struct {
	store  store.Store
	key    string
	timing func() Timing
	log    zerolog.Logger

	answers    map[string]json.RawMessage
	bookmarks  map[string]struct{}
	interacted bool
	locked     bool
}

// New creates an empty ledger checkpointed under key. timing is called on
// every save to capture the clock.
func New(s store.Store, key string, timing func() Timing, log zerolog.Logger) *Ledger {
	return &Ledger{
		store:     s,
		key:       key,
		timing:    timing,
		log:       log,
		answers:   make(map[string]json.RawMessage),
		bookmarks: make(map[string]struct{}),
	}
}

// SetAnswer records value for questionKey, last write wins. It reports
// whether the mutation was accepted; a locked ledger silently ignores it.
func (l *Ledger) SetAnswer(ctx context.Context, questionKey string, value json.RawMessage) bool {
	if l.locked || questionKey == "" {
		return false
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		l.log.Debug().Err(err).Str("question_key", questionKey).Msg("Ignoring malformed answer payload")
		return false
	}

	l.answers[questionKey] = json.RawMessage(compact.Bytes())
	l.interacted = true
	_ = l.Save(ctx)
	return true
}

// ToggleBookmark flips questionKey in the bookmark set.
func (l *Ledger) ToggleBookmark(ctx context.Context, questionKey string) bool {
	if l.locked || questionKey == "" {
		return false
	}

	if _, ok := l.bookmarks[questionKey]; ok {
		delete(l.bookmarks, questionKey)
	} else {
		l.bookmarks[questionKey] = struct{}{}
	}

	_ = l.Save(ctx)
	return true
}

// Save writes the full checkpoint. Failures are logged and returned but are
// never fatal: the periodic flush retries.
func (l *Ledger) Save(ctx context.Context) error {
	if l.locked {
		return nil
	}

	b, err := l.Encode()
	if err != nil {
		return err
	}

	if err := l.store.Set(ctx, l.key, string(b)); err != nil {
		l.log.Warn().Err(err).Str("key", l.key).Msg("Progress checkpoint failed, will retry on next flush")
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Encode renders the checkpoint deterministically: identical state always
// yields identical bytes.
func (l *Ledger) Encode() ([]byte, error) {
	t := l.timing()

	var anchorMs int64
	if !t.Anchor.IsZero() {
		anchorMs = t.Anchor.UnixMilli()
	}

	p := model.PersistedProgress{
		Answers:          l.Answers(),
		Bookmarks:        l.Bookmarks(),
		RemainingSeconds: t.Remaining.Seconds(),
		StartedAtEpochMs: anchorMs,
	}

	return json.Marshal(p)
}

// Load reads a previously saved checkpoint into the ledger.
func (l *Ledger) Load(ctx context.Context) (*model.PersistedProgress, bool, error) {
	raw, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, false, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var p model.PersistedProgress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false, fmt.Errorf("decode progress %s: %w", l.key, err)
	}

	l.Replace(p.Answers, p.Bookmarks)
	l.interacted = len(p.Answers) > 0

	return &p, true, nil
}

// Clear deletes the checkpoint.
func (l *Ledger) Clear(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key); err != nil {
		l.log.Warn().Err(err).Str("key", l.key).Msg("Failed to clear progress checkpoint")
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

// Reset drops every answer and bookmark and the interaction flag.
func (l *Ledger) Reset() {
	l.answers = make(map[string]json.RawMessage)
	l.bookmarks = make(map[string]struct{})
	l.interacted = false
}

// Replace swaps the ledger content, e.g. for reviewing a past attempt.
func (l *Ledger) Replace(answers map[string]json.RawMessage, bookmarks []string) {
	l.Reset()
	for k, v := range answers {
		l.answers[k] = v
	}
	for _, b := range bookmarks {
		l.bookmarks[b] = struct{}{}
	}
}

// Lock makes the ledger read-only.
func (l *Ledger) Lock() { l.locked = true }

func (l *Ledger) Unlock() { l.locked = false }

func (l *Ledger) Locked() bool { return l.locked }

// HasInteracted reports whether any answer was recorded.
func (l *Ledger) HasInteracted() bool { return l.interacted }

// Answers returns a copy of the answer map.
func (l *Ledger) Answers() map[string]json.RawMessage {
	return maps.Clone(l.answers)
}

// Bookmarks returns the bookmark set, sorted.
func (l *Ledger) Bookmarks() []string {
	out := slices.Sorted(maps.Keys(l.bookmarks))
	if out == nil {
		out = []string{}
	}
	return out
}

func (l *Ledger) Len() int { return len(l.answers) }
