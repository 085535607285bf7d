package clock

import (
	"sync"
	"time"
)

// Manual is a hand-driven time source for deterministic tests and replays.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual returns a time source frozen at start.
func NewManual(start time.Time) *Manual {
	return &Manual{t: start}
}

// Now satisfies the func() time.Time time source.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Advance moves the source forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}
