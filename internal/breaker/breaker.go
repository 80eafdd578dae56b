// Package breaker isolates the delivery pipeline from a persistently failing
// delivery channel.
//
// A Breaker is closed until its failure count reaches the configured maximum,
// then open for the reset timeout. Once the timeout elapses the breaker closes
// again with a zeroed failure count; there is no separate half-open trial call, the
// next call simply runs and its outcome updates state normally.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultFailMax      = 5
	DefaultResetTimeout = 30 * time.Second
)

// ErrOpen is returned without invoking the wrapped call while the breaker is open.
var ErrOpen = errors.New("circuit open")

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Breaker is safe for concurrent use. The mutex is never held while the
// wrapped call runs.
type Breaker struct {
	mu sync.Mutex

	failMax      int
	resetTimeout time.Duration

	failCount int
	openedAt  time.Time

	now func() time.Time
}

func New(failMax int, resetTimeout time.Duration) *Breaker {
	if failMax < 1 {
		failMax = DefaultFailMax
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}

	return &Breaker{
		failMax:      failMax,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Call runs fn unless the breaker is open. A failed fn increments the failure
// count (opening the breaker at the threshold) and its error is returned as is.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	open := b.isOpenLocked()
	b.mu.Unlock()
	if open {
		return ErrOpen
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}

	b.mu.Lock()
	b.failCount++
	if b.failCount >= b.failMax && b.openedAt.IsZero() {
		b.openedAt = b.now()
	}
	b.mu.Unlock()

	return err
}

// State reports the current state, applying an elapsed reset timeout first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isOpenLocked() {
		return StateOpen
	}
	return StateClosed
}

// Stats is a point-in-time snapshot for health reporting.
type Stats struct {
	State     State      `json:"state"`
	FailCount int        `json:"fail_count"`
	FailMax   int        `json:"fail_max"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	open := b.isOpenLocked()
	stats := Stats{
		State:     StateClosed,
		FailCount: b.failCount,
		FailMax:   b.failMax,
	}
	if open {
		stats.State = StateOpen
		openedAt := b.openedAt
		stats.OpenedAt = &openedAt
	}

	return stats
}

func (b *Breaker) isOpenLocked() bool {
	if b.openedAt.IsZero() {
		return false
	}
	if b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.openedAt = time.Time{}
		b.failCount = 0
		return false
	}
	return true
}
