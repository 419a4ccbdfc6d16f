package pool

import (
	"context"
	"sync"
)

// barrier is a reusable gate. While raised, waiters block until it is
// lowered. Every raise starts a new generation so a waiter never misses a lower.
type barrier struct {
	mu     sync.Mutex
	raised bool
	gate   chan struct{} // closed while lowered
}

func newBarrier() *barrier {
	gate := make(chan struct{})
	close(gate)
	return &barrier{gate: gate}
}

func (b *barrier) raise() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.raised {
		b.raised = true
		b.gate = make(chan struct{})
	}
}

func (b *barrier) lower() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.raised {
		b.raised = false
		close(b.gate)
	}
}

func (b *barrier) isRaised() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.raised
}

// waiter returns the gate of the current generation
func (b *barrier) waiter() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gate
}

// wait blocks on a gate obtained from waiter
func wait(ctx context.Context, gate <-chan struct{}) error {
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
