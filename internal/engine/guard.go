package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Guard is a cooperative termination signal. Once terminated it stays
// terminated. A guard with a deadline terminates itself when polled after
// the deadline has passed.
type Guard struct {
	terminated atomic.Bool
	deadline   time.Time
	now        func() time.Time
}

// NewGuard returns a guard without a deadline.
func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// NewDeadlineGuard returns a guard that terminates timeout after creation.
// A non-positive timeout yields a guard without a deadline.
func NewDeadlineGuard(timeout time.Duration) *Guard {
	g := NewGuard()
	if timeout > 0 {
		g.deadline = g.now().Add(timeout)
	}
	return g
}

// Terminate sets the guard. It is safe to call more than once.
func (g *Guard) Terminate() {
	g.terminated.Store(true)
}

// Terminated polls the guard.
func (g *Guard) Terminated() bool {
	if g.terminated.Load() {
		return true
	}
	if !g.deadline.IsZero() && !g.now().Before(g.deadline) {
		g.terminated.Store(true)
		return true
	}
	return false
}

// Check polls the guard and folds a cancelled ctx into it.
func (g *Guard) Check(ctx context.Context) bool {
	if ctx.Err() != nil {
		g.Terminate()
	}
	return g.Terminated()
}
