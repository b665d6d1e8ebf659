/*
Package client implements the synchronizer side of the realtime protocol: a
WebSocket client that reconciles the server's event stream into a consistent
local view and exposes rate-limited mutators for a view layer.

This file contains the outbound position throttle. Intermediate drag positions
are forwarded at most once per window; the latest suppressed value is flushed
when the window reopens, and the terminal value at drag release bypasses the
window entirely so the server always converges on the visible end state.
*/
package client

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"aquahub/internal/app/user"
)

// moveThrottle bounds the rate of outbound position updates while guaranteeing
// that the last value is eventually sent.
type moveThrottle struct {
	limiter  *rate.Limiter
	interval time.Duration
	emit     func(user.Position)

	mu      sync.Mutex
	pending *user.Position
	timer   *time.Timer
}

func newMoveThrottle(interval time.Duration, emit func(user.Position)) *moveThrottle {
	return &moveThrottle{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		emit:     emit,
	}
}

// Send forwards p immediately when the window allows it; otherwise p becomes
// the trailing value, replacing any previous one, and is flushed when the
// window reopens.
func (t *moveThrottle) Send(p user.Position) {
	t.mu.Lock()

	if t.limiter.Allow() {
		t.pending = nil
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.mu.Unlock()

		t.emit(p)
		return
	}

	t.pending = &p
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval, t.flushPending)
	}

	t.mu.Unlock()
}

// flushPending emits the trailing value once the window has reopened.
func (t *moveThrottle) flushPending() {
	t.mu.Lock()
	p := t.pending
	t.pending = nil
	t.timer = nil
	if p != nil {
		// consume the reopened window so the next burst throttles correctly
		t.limiter.Allow()
	}
	t.mu.Unlock()

	if p != nil {
		t.emit(*p)
	}
}

// Flush sends the terminal value immediately, regardless of the window, and
// discards any pending trailing value.
func (t *moveThrottle) Flush(p user.Position) {
	t.mu.Lock()
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.emit(p)
}
