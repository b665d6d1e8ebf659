package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aquahub/internal/app/user"
)

// positionRecorder collects emitted positions for assertion.
type positionRecorder struct {
	mu   sync.Mutex
	sent []user.Position
}

func (r *positionRecorder) emit(p user.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
}

func (r *positionRecorder) snapshot() []user.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]user.Position, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestMoveThrottle_FirstSendGoesOutImmediately(t *testing.T) {
	// Given a fresh throttle
	rec := &positionRecorder{}
	throttle := newMoveThrottle(100*time.Millisecond, rec.emit)

	// When the first position is sent
	throttle.Send(user.Position{X: 10, Y: 20})

	// Then it is emitted without waiting for any window
	require.Equal(t, []user.Position{{X: 10, Y: 20}}, rec.snapshot())
}

func TestMoveThrottle_BurstKeepsOnlyTheTrailingValue(t *testing.T) {
	req := require.New(t)

	// Given a throttle with a generous window
	rec := &positionRecorder{}
	throttle := newMoveThrottle(100*time.Millisecond, rec.emit)

	// When a burst of positions arrives inside one window
	throttle.Send(user.Position{X: 1, Y: 1})
	throttle.Send(user.Position{X: 2, Y: 2})
	throttle.Send(user.Position{X: 3, Y: 3})
	throttle.Send(user.Position{X: 4, Y: 4})

	// Then only the first goes out immediately
	req.Equal([]user.Position{{X: 1, Y: 1}}, rec.snapshot())

	// And the last suppressed value is flushed once the window reopens
	req.Eventually(func() bool {
		sent := rec.snapshot()
		return len(sent) == 2 && sent[1] == (user.Position{X: 4, Y: 4})
	}, time.Second, 10*time.Millisecond)

	// And the intermediate values never surface
	time.Sleep(150 * time.Millisecond)
	req.Len(rec.snapshot(), 2)
}

func TestMoveThrottle_FlushBypassesTheWindow(t *testing.T) {
	req := require.New(t)

	// Given a throttle mid-burst with a pending trailing value
	rec := &positionRecorder{}
	throttle := newMoveThrottle(200*time.Millisecond, rec.emit)
	throttle.Send(user.Position{X: 1, Y: 1})
	throttle.Send(user.Position{X: 2, Y: 2})

	// When the terminal value is flushed inside the window
	throttle.Flush(user.Position{X: 9, Y: 9})

	// Then it goes out immediately
	req.Equal([]user.Position{{X: 1, Y: 1}, {X: 9, Y: 9}}, rec.snapshot())

	// And the pending trailing value is discarded for good
	time.Sleep(300 * time.Millisecond)
	req.Equal([]user.Position{{X: 1, Y: 1}, {X: 9, Y: 9}}, rec.snapshot())
}

func TestMoveThrottle_WindowReopensAfterTrailingFlush(t *testing.T) {
	req := require.New(t)

	// Given a throttle whose trailing flush already consumed the reopened window
	rec := &positionRecorder{}
	throttle := newMoveThrottle(100*time.Millisecond, rec.emit)
	throttle.Send(user.Position{X: 1, Y: 1})
	throttle.Send(user.Position{X: 2, Y: 2})

	req.Eventually(func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	// When a later position arrives well after the flush
	time.Sleep(150 * time.Millisecond)
	throttle.Send(user.Position{X: 3, Y: 3})

	// Then it passes through immediately
	sent := rec.snapshot()
	req.Len(sent, 3)
	req.Equal(user.Position{X: 3, Y: 3}, sent[2])
}
