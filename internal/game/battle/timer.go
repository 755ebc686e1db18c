package battle

import (
	"sync"
	"time"
)

// TurnTimer enforces the per-turn deadline. It fires a callback after a
// configurable duration unless stopped; the session layer wires the
// callback to a forfeit turn for the slow side. Safe for concurrent use.
type TurnTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTurnTimer creates and starts a timer that calls onExpire after
// duration. onExpire runs in a separate goroutine.
//
// Precondition: duration > 0; onExpire must not be nil.
// Postcondition: Returns a running TurnTimer; onExpire will be called
// unless Stop is called first.
func NewTurnTimer(duration time.Duration, onExpire func()) *TurnTimer {
	tt := &TurnTimer{}
	tt.timer = time.AfterFunc(duration, func() {
		tt.mu.Lock()
		stopped := tt.stopped
		tt.mu.Unlock()
		if !stopped {
			onExpire()
		}
	})
	return tt
}

// Reset cancels the current deadline and arms a new one. Called after
// every resolved turn so each side gets a full window.
//
// Precondition: duration > 0; onExpire must not be nil.
// Postcondition: onExpire will be called after duration from now unless
// Stop is called first.
func (tt *TurnTimer) Reset(duration time.Duration, onExpire func()) {
	tt.mu.Lock()
	tt.stopped = false
	tt.timer.Stop()
	tt.mu.Unlock()

	newTimer := time.AfterFunc(duration, func() {
		tt.mu.Lock()
		s := tt.stopped
		tt.mu.Unlock()
		if !s {
			onExpire()
		}
	})

	tt.mu.Lock()
	tt.timer = newTimer
	tt.mu.Unlock()
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onExpire will not be called after Stop returns.
func (tt *TurnTimer) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.stopped = true
	tt.timer.Stop()
}
