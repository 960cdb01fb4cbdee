package room

import (
	"sync"
	"time"
)

// TransitionTimer fires a callback after a configurable duration unless stopped.
// It backs the game-start countdown and the disconnect eviction delay; the
// callback must re-check the condition that scheduled it, since the world may
// have moved on while the timer was pending. It is safe for concurrent use.
type TransitionTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTransitionTimer creates and starts a timer that calls onFire after duration.
// onFire is called in a separate goroutine.
//
// Precondition: duration > 0; onFire must not be nil.
// Postcondition: Returns a running TransitionTimer; onFire will be called unless Stop is called first.
func NewTransitionTimer(duration time.Duration, onFire func()) *TransitionTimer {
	tt := &TransitionTimer{}
	tt.timer = time.AfterFunc(duration, func() {
		tt.mu.Lock()
		stopped := tt.stopped
		tt.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return tt
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire will not be called after Stop returns.
func (tt *TransitionTimer) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.stopped = true
	tt.timer.Stop()
}
