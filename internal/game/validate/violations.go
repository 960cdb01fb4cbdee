package validate

import (
	"sync"
	"time"
)

// Violation is one rejected action.
type Violation struct {
	Reason Reason
	At     time.Time
}

// Tracker keeps a sliding window of rejected actions per player and advises
// the transport layer when a player has crossed the kick threshold. The
// decision to actually terminate the connection belongs to the caller.
// Safe for concurrent use.
type Tracker struct {
	window    time.Duration
	threshold int

	mu      sync.Mutex
	history map[string][]Violation // "roomCode/name" -> recent rejections
}

// NewTracker creates a Tracker with the given window and kick threshold.
//
// Precondition: window > 0; threshold >= 1.
func NewTracker(window time.Duration, threshold int) *Tracker {
	return &Tracker{
		window:    window,
		threshold: threshold,
		history:   make(map[string][]Violation),
	}
}

// Record appends a rejection for the player and reports whether the pruned
// count within the window has reached the kick threshold.
//
// Postcondition: Entries older than the window are discarded.
func (t *Tracker) Record(key string, reason Reason, now time.Time) (shouldKick bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.prune(t.history[key], now)
	kept = append(kept, Violation{Reason: reason, At: now})
	t.history[key] = kept
	return len(kept) >= t.threshold
}

// Count returns the number of violations currently inside the window.
func (t *Tracker) Count(key string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.prune(t.history[key], now)
	if len(kept) == 0 {
		delete(t.history, key)
	} else {
		t.history[key] = kept
	}
	return len(kept)
}

// Reset clears the player's violation history (administrative reset).
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, key)
}

// Forget drops all bookkeeping for the player; called when the session is deleted.
func (t *Tracker) Forget(key string) {
	t.Reset(key)
}

func (t *Tracker) prune(vs []Violation, now time.Time) []Violation {
	cutoff := now.Add(-t.window)
	kept := vs[:0]
	for _, v := range vs {
		if v.At.After(cutoff) {
			kept = append(kept, v)
		}
	}
	return kept
}
