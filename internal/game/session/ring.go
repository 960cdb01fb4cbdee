package session

import "time"

// AcceptedInput records one input that passed validation.
type AcceptedInput struct {
	Type     string
	Position Vec2
	At       time.Time
}

// InputRing is a fixed-capacity ring of accepted inputs. When full, a push
// overwrites the oldest entry.
type InputRing struct {
	buf   []AcceptedInput
	head  int
	count int
}

// NewInputRing creates a ring holding at most capacity entries.
//
// Precondition: capacity must be >= 1.
func NewInputRing(capacity int) *InputRing {
	if capacity < 1 {
		capacity = 1
	}
	return &InputRing{buf: make([]AcceptedInput, capacity)}
}

// Push appends an input, evicting the oldest entry when the ring is full.
func (r *InputRing) Push(in AcceptedInput) {
	r.buf[r.head] = in
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored inputs.
func (r *InputRing) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *InputRing) Cap() int { return len(r.buf) }

// Recent returns the stored inputs in chronological order (oldest first).
//
// Postcondition: Returns a copy; mutating it does not affect the ring.
func (r *InputRing) Recent() []AcceptedInput {
	out := make([]AcceptedInput, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
