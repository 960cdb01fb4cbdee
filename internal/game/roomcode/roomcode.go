// Package roomcode generates short join codes for rooms.
package roomcode

import (
	"errors"
	"math/rand/v2"
	"strings"
)

// alphabet deliberately omits 0/O and 1/I to keep codes readable over voice chat.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of characters in a generated room code.
const Length = 6

// ErrExhausted is returned when a unique code cannot be found within the
// attempt budget. With a 32^6 code space this does not happen in practice.
var ErrExhausted = errors.New("room code space exhausted")

const maxAttempts = 10000

// Generator produces room codes from its own random source.
// It is not safe for concurrent use; callers serialize through the registry.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a Generator seeded from the runtime's global source.
func NewGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Generate returns a fresh code that the taken predicate reports as unused.
// Uniqueness is collision-checked against the live room set, not probabilistic.
//
// Precondition: taken must be non-nil.
// Postcondition: Returns a Length-character code for which taken(code) was false.
func (g *Generator) Generate(taken func(string) bool) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		code := g.next()
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) next() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(alphabet[g.rng.IntN(len(alphabet))])
	}
	return b.String()
}
