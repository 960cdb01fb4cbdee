// Package session tracks the server-authoritative state of one connected player.
package session

import (
	"time"
)

// Vec2 is a 2D position or velocity in play-field pixels.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerSession is the authoritative record for one player in a room.
//
// Identity persists by Name across reconnects; ID is the transport-level
// connection identifier and is rebound when the player reconnects. All
// mutation happens under the owning room's lock.
type PlayerSession struct {
	// ID is the current connection identifier. Reassigned on reconnect.
	ID string
	// Name is unique within the room (case-sensitive) and immutable once joined.
	Name string
	// IsHost marks the room creator. Exactly one per room; never transferred.
	IsHost bool
	// Connected is false while the player is awaiting reconnection.
	Connected bool
	// Ready gates game start.
	Ready bool

	Position Vec2
	Velocity Vec2

	Health    int
	MaxHealth int
	// Alive latches to false exactly once; it is never reset (permadeath).
	Alive bool

	// Watermarks for rate-limit checks, updated only on accepted actions.
	LastActionAt time.Time
	LastAttackAt time.Time
	LastDashAt   time.Time

	// LastPingAt is the most recent ping seen from this connection.
	LastPingAt time.Time

	// DisconnectedAt is zero while connected; it drives the eviction timer.
	DisconnectedAt time.Time

	// Inputs is a bounded ring of recent accepted inputs kept for
	// reconciliation and debugging, not rollback.
	Inputs *InputRing

	JoinedAt time.Time
}

// DefaultMaxHealth is the starting health for every player.
const DefaultMaxHealth = 100

// New creates a connected, not-ready session at the given spawn position.
//
// Precondition: id and name must be non-empty; ringSize must be >= 1.
func New(id, name string, isHost bool, spawn Vec2, ringSize int, now time.Time) *PlayerSession {
	return &PlayerSession{
		ID:        id,
		Name:      name,
		IsHost:    isHost,
		Connected: true,
		Position:  spawn,
		Health:    DefaultMaxHealth,
		MaxHealth: DefaultMaxHealth,
		Alive:     true,
		Inputs:    NewInputRing(ringSize),
		JoinedAt:  now,
	}
}

// ApplyDamage reduces health, clamping at zero. Crossing zero latches
// Alive to false; a dead session never revives.
//
// Precondition: amount must be >= 0.
// Postcondition: Health >= 0; Alive never transitions false to true.
func (p *PlayerSession) ApplyDamage(amount int) {
	if !p.Alive || amount <= 0 {
		return
	}
	p.Health -= amount
	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
	}
}

// MarkDisconnected flags the session as awaiting reconnection.
//
// Postcondition: Connected is false and DisconnectedAt is set to now.
func (p *PlayerSession) MarkDisconnected(now time.Time) {
	p.Connected = false
	p.DisconnectedAt = now
}

// MarkReconnected restores the session under a new connection identifier.
// The session object itself survives: name, health, and alive state are untouched.
//
// Precondition: newID must be non-empty.
// Postcondition: Connected is true and DisconnectedAt is zero.
func (p *PlayerSession) MarkReconnected(newID string) {
	p.ID = newID
	p.Connected = true
	p.DisconnectedAt = time.Time{}
}

// Snapshot is the wire projection of a session used in sync broadcasts.
type Snapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Position  Vec2   `json:"position"`
	Velocity  Vec2   `json:"velocity"`
	Health    int    `json:"health"`
	IsAlive   bool   `json:"isAlive"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	IsHost    bool   `json:"isHost"`
}

// Snapshot returns the wire projection of the session's current state.
func (p *PlayerSession) Snapshot() Snapshot {
	return Snapshot{
		ID:        p.ID,
		Name:      p.Name,
		Position:  p.Position,
		Velocity:  p.Velocity,
		Health:    p.Health,
		IsAlive:   p.Alive,
		Connected: p.Connected,
		Ready:     p.Ready,
		IsHost:    p.IsHost,
	}
}
