// Package room implements the per-room authoritative state machine: membership,
// readiness, phase transitions, and the monotonic state version clients use to
// detect stale snapshots.
package room

import (
	"errors"
	"time"

	"github.com/triadgame/server/internal/game/session"
)

// MaxPlayers is fixed for the lifetime of every room.
const MaxPlayers = 3

var (
	// ErrRoomFull is returned when a join would exceed MaxPlayers.
	ErrRoomFull = errors.New("room full")
	// ErrGameInProgress is returned when joining a room that is no longer waiting.
	ErrGameInProgress = errors.New("game in progress")
	// ErrNameTaken is returned when another session in the room already has the name.
	ErrNameTaken = errors.New("name taken")
	// ErrPlayerNotFound is returned when the named session does not exist.
	ErrPlayerNotFound = errors.New("player not found")
)

// GameObject is a server-tracked object included in full snapshots.
type GameObject struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	Position session.Vec2 `json:"position"`
}

// Room owns an ordered set of player sessions and the room state machine.
//
// Room is not internally synchronized: the registry serializes all access
// through a per-room lock (single-writer model). Sessions never outlive
// their room.
type Room struct {
	Code         string
	CurrentLevel int
	CreatedAt    time.Time

	phase   Phase
	players map[string]*session.PlayerSession // keyed by name
	order   []string                          // names in join order
	version uint64

	gameObjects []GameObject

	// countdown is the pending Waiting->Playing timer, nil when none is scheduled.
	countdown *TransitionTimer
}

// New creates an empty Waiting room with the given code.
//
// Precondition: code must be non-empty.
func New(code string, now time.Time) *Room {
	return &Room{
		Code:      code,
		CreatedAt: now,
		players:   make(map[string]*session.PlayerSession, MaxPlayers),
	}
}

// Phase returns the current lifecycle phase.
func (r *Room) Phase() Phase { return r.phase }

// Version returns the state version. It increases by exactly one per accepted
// mutation and never decreases while the room lives.
func (r *Room) Version() uint64 { return r.version }

func (r *Room) bump() { r.version++ }

// Len returns the number of sessions, connected or not.
func (r *Room) Len() int { return len(r.players) }

// ConnectedCount returns the number of sessions currently connected.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Player returns the session with the given name.
func (r *Room) Player(name string) (*session.PlayerSession, bool) {
	p, ok := r.players[name]
	return p, ok
}

// PlayerByConn returns the session bound to the given connection id.
func (r *Room) PlayerByConn(connID string) (*session.PlayerSession, bool) {
	for _, p := range r.players {
		if p.ID == connID {
			return p, true
		}
	}
	return nil, false
}

// Players returns the sessions in join order.
func (r *Room) Players() []*session.PlayerSession {
	out := make([]*session.PlayerSession, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.players[name])
	}
	return out
}

// AddPlayer appends a new session.
//
// Postcondition: On success the session is connected, not ready, and the
// version is bumped. Fails with ErrRoomFull at MaxPlayers (regardless of
// phase), ErrGameInProgress when the room is not Waiting, or ErrNameTaken on
// a duplicate name (connected or not).
func (r *Room) AddPlayer(connID, name string, isHost bool, spawn session.Vec2, ringSize int, now time.Time) (*session.PlayerSession, error) {
	if len(r.players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	if r.phase != Waiting {
		return nil, ErrGameInProgress
	}
	if _, exists := r.players[name]; exists {
		return nil, ErrNameTaken
	}

	p := session.New(connID, name, isHost, spawn, ringSize, now)
	r.players[name] = p
	r.order = append(r.order, name)
	r.bump()
	return p, nil
}

// RemovePlayer deletes the named session outright.
//
// Postcondition: The session is gone from the room and the version is bumped.
func (r *Room) RemovePlayer(name string) error {
	if _, ok := r.players[name]; !ok {
		return ErrPlayerNotFound
	}
	delete(r.players, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.bump()
	return nil
}

// SetReady toggles the named session's readiness.
func (r *Room) SetReady(name string, ready bool) error {
	p, ok := r.players[name]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Ready = ready
	r.bump()
	return nil
}

// AllReady reports whether the room holds MaxPlayers sessions, all connected
// and all ready - the game-start precondition.
func (r *Room) AllReady() bool {
	if len(r.players) != MaxPlayers {
		return false
	}
	for _, p := range r.players {
		if !p.Connected || !p.Ready {
			return false
		}
	}
	return true
}

// ScheduleCountdown arms the Waiting->Playing countdown. Any previously
// pending countdown is cancelled first. onFire runs on a timer goroutine;
// the caller's closure must re-acquire the room lock and call CommitStart.
func (r *Room) ScheduleCountdown(delay time.Duration, onFire func()) {
	r.CancelCountdown()
	r.countdown = NewTransitionTimer(delay, onFire)
}

// CancelCountdown stops any pending game-start countdown.
func (r *Room) CancelCountdown() {
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
}

// CountdownPending reports whether a game-start countdown is armed.
func (r *Room) CountdownPending() bool { return r.countdown != nil }

// CommitStart performs the Waiting->Playing transition at countdown expiry.
// Readiness is re-checked here: if a player un-readied or dropped during the
// delay, the transition aborts and the room stays Waiting.
//
// Postcondition: Returns true iff the room is now Playing.
func (r *Room) CommitStart() bool {
	r.countdown = nil
	if r.phase != Waiting || !r.AllReady() {
		return false
	}
	r.phase = Playing
	r.bump()
	return true
}

// Pause suspends a Playing room after a connected player drops.
//
// Postcondition: Returns true iff the transition happened.
func (r *Room) Pause() bool {
	if r.phase != Playing {
		return false
	}
	r.phase = Paused
	r.bump()
	return true
}

// Resume returns a Paused room to Playing once every session reports connected.
//
// Postcondition: Returns true iff the transition happened.
func (r *Room) Resume() bool {
	if r.phase != Paused {
		return false
	}
	for _, p := range r.players {
		if !p.Connected {
			return false
		}
	}
	r.phase = Playing
	r.bump()
	return true
}

// End moves the room to its terminal phase. Idempotent.
//
// Postcondition: Returns true iff the room transitioned to Ended by this call.
func (r *Room) End() bool {
	if r.phase == Ended {
		return false
	}
	r.phase = Ended
	r.bump()
	return true
}

// AdvanceLevel bumps the authoritative level marker.
//
// Precondition: The room must be Playing.
func (r *Room) AdvanceLevel() bool {
	if r.phase != Playing {
		return false
	}
	r.CurrentLevel++
	r.bump()
	return true
}

// SetGameObjects replaces the server-tracked object list included in full snapshots.
func (r *Room) SetGameObjects(objs []GameObject) {
	r.gameObjects = objs
	r.bump()
}

// ApplyMove commits an accepted move: position, velocity, action watermark,
// input ring, version.
func (r *Room) ApplyMove(p *session.PlayerSession, pos, vel session.Vec2, now time.Time) {
	p.Position = pos
	p.Velocity = vel
	p.LastActionAt = now
	p.Inputs.Push(session.AcceptedInput{Type: "move", Position: pos, At: now})
	r.bump()
}

// ApplyAttack commits an accepted attack, updating the attack watermark.
func (r *Room) ApplyAttack(p *session.PlayerSession, now time.Time) {
	p.LastAttackAt = now
	p.LastActionAt = now
	p.Inputs.Push(session.AcceptedInput{Type: "attack", Position: p.Position, At: now})
	r.bump()
}

// ApplyInteract commits an accepted interaction.
func (r *Room) ApplyInteract(p *session.PlayerSession, now time.Time) {
	p.LastActionAt = now
	p.Inputs.Push(session.AcceptedInput{Type: "interact", Position: p.Position, At: now})
	r.bump()
}

// ApplyDash commits an accepted dash: the player teleports to the dash target
// and the dash cooldown watermark advances.
func (r *Room) ApplyDash(p *session.PlayerSession, target session.Vec2, now time.Time) {
	p.Position = target
	p.LastDashAt = now
	p.LastActionAt = now
	p.Inputs.Push(session.AcceptedInput{Type: "dash", Position: target, At: now})
	r.bump()
}

// ApplyUseItem commits an accepted item use.
func (r *Room) ApplyUseItem(p *session.PlayerSession, now time.Time) {
	p.LastActionAt = now
	p.Inputs.Push(session.AcceptedInput{Type: "use_item", Position: p.Position, At: now})
	r.bump()
}

// Snapshot is the wire projection of room state. Delta snapshots omit
// PlayerOrder and GameObjects; full snapshots carry both.
type Snapshot struct {
	RoomCode     string             `json:"roomCode"`
	State        string             `json:"state"`
	CurrentLevel int                `json:"currentLevel"`
	StateVersion uint64             `json:"stateVersion"`
	Timestamp    int64              `json:"timestamp"`
	Players      []session.Snapshot `json:"players"`
	PlayerOrder  []string           `json:"playerOrder,omitempty"`
	GameObjects  []GameObject       `json:"gameObjects,omitempty"`
}

// Snapshot projects the room's current state for broadcast.
//
// Postcondition: Players appear in join order; the result shares no mutable
// state with the room.
func (r *Room) Snapshot(full bool, now time.Time) Snapshot {
	snap := Snapshot{
		RoomCode:     r.Code,
		State:        r.phase.String(),
		CurrentLevel: r.CurrentLevel,
		StateVersion: r.version,
		Timestamp:    now.UnixMilli(),
		Players:      make([]session.Snapshot, 0, len(r.order)),
	}
	for _, name := range r.order {
		snap.Players = append(snap.Players, r.players[name].Snapshot())
	}
	if full {
		snap.PlayerOrder = make([]string, 0, len(r.order))
		for _, name := range r.order {
			snap.PlayerOrder = append(snap.PlayerOrder, r.players[name].ID)
		}
		if r.gameObjects != nil {
			snap.GameObjects = make([]GameObject, len(r.gameObjects))
			copy(snap.GameObjects, r.gameObjects)
		} else {
			snap.GameObjects = []GameObject{}
		}
	}
	return snap
}
