// Package registry owns every live room and orchestrates the session layer:
// create/join/leave, readiness and the game-start countdown, action
// validation and application, disconnect grace periods, and eviction.
//
// Locking model: the registry's RWMutex guards only the code->room map, so
// operations on unrelated rooms never contend. Each room has its own mutex
// held for the duration of validate-then-apply, never across network I/O;
// event batches are collected under the lock and published after release.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/events"
	"github.com/triadgame/server/internal/game/room"
	"github.com/triadgame/server/internal/game/roomcode"
	"github.com/triadgame/server/internal/game/session"
	"github.com/triadgame/server/internal/game/validate"
)

var (
	// ErrRoomNotFound is returned when the room code resolves to nothing.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidName is returned when a player name is empty after sanitization.
	ErrInvalidName = errors.New("invalid player name")
)

// Publisher delivers outbound events to connections. Implemented by the
// transport hub; called only after all registry/room locks are released.
type Publisher interface {
	Publish(evs ...events.Event)
}

// nopPublisher lets the registry run before a transport is attached.
type nopPublisher struct{}

func (nopPublisher) Publish(...events.Event) {}

// RoomSummary is the compact projection used by the admin surface.
type RoomSummary struct {
	Code        string `json:"code"`
	PlayerCount int    `json:"playerCount"`
	State       string `json:"state"`
}

type entry struct {
	mu   sync.Mutex
	room *room.Room
	// evictions holds the pending disconnect-eviction timer per player name.
	evictions map[string]*room.TransitionTimer
	// gone marks an entry removed from the map while someone may still hold it.
	gone bool
}

// Registry is the concurrency-safe owner of all rooms.
type Registry struct {
	cfg       config.GameConfig
	logger    *zap.Logger
	validator *validate.Validator
	tracker   *validate.Tracker
	codes     *roomcode.Generator
	clock     func() time.Time

	pubMu sync.RWMutex
	pub   Publisher

	mu    sync.RWMutex
	rooms map[string]*entry
}

// New creates an empty Registry.
//
// Precondition: logger, validator, and tracker must be non-nil.
func New(cfg config.GameConfig, logger *zap.Logger, validator *validate.Validator, tracker *validate.Tracker) *Registry {
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		validator: validator,
		tracker:   tracker,
		codes:     roomcode.NewGenerator(),
		clock:     time.Now,
		pub:       nopPublisher{},
		rooms:     make(map[string]*entry),
	}
}

// SetPublisher attaches the transport-side event sink.
//
// Precondition: p must be non-nil. Call before serving traffic.
func (r *Registry) SetPublisher(p Publisher) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.pub = p
}

func (r *Registry) publish(evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	r.pubMu.RLock()
	pub := r.pub
	r.pubMu.RUnlock()
	pub.Publish(evs...)
}

func (r *Registry) spawn() session.Vec2 {
	return session.Vec2{X: r.cfg.FieldWidth / 2, Y: r.cfg.FieldHeight / 2}
}

func violationKey(code, name string) string { return code + "/" + name }

// positionalRejection reports whether the rejection invalidates the client's
// predicted position. Attack and interact range rejections leave the player
// where it was, so only movement-style rejections warrant a correction.
func positionalRejection(reason validate.Reason, actionType string) bool {
	switch reason {
	case validate.ReasonSpeedExceeded, validate.ReasonOutOfBounds:
		return true
	case validate.ReasonRangeExceeded:
		return actionType == validate.TypeDash
	default:
		return false
	}
}

// lookup returns the live entry for code.
func (r *Registry) lookup(code string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[code]
	return e, ok
}

// CreateRoom allocates a fresh room with a collision-checked unique code and
// seats the host as its first player.
//
// Postcondition: On success the room is Waiting with exactly one session and
// a roomCreated event has been published to the host connection.
func (r *Registry) CreateRoom(connID, hostName string) (string, error) {
	name := validate.SanitizeIdentifier(hostName)
	if name == "" {
		r.publish([]events.Event{events.ToConn(events.TypeJoinRejected, connID, events.JoinRejectedPayload{Reason: ErrInvalidName.Error()})})
		return "", ErrInvalidName
	}

	now := r.clock()

	r.mu.Lock()
	code, err := r.codes.Generate(func(c string) bool {
		_, taken := r.rooms[c]
		return taken
	})
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("allocating room code: %w", err)
	}

	e := &entry{
		room:      room.New(code, now),
		evictions: make(map[string]*room.TransitionTimer),
	}
	r.rooms[code] = e
	r.mu.Unlock()

	e.mu.Lock()
	host, err := e.room.AddPlayer(connID, name, true, r.spawn(), r.cfg.InputBufferSize, now)
	snap := e.room.Snapshot(true, now)
	e.mu.Unlock()
	if err != nil {
		// A freshly created empty room always seats its host.
		return "", fmt.Errorf("seating host in new room: %w", err)
	}

	r.logger.Info("room created",
		zap.String("room", code),
		zap.String("host", host.Name),
	)
	r.publish([]events.Event{
		events.ToConn(events.TypeRoomCreated, connID, events.RoomCreatedPayload{RoomCode: code, Snapshot: snap}),
	})
	return code, nil
}

// JoinRoom seats a new player in a Waiting room.
//
// Postcondition: On failure only the requesting connection hears about it
// (joinRejected); on success the requester gets roomJoined and the room gets
// playerJoined plus a roomUpdate.
func (r *Registry) JoinRoom(code, connID, playerName string) error {
	name := validate.SanitizeIdentifier(playerName)
	if name == "" {
		r.publish([]events.Event{events.ToConn(events.TypeJoinRejected, connID, events.JoinRejectedPayload{RoomCode: code, Reason: ErrInvalidName.Error()})})
		return ErrInvalidName
	}

	e, ok := r.lookup(code)
	if !ok {
		r.publish([]events.Event{events.ToConn(events.TypeJoinRejected, connID, events.JoinRejectedPayload{RoomCode: code, Reason: ErrRoomNotFound.Error()})})
		return ErrRoomNotFound
	}

	now := r.clock()
	var evs []events.Event

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		r.publish([]events.Event{events.ToConn(events.TypeJoinRejected, connID, events.JoinRejectedPayload{RoomCode: code, Reason: ErrRoomNotFound.Error()})})
		return ErrRoomNotFound
	}
	p, err := e.room.AddPlayer(connID, name, false, r.spawn(), r.cfg.InputBufferSize, now)
	if err == nil {
		snap := e.room.Snapshot(true, now)
		evs = append(evs,
			events.ToConn(events.TypeRoomJoined, connID, events.RoomJoinedPayload{RoomCode: code, Name: p.Name, Snapshot: snap}),
			events.ToRoom(events.TypePlayerJoined, code, events.PlayerPayload{ID: connID, Name: p.Name}),
			events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: snap}),
		)
	}
	e.mu.Unlock()

	if err != nil {
		r.publish([]events.Event{events.ToConn(events.TypeJoinRejected, connID, events.JoinRejectedPayload{RoomCode: code, Reason: err.Error()})})
		return err
	}

	r.logger.Info("player joined",
		zap.String("room", code),
		zap.String("player", name),
	)
	r.publish(evs)
	return nil
}

// SetReady toggles the player's readiness. When the toggle makes the full
// room ready, the game-start countdown is armed; un-readying aborts any
// pending countdown.
func (r *Registry) SetReady(code, connID string, ready bool) error {
	e, ok := r.lookup(code)
	if !ok {
		return ErrRoomNotFound
	}

	now := r.clock()
	var evs []events.Event

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return ErrRoomNotFound
	}
	p, found := e.room.PlayerByConn(connID)
	if !found {
		e.mu.Unlock()
		return room.ErrPlayerNotFound
	}
	if err := e.room.SetReady(p.Name, ready); err != nil {
		e.mu.Unlock()
		return err
	}

	evs = append(evs, events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: e.room.Snapshot(true, now)}))

	if ready && e.room.Phase() == room.Waiting && e.room.AllReady() && !e.room.CountdownPending() {
		e.room.ScheduleCountdown(r.cfg.CountdownDelay, func() { r.countdownFired(code) })
		evs = append(evs, events.ToRoom(events.TypeCountdownStarted, code, events.CountdownPayload{Seconds: r.cfg.CountdownDelay.Seconds()}))
	} else if !ready && e.room.CountdownPending() {
		e.room.CancelCountdown()
		evs = append(evs, events.ToRoom(events.TypeCountdownAborted, code, events.PlayerPayload{ID: connID, Name: p.Name}))
	}
	e.mu.Unlock()

	r.publish(evs)
	return nil
}

// countdownFired runs on the countdown timer goroutine. Readiness is
// re-checked under the room lock; if it no longer holds the transition
// aborts and the room stays Waiting.
func (r *Registry) countdownFired(code string) {
	e, ok := r.lookup(code)
	if !ok {
		return
	}

	now := r.clock()
	var evs []events.Event

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return
	}
	if e.room.CommitStart() {
		snap := e.room.Snapshot(true, now)
		evs = append(evs,
			events.ToRoom(events.TypeGameStart, code, events.GameStartPayload{Level: e.room.CurrentLevel, Players: snap.Players}),
			events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: snap}),
		)
		r.logger.Info("game started", zap.String("room", code))
	} else {
		evs = append(evs, events.ToRoom(events.TypeCountdownAborted, code, events.CountdownPayload{}))
		r.logger.Info("countdown aborted, readiness no longer holds", zap.String("room", code))
	}
	e.mu.Unlock()

	r.publish(evs)
}

// SubmitAction validates and, on acceptance, applies one player action.
// Rejections go back to the acting connection only, paired with a
// stateCorrection for positional rejections; the returned kick flag advises
// the transport to terminate the connection.
func (r *Registry) SubmitAction(code, connID string, act validate.Action) (kick bool, err error) {
	e, ok := r.lookup(code)
	if !ok {
		return false, ErrRoomNotFound
	}

	now := r.clock()
	var evs []events.Event

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return false, ErrRoomNotFound
	}
	p, found := e.room.PlayerByConn(connID)
	if !found {
		// Stale action for a session that is already gone: expected, not fatal.
		e.mu.Unlock()
		return false, nil
	}
	if e.room.Phase() != room.Playing {
		e.mu.Unlock()
		return false, nil
	}

	res := r.validator.Validate(act, p, e.room, now)
	if res.OK {
		a := res.Action
		switch a.Type {
		case validate.TypeMove:
			e.room.ApplyMove(p, session.Vec2{X: a.X, Y: a.Y}, session.Vec2{X: a.VelX, Y: a.VelY}, now)
		case validate.TypeAttack:
			e.room.ApplyAttack(p, now)
		case validate.TypeInteract:
			e.room.ApplyInteract(p, now)
		case validate.TypeDash:
			e.room.ApplyDash(p, session.Vec2{X: a.X, Y: a.Y}, now)
		case validate.TypeUseItem:
			e.room.ApplyUseItem(p, now)
		}
		evs = append(evs, events.ToRoom(events.TypeActionBroadcast, code, events.ActionBroadcastPayload{
			PlayerID:  p.ID,
			Name:      p.Name,
			Action:    a,
			Timestamp: now.UnixMilli(),
		}))
		e.mu.Unlock()
		r.publish(evs)
		return false, nil
	}

	position := p.Position
	name := p.Name
	e.mu.Unlock()

	kick = r.tracker.Record(violationKey(code, name), res.Reason, now)
	evs = append(evs, events.ToConn(events.TypeActionRejected, connID, events.ActionRejectedPayload{
		Reason: string(res.Reason),
		Action: act,
		Kick:   kick,
	}))
	if positionalRejection(res.Reason, act.Type) {
		// Positional rejection: steer the client's prediction back to the
		// authoritative position.
		evs = append(evs, events.ToConn(events.TypeStateCorrection, connID, events.StateCorrectionPayload{
			PlayerID: connID,
			Position: position,
		}))
	}

	r.logger.Debug("action rejected",
		zap.String("room", code),
		zap.String("player", name),
		zap.String("reason", string(res.Reason)),
		zap.Bool("kick", kick),
	)
	r.publish(evs)
	return kick, nil
}

// Ping stamps the session's liveness watermark and answers with a pong.
// Fire-and-forget: loss of pings is not itself a disconnect signal.
func (r *Registry) Ping(code, connID string, timestamp int64) {
	now := r.clock()
	if e, ok := r.lookup(code); ok {
		e.mu.Lock()
		if !e.gone {
			if p, found := e.room.PlayerByConn(connID); found {
				p.LastPingAt = now
			}
		}
		e.mu.Unlock()
	}
	r.publish([]events.Event{events.ToConn(events.TypePong, connID, events.PongPayload{
		Timestamp:  timestamp,
		ServerTime: now.UnixMilli(),
	})})
}

// RequestFullSync sends an immediate full snapshot to one connection,
// outside the broadcast schedule. Used after reconnects and suspected desync.
func (r *Registry) RequestFullSync(code, connID string) error {
	snap, err := r.RoomState(code, true)
	if err != nil {
		return err
	}
	r.publish([]events.Event{events.ToConn(events.TypeFullSync, connID, events.SyncPayload{Snapshot: snap})})
	return nil
}

// RoomState returns a read-only projection of the room.
func (r *Registry) RoomState(code string, full bool) (room.Snapshot, error) {
	e, ok := r.lookup(code)
	if !ok {
		return room.Snapshot{}, ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return room.Snapshot{}, ErrRoomNotFound
	}
	return e.room.Snapshot(full, r.clock()), nil
}

// ListRooms returns a summary of every live room for the admin surface.
func (r *Registry) ListRooms() []RoomSummary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]RoomSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.gone {
			out = append(out, RoomSummary{
				Code:        e.room.Code,
				PlayerCount: e.room.Len(),
				State:       e.room.Phase().String(),
			})
		}
		e.mu.Unlock()
	}
	return out
}

// PlayingSnapshots returns snapshots of every Playing room; the sync
// scheduler broadcasts these on its delta/full ticks.
func (r *Registry) PlayingSnapshots(full bool) []room.Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := r.clock()
	out := make([]room.Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.gone && e.room.Phase() == room.Playing {
			out = append(out, e.room.Snapshot(full, now))
		}
		e.mu.Unlock()
	}
	return out
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ResetViolations clears a player's violation history (administrative reset).
func (r *Registry) ResetViolations(code, name string) {
	r.tracker.Reset(violationKey(code, name))
}
