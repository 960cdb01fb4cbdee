package registry

import (
	"go.uber.org/zap"

	"github.com/triadgame/server/internal/game/events"
	"github.com/triadgame/server/internal/game/room"
	"github.com/triadgame/server/internal/game/validate"
)

// Disconnect marks the player's session as awaiting reconnection and arms the
// delayed eviction timer. A Playing room pauses; a Waiting room's pending
// countdown is aborted. The session itself is retained for the grace period.
//
// Stale disconnects for unknown rooms or sessions are no-ops.
func (r *Registry) Disconnect(code, connID string) {
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
	p, found := e.room.PlayerByConn(connID)
	if !found || !p.Connected {
		e.mu.Unlock()
		return
	}

	p.MarkDisconnected(now)
	name := p.Name
	evs = append(evs, events.ToRoom(events.TypePlayerDisconnected, code, events.PlayerPayload{ID: connID, Name: name}))

	if e.room.CountdownPending() {
		e.room.CancelCountdown()
		evs = append(evs, events.ToRoom(events.TypeCountdownAborted, code, events.PlayerPayload{ID: connID, Name: name}))
	}
	if e.room.Pause() {
		evs = append(evs, events.ToRoom(events.TypeGamePaused, code, events.GamePausedPayload{Reason: name + " disconnected"}))
	}

	// Arm the cancellable eviction timer, replacing any stale one.
	if t, exists := e.evictions[name]; exists {
		t.Stop()
	}
	e.evictions[name] = room.NewTransitionTimer(r.cfg.EvictionTimeout, func() { r.evictionFired(code, name) })

	evs = append(evs, events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: e.room.Snapshot(true, now)}))
	e.mu.Unlock()

	r.logger.Info("player disconnected",
		zap.String("room", code),
		zap.String("player", name),
		zap.Duration("eviction_in", r.cfg.EvictionTimeout),
	)
	r.publish(evs)
}

// Rejoin restores a disconnected session under a new connection id. The same
// session object survives: name, health, and alive state are untouched. The
// pending eviction timer is cancelled; a Paused room resumes once every
// session is connected again.
func (r *Registry) Rejoin(code, connID, playerName string) error {
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
	p, found := e.room.Player(name)
	if !found || p.Connected {
		e.mu.Unlock()
		r.publish([]events.Event{events.ToConn(events.TypeJoinRejected, connID, events.JoinRejectedPayload{RoomCode: code, Reason: room.ErrPlayerNotFound.Error()})})
		return room.ErrPlayerNotFound
	}

	if t, exists := e.evictions[name]; exists {
		t.Stop()
		delete(e.evictions, name)
	}

	p.MarkReconnected(connID)
	snap := e.room.Snapshot(true, now)
	evs = append(evs,
		events.ToConn(events.TypeRoomJoined, connID, events.RoomJoinedPayload{RoomCode: code, Name: name, Snapshot: snap}),
		events.ToRoom(events.TypePlayerReconnected, code, events.PlayerPayload{ID: connID, Name: name}),
	)
	if e.room.Resume() {
		evs = append(evs, events.ToRoom(events.TypeGameResumed, code, events.GameResumedPayload{Reason: name + " reconnected"}))
	}
	evs = append(evs, events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: e.room.Snapshot(true, now)}))
	e.mu.Unlock()

	r.logger.Info("player reconnected",
		zap.String("room", code),
		zap.String("player", name),
	)
	r.publish(evs)
	return nil
}

// Leave removes the player's session outright (explicit leave, as opposed to
// disconnect-with-grace). The room is deleted when it empties, or ended when
// only one connected player remains mid-game.
func (r *Registry) Leave(code, connID string) error {
	e, ok := r.lookup(code)
	if !ok {
		return ErrRoomNotFound
	}

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
	evs := r.removePlayerLocked(e, p.Name, connID)
	e.mu.Unlock()

	r.publish(evs)
	return nil
}

// evictionFired runs on the eviction timer goroutine after the grace period.
// The condition is re-checked under the room lock: a player who reconnected
// in the meantime is left alone.
func (r *Registry) evictionFired(code, name string) {
	e, ok := r.lookup(code)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return
	}
	delete(e.evictions, name)
	p, found := e.room.Player(name)
	if !found || p.Connected {
		e.mu.Unlock()
		return
	}
	connID := p.ID
	evs := r.removePlayerLocked(e, name, connID)
	e.mu.Unlock()

	r.logger.Info("player evicted after grace period",
		zap.String("room", code),
		zap.String("player", name),
	)
	r.publish(evs)
}

// removePlayerLocked deletes a session and settles the room's fate: delete
// when empty, end when a live game is down to one connected player.
// Caller holds e.mu.
func (r *Registry) removePlayerLocked(e *entry, name, connID string) []events.Event {
	now := r.clock()
	code := e.room.Code
	var evs []events.Event

	if t, exists := e.evictions[name]; exists {
		t.Stop()
		delete(e.evictions, name)
	}

	if err := e.room.RemovePlayer(name); err != nil {
		// Already gone: stale event, nothing to settle.
		return nil
	}
	r.tracker.Forget(violationKey(code, name))
	evs = append(evs, events.ToRoom(events.TypePlayerLeft, code, events.PlayerPayload{ID: connID, Name: name}))

	if e.room.CountdownPending() {
		e.room.CancelCountdown()
		evs = append(evs, events.ToRoom(events.TypeCountdownAborted, code, events.PlayerPayload{ID: connID, Name: name}))
	}

	if e.room.Len() == 0 {
		r.deleteRoomLocked(e)
		r.logger.Info("room deleted, empty after leave", zap.String("room", code))
		return evs
	}

	phase := e.room.Phase()
	if (phase == room.Playing || phase == room.Paused) && e.room.ConnectedCount() <= 1 {
		if e.room.End() {
			evs = append(evs, events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: e.room.Snapshot(true, now)}))
			r.logger.Info("room ended, one connected player left", zap.String("room", code))
		}
		r.deleteRoomLocked(e)
		return evs
	}

	evs = append(evs, events.ToRoom(events.TypeRoomUpdate, code, events.RoomUpdatePayload{Snapshot: e.room.Snapshot(true, now)}))
	return evs
}

// deleteRoomLocked removes the room from the map and cancels every pending
// timer. Caller holds e.mu.
func (r *Registry) deleteRoomLocked(e *entry) {
	e.gone = true
	e.room.CancelCountdown()
	for name, t := range e.evictions {
		t.Stop()
		delete(e.evictions, name)
	}
	e.room.End()

	r.mu.Lock()
	delete(r.rooms, e.room.Code)
	r.mu.Unlock()
}
