// Package events defines the typed outbound surface between the session core
// and the transport layer. The core returns batches of events from its
// operations; the transport publishes them after all locks are released.
package events

import (
	"github.com/triadgame/server/internal/game/room"
	"github.com/triadgame/server/internal/game/session"
)

// Type names every outbound event.
type Type string

const (
	TypeRoomCreated        Type = "roomCreated"
	TypeRoomJoined         Type = "roomJoined"
	TypeJoinRejected       Type = "joinRejected"
	TypeRoomUpdate         Type = "roomUpdate"
	TypePlayerJoined       Type = "playerJoined"
	TypePlayerLeft         Type = "playerLeft"
	TypePlayerDisconnected Type = "playerDisconnected"
	TypePlayerReconnected  Type = "playerReconnected"
	TypeCountdownStarted   Type = "countdownStarted"
	TypeCountdownAborted   Type = "countdownAborted"
	TypeGameStart          Type = "gameStart"
	TypeGamePaused         Type = "gamePaused"
	TypeGameResumed        Type = "gameResumed"
	TypeActionBroadcast    Type = "actionBroadcast"
	TypeActionRejected     Type = "actionRejected"
	TypeStateCorrection    Type = "stateCorrection"
	TypeDeltaSync          Type = "deltaSync"
	TypeFullSync           Type = "fullSync"
	TypePong               Type = "pong"
)

// Event is one outbound message. When ConnID is set it targets a single
// connection; otherwise it is broadcast to every member of RoomCode.
type Event struct {
	Type     Type   `json:"type"`
	RoomCode string `json:"-"`
	ConnID   string `json:"-"`
	Payload  any    `json:"payload,omitempty"`
}

// ToRoom creates a room-wide broadcast event.
func ToRoom(t Type, roomCode string, payload any) Event {
	return Event{Type: t, RoomCode: roomCode, Payload: payload}
}

// ToConn creates an event addressed to one connection.
func ToConn(t Type, connID string, payload any) Event {
	return Event{Type: t, ConnID: connID, Payload: payload}
}

// RoomCreatedPayload acknowledges room creation to the host.
type RoomCreatedPayload struct {
	RoomCode string        `json:"roomCode"`
	Snapshot room.Snapshot `json:"snapshot"`
}

// RoomJoinedPayload acknowledges a successful join to the joining connection.
type RoomJoinedPayload struct {
	RoomCode string        `json:"roomCode"`
	Name     string        `json:"name"`
	Snapshot room.Snapshot `json:"snapshot"`
}

// JoinRejectedPayload reports a failed create/join/rejoin to the requester only.
type JoinRejectedPayload struct {
	RoomCode string `json:"roomCode,omitempty"`
	Reason   string `json:"reason"`
}

// RoomUpdatePayload carries the roster after membership/readiness changes.
type RoomUpdatePayload struct {
	Snapshot room.Snapshot `json:"snapshot"`
}

// PlayerPayload identifies the subject of a join/leave/disconnect/reconnect event.
type PlayerPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CountdownPayload announces the game-start countdown.
type CountdownPayload struct {
	Seconds float64 `json:"seconds"`
}

// GameStartPayload announces the Waiting->Playing transition.
type GameStartPayload struct {
	Level   int                `json:"level"`
	Players []session.Snapshot `json:"players"`
}

// GamePausedPayload explains a Playing->Paused transition.
type GamePausedPayload struct {
	Reason string `json:"reason"`
}

// GameResumedPayload announces a Paused->Playing transition.
type GameResumedPayload struct {
	Reason string `json:"reason"`
}

// ActionBroadcastPayload relays an accepted action to the whole room.
type ActionBroadcastPayload struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Action    any    `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// ActionRejectedPayload reports a rejected action to the acting connection only.
type ActionRejectedPayload struct {
	Reason string `json:"reason"`
	Action any    `json:"action"`
	// Kick advises the transport to terminate the connection.
	Kick bool `json:"kick,omitempty"`
}

// StateCorrectionPayload tells a client to resync its predicted position.
type StateCorrectionPayload struct {
	PlayerID string       `json:"playerId"`
	Position session.Vec2 `json:"position"`
}

// SyncPayload wraps a delta or full snapshot broadcast.
type SyncPayload struct {
	Snapshot room.Snapshot `json:"snapshot"`
}

// PongPayload echoes a client ping timestamp.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
	// ServerTime lets clients estimate clock offset.
	ServerTime int64 `json:"serverTime"`
}
