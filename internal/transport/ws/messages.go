package ws

import (
	"github.com/triadgame/server/internal/game/events"
	"github.com/triadgame/server/internal/game/validate"
)

// Inbound message types accepted from clients.
const (
	msgCreateRoom      = "createRoom"
	msgJoinRoom        = "joinRoom"
	msgRejoin          = "rejoin"
	msgLeaveRoom       = "leaveRoom"
	msgSetReady        = "setReady"
	msgSubmitAction    = "submitAction"
	msgPing            = "ping"
	msgRequestFullSync = "requestFullSync"
)

// inbound is the envelope for every client-to-server message.
type inbound struct {
	Type      string           `json:"type"`
	RoomCode  string           `json:"roomCode,omitempty"`
	Name      string           `json:"name,omitempty"`
	Ready     bool             `json:"ready,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Action    *validate.Action `json:"action,omitempty"`
}

// outbound is the envelope for every server-to-client message.
type outbound struct {
	Type    events.Type `json:"type"`
	Payload any         `json:"payload,omitempty"`
}
