// Package ws is the WebSocket transport adapter: it upgrades connections,
// decodes inbound messages onto the session core, and fans registry and
// scheduler events back out to the right sockets.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/events"
	"github.com/triadgame/server/internal/game/validate"
)

// Core is the session-layer surface the transport drives. Satisfied by
// *registry.Registry.
type Core interface {
	CreateRoom(connID, hostName string) (string, error)
	JoinRoom(code, connID, playerName string) error
	Rejoin(code, connID, playerName string) error
	Leave(code, connID string) error
	Disconnect(code, connID string)
	SetReady(code, connID string, ready bool) error
	SubmitAction(code, connID string, act validate.Action) (bool, error)
	Ping(code, connID string, timestamp int64)
	RequestFullSync(code, connID string) error
}

// Hub owns every live connection and the room membership index used to route
// room-addressed events. It is the Publisher the registry and sync scheduler
// emit into.
type Hub struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	core     Core
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

// NewHub creates a Hub serving the given core.
//
// Precondition: logger and core must be non-nil.
func NewHub(cfg config.ServerConfig, logger *zap.Logger, core Core) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		core:   core,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

// HandleWS upgrades the request and runs the connection's read loop until the
// socket closes.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(uuid.NewString(), conn, h.cfg.SendBuffer, h.cfg.MessageRate, h.cfg.MessageBurst)

	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()

	h.logger.Debug("connection opened", zap.String("conn", cl.id))
	go cl.writePump(h.cfg.WriteTimeout)
	h.readLoop(cl)
}

func (h *Hub) readLoop(cl *client) {
	defer h.dropConnection(cl)

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if !cl.limiter.Allow() {
			h.logger.Debug("inbound message dropped, rate limit", zap.String("conn", cl.id))
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("malformed message", zap.String("conn", cl.id), zap.Error(err))
			continue
		}

		if kick := h.dispatch(cl, msg); kick {
			return
		}
	}
}

// dispatch routes one decoded message onto the core. Returns true when the
// connection must be terminated.
func (h *Hub) dispatch(cl *client, msg inbound) bool {
	code := cl.room()

	switch msg.Type {
	case msgCreateRoom:
		if code != "" {
			return false
		}
		if _, err := h.core.CreateRoom(cl.id, msg.Name); err != nil {
			h.logger.Debug("create room rejected", zap.String("conn", cl.id), zap.Error(err))
		}
	case msgJoinRoom:
		if code != "" {
			return false
		}
		if err := h.core.JoinRoom(msg.RoomCode, cl.id, msg.Name); err != nil {
			h.logger.Debug("join rejected", zap.String("conn", cl.id), zap.Error(err))
		}
	case msgRejoin:
		if code != "" {
			return false
		}
		if err := h.core.Rejoin(msg.RoomCode, cl.id, msg.Name); err != nil {
			h.logger.Debug("rejoin rejected", zap.String("conn", cl.id), zap.Error(err))
		}
	case msgLeaveRoom:
		if code == "" {
			return false
		}
		if err := h.core.Leave(code, cl.id); err != nil {
			h.logger.Debug("leave failed", zap.String("conn", cl.id), zap.Error(err))
		}
		h.removeMember(code, cl)
	case msgSetReady:
		if code == "" {
			return false
		}
		if err := h.core.SetReady(code, cl.id, msg.Ready); err != nil {
			h.logger.Debug("set ready failed", zap.String("conn", cl.id), zap.Error(err))
		}
	case msgSubmitAction:
		if code == "" || msg.Action == nil {
			return false
		}
		kick, err := h.core.SubmitAction(code, cl.id, *msg.Action)
		if err != nil {
			h.logger.Debug("submit action failed", zap.String("conn", cl.id), zap.Error(err))
		}
		if kick {
			h.logger.Info("kicking connection, violation threshold reached",
				zap.String("conn", cl.id),
				zap.String("room", code),
			)
			return true
		}
	case msgPing:
		h.core.Ping(code, cl.id, msg.Timestamp)
	case msgRequestFullSync:
		if code == "" {
			return false
		}
		if err := h.core.RequestFullSync(code, cl.id); err != nil {
			h.logger.Debug("full sync request failed", zap.String("conn", cl.id), zap.Error(err))
		}
	default:
		h.logger.Debug("unknown message type", zap.String("conn", cl.id), zap.String("type", msg.Type))
	}
	return false
}

// dropConnection tears down a connection after its read loop exits. The
// session itself survives in the registry under the disconnect grace period.
func (h *Hub) dropConnection(cl *client) {
	code := cl.room()

	h.mu.Lock()
	delete(h.clients, cl.id)
	h.mu.Unlock()
	if code != "" {
		h.removeMember(code, cl)
	}
	cl.close()

	if code != "" {
		h.core.Disconnect(code, cl.id)
	}
	h.logger.Debug("connection closed", zap.String("conn", cl.id))
}

// Publish routes events to their addressed connections. Events arrive in
// order within a batch; membership changes carried by the batch (a joiner's
// roomJoined, an evicted player's playerLeft) take effect mid-batch so later
// events in the same batch route correctly.
func (h *Hub) Publish(evs ...events.Event) {
	for _, ev := range evs {
		data, err := json.Marshal(outbound{Type: ev.Type, Payload: ev.Payload})
		if err != nil {
			h.logger.Error("marshalling event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}

		switch {
		case ev.ConnID != "":
			h.mu.RLock()
			cl, ok := h.clients[ev.ConnID]
			h.mu.RUnlock()
			if !ok {
				continue
			}
			h.applyMembership(ev, cl)
			if !cl.enqueue(data) {
				h.logger.Debug("outbound message dropped, send buffer full",
					zap.String("conn", cl.id),
					zap.String("type", string(ev.Type)),
				)
			}
		case ev.RoomCode != "":
			h.mu.RLock()
			members := make([]*client, 0, len(h.rooms[ev.RoomCode]))
			for _, cl := range h.rooms[ev.RoomCode] {
				members = append(members, cl)
			}
			h.mu.RUnlock()
			for _, cl := range members {
				if !cl.enqueue(data) {
					h.logger.Debug("outbound message dropped, send buffer full",
						zap.String("conn", cl.id),
						zap.String("type", string(ev.Type)),
					)
				}
			}
			h.applyRoomMembership(ev)
		}
	}
}

// applyMembership keeps the room index in step with connection-addressed
// lifecycle events.
func (h *Hub) applyMembership(ev events.Event, cl *client) {
	switch ev.Type {
	case events.TypeRoomCreated:
		if p, ok := ev.Payload.(events.RoomCreatedPayload); ok {
			h.addMember(p.RoomCode, cl)
		}
	case events.TypeRoomJoined:
		if p, ok := ev.Payload.(events.RoomJoinedPayload); ok {
			h.addMember(p.RoomCode, cl)
		}
	}
}

// applyRoomMembership drops members removed by room-addressed lifecycle
// events, after they have heard the event itself.
func (h *Hub) applyRoomMembership(ev events.Event) {
	if ev.Type != events.TypePlayerLeft {
		return
	}
	p, ok := ev.Payload.(events.PlayerPayload)
	if !ok {
		return
	}
	h.mu.RLock()
	cl, exists := h.clients[p.ID]
	h.mu.RUnlock()
	if exists {
		h.removeMember(ev.RoomCode, cl)
	}
}

func (h *Hub) addMember(code string, cl *client) {
	cl.setRoom(code)
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[code]
	if !ok {
		set = make(map[string]*client)
		h.rooms[code] = set
	}
	set[cl.id] = cl
}

func (h *Hub) removeMember(code string, cl *client) {
	cl.setRoom("")
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[code]
	if !ok {
		return
	}
	delete(set, cl.id)
	if len(set) == 0 {
		delete(h.rooms, code)
	}
}

// ConnCount returns the number of open connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every open connection. Read loops observe the socket close
// and run their normal disconnect path.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		all = append(all, cl)
	}
	h.mu.RUnlock()

	for _, cl := range all {
		cl.close()
		_ = cl.conn.Close()
	}
}
