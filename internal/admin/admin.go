// Package admin exposes the read-only operational HTTP surface: room listings
// and per-room state for dashboards and debugging.
package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/triadgame/server/internal/game/registry"
	"github.com/triadgame/server/internal/game/room"
)

// Store is the registry surface the admin handlers drive.
type Store interface {
	ListRooms() []registry.RoomSummary
	RoomState(code string, full bool) (room.Snapshot, error)
	RoomCount() int
	ResetViolations(code, name string)
}

// Handler serves the admin endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an admin Handler backed by store.
//
// Precondition: store and logger must be non-nil.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the admin routes on r.
func (h *Handler) Register(r gin.IRouter) {
	grp := r.Group("/admin")
	grp.GET("/rooms", h.listRooms)
	grp.GET("/rooms/:code", h.roomState)
	grp.DELETE("/rooms/:code/players/:name/violations", h.resetViolations)
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms := h.store.ListRooms()
	c.JSON(http.StatusOK, gin.H{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (h *Handler) roomState(c *gin.Context) {
	code := c.Param("code")
	snap, err := h.store.RoomState(code, true)
	if err != nil {
		if errors.Is(err, registry.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		h.logger.Error("reading room state", zap.String("room", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// resetViolations clears a player's anti-cheat rejection history, backing off
// a pending kick advisory.
func (h *Handler) resetViolations(c *gin.Context) {
	code := c.Param("code")
	name := c.Param("name")
	if _, err := h.store.RoomState(code, false); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	h.store.ResetViolations(code, name)
	h.logger.Info("violations reset",
		zap.String("room", code),
		zap.String("player", name),
	)
	c.Status(http.StatusNoContent)
}
