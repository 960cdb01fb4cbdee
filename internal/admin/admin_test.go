package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/registry"
	"github.com/triadgame/server/internal/game/validate"
)

func newTestRouter(t *testing.T) (*gin.Engine, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	tracker := validate.NewTracker(cfg.Violations.Window, cfg.Violations.KickThreshold)
	reg := registry.New(cfg.Game, zap.NewNop(), validate.New(cfg.Game), tracker)

	router := gin.New()
	NewHandler(reg, zap.NewNop()).Register(router)
	return router, reg
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestListRoomsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/admin/rooms")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int                    `json:"count"`
		Rooms []registry.RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Rooms)
}

func TestListRoomsReflectsRegistry(t *testing.T) {
	router, reg := newTestRouter(t)

	code, err := reg.CreateRoom("conn-1", "alice")
	require.NoError(t, err)
	_, err = reg.CreateRoom("conn-2", "bob")
	require.NoError(t, err)

	w := get(router, "/admin/rooms")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int                    `json:"count"`
		Rooms []registry.RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	codes := make(map[string]registry.RoomSummary)
	for _, r := range body.Rooms {
		codes[r.Code] = r
	}
	require.Contains(t, codes, code)
	assert.Equal(t, 1, codes[code].PlayerCount)
	assert.Equal(t, "waiting", codes[code].State)
}

func TestRoomStateReturnsFullSnapshot(t *testing.T) {
	router, reg := newTestRouter(t)

	code, err := reg.CreateRoom("conn-1", "alice")
	require.NoError(t, err)

	w := get(router, "/admin/rooms/"+code)
	require.Equal(t, http.StatusOK, w.Code)

	var snap struct {
		RoomCode    string   `json:"roomCode"`
		State       string   `json:"state"`
		Timestamp   int64    `json:"timestamp"`
		PlayerOrder []string `json:"playerOrder"`
		Players     []struct {
			Name string `json:"name"`
		} `json:"players"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, code, snap.RoomCode)
	assert.Equal(t, "waiting", snap.State)
	assert.Equal(t, []string{"conn-1"}, snap.PlayerOrder)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alice", snap.Players[0].Name)
	assert.InDelta(t, time.Now().UnixMilli(), snap.Timestamp, 5000)
}

func TestResetViolations(t *testing.T) {
	router, reg := newTestRouter(t)

	code, err := reg.CreateRoom("conn-1", "alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/admin/rooms/"+code+"/players/alice/violations", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestResetViolationsUnknownRoom(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/admin/rooms/NOSUCH/players/alice/violations", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomStateUnknownCode(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/admin/rooms/NOSUCH")
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "room not found", body["error"])
}
