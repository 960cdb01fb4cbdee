package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/triadgame/server/internal/game/session"
)

var spawn = session.Vec2{X: 960, Y: 540}

func addThree(t *testing.T, r *Room) {
	t.Helper()
	now := time.Now()
	_, err := r.AddPlayer("c1", "Alice", true, spawn, 8, now)
	require.NoError(t, err)
	_, err = r.AddPlayer("c2", "Bob", false, spawn, 8, now)
	require.NoError(t, err)
	_, err = r.AddPlayer("c3", "Carol", false, spawn, 8, now)
	require.NoError(t, err)
}

func TestAddPlayer_OrderPreserved(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)

	players := r.Players()
	require.Len(t, players, 3)
	assert.Equal(t, "Alice", players[0].Name)
	assert.Equal(t, "Bob", players[1].Name)
	assert.Equal(t, "Carol", players[2].Name)
	assert.True(t, players[0].IsHost)
}

func TestAddPlayer_Full(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	_, err := r.AddPlayer("c4", "Dave", false, spawn, 8, time.Now())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestAddPlayer_FullCountsDisconnected(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	bob, _ := r.Player("Bob")
	bob.MarkDisconnected(time.Now())

	// A disconnected session still occupies its seat.
	_, err := r.AddPlayer("c4", "Dave", false, spawn, 8, time.Now())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestAddPlayer_NameTaken(t *testing.T) {
	r := New("AAAA22", time.Now())
	_, err := r.AddPlayer("c1", "Alice", true, spawn, 8, time.Now())
	require.NoError(t, err)
	_, err = r.AddPlayer("c2", "Alice", false, spawn, 8, time.Now())
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestAddPlayer_GameInProgress(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, r.SetReady(name, true))
	}
	require.NoError(t, r.RemovePlayer("Carol"))
	_, err := r.AddPlayer("c3b", "Carol", false, spawn, 8, time.Now())
	require.NoError(t, err)
	require.NoError(t, r.SetReady("Carol", true))
	require.True(t, r.CommitStart())

	_, err = r.AddPlayer("c4", "Dave", false, spawn, 8, time.Now())
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestAddPlayer_FullBeatsGameInProgress(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, r.SetReady(name, true))
	}
	require.True(t, r.CommitStart())

	// A full room rejects with ErrRoomFull even after the game has started.
	_, err := r.AddPlayer("c4", "Dave", false, spawn, 8, time.Now())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestCommitStart_RechecksReadiness(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, r.SetReady(name, true))
	}
	require.True(t, r.AllReady())

	// Bob un-readies while the countdown is pending; the transition must abort.
	require.NoError(t, r.SetReady("Bob", false))
	assert.False(t, r.CommitStart())
	assert.Equal(t, Waiting, r.Phase())

	require.NoError(t, r.SetReady("Bob", true))
	assert.True(t, r.CommitStart())
	assert.Equal(t, Playing, r.Phase())
	assert.Equal(t, 0, r.CurrentLevel)
}

func TestCountdown_CancelPreventsFire(t *testing.T) {
	r := New("AAAA22", time.Now())
	fired := make(chan struct{}, 1)
	r.ScheduleCountdown(10*time.Millisecond, func() { fired <- struct{}{} })
	require.True(t, r.CountdownPending())
	r.CancelCountdown()
	require.False(t, r.CountdownPending())

	select {
	case <-fired:
		t.Fatal("cancelled countdown fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdown_Fires(t *testing.T) {
	r := New("AAAA22", time.Now())
	fired := make(chan struct{}, 1)
	r.ScheduleCountdown(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("countdown never fired")
	}
}

func TestPauseResumeEnd(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, r.SetReady(name, true))
	}
	require.True(t, r.CommitStart())

	bob, _ := r.Player("Bob")
	bob.MarkDisconnected(time.Now())
	assert.True(t, r.Pause())
	assert.Equal(t, Paused, r.Phase())

	// Resume refuses while anyone is still disconnected.
	assert.False(t, r.Resume())

	bob.MarkReconnected("c2b")
	assert.True(t, r.Resume())
	assert.Equal(t, Playing, r.Phase())

	assert.True(t, r.End())
	assert.Equal(t, Ended, r.Phase())
	assert.False(t, r.End(), "End must be idempotent")
}

func TestPause_OnlyWhilePlaying(t *testing.T) {
	r := New("AAAA22", time.Now())
	assert.False(t, r.Pause())
	assert.False(t, r.Resume())
}

func TestAdvanceLevel(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	assert.False(t, r.AdvanceLevel(), "level only advances while playing")

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, r.SetReady(name, true))
	}
	require.True(t, r.CommitStart())
	assert.True(t, r.AdvanceLevel())
	assert.Equal(t, 1, r.CurrentLevel)
}

func TestApplyMove_UpdatesStateAndRing(t *testing.T) {
	r := New("AAAA22", time.Now())
	p, err := r.AddPlayer("c1", "Alice", true, spawn, 8, time.Now())
	require.NoError(t, err)

	now := time.Now()
	before := r.Version()
	r.ApplyMove(p, session.Vec2{X: 100, Y: 200}, session.Vec2{X: 5, Y: 0}, now)

	assert.Equal(t, session.Vec2{X: 100, Y: 200}, p.Position)
	assert.Equal(t, now, p.LastActionAt)
	assert.Equal(t, before+1, r.Version())
	require.Equal(t, 1, p.Inputs.Len())
	assert.Equal(t, "move", p.Inputs.Recent()[0].Type)
}

func TestApplyDash_MovesAndStampsCooldown(t *testing.T) {
	r := New("AAAA22", time.Now())
	p, err := r.AddPlayer("c1", "Alice", true, spawn, 8, time.Now())
	require.NoError(t, err)

	now := time.Now()
	r.ApplyDash(p, session.Vec2{X: 500, Y: 500}, now)
	assert.Equal(t, session.Vec2{X: 500, Y: 500}, p.Position)
	assert.Equal(t, now, p.LastDashAt)
}

func TestSnapshot_DeltaVsFull(t *testing.T) {
	r := New("AAAA22", time.Now())
	addThree(t, r)
	now := time.Now()

	delta := r.Snapshot(false, now)
	assert.Equal(t, "AAAA22", delta.RoomCode)
	assert.Equal(t, "waiting", delta.State)
	assert.Len(t, delta.Players, 3)
	assert.Nil(t, delta.PlayerOrder)
	assert.Nil(t, delta.GameObjects)

	full := r.Snapshot(true, now)
	assert.Equal(t, []string{"c1", "c2", "c3"}, full.PlayerOrder)
	assert.NotNil(t, full.GameObjects)
	assert.Equal(t, delta.StateVersion, full.StateVersion)
}

func TestVersion_MonotonePerMutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New("AAAA22", time.Now())
		now := time.Now()
		names := []string{}
		last := r.Version()

		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 40).Draw(t, "ops")
		for i, op := range ops {
			var mutated bool
			switch op {
			case 0: // join
				name := fmt.Sprintf("p%d", i)
				if _, err := r.AddPlayer(fmt.Sprintf("c%d", i), name, len(names) == 0, spawn, 8, now); err == nil {
					names = append(names, name)
					mutated = true
				}
			case 1: // leave
				if len(names) > 0 {
					if err := r.RemovePlayer(names[0]); err == nil {
						names = names[1:]
						mutated = true
					}
				}
			case 2: // ready toggle
				if len(names) > 0 {
					if err := r.SetReady(names[0], true); err == nil {
						mutated = true
					}
				}
			case 3: // move
				if len(names) > 0 {
					if p, ok := r.Player(names[0]); ok {
						r.ApplyMove(p, spawn, session.Vec2{}, now)
						mutated = true
					}
				}
			}

			v := r.Version()
			if mutated {
				assert.Equal(t, last+1, v, "accepted mutation must bump version by exactly one")
			} else {
				assert.Equal(t, last, v, "rejected mutation must not touch version")
			}
			last = v
		}
	})
}
