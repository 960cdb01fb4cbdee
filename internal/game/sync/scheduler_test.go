package sync

import (
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/events"
	"github.com/triadgame/server/internal/game/room"
)

type fakeSource struct {
	mu    stdsync.Mutex
	snaps []room.Snapshot
}

func (f *fakeSource) PlayingSnapshots(full bool) []room.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]room.Snapshot, len(f.snaps))
	copy(out, f.snaps)
	if full {
		for i := range out {
			out[i].PlayerOrder = []string{"c1"}
		}
	}
	return out
}

type fakePublisher struct {
	mu  stdsync.Mutex
	evs []events.Event
}

func (f *fakePublisher) Publish(evs ...events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evs = append(f.evs, evs...)
}

func (f *fakePublisher) count(t events.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.evs {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestScheduler_EmitsDeltaAndFull(t *testing.T) {
	source := &fakeSource{snaps: []room.Snapshot{{RoomCode: "AAAA22", State: "playing"}}}
	pub := &fakePublisher{}
	sched := NewScheduler(config.SyncConfig{
		DeltaInterval: 5 * time.Millisecond,
		FullInterval:  20 * time.Millisecond,
	}, zap.NewNop(), source, pub)

	done := make(chan error, 1)
	go func() { done <- sched.Start() }()

	require.Eventually(t, func() bool {
		return pub.count(events.TypeDeltaSync) >= 3 && pub.count(events.TypeFullSync) >= 1
	}, 2*time.Second, 2*time.Millisecond)

	sched.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	// Delta syncs outnumber full syncs under the dual-rate schedule.
	assert.Greater(t, pub.count(events.TypeDeltaSync), pub.count(events.TypeFullSync))
}

func TestScheduler_QuietWhenNoPlayingRooms(t *testing.T) {
	source := &fakeSource{}
	pub := &fakePublisher{}
	sched := NewScheduler(config.SyncConfig{
		DeltaInterval: 2 * time.Millisecond,
		FullInterval:  5 * time.Millisecond,
	}, zap.NewNop(), source, pub)

	done := make(chan error, 1)
	go func() { done <- sched.Start() }()

	time.Sleep(30 * time.Millisecond)
	sched.Stop()
	<-done

	assert.Zero(t, pub.count(events.TypeDeltaSync))
	assert.Zero(t, pub.count(events.TypeFullSync))
}

func TestScheduler_AddressesEventsToRoom(t *testing.T) {
	source := &fakeSource{snaps: []room.Snapshot{
		{RoomCode: "ROOM01", State: "playing"},
		{RoomCode: "ROOM02", State: "playing"},
	}}
	pub := &fakePublisher{}
	sched := NewScheduler(config.SyncConfig{
		DeltaInterval: 2 * time.Millisecond,
		FullInterval:  time.Hour,
	}, zap.NewNop(), source, pub)

	done := make(chan error, 1)
	go func() { done <- sched.Start() }()
	require.Eventually(t, func() bool { return pub.count(events.TypeDeltaSync) >= 2 }, 2*time.Second, time.Millisecond)
	sched.Stop()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	rooms := map[string]bool{}
	for _, e := range pub.evs {
		assert.Empty(t, e.ConnID, "sync events are room broadcasts")
		rooms[e.RoomCode] = true
	}
	assert.True(t, rooms["ROOM01"])
	assert.True(t, rooms["ROOM02"])
}
