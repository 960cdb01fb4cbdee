// Package sync implements the dual-rate state broadcaster: a high-frequency
// delta tick for the fields clients need for smooth rendering, and a
// low-frequency full tick for the reconciliation data that changes rarely.
package sync

import (
	"time"

	"go.uber.org/zap"

	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/events"
	"github.com/triadgame/server/internal/game/room"
)

// Source yields the snapshots to broadcast. Implemented by the registry;
// snapshots are taken under each room's lock and handed out by value.
type Source interface {
	PlayingSnapshots(full bool) []room.Snapshot
}

// Publisher delivers sync events to room members. Implemented by the transport hub.
type Publisher interface {
	Publish(evs ...events.Event)
}

// Scheduler runs the two broadcast tickers for the whole registry. It
// implements the lifecycle Service contract: Start blocks until Stop.
type Scheduler struct {
	cfg    config.SyncConfig
	logger *zap.Logger
	source Source
	pub    Publisher
	done   chan struct{}
}

// NewScheduler creates a stopped Scheduler.
//
// Precondition: logger, source, and pub must be non-nil; cfg must be valid.
func NewScheduler(cfg config.SyncConfig, logger *zap.Logger, source Source, pub Publisher) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		source: source,
		pub:    pub,
		done:   make(chan struct{}),
	}
}

// Start runs the delta and full tickers until Stop is called.
//
// Postcondition: Returns nil after Stop.
func (s *Scheduler) Start() error {
	deltaTicker := time.NewTicker(s.cfg.DeltaInterval)
	defer deltaTicker.Stop()
	fullTicker := time.NewTicker(s.cfg.FullInterval)
	defer fullTicker.Stop()

	s.logger.Info("sync scheduler running",
		zap.Duration("delta_interval", s.cfg.DeltaInterval),
		zap.Duration("full_interval", s.cfg.FullInterval),
	)

	for {
		select {
		case <-deltaTicker.C:
			s.broadcast(false)
		case <-fullTicker.C:
			s.broadcast(true)
		case <-s.done:
			return nil
		}
	}
}

// Stop halts both tickers. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.done)
}

// broadcast publishes one sync event per Playing room. Snapshot collection
// happens inside the registry under per-room locks; publishing happens here,
// lock-free.
func (s *Scheduler) broadcast(full bool) {
	snaps := s.source.PlayingSnapshots(full)
	if len(snaps) == 0 {
		return
	}

	typ := events.TypeDeltaSync
	if full {
		typ = events.TypeFullSync
	}

	evs := make([]events.Event, 0, len(snaps))
	for _, snap := range snaps {
		evs = append(evs, events.ToRoom(typ, snap.RoomCode, events.SyncPayload{Snapshot: snap}))
	}
	s.pub.Publish(evs...)
}
