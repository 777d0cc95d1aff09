package system

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/persist"
	"github.com/l1jgo/worldcore/internal/world"
)

// SnapshotSaver stores a snapshot and returns its id.
type SnapshotSaver interface {
	Save(ctx context.Context, snap *persist.Snapshot) (int64, error)
}

// AutosaveSystem snapshots the world every interval frames. Tick is called
// by the frame loop between updates; the snapshot is taken under a read
// lock, so it always sees a completed frame.
type AutosaveSystem struct {
	world     *world.World
	saver     SnapshotSaver
	log       *zap.Logger
	interval  int
	tickCount int
	lastFrame uint64
	saved     bool
	timeout   time.Duration
}

func NewAutosaveSystem(w *world.World, saver SnapshotSaver, log *zap.Logger, intervalFrames int) *AutosaveSystem {
	if intervalFrames <= 0 {
		intervalFrames = 1
	}
	return &AutosaveSystem{
		world:    w,
		saver:    saver,
		log:      log,
		interval: intervalFrames,
		timeout:  5 * time.Second,
	}
}

// Tick counts one frame and saves when the interval is reached.
func (s *AutosaveSystem) Tick(ctx context.Context) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	if err := s.save(ctx, true); err != nil {
		s.log.Error("autosave failed", zap.Error(err))
	}
}

// Flush saves immediately, even when no frame ran since the last save.
// Called on shutdown.
func (s *AutosaveSystem) Flush(ctx context.Context) error {
	return s.save(ctx, false)
}

// save skips unchanged worlds when changedOnly is set.
func (s *AutosaveSystem) save(ctx context.Context, changedOnly bool) error {
	var snap *persist.Snapshot
	_ = s.world.WithRead(func(w *world.World) error {
		if changedOnly && s.saved && w.Frame() == s.lastFrame {
			return nil
		}
		snap = persist.SnapshotWorld(w)
		return nil
	})
	if snap == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.saver.Save(ctx, snap)
	if err != nil {
		return fmt.Errorf("save frame %d: %w", snap.Frame, err)
	}
	s.lastFrame = snap.Frame
	s.saved = true
	s.log.Info("world saved",
		zap.Int64("snapshot", id),
		zap.Uint64("frame", snap.Frame),
		zap.Int("objects", len(snap.Objects)),
		zap.Int("components", snap.Components()),
	)
	return nil
}
