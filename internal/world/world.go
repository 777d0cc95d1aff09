package world

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/arena"
	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/event"
	"github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/core/task"
)

// Config selects the collaborators and modes of a World.
type Config struct {
	Index      uint8  // world index baked into every handle
	Name       string // for logs only
	Debug      bool   // poison freed slots, panic on re-entrant mutation
	Simulating bool
	Workers    int // task pool size when Executor is nil; <= 0 means GOMAXPROCS
	// BlockCapacity overrides the per-block slot count of object and
	// transform storage. 0 derives it from the record size.
	BlockCapacity int
	Allocator     arena.Allocator
	Executor      system.Executor
}

// World owns game objects, their transform hierarchies, component managers
// and the update scheduler.
//
// Structural changes (objects, components, parenting) are made by the
// goroutine that drives Update, between frames. Update functions run on the
// task pool and must queue structural work through Defer or
// DeleteObjectDelayed.
type World struct {
	cfg   Config
	log   *zap.Logger
	alloc arena.Allocator
	exec  system.Executor

	objects *arena.Storage[GameObject]
	ids     *ecs.IDTable[arena.Slot]
	static  *hierarchy
	dynamic *hierarchy
	names   map[uint64][]GameObjectID

	managers  *ecs.Registry
	named     map[string]ComponentManager
	registry  *system.Registry
	scheduler *system.Scheduler
	events    *event.Bus

	lock       sync.RWMutex
	updating   atomic.Bool
	simulating atomic.Bool
	frame      uint64
	resolved   bool

	deadMu    sync.Mutex
	dead      []GameObjectID
	pendingMu sync.Mutex
	pending   []func(*World)
}

// New creates an empty world.
func New(cfg Config, log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Uint8("world", cfg.Index))
	if cfg.Name != "" {
		log = log.With(zap.String("world_name", cfg.Name))
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = arena.NewLargeBlockAllocator(0, 0)
	}
	exec := cfg.Executor
	if exec == nil {
		exec = task.NewPool(cfg.Workers, log)
	}
	opts := []arena.Option{arena.WithDebug(cfg.Debug), arena.WithCapacity(cfg.BlockCapacity)}
	reg := system.NewRegistry(log)

	w := &World{
		cfg:       cfg,
		log:       log,
		alloc:     alloc,
		exec:      exec,
		objects:   arena.NewStorage[GameObject](alloc, opts...),
		ids:       ecs.NewIDTable[arena.Slot](cfg.Index),
		static:    newHierarchy(true, alloc, opts...),
		dynamic:   newHierarchy(false, alloc, opts...),
		names:     make(map[uint64][]GameObjectID, 256),
		managers:  ecs.NewRegistry(),
		named:     make(map[string]ComponentManager, 16),
		registry:  reg,
		scheduler: system.NewScheduler(reg, exec, log),
		events:    event.NewBus(),
		dead:      make([]GameObjectID, 0, 64),
	}
	w.simulating.Store(cfg.Simulating)
	return w
}

func (w *World) Index() uint8                 { return w.cfg.Index }
func (w *World) Debug() bool                  { return w.cfg.Debug }
func (w *World) Log() *zap.Logger             { return w.log }
func (w *World) Allocator() arena.Allocator   { return w.alloc }
func (w *World) Events() *event.Bus           { return w.events }
func (w *World) Scheduler() *system.Scheduler { return w.scheduler }

// UpdateRegistry returns the phase-ordered update function registry.
func (w *World) UpdateRegistry() *system.Registry { return w.registry }

// StorageOptions returns the arena options every manager of this world
// should create its storage with.
func (w *World) StorageOptions() []arena.Option {
	return []arena.Option{arena.WithDebug(w.cfg.Debug)}
}

// Frame returns the number of the last frame started by Update.
func (w *World) Frame() uint64 { return w.frame }

// Updating reports whether an update phase is in flight.
func (w *World) Updating() bool { return w.updating.Load() }

// SetSimulating toggles functions flagged OnlyWhenSimulating. Takes effect
// at the next frame.
func (w *World) SetSimulating(on bool) { w.simulating.Store(on) }

func (w *World) Simulating() bool { return w.simulating.Load() }

// checkStructural guards every structural operation. During an update phase
// it panics in debug mode; otherwise it queues deferred for the next sync
// point and reports ErrReentrantMutation.
func (w *World) checkStructural(op string, deferred func(*World)) error {
	if !w.updating.Load() {
		return nil
	}
	if w.cfg.Debug {
		panic(fmt.Sprintf("world: %s called while an update phase is in flight", op))
	}
	w.log.Warn("structural mutation during update deferred", zap.String("op", op), zap.Uint64("frame", w.frame))
	if deferred != nil {
		w.Defer(deferred)
	}
	return fmt.Errorf("%s: %w", op, ErrReentrantMutation)
}

// Defer queues fn to run at the start of the next Update, before dead
// objects are flushed. Safe to call from update functions.
func (w *World) Defer(fn func(w *World)) {
	w.pendingMu.Lock()
	w.pending = append(w.pending, fn)
	w.pendingMu.Unlock()
}

// syncPoint applies everything queued during the previous frame.
func (w *World) syncPoint() {
	w.pendingMu.Lock()
	ops := w.pending
	w.pending = nil
	w.pendingMu.Unlock()
	for _, op := range ops {
		op(w)
	}

	w.deadMu.Lock()
	dead := w.dead
	w.dead = make([]GameObjectID, 0, cap(dead))
	w.deadMu.Unlock()
	for _, id := range dead {
		if obj, ok := w.object(id); ok {
			w.deleteTree(obj)
		}
	}

	if n := w.managers.FlushDead(); n > 0 {
		w.log.Debug("dead components released", zap.Int("count", n))
	}
	w.events.SwapBuffers()
	w.events.DispatchAll()
}

// ResolveUpdateFunctions reports update functions whose dependencies can
// never be met. The world runs without them. Update calls it once on the
// first frame; calling it earlier surfaces the error at startup.
func (w *World) ResolveUpdateFunctions() error {
	w.resolved = true
	return w.registry.Resolve()
}

// Update runs one frame: the sync point, then every phase in order, with
// transform propagation between the post-async and post-transform phases.
// ctx is checked before the frame starts only; a started frame runs to
// completion.
func (w *World) Update(ctx context.Context, dt time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok := w.WriteLock()
	defer tok.Release()

	if !w.resolved {
		_ = w.ResolveUpdateFunctions()
	}
	w.syncPoint()
	w.frame++

	uc := system.UpdateContext{Frame: w.frame, Dt: dt, Simulating: w.simulating.Load()}
	w.updating.Store(true)
	err := w.scheduler.RunFrame(uc, w.afterPhase)
	w.updating.Store(false)
	if err != nil {
		return fmt.Errorf("world update frame %d: %w", w.frame, err)
	}
	return nil
}

func (w *World) afterPhase(p system.Phase) error {
	if p != system.PhasePostAsync {
		return nil
	}
	return w.UpdateTransforms()
}

// UpdateTransforms recomputes global transforms. The static hierarchy is
// only walked when something in it changed.
func (w *World) UpdateTransforms() error {
	if w.static.dirty {
		if err := w.static.propagate(w.exec); err != nil {
			return fmt.Errorf("static hierarchy: %w", err)
		}
	}
	if err := w.dynamic.propagate(w.exec); err != nil {
		return fmt.Errorf("dynamic hierarchy: %w", err)
	}
	return nil
}

// Close releases all storage. The world must not be used afterwards.
func (w *World) Close() {
	tok := w.WriteLock()
	defer tok.Release()
	w.managers.Each(func(m ecs.Manager) {
		if r, ok := m.(interface{ Release() }); ok {
			r.Release()
		}
	})
	w.static.release()
	w.dynamic.release()
	w.objects.Release()
	w.ids = ecs.NewIDTable[arena.Slot](w.cfg.Index)
	w.names = make(map[uint64][]GameObjectID)
}
