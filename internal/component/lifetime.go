package component

import (
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/world"
)

const (
	LifetimeName = "lifetime"
	LifetimeTick = "lifetime.tick"
)

// LifetimeManager counts down lifetimes in the pre-async phase and queues
// expired owners for deletion. The owner and its subtree disappear at the
// next sync point.
type LifetimeManager struct {
	*ecs.ManagerBase[Lifetime]
	w           *world.World
	granularity int
}

func NewLifetimeManager(w *world.World, granularity int) *LifetimeManager {
	return &LifetimeManager{
		ManagerBase: ecs.NewManagerBase[Lifetime](LifetimeName, w.Allocator(), w.Index(), w.StorageOptions()...),
		w:           w,
		granularity: granularity,
	}
}

func (m *LifetimeManager) Initialize(w *world.World) error {
	return w.RegisterUpdateFunction(system.UpdateFunctionDesc{
		Owner:              m.Name(),
		Name:               LifetimeTick,
		Phase:              system.PhasePreAsync,
		Func:               m.tick,
		Count:              m.Count,
		Granularity:        m.granularity,
		OnlyWhenSimulating: true,
	})
}

func (m *LifetimeManager) Add(owner world.GameObjectID, l Lifetime) (ecs.ComponentHandle, error) {
	return add[Lifetime](m.w, m, owner, l)
}

func (m *LifetimeManager) Export(owner world.GameObjectID) (*yaml.Node, bool) {
	l, ok := first[Lifetime](m, owner)
	if !ok || l.Expired {
		return nil, false
	}
	return encode(lifetimeParams{Seconds: l.Remaining.Seconds()})
}

func (m *LifetimeManager) Attach(owner world.GameObjectID, params *yaml.Node) (ecs.ComponentHandle, error) {
	l, err := decodeLifetime(params)
	if err != nil {
		return ecs.ComponentHandle{}, err
	}
	return m.Add(owner, l)
}

func (m *LifetimeManager) tick(ctx system.UpdateContext, start, count int) {
	m.Range(start, count, func(_ ecs.ComponentHandle, owner ecs.ID, l *Lifetime) {
		if l.Expired {
			return
		}
		l.Remaining -= ctx.Dt
		if l.Remaining > 0 {
			return
		}
		l.Expired = true
		if err := m.w.DeleteObjectDelayed(owner); err != nil {
			m.w.Log().Debug("expired owner already gone", zap.Stringer("owner", owner), zap.Error(err))
		}
	})
}
