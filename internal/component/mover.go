package component

import (
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/world"
)

const (
	MoverName      = "mover"
	MoverIntegrate = "mover.integrate"
)

// MoverManager integrates velocities in the async phase while the world is
// simulating. Explicit Euler: velocity first, then position.
type MoverManager struct {
	*ecs.ManagerBase[Mover]
	w           *world.World
	granularity int
}

func NewMoverManager(w *world.World, granularity int) *MoverManager {
	return &MoverManager{
		ManagerBase: ecs.NewManagerBase[Mover](MoverName, w.Allocator(), w.Index(), w.StorageOptions()...),
		w:           w,
		granularity: granularity,
	}
}

func (m *MoverManager) Initialize(w *world.World) error {
	return w.RegisterUpdateFunction(system.UpdateFunctionDesc{
		Owner:              m.Name(),
		Name:               MoverIntegrate,
		Phase:              system.PhaseAsync,
		Func:               m.integrate,
		Count:              m.Count,
		Granularity:        m.granularity,
		OnlyWhenSimulating: true,
	})
}

func (m *MoverManager) Add(owner world.GameObjectID, mv Mover) (ecs.ComponentHandle, error) {
	return add[Mover](m.w, m, owner, mv)
}

func (m *MoverManager) Export(owner world.GameObjectID) (*yaml.Node, bool) {
	mv, ok := first[Mover](m, owner)
	if !ok {
		return nil, false
	}
	return encode(moverParams{Velocity: vecOf(mv.Velocity), Acceleration: vecOf(mv.Acceleration), MaxSpeed: mv.MaxSpeed})
}

func (m *MoverManager) Attach(owner world.GameObjectID, params *yaml.Node) (ecs.ComponentHandle, error) {
	mv, err := decodeMover(params)
	if err != nil {
		return ecs.ComponentHandle{}, err
	}
	return m.Add(owner, mv)
}

func (m *MoverManager) integrate(ctx system.UpdateContext, start, count int) {
	dt := ctx.Dt.Seconds()
	m.Range(start, count, func(_ ecs.ComponentHandle, owner ecs.ID, mv *Mover) {
		d, ok := activeTransform(m.w, owner)
		if !ok {
			return
		}
		mv.Velocity = mv.Velocity.Add(mv.Acceleration.Mul(dt))
		if mv.MaxSpeed > 0 {
			if s := mv.Velocity.Len(); s > mv.MaxSpeed {
				mv.Velocity = mv.Velocity.Mul(mv.MaxSpeed / s)
			}
		}
		d.Local.Position = d.Local.Position.Add(mv.Velocity.Mul(dt))
	})
}
