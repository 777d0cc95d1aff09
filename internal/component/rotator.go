package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/world"
)

const (
	RotatorName = "rotator"
	RotatorSpin = "rotator.spin"
)

// RotatorManager spins owners in the async phase. It writes only the local
// rotation, so it can share the phase with MoverManager.
type RotatorManager struct {
	*ecs.ManagerBase[Rotator]
	w           *world.World
	granularity int
}

func NewRotatorManager(w *world.World, granularity int) *RotatorManager {
	return &RotatorManager{
		ManagerBase: ecs.NewManagerBase[Rotator](RotatorName, w.Allocator(), w.Index(), w.StorageOptions()...),
		w:           w,
		granularity: granularity,
	}
}

func (m *RotatorManager) Initialize(w *world.World) error {
	return w.RegisterUpdateFunction(system.UpdateFunctionDesc{
		Owner:       m.Name(),
		Name:        RotatorSpin,
		Phase:       system.PhaseAsync,
		Func:        m.spin,
		Count:       m.Count,
		Granularity: m.granularity,
	})
}

// Add attaches r to owner. The axis is normalised.
func (m *RotatorManager) Add(owner world.GameObjectID, r Rotator) (ecs.ComponentHandle, error) {
	if r.Axis.Len() > 0 {
		r.Axis = r.Axis.Normalize()
	}
	return add[Rotator](m.w, m, owner, r)
}

func (m *RotatorManager) Export(owner world.GameObjectID) (*yaml.Node, bool) {
	r, ok := first[Rotator](m, owner)
	if !ok {
		return nil, false
	}
	return encode(rotatorParams{Axis: vecOf(r.Axis), Speed: r.Speed})
}

func (m *RotatorManager) Attach(owner world.GameObjectID, params *yaml.Node) (ecs.ComponentHandle, error) {
	r, err := decodeRotator(params)
	if err != nil {
		return ecs.ComponentHandle{}, err
	}
	return m.Add(owner, r)
}

func (m *RotatorManager) spin(ctx system.UpdateContext, start, count int) {
	dt := ctx.Dt.Seconds()
	m.Range(start, count, func(_ ecs.ComponentHandle, owner ecs.ID, r *Rotator) {
		if r.Speed == 0 || r.Axis.Len() == 0 {
			return
		}
		d, ok := activeTransform(m.w, owner)
		if !ok {
			return
		}
		step := mgl64.QuatRotate(r.Speed*dt, r.Axis)
		d.Local.Rotation = step.Mul(d.Local.Rotation).Normalize()
	})
}
