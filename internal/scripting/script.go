package scripting

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/world"
)

const (
	ScriptName = "script"
	ScriptRun  = "script.run"
)

// Script binds an object to a global Lua function called once per frame.
// The function receives a context table
//
//	{ id, frame, dt, position = { x, y, z } }
//
// and may return { position = { x, y, z } } to move the object, or
// { delete = true } to queue it for deletion.
type Script struct {
	Function string
	Calls    int
	Failures int
}

// ScriptManager runs script components after transforms are propagated, so
// scripts observe this frame's movement. Every script shares one Lua VM, so
// the update function always runs as a single task.
type ScriptManager struct {
	*ecs.ManagerBase[Script]
	w         *world.World
	engine    *Engine
	dependsOn []string
}

// NewScriptManager creates the manager. dependsOn names update functions
// that must precede script execution.
func NewScriptManager(w *world.World, engine *Engine, dependsOn ...string) *ScriptManager {
	return &ScriptManager{
		ManagerBase: ecs.NewManagerBase[Script](ScriptName, w.Allocator(), w.Index(), w.StorageOptions()...),
		w:           w,
		engine:      engine,
		dependsOn:   dependsOn,
	}
}

func (m *ScriptManager) Initialize(w *world.World) error {
	return w.RegisterUpdateFunction(system.UpdateFunctionDesc{
		Owner:              m.Name(),
		Name:               ScriptRun,
		Phase:              system.PhasePostTransform,
		Func:               m.run,
		Count:              m.Count,
		Granularity:        0,
		DependsOn:          m.dependsOn,
		OnlyWhenSimulating: true,
	})
}

// Add attaches a script calling fn, which must already be loaded.
func (m *ScriptManager) Add(owner world.GameObjectID, fn string) (ecs.ComponentHandle, error) {
	if !m.engine.Has(fn) {
		return ecs.ComponentHandle{}, fmt.Errorf("script on %s: %w: %s", owner, ErrNoFunction, fn)
	}
	h, s, err := world.CreateComponent[Script](m.w, m, owner)
	if err != nil {
		return ecs.ComponentHandle{}, err
	}
	s.Function = fn
	return h, nil
}

type scriptParams struct {
	Function string `yaml:"function"`
}

func (m *ScriptManager) Attach(owner world.GameObjectID, params *yaml.Node) (ecs.ComponentHandle, error) {
	var p scriptParams
	if params != nil && params.Kind != 0 {
		if err := params.Decode(&p); err != nil {
			return ecs.ComponentHandle{}, fmt.Errorf("script params: %w", err)
		}
	}
	if p.Function == "" {
		return ecs.ComponentHandle{}, errors.New("script params: function is required")
	}
	return m.Add(owner, p.Function)
}

func (m *ScriptManager) Export(owner world.GameObjectID) (*yaml.Node, bool) {
	hs := m.ComponentsOf(owner)
	if len(hs) == 0 {
		return nil, false
	}
	s, ok := m.TryGet(hs[0])
	if !ok {
		return nil, false
	}
	var n yaml.Node
	if err := n.Encode(scriptParams{Function: s.Function}); err != nil {
		return nil, false
	}
	return &n, true
}

func (m *ScriptManager) run(ctx system.UpdateContext, start, count int) {
	m.Range(start, count, func(_ ecs.ComponentHandle, owner ecs.ID, s *Script) {
		d, ok := m.w.TransformData(owner)
		if !ok {
			return
		}
		res, err := m.engine.Call(s.Function, m.contextTable(ctx, owner, d))
		s.Calls++
		if err != nil {
			s.Failures++
			m.w.Log().Error("script failed",
				zap.String("function", s.Function),
				zap.Stringer("owner", owner),
				zap.Error(err),
			)
			return
		}
		if res == nil {
			return
		}
		if pos, ok := res.RawGetString("position").(*lua.LTable); ok {
			d.Local.Position = vecFromTable(pos)
		}
		if lua.LVAsBool(res.RawGetString("delete")) {
			if err := m.w.DeleteObjectDelayed(owner); err != nil {
				m.w.Log().Debug("script owner already gone",
					zap.String("function", s.Function),
					zap.Stringer("owner", owner),
					zap.Error(err),
				)
			}
		}
	})
}

func (m *ScriptManager) contextTable(ctx system.UpdateContext, owner ecs.ID, d *world.TransformationData) *lua.LTable {
	t := m.engine.NewTable()
	t.RawSetString("id", lua.LString(owner.String()))
	t.RawSetString("frame", lua.LNumber(ctx.Frame))
	t.RawSetString("dt", lua.LNumber(ctx.Dt.Seconds()))
	t.RawSetString("position", m.vecTable(d.Global.Position))
	t.RawSetString("local_position", m.vecTable(d.Local.Position))
	return t
}

func (m *ScriptManager) vecTable(v mgl64.Vec3) *lua.LTable {
	t := m.engine.NewTable()
	t.RawSetString("x", lua.LNumber(v[0]))
	t.RawSetString("y", lua.LNumber(v[1]))
	t.RawSetString("z", lua.LNumber(v[2]))
	return t
}

// vecFromTable accepts either { x, y, z } keys or a three-element array.
func vecFromTable(t *lua.LTable) mgl64.Vec3 {
	if t.RawGetString("x") != lua.LNil {
		return mgl64.Vec3{lNum(t, "x"), lNum(t, "y"), lNum(t, "z")}
	}
	return mgl64.Vec3{
		float64(lua.LVAsNumber(t.RawGetInt(1))),
		float64(lua.LVAsNumber(t.RawGetInt(2))),
		float64(lua.LVAsNumber(t.RawGetInt(3))),
	}
}
