package component

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/world"
)

const step = 100 * time.Millisecond

type fixture struct {
	w        *world.World
	rotator  *RotatorManager
	mover    *MoverManager
	lifetime *LifetimeManager
}

func newFixture(t *testing.T, granularity int) *fixture {
	t.Helper()
	w := world.New(world.Config{Simulating: true, Workers: 4}, zaptest.NewLogger(t))
	t.Cleanup(w.Close)
	f := &fixture{
		w:        w,
		rotator:  NewRotatorManager(w, granularity),
		mover:    NewMoverManager(w, granularity),
		lifetime: NewLifetimeManager(w, granularity),
	}
	require.NoError(t, w.RegisterManager(f.rotator))
	require.NoError(t, w.RegisterManager(f.mover))
	require.NoError(t, w.RegisterManager(f.lifetime))
	require.NoError(t, w.ResolveUpdateFunctions())
	return f
}

func (f *fixture) run(t *testing.T, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		require.NoError(t, f.w.Update(context.Background(), step))
	}
}

func params(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	require.NotEmpty(t, doc.Content)
	return doc.Content[0]
}

func TestMoverIntegrates(t *testing.T) {
	f := newFixture(t, 0)
	id, _ := f.w.CreateObject(world.ObjectDesc{})
	_, err := f.mover.Add(id, Mover{Velocity: mgl64.Vec3{1, 0, 0}})
	require.NoError(t, err)

	f.run(t, 10)
	local, _ := f.w.LocalTransform(id)
	assert.True(t, world.Near(local.Position, mgl64.Vec3{1, 0, 0}, 1e-9), "%v", local.Position)
}

func TestMoverClampsSpeed(t *testing.T) {
	f := newFixture(t, 0)
	id, _ := f.w.CreateObject(world.ObjectDesc{})
	h, err := f.mover.Add(id, Mover{Acceleration: mgl64.Vec3{100, 0, 0}, MaxSpeed: 2})
	require.NoError(t, err)

	f.run(t, 5)
	mv, ok := f.mover.TryGet(h)
	require.True(t, ok)
	assert.InDelta(t, 2, mv.Velocity.Len(), 1e-9)
}

func TestMoverWaitsForSimulation(t *testing.T) {
	f := newFixture(t, 0)
	f.w.SetSimulating(false)
	id, _ := f.w.CreateObject(world.ObjectDesc{})
	_, err := f.mover.Add(id, Mover{Velocity: mgl64.Vec3{1, 0, 0}})
	require.NoError(t, err)

	f.run(t, 3)
	local, _ := f.w.LocalTransform(id)
	assert.Equal(t, mgl64.Vec3{}, local.Position)
}

func TestRotatorSpinsChildWithParent(t *testing.T) {
	f := newFixture(t, 0)
	root, _ := f.w.CreateObject(world.ObjectDesc{})
	child, _ := f.w.CreateObject(world.ObjectDesc{Parent: root, Local: world.Translation(mgl64.Vec3{1, 0, 0})})
	_, err := f.rotator.Add(root, Rotator{Axis: mgl64.Vec3{0, 0, 2}, Speed: math.Pi / 2})
	require.NoError(t, err)

	f.run(t, 10)
	g, _ := f.w.GlobalTransform(child)
	assert.True(t, world.Near(g.Position, mgl64.Vec3{0, 1, 0}, 1e-9), "%v", g.Position)
}

func TestInactiveOwnerIsSkipped(t *testing.T) {
	f := newFixture(t, 0)
	id, _ := f.w.CreateObject(world.ObjectDesc{Inactive: true})
	_, err := f.mover.Add(id, Mover{Velocity: mgl64.Vec3{1, 0, 0}})
	require.NoError(t, err)

	f.run(t, 2)
	local, _ := f.w.LocalTransform(id)
	assert.Equal(t, mgl64.Vec3{}, local.Position)
}

func TestLifetimeDeletesOwnerAtNextSyncPoint(t *testing.T) {
	f := newFixture(t, 0)
	root, _ := f.w.CreateObject(world.ObjectDesc{})
	child, _ := f.w.CreateObject(world.ObjectDesc{Parent: root})
	_, err := f.lifetime.Attach(root, params(t, "seconds: 0.25"))
	require.NoError(t, err)
	_, err = f.mover.Add(child, Mover{})
	require.NoError(t, err)

	f.run(t, 3)
	assert.True(t, f.w.IsAlive(root), "expired during frame 3, deleted at frame 4")
	f.run(t, 1)
	assert.False(t, f.w.IsAlive(root))
	assert.False(t, f.w.IsAlive(child))
	assert.Equal(t, 0, f.lifetime.Len())
	assert.Equal(t, 0, f.mover.Len())
}

func TestAttachFromParams(t *testing.T) {
	f := newFixture(t, 0)
	id, _ := f.w.CreateObject(world.ObjectDesc{})

	h, err := f.mover.Attach(id, params(t, "velocity: [1, 2, 3]\nmax_speed: 10"))
	require.NoError(t, err)
	mv, _ := f.mover.TryGet(h)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, mv.Velocity)
	assert.Equal(t, 10.0, mv.MaxSpeed)

	h, err = f.rotator.Attach(id, nil)
	require.NoError(t, err)
	r, _ := f.rotator.TryGet(h)
	assert.Equal(t, mgl64.Vec3{0, 1, 0}, r.Axis)
	assert.Equal(t, 1.0, r.Speed)

	_, err = f.mover.Attach(id, params(t, "velocity: [1, 2]"))
	assert.Error(t, err)
	_, err = f.lifetime.Attach(id, params(t, "seconds: 0"))
	assert.Error(t, err)
	_, err = f.rotator.Attach(id, params(t, "axis: [0, 0, 0]"))
	assert.Error(t, err)
}

func TestAddRejectsSecondComponent(t *testing.T) {
	f := newFixture(t, 0)
	id, _ := f.w.CreateObject(world.ObjectDesc{})
	_, err := f.mover.Add(id, Mover{})
	require.NoError(t, err)
	_, err = f.mover.Add(id, Mover{})
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

// Mover and rotator share the async phase and write different fields of the
// same transform records.
func TestMoverAndRotatorRunTogether(t *testing.T) {
	const n = 2000
	run := func(granularity int) []world.Transform {
		f := newFixture(t, granularity)
		ids := make([]world.GameObjectID, n)
		for i := range ids {
			id, err := f.w.CreateObject(world.ObjectDesc{})
			require.NoError(t, err)
			ids[i] = id
			_, err = f.mover.Add(id, Mover{Velocity: mgl64.Vec3{float64(i % 5), 0, 1}})
			require.NoError(t, err)
			_, err = f.rotator.Add(id, Rotator{Axis: mgl64.Vec3{0, 1, 0}, Speed: float64(i%3) + 0.5})
			require.NoError(t, err)
		}
		f.run(t, 4)
		out := make([]world.Transform, n)
		for i, id := range ids {
			out[i], _ = f.w.LocalTransform(id)
		}
		return out
	}
	want := run(0)
	got := run(64)
	for i := range want {
		require.Equal(t, want[i], got[i], "object %d", i)
	}
}

func TestExportRoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	id, _ := f.w.CreateObject(world.ObjectDesc{})
	_, err := f.mover.Add(id, Mover{Velocity: mgl64.Vec3{1, 2, 3}, MaxSpeed: 4})
	require.NoError(t, err)
	_, err = f.lifetime.Add(id, Lifetime{Remaining: 1500 * time.Millisecond})
	require.NoError(t, err)

	node, ok := f.mover.Export(id)
	require.True(t, ok)
	got, err := decodeMover(node)
	require.NoError(t, err)
	assert.Equal(t, Mover{Velocity: mgl64.Vec3{1, 2, 3}, MaxSpeed: 4}, got)

	node, ok = f.lifetime.Export(id)
	require.True(t, ok)
	l, err := decodeLifetime(node)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, l.Remaining)

	_, ok = f.rotator.Export(id)
	assert.False(t, ok)
}
