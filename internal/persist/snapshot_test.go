package persist

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/data"
	"github.com/l1jgo/worldcore/internal/world"
)

const scene = `
name: snapshot
objects:
  - name: sun
    components:
      - type: rotator
        params: { axis: [0, 0, 1], speed: 0.5 }
    children:
      - name: earth
        position: [10, 0, 0]
        scale: [0.5]
        components:
          - type: mover
            params: { velocity: [0, 0, 1], max_speed: 3 }
          - type: lifetime
            params: { seconds: 30 }
        children:
          - name: moon
            inactive: true
            position: [2, 0, 0]
  - name: ground
    static: true
    rotation: [0, 90, 0]
    children:
      - name: rock
        static: true
        position: [1, 0, 0]
`

type managers struct {
	rotator  *component.RotatorManager
	mover    *component.MoverManager
	lifetime *component.LifetimeManager
}

func newWorld(t *testing.T, index uint8) (*world.World, managers) {
	t.Helper()
	w := world.New(world.Config{Index: index, Workers: 2}, zaptest.NewLogger(t))
	t.Cleanup(w.Close)
	m := managers{
		rotator:  component.NewRotatorManager(w, 0),
		mover:    component.NewMoverManager(w, 0),
		lifetime: component.NewLifetimeManager(w, 0),
	}
	require.NoError(t, w.RegisterManager(m.rotator))
	require.NoError(t, w.RegisterManager(m.mover))
	require.NoError(t, w.RegisterManager(m.lifetime))
	return w, m
}

func populated(t *testing.T) *world.World {
	t.Helper()
	w, _ := newWorld(t, 3)
	s, err := data.ParseScene([]byte(scene))
	require.NoError(t, err)
	_, err = data.Instantiate(w, s, 0)
	require.NoError(t, err)
	return w
}

func only(t *testing.T, w *world.World, name string) world.GameObjectID {
	t.Helper()
	ids := w.FindByName(name)
	require.Len(t, ids, 1, name)
	return ids[0]
}

func TestSnapshotOrdersParentsFirst(t *testing.T) {
	snap := SnapshotWorld(populated(t))
	assert.Equal(t, uint8(3), snap.World)
	require.Len(t, snap.Objects, 5)
	assert.Equal(t, 3, snap.Components())

	byName := map[string]int{}
	for i, o := range snap.Objects {
		byName[o.Name] = i
		if o.Parent >= 0 {
			assert.Less(t, o.Parent, i, o.Name)
		}
	}
	assert.Equal(t, -1, snap.Objects[byName["sun"]].Parent)
	assert.Equal(t, byName["sun"], snap.Objects[byName["earth"]].Parent)
	assert.Equal(t, byName["earth"], snap.Objects[byName["moon"]].Parent)
	assert.True(t, snap.Objects[byName["moon"]].Inactive)
	assert.True(t, snap.Objects[byName["rock"]].Static)
	assert.Equal(t, [3]float64{0.5, 0.5, 0.5}, snap.Objects[byName["earth"]].Scale)

	var types []string
	for _, c := range snap.Objects[byName["earth"]].Components {
		types = append(types, c.Type)
	}
	assert.Equal(t, []string{component.MoverName, component.LifetimeName}, types)
}

func TestEncodeDecode(t *testing.T) {
	snap := SnapshotWorld(populated(t))
	payload, digest, err := Encode(snap)
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	back, err := Decode(payload, digest)
	require.NoError(t, err)
	assert.Equal(t, snap.Frame, back.Frame)
	assert.True(t, snap.TakenAt.Equal(back.TakenAt))
	require.Len(t, back.Objects, len(snap.Objects))
	for i := range snap.Objects {
		assert.Equal(t, snap.Objects[i].Position, back.Objects[i].Position)
		assert.Equal(t, snap.Objects[i].Rotation, back.Objects[i].Rotation)
		assert.Len(t, back.Objects[i].Components, len(snap.Objects[i].Components))
	}

	payload[len(payload)/2] ^= 0xff
	_, err = Decode(payload, digest)
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestRestore(t *testing.T) {
	src := populated(t)
	payload, digest, err := Encode(SnapshotWorld(src))
	require.NoError(t, err)
	snap, err := Decode(payload, digest)
	require.NoError(t, err)

	dst, m := newWorld(t, 3)
	roots, err := Restore(dst, snap)
	require.NoError(t, err)
	assert.Len(t, roots, 2)
	assert.Equal(t, src.ObjectCount(), dst.ObjectCount())

	sun, earth, moon := only(t, dst, "sun"), only(t, dst, "earth"), only(t, dst, "moon")
	obj, _ := dst.TryGetObject(earth)
	assert.Equal(t, sun, obj.Parent())
	obj, _ = dst.TryGetObject(moon)
	assert.False(t, obj.IsActive())
	obj, _ = dst.TryGetObject(only(t, dst, "rock"))
	assert.True(t, obj.IsStatic())

	for _, name := range []string{"sun", "earth", "moon", "ground", "rock"} {
		want, _ := src.LocalTransform(only(t, src, name))
		got, _ := dst.LocalTransform(only(t, dst, name))
		assert.True(t, want.ApproxEqual(got, 1e-12), name)
	}

	hs := m.mover.ComponentsOf(earth)
	require.Len(t, hs, 1)
	mv, _ := m.mover.TryGet(hs[0])
	assert.Equal(t, mgl64.Vec3{0, 0, 1}, mv.Velocity)
	assert.Equal(t, 3.0, mv.MaxSpeed)
	assert.Len(t, m.lifetime.ComponentsOf(earth), 1)
	assert.Len(t, m.rotator.ComponentsOf(sun), 1)
}

func TestRestoreRollsBack(t *testing.T) {
	snap := SnapshotWorld(populated(t))
	snap.Objects[len(snap.Objects)-1].Components = []ComponentRecord{{Type: "missing"}}

	dst, _ := newWorld(t, 3)
	_, err := Restore(dst, snap)
	assert.ErrorIs(t, err, data.ErrUnknownComponent)
	assert.Equal(t, 0, dst.ObjectCount())

	snap.Objects[0].Parent = 2
	_, err = Restore(dst, snap)
	assert.Error(t, err)
	assert.Equal(t, 0, dst.ObjectCount())
}
