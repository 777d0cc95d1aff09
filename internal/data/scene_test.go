package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/world"
)

const solar = `
name: solar
objects:
  - name: sun
    position: [0, 0, 0]
    components:
      - type: rotator
        params: { axis: [0, 1, 0], speed: 0.5 }
    children:
      - name: earth
        position: [10, 0, 0]
        scale: [0.5]
        components:
          - type: rotator
          - type: mover
            params: { velocity: [0, 0, 1] }
        children:
          - name: moon
            position: [2, 0, 0]
  - name: ground
    static: true
    rotation: [0, 90, 0]
    children:
      - name: rock
        static: true
        position: [1, 0, 0]
`

func newSceneWorld(t *testing.T) (*world.World, *component.RotatorManager, *component.MoverManager) {
	t.Helper()
	w := world.New(world.Config{Workers: 2}, zaptest.NewLogger(t))
	t.Cleanup(w.Close)
	rot := component.NewRotatorManager(w, 0)
	mov := component.NewMoverManager(w, 0)
	require.NoError(t, w.RegisterManager(rot))
	require.NoError(t, w.RegisterManager(mov))
	return w, rot, mov
}

func TestParseScene(t *testing.T) {
	s, err := ParseScene([]byte(solar))
	require.NoError(t, err)
	assert.Equal(t, "solar", s.Name)
	assert.Len(t, s.Objects, 2)
	assert.Equal(t, 5, s.Count())

	earth := s.Objects[0].Children[0]
	tr, err := earth.Transform()
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{10, 0, 0}, tr.Position)
	assert.Equal(t, mgl64.Vec3{0.5, 0.5, 0.5}, tr.Scale)
	assert.Len(t, earth.Components, 2)
}

func TestSceneObjectTransformErrors(t *testing.T) {
	for name, o := range map[string]SceneObject{
		"position": {Position: []float64{1}},
		"rotation": {Rotation: []float64{1, 2}},
		"scale":    {Scale: []float64{1, 2}},
	} {
		_, err := o.Transform()
		assert.Error(t, err, name)
	}
	tr, err := (&SceneObject{Rotation: []float64{0, 90, 0}}).Transform()
	require.NoError(t, err)
	assert.True(t, world.Near(tr.Rotation.Rotate(mgl64.Vec3{1, 0, 0}), mgl64.Vec3{0, 0, -1}, 1e-9))
}

func TestInstantiate(t *testing.T) {
	w, rot, mov := newSceneWorld(t)
	s, err := ParseScene([]byte(solar))
	require.NoError(t, err)

	res, err := Instantiate(w, s, 0)
	require.NoError(t, err)
	assert.Len(t, res.Roots, 2)
	assert.Equal(t, 5, res.Objects)
	assert.Equal(t, 3, res.Components)
	assert.Equal(t, 2, rot.Len())
	assert.Equal(t, 1, mov.Len())

	moon := w.FindByName("moon")
	require.Len(t, moon, 1)
	obj, _ := w.TryGetObject(moon[0])
	assert.Equal(t, 2, obj.Level())
	g, _ := w.GlobalTransform(moon[0])
	assert.True(t, world.Near(g.Position, mgl64.Vec3{11, 0, 0}, 1e-9), "%v", g.Position)

	rock := w.FindByName("rock")
	require.Len(t, rock, 1)
	obj, _ = w.TryGetObject(rock[0])
	assert.True(t, obj.IsStatic())
	g, _ = w.GlobalTransform(rock[0])
	assert.True(t, world.Near(g.Position, mgl64.Vec3{0, 0, -1}, 1e-9), "%v", g.Position)
}

func TestInstantiateUnderParent(t *testing.T) {
	w, _, _ := newSceneWorld(t)
	anchor, _ := w.CreateObject(world.ObjectDesc{Local: world.Translation(mgl64.Vec3{0, 5, 0})})
	s := &SceneFile{Objects: []SceneObject{{Name: "leaf", Position: []float64{1, 0, 0}}}}

	res, err := Instantiate(w, s, anchor)
	require.NoError(t, err)
	assert.Equal(t, []world.GameObjectID{res.Roots[0]}, w.Children(anchor))
	g, _ := w.GlobalTransform(res.Roots[0])
	assert.Equal(t, mgl64.Vec3{1, 5, 0}, g.Position)
}

func TestInstantiateRollsBack(t *testing.T) {
	w, _, _ := newSceneWorld(t)
	s, err := ParseScene([]byte(`
objects:
  - name: ok
  - name: parent
    children:
      - name: child
        components:
          - type: teleporter
`))
	require.NoError(t, err)

	_, err = Instantiate(w, s, 0)
	assert.ErrorIs(t, err, ErrUnknownComponent)
	assert.Equal(t, 0, w.ObjectCount())
}

func TestInstantiateRejectsBadParams(t *testing.T) {
	w, _, _ := newSceneWorld(t)
	s, err := ParseScene([]byte(`
objects:
  - name: a
    components:
      - type: mover
        params: { velocity: [1, 2] }
`))
	require.NoError(t, err)
	_, err = Instantiate(w, s, 0)
	assert.ErrorContains(t, err, "mover velocity")
	assert.Equal(t, 0, w.ObjectCount())
}

func TestLoadSceneRoundTrip(t *testing.T) {
	s, err := ParseScene([]byte(solar))
	require.NoError(t, err)
	out, err := yaml.Marshal(s)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "solar.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	back, err := LoadScene(path)
	require.NoError(t, err)
	assert.Equal(t, s.Count(), back.Count())
	assert.Equal(t, "earth", back.Objects[0].Children[0].Name)

	_, err = LoadScene(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
