package data

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/world"
)

// ErrUnknownComponent is returned for a scene component whose type names no
// registered manager, or a manager that cannot be built from parameters.
var ErrUnknownComponent = errors.New("data: unknown scene component")

// SceneFile is the top level of a scene YAML file.
type SceneFile struct {
	Name    string        `yaml:"name"`
	Objects []SceneObject `yaml:"objects"`
}

// SceneObject describes one object and its subtree.
type SceneObject struct {
	Name       string           `yaml:"name,omitempty"`
	Static     bool             `yaml:"static,omitempty"`
	Inactive   bool             `yaml:"inactive,omitempty"`
	Position   []float64        `yaml:"position,omitempty,flow"`
	Rotation   []float64        `yaml:"rotation,omitempty,flow"` // Euler XYZ, degrees
	Scale      []float64        `yaml:"scale,omitempty,flow"`    // one value scales uniformly
	Components []SceneComponent `yaml:"components,omitempty"`
	Children   []SceneObject    `yaml:"children,omitempty"`
}

// SceneComponent names a manager and the parameters its Attach decodes.
type SceneComponent struct {
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params,omitempty"`
}

// LoadScene loads a scene file.
func LoadScene(path string) (*SceneFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	s, err := ParseScene(raw)
	if err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}
	return s, nil
}

// ParseScene decodes scene YAML.
func ParseScene(raw []byte) (*SceneFile, error) {
	var s SceneFile
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Count returns the number of objects in the scene, children included.
func (s *SceneFile) Count() int {
	var walk func([]SceneObject) int
	walk = func(objs []SceneObject) int {
		n := len(objs)
		for i := range objs {
			n += walk(objs[i].Children)
		}
		return n
	}
	return walk(s.Objects)
}

// Transform converts the object's position, rotation and scale.
func (o *SceneObject) Transform() (world.Transform, error) {
	t := world.Identity()
	if len(o.Position) > 0 {
		if len(o.Position) != 3 {
			return t, fmt.Errorf("position needs 3 components, got %d", len(o.Position))
		}
		t.Position = mgl64.Vec3{o.Position[0], o.Position[1], o.Position[2]}
	}
	if len(o.Rotation) > 0 {
		if len(o.Rotation) != 3 {
			return t, fmt.Errorf("rotation needs 3 angles, got %d", len(o.Rotation))
		}
		t.Rotation = mgl64.AnglesToQuat(
			mgl64.DegToRad(o.Rotation[0]),
			mgl64.DegToRad(o.Rotation[1]),
			mgl64.DegToRad(o.Rotation[2]),
			mgl64.XYZ,
		)
	}
	switch len(o.Scale) {
	case 0:
	case 1:
		t.Scale = mgl64.Vec3{o.Scale[0], o.Scale[0], o.Scale[0]}
	case 3:
		t.Scale = mgl64.Vec3{o.Scale[0], o.Scale[1], o.Scale[2]}
	default:
		return t, fmt.Errorf("scale needs 1 or 3 components, got %d", len(o.Scale))
	}
	return t, nil
}

// Instantiated reports what Instantiate created.
type Instantiated struct {
	Roots      []world.GameObjectID
	Objects    int
	Components int
}

// Instantiate creates every scene object under parent (zero for roots).
// Components are created through the world's registered managers, which
// must implement component.Attacher. On error the objects created so far
// are deleted again.
func Instantiate(w *world.World, s *SceneFile, parent world.GameObjectID) (Instantiated, error) {
	var res Instantiated
	for i := range s.Objects {
		id, err := instantiate(w, &s.Objects[i], parent, &res)
		if err != nil {
			for _, root := range res.Roots {
				_ = w.DeleteObject(root)
			}
			if !id.IsZero() {
				_ = w.DeleteObject(id)
			}
			return Instantiated{}, fmt.Errorf("scene %q object %d: %w", s.Name, i, err)
		}
		res.Roots = append(res.Roots, id)
	}
	return res, nil
}

// instantiate returns the id of the object it created even on failure so the
// caller can remove the partial subtree.
func instantiate(w *world.World, o *SceneObject, parent world.GameObjectID, res *Instantiated) (world.GameObjectID, error) {
	local, err := o.Transform()
	if err != nil {
		return 0, fmt.Errorf("%q: %w", o.Name, err)
	}
	id, err := w.CreateObject(world.ObjectDesc{
		Name:     o.Name,
		Parent:   parent,
		Static:   o.Static,
		Inactive: o.Inactive,
		Local:    local,
	})
	if err != nil {
		return 0, fmt.Errorf("%q: %w", o.Name, err)
	}
	res.Objects++

	for _, c := range o.Components {
		m, ok := w.Manager(c.Type)
		if !ok {
			return id, fmt.Errorf("%q: %w: %s", o.Name, ErrUnknownComponent, c.Type)
		}
		a, ok := m.(component.Attacher)
		if !ok {
			return id, fmt.Errorf("%q: %w: %s has no scene parameters", o.Name, ErrUnknownComponent, c.Type)
		}
		params := c.Params
		if _, err := a.Attach(id, &params); err != nil {
			return id, fmt.Errorf("%q: %s: %w", o.Name, c.Type, err)
		}
		res.Components++
	}
	for i := range o.Children {
		if _, err := instantiate(w, &o.Children[i], id, res); err != nil {
			return id, err
		}
	}
	return id, nil
}
