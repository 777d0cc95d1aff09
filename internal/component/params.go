package component

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// vec decodes a YAML sequence of up to three numbers.
type vec []float64

func (v vec) vec3(def mgl64.Vec3) (mgl64.Vec3, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return mgl64.Vec3{v[0], v[1], v[2]}, nil
	}
	return mgl64.Vec3{}, fmt.Errorf("vector needs 3 components, got %d", len(v))
}

type rotatorParams struct {
	Axis  vec     `yaml:"axis"`
	Speed float64 `yaml:"speed"` // radians per second
}

type moverParams struct {
	Velocity     vec     `yaml:"velocity"`
	Acceleration vec     `yaml:"acceleration"`
	MaxSpeed     float64 `yaml:"max_speed"`
}

type lifetimeParams struct {
	Seconds float64 `yaml:"seconds"`
}

func decode(node *yaml.Node, out any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	return node.Decode(out)
}

func decodeRotator(node *yaml.Node) (Rotator, error) {
	p := rotatorParams{Speed: 1}
	if err := decode(node, &p); err != nil {
		return Rotator{}, fmt.Errorf("rotator params: %w", err)
	}
	axis, err := p.Axis.vec3(mgl64.Vec3{0, 1, 0})
	if err != nil {
		return Rotator{}, fmt.Errorf("rotator axis: %w", err)
	}
	if axis.Len() == 0 {
		return Rotator{}, fmt.Errorf("rotator axis must be non-zero")
	}
	return Rotator{Axis: axis.Normalize(), Speed: p.Speed}, nil
}

func decodeMover(node *yaml.Node) (Mover, error) {
	var p moverParams
	if err := decode(node, &p); err != nil {
		return Mover{}, fmt.Errorf("mover params: %w", err)
	}
	vel, err := p.Velocity.vec3(mgl64.Vec3{})
	if err != nil {
		return Mover{}, fmt.Errorf("mover velocity: %w", err)
	}
	acc, err := p.Acceleration.vec3(mgl64.Vec3{})
	if err != nil {
		return Mover{}, fmt.Errorf("mover acceleration: %w", err)
	}
	return Mover{Velocity: vel, Acceleration: acc, MaxSpeed: p.MaxSpeed}, nil
}

func decodeLifetime(node *yaml.Node) (Lifetime, error) {
	var p lifetimeParams
	if err := decode(node, &p); err != nil {
		return Lifetime{}, fmt.Errorf("lifetime params: %w", err)
	}
	if p.Seconds <= 0 {
		return Lifetime{}, fmt.Errorf("lifetime seconds must be positive, got %v", p.Seconds)
	}
	return Lifetime{Remaining: time.Duration(p.Seconds * float64(time.Second))}, nil
}

func vecOf(v mgl64.Vec3) vec { return vec{v[0], v[1], v[2]} }

func encode(v any) (*yaml.Node, bool) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, false
	}
	return &n, true
}
