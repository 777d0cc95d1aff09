package component

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/world"
)

// ErrAlreadyAttached is returned when an object already has a component of
// the manager's type. Update functions write the owner's transform, so two
// components of one type on one owner would race.
var ErrAlreadyAttached = errors.New("component: owner already has this component")

// Attacher is implemented by managers that can create a component from
// scene parameters.
type Attacher interface {
	Attach(owner world.GameObjectID, params *yaml.Node) (ecs.ComponentHandle, error)
}

// Exporter is implemented by managers whose components can be written back
// as the parameters Attach accepts.
type Exporter interface {
	Export(owner world.GameObjectID) (*yaml.Node, bool)
}

type store[T any] interface {
	world.ComponentStore[T]
	ComponentsOf(owner ecs.ID) []ecs.ComponentHandle
}

func add[T any](w *world.World, m store[T], owner world.GameObjectID, v T) (ecs.ComponentHandle, error) {
	if len(m.ComponentsOf(owner)) > 0 {
		return ecs.ComponentHandle{}, fmt.Errorf("%s on %s: %w", m.Name(), owner, ErrAlreadyAttached)
	}
	h, p, err := world.CreateComponent[T](w, m, owner)
	if err != nil {
		return ecs.ComponentHandle{}, err
	}
	*p = v
	return h, nil
}

// first returns the component of owner, if any.
func first[T any](m interface {
	ComponentsOf(owner ecs.ID) []ecs.ComponentHandle
	TryGet(h ecs.ComponentHandle) (*T, bool)
}, owner world.GameObjectID) (*T, bool) {
	hs := m.ComponentsOf(owner)
	if len(hs) == 0 {
		return nil, false
	}
	return m.TryGet(hs[0])
}

// activeTransform returns the dynamic transform record of an active owner.
func activeTransform(w *world.World, owner world.GameObjectID) (*world.TransformationData, bool) {
	obj, ok := w.TryGetObject(owner)
	if !ok || !obj.IsActive() {
		return nil, false
	}
	return w.TransformData(owner)
}
