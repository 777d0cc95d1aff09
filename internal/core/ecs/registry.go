package ecs

import (
	"errors"
	"fmt"
)

// ErrDuplicateManager is returned when two managers share a name.
var ErrDuplicateManager = errors.New("ecs: duplicate component manager")

// Manager is implemented by every component manager so the Registry can
// bulk-remove an object's components on destroy and flush dead lists.
type Manager interface {
	Name() string
	SetTypeID(id uint16)
	DeleteComponent(h ComponentHandle) error
	RemoveOwner(owner ID) int
	FlushDead() int
	Len() int
}

// Registry holds one manager per component type. The manager's registry
// index is its component type id.
type Registry struct {
	managers []Manager
	byName   map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		managers: make([]Manager, 0, 16),
		byName:   make(map[string]int, 16),
	}
}

// Register adds a manager and assigns its type id.
func (r *Registry) Register(m Manager) (uint16, error) {
	if _, ok := r.byName[m.Name()]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateManager, m.Name())
	}
	id := uint16(len(r.managers) + 1)
	m.SetTypeID(id)
	r.byName[m.Name()] = len(r.managers)
	r.managers = append(r.managers, m)
	return id, nil
}

// Get looks up a manager by name.
func (r *Registry) Get(name string) (Manager, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.managers[i], true
}

// ByType looks up a manager by component type id.
func (r *Registry) ByType(id uint16) (Manager, bool) {
	if id == 0 || int(id) > len(r.managers) {
		return nil, false
	}
	return r.managers[id-1], true
}

// RemoveAll marks the owner's components dead in every manager.
func (r *Registry) RemoveAll(owner ID) int {
	n := 0
	for _, m := range r.managers {
		n += m.RemoveOwner(owner)
	}
	return n
}

// FlushDead flushes every manager's dead list.
func (r *Registry) FlushDead() int {
	n := 0
	for _, m := range r.managers {
		n += m.FlushDead()
	}
	return n
}

// Each visits managers in registration order.
func (r *Registry) Each(fn func(m Manager)) {
	for _, m := range r.managers {
		fn(m)
	}
}

func (r *Registry) Len() int { return len(r.managers) }
