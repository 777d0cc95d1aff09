package world

import "errors"

var (
	// ErrReentrantMutation is returned when a structural change is attempted
	// while an update phase is in flight. With Debug set it panics instead.
	ErrReentrantMutation = errors.New("world: structural mutation during update")
	ErrStaticReparent    = errors.New("world: static objects cannot be reparented")
	ErrHierarchyMismatch = errors.New("world: static and dynamic objects cannot share a hierarchy")
	ErrCycle             = errors.New("world: object cannot be parented to its own descendant")
	ErrUnknownManager    = errors.New("world: component manager not registered")
)
