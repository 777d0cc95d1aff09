package event

import "github.com/l1jgo/worldcore/internal/core/ecs"

// World structural events.

type ObjectCreated struct {
	ID     ecs.ID
	Parent ecs.ID
	Static bool
}

type ObjectDeleted struct {
	ID ecs.ID
}

type ObjectReparented struct {
	ID        ecs.ID
	OldParent ecs.ID
	NewParent ecs.ID
}

type ComponentCreated struct {
	Manager string
	Handle  ecs.ComponentHandle
	Owner   ecs.ID
}

type ComponentDeleted struct {
	Manager string
	Handle  ecs.ComponentHandle
}
