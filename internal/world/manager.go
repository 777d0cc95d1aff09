package world

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/event"
	"github.com/l1jgo/worldcore/internal/core/system"
)

// ComponentManager owns the storage and update functions of one component
// type. Initialize is called once by RegisterManager and is where the
// manager contributes its update functions.
type ComponentManager interface {
	ecs.Manager
	Initialize(w *World) error
}

// ComponentStore is a manager that can create components of type T.
type ComponentStore[T any] interface {
	ComponentManager
	CreateComponent(owner ecs.ID) (ecs.ComponentHandle, *T)
}

// RegisterManager adds m and initializes it. A manager whose Initialize fails
// stays registered so its type id is not reused; the error is returned.
// Called during an update phase it registers m at the next sync point and
// returns ErrReentrantMutation.
func (w *World) RegisterManager(m ComponentManager) error {
	if err := w.checkStructural("RegisterManager", func(w *World) {
		if err := w.RegisterManager(m); err != nil {
			w.log.Warn("deferred manager registration failed", zap.String("manager", m.Name()), zap.Error(err))
		}
	}); err != nil {
		return err
	}
	id, err := w.managers.Register(m)
	if err != nil {
		return err
	}
	w.named[m.Name()] = m
	if err := m.Initialize(w); err != nil {
		return fmt.Errorf("initialize manager %q: %w", m.Name(), err)
	}
	w.log.Info("component manager registered",
		zap.String("manager", m.Name()),
		zap.Uint16("type", id),
	)
	return nil
}

// Manager looks up a registered manager by name.
func (w *World) Manager(name string) (ComponentManager, bool) {
	m, ok := w.named[name]
	return m, ok
}

// Managers visits managers in registration order.
func (w *World) Managers(fn func(m ComponentManager)) {
	w.managers.Each(func(m ecs.Manager) {
		fn(w.named[m.Name()])
	})
}

// RegisterUpdateFunction adds desc to the phase-ordered registry. A function
// whose dependencies are not registered yet waits until they are.
func (w *World) RegisterUpdateFunction(desc system.UpdateFunctionDesc) error {
	if err := w.checkStructural("RegisterUpdateFunction", func(w *World) {
		if err := w.RegisterUpdateFunction(desc); err != nil {
			w.log.Warn("deferred update function registration failed", zap.String("function", desc.Name), zap.Error(err))
		}
	}); err != nil {
		return err
	}
	return w.registry.Register(desc)
}

// CreateComponent creates a component of m for owner. Called during an
// update phase it creates the component at the next sync point and returns
// ErrReentrantMutation; use QueueComponent to initialize a component created
// that way.
func CreateComponent[T any](w *World, m ComponentStore[T], owner GameObjectID) (ecs.ComponentHandle, *T, error) {
	if err := w.checkStructural("CreateComponent", func(w *World) {
		if _, _, err := CreateComponent(w, m, owner); err != nil {
			w.log.Debug("deferred component dropped", zap.String("manager", m.Name()), zap.Error(err))
		}
	}); err != nil {
		return ecs.ComponentHandle{}, nil, err
	}
	if reg, ok := w.named[m.Name()]; !ok || reg != ComponentManager(m) {
		return ecs.ComponentHandle{}, nil, fmt.Errorf("%w: %q", ErrUnknownManager, m.Name())
	}
	if !w.ids.Alive(owner) {
		return ecs.ComponentHandle{}, nil, fmt.Errorf("create %s component: %w: owner %s", m.Name(), ecs.ErrInvalidHandle, owner)
	}
	h, v := m.CreateComponent(owner)
	event.Emit(w.events, event.ComponentCreated{Manager: m.Name(), Handle: h, Owner: owner})
	return h, v, nil
}

// QueueComponent creates a component at the next sync point and then calls
// init with it, unless owner died in the meantime. This is how update
// functions create components.
func QueueComponent[T any](w *World, m ComponentStore[T], owner GameObjectID, init func(h ecs.ComponentHandle, v *T)) {
	w.Defer(func(w *World) {
		h, v, err := CreateComponent(w, m, owner)
		if err != nil {
			w.log.Debug("queued component dropped", zap.String("manager", m.Name()), zap.Error(err))
			return
		}
		if init != nil {
			init(h, v)
		}
	})
}

// DeleteComponent marks h dead. It disappears from iteration immediately and
// its slot is released at the next sync point.
func (w *World) DeleteComponent(h ecs.ComponentHandle) error {
	if err := w.checkStructural("DeleteComponent", func(w *World) { _ = w.DeleteComponent(h) }); err != nil {
		return err
	}
	m, ok := w.managers.ByType(h.Type)
	if !ok {
		return fmt.Errorf("%w: type %d", ErrUnknownManager, h.Type)
	}
	if err := m.DeleteComponent(h); err != nil {
		return err
	}
	event.Emit(w.events, event.ComponentDeleted{Manager: m.Name(), Handle: h})
	return nil
}
