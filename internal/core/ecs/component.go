package ecs

import (
	"fmt"

	"github.com/l1jgo/worldcore/internal/core/arena"
)

// ComponentHandle identifies one component instance. Type is the manager's
// registry index; ID is issued by that manager's ID table.
type ComponentHandle struct {
	Type uint16
	ID   ID
}

func (h ComponentHandle) IsZero() bool { return h.ID.IsZero() }

func (h ComponentHandle) String() string {
	return fmt.Sprintf("c%d/%s", h.Type, h.ID)
}

// StorageEntry is the block-storage record of one component.
type StorageEntry[T any] struct {
	Owner  ID
	Handle ID
	Dead   bool
	Value  T
}

// ManagerBase owns block storage and handle indirection for one component
// type. Deletion is deferred: DeleteComponent marks the entry dead, which
// hides it from iteration, and FlushDead releases it at the sync point.
type ManagerBase[T any] struct {
	name    string
	typeID  uint16
	storage *arena.Storage[StorageEntry[T]]
	ids     *IDTable[arena.Slot]
	owners  map[ID][]ID
	dead    []ID
	live    int
}

func NewManagerBase[T any](name string, alloc arena.Allocator, world uint8, opts ...arena.Option) *ManagerBase[T] {
	return &ManagerBase[T]{
		name:    name,
		storage: arena.NewStorage[StorageEntry[T]](alloc, opts...),
		ids:     NewIDTable[arena.Slot](world),
		owners:  make(map[ID][]ID, 256),
		dead:    make([]ID, 0, 64),
	}
}

func (m *ManagerBase[T]) Name() string        { return m.name }
func (m *ManagerBase[T]) TypeID() uint16      { return m.typeID }
func (m *ManagerBase[T]) SetTypeID(id uint16) { m.typeID = id }

// Len returns the number of components not marked dead.
func (m *ManagerBase[T]) Len() int { return m.live }

// Count returns the size of the index space visited by Range.
func (m *ManagerBase[T]) Count() int { return m.storage.SlotCount() }

// PendingDead returns the number of components awaiting FlushDead.
func (m *ManagerBase[T]) PendingDead() int { return len(m.dead) }

// CreateComponent adds a zeroed component owned by owner.
func (m *ManagerBase[T]) CreateComponent(owner ID) (ComponentHandle, *T) {
	sl, e := m.storage.Allocate()
	id := m.ids.Create(sl)
	e.Owner = owner
	e.Handle = id
	m.owners[owner] = append(m.owners[owner], id)
	m.live++
	return ComponentHandle{Type: m.typeID, ID: id}, &e.Value
}

func (m *ManagerBase[T]) entry(h ComponentHandle) (*StorageEntry[T], bool) {
	if h.Type != m.typeID {
		return nil, false
	}
	sl, err := m.ids.Resolve(h.ID)
	if err != nil {
		return nil, false
	}
	e, ok := m.storage.Get(sl)
	if !ok || e.Dead {
		return nil, false
	}
	return e, true
}

// TryGet returns the component for h unless it is stale or dead.
func (m *ManagerBase[T]) TryGet(h ComponentHandle) (*T, bool) {
	e, ok := m.entry(h)
	if !ok {
		return nil, false
	}
	return &e.Value, true
}

// Owner returns the game object that owns h.
func (m *ManagerBase[T]) Owner(h ComponentHandle) (ID, bool) {
	e, ok := m.entry(h)
	if !ok {
		return 0, false
	}
	return e.Owner, true
}

// ComponentsOf returns the live components owned by owner.
func (m *ManagerBase[T]) ComponentsOf(owner ID) []ComponentHandle {
	ids := m.owners[owner]
	out := make([]ComponentHandle, 0, len(ids))
	for _, id := range ids {
		h := ComponentHandle{Type: m.typeID, ID: id}
		if _, ok := m.entry(h); ok {
			out = append(out, h)
		}
	}
	return out
}

// DeleteComponent marks h dead. The slot is released by FlushDead.
func (m *ManagerBase[T]) DeleteComponent(h ComponentHandle) error {
	e, ok := m.entry(h)
	if !ok {
		return fmt.Errorf("%w: component %s", ErrInvalidHandle, h)
	}
	m.markDead(e)
	return nil
}

func (m *ManagerBase[T]) markDead(e *StorageEntry[T]) {
	e.Dead = true
	m.live--
	m.dead = append(m.dead, e.Handle)
}

// RemoveOwner marks every component of owner dead and returns how many.
func (m *ManagerBase[T]) RemoveOwner(owner ID) int {
	n := 0
	for _, id := range m.owners[owner] {
		if e, ok := m.entry(ComponentHandle{Type: m.typeID, ID: id}); ok {
			m.markDead(e)
			n++
		}
	}
	return n
}

// FlushDead releases dead components. Each handle leaves the ID table before
// its slot returns to the free list.
func (m *ManagerBase[T]) FlushDead() int {
	n := 0
	for _, id := range m.dead {
		sl, err := m.ids.Resolve(id)
		if err != nil {
			continue
		}
		owner := ID(0)
		if e, ok := m.storage.Get(sl); ok {
			owner = e.Owner
		}
		_ = m.ids.Remove(id)
		_ = m.storage.Deallocate(sl)
		m.dropOwned(owner, id)
		n++
	}
	m.dead = m.dead[:0]
	return n
}

func (m *ManagerBase[T]) dropOwned(owner, id ID) {
	ids := m.owners[owner]
	for i, c := range ids {
		if c == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.owners, owner)
		return
	}
	m.owners[owner] = ids
}

// Range visits live components whose index lies in [start, start+count).
// Safe to call from several goroutines at once while no structural change is
// in progress; fn must only write to the component it is given.
func (m *ManagerBase[T]) Range(start, count int, fn func(h ComponentHandle, owner ID, v *T)) {
	m.storage.Range(start, count, func(_ arena.Slot, e *StorageEntry[T]) {
		if e.Dead {
			return
		}
		fn(ComponentHandle{Type: m.typeID, ID: e.Handle}, e.Owner, &e.Value)
	})
}

// All visits every live component in storage order until fn returns false.
func (m *ManagerBase[T]) All(fn func(h ComponentHandle, owner ID, v *T) bool) {
	stop := false
	m.storage.ForEachBlock(func(_ int, b *arena.Block[StorageEntry[T]]) bool {
		b.Each(func(_ int, e *StorageEntry[T]) {
			if stop || e.Dead {
				return
			}
			if !fn(ComponentHandle{Type: m.typeID, ID: e.Handle}, e.Owner, &e.Value) {
				stop = true
			}
		})
		return !stop
	})
}

// Release frees all storage.
func (m *ManagerBase[T]) Release() {
	m.storage.Release()
	m.ids = NewIDTable[arena.Slot](m.ids.world)
	m.owners = make(map[ID][]ID)
	m.dead = m.dead[:0]
	m.live = 0
}
