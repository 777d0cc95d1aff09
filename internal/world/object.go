package world

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/l1jgo/worldcore/internal/core/arena"
	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/event"
)

// GameObjectID is a generational handle to a game object.
type GameObjectID = ecs.ID

// ObjectFlags holds per-object state bits.
type ObjectFlags uint8

const (
	FlagStatic ObjectFlags = 1 << iota
	FlagActive
)

// GameObject is the block-storage record of one object. Links to other
// objects are handles, never pointers.
type GameObject struct {
	id          GameObjectID
	flags       ObjectFlags
	parent      GameObjectID
	firstChild  GameObjectID
	lastChild   GameObjectID
	prevSibling GameObjectID
	nextSibling GameObjectID
	children    int
	name        string
	nameHash    uint64
	ref         TransformRef
}

func (o *GameObject) ID() GameObjectID          { return o.id }
func (o *GameObject) Name() string              { return o.name }
func (o *GameObject) NameHash() uint64          { return o.nameHash }
func (o *GameObject) Flags() ObjectFlags        { return o.flags }
func (o *GameObject) IsStatic() bool            { return o.flags&FlagStatic != 0 }
func (o *GameObject) IsActive() bool            { return o.flags&FlagActive != 0 }
func (o *GameObject) Parent() GameObjectID      { return o.parent }
func (o *GameObject) ChildCount() int           { return o.children }
func (o *GameObject) FirstChild() GameObjectID  { return o.firstChild }
func (o *GameObject) NextSibling() GameObjectID { return o.nextSibling }
func (o *GameObject) Level() int                { return int(o.ref.Level) }
func (o *GameObject) TransformRef() TransformRef {
	return o.ref
}

// ObjectDesc describes an object to create. A zero Local means identity.
type ObjectDesc struct {
	Name     string
	Parent   GameObjectID
	Static   bool
	Inactive bool
	Local    Transform
}

// Preserve selects what SetParent keeps unchanged.
type Preserve int

const (
	KeepLocal Preserve = iota
	KeepGlobal
)

func (w *World) hierarchyFor(static bool) *hierarchy {
	if static {
		return w.static
	}
	return w.dynamic
}

func (w *World) object(id GameObjectID) (*GameObject, bool) {
	sl, err := w.ids.Resolve(id)
	if err != nil {
		return nil, false
	}
	return w.objects.Get(sl)
}

func (w *World) mustObject(id GameObjectID) (*GameObject, error) {
	sl, err := w.ids.Resolve(id)
	if err != nil {
		return nil, err
	}
	obj, ok := w.objects.Get(sl)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no record", ecs.ErrInvalidHandle, id)
	}
	return obj, nil
}

// TryGetObject resolves a handle. Stale handles return false.
func (w *World) TryGetObject(id GameObjectID) (*GameObject, bool) {
	return w.object(id)
}

// IsAlive reports whether id resolves.
func (w *World) IsAlive(id GameObjectID) bool {
	return w.ids.Alive(id)
}

// CreateObject creates an object and its transform record.
func (w *World) CreateObject(desc ObjectDesc) (GameObjectID, error) {
	if err := w.checkStructural("CreateObject", func(w *World) { _, _ = w.CreateObject(desc) }); err != nil {
		return 0, err
	}
	var parent *GameObject
	lvl := 0
	if !desc.Parent.IsZero() {
		p, err := w.mustObject(desc.Parent)
		if err != nil {
			return 0, fmt.Errorf("create object: parent: %w", err)
		}
		if p.IsStatic() != desc.Static {
			return 0, fmt.Errorf("create object %q: %w", desc.Name, ErrHierarchyMismatch)
		}
		parent = p
		lvl = p.Level() + 1
	}

	local := desc.Local.normalized()
	data := TransformationData{Local: local, Global: local, LastModified: w.frame}
	h := w.hierarchyFor(desc.Static)
	if parent != nil {
		data.Parent = parent.ref.Slot
		data.HasParent = true
		if pd, ok := h.get(parent.ref); ok {
			data.Global = Combine(pd.Global, local)
		}
	}

	sl, obj := w.objects.Allocate()
	id := w.ids.Create(sl)
	data.Owner = id

	flags := FlagActive
	if desc.Inactive {
		flags = 0
	}
	if desc.Static {
		flags |= FlagStatic
	}
	name := norm.NFC.String(desc.Name)
	*obj = GameObject{
		id:       id,
		flags:    flags,
		name:     name,
		nameHash: HashName(name),
		ref:      h.insert(lvl, data),
	}
	if parent != nil {
		w.link(parent, obj)
	}
	w.indexName(id, obj.nameHash)
	event.Emit(w.events, event.ObjectCreated{ID: id, Parent: desc.Parent, Static: desc.Static})
	return id, nil
}

func (w *World) link(parent, child *GameObject) {
	child.parent = parent.id
	child.prevSibling = parent.lastChild
	child.nextSibling = 0
	if last, ok := w.object(parent.lastChild); ok {
		last.nextSibling = child.id
	} else {
		parent.firstChild = child.id
	}
	parent.lastChild = child.id
	parent.children++
}

func (w *World) unlink(child *GameObject) {
	parent, ok := w.object(child.parent)
	if !ok {
		child.parent, child.prevSibling, child.nextSibling = 0, 0, 0
		return
	}
	if prev, ok := w.object(child.prevSibling); ok {
		prev.nextSibling = child.nextSibling
	} else {
		parent.firstChild = child.nextSibling
	}
	if next, ok := w.object(child.nextSibling); ok {
		next.prevSibling = child.prevSibling
	} else {
		parent.lastChild = child.prevSibling
	}
	parent.children--
	child.parent, child.prevSibling, child.nextSibling = 0, 0, 0
}

// Children returns the direct children of id in insertion order.
func (w *World) Children(id GameObjectID) []GameObjectID {
	obj, ok := w.object(id)
	if !ok {
		return nil
	}
	out := make([]GameObjectID, 0, obj.children)
	for c := obj.firstChild; !c.IsZero(); {
		child, ok := w.object(c)
		if !ok {
			break
		}
		out = append(out, c)
		c = child.nextSibling
	}
	return out
}

// DeleteObject removes an object and its whole subtree immediately. Their
// components are hidden at once and released at the next sync point.
func (w *World) DeleteObject(id GameObjectID) error {
	if err := w.checkStructural("DeleteObject", func(w *World) { _ = w.DeleteObject(id) }); err != nil {
		return err
	}
	obj, err := w.mustObject(id)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	w.deleteTree(obj)
	return nil
}

// DeleteObjectDelayed queues id for deletion at the start of the next
// Update. The handle keeps resolving until then. Safe to call from update
// functions.
func (w *World) DeleteObjectDelayed(id GameObjectID) error {
	if !w.ids.Alive(id) {
		return fmt.Errorf("delete object delayed: %w: %s", ecs.ErrInvalidHandle, id)
	}
	w.deadMu.Lock()
	w.dead = append(w.dead, id)
	w.deadMu.Unlock()
	return nil
}

func (w *World) deleteTree(obj *GameObject) {
	for c := obj.firstChild; !c.IsZero(); {
		child, ok := w.object(c)
		if !ok {
			break
		}
		next := child.nextSibling
		w.deleteTree(child)
		c = next
	}
	id := obj.id
	w.unlink(obj)
	w.managers.RemoveAll(id)
	w.hierarchyFor(obj.IsStatic()).remove(obj.ref)
	w.unindexName(id, obj.nameHash)

	sl, _ := w.ids.Resolve(id)
	_ = w.ids.Remove(id)
	_ = w.objects.Deallocate(sl)
	event.Emit(w.events, event.ObjectDeleted{ID: id})
}

// SetParent moves id under parent (zero for root). The object's level and
// that of its subtree change, so their transform records are relocated.
func (w *World) SetParent(id, parent GameObjectID, keep Preserve) error {
	if err := w.checkStructural("SetParent", func(w *World) { _ = w.SetParent(id, parent, keep) }); err != nil {
		return err
	}
	obj, err := w.mustObject(id)
	if err != nil {
		return fmt.Errorf("set parent: %w", err)
	}
	if obj.IsStatic() {
		return fmt.Errorf("set parent %s: %w", id, ErrStaticReparent)
	}
	if obj.parent == parent {
		return nil
	}

	var p *GameObject
	lvl := 0
	if !parent.IsZero() {
		if p, err = w.mustObject(parent); err != nil {
			return fmt.Errorf("set parent: new parent: %w", err)
		}
		if p.IsStatic() {
			return fmt.Errorf("set parent %s: %w", id, ErrHierarchyMismatch)
		}
		for a := p; a != nil; {
			if a.id == id {
				return fmt.Errorf("set parent %s under %s: %w", id, parent, ErrCycle)
			}
			next, ok := w.object(a.parent)
			if !ok {
				break
			}
			a = next
		}
		lvl = p.Level() + 1
	}

	h := w.dynamic
	d, _ := h.get(obj.ref)
	local := d.Local
	if keep == KeepGlobal {
		parentGlobal := Identity()
		if p != nil {
			if pd, ok := h.get(p.ref); ok {
				parentGlobal = pd.Global
			}
		}
		local = Relative(parentGlobal, d.Global)
	}

	old := obj.parent
	w.unlink(obj)
	var parentSlot TransformRef
	if p != nil {
		w.link(p, obj)
		parentSlot = p.ref
	}
	w.relocate(h, obj, lvl, parentSlot.Slot, p != nil)
	if rd, ok := h.get(obj.ref); ok {
		rd.Local = local
	}
	event.Emit(w.events, event.ObjectReparented{ID: id, OldParent: old, NewParent: parent})
	return nil
}

// relocate moves obj's record to lvl and recurses into its children so
// every child's parent slot follows the move.
func (w *World) relocate(h *hierarchy, obj *GameObject, lvl int, parentSlot arena.Slot, hasParent bool) {
	d, ok := h.get(obj.ref)
	if !ok {
		return
	}
	if int(obj.ref.Level) == lvl {
		d.Parent = parentSlot
		d.HasParent = hasParent
		d.LastModified = w.frame
		return
	}
	data := *d
	data.Parent = parentSlot
	data.HasParent = hasParent
	data.LastModified = w.frame
	h.remove(obj.ref)
	obj.ref = h.insert(lvl, data)

	for c := obj.firstChild; !c.IsZero(); {
		child, ok := w.object(c)
		if !ok {
			break
		}
		w.relocate(h, child, lvl+1, obj.ref.Slot, true)
		c = child.nextSibling
	}
}

// SetActive toggles the active flag.
func (w *World) SetActive(id GameObjectID, active bool) error {
	if err := w.checkStructural("SetActive", func(w *World) { _ = w.SetActive(id, active) }); err != nil {
		return err
	}
	obj, err := w.mustObject(id)
	if err != nil {
		return err
	}
	if active {
		obj.flags |= FlagActive
	} else {
		obj.flags &^= FlagActive
	}
	return nil
}

// Objects visits every live object in handle index order until fn returns
// false. The order is stable across frames as long as no object is created
// or deleted.
func (w *World) Objects(fn func(obj *GameObject) bool) {
	w.ids.Each(func(_ ecs.ID, sl arena.Slot) bool {
		obj, ok := w.objects.Get(sl)
		if !ok {
			return true
		}
		return fn(obj)
	})
}

// ObjectCount returns the number of live objects.
func (w *World) ObjectCount() int { return w.ids.Len() }

func (w *World) transformOf(id GameObjectID) (*GameObject, *TransformationData, error) {
	obj, err := w.mustObject(id)
	if err != nil {
		return nil, nil, err
	}
	d, ok := w.hierarchyFor(obj.IsStatic()).get(obj.ref)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has no transform", ecs.ErrInvalidHandle, id)
	}
	return obj, d, nil
}

// LocalTransform returns the transform relative to the parent.
func (w *World) LocalTransform(id GameObjectID) (Transform, bool) {
	_, d, err := w.transformOf(id)
	if err != nil {
		return Transform{}, false
	}
	return d.Local, true
}

// GlobalTransform returns the world-space transform computed by the last
// propagation.
func (w *World) GlobalTransform(id GameObjectID) (Transform, bool) {
	_, d, err := w.transformOf(id)
	if err != nil {
		return Transform{}, false
	}
	return d.Global, true
}

// SetLocalTransform replaces the local transform. The new global transform
// is visible after the next propagation. Update functions write through
// TransformData instead.
func (w *World) SetLocalTransform(id GameObjectID, t Transform) error {
	obj, d, err := w.transformOf(id)
	if err != nil {
		return fmt.Errorf("set local transform: %w", err)
	}
	d.Local = t.normalized()
	d.LastModified = w.frame
	if obj.IsStatic() {
		w.static.dirty = true
	}
	return nil
}

// TransformData returns the dynamic transform record of id for update
// functions. Static objects return false: their transforms only change
// between frames.
func (w *World) TransformData(id GameObjectID) (*TransformationData, bool) {
	obj, ok := w.object(id)
	if !ok || obj.IsStatic() {
		return nil, false
	}
	return w.dynamic.get(obj.ref)
}
