package ecs

import (
	"errors"
	"fmt"
)

// ErrInvalidHandle is returned when a handle is stale or out of range.
var ErrInvalidHandle = errors.New("ecs: invalid handle")

// ID encodes a 32-bit index in the low bits, a 16-bit generation above it and
// an 8-bit world index in bits 48..55. Generation 0 is never issued, so the
// zero ID is always invalid.
type ID uint64

func NewID(index uint32, generation uint16, world uint8) ID {
	return ID(uint64(world)<<48 | uint64(generation)<<32 | uint64(index))
}

func (id ID) Index() uint32      { return uint32(id) }
func (id ID) Generation() uint16 { return uint16(id >> 32) }
func (id ID) World() uint8       { return uint8(id >> 48) }
func (id ID) IsZero() bool       { return id == 0 }

func (id ID) String() string {
	return fmt.Sprintf("%d:%d@%d", id.Index(), id.Generation(), id.World())
}

type tableEntry[L any] struct {
	loc        L
	generation uint16
	alive      bool
}

// IDTable maps handles to storage locations with generational indices and a
// free list. Generation increments on Remove to invalidate stale handles.
// Not safe for concurrent mutation; concurrent Resolve is fine.
type IDTable[L any] struct {
	entries  []tableEntry[L]
	freeList []uint32
	world    uint8
	count    int
}

func NewIDTable[L any](world uint8) *IDTable[L] {
	return &IDTable[L]{
		entries:  make([]tableEntry[L], 0, 1024),
		freeList: make([]uint32, 0, 256),
		world:    world,
	}
}

// Create issues a handle for loc.
func (t *IDTable[L]) Create(loc L) ID {
	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[idx]
		e.loc = loc
		e.alive = true
		t.count++
		return NewID(idx, e.generation, t.world)
	}
	idx := uint32(len(t.entries))
	t.entries = append(t.entries, tableEntry[L]{loc: loc, generation: 1, alive: true})
	t.count++
	return NewID(idx, 1, t.world)
}

func (t *IDTable[L]) entry(id ID) (*tableEntry[L], error) {
	idx := id.Index()
	if id.IsZero() || id.World() != t.world || int(idx) >= len(t.entries) {
		return nil, fmt.Errorf("%w: %s out of range", ErrInvalidHandle, id)
	}
	e := &t.entries[idx]
	if !e.alive || e.generation != id.Generation() {
		return nil, fmt.Errorf("%w: %s is stale", ErrInvalidHandle, id)
	}
	return e, nil
}

// Resolve returns the current location of id.
func (t *IDTable[L]) Resolve(id ID) (L, error) {
	e, err := t.entry(id)
	if err != nil {
		var zero L
		return zero, err
	}
	return e.loc, nil
}

// Alive reports whether id resolves.
func (t *IDTable[L]) Alive(id ID) bool {
	_, err := t.entry(id)
	return err == nil
}

// Update records a new location for a live handle.
func (t *IDTable[L]) Update(id ID, loc L) error {
	e, err := t.entry(id)
	if err != nil {
		return err
	}
	e.loc = loc
	return nil
}

// Remove invalidates id and returns its index to the pool.
func (t *IDTable[L]) Remove(id ID) error {
	e, err := t.entry(id)
	if err != nil {
		return err
	}
	var zero L
	e.loc = zero
	e.alive = false
	e.generation++
	if e.generation == 0 {
		e.generation = 1
	}
	t.freeList = append(t.freeList, id.Index())
	t.count--
	return nil
}

// Len returns the number of live handles.
func (t *IDTable[L]) Len() int { return t.count }

// Each visits live handles in index order until fn returns false.
func (t *IDTable[L]) Each(fn func(id ID, loc L) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.alive {
			continue
		}
		if !fn(NewID(uint32(i), e.generation, t.world), e.loc) {
			return
		}
	}
}
