package arena

import (
	"errors"
	"fmt"
	"unsafe"
)

// BlockBytes is the target byte size of one block. A block's slot count is
// derived from it once per element type and never changes afterwards.
const BlockBytes = 16 * 1024

// ErrInvalidSlot is returned when a slot does not address a live record.
var ErrInvalidSlot = errors.New("arena: invalid slot")

// Slot addresses one record by block index and index within the block.
type Slot struct {
	Block uint32
	Index uint32
}

// Block is a fixed-capacity run of records of one type.
type Block[T any] struct {
	data   []T
	live   []bool
	used   int // high-water mark
	count  int
	region Region
}

// Cap returns the fixed slot count of the block.
func (b *Block[T]) Cap() int { return len(b.data) }

// Used returns the number of slots ever handed out from this block.
func (b *Block[T]) Used() int { return b.used }

// Live returns the number of occupied slots.
func (b *Block[T]) Live() int { return b.count }

// At returns the record at i if the slot is occupied.
func (b *Block[T]) At(i int) (*T, bool) {
	if i < 0 || i >= b.used || !b.live[i] {
		return nil, false
	}
	return &b.data[i], true
}

// Each visits the occupied slots of the block in index order.
func (b *Block[T]) Each(fn func(i int, v *T)) {
	for i := 0; i < b.used; i++ {
		if b.live[i] {
			fn(i, &b.data[i])
		}
	}
}

// CapacityFor returns the per-block capacity used for element type T.
func CapacityFor[T any]() int {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	n := BlockBytes / size
	if n < 1 {
		n = 1
	}
	return n
}

type options struct {
	capacity int
	debug    bool
}

// Option configures a Storage.
type Option func(*options)

// WithCapacity overrides the per-block slot count.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithDebug enables poisoning: access to a freed slot or a double free panics.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// Storage is slotted storage of fixed-capacity blocks. Pointers into a block
// remain valid for the lifetime of the storage; freed slots are reused LIFO.
// Not safe for concurrent mutation.
type Storage[T any] struct {
	alloc    Allocator
	capacity int
	elemSize int
	align    int
	blocks   []*Block[T]
	free     []Slot
	count    int
	debug    bool
}

// NewStorage creates an empty storage drawing regions from alloc.
func NewStorage[T any](alloc Allocator, opts ...Option) *Storage[T] {
	o := options{capacity: CapacityFor[T]()}
	for _, fn := range opts {
		fn(&o)
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	return &Storage[T]{
		alloc:    alloc,
		capacity: o.capacity,
		elemSize: size,
		align:    int(unsafe.Alignof(zero)),
		blocks:   make([]*Block[T], 0, 4),
		free:     make([]Slot, 0, 64),
		debug:    o.debug,
	}
}

// BlockCapacity returns the fixed slot count of every block.
func (s *Storage[T]) BlockCapacity() int { return s.capacity }

// Len returns the number of live records.
func (s *Storage[T]) Len() int { return s.count }

// NumBlocks returns the number of allocated blocks.
func (s *Storage[T]) NumBlocks() int { return len(s.blocks) }

// SlotCount returns the size of the global index space (high-water mark).
func (s *Storage[T]) SlotCount() int {
	if len(s.blocks) == 0 {
		return 0
	}
	return (len(s.blocks)-1)*s.capacity + s.blocks[len(s.blocks)-1].used
}

// Allocate returns a zeroed record, reusing a freed slot when one exists.
// Growth failure is not recoverable and panics with ErrAllocationFailure.
func (s *Storage[T]) Allocate() (Slot, *T) {
	if n := len(s.free); n > 0 {
		sl := s.free[n-1]
		s.free = s.free[:n-1]
		b := s.blocks[sl.Block]
		b.live[sl.Index] = true
		b.count++
		s.count++
		return sl, &b.data[sl.Index]
	}
	if len(s.blocks) == 0 || s.blocks[len(s.blocks)-1].used == s.capacity {
		s.grow()
	}
	bi := len(s.blocks) - 1
	b := s.blocks[bi]
	i := b.used
	b.used++
	b.live[i] = true
	b.count++
	s.count++
	return Slot{Block: uint32(bi), Index: uint32(i)}, &b.data[i]
}

func (s *Storage[T]) grow() {
	region, err := s.alloc.Allocate(s.capacity*s.elemSize, s.align)
	if err != nil {
		panic(fmt.Errorf("grow block storage: %w", err))
	}
	s.blocks = append(s.blocks, &Block[T]{
		data:   make([]T, s.capacity),
		live:   make([]bool, s.capacity),
		region: region,
	})
}

// Deallocate frees a slot and zero-fills its record.
func (s *Storage[T]) Deallocate(sl Slot) error {
	b, ok := s.block(sl)
	if !ok || !b.live[sl.Index] {
		if s.debug {
			panic(fmt.Sprintf("arena: double free or bad slot %d/%d", sl.Block, sl.Index))
		}
		return ErrInvalidSlot
	}
	var zero T
	b.data[sl.Index] = zero
	b.live[sl.Index] = false
	b.count--
	s.count--
	s.free = append(s.free, sl)
	return nil
}

// Get returns the record at sl if it is live.
func (s *Storage[T]) Get(sl Slot) (*T, bool) {
	b, ok := s.block(sl)
	if !ok || !b.live[sl.Index] {
		if ok && s.debug && int(sl.Index) < b.used {
			panic(fmt.Sprintf("arena: access to freed slot %d/%d", sl.Block, sl.Index))
		}
		return nil, false
	}
	return &b.data[sl.Index], true
}

func (s *Storage[T]) block(sl Slot) (*Block[T], bool) {
	if int(sl.Block) >= len(s.blocks) || int(sl.Index) >= s.capacity {
		return nil, false
	}
	return s.blocks[sl.Block], true
}

// Index converts a slot into its position in the global index space.
func (s *Storage[T]) Index(sl Slot) int {
	return int(sl.Block)*s.capacity + int(sl.Index)
}

// SlotAt converts a global index into a slot.
func (s *Storage[T]) SlotAt(i int) Slot {
	return Slot{Block: uint32(i / s.capacity), Index: uint32(i % s.capacity)}
}

// Range visits live records whose global index lies in [start, start+count).
func (s *Storage[T]) Range(start, count int, fn func(sl Slot, v *T)) {
	end := start + count
	if n := s.SlotCount(); end > n {
		end = n
	}
	for i := start; i < end; {
		bi := i / s.capacity
		b := s.blocks[bi]
		j := i % s.capacity
		stop := b.used
		if rem := end - i + j; rem < stop {
			stop = rem
		}
		for ; j < stop; j++ {
			if b.live[j] {
				fn(Slot{Block: uint32(bi), Index: uint32(j)}, &b.data[j])
			}
		}
		i = (bi + 1) * s.capacity
	}
}

// ForEachBlock visits blocks in order until fn returns false.
func (s *Storage[T]) ForEachBlock(fn func(index int, b *Block[T]) bool) {
	for i, b := range s.blocks {
		if !fn(i, b) {
			return
		}
	}
}

// Blocks exposes the block list for block-granular parallel iteration.
// The slice must not be retained across an Allocate call.
func (s *Storage[T]) Blocks() []*Block[T] { return s.blocks }

// Release returns every region to the allocator and empties the storage.
func (s *Storage[T]) Release() {
	for _, b := range s.blocks {
		s.alloc.Deallocate(b.region)
	}
	s.blocks = s.blocks[:0]
	s.free = s.free[:0]
	s.count = 0
}
