package arena

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAllocationFailure is returned when the allocator cannot satisfy a request.
// Storage treats it as fatal.
var ErrAllocationFailure = errors.New("arena: allocation failure")

// DefaultRegionSize is the granularity of regions handed out by the large
// block allocator. Requests are rounded up to a multiple of it.
const DefaultRegionSize = 64 * 1024

// Region is a reservation returned by an Allocator. The storage backing a
// region is owned by the Go heap; the allocator accounts for it so a World can
// budget and report its memory independently of every other World.
type Region struct {
	ID   uint64
	Size int
}

// Allocator hands out fixed regions for block storage.
type Allocator interface {
	Allocate(size, align int) (Region, error)
	Deallocate(r Region)
	Stats() Stats
}

// Stats reports allocator usage.
type Stats struct {
	LiveRegions int
	LiveBytes   int64
	PeakBytes   int64
	TotalAllocs uint64
}

// LargeBlockAllocator rounds every request up to whole regions and enforces an
// optional byte limit. Safe for concurrent use.
type LargeBlockAllocator struct {
	mu         sync.Mutex
	regionSize int
	limit      int64 // 0 = unlimited
	nextID     uint64
	live       map[uint64]int
	stats      Stats
}

// NewLargeBlockAllocator creates an allocator. regionSize <= 0 selects
// DefaultRegionSize; limit <= 0 disables the budget.
func NewLargeBlockAllocator(regionSize int, limit int64) *LargeBlockAllocator {
	if regionSize <= 0 {
		regionSize = DefaultRegionSize
	}
	if limit < 0 {
		limit = 0
	}
	return &LargeBlockAllocator{
		regionSize: regionSize,
		limit:      limit,
		live:       make(map[uint64]int, 64),
	}
}

// Allocate reserves at least size bytes. align must be zero or a power of two
// no larger than the region size.
func (a *LargeBlockAllocator) Allocate(size, align int) (Region, error) {
	if size <= 0 {
		return Region{}, fmt.Errorf("%w: invalid size %d", ErrAllocationFailure, size)
	}
	if align != 0 && (align&(align-1) != 0 || align > a.regionSize) {
		return Region{}, fmt.Errorf("%w: invalid alignment %d", ErrAllocationFailure, align)
	}
	n := (size + a.regionSize - 1) / a.regionSize * a.regionSize

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limit > 0 && a.stats.LiveBytes+int64(n) > a.limit {
		return Region{}, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrAllocationFailure, n, a.stats.LiveBytes, a.limit)
	}
	a.nextID++
	a.live[a.nextID] = n
	a.stats.LiveRegions++
	a.stats.LiveBytes += int64(n)
	a.stats.TotalAllocs++
	if a.stats.LiveBytes > a.stats.PeakBytes {
		a.stats.PeakBytes = a.stats.LiveBytes
	}
	return Region{ID: a.nextID, Size: n}, nil
}

// Deallocate releases a region. Unknown regions are ignored.
func (a *LargeBlockAllocator) Deallocate(r Region) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.live[r.ID]
	if !ok {
		return
	}
	delete(a.live, r.ID)
	a.stats.LiveRegions--
	a.stats.LiveBytes -= int64(n)
}

func (a *LargeBlockAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
