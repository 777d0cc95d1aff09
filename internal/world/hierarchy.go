package world

import (
	"fmt"

	"github.com/l1jgo/worldcore/internal/core/arena"
	"github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/core/task"
)

// level holds every transform record at one depth of a hierarchy.
type level = arena.Storage[TransformationData]

// hierarchy stores transform records by depth. Level 0 holds roots; records
// at level N point at their parent's record in level N-1, so propagation is a
// sequence of flat, block-parallel passes.
type hierarchy struct {
	static bool
	alloc  arena.Allocator
	opts   []arena.Option
	levels []*level
	count  int
	dirty  bool
}

func newHierarchy(static bool, alloc arena.Allocator, opts ...arena.Option) *hierarchy {
	return &hierarchy{static: static, alloc: alloc, opts: opts}
}

func (h *hierarchy) level(n int) *level {
	for len(h.levels) <= n {
		h.levels = append(h.levels, arena.NewStorage[TransformationData](h.alloc, h.opts...))
	}
	return h.levels[n]
}

func (h *hierarchy) insert(lvl int, d TransformationData) TransformRef {
	sl, p := h.level(lvl).Allocate()
	*p = d
	h.count++
	h.dirty = true
	return TransformRef{Level: uint16(lvl), Slot: sl}
}

func (h *hierarchy) remove(ref TransformRef) {
	if int(ref.Level) >= len(h.levels) {
		return
	}
	if err := h.levels[ref.Level].Deallocate(ref.Slot); err == nil {
		h.count--
		h.dirty = true
	}
}

func (h *hierarchy) get(ref TransformRef) (*TransformationData, bool) {
	if int(ref.Level) >= len(h.levels) {
		return nil, false
	}
	return h.levels[ref.Level].Get(ref.Slot)
}

// parentOf returns the record one level above d.
func (h *hierarchy) parentOf(ref TransformRef, d *TransformationData) (*TransformationData, bool) {
	if !d.HasParent || ref.Level == 0 {
		return nil, false
	}
	return h.levels[ref.Level-1].Get(d.Parent)
}

// depth returns the number of non-empty levels.
func (h *hierarchy) depth() int {
	n := 0
	for i, l := range h.levels {
		if l.Len() > 0 {
			n = i + 1
		}
	}
	return n
}

// levelCounts returns the live record count per level.
func (h *hierarchy) levelCounts() []int {
	out := make([]int, h.depth())
	for i := range out {
		out[i] = h.levels[i].Len()
	}
	return out
}

// propagate recomputes global transforms level by level. Each level is one
// task group with one task per block; level N+1 starts only after level N is
// complete.
func (h *hierarchy) propagate(exec system.Executor) error {
	for n, lvl := range h.levels {
		if lvl.Len() == 0 {
			continue
		}
		var parent *level
		if n > 0 {
			parent = h.levels[n-1]
		}
		blocks := lvl.Blocks()
		tasks := make([]task.Task, 0, len(blocks))
		for _, b := range blocks {
			if b.Live() == 0 {
				continue
			}
			b := b
			tasks = append(tasks, task.TaskFunc(func() error {
				b.Each(func(_ int, d *TransformationData) {
					if parent == nil || !d.HasParent {
						d.Global = d.Local
						return
					}
					p, ok := parent.Get(d.Parent)
					if !ok {
						d.Global = d.Local
						return
					}
					d.Global = Combine(p.Global, d.Local)
				})
				return nil
			}))
		}
		if err := exec.Wait(exec.Submit(tasks)); err != nil {
			return fmt.Errorf("propagate level %d: %w", n, err)
		}
	}
	h.dirty = false
	return nil
}

func (h *hierarchy) release() {
	for _, l := range h.levels {
		l.Release()
	}
	h.levels = nil
	h.count = 0
}
