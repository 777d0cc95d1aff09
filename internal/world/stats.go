package world

import "github.com/l1jgo/worldcore/internal/core/arena"

// HierarchyStats describes one transform hierarchy.
type HierarchyStats struct {
	Records int
	Levels  []int // live records per level
	Blocks  int
}

// Stats is a point-in-time summary of a world.
type Stats struct {
	Frame        uint64
	Objects      int
	ObjectBlocks int
	Static       HierarchyStats
	Dynamic      HierarchyStats
	Components   map[string]int
	Functions    int
	Unresolved   []string
	Memory       arena.Stats
}

func (h *hierarchy) stats() HierarchyStats {
	s := HierarchyStats{Records: h.count, Levels: h.levelCounts()}
	for _, l := range h.levels {
		s.Blocks += l.NumBlocks()
	}
	return s
}

// Stats collects counters. Call it between frames or under a read lock.
func (w *World) Stats() Stats {
	s := Stats{
		Frame:        w.frame,
		Objects:      w.ids.Len(),
		ObjectBlocks: w.objects.NumBlocks(),
		Static:       w.static.stats(),
		Dynamic:      w.dynamic.stats(),
		Components:   make(map[string]int, len(w.named)),
		Functions:    w.registry.Len(),
		Unresolved:   w.registry.Unresolved(),
		Memory:       w.alloc.Stats(),
	}
	for name, m := range w.named {
		s.Components[name] = m.Len()
	}
	return s
}
