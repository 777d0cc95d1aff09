package system

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnresolvedDependency = errors.New("system: unresolved update function dependency")
	ErrDuplicateFunction    = errors.New("system: duplicate update function")
	ErrInvalidFunction      = errors.New("system: invalid update function")
	ErrFrameFailed          = errors.New("system: frame failed")
)

// Phase defines execution ordering within a single world update. Functions in
// the same phase may run concurrently; phases never overlap.
type Phase int

const (
	PhasePreAsync      Phase = iota // 0: input, spawning decisions
	PhaseAsync                      // 1: bulk per-component work
	PhasePostAsync                  // 2: results that depend on async output
	PhasePostTransform              // 3: after global transforms are propagated
)

// NumPhases is the number of phases in a frame.
const NumPhases = 4

func (p Phase) Valid() bool { return p >= PhasePreAsync && p <= PhasePostTransform }

func (p Phase) String() string {
	switch p {
	case PhasePreAsync:
		return "pre-async"
	case PhaseAsync:
		return "async"
	case PhasePostAsync:
		return "post-async"
	case PhasePostTransform:
		return "post-transform"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ParsePhase converts a phase name back into a Phase.
func ParsePhase(s string) (Phase, error) {
	for p := PhasePreAsync; p <= PhasePostTransform; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// UpdateContext is handed to every update function invocation.
type UpdateContext struct {
	Frame      uint64
	Dt         time.Duration
	Phase      Phase
	Simulating bool
}

// UpdateFunc processes the elements [start, start+count) of its owner.
type UpdateFunc func(ctx UpdateContext, start, count int)

// UpdateFunctionDesc describes one update function contributed by a
// component manager.
type UpdateFunctionDesc struct {
	Owner string // component manager name
	Name  string
	Phase Phase
	Func  UpdateFunc
	// Count reports how many elements Func iterates; nil means a single call.
	Count func() int
	// Granularity is the chunk size; 0 runs the whole range as one task.
	Granularity        int
	DependsOn          []string
	OnlyWhenSimulating bool
}

func (d *UpdateFunctionDesc) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidFunction)
	case d.Func == nil:
		return fmt.Errorf("%w: %q has no function", ErrInvalidFunction, d.Name)
	case !d.Phase.Valid():
		return fmt.Errorf("%w: %q has invalid %s", ErrInvalidFunction, d.Name, d.Phase)
	case d.Granularity < 0:
		return fmt.Errorf("%w: %q has negative granularity", ErrInvalidFunction, d.Name)
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("%w: %q depends on itself", ErrInvalidFunction, d.Name)
		}
	}
	return nil
}

func (d *UpdateFunctionDesc) count() int {
	if d.Count == nil {
		return 1
	}
	return d.Count()
}
