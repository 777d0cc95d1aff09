package system

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/task"
)

// State is the scheduler's position in the per-frame state machine.
type State int32

const (
	StateIdle State = iota
	StatePhaseRunning
	StatePhaseWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePhaseRunning:
		return "running"
	case StatePhaseWaiting:
		return "waiting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Executor is the task system the scheduler submits to.
type Executor interface {
	Submit(tasks []task.Task) task.GroupID
	Wait(id task.GroupID) error
}

// Range is one chunk of an update function's index space.
type Range struct {
	Start, Count int
}

// Split divides n elements into chunks of granularity g. g <= 0 yields a
// single chunk.
func Split(n, g int) []Range {
	if n <= 0 {
		return nil
	}
	if g <= 0 || g >= n {
		return []Range{{Start: 0, Count: n}}
	}
	out := make([]Range, 0, (n+g-1)/g)
	for start := 0; start < n; start += g {
		c := g
		if start+c > n {
			c = n - start
		}
		out = append(out, Range{Start: start, Count: c})
	}
	return out
}

// UpdateTask runs one chunk of one update function.
type UpdateTask struct {
	Desc  *UpdateFunctionDesc
	Ctx   UpdateContext
	Start int
	Count int
}

func (t *UpdateTask) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update function %q [%d,+%d): %w",
				t.Desc.Name, t.Start, t.Count, &task.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	t.Desc.Func(t.Ctx, t.Start, t.Count)
	return nil
}

// PhaseStats describes the last run of one phase.
type PhaseStats struct {
	Functions int
	Stages    int // task groups submitted, one per dependency depth
	Tasks     int
	Duration  time.Duration
}

// Scheduler turns each phase's update functions into task groups, one per
// dependency depth, and waits for all of them before the next phase starts.
type Scheduler struct {
	registry *Registry
	exec     Executor
	state    atomic.Int32
	phase    atomic.Int32
	stats    [NumPhases]PhaseStats
	log      *zap.Logger
}

func NewScheduler(reg *Registry, exec Executor, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{registry: reg, exec: exec, log: log}
}

// State returns the current state and the phase it refers to.
func (s *Scheduler) State() (State, Phase) {
	return State(s.state.Load()), Phase(s.phase.Load())
}

// Stats returns the last run statistics of a phase.
func (s *Scheduler) Stats(p Phase) PhaseStats {
	if !p.Valid() {
		return PhaseStats{}
	}
	return s.stats[p]
}

// Stages builds the task groups for ctx.Phase without running them. A
// function's stage is one past the deepest same-phase function it depends
// on, so functions without same-phase dependencies share stage 0 and run
// concurrently. Empty stages are dropped.
func (s *Scheduler) Stages(ctx UpdateContext) ([][]task.Task, int) {
	fns := s.registry.phase(ctx.Phase)
	depth := make(map[string]int, len(fns))
	var stages [][]task.Task
	used := 0
	for _, d := range fns {
		// Dependencies always precede d in the phase list.
		n := 0
		for _, dep := range d.DependsOn {
			if dd, ok := depth[dep]; ok && dd+1 > n {
				n = dd + 1
			}
		}
		depth[d.Name] = n
		if d.OnlyWhenSimulating && !ctx.Simulating {
			continue
		}
		used++
		for len(stages) <= n {
			stages = append(stages, nil)
		}
		for _, r := range Split(d.count(), d.Granularity) {
			stages[n] = append(stages[n], &UpdateTask{Desc: d, Ctx: ctx, Start: r.Start, Count: r.Count})
		}
	}
	out := stages[:0]
	for _, st := range stages {
		if len(st) > 0 {
			out = append(out, st)
		}
	}
	return out, used
}

// RunPhase executes every function of ctx.Phase and blocks until all of its
// tasks finish. Each dependency stage is its own task group and waits for
// the previous one. A failing task fails the phase; nothing is retried.
func (s *Scheduler) RunPhase(ctx UpdateContext) error {
	if !ctx.Phase.Valid() {
		return fmt.Errorf("%w: invalid %s", ErrFrameFailed, ctx.Phase)
	}
	start := time.Now()
	s.phase.Store(int32(ctx.Phase))
	s.state.Store(int32(StatePhaseRunning))
	defer s.state.Store(int32(StateIdle))

	stages, used := s.Stages(ctx)
	var err error
	total := 0
	for _, st := range stages {
		total += len(st)
		s.state.Store(int32(StatePhaseRunning))
		id := s.exec.Submit(st)
		s.state.Store(int32(StatePhaseWaiting))
		if err = s.exec.Wait(id); err != nil {
			break
		}
	}
	s.stats[ctx.Phase] = PhaseStats{Functions: used, Stages: len(stages), Tasks: total, Duration: time.Since(start)}
	if err != nil {
		s.log.Error("update phase failed",
			zap.Stringer("phase", ctx.Phase),
			zap.Uint64("frame", ctx.Frame),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrFrameFailed, ctx.Phase, err)
	}
	return nil
}

// RunFrame runs all phases in order. after, if non-nil, is called once each
// phase completes and may fail the frame.
func (s *Scheduler) RunFrame(ctx UpdateContext, after func(p Phase) error) error {
	for p := PhasePreAsync; p <= PhasePostTransform; p++ {
		ctx.Phase = p
		if err := s.RunPhase(ctx); err != nil {
			return err
		}
		if after != nil {
			if err := after(p); err != nil {
				return fmt.Errorf("%w: after %s: %w", ErrFrameFailed, p, err)
			}
		}
	}
	return nil
}
