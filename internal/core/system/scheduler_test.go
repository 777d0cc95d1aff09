package system

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldcore/internal/core/task"
)

func TestSplit(t *testing.T) {
	assert.Nil(t, Split(0, 4))
	assert.Equal(t, []Range{{0, 10}}, Split(10, 0))
	assert.Equal(t, []Range{{0, 10}}, Split(10, 64))
	assert.Equal(t, []Range{{0, 4}, {4, 4}, {8, 2}}, Split(10, 4))
	assert.Len(t, Split(10000, 64), 157)
	assert.Len(t, Split(10000, 1), 10000)
}

func TestSchedulerSplitsByGranularity(t *testing.T) {
	reg := NewRegistry(nil)
	var mu sync.Mutex
	var chunks []Range
	covered := make([]int32, 100)
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name:        "chunks",
		Phase:       PhaseAsync,
		Granularity: 16,
		Count:       func() int { return 100 },
		Func: func(_ UpdateContext, start, count int) {
			mu.Lock()
			chunks = append(chunks, Range{start, count})
			mu.Unlock()
			for i := start; i < start+count; i++ {
				atomic.AddInt32(&covered[i], 1)
			}
		},
	}))
	s := NewScheduler(reg, task.NewPool(4, nil), zaptest.NewLogger(t))
	require.NoError(t, s.RunPhase(UpdateContext{Phase: PhaseAsync}))

	assert.Len(t, chunks, 7)
	for i, c := range covered {
		assert.EqualValues(t, 1, c, "element %d", i)
	}
	st := s.Stats(PhaseAsync)
	assert.Equal(t, 1, st.Functions)
	assert.Equal(t, 7, st.Tasks)
	state, _ := s.State()
	assert.Equal(t, StateIdle, state)
}

func TestSchedulerPhaseOrderIsTotal(t *testing.T) {
	reg := NewRegistry(nil)
	const n = 1000
	data := make([]int, n)
	observed := make([]int, n)

	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "init", Phase: PhasePreAsync, Granularity: 10, Count: func() int { return n },
		Func: func(_ UpdateContext, start, count int) {
			for i := start; i < start+count; i++ {
				data[i] = 2
			}
		},
	}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "observe", Phase: PhaseAsync, Granularity: 7, Count: func() int { return n },
		Func: func(_ UpdateContext, start, count int) {
			for i := start; i < start+count; i++ {
				observed[i] = data[i]
			}
		},
	}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "mutate", Phase: PhasePostAsync, Granularity: 3, Count: func() int { return n },
		Func: func(_ UpdateContext, start, count int) {
			for i := start; i < start+count; i++ {
				data[i] = -1
			}
		},
	}))

	var after []Phase
	s := NewScheduler(reg, task.NewPool(8, nil), nil)
	require.NoError(t, s.RunFrame(UpdateContext{Frame: 1}, func(p Phase) error {
		after = append(after, p)
		return nil
	}))
	for i := range observed {
		require.Equal(t, 2, observed[i], "async phase saw post-async data at %d", i)
		require.Equal(t, -1, data[i])
	}
	assert.Equal(t, []Phase{PhasePreAsync, PhaseAsync, PhasePostAsync, PhasePostTransform}, after)
}

func TestSchedulerSkipsWhenNotSimulating(t *testing.T) {
	reg := NewRegistry(nil)
	var calls atomic.Int32
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "sim", Phase: PhaseAsync, OnlyWhenSimulating: true,
		Func: func(UpdateContext, int, int) { calls.Add(1) },
	}))
	s := NewScheduler(reg, task.NewPool(2, nil), nil)
	require.NoError(t, s.RunPhase(UpdateContext{Phase: PhaseAsync}))
	assert.Zero(t, calls.Load())
	require.NoError(t, s.RunPhase(UpdateContext{Phase: PhaseAsync, Simulating: true}))
	assert.EqualValues(t, 1, calls.Load())
}

func TestSchedulerPanicFailsFrame(t *testing.T) {
	reg := NewRegistry(nil)
	var post atomic.Int32
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "explode", Phase: PhaseAsync, Granularity: 1, Count: func() int { return 4 },
		Func: func(_ UpdateContext, start, _ int) {
			if start == 2 {
				panic("bad element")
			}
		},
	}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "post", Phase: PhasePostAsync,
		Func: func(UpdateContext, int, int) { post.Add(1) },
	}))
	s := NewScheduler(reg, task.NewPool(2, nil), zaptest.NewLogger(t))

	err := s.RunFrame(UpdateContext{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameFailed)
	var pe *task.PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "bad element", pe.Value)
	assert.Contains(t, err.Error(), `"explode" [2,+1)`)
	assert.Zero(t, post.Load(), "later phases do not run after a failure")
}

func TestSchedulerAfterHookFailsFrame(t *testing.T) {
	s := NewScheduler(NewRegistry(nil), task.NewPool(1, nil), nil)
	hookErr := errors.New("transforms")
	err := s.RunFrame(UpdateContext{}, func(p Phase) error {
		if p == PhasePostAsync {
			return hookErr
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrFrameFailed)
	assert.ErrorIs(t, err, hookErr)
}

func TestSchedulerRunsDependentAfterDependency(t *testing.T) {
	reg := NewRegistry(nil)
	var produced atomic.Bool
	var sawProduced atomic.Bool
	var other atomic.Int32
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "produce", Phase: PhaseAsync,
		Func: func(UpdateContext, int, int) {
			time.Sleep(20 * time.Millisecond)
			produced.Store(true)
		},
	}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "independent", Phase: PhaseAsync,
		Func: func(UpdateContext, int, int) { other.Add(1) },
	}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{
		Name: "consume", Phase: PhaseAsync, DependsOn: []string{"produce"},
		Func: func(UpdateContext, int, int) { sawProduced.Store(produced.Load()) },
	}))
	s := NewScheduler(reg, task.NewPool(4, nil), zaptest.NewLogger(t))

	stages, used := s.Stages(UpdateContext{Phase: PhaseAsync})
	assert.Equal(t, 3, used)
	require.Len(t, stages, 2)
	assert.Len(t, stages[0], 2, "functions without same-phase dependencies share a stage")
	assert.Len(t, stages[1], 1)

	require.NoError(t, s.RunPhase(UpdateContext{Phase: PhaseAsync}))
	assert.True(t, sawProduced.Load(), "consume ran before produce finished")
	assert.EqualValues(t, 1, other.Load())
	st := s.Stats(PhaseAsync)
	assert.Equal(t, 2, st.Stages)
	assert.Equal(t, 3, st.Tasks)
	state, _ := s.State()
	assert.Equal(t, StateIdle, state)
}

func TestSchedulerCrossPhaseDependencyDoesNotStage(t *testing.T) {
	reg := NewRegistry(nil)
	noop := func(UpdateContext, int, int) {}
	require.NoError(t, reg.Register(UpdateFunctionDesc{Name: "early", Phase: PhasePreAsync, Func: noop}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{Name: "late", Phase: PhaseAsync, DependsOn: []string{"early"}, Func: noop}))
	require.NoError(t, reg.Register(UpdateFunctionDesc{Name: "peer", Phase: PhaseAsync, Func: noop}))
	s := NewScheduler(reg, task.NewPool(2, nil), nil)

	stages, _ := s.Stages(UpdateContext{Phase: PhaseAsync})
	require.Len(t, stages, 1)
	assert.Len(t, stages[0], 2)
}
