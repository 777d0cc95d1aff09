package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

func noop(UpdateContext, int, int) {}

func desc(name string, p Phase, deps ...string) UpdateFunctionDesc {
	return UpdateFunctionDesc{Owner: "test", Name: name, Phase: p, Func: noop, DependsOn: deps}
}

func TestRegistryOrdersByDependency(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register(desc("c", PhaseAsync, "b")))
	require.NoError(t, r.Register(desc("a", PhaseAsync)))
	assert.Equal(t, []string{"c"}, r.Unresolved())
	require.NoError(t, r.Register(desc("b", PhaseAsync, "a")))

	assert.Equal(t, []string{"a", "b", "c"}, r.Names(PhaseAsync))
	assert.Empty(t, r.Unresolved())
	assert.NoError(t, r.Resolve())
	assert.Equal(t, 3, r.Len())
}

func TestRegistrySharedDependencyTieBreak(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(desc("second", PhaseAsync, "target")))
	require.NoError(t, r.Register(desc("first", PhaseAsync, "target")))
	require.NoError(t, r.Register(desc("target", PhaseAsync)))

	assert.Equal(t, []string{"target", "second", "first"}, r.Names(PhaseAsync),
		"waiting functions are promoted in registration order")
}

func TestRegistryEarlierPhaseDependency(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(desc("late", PhasePostAsync, "early")))
	require.NoError(t, r.Register(desc("early", PhasePreAsync)))
	assert.Equal(t, []string{"late"}, r.Names(PhasePostAsync))
	assert.NoError(t, r.Resolve())
}

func TestRegistryReportsUnresolved(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register(desc("later", PhasePostTransform)))
	require.NoError(t, r.Register(desc("needs-later", PhaseAsync, "later")))
	require.NoError(t, r.Register(desc("missing", PhaseAsync, "ghost")))
	require.NoError(t, r.Register(desc("x", PhaseAsync, "y")))
	require.NoError(t, r.Register(desc("y", PhaseAsync, "x")))
	require.NoError(t, r.Register(desc("chained", PhaseAsync, "missing")))

	err := r.Resolve()
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 5)
	for _, e := range errs {
		assert.ErrorIs(t, e, ErrUnresolvedDependency)
	}
	assert.Contains(t, errs[0].Error(), "later phase")
	assert.Contains(t, errs[1].Error(), `"ghost" is not registered`)
	assert.Contains(t, errs[2].Error(), "dependency cycle")
	assert.Contains(t, errs[3].Error(), "dependency cycle")
	assert.Contains(t, errs[4].Error(), "itself unresolved")
	assert.Empty(t, r.Names(PhaseAsync), "unresolved functions never run")
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(desc("a", PhaseAsync)))
	assert.ErrorIs(t, r.Register(desc("a", PhasePreAsync)), ErrDuplicateFunction)
	assert.ErrorIs(t, r.Register(desc("", PhaseAsync)), ErrInvalidFunction)
	assert.ErrorIs(t, r.Register(desc("bad", Phase(9))), ErrInvalidFunction)
	assert.ErrorIs(t, r.Register(desc("self", PhaseAsync, "self")), ErrInvalidFunction)
	assert.ErrorIs(t, r.Register(UpdateFunctionDesc{Name: "nil", Phase: PhaseAsync}), ErrInvalidFunction)
	neg := desc("neg", PhaseAsync)
	neg.Granularity = -1
	assert.ErrorIs(t, r.Register(neg), ErrInvalidFunction)
}

func TestParsePhase(t *testing.T) {
	for p := PhasePreAsync; p <= PhasePostTransform; p++ {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePhase("never")
	assert.Error(t, err)
}
