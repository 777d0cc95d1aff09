package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldcore/internal/persist"
	"github.com/l1jgo/worldcore/internal/world"
)

type memorySaver struct {
	snaps []*persist.Snapshot
	err   error
}

func (m *memorySaver) Save(_ context.Context, snap *persist.Snapshot) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.snaps = append(m.snaps, snap)
	return int64(len(m.snaps)), nil
}

func newAutosave(t *testing.T, interval int) (*world.World, *memorySaver, *AutosaveSystem) {
	t.Helper()
	w := world.New(world.Config{Workers: 2}, zaptest.NewLogger(t))
	t.Cleanup(w.Close)
	saver := &memorySaver{}
	return w, saver, NewAutosaveSystem(w, saver, zaptest.NewLogger(t), interval)
}

func TestAutosaveEveryInterval(t *testing.T) {
	w, saver, s := newAutosave(t, 3)
	_, err := w.CreateObject(world.ObjectDesc{Name: "a"})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, w.Update(ctx, time.Millisecond))
		s.Tick(ctx)
	}
	require.Len(t, saver.snaps, 2)
	assert.Equal(t, uint64(3), saver.snaps[0].Frame)
	assert.Equal(t, uint64(6), saver.snaps[1].Frame)
	assert.Len(t, saver.snaps[1].Objects, 1)
}

func TestAutosaveSkipsIdleWorld(t *testing.T) {
	w, saver, s := newAutosave(t, 1)
	ctx := context.Background()
	require.NoError(t, w.Update(ctx, time.Millisecond))
	s.Tick(ctx)
	s.Tick(ctx)
	assert.Len(t, saver.snaps, 1)

	require.NoError(t, s.Flush(ctx))
	assert.Len(t, saver.snaps, 2)
}

func TestAutosaveError(t *testing.T) {
	_, saver, s := newAutosave(t, 1)
	saver.err = errors.New("db down")
	assert.ErrorIs(t, s.Flush(context.Background()), saver.err)
	s.Tick(context.Background())
	assert.Empty(t, saver.snaps)
}
