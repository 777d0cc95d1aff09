package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/l1jgo/worldcore/internal/core/ecs"
)

func TestBusDeliversNextFrame(t *testing.T) {
	b := NewBus()
	var created []ecs.ID
	var deleted []ecs.ID
	Subscribe(b, func(ev ObjectCreated) { created = append(created, ev.ID) })
	Subscribe(b, func(ev ObjectDeleted) { deleted = append(deleted, ev.ID) })

	Emit(b, ObjectCreated{ID: 1})
	Emit(b, ObjectDeleted{ID: 2})
	Emit(b, ObjectCreated{ID: 3})
	assert.Equal(t, 3, b.Pending())
	assert.Zero(t, b.DispatchAll(), "nothing is delivered before the swap")

	b.SwapBuffers()
	assert.Zero(t, b.Pending())
	assert.Equal(t, 3, b.DispatchAll())
	assert.Equal(t, []ecs.ID{1, 3}, created)
	assert.Equal(t, []ecs.ID{2}, deleted)

	b.SwapBuffers()
	assert.Zero(t, b.DispatchAll())
}

func TestBusConcurrentEmit(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Emit(b, ObjectDeleted{ID: ecs.ID(i*100 + j)})
			}
		}(i)
	}
	wg.Wait()
	n := 0
	Subscribe(b, func(ObjectDeleted) { n++ })
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 800, n)
}
