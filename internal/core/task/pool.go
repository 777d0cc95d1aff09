package task

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownGroup is returned by Wait for an id that was never submitted or
// was already waited on.
var ErrUnknownGroup = errors.New("task: unknown group")

// Task is one schedulable unit of work.
type Task interface {
	Run() error
}

// TaskFunc adapts a function to Task.
type TaskFunc func() error

func (f TaskFunc) Run() error { return f() }

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// GroupID identifies a submitted task group.
type GroupID uint64

type group struct {
	done chan struct{}
	err  error
}

// Pool runs task groups on at most Workers goroutines at a time.
type Pool struct {
	workers int
	nextID  atomic.Uint64
	mu      sync.Mutex
	groups  map[GroupID]*group
	log     *zap.Logger
}

// NewPool creates a pool. workers <= 0 selects GOMAXPROCS.
func NewPool(workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		workers: workers,
		groups:  make(map[GroupID]*group, 8),
		log:     log,
	}
}

func (p *Pool) Workers() int { return p.workers }

// Submit starts every task of the group and returns immediately.
func (p *Pool) Submit(tasks []Task) GroupID {
	id := GroupID(p.nextID.Add(1))
	g := &group{done: make(chan struct{})}
	p.mu.Lock()
	p.groups[id] = g
	p.mu.Unlock()

	if len(tasks) == 0 {
		close(g.done)
		return id
	}

	go func() {
		var (
			eg   errgroup.Group
			mu   sync.Mutex
			errs error
		)
		eg.SetLimit(p.workers)
		for _, t := range tasks {
			t := t
			eg.Go(func() error {
				if err := run(t); err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = eg.Wait()
		g.err = errs
		close(g.done)
	}()
	return id
}

// Wait blocks until the group completes and returns the combined task errors.
func (p *Pool) Wait(id GroupID) error {
	p.mu.Lock()
	g, ok := p.groups[id]
	if ok {
		delete(p.groups, id)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	<-g.done
	if g.err != nil {
		p.log.Debug("task group failed", zap.Uint64("group", uint64(id)), zap.Error(g.err))
	}
	return g.err
}

// Run submits the tasks and waits for them.
func (p *Pool) Run(tasks []Task) error {
	return p.Wait(p.Submit(tasks))
}

func run(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.Run()
}
