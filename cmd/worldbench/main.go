// worldbench runs a fixed world of object chains with movers and rotators
// and prints frame timings.
//
// Profiling:
// go build ./cmd/worldbench
// ./worldbench cpu
// go tool pprof -http=":8000" ./worldbench cpu.pprof
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/world"
)

const (
	roots       = 1000
	depth       = 10
	frames      = 600
	granularity = 64
	dt          = 16 * time.Millisecond
)

func main() {
	var p interface{ Stop() }
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "cpu":
			p = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		case "mem":
			p = profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
		default:
			fmt.Fprintln(os.Stderr, "Usage: worldbench [cpu|mem]")
			os.Exit(1)
		}
	}
	err := run()
	if p != nil {
		p.Stop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	w := world.New(world.Config{Name: "bench", Simulating: true}, zap.NewNop())
	defer w.Close()

	mover := component.NewMoverManager(w, granularity)
	rotator := component.NewRotatorManager(w, granularity)
	for _, m := range []world.ComponentManager{mover, rotator} {
		if err := w.RegisterManager(m); err != nil {
			return err
		}
	}
	if err := w.ResolveUpdateFunctions(); err != nil {
		return err
	}

	for i := 0; i < roots; i++ {
		parent, err := w.CreateObject(world.ObjectDesc{Local: world.Translation(mgl64.Vec3{float64(i), 0, 0})})
		if err != nil {
			return err
		}
		if _, err := rotator.Add(parent, component.Rotator{Axis: mgl64.Vec3{0, 0, 1}, Speed: 0.5}); err != nil {
			return err
		}
		for d := 1; d < depth; d++ {
			id, err := w.CreateObject(world.ObjectDesc{Parent: parent, Local: world.Translation(mgl64.Vec3{0, 1, 0})})
			if err != nil {
				return err
			}
			if _, err := mover.Add(id, component.Mover{Velocity: mgl64.Vec3{0, 0, 0.01}}); err != nil {
				return err
			}
			parent = id
		}
	}

	ctx := context.Background()
	times := make([]time.Duration, frames)
	start := time.Now()
	for i := range times {
		t := time.Now()
		if err := w.Update(ctx, dt); err != nil {
			return err
		}
		times[i] = time.Since(t)
	}
	total := time.Since(start)

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	st := w.Stats()
	fmt.Printf("objects   %d (%d levels)\n", st.Objects, len(st.Dynamic.Levels))
	fmt.Printf("frames    %d in %s\n", frames, total)
	fmt.Printf("p50       %s\n", times[len(times)/2])
	fmt.Printf("p99       %s\n", times[len(times)*99/100])
	fmt.Printf("max       %s\n", times[len(times)-1])
	fmt.Printf("memory    %d bytes live, %d peak\n", st.Memory.LiveBytes, st.Memory.PeakBytes)
	return nil
}
