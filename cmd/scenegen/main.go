// scenegen writes a synthetic scene of roots × depth object chains for load
// testing. Every root spins, every chain element moves, and each depth level
// is offset one unit along Y from its parent.
package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/data"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Usage: scenegen <output.yaml> <roots> <depth>")
		os.Exit(1)
	}
	roots, err := strconv.Atoi(os.Args[2])
	if err != nil || roots <= 0 {
		fmt.Fprintf(os.Stderr, "invalid roots %q\n", os.Args[2])
		os.Exit(1)
	}
	depth, err := strconv.Atoi(os.Args[3])
	if err != nil || depth <= 0 {
		fmt.Fprintf(os.Stderr, "invalid depth %q\n", os.Args[3])
		os.Exit(1)
	}

	scene := data.SceneFile{Name: fmt.Sprintf("chains-%dx%d", roots, depth)}
	for i := 0; i < roots; i++ {
		root := data.SceneObject{
			Name:     fmt.Sprintf("root-%d", i),
			Position: []float64{float64(i), 0, 0},
			Components: []data.SceneComponent{
				sceneComponent(component.RotatorName, map[string]any{"axis": []float64{0, 0, 1}, "speed": 0.1 * float64(i%10+1)}),
			},
		}
		parent := &root
		for d := 1; d < depth; d++ {
			parent.Children = []data.SceneObject{{
				Name:     fmt.Sprintf("root-%d/%d", i, d),
				Position: []float64{0, 1, 0},
				Components: []data.SceneComponent{
					sceneComponent(component.MoverName, map[string]any{"velocity": []float64{0, 0, 0.01 * float64(d)}, "max_speed": 1}),
				},
			}}
			parent = &parent.Children[0]
		}
		scene.Objects = append(scene.Objects, root)
	}

	out, err := yaml.Marshal(&scene)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	header := fmt.Sprintf("# Scene %s, auto-generated by scenegen (%d objects)\n", scene.Name, scene.Count())
	if err := os.WriteFile(os.Args[1], append([]byte(header), out...), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d objects to %s\n", scene.Count(), os.Args[1])
}

func sceneComponent(typ string, params map[string]any) data.SceneComponent {
	c := data.SceneComponent{Type: typ}
	if err := c.Params.Encode(params); err != nil {
		panic(err)
	}
	return c
}
