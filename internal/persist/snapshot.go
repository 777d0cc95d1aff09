package persist

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/data"
	"github.com/l1jgo/worldcore/internal/world"
)

var (
	ErrNoSnapshot     = errors.New("persist: no snapshot")
	ErrDigestMismatch = errors.New("persist: snapshot digest mismatch")
)

// Snapshot is a serialisable copy of a world's objects, transforms and
// exportable components.
type Snapshot struct {
	World   uint8          `yaml:"world"`
	Frame   uint64         `yaml:"frame"`
	TakenAt time.Time      `yaml:"taken_at"`
	Objects []ObjectRecord `yaml:"objects"`
}

// ObjectRecord is one object. Parent indexes Objects and is -1 for roots;
// parents always precede their children.
type ObjectRecord struct {
	Parent     int               `yaml:"parent"`
	Name       string            `yaml:"name,omitempty"`
	Static     bool              `yaml:"static,omitempty"`
	Inactive   bool              `yaml:"inactive,omitempty"`
	Position   [3]float64        `yaml:"position,flow"`
	Rotation   [4]float64        `yaml:"rotation,flow"` // w, x, y, z
	Scale      [3]float64        `yaml:"scale,flow"`
	Components []ComponentRecord `yaml:"components,omitempty"`
}

type ComponentRecord struct {
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params"`
}

func (r *ObjectRecord) local() world.Transform {
	return world.Transform{
		Position: mgl64.Vec3(r.Position),
		Rotation: mgl64.Quat{W: r.Rotation[0], V: mgl64.Vec3{r.Rotation[1], r.Rotation[2], r.Rotation[3]}},
		Scale:    mgl64.Vec3(r.Scale),
	}
}

// SnapshotWorld records every live object depth first from the roots.
// Components of managers that do not implement component.Exporter are
// skipped. The caller must hold at least a read lock.
func SnapshotWorld(w *world.World) *Snapshot {
	snap := &Snapshot{
		World:   w.Index(),
		Frame:   w.Frame(),
		TakenAt: time.Now().UTC(),
		Objects: make([]ObjectRecord, 0, w.ObjectCount()),
	}

	type exporter struct {
		name string
		e    component.Exporter
	}
	var exporters []exporter
	w.Managers(func(m world.ComponentManager) {
		if e, ok := m.(component.Exporter); ok {
			exporters = append(exporters, exporter{m.Name(), e})
		}
	})

	var visit func(id world.GameObjectID, parent int)
	visit = func(id world.GameObjectID, parent int) {
		obj, ok := w.TryGetObject(id)
		if !ok {
			return
		}
		local, _ := w.LocalTransform(id)
		rec := ObjectRecord{
			Parent:   parent,
			Name:     obj.Name(),
			Static:   obj.IsStatic(),
			Inactive: !obj.IsActive(),
			Position: local.Position,
			Rotation: [4]float64{local.Rotation.W, local.Rotation.V[0], local.Rotation.V[1], local.Rotation.V[2]},
			Scale:    local.Scale,
		}
		for _, x := range exporters {
			if n, ok := x.e.Export(id); ok {
				rec.Components = append(rec.Components, ComponentRecord{Type: x.name, Params: *n})
			}
		}
		ord := len(snap.Objects)
		snap.Objects = append(snap.Objects, rec)
		for _, c := range w.Children(id) {
			visit(c, ord)
		}
	}

	var roots []world.GameObjectID
	w.Objects(func(obj *world.GameObject) bool {
		if obj.Parent().IsZero() {
			roots = append(roots, obj.ID())
		}
		return true
	})
	for _, id := range roots {
		visit(id, -1)
	}
	return snap
}

// Restore recreates the snapshot's objects in w and returns the new root
// ids. On error every object restored so far is deleted again.
func Restore(w *world.World, snap *Snapshot) ([]world.GameObjectID, error) {
	ids := make([]world.GameObjectID, len(snap.Objects))
	var roots []world.GameObjectID
	fail := func(err error) ([]world.GameObjectID, error) {
		for _, id := range roots {
			_ = w.DeleteObject(id)
		}
		return nil, err
	}

	for i := range snap.Objects {
		rec := &snap.Objects[i]
		var parent world.GameObjectID
		if rec.Parent >= 0 {
			if rec.Parent >= i {
				return fail(fmt.Errorf("restore object %d: parent %d out of order", i, rec.Parent))
			}
			parent = ids[rec.Parent]
		}
		id, err := w.CreateObject(world.ObjectDesc{
			Name:     rec.Name,
			Parent:   parent,
			Static:   rec.Static,
			Inactive: rec.Inactive,
			Local:    rec.local(),
		})
		if err != nil {
			return fail(fmt.Errorf("restore object %d %q: %w", i, rec.Name, err))
		}
		ids[i] = id
		if parent.IsZero() {
			roots = append(roots, id)
		}

		for _, c := range rec.Components {
			m, ok := w.Manager(c.Type)
			if !ok {
				return fail(fmt.Errorf("restore object %d: %w: %s", i, data.ErrUnknownComponent, c.Type))
			}
			a, ok := m.(component.Attacher)
			if !ok {
				return fail(fmt.Errorf("restore object %d: %w: %s cannot attach", i, data.ErrUnknownComponent, c.Type))
			}
			params := c.Params
			if _, err := a.Attach(id, &params); err != nil {
				return fail(fmt.Errorf("restore object %d: %s: %w", i, c.Type, err))
			}
		}
	}
	return roots, nil
}

// Components counts component records across all objects.
func (s *Snapshot) Components() int {
	n := 0
	for i := range s.Objects {
		n += len(s.Objects[i].Components)
	}
	return n
}

// Encode returns the YAML payload and its BLAKE2b-256 digest.
func Encode(s *Snapshot) (payload, digest []byte, err error) {
	payload, err = yaml.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, Digest(payload), nil
}

// Decode verifies digest against payload before decoding it.
func Decode(payload, digest []byte) (*Snapshot, error) {
	if !bytes.Equal(Digest(payload), digest) {
		return nil, ErrDigestMismatch
	}
	var s Snapshot
	if err := yaml.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

func Digest(payload []byte) []byte {
	sum := blake2b.Sum256(payload)
	return sum[:]
}
