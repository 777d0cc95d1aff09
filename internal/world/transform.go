package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/l1jgo/worldcore/internal/core/arena"
)

// Transform is a position/rotation/scale triple.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent(), Scale: mgl64.Vec3{1, 1, 1}}
}

// Translation returns an identity transform moved to p.
func Translation(p mgl64.Vec3) Transform {
	t := Identity()
	t.Position = p
	return t
}

// normalized replaces a zero rotation or zero scale with identity so that a
// zero-valued Transform in an ObjectDesc means "identity".
func (t Transform) normalized() Transform {
	if t.Rotation == (mgl64.Quat{}) {
		t.Rotation = mgl64.QuatIdent()
	}
	if t.Scale == (mgl64.Vec3{}) {
		t.Scale = mgl64.Vec3{1, 1, 1}
	}
	return t
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func divElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] / b[0], a[1] / b[1], a[2] / b[2]}
}

// Combine returns parent * local.
func Combine(parent, local Transform) Transform {
	return Transform{
		Position: parent.Position.Add(parent.Rotation.Rotate(mulElem(parent.Scale, local.Position))),
		Rotation: parent.Rotation.Mul(local.Rotation),
		Scale:    mulElem(parent.Scale, local.Scale),
	}
}

// Relative returns the local transform that places global under parent.
// Scale components of parent must be non-zero.
func Relative(parent, global Transform) Transform {
	inv := parent.Rotation.Inverse()
	return Transform{
		Position: divElem(inv.Rotate(global.Position.Sub(parent.Position)), parent.Scale),
		Rotation: inv.Mul(global.Rotation),
		Scale:    divElem(global.Scale, parent.Scale),
	}
}

// Mat4 returns the TRS matrix, the form the renderer extraction consumes.
func (t Transform) Mat4() mgl64.Mat4 {
	return mgl64.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// ApproxEqual reports whether every component of t and o differs by at
// most eps.
func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	return Near(t.Position, o.Position, eps) &&
		NearQuat(t.Rotation, o.Rotation, eps) &&
		Near(t.Scale, o.Scale, eps)
}

// Near reports whether a and b differ by at most eps on every axis.
func Near(a, b mgl64.Vec3, eps float64) bool {
	return a.ApproxFuncEqual(b, within(eps))
}

// NearQuat is Near for quaternions. q and -q are not considered equal.
func NearQuat(a, b mgl64.Quat, eps float64) bool {
	return a.ApproxEqualFunc(b, within(eps))
}

func within(eps float64) func(a, b float64) bool {
	return func(a, b float64) bool { return math.Abs(a-b) <= eps }
}

// TransformRef locates an object's transform record in its hierarchy.
type TransformRef struct {
	Level uint16
	Slot  arena.Slot
}

// TransformationData is the per-object record stored in hierarchy blocks.
// Parent addresses the parent's record in the level above.
type TransformationData struct {
	Local        Transform
	Global       Transform
	Owner        GameObjectID
	Parent       arena.Slot
	HasParent    bool
	LastModified uint64
}
