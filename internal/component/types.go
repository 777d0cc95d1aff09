package component

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Rotator spins its owner around Axis at Speed radians per second.
// Pure data; the rotator manager's update function does the work.
type Rotator struct {
	Axis  mgl64.Vec3
	Speed float64
}

// Mover integrates velocity into the owner's local position.
type Mover struct {
	Velocity     mgl64.Vec3
	Acceleration mgl64.Vec3
	MaxSpeed     float64 // 0 = unbounded
}

// Lifetime deletes its owner once Remaining runs out.
type Lifetime struct {
	Remaining time.Duration
	Expired   bool
}
