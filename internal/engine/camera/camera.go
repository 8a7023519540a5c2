// Package camera provides camera implementations for 3D rendering.
package camera

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/renderlab/pkg/math"
)

// FirstPersonCamera walks on the plane perpendicular to Up and turns
// around it.
type FirstPersonCamera struct {
	Position math.Vec3
	Yaw      float32 // radians, positive turns left

	forward math.Vec3 // at yaw 0
	up      math.Vec3
}

// NewFirstPersonCamera creates a camera at position looking along forward.
func NewFirstPersonCamera(position, forward, up math.Vec3) *FirstPersonCamera {
	return &FirstPersonCamera{
		Position: position,
		forward:  forward.Normalize(),
		up:       up.Normalize(),
	}
}

// Up returns the up direction.
func (c *FirstPersonCamera) Up() math.Vec3 {
	return c.up
}

// Forward returns the current look direction.
func (c *FirstPersonCamera) Forward() math.Vec3 {
	return math.RotateAxis(c.up, c.Yaw).MulVec4(c.forward.Vec4(0)).XYZ()
}

// Right returns the direction to the right of Forward.
func (c *FirstPersonCamera) Right() math.Vec3 {
	return c.Forward().Cross(c.up).Normalize()
}

// Move translates the camera along its forward and right axes.
func (c *FirstPersonCamera) Move(forward, right float32) {
	c.Position = c.Position.Add(c.Forward().Scale(forward)).Add(c.Right().Scale(right))
}

// Turn adds delta radians of yaw, wrapped to -Pi..Pi.
func (c *FirstPersonCamera) Turn(delta float32) {
	c.Yaw = math32.Remainder(c.Yaw+delta, 2*math32.Pi)
}

// ViewMatrix returns the view matrix for this camera.
func (c *FirstPersonCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position, c.Position.Add(c.Forward()), c.up)
}
