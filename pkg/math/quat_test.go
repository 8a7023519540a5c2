package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := float32(math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
}

func TestQuatToMat4(t *testing.T) {
	m := QuatIdentity().ToMat4()
	identity := Identity()
	for i := 0; i < 16; i++ {
		if math.Abs(float64(m[i]-identity[i])) > 0.0001 {
			t.Errorf("Identity quat should produce identity matrix, element %d: got %v, want %v", i, m[i], identity[i])
		}
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	// 90 degrees around Y axis
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	expectedW := float32(math.Cos(math.Pi / 4))
	expectedY := float32(math.Sin(math.Pi / 4))

	if math.Abs(float64(q.W-expectedW)) > 0.001 {
		t.Errorf("QuatFromAxisAngle W: expected %v, got %v", expectedW, q.W)
	}
	if math.Abs(float64(q.Y-expectedY)) > 0.001 {
		t.Errorf("QuatFromAxisAngle Y: expected %v, got %v", expectedY, q.Y)
	}
}

func TestQuatRotateMatchesRotateAxis(t *testing.T) {
	axis := Vec3{X: 0, Y: 0, Z: 1}
	angle := Radians(30)
	p := Vec3{X: 1, Y: 2, Z: 3}

	got := QuatFromAxisAngle(axis, angle).Rotate(p)
	want := RotateAxis(axis, angle).TransformVec3(p)
	if got.Distance(want) > 0.0001 {
		t.Errorf("Rotate: got %v, want %v", got, want)
	}
}

func TestQuatMulComposes(t *testing.T) {
	axis := Vec3{X: 0, Y: 1, Z: 0}
	a := QuatFromAxisAngle(axis, Radians(30))
	b := QuatFromAxisAngle(axis, Radians(60))
	c := QuatFromAxisAngle(axis, Radians(90))

	p := Vec3{X: 1}
	got := a.Mul(b).Rotate(p)
	want := c.Rotate(p)
	if got.Distance(want) > 0.0001 {
		t.Errorf("Mul: got %v, want %v", got, want)
	}
}
