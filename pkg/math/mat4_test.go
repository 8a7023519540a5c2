package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation lives in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
	if got := m.Translation(); got != (Vec3{5, 10, 15}) {
		t.Errorf("Translation: got %v", got)
	}
}

func TestTransformVec3(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		in   Vec3
		want Vec3
	}{
		{"translate", Translate(10, 20, 30), Vec3{1, 2, 3}, Vec3{11, 22, 33}},
		{"scale", Scale(2, 2, 2), Vec3{1, 2, 3}, Vec3{2, 4, 6}},
		{"identity", Identity(), Vec3{4, 5, 6}, Vec3{4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.TransformVec3(tt.in); got != tt.want {
				t.Errorf("TransformVec3: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRotateAxisY90(t *testing.T) {
	m := RotateAxis(Vec3{Y: 1}, float32(math.Pi/2))
	result := m.TransformVec3(Vec3{X: 1})

	// After 90 degree Y rotation, (1,0,0) becomes approximately (0,0,-1)
	if abs(result.X) > 0.001 || abs(result.Y) > 0.001 || abs(result.Z+1) > 0.001 {
		t.Errorf("RotateAxis Y 90: got %v, want (0, 0, -1)", result)
	}
}

func TestPerspective(t *testing.T) {
	m := Perspective(float32(math.Pi/4), 1, 0.1, 100)

	if m[0] == 0 || m[5] == 0 {
		t.Error("Perspective should have non-zero elements")
	}
	if m[15] != 0 {
		t.Errorf("Perspective [15] should be 0, got %f", m[15])
	}
	if m[11] != -1 {
		t.Errorf("Perspective [11] should be -1, got %f", m[11])
	}
}

func TestPerspectiveZODepthRange(t *testing.T) {
	near, far := float32(0.1), float32(200)
	m := PerspectiveZO(Radians(45), 1.5, near, far)

	depth := func(z float32) float32 {
		clip := m.MulVec4(Vec4{0, 0, -z, 1})
		return clip[2] / clip[3]
	}
	if d := depth(near); abs(d) > 0.0001 {
		t.Errorf("near plane depth: got %f, want 0", d)
	}
	if d := depth(far); abs(d-1) > 0.0001 {
		t.Errorf("far plane depth: got %f, want 1", d)
	}
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := Vec3{0, -15, 0}
	m := LookAt(eye, Vec3{0, -15, 1}, Vec3{0, 1, 0})

	got := m.TransformVec3(eye)
	if got.Length() > 0.0001 {
		t.Errorf("LookAt: eye should map to origin, got %v", got)
	}
}

func TestInverse(t *testing.T) {
	m := Translate(1, 2, 3).Mul(RotateAxis(Vec3{Y: 1}, 0.7)).Mul(Scale(2, 3, 4))
	product := m.Mul(m.Inverse())
	id := Identity()
	for i := range product {
		if abs(product[i]-id[i]) > 0.0001 {
			t.Fatalf("M * M^-1 element %d: got %f, want %f", i, product[i], id[i])
		}
	}
}

func TestInverseSingular(t *testing.T) {
	if got := (Mat4{}).Inverse(); got != Identity() {
		t.Errorf("singular inverse should be identity, got %v", got)
	}
}

func TestCubeViewProjections(t *testing.T) {
	pos := Vec3{10, 0, -5}
	faces := CubeViewProjections(pos, 0.1, 1000)

	for i, face := range CubeFaceTargets {
		// A point one unit along the face direction lands in the center of that face.
		clip := faces[i].MulVec4(pos.Add(face[0]).Vec4(1))
		x, y := clip[0]/clip[3], clip[1]/clip[3]
		if abs(x) > 0.0001 || abs(y) > 0.0001 {
			t.Errorf("face %d: center maps to (%f, %f), want (0, 0)", i, x, y)
		}
		if clip[3] <= 0 {
			t.Errorf("face %d: target behind camera (w=%f)", i, clip[3])
		}
	}
}

func TestVec3(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	if got := x.Cross(y); got != (Vec3{0, 0, 1}) {
		t.Errorf("Cross: got %v", got)
	}
	if got := (Vec3{3, 4, 0}).Length(); got != 5 {
		t.Errorf("Length: got %v", got)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("Normalize zero: got %v", got)
	}
	if got := (Vec3{1, 2, 3}).Vec4(1).XYZ(); got != (Vec3{1, 2, 3}) {
		t.Errorf("Vec4/XYZ: got %v", got)
	}
	if got := (Vec2{3, 4}).Length(); got != 5 {
		t.Errorf("Vec2 Length: got %v", got)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
