package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/pkg/math"
)

type keys struct {
	down   map[Key]bool
	dx, dy float32
}

func (k *keys) KeyDown(key Key) bool { return k.down[key] }
func (k *keys) MouseDelta() (dx, dy float32) { return k.dx, k.dy }

func TestRotationProcessor(t *testing.T) {
	w, _, _ := newWorld(t)
	id := w.MustAddEntity("torus", NoEntity)
	w.SetTransform(id, math.Translate(0, 0, 10))

	p := NewRotationProcessor(w, id, math.Vec3{Y: 1}, 0.25)
	assert.InDelta(t, 90e-6, p.DegreesPerMicro(), 1e-9)
	w.AddProcessor(id, p)

	// Quarter turn after one second at 0.25 rps.
	w.Update(1_000_000, 1_000_000)
	m := w.Transform(id)
	assert.InDelta(t, 10, m.Translation().Z, 1e-4, "rotation keeps the base translation")
	x := m.MulVec4(math.Vec4{0, 0, 1, 0})
	assert.InDelta(t, 1, x[0], 1e-4)
	assert.InDelta(t, 0, x[2], 1e-4)

	assert.Equal(t, float32(0), (&RotationProcessor{}).DegreesPerMicro())
}

func TestRotationProcessorDiagonalAxis(t *testing.T) {
	w, _, _ := newWorld(t)
	id := w.MustAddEntity("torus", NoEntity)
	axis := math.Vec3{X: 1, Y: 1}.Normalize()
	w.AddProcessor(id, NewRotationProcessor(w, id, axis, 0.1))

	// 0.1 rps for 2.5 s is a quarter turn.
	w.Update(2_500_000, 2_500_000)
	m := w.Transform(id)

	// Points on the axis stay put; the rest turn by 90 degrees about it.
	on := m.TransformVec3(axis.Scale(3))
	assert.InDelta(t, axis.X*3, on.X, 1e-4)
	assert.InDelta(t, axis.Y*3, on.Y, 1e-4)
	p := math.Vec3{Z: 1}
	r := m.TransformVec3(p)
	assert.InDelta(t, 0, r.Dot(p), 1e-4)
	assert.InDelta(t, 0, r.Dot(axis), 1e-4)
	assert.InDelta(t, 1, r.Length(), 1e-4)
}

func TestTranslationProcessorPingPong(t *testing.T) {
	w, _, _ := newWorld(t)
	id := w.MustAddEntity("light 4", NoEntity)
	p := NewTranslationProcessor(w, id, math.Vec3{X: 2}, -1, 1, 0.5)
	w.AddProcessor(id, p)

	var got []float32
	for i := 0; i < 9; i++ {
		w.Update(int64(i), 1)
		got = append(got, p.Offset())
	}
	assert.Equal(t, []float32{-0.5, 0, 0.5, 1, 0.5, 0, -0.5, -1, -0.5}, got)
	assert.Equal(t, math.Vec3{X: -0.5}, w.CompositeTransform(id).Translation())
}

func TestFirstPersonProcessor(t *testing.T) {
	w, _, _ := newWorld(t)
	view := render.NewView("Main View", render.ViewScreen)
	in := &keys{down: map[Key]bool{}}
	p := NewFirstPersonProcessor(view, in, 5, 0.1)
	assert.Equal(t, math.Vec3{Y: -15}, p.Camera.Position)

	id := w.MustAddEntity("camera", NoEntity)
	w.AddProcessor(id, p)

	in.down[KeyW] = true
	w.Update(500_000, 500_000)
	assert.InDelta(t, 5, p.Camera.Position.Z, 1e-4)

	in.down[KeyW] = false
	in.down[KeyD] = true
	w.Update(1_000_000, 500_000)
	assert.InDelta(t, -5, p.Camera.Position.X, 1e-4)

	in.down[KeyD] = false
	in.dx = -900
	w.Update(1_500_000, 500_000)
	assert.InDelta(t, 1, p.Camera.Forward().X, 1e-3, "moving the mouse left turns left")

	pos := view.Position()
	assert.InDelta(t, p.Camera.Position.X, pos.X, 1e-3)
	assert.InDelta(t, p.Camera.Position.Z, pos.Z, 1e-3)
}
