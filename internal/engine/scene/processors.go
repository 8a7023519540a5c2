package scene

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/renderlab/internal/engine/camera"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/pkg/math"
)

// RotationProcessor spins an entity around Axis at RPS revolutions per
// second, on top of the transform it had when the processor was created.
type RotationProcessor struct {
	Axis math.Vec3
	RPS  float32

	base math.Mat4
}

// NewRotationProcessor captures the current transform of id as the base.
func NewRotationProcessor(w *World, id EntityID, axis math.Vec3, rps float32) *RotationProcessor {
	return &RotationProcessor{Axis: axis, RPS: rps, base: w.Transform(id)}
}

// DegreesPerMicro returns the angular speed in degrees per microsecond.
func (p *RotationProcessor) DegreesPerMicro() float32 {
	if p.RPS == 0 {
		return 0
	}
	return 360 / ((1 / p.RPS) * 1e6)
}

func (p *RotationProcessor) Process(w *World, id EntityID, absMicros, deltaMicros int64) {
	deg := math32.Mod(float32(float64(absMicros)*float64(p.DegreesPerMicro())), 360)
	rot := math.QuatFromAxisAngle(p.Axis, math.Radians(deg))
	w.SetTransform(id, p.base.Mul(rot.ToMat4()))
}

// TranslationProcessor moves an entity back and forth along Axis between
// Start and End by Increment per update.
type TranslationProcessor struct {
	Axis      math.Vec3
	Start     float32
	End       float32
	Increment float32

	base    math.Mat4
	current float32
	step    float32
}

// NewTranslationProcessor captures the current transform of id as the base
// and starts at start.
func NewTranslationProcessor(w *World, id EntityID, axis math.Vec3, start, end, increment float32) *TranslationProcessor {
	return &TranslationProcessor{
		Axis:      axis.Normalize(),
		Start:     start,
		End:       end,
		Increment: increment,
		base:      w.Transform(id),
		current:   start,
		step:      increment,
	}
}

// Offset returns the current distance along Axis.
func (p *TranslationProcessor) Offset() float32 {
	return p.current
}

func (p *TranslationProcessor) Process(w *World, id EntityID, absMicros, deltaMicros int64) {
	lo, hi := p.Start, p.End
	if lo > hi {
		lo, hi = hi, lo
	}
	p.current += p.step
	if p.current >= hi {
		p.current = hi
		p.step = -p.Increment
	} else if p.current <= lo {
		p.current = lo
		p.step = p.Increment
	}
	w.SetTransform(id, math.TranslateVec3(p.Axis.Scale(p.current)).Mul(p.base))
}

// FirstPersonProcessor drives a screen view from keyboard and mouse.
type FirstPersonProcessor struct {
	Camera *camera.FirstPersonCamera
	View   *render.View
	Input  InputState

	// MoveSpeed is in units per update.
	MoveSpeed float32
	// Sensitivity is in degrees per pixel of mouse motion.
	Sensitivity float32
}

// NewFirstPersonProcessor creates a processor with the default camera
// start: position (0,-15,0), forward +Z, up +Y.
func NewFirstPersonProcessor(view *render.View, input InputState, moveSpeed, sensitivity float32) *FirstPersonProcessor {
	cam := camera.NewFirstPersonCamera(
		math.Vec3{Y: -15},
		math.Vec3{Z: 1},
		math.Vec3{Y: 1},
	)
	view.ViewMatrix = cam.ViewMatrix()
	return &FirstPersonProcessor{
		Camera:      cam,
		View:        view,
		Input:       input,
		MoveSpeed:   moveSpeed,
		Sensitivity: sensitivity,
	}
}

func (p *FirstPersonProcessor) Process(w *World, id EntityID, absMicros, deltaMicros int64) {
	var fwd, right float32
	if p.Input.KeyDown(KeyW) {
		fwd++
	}
	if p.Input.KeyDown(KeyS) {
		fwd--
	}
	if p.Input.KeyDown(KeyD) {
		right++
	}
	if p.Input.KeyDown(KeyA) {
		right--
	}
	p.Camera.Move(fwd*p.MoveSpeed, right*p.MoveSpeed)

	dx, _ := p.Input.MouseDelta()
	if dx != 0 {
		p.Camera.Turn(math.Radians(-dx * p.Sensitivity))
	}
	p.View.ViewMatrix = p.Camera.ViewMatrix()
}
