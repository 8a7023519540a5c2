package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/Faultbox/renderlab/internal/engine/scene"
)

var _ scene.InputState = (*Input)(nil)

func key(typ uint32, sc sdl.Scancode, repeat uint8) *sdl.KeyboardEvent {
	return &sdl.KeyboardEvent{Type: typ, Repeat: repeat, Keysym: sdl.Keysym{Scancode: sc}}
}

func TestHeldKeys(t *testing.T) {
	in := New()
	in.handle(key(sdl.KEYDOWN, sdl.SCANCODE_W, 0))
	assert.True(t, in.KeyDown(scene.KeyW))
	assert.True(t, in.Pressed(scene.KeyW))

	in.reset()
	in.handle(key(sdl.KEYDOWN, sdl.SCANCODE_W, 1))
	assert.True(t, in.KeyDown(scene.KeyW))
	assert.False(t, in.Pressed(scene.KeyW), "repeats are not presses")

	in.handle(key(sdl.KEYUP, sdl.SCANCODE_W, 0))
	assert.False(t, in.KeyDown(scene.KeyW))
}

func TestDepthBiasKeys(t *testing.T) {
	in := New()
	in.handle(key(sdl.KEYDOWN, sdl.SCANCODE_KP_PLUS, 0))
	in.handle(key(sdl.KEYDOWN, sdl.SCANCODE_MINUS, 0))
	assert.True(t, in.Pressed(scene.KeyPlus))
	assert.True(t, in.Pressed(scene.KeyMinus))
	assert.True(t, in.IsKeyPressed(sdl.SCANCODE_MINUS))
	assert.Equal(t, scene.KeyUnknown, KeyFor(sdl.SCANCODE_F1))
}

func TestMouseDeltaAccumulates(t *testing.T) {
	in := New()
	in.handle(&sdl.MouseMotionEvent{X: 10, Y: 10, XRel: 3, YRel: -1})
	in.handle(&sdl.MouseMotionEvent{X: 14, Y: 9, XRel: 4, YRel: -1})
	dx, dy := in.MouseDelta()
	assert.Equal(t, float32(7), dx)
	assert.Equal(t, float32(-2), dy)

	in.reset()
	dx, dy = in.MouseDelta()
	assert.Zero(t, dx)
	assert.Zero(t, dy)
}

func TestQuitAndResize(t *testing.T) {
	in := New()
	in.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED, Data1: 800, Data2: 600})
	w, h, ok := in.Resized()
	assert.True(t, ok)
	assert.Equal(t, []int{800, 600}, []int{w, h})
	assert.False(t, in.quit)

	in.handle(key(sdl.KEYDOWN, sdl.SCANCODE_ESCAPE, 0))
	assert.True(t, in.quit)
}
