// Package input handles SDL2 input events.
package input

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/Faultbox/renderlab/internal/engine/scene"
)

// Event types for game use
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
	EventMouseMove
	EventMouseDown
	EventMouseUp
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Scancode
	Width  int
	Height int
	MouseX int
	MouseY int
	Button uint8
}

var keymap = map[sdl.Scancode]scene.Key{
	sdl.SCANCODE_W:        scene.KeyW,
	sdl.SCANCODE_A:        scene.KeyA,
	sdl.SCANCODE_S:        scene.KeyS,
	sdl.SCANCODE_D:        scene.KeyD,
	sdl.SCANCODE_EQUALS:   scene.KeyPlus,
	sdl.SCANCODE_KP_PLUS:  scene.KeyPlus,
	sdl.SCANCODE_MINUS:    scene.KeyMinus,
	sdl.SCANCODE_KP_MINUS: scene.KeyMinus,
	sdl.SCANCODE_ESCAPE:   scene.KeyEscape,
}

// KeyFor maps a scancode to a scene key.
func KeyFor(sc sdl.Scancode) scene.Key {
	return keymap[sc]
}

// Input handles all input processing. It implements scene.InputState.
type Input struct {
	events []Event
	held   map[scene.Key]bool
	dx, dy float32
	quit   bool
}

// New creates a new input handler.
func New() *Input {
	return &Input{
		events: make([]Event, 0, 16),
		held:   make(map[scene.Key]bool),
	}
}

// Update polls SDL events and converts them to game events.
// Returns true if the program should quit.
func (i *Input) Update() bool {
	i.reset()
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		i.handle(event)
	}
	return i.quit
}

func (i *Input) reset() {
	i.events = i.events[:0]
	i.dx, i.dy = 0, 0
}

func (i *Input) handle(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		i.events = append(i.events, Event{Type: EventQuit})
		i.quit = true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_RESIZED || e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
			i.events = append(i.events, Event{
				Type:   EventWindowResize,
				Width:  int(e.Data1),
				Height: int(e.Data2),
			})
		}

	case *sdl.KeyboardEvent:
		key := KeyFor(e.Keysym.Scancode)
		if e.Type == sdl.KEYDOWN {
			if e.Repeat == 0 {
				i.events = append(i.events, Event{
					Type: EventKeyDown,
					Key:  e.Keysym.Scancode,
				})
			}
			i.held[key] = true
			if key == scene.KeyEscape {
				i.quit = true
			}
		} else if e.Type == sdl.KEYUP {
			i.events = append(i.events, Event{
				Type: EventKeyUp,
				Key:  e.Keysym.Scancode,
			})
			delete(i.held, key)
		}

	case *sdl.MouseMotionEvent:
		i.dx += float32(e.XRel)
		i.dy += float32(e.YRel)
		i.events = append(i.events, Event{
			Type:   EventMouseMove,
			MouseX: int(e.X),
			MouseY: int(e.Y),
		})

	case *sdl.MouseButtonEvent:
		if e.Type == sdl.MOUSEBUTTONDOWN {
			i.events = append(i.events, Event{
				Type:   EventMouseDown,
				MouseX: int(e.X),
				MouseY: int(e.Y),
				Button: e.Button,
			})
		} else if e.Type == sdl.MOUSEBUTTONUP {
			i.events = append(i.events, Event{
				Type:   EventMouseUp,
				MouseX: int(e.X),
				MouseY: int(e.Y),
				Button: e.Button,
			})
		}
	}
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

// IsKeyPressed checks if a specific key was pressed this frame.
func (i *Input) IsKeyPressed(scancode sdl.Scancode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && e.Key == scancode {
			return true
		}
	}
	return false
}

// Pressed reports whether k went down this frame.
func (i *Input) Pressed(k scene.Key) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && KeyFor(e.Key) == k {
			return true
		}
	}
	return false
}

// KeyDown reports whether k is held.
func (i *Input) KeyDown(k scene.Key) bool {
	return i.held[k]
}

// MouseDelta returns the relative mouse motion of the last Update.
func (i *Input) MouseDelta() (dx, dy float32) {
	return i.dx, i.dy
}

// Resized returns the last window size reported this frame.
func (i *Input) Resized() (width, height int, ok bool) {
	for _, e := range i.events {
		if e.Type == EventWindowResize {
			width, height, ok = e.Width, e.Height, true
		}
	}
	return width, height, ok
}
