package scene

// Key is a keyboard key the scene reacts to.
type Key int

const (
	KeyUnknown Key = iota
	KeyW
	KeyA
	KeyS
	KeyD
	KeyPlus
	KeyMinus
	KeyEscape
)

// InputState is the polled input seen by processors.
type InputState interface {
	KeyDown(k Key) bool
	// MouseDelta returns the relative mouse motion since the last poll.
	MouseDelta() (dx, dy float32)
}
