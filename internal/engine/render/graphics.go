package render

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrNotBuilt is returned when an operation needs backend state that
	// was never created.
	ErrNotBuilt = errors.New("resource not built")
	// ErrUnknownView is returned for views the backend does not render to.
	ErrUnknownView = errors.New("unknown view")
	// ErrOutOfDate is returned when the swap surface no longer matches the
	// window and must be resized.
	ErrOutOfDate = errors.New("swapchain out of date")
)

// Graphics is implemented by every rendering backend. Calls must come from
// a single goroutine.
type Graphics interface {
	// Initialize creates the device and queues for numFrames frames in flight.
	Initialize(numFrames int) error
	// SetOnscreenView registers the view that presents to the window.
	SetOnscreenView(view *View)
	// DepthPrepass reports whether the on-screen pass starts with a
	// depth-only subpass.
	DepthPrepass() bool

	BuildView(view *View, numFrames int) error
	BuildUniformBuffer(ub *UniformBuffer) error
	BuildMaterial(mat *Material, frameData, objectData []*UniformBuffer) error
	// BuildMesh uploads the mesh, builds its material and creates its
	// pipelines for the on-screen view and every shadow-casting light.
	BuildMesh(mesh *Mesh, frameData, objectData []*UniformBuffer, lights []*Light) error

	// UpdateUniformData copies data into ub at offset.
	UpdateUniformData(ub *UniformBuffer, offset int, data []byte) error
	// BufferAlignment returns the minimum dynamic storage buffer offset
	// alignment in bytes.
	BufferAlignment() int

	Resize(view *View, width, height int) error
	// AcquireBackBuffer takes the next back-buffer slot of view. For the
	// on-screen view the slot is the frame index of the whole frame.
	// Off-screen views keep their slot internally: the calls that follow
	// take the on-screen frame index, which selects the frame's uniform
	// buffers and pipelines.
	AcquireBackBuffer(view *View) (slot uint32, err error)
	RenderBegin(view, lastView *View, frameData, objectData *UniformBuffer, frameIndex uint32) error
	EndDepthPrepass(view *View, frameIndex uint32) error
	BindPipeline(mesh *Mesh, view *View, frameIndex uint32, depthPrepass bool) error
	Render(mesh *Mesh, objectOffset uint32, view *View, frameIndex uint32, depthPrepass bool) error
	RenderEnd(view, lastView *View, frameData, objectData *UniformBuffer, frameIndex uint32) error
	SwapBackBuffer(view *View, frameIndex uint32) error

	SetDepthBias(constant, slope float32)
	// GPUFrameTime returns the geometry time of the last frame in ms.
	GPUFrameTime() float32
	// GPUFrameTime2 returns the lighting composite time of the last frame in ms.
	GPUFrameTime2() float32

	Destroy() error
}

// LightInfoSize is the byte size of the ivec4 at offset 0 of the frame block.
const LightInfoSize = 16

// UpdateLightInfo writes the current light index and light count into the
// frame block.
func UpdateLightInfo(g Graphics, frameData *UniformBuffer, index, count int) error {
	var buf [LightInfoSize]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(index)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(count)))
	return g.UpdateUniformData(frameData, 0, buf[:])
}
