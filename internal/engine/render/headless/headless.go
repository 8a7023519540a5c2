// Package headless implements render.Graphics without a GPU. It keeps the
// same resource bookkeeping as the GPU backends and records every
// submission, which makes frame sequencing observable in tests and in the
// headless run mode.
package headless

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/shader"
	"github.com/Faultbox/renderlab/internal/logger"
)

// DefaultAlignment matches the storage buffer offset alignment of common
// discrete GPUs.
const DefaultAlignment = 256

// ErrNoFreeSlot is returned by AcquireBackBuffer when every back buffer of
// the view is still in flight. A GPU backend would block here forever.
var ErrNoFreeSlot = errors.New("no free back buffer")

// Options configures the backend.
type Options struct {
	Alignment    int
	DepthPrepass bool
}

// Stats counts the work a GPU backend would have done.
type Stats struct {
	MeshUploads      int
	MaterialBuilds   int
	TextureUploads   int
	UniformBuilds    int
	ViewBuilds       int
	PipelineCreates  int
	UniformWrites    int
	SwapchainCreates int
	GBufferCreates   int
}

// Draw is one recorded indexed draw.
type Draw struct {
	Mesh         string
	Material     string
	ObjectOffset uint32
	Indices      int
	Subpass      int
}

// Submission is one recorded command buffer submission.
type Submission struct {
	View       string
	Type       render.ViewType
	FrameIndex uint32
	// Slot is the back-buffer slot of the view. It equals FrameIndex for
	// the on-screen view.
	Slot uint32
	// LightIndex is the light a shadow submission renders for.
	LightIndex int
	// WaitsOn names the view whose semaphore the submission waits on.
	WaitsOn   string
	Draws     []Draw
	Composite []render.CompositeLight
	Presented bool
}

// Backend is the recording implementation of render.Graphics.
type Backend struct {
	opts      Options
	numFrames int
	log       *zap.Logger

	onscreen *render.View
	depth    render.DepthMaterials

	views     *render.Arena[*viewState]
	meshes    *render.Arena[*meshState]
	materials *render.Arena[*materialState]
	textures  *render.Arena[string]
	uniforms  *render.Arena[[]byte]
	pipelines *render.PipelineCache[int]

	textureCache map[string]render.Handle

	depthBiasConstant float32
	depthBiasSlope    float32

	stats       Stats
	submissions []Submission
}

type viewState struct {
	view      *render.View
	slots     *render.Ring[uint32]
	current   uint32 // last acquired slot
	width     int
	height    int
	created   bool
	recording *Submission
	subpass   int
	bound     int // pipeline bound for the next draw, 0 if none
}

type meshState struct {
	vertexFloats int
	indices      int
	pipelines    map[render.MeshPipeline]int
}

type materialState struct {
	descriptorSets int
	textures       []render.Handle
}

var _ render.Graphics = (*Backend)(nil)

// New creates a headless backend.
func New(opts Options) *Backend {
	if opts.Alignment <= 0 {
		opts.Alignment = DefaultAlignment
	}
	return &Backend{
		opts:         opts,
		log:          logger.Named("headless"),
		views:        render.NewArena[*viewState](),
		meshes:       render.NewArena[*meshState](),
		materials:    render.NewArena[*materialState](),
		textures:     render.NewArena[string](),
		uniforms:     render.NewArena[[]byte](),
		pipelines:    render.NewPipelineCache[int](),
		textureCache: make(map[string]render.Handle),
	}
}

// Initialize records the frame count.
func (b *Backend) Initialize(numFrames int) error {
	if numFrames < 1 || numFrames > 2 {
		return fmt.Errorf("frames in flight must be 1 or 2, got %d", numFrames)
	}
	b.numFrames = numFrames
	b.log.Info("headless backend initialized", zap.Int("frames", numFrames), zap.Int("alignment", b.opts.Alignment))
	return nil
}

func (b *Backend) SetOnscreenView(view *render.View) { b.onscreen = view }

func (b *Backend) DepthPrepass() bool { return b.opts.DepthPrepass }

func (b *Backend) BufferAlignment() int { return b.opts.Alignment }

// BuildView creates the back-buffer ring of view. On-screen views also get
// a swapchain and G-buffer sized to the viewport.
func (b *Backend) BuildView(view *render.View, numFrames int) error {
	if view.Type == render.ViewReflection {
		return fmt.Errorf("%w: %s is a reflection view", render.ErrUnknownView, view.Name)
	}
	if !view.NeedsBuild() {
		return nil
	}
	slots := make([]uint32, numFrames)
	for i := range slots {
		slots[i] = uint32(i)
	}
	vs := &viewState{view: view, slots: render.NewRing(slots...)}
	if h := view.Handle(); h == render.NoHandle || !b.views.Set(h, vs) {
		view.SetHandle(b.views.Insert(vs))
	}
	b.stats.ViewBuilds++

	if view.Type == render.ViewScreen {
		w, h := view.Extent()
		if err := b.resize(vs, w, h); err != nil {
			return err
		}
	} else {
		vs.width, vs.height = view.Extent()
	}
	view.SetDirty(false)
	b.log.Debug("view built", zap.String("view", view.Name), zap.Stringer("type", view.Type))
	return nil
}

// BuildUniformBuffer allocates the host copy of ub.
func (b *Backend) BuildUniformBuffer(ub *render.UniformBuffer) error {
	if !ub.NeedsBuild() {
		return nil
	}
	data := make([]byte, ub.Size)
	if h := ub.Handle(); h == render.NoHandle || !b.uniforms.Set(h, data) {
		ub.SetHandle(b.uniforms.Insert(data))
	}
	b.stats.UniformBuilds++
	ub.SetDirty(false)
	return nil
}

// BuildMaterial uploads the material textures and creates one descriptor
// set per frame bound to the frame and object buffers.
func (b *Backend) BuildMaterial(mat *render.Material, frameData, objectData []*render.UniformBuffer) error {
	if !mat.NeedsBuild() {
		return nil
	}
	if _, err := shader.ForMaterial(mat); err != nil {
		return fmt.Errorf("building material %s: %w", mat.Name, err)
	}
	if len(frameData) < b.numFrames || len(objectData) < b.numFrames {
		return fmt.Errorf("building material %s: need %d frame and object buffers", mat.Name, b.numFrames)
	}
	for i := 0; i < b.numFrames; i++ {
		if frameData[i].Handle() == render.NoHandle || objectData[i].Handle() == render.NoHandle {
			return fmt.Errorf("building material %s: %w: uniform buffers for frame %d", mat.Name, render.ErrNotBuilt, i)
		}
	}

	ms := &materialState{descriptorSets: b.numFrames}
	for _, tex := range mat.Textures() {
		ms.textures = append(ms.textures, b.buildTexture(tex))
	}
	if h := mat.Handle(); h == render.NoHandle || !b.materials.Set(h, ms) {
		mat.SetHandle(b.materials.Insert(ms))
	}
	b.stats.MaterialBuilds++
	mat.SetDirty(false)
	return nil
}

func (b *Backend) buildTexture(tex *render.Texture) render.Handle {
	if h, ok := b.textureCache[tex.Name]; ok {
		tex.SetHandle(h)
		tex.SetDirty(false)
		return h
	}
	h := b.textures.Insert(tex.Name)
	b.textureCache[tex.Name] = h
	tex.SetHandle(h)
	tex.SetDirty(false)
	b.stats.TextureUploads++
	b.log.Debug("texture uploaded", zap.String("texture", tex.Name), zap.Int("width", tex.Width), zap.Int("height", tex.Height))
	return h
}

// BuildMesh uploads the interleaved vertices and indices, builds the
// materials the mesh is drawn with and creates its pipelines.
func (b *Backend) BuildMesh(mesh *render.Mesh, frameData, objectData []*render.UniformBuffer, lights []*render.Light) error {
	if !mesh.NeedsBuild() {
		return nil
	}
	if err := mesh.Validate(); err != nil {
		return err
	}
	if mesh.Material == nil {
		return fmt.Errorf("building mesh %s: no material", mesh.Name)
	}

	ms := &meshState{
		vertexFloats: len(mesh.Interleave()),
		indices:      mesh.IndexCount(),
		pipelines:    make(map[render.MeshPipeline]int),
	}

	for _, target := range b.depth.Targets(mesh, b.onscreen, b.opts.DepthPrepass, lights) {
		if target.View.Handle() == render.NoHandle {
			return fmt.Errorf("building mesh %s: %w: view %s", mesh.Name, render.ErrNotBuilt, target.View.Name)
		}
		if err := b.BuildMaterial(target.Material, frameData, objectData); err != nil {
			return err
		}
		for frame := 0; frame < b.numFrames; frame++ {
			key, err := shader.PipelineKey(mesh, target.Material, uint32(frame))
			if err != nil {
				return fmt.Errorf("building mesh %s: %w", mesh.Name, err)
			}
			id, err := b.pipelines.GetOrCreate(key, b.createPipeline)
			if err != nil {
				return err
			}
			ms.pipelines[render.MeshPipeline{
				View:         target.View.Handle(),
				FrameIndex:   uint32(frame),
				DepthPrepass: target.DepthPrepass,
			}] = id
		}
	}

	if h := mesh.Handle(); h == render.NoHandle || !b.meshes.Set(h, ms) {
		mesh.SetHandle(b.meshes.Insert(ms))
	}
	b.stats.MeshUploads++
	mesh.SetDirty(false)
	return nil
}

func (b *Backend) createPipeline(key render.PipelineKey) (int, error) {
	b.stats.PipelineCreates++
	b.log.Debug("pipeline created", zap.Stringer("key", key))
	return b.pipelines.Len() + 1, nil
}

// UpdateUniformData copies data into the host copy of ub.
func (b *Backend) UpdateUniformData(ub *render.UniformBuffer, offset int, data []byte) error {
	buf, ok := b.uniforms.Get(ub.Handle())
	if !ok {
		return fmt.Errorf("updating %s: %w", ub.Name, render.ErrNotBuilt)
	}
	if offset < 0 || offset+len(data) > len(buf) {
		return fmt.Errorf("updating %s: %d bytes at %d overflow %d", ub.Name, len(data), offset, len(buf))
	}
	copy(buf[offset:], data)
	b.stats.UniformWrites++
	return nil
}

// Resize recreates the swapchain and G-buffer of an on-screen view when the
// extent changes.
func (b *Backend) Resize(view *render.View, width, height int) error {
	vs, err := b.view(view)
	if err != nil {
		return err
	}
	if view.Type != render.ViewScreen {
		return fmt.Errorf("%w: resize of %s view %s", render.ErrUnknownView, view.Type, view.Name)
	}
	return b.resize(vs, width, height)
}

func (b *Backend) resize(vs *viewState, width, height int) error {
	if vs.created && vs.width == width && vs.height == height {
		return nil
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resizing %s: invalid extent %dx%d", vs.view.Name, width, height)
	}
	vs.width, vs.height = width, height
	vs.created = true
	vs.view.SetExtent(width, height)
	b.stats.SwapchainCreates++
	b.stats.GBufferCreates++
	b.log.Debug("swapchain created", zap.String("view", vs.view.Name), zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (b *Backend) view(view *render.View) (*viewState, error) {
	vs, ok := b.views.Get(view.Handle())
	if !ok {
		return nil, fmt.Errorf("view %s: %w", view.Name, render.ErrNotBuilt)
	}
	return vs, nil
}

// AcquireBackBuffer takes the oldest free slot of view.
func (b *Backend) AcquireBackBuffer(view *render.View) (uint32, error) {
	vs, err := b.view(view)
	if err != nil {
		return 0, err
	}
	frame, ok := vs.slots.Acquire()
	if !ok {
		return 0, fmt.Errorf("acquiring %s: %w", view.Name, ErrNoFreeSlot)
	}
	vs.current = frame
	return frame, nil
}

// slot returns the back-buffer slot a call on vs with frameIndex refers
// to. Off-screen views render with the on-screen frame index but recycle
// their own slot.
func (vs *viewState) slot(frameIndex uint32) uint32 {
	if vs.view.Type == render.ViewScreen {
		return frameIndex
	}
	return vs.current
}

// RenderBegin opens a recording for view.
func (b *Backend) RenderBegin(view, lastView *render.View, frameData, objectData *render.UniformBuffer, frameIndex uint32) error {
	vs, err := b.view(view)
	if err != nil {
		return err
	}
	if vs.recording != nil {
		return fmt.Errorf("render begin %s: already recording", view.Name)
	}
	if int(frameIndex) >= b.numFrames {
		return fmt.Errorf("render begin %s: frame %d of %d", view.Name, frameIndex, b.numFrames)
	}
	vs.recording = &Submission{
		View:       view.Name,
		Type:       view.Type,
		FrameIndex: frameIndex,
		Slot:       vs.slot(frameIndex),
	}
	if view.Type.IsShadow() {
		vs.recording.LightIndex = view.LightIndex
	}
	vs.subpass = 0
	vs.bound = 0
	return nil
}

// EndDepthPrepass advances from the depth pre-pass to the G-buffer subpass.
func (b *Backend) EndDepthPrepass(view *render.View, frameIndex uint32) error {
	vs, err := b.recording(view)
	if err != nil {
		return err
	}
	if view.Type != render.ViewScreen || !b.opts.DepthPrepass || vs.subpass != 0 {
		return fmt.Errorf("end depth prepass %s: not in a depth pre-pass", view.Name)
	}
	vs.subpass++
	return nil
}

func (b *Backend) recording(view *render.View) (*viewState, error) {
	vs, err := b.view(view)
	if err != nil {
		return nil, err
	}
	if vs.recording == nil {
		return nil, fmt.Errorf("view %s: not recording", view.Name)
	}
	return vs, nil
}

// BindPipeline selects the pipeline built for mesh in view.
func (b *Backend) BindPipeline(mesh *render.Mesh, view *render.View, frameIndex uint32, depthPrepass bool) error {
	vs, err := b.recording(view)
	if err != nil {
		return err
	}
	ms, ok := b.meshes.Get(mesh.Handle())
	if !ok {
		return fmt.Errorf("bind pipeline %s: %w", mesh.Name, render.ErrNotBuilt)
	}
	id, ok := ms.pipelines[render.MeshPipeline{View: view.Handle(), FrameIndex: frameIndex, DepthPrepass: depthPrepass}]
	if !ok {
		return fmt.Errorf("bind pipeline %s in %s: %w", mesh.Name, view.Name, render.ErrNotBuilt)
	}
	vs.bound = id
	return nil
}

// Render records an indexed draw of mesh.
func (b *Backend) Render(mesh *render.Mesh, objectOffset uint32, view *render.View, frameIndex uint32, depthPrepass bool) error {
	vs, err := b.recording(view)
	if err != nil {
		return err
	}
	ms, ok := b.meshes.Get(mesh.Handle())
	if !ok {
		return fmt.Errorf("render %s: %w", mesh.Name, render.ErrNotBuilt)
	}
	if vs.bound == 0 {
		return fmt.Errorf("render %s: no pipeline bound", mesh.Name)
	}
	if objectOffset%uint32(b.opts.Alignment) != 0 {
		return fmt.Errorf("render %s: object offset %d not aligned to %d", mesh.Name, objectOffset, b.opts.Alignment)
	}
	vs.recording.Draws = append(vs.recording.Draws, Draw{
		Mesh:         mesh.Name,
		Material:     b.depth.MaterialFor(mesh, view, depthPrepass).Name,
		ObjectOffset: objectOffset,
		Indices:      ms.indices,
		Subpass:      vs.subpass,
	})
	return nil
}

// RenderEnd records the lighting composite for on-screen views and submits.
func (b *Backend) RenderEnd(view, lastView *render.View, frameData, objectData *render.UniformBuffer, frameIndex uint32) error {
	vs, err := b.recording(view)
	if err != nil {
		return err
	}
	sub := vs.recording
	if view.Type == render.ViewScreen {
		vs.subpass++
		for _, light := range view.CompositeLights {
			for _, mesh := range view.CompositeMeshes {
				if err := b.BindPipeline(mesh, view, frameIndex, false); err != nil {
					return err
				}
				if err := b.Render(mesh, 0, view, frameIndex, false); err != nil {
					return err
				}
			}
			sub.Composite = append(sub.Composite, light)
		}
	}
	if lastView != nil {
		sub.WaitsOn = lastView.Name
	}
	vs.recording = nil
	b.submissions = append(b.submissions, *sub)
	return nil
}

// SwapBackBuffer presents on-screen views and returns the slot to the ring.
func (b *Backend) SwapBackBuffer(view *render.View, frameIndex uint32) error {
	vs, err := b.view(view)
	if err != nil {
		return err
	}
	if vs.recording != nil {
		return fmt.Errorf("swap %s: still recording", view.Name)
	}
	if view.Type == render.ViewScreen && len(b.submissions) > 0 {
		last := &b.submissions[len(b.submissions)-1]
		if last.View == view.Name && last.FrameIndex == frameIndex {
			last.Presented = true
		}
	}
	if slot := vs.slot(frameIndex); !vs.slots.Release(slot) {
		return fmt.Errorf("swap %s: slot %d was not acquired", view.Name, slot)
	}
	return nil
}

func (b *Backend) SetDepthBias(constant, slope float32) {
	b.depthBiasConstant, b.depthBiasSlope = constant, slope
}

// DepthBias returns the values of the last SetDepthBias call.
func (b *Backend) DepthBias() (constant, slope float32) {
	return b.depthBiasConstant, b.depthBiasSlope
}

// GPUFrameTime always returns 0; nothing runs on a GPU.
func (b *Backend) GPUFrameTime() float32 { return 0 }

// GPUFrameTime2 always returns 0.
func (b *Backend) GPUFrameTime2() float32 { return 0 }

// Destroy drops all recorded state.
func (b *Backend) Destroy() error {
	b.views = render.NewArena[*viewState]()
	b.meshes = render.NewArena[*meshState]()
	b.materials = render.NewArena[*materialState]()
	b.textures = render.NewArena[string]()
	b.uniforms = render.NewArena[[]byte]()
	b.pipelines = render.NewPipelineCache[int]()
	b.textureCache = make(map[string]render.Handle)
	return nil
}
