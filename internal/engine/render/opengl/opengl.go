// Package opengl implements render.Graphics on OpenGL 4.1 core.
//
// The on-screen view fills a five-target G-buffer framebuffer, then
// composites one full-screen additive pass per light into the default
// framebuffer. Shadow views render depth into a 2D or cube depth texture
// that the composite samples.
package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/logger"
)

// Window is the GL side of the window. *window.Window implements it.
type Window interface {
	GLSwap()
	DrawableSize() (int, int)
}

// Options configures the backend.
type Options struct {
	Window       Window
	DepthPrepass bool
	// Fatal receives unrecoverable errors. Defaults to render.DefaultFatal.
	Fatal render.FatalHandler
}

// Uniform block binding points shared by every program.
const (
	frameBinding  = 0
	objectBinding = 1
)

// Backend is the OpenGL implementation of render.Graphics.
type Backend struct {
	opts      Options
	log       *zap.Logger
	numFrames int
	alignment int

	onscreen *render.View
	depth    render.DepthMaterials

	views     *render.Arena[*viewData]
	meshes    *render.Arena[*meshData]
	materials *render.Arena[*materialData]
	textures  *render.Arena[uint32]
	uniforms  *render.Arena[*bufferData]
	pipelines *render.PipelineCache[*pipeline]

	textureCache map[string]render.Handle
	programs     map[string]*program

	// fullscreen is the attribute-less VAO the composite draws with.
	fullscreen uint32

	queries        [3]uint32
	timestamps     [3]uint64
	queriesWritten bool

	depthBiasConstant float32
	depthBiasSlope    float32
}

var _ render.Graphics = (*Backend)(nil)

// New creates an uninitialized backend. The GL context must be current on
// the calling thread before Initialize.
func New(opts Options) *Backend {
	if opts.Fatal == nil {
		opts.Fatal = render.DefaultFatal
	}
	return &Backend{
		opts:         opts,
		log:          logger.Named("opengl"),
		views:        render.NewArena[*viewData](),
		meshes:       render.NewArena[*meshData](),
		materials:    render.NewArena[*materialData](),
		textures:     render.NewArena[uint32](),
		uniforms:     render.NewArena[*bufferData](),
		pipelines:    render.NewPipelineCache[*pipeline](),
		textureCache: make(map[string]render.Handle),
		programs:     make(map[string]*program),
	}
}

func (b *Backend) fail(err error) error {
	b.opts.Fatal(err)
	return err
}

// Initialize loads the GL entry points and sets the default state.
func (b *Backend) Initialize(numFrames int) error {
	if numFrames < 1 || numFrames > 2 {
		return fmt.Errorf("frames in flight must be 1 or 2, got %d", numFrames)
	}
	if b.opts.Window == nil {
		return fmt.Errorf("opengl backend needs a window")
	}
	b.numFrames = numFrames

	if err := gl.Init(); err != nil {
		return b.fail(fmt.Errorf("failed to initialize OpenGL: %w", err))
	}
	version := gl.GoStr(gl.GetString(gl.VERSION))
	rendererName := gl.GoStr(gl.GetString(gl.RENDERER))

	var align int32
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &align)
	b.alignment = max(int(align), 1)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	gl.Enable(gl.TEXTURE_CUBE_MAP_SEAMLESS)
	gl.GenVertexArrays(1, &b.fullscreen)
	gl.GenQueries(int32(len(b.queries)), &b.queries[0])

	b.log.Info("opengl backend initialized",
		zap.String("version", version),
		zap.String("renderer", rendererName),
		zap.Int("frames", numFrames),
		zap.Int("alignment", b.alignment),
		zap.Bool("depth_prepass", b.opts.DepthPrepass))
	return nil
}

func (b *Backend) SetOnscreenView(view *render.View) { b.onscreen = view }

func (b *Backend) DepthPrepass() bool { return b.opts.DepthPrepass }

// BufferAlignment returns GL_UNIFORM_BUFFER_OFFSET_ALIGNMENT.
func (b *Backend) BufferAlignment() int { return b.alignment }

func (b *Backend) SetDepthBias(constant, slope float32) {
	b.depthBiasConstant, b.depthBiasSlope = constant, slope
}

// GPUFrameTime returns the G-buffer time of the last on-screen frame in ms.
func (b *Backend) GPUFrameTime() float32 {
	return nanosToMillis(b.timestamps[0], b.timestamps[1])
}

// GPUFrameTime2 returns the composite time of the last on-screen frame in ms.
func (b *Backend) GPUFrameTime2() float32 {
	return nanosToMillis(b.timestamps[1], b.timestamps[2])
}

func nanosToMillis(start, end uint64) float32 {
	if end <= start || start == 0 {
		return 0
	}
	return float32(float64(end-start) / 1e6)
}

// Destroy deletes every GL object the backend created.
func (b *Backend) Destroy() error {
	if b.fullscreen == 0 {
		return nil
	}
	gl.Finish()
	b.meshes.Each(func(_ render.Handle, md *meshData) { md.destroy() })
	b.uniforms.Each(func(_ render.Handle, bd *bufferData) { gl.DeleteBuffers(1, &bd.ubo) })
	b.textures.Each(func(_ render.Handle, tex uint32) { gl.DeleteTextures(1, &tex) })
	b.views.Each(func(_ render.Handle, vd *viewData) { vd.destroy() })
	for name, p := range b.programs {
		gl.DeleteProgram(p.id)
		delete(b.programs, name)
	}
	gl.DeleteQueries(int32(len(b.queries)), &b.queries[0])
	gl.DeleteVertexArrays(1, &b.fullscreen)
	b.fullscreen = 0

	b.meshes = render.NewArena[*meshData]()
	b.materials = render.NewArena[*materialData]()
	b.textures = render.NewArena[uint32]()
	b.uniforms = render.NewArena[*bufferData]()
	b.views = render.NewArena[*viewData]()
	b.pipelines = render.NewPipelineCache[*pipeline]()
	b.textureCache = make(map[string]render.Handle)
	b.log.Info("opengl backend destroyed")
	return nil
}
