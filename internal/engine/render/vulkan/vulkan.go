// Package vulkan implements render.Graphics on top of github.com/goki/vulkan.
//
// The on-screen view renders a deferred frame in one render pass: an
// optional depth pre-pass, the G-buffer fill and a per-light additive
// composite that reads the G-buffer through input attachments. Shadow views
// render depth only, into a single or six-layer D32 image.
package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/shader"
	"github.com/Faultbox/renderlab/internal/logger"
)

// Surface is the window side of the backend. *window.Window implements it.
type Surface interface {
	VulkanInstanceExtensions() []string
	VulkanCreateSurface(instance any) (unsafe.Pointer, error)
	VulkanProcAddr() unsafe.Pointer
	DrawableSize() (int, int)
}

// Options configures the backend.
type Options struct {
	AppName      string
	Window       Surface
	Shaders      shader.Source
	VSync        bool
	DepthPrepass bool
	Validation   bool
	// Fatal receives unrecoverable errors. Defaults to render.DefaultFatal.
	Fatal render.FatalHandler
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Backend is the Vulkan implementation of render.Graphics.
type Backend struct {
	opts      Options
	log       *zap.Logger
	numFrames int

	instance vk.Instance
	surface  vk.Surface
	physical vk.PhysicalDevice
	device   vk.Device

	memProps        vk.PhysicalDeviceMemoryProperties
	alignment       int
	timestampPeriod float32

	graphicsFamily uint32
	presentFamily  uint32
	queue          vk.Queue
	presentQueue   vk.Queue
	commandPool    vk.CommandPool
	queryPool      vk.QueryPool
	timestamps     [3]uint64

	onscreen *render.View
	depth    render.DepthMaterials

	views     *render.Arena[*viewData]
	meshes    *render.Arena[*meshData]
	materials *render.Arena[*materialData]
	textures  *render.Arena[*textureData]
	uniforms  *render.Arena[*bufferData]
	pipelines *render.PipelineCache[vk.Pipeline]

	textureCache map[string]render.Handle
	modules      map[string]vk.ShaderModule

	depthBiasConstant float32
	depthBiasSlope    float32
}

var _ render.Graphics = (*Backend)(nil)

// New creates an uninitialized backend.
func New(opts Options) *Backend {
	if opts.Fatal == nil {
		opts.Fatal = render.DefaultFatal
	}
	if opts.AppName == "" {
		opts.AppName = "RenderLab"
	}
	return &Backend{
		opts:         opts,
		log:          logger.Named("vulkan"),
		views:        render.NewArena[*viewData](),
		meshes:       render.NewArena[*meshData](),
		materials:    render.NewArena[*materialData](),
		textures:     render.NewArena[*textureData](),
		uniforms:     render.NewArena[*bufferData](),
		pipelines:    render.NewPipelineCache[vk.Pipeline](),
		textureCache: make(map[string]render.Handle),
		modules:      make(map[string]vk.ShaderModule),
	}
}

// fail hands err to the fatal handler and returns it for handlers that
// do not exit.
func (b *Backend) fail(err error) error {
	b.opts.Fatal(err)
	return err
}

// Initialize creates the instance, the window surface, the device and its
// queues. Failure to find a device is fatal.
func (b *Backend) Initialize(numFrames int) error {
	if numFrames < 1 || numFrames > 2 {
		return fmt.Errorf("frames in flight must be 1 or 2, got %d", numFrames)
	}
	if b.opts.Window == nil {
		return fmt.Errorf("vulkan backend needs a window")
	}
	b.numFrames = numFrames

	if err := b.initInstance(); err != nil {
		return b.fail(err)
	}
	if err := b.initSurface(); err != nil {
		return b.fail(err)
	}
	if err := b.pickPhysicalDevice(); err != nil {
		return b.fail(err)
	}
	if err := b.initDevice(); err != nil {
		return b.fail(err)
	}
	if err := b.initQueues(); err != nil {
		return b.fail(err)
	}
	b.log.Info("vulkan backend initialized",
		zap.Int("frames", numFrames),
		zap.Int("alignment", b.alignment),
		zap.Float32("timestamp_period_ns", b.timestampPeriod),
		zap.Bool("depth_prepass", b.opts.DepthPrepass))
	return nil
}

func (b *Backend) SetOnscreenView(view *render.View) { b.onscreen = view }

func (b *Backend) DepthPrepass() bool { return b.opts.DepthPrepass }

// BufferAlignment returns minStorageBufferOffsetAlignment of the device.
func (b *Backend) BufferAlignment() int { return b.alignment }

// SetDepthBias stores the bias applied by shadow passes from the next
// RenderBegin on.
func (b *Backend) SetDepthBias(constant, slope float32) {
	b.depthBiasConstant, b.depthBiasSlope = constant, slope
}

// GPUFrameTime returns the G-buffer time of the last on-screen frame in ms.
func (b *Backend) GPUFrameTime() float32 {
	return ticksToMillis(b.timestamps[0], b.timestamps[1], b.timestampPeriod)
}

// GPUFrameTime2 returns the composite time of the last on-screen frame in ms.
func (b *Backend) GPUFrameTime2() float32 {
	return ticksToMillis(b.timestamps[1], b.timestamps[2], b.timestampPeriod)
}

// ticksToMillis converts a timestamp interval to milliseconds. Reversed or
// missing samples yield 0.
func ticksToMillis(start, end uint64, periodNanos float32) float32 {
	if end <= start || start == 0 {
		return 0
	}
	return float32(float64(end-start) * float64(periodNanos) / 1e6)
}

// Destroy waits for the device and releases everything in reverse order of
// creation.
func (b *Backend) Destroy() error {
	if b.device == nil {
		return nil
	}
	err := vkError(vk.DeviceWaitIdle(b.device), "vkDeviceWaitIdle")

	b.pipelines.Each(func(_ render.PipelineKey, p vk.Pipeline) {
		vk.DestroyPipeline(b.device, p, nil)
	})
	b.pipelines = render.NewPipelineCache[vk.Pipeline]()

	b.meshes.Each(func(_ render.Handle, md *meshData) { b.destroyMesh(md) })
	b.materials.Each(func(_ render.Handle, md *materialData) { b.destroyMaterial(md) })
	b.textures.Each(func(_ render.Handle, td *textureData) { b.destroyTexture(td) })
	b.uniforms.Each(func(_ render.Handle, bd *bufferData) { b.destroyBuffer(bd) })
	b.views.Each(func(_ render.Handle, vd *viewData) { b.destroyView(vd) })
	for name, m := range b.modules {
		vk.DestroyShaderModule(b.device, m, nil)
		delete(b.modules, name)
	}

	b.meshes = render.NewArena[*meshData]()
	b.materials = render.NewArena[*materialData]()
	b.textures = render.NewArena[*textureData]()
	b.uniforms = render.NewArena[*bufferData]()
	b.views = render.NewArena[*viewData]()
	b.textureCache = make(map[string]render.Handle)

	vk.DestroyQueryPool(b.device, b.queryPool, nil)
	vk.DestroyCommandPool(b.device, b.commandPool, nil)
	vk.DestroyDevice(b.device, nil)
	b.device = nil
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, nil)
		b.surface = vk.NullSurface
	}
	vk.DestroyInstance(b.instance, nil)
	b.log.Info("vulkan backend destroyed")
	return err
}
