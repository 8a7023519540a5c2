package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"
)

// cstrings null-terminates names for the C API.
func cstrings(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		if !strings.HasSuffix(n, "\x00") {
			n += "\x00"
		}
		out[i] = n
	}
	return out
}

func (b *Backend) initInstance() error {
	vk.SetGetInstanceProcAddr(b.opts.Window.VulkanProcAddr())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("loading vulkan: %w", err)
	}

	extensions := b.opts.Window.VulkanInstanceExtensions()
	var layers []string
	if b.opts.Validation {
		layers = append(layers, validationLayer)
	}

	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   b.opts.AppName + "\x00",
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PEngineName:        "renderlab\x00",
			EngineVersion:      vk.MakeVersion(1, 0, 0),
			// 1.1 for negative viewport heights
			ApiVersion: vk.MakeVersion(1, 1, 0),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: cstrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     cstrings(layers),
	}
	var instance vk.Instance
	if err := vkError(vk.CreateInstance(&info, nil, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("loading instance functions: %w", err)
	}
	b.instance = instance
	b.log.Debug("instance created", zap.Strings("extensions", extensions), zap.Strings("layers", layers))
	return nil
}

func (b *Backend) initSurface() error {
	ptr, err := b.opts.Window.VulkanCreateSurface(b.instance)
	if err != nil {
		return err
	}
	b.surface = vk.SurfaceFromPointer(uintptr(ptr))
	return nil
}

// deviceCandidate is what device selection knows about one GPU.
type deviceCandidate struct {
	device         vk.PhysicalDevice
	name           string
	discrete       bool
	geometryShader bool
	swapchain      bool
	graphicsFamily int
	presentFamily  int
}

func (c deviceCandidate) usable() bool {
	return c.geometryShader && c.swapchain && c.graphicsFamily >= 0 && c.presentFamily >= 0
}

// pickDevice returns the index of the first usable discrete GPU, else the
// first usable GPU, else -1.
func pickDevice(candidates []deviceCandidate) int {
	best := -1
	for i, c := range candidates {
		if !c.usable() {
			continue
		}
		if c.discrete {
			return i
		}
		if best < 0 {
			best = i
		}
	}
	return best
}

func (b *Backend) pickPhysicalDevice() error {
	var count uint32
	if err := vkError(vk.EnumeratePhysicalDevices(b.instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		return ErrNoDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(b.instance, &count, devices)

	candidates := make([]deviceCandidate, len(devices))
	for i, pd := range devices {
		candidates[i] = b.describeDevice(pd)
	}
	idx := pickDevice(candidates)
	if idx < 0 {
		return fmt.Errorf("%w among %d devices", ErrNoDevice, count)
	}
	c := candidates[idx]
	b.physical = c.device
	b.graphicsFamily = uint32(c.graphicsFamily)
	b.presentFamily = uint32(c.presentFamily)

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(b.physical, &props)
	props.Deref()
	props.Limits.Deref()
	b.alignment = int(props.Limits.MinStorageBufferOffsetAlignment)
	if b.alignment < 1 {
		b.alignment = 1
	}
	b.timestampPeriod = props.Limits.TimestampPeriod

	vk.GetPhysicalDeviceMemoryProperties(b.physical, &b.memProps)
	b.memProps.Deref()

	b.log.Info("device selected",
		zap.String("device", c.name),
		zap.Bool("discrete", c.discrete),
		zap.Uint32("graphics_family", b.graphicsFamily),
		zap.Uint32("present_family", b.presentFamily))
	return nil
}

func (b *Backend) describeDevice(pd vk.PhysicalDevice) deviceCandidate {
	c := deviceCandidate{device: pd, graphicsFamily: -1, presentFamily: -1}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	c.name = vk.ToString(props.DeviceName[:])
	c.discrete = props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()
	c.geometryShader = features.GeometryShader == vk.True

	var extCount uint32
	vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, nil)
	exts := make([]vk.ExtensionProperties, extCount)
	vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, exts)
	for _, e := range exts {
		e.Deref()
		if vk.ToString(e.ExtensionName[:]) == vk.KhrSwapchainExtensionName {
			c.swapchain = true
		}
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)
	for i, f := range families {
		f.Deref()
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), b.surface, &present)
		graphics := f.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if graphics && present == vk.True {
			c.graphicsFamily, c.presentFamily = i, i
			break
		}
		if graphics && c.graphicsFamily < 0 {
			c.graphicsFamily = i
		}
		if present == vk.True && c.presentFamily < 0 {
			c.presentFamily = i
		}
	}
	return c
}

func (b *Backend) initDevice() error {
	priorities := []float32{1}
	queues := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: b.graphicsFamily,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}}
	if b.presentFamily != b.graphicsFamily {
		queues = append(queues, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: b.presentFamily,
			QueueCount:       1,
			PQueuePriorities: priorities,
		})
	}
	extensions := []string{vk.KhrSwapchainExtensionName}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queues)),
		PQueueCreateInfos:       queues,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: cstrings(extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			GeometryShader: vk.True,
		}},
	}
	var device vk.Device
	if err := vkError(vk.CreateDevice(b.physical, &info, nil, &device), "vkCreateDevice"); err != nil {
		return err
	}
	b.device = device
	return nil
}

// initQueues fetches the queues and creates the shared command pool and the
// timestamp query pool.
func (b *Backend) initQueues() error {
	var queue vk.Queue
	vk.GetDeviceQueue(b.device, b.graphicsFamily, 0, &queue)
	b.queue = queue
	var present vk.Queue
	vk.GetDeviceQueue(b.device, b.presentFamily, 0, &present)
	b.presentQueue = present

	var pool vk.CommandPool
	ret := vk.CreateCommandPool(b.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: b.graphicsFamily,
	}, nil, &pool)
	if err := vkError(ret, "vkCreateCommandPool"); err != nil {
		return err
	}
	b.commandPool = pool

	var queries vk.QueryPool
	ret = vk.CreateQueryPool(b.device, &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: uint32(len(b.timestamps)),
	}, nil, &queries)
	if err := vkError(ret, "vkCreateQueryPool"); err != nil {
		return err
	}
	b.queryPool = queries
	return nil
}
