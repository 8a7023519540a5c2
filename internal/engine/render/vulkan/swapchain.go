package vulkan

import (
	"fmt"
	"slices"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"
)

const preferredImageCount = 2

// chooseImageCount clamps the preferred image count to the surface limits.
// A max of 0 means unlimited.
func chooseImageCount(lo, hi uint32) uint32 {
	n := uint32(preferredImageCount)
	if n < lo {
		n = lo
	}
	if hi > 0 && n > hi {
		n = hi
	}
	return n
}

// choosePresentMode prefers IMMEDIATE without vsync and MAILBOX with it.
// FIFO is always available.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	want := vk.PresentModeMailbox
	if !vsync {
		want = vk.PresentModeImmediate
	}
	if slices.Contains(modes, want) {
		return want
	}
	return vk.PresentModeFifo
}

func chooseCompositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	if supported&vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit) != 0 {
		return vk.CompositeAlphaInheritBit
	}
	return vk.CompositeAlphaOpaqueBit
}

// chooseExtent uses the surface extent unless the surface leaves it to the
// application, in which case the window size is clamped to the limits.
func chooseExtent(current, lo, hi vk.Extent2D, width, height int) vk.Extent2D {
	if current.Width != vk.MaxUint32 {
		return current
	}
	clamp := func(v int, floor, ceil uint32) uint32 {
		u := uint32(0)
		if v > 0 {
			u = uint32(v)
		}
		return max(floor, min(u, ceil))
	}
	return vk.Extent2D{
		Width:  clamp(width, lo.Width, hi.Width),
		Height: clamp(height, lo.Height, hi.Height),
	}
}

// sharingMode returns CONCURRENT with both families when graphics and
// present run on different queue families.
func sharingMode(graphics, present uint32) (vk.SharingMode, []uint32) {
	if graphics == present {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, []uint32{graphics, present}
}

// chooseSurfaceFormat prefers B8G8R8A8_UNORM and otherwise takes the first
// format the surface reports.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm {
			return f
		}
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: formats[0].ColorSpace}
	}
	return formats[0]
}

// swapchain is the presentation state of the on-screen view.
type swapchain struct {
	handle vk.Swapchain
	format vk.Format
	extent vk.Extent2D
	images []vk.Image
	views  []vk.ImageView
}

// createSwapchain builds a swapchain for the window surface, replacing old
// when it is not null.
func (b *Backend) createSwapchain(width, height int, old vk.Swapchain) (*swapchain, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(b.physical, b.surface, &caps)
	if err := vkError(ret, "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(b.physical, b.surface, &formatCount, nil)
	if formatCount == 0 {
		return nil, fmt.Errorf("surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(b.physical, b.surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}
	format := chooseSurfaceFormat(formats)

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(b.physical, b.surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(b.physical, b.surface, &modeCount, modes)

	extent := chooseExtent(caps.CurrentExtent, caps.MinImageExtent, caps.MaxImageExtent, width, height)
	sharing, families := sharingMode(b.graphicsFamily, b.presentFamily)
	mode := choosePresentMode(modes, b.opts.VSync)

	var handle vk.Swapchain
	ret = vk.CreateSwapchain(b.device, &vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               b.surface,
		MinImageCount:         chooseImageCount(caps.MinImageCount, caps.MaxImageCount),
		ImageFormat:           format.Format,
		ImageColorSpace:       format.ColorSpace,
		ImageExtent:           extent,
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PreTransform:          caps.CurrentTransform,
		CompositeAlpha:        chooseCompositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:           mode,
		Clipped:               vk.True,
		OldSwapchain:          old,
	}, nil, &handle)
	if err := vkError(ret, "vkCreateSwapchain"); err != nil {
		return nil, err
	}
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(b.device, old, nil)
	}

	sc := &swapchain{handle: handle, format: format.Format, extent: extent}
	var count uint32
	vk.GetSwapchainImages(b.device, handle, &count, nil)
	sc.images = make([]vk.Image, count)
	if err := vkError(vk.GetSwapchainImages(b.device, handle, &count, sc.images), "vkGetSwapchainImages"); err != nil {
		return nil, err
	}
	for _, img := range sc.images {
		view, err := b.newImageView(img, sc.format, vk.ImageAspectColorBit, vk.ImageViewType2d, 1)
		if err != nil {
			b.destroySwapchainViews(sc)
			return nil, err
		}
		sc.views = append(sc.views, view)
	}
	b.log.Debug("swapchain created",
		zap.Uint32("width", extent.Width),
		zap.Uint32("height", extent.Height),
		zap.Int("images", len(sc.images)),
		zap.Int32("present_mode", int32(mode)))
	return sc, nil
}

func (b *Backend) destroySwapchainViews(sc *swapchain) {
	for _, v := range sc.views {
		vk.DestroyImageView(b.device, v, nil)
	}
	sc.views = nil
}

func (b *Backend) destroySwapchain(sc *swapchain) {
	if sc == nil {
		return
	}
	b.destroySwapchainViews(sc)
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(b.device, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
}
