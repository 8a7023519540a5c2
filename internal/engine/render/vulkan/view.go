package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// Attachment indices of the on-screen render pass.
const (
	attachBackBuffer = 0
	attachDepth      = 1
	attachGBuffer    = 2 // position, normal, albedo, metallic-roughness, emissive
	attachGDepth     = 7

	gbufferCount    = 5
	screenAttachCnt = 8
)

const depthFormat = vk.FormatD32Sfloat

// gbufferFormats are the G-buffer attachment formats in attachment order.
var gbufferFormats = [gbufferCount]vk.Format{
	vk.FormatR16g16b16a16Sfloat,
	vk.FormatR16g16b16a16Sfloat,
	vk.FormatR8g8b8a8Unorm,
	vk.FormatR8g8b8a8Unorm,
	vk.FormatR8g8b8a8Unorm,
}

// frameSlot is the per-frame-in-flight state of a view.
type frameSlot struct {
	cmd          vk.CommandBuffer
	rendered     vk.Semaphore
	renderFence  vk.Fence
	acquired     vk.Semaphore // on-screen only
	presentFence vk.Fence     // on-screen only
	image        uint32       // acquired swapchain image
}

type viewData struct {
	view       *render.View
	renderPass vk.RenderPass
	extent     vk.Extent2D

	slots   []frameSlot
	free    *render.Ring[uint32]
	current uint32

	framebuffers []vk.Framebuffer

	swapchain *swapchain
	depth     image
	gbuffer   [gbufferCount]image
	gdepth    image

	shadow image

	recording bool
	subpass   int
	bound     *meshPipeline
	material  *materialData

	// outOfDate forces the next Resize to recreate the swapchain.
	outOfDate bool
}

func (vd *viewData) screen() bool { return vd.view.Type == render.ViewScreen }

func (b *Backend) viewData(view *render.View) (*viewData, error) {
	if view == nil {
		return nil, fmt.Errorf("nil view: %w", render.ErrUnknownView)
	}
	vd, ok := b.views.Get(view.Handle())
	if !ok {
		return nil, fmt.Errorf("view %s: %w", view.Name, render.ErrNotBuilt)
	}
	return vd, nil
}

// BuildView creates the render pass and frame slots of view. On-screen
// views also get the swapchain and G-buffer, shadow views their depth map.
func (b *Backend) BuildView(view *render.View, numFrames int) error {
	if view.Type != render.ViewScreen && !view.Type.IsShadow() {
		return fmt.Errorf("%w: %s is a %s view", render.ErrUnknownView, view.Name, view.Type)
	}
	if !view.NeedsBuild() {
		return nil
	}
	if old, ok := b.views.Get(view.Handle()); ok {
		vk.DeviceWaitIdle(b.device)
		b.destroyView(old)
	}

	vd := &viewData{view: view}
	var err error
	if view.Type == render.ViewScreen {
		vd.renderPass, err = b.createScreenPass()
	} else {
		vd.renderPass, err = b.createShadowPass()
	}
	if err != nil {
		return b.fail(fmt.Errorf("view %s: %w", view.Name, err))
	}
	if err := b.createSlots(vd, numFrames); err != nil {
		b.destroyView(vd)
		return b.fail(fmt.Errorf("view %s: %w", view.Name, err))
	}

	if view.Type == render.ViewScreen {
		w, h := view.Extent()
		err = b.createScreenTargets(vd, w, h, vk.NullSwapchain)
	} else {
		err = b.createShadowTarget(vd)
	}
	if err != nil {
		b.destroyView(vd)
		return b.fail(fmt.Errorf("view %s: %w", view.Name, err))
	}

	if h := view.Handle(); h == render.NoHandle || !b.views.Set(h, vd) {
		view.SetHandle(b.views.Insert(vd))
	}
	view.SetDirty(false)
	b.log.Debug("view built",
		zap.String("view", view.Name),
		zap.Stringer("type", view.Type),
		zap.Uint32("width", vd.extent.Width),
		zap.Uint32("height", vd.extent.Height))
	return nil
}

func (b *Backend) createSlots(vd *viewData, numFrames int) error {
	cmds := make([]vk.CommandBuffer, numFrames)
	ret := vk.AllocateCommandBuffers(b.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(numFrames),
	}, cmds)
	if err := vkError(ret, "vkAllocateCommandBuffers"); err != nil {
		return err
	}

	indices := make([]uint32, numFrames)
	vd.slots = make([]frameSlot, numFrames)
	for i := range vd.slots {
		indices[i] = uint32(i)
		slot := &vd.slots[i]
		slot.cmd = cmds[i]
		var err error
		if slot.rendered, err = b.newSemaphore(); err != nil {
			return err
		}
		if slot.renderFence, err = b.newFence(); err != nil {
			return err
		}
		if !vd.screen() {
			continue
		}
		if slot.acquired, err = b.newSemaphore(); err != nil {
			return err
		}
		if slot.presentFence, err = b.newFence(); err != nil {
			return err
		}
	}
	vd.free = render.NewRing(indices...)
	return nil
}

func (b *Backend) newSemaphore() (vk.Semaphore, error) {
	var s vk.Semaphore
	ret := vk.CreateSemaphore(b.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	return s, vkError(ret, "vkCreateSemaphore")
}

// newFence creates a signaled fence so the first wait returns at once.
func (b *Backend) newFence() (vk.Fence, error) {
	var f vk.Fence
	ret := vk.CreateFence(b.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}, nil, &f)
	return f, vkError(ret, "vkCreateFence")
}

// screenAttachments describes the on-screen pass attachments. The G-buffer
// ends the pass readable so a later pass could sample it.
func screenAttachments(backBuffer vk.Format) []vk.AttachmentDescription {
	out := make([]vk.AttachmentDescription, screenAttachCnt)
	out[attachBackBuffer] = vk.AttachmentDescription{
		Format:         backBuffer,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	out[attachDepth] = vk.AttachmentDescription{
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	for i, f := range gbufferFormats {
		out[attachGBuffer+i] = vk.AttachmentDescription{
			Format:         f,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutShaderReadOnlyOptimal,
		}
	}
	out[attachGDepth] = vk.AttachmentDescription{
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	return out
}

// screenSubpasses returns the subpasses of the on-screen pass: an optional
// depth pre-pass, the G-buffer fill and the composite, chained by
// by-region dependencies.
func screenSubpasses(prepass bool) ([]vk.SubpassDescription, []vk.SubpassDependency) {
	gdepth := &vk.AttachmentReference{Attachment: attachGDepth, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	depth := &vk.AttachmentReference{Attachment: attachDepth, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}

	colors := make([]vk.AttachmentReference, gbufferCount)
	inputs := make([]vk.AttachmentReference, gbufferCount)
	for i := range colors {
		colors[i] = vk.AttachmentReference{Attachment: uint32(attachGBuffer + i), Layout: vk.ImageLayoutColorAttachmentOptimal}
		inputs[i] = vk.AttachmentReference{Attachment: uint32(attachGBuffer + i), Layout: vk.ImageLayoutShaderReadOnlyOptimal}
	}

	var subpasses []vk.SubpassDescription
	if prepass {
		subpasses = append(subpasses, vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			PDepthStencilAttachment: gdepth,
		})
	}
	subpasses = append(subpasses,
		vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    gbufferCount,
			PColorAttachments:       colors,
			PDepthStencilAttachment: gdepth,
		},
		vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			InputAttachmentCount: gbufferCount,
			PInputAttachments:    inputs,
			ColorAttachmentCount: 1,
			PColorAttachments: []vk.AttachmentReference{{
				Attachment: attachBackBuffer,
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}},
			PDepthStencilAttachment: depth,
		})

	deps := make([]vk.SubpassDependency, 0, len(subpasses)-1)
	if prepass {
		tests := vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
		deps = append(deps, vk.SubpassDependency{
			SrcSubpass:      0,
			DstSubpass:      1,
			SrcStageMask:    vk.PipelineStageFlags(tests),
			DstStageMask:    vk.PipelineStageFlags(tests),
			SrcAccessMask:   vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			DstAccessMask:   vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		})
	}
	gbuffer := uint32(len(subpasses) - 2)
	deps = append(deps, vk.SubpassDependency{
		SrcSubpass:      gbuffer,
		DstSubpass:      gbuffer + 1,
		SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		SrcAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		DstAccessMask:   vk.AccessFlags(vk.AccessShaderReadBit),
		DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
	})
	return subpasses, deps
}

func (b *Backend) createScreenPass() (vk.RenderPass, error) {
	// The back buffer format is fixed by the first swapchain; query it now.
	format, err := b.surfaceFormat()
	if err != nil {
		return vk.NullRenderPass, err
	}
	attachments := screenAttachments(format)
	subpasses, deps := screenSubpasses(b.opts.DepthPrepass)
	return b.createRenderPass(attachments, subpasses, deps)
}

func (b *Backend) surfaceFormat() (vk.Format, error) {
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(b.physical, b.surface, &count, nil)
	if count == 0 {
		return vk.FormatUndefined, fmt.Errorf("surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(b.physical, b.surface, &count, formats)
	for i := range formats {
		formats[i].Deref()
	}
	return chooseSurfaceFormat(formats).Format, nil
}

// shadowPass describes the depth-only pass of shadow views. The map ends
// read-only for sampling by later passes.
func shadowPass() ([]vk.AttachmentDescription, []vk.SubpassDescription, []vk.SubpassDependency) {
	attachments := []vk.AttachmentDescription{{
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilReadOnlyOptimal,
	}}
	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint: vk.PipelineBindPointGraphics,
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: 0,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}}
	depthAccess := vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	deps := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
			DstAccessMask: depthAccess,
		},
		{
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			SrcAccessMask: depthAccess,
			DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
		},
	}
	return attachments, subpasses, deps
}

func (b *Backend) createShadowPass() (vk.RenderPass, error) {
	return b.createRenderPass(shadowPass())
}

func (b *Backend) createRenderPass(attachments []vk.AttachmentDescription, subpasses []vk.SubpassDescription, deps []vk.SubpassDependency) (vk.RenderPass, error) {
	var rp vk.RenderPass
	ret := vk.CreateRenderPass(b.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}, nil, &rp)
	if err := vkError(ret, "vkCreateRenderPass"); err != nil {
		return vk.NullRenderPass, err
	}
	return rp, nil
}

// createScreenTargets creates the swapchain, depth buffers, G-buffer and
// one framebuffer per swapchain image.
func (b *Backend) createScreenTargets(vd *viewData, width, height int, old vk.Swapchain) error {
	sc, err := b.createSwapchain(width, height, old)
	if err != nil {
		return err
	}
	vd.swapchain = sc
	vd.extent = sc.extent
	w, h := int(sc.extent.Width), int(sc.extent.Height)

	if vd.depth, err = b.newAttachment(w, h, depthFormat, vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit); err != nil {
		return err
	}
	err = b.oneShot(func(cmd vk.CommandBuffer) error {
		return b.transition(cmd, vd.depth.image, vk.ImageAspectDepthBit, 1,
			vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal)
	})
	if err != nil {
		return err
	}
	for i, f := range gbufferFormats {
		usage := vk.ImageUsageColorAttachmentBit | vk.ImageUsageInputAttachmentBit
		if vd.gbuffer[i], err = b.newAttachment(w, h, f, usage, vk.ImageAspectColorBit); err != nil {
			return err
		}
	}
	if vd.gdepth, err = b.newAttachment(w, h, depthFormat, vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit); err != nil {
		return err
	}

	for _, back := range sc.views {
		views := make([]vk.ImageView, screenAttachCnt)
		views[attachBackBuffer] = back
		views[attachDepth] = vd.depth.view
		for i := range vd.gbuffer {
			views[attachGBuffer+i] = vd.gbuffer[i].view
		}
		views[attachGDepth] = vd.gdepth.view
		fb, err := b.newFramebuffer(vd.renderPass, views, vd.extent, 1)
		if err != nil {
			return err
		}
		vd.framebuffers = append(vd.framebuffers, fb)
	}
	vd.view.SetExtent(w, h)
	return nil
}

func (b *Backend) newAttachment(w, h int, format vk.Format, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits) (image, error) {
	img, err := b.newImage(imageSpec{
		width: w, height: h,
		format:  format,
		usage:   usage,
		tiling:  vk.ImageTilingOptimal,
		initial: vk.ImageLayoutUndefined,
	})
	if err != nil {
		return image{}, err
	}
	if img.view, err = b.newImageView(img.image, format, aspect, vk.ImageViewType2d, 1); err != nil {
		b.destroyImage(img)
		return image{}, err
	}
	return img, nil
}

// shadowLayers is 6 for cube maps, rendered in one pass through a geometry
// shader, and 1 otherwise.
func shadowLayers(t render.ViewType) int {
	if t == render.ViewShadowCube {
		return 6
	}
	return 1
}

func (b *Backend) createShadowTarget(vd *viewData) error {
	w, h := vd.view.Extent()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid shadow map size %dx%d", w, h)
	}
	layers := shadowLayers(vd.view.Type)
	img, err := b.newImage(imageSpec{
		width: w, height: h,
		format:  depthFormat,
		usage:   vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageSampledBit,
		layers:  layers,
		cube:    layers == 6,
		tiling:  vk.ImageTilingOptimal,
		initial: vk.ImageLayoutUndefined,
	})
	if err != nil {
		return err
	}
	vd.shadow = img
	if vd.shadow.view, err = b.newImageView(img.image, depthFormat, vk.ImageAspectDepthBit, vk.ImageViewType2dArray, layers); err != nil {
		return err
	}
	vd.extent = vk.Extent2D{Width: uint32(w), Height: uint32(h)}
	fb, err := b.newFramebuffer(vd.renderPass, []vk.ImageView{vd.shadow.view}, vd.extent, layers)
	if err != nil {
		return err
	}
	vd.framebuffers = []vk.Framebuffer{fb}
	return nil
}

func (b *Backend) newFramebuffer(rp vk.RenderPass, views []vk.ImageView, extent vk.Extent2D, layers int) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(b.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          uint32(layers),
	}, nil, &fb)
	if err := vkError(ret, "vkCreateFramebuffer"); err != nil {
		return vk.NullFramebuffer, err
	}
	return fb, nil
}

// Resize recreates the swapchain, the depth buffers and the G-buffer of the
// on-screen view, then points composite descriptors at the new G-buffer.
// The current extent is a no-op unless the swapchain went out of date.
func (b *Backend) Resize(view *render.View, width, height int) error {
	vd, err := b.viewData(view)
	if err != nil {
		return err
	}
	if !vd.screen() {
		return fmt.Errorf("%w: resize of %s view %s", render.ErrUnknownView, view.Type, view.Name)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resizing %s: invalid extent %dx%d", view.Name, width, height)
	}
	if !vd.outOfDate && vd.extent.Width == uint32(width) && vd.extent.Height == uint32(height) {
		return nil
	}
	if err := vkError(vk.DeviceWaitIdle(b.device), "vkDeviceWaitIdle"); err != nil {
		return b.fail(err)
	}

	old := vd.swapchain.handle
	vd.swapchain.handle = vk.NullSwapchain
	b.destroyScreenTargets(vd)
	if err := b.createScreenTargets(vd, width, height, old); err != nil {
		return b.fail(fmt.Errorf("resizing %s: %w", view.Name, err))
	}
	if err := b.rewriteCompositeInputs(); err != nil {
		return b.fail(err)
	}
	vd.outOfDate = false
	b.log.Info("view resized",
		zap.String("view", view.Name),
		zap.Uint32("width", vd.extent.Width),
		zap.Uint32("height", vd.extent.Height))
	return nil
}

// destroyScreenTargets releases everything createScreenTargets made except
// a swapchain handle the caller has taken over.
func (b *Backend) destroyScreenTargets(vd *viewData) {
	for _, fb := range vd.framebuffers {
		vk.DestroyFramebuffer(b.device, fb, nil)
	}
	vd.framebuffers = nil
	b.destroySwapchain(vd.swapchain)
	vd.swapchain = nil
	b.destroyImage(vd.depth)
	vd.depth = image{}
	for i := range vd.gbuffer {
		b.destroyImage(vd.gbuffer[i])
		vd.gbuffer[i] = image{}
	}
	b.destroyImage(vd.gdepth)
	vd.gdepth = image{}
}

func (b *Backend) destroyView(vd *viewData) {
	if vd.screen() {
		b.destroyScreenTargets(vd)
	} else {
		for _, fb := range vd.framebuffers {
			vk.DestroyFramebuffer(b.device, fb, nil)
		}
		vd.framebuffers = nil
		b.destroyImage(vd.shadow)
		vd.shadow = image{}
	}
	for _, slot := range vd.slots {
		if slot.cmd != nil {
			vk.FreeCommandBuffers(b.device, b.commandPool, 1, []vk.CommandBuffer{slot.cmd})
		}
		for _, s := range []vk.Semaphore{slot.rendered, slot.acquired} {
			if s != vk.NullSemaphore {
				vk.DestroySemaphore(b.device, s, nil)
			}
		}
		for _, f := range []vk.Fence{slot.renderFence, slot.presentFence} {
			if f != vk.NullFence {
				vk.DestroyFence(b.device, f, nil)
			}
		}
	}
	vd.slots = nil
	if vd.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(b.device, vd.renderPass, nil)
		vd.renderPass = vk.NullRenderPass
	}
}
