package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

const (
	hostMemory   = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	deviceMemory = vk.MemoryPropertyDeviceLocalBit
)

// memoryTypeIndex returns the first type allowed by typeBits whose flags
// contain want.
func memoryTypeIndex(types []vk.MemoryPropertyFlags, typeBits uint32, want vk.MemoryPropertyFlags) (uint32, bool) {
	for i, flags := range types {
		if typeBits&(1<<uint(i)) != 0 && flags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}

func (b *Backend) findMemoryType(typeBits uint32, want vk.MemoryPropertyFlagBits) (uint32, error) {
	types := make([]vk.MemoryPropertyFlags, b.memProps.MemoryTypeCount)
	for i := range types {
		mt := b.memProps.MemoryTypes[i]
		mt.Deref()
		types[i] = mt.PropertyFlags
	}
	idx, ok := memoryTypeIndex(types, typeBits, vk.MemoryPropertyFlags(want))
	if !ok {
		return 0, fmt.Errorf("%w: bits %#x flags %#x", ErrNoMemoryType, typeBits, want)
	}
	return idx, nil
}

func (b *Backend) allocate(reqs vk.MemoryRequirements, want vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	typ, err := b.findMemoryType(reqs.MemoryTypeBits, want)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(b.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typ,
	}, nil, &mem)
	if err := vkError(ret, "vkAllocateMemory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

func (b *Backend) newBuffer(size int, usage vk.BufferUsageFlagBits) (vk.Buffer, vk.MemoryRequirements, error) {
	var buf vk.Buffer
	ret := vk.CreateBuffer(b.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := vkError(ret, "vkCreateBuffer"); err != nil {
		return vk.NullBuffer, vk.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buf, &reqs)
	reqs.Deref()
	return buf, reqs, nil
}

// mapped maps a whole allocation.
func (b *Backend) mapped(mem vk.DeviceMemory) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	ret := vk.MapMemory(b.device, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)
	if err := vkError(ret, "vkMapMemory"); err != nil {
		return nil, err
	}
	return ptr, nil
}

// imageSpec describes an image to create.
type imageSpec struct {
	width, height int
	format        vk.Format
	usage         vk.ImageUsageFlagBits
	layers        int
	cube          bool
	tiling        vk.ImageTiling
	initial       vk.ImageLayout
	memory        vk.MemoryPropertyFlagBits
}

type image struct {
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
}

func (b *Backend) newImage(desc imageSpec) (image, error) {
	if desc.layers < 1 {
		desc.layers = 1
	}
	if desc.memory == 0 {
		desc.memory = deviceMemory
	}
	var flags vk.ImageCreateFlags
	if desc.cube {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	var img vk.Image
	ret := vk.CreateImage(b.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    desc.format,
		Extent: vk.Extent3D{
			Width:  uint32(desc.width),
			Height: uint32(desc.height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   uint32(desc.layers),
		Samples:       vk.SampleCount1Bit,
		Tiling:        desc.tiling,
		Usage:         vk.ImageUsageFlags(desc.usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: desc.initial,
	}, nil, &img)
	if err := vkError(ret, "vkCreateImage"); err != nil {
		return image{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device, img, &reqs)
	reqs.Deref()
	mem, err := b.allocate(reqs, desc.memory)
	if err != nil {
		vk.DestroyImage(b.device, img, nil)
		return image{}, err
	}
	vk.BindImageMemory(b.device, img, mem, 0)
	return image{image: img, memory: mem}, nil
}

func (b *Backend) newImageView(img vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits, viewType vk.ImageViewType, layers int) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(b.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: viewType,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: uint32(layers),
		},
	}, nil, &view)
	if err := vkError(ret, "vkCreateImageView"); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (b *Backend) destroyImage(img image) {
	if img.view != vk.NullImageView {
		vk.DestroyImageView(b.device, img.view, nil)
	}
	if img.image != vk.NullImage {
		vk.DestroyImage(b.device, img.image, nil)
	}
	if img.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.device, img.memory, nil)
	}
}

// barrier is the access and stage masks of one layout transition.
type barrier struct {
	srcAccess, dstAccess vk.AccessFlagBits
	srcStage, dstStage   vk.PipelineStageFlagBits
}

// layoutBarrier returns the masks for the transitions the backend performs.
func layoutBarrier(from, to vk.ImageLayout) (barrier, error) {
	switch {
	case from == vk.ImageLayoutPreinitialized && to == vk.ImageLayoutTransferSrcOptimal:
		return barrier{
			srcAccess: vk.AccessHostWriteBit,
			dstAccess: vk.AccessTransferReadBit,
			srcStage:  vk.PipelineStageHostBit,
			dstStage:  vk.PipelineStageTransferBit,
		}, nil
	case from == vk.ImageLayoutUndefined && to == vk.ImageLayoutTransferDstOptimal:
		return barrier{
			dstAccess: vk.AccessTransferWriteBit,
			srcStage:  vk.PipelineStageTopOfPipeBit,
			dstStage:  vk.PipelineStageTransferBit,
		}, nil
	case from == vk.ImageLayoutTransferDstOptimal && to == vk.ImageLayoutShaderReadOnlyOptimal:
		return barrier{
			srcAccess: vk.AccessTransferWriteBit,
			dstAccess: vk.AccessShaderReadBit,
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageFragmentShaderBit,
		}, nil
	case from == vk.ImageLayoutUndefined && to == vk.ImageLayoutDepthStencilAttachmentOptimal:
		return barrier{
			dstAccess: vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
			srcStage:  vk.PipelineStageTopOfPipeBit,
			dstStage:  vk.PipelineStageEarlyFragmentTestsBit,
		}, nil
	}
	return barrier{}, fmt.Errorf("%w: %d to %d", ErrUnsupportedTransition, from, to)
}

func (b *Backend) transition(cmd vk.CommandBuffer, img vk.Image, aspect vk.ImageAspectFlagBits, layers int, from, to vk.ImageLayout) error {
	bar, err := layoutBarrier(from, to)
	if err != nil {
		return err
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(bar.srcStage), vk.PipelineStageFlags(bar.dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bar.srcAccess),
			DstAccessMask:       vk.AccessFlags(bar.dstAccess),
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(aspect),
				LevelCount: 1,
				LayerCount: uint32(layers),
			},
		}})
	return nil
}

// oneShot records fn into a temporary command buffer and waits for the
// queue to finish it.
func (b *Backend) oneShot(fn func(cmd vk.CommandBuffer) error) error {
	cmds := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(b.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)
	if err := vkError(ret, "vkAllocateCommandBuffers"); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(b.device, b.commandPool, 1, cmds)

	cmd := cmds[0]
	ret = vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := vkError(ret, "vkBeginCommandBuffer"); err != nil {
		return err
	}
	if err := fn(cmd); err != nil {
		vk.EndCommandBuffer(cmd)
		return err
	}
	if err := vkError(vk.EndCommandBuffer(cmd), "vkEndCommandBuffer"); err != nil {
		return err
	}
	ret = vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}}, vk.NullFence)
	if err := vkError(ret, "vkQueueSubmit"); err != nil {
		return err
	}
	return vkError(vk.QueueWaitIdle(b.queue), "vkQueueWaitIdle")
}

type textureData struct {
	image   image
	sampler vk.Sampler
}

func (b *Backend) destroyTexture(td *textureData) {
	if td.sampler != vk.NullSampler {
		vk.DestroySampler(b.device, td.sampler, nil)
	}
	b.destroyImage(td.image)
}

// buildTexture uploads tex once per name through a linear staging image.
func (b *Backend) buildTexture(tex *render.Texture) (*textureData, error) {
	if h, ok := b.textureCache[tex.Name]; ok {
		if td, ok := b.textures.Get(h); ok {
			tex.SetHandle(h)
			tex.SetDirty(false)
			return td, nil
		}
	}
	if tex.Width <= 0 || tex.Height <= 0 || len(tex.Data) < tex.Size() {
		return nil, fmt.Errorf("texture %s: %dx%d with %d bytes", tex.Name, tex.Width, tex.Height, len(tex.Data))
	}

	staging, err := b.newImage(imageSpec{
		width: tex.Width, height: tex.Height,
		format:  vk.FormatR8g8b8a8Unorm,
		usage:   vk.ImageUsageTransferSrcBit,
		tiling:  vk.ImageTilingLinear,
		initial: vk.ImageLayoutPreinitialized,
		memory:  hostMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %s staging: %w", tex.Name, err)
	}
	defer b.destroyImage(staging)

	if err := b.fillStaging(staging, tex); err != nil {
		return nil, fmt.Errorf("texture %s: %w", tex.Name, err)
	}

	dst, err := b.newImage(imageSpec{
		width: tex.Width, height: tex.Height,
		format:  vk.FormatR8g8b8a8Unorm,
		usage:   vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
		tiling:  vk.ImageTilingOptimal,
		initial: vk.ImageLayoutUndefined,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", tex.Name, err)
	}

	err = b.oneShot(func(cmd vk.CommandBuffer) error {
		if err := b.transition(cmd, staging.image, vk.ImageAspectColorBit, 1,
			vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferSrcOptimal); err != nil {
			return err
		}
		if err := b.transition(cmd, dst.image, vk.ImageAspectColorBit, 1,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		layers := vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		}
		vk.CmdCopyImage(cmd,
			staging.image, vk.ImageLayoutTransferSrcOptimal,
			dst.image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageCopy{{
				SrcSubresource: layers,
				DstSubresource: layers,
				Extent:         vk.Extent3D{Width: uint32(tex.Width), Height: uint32(tex.Height), Depth: 1},
			}})
		return b.transition(cmd, dst.image, vk.ImageAspectColorBit, 1,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		b.destroyImage(dst)
		return nil, fmt.Errorf("texture %s upload: %w", tex.Name, err)
	}

	td := &textureData{image: dst}
	if td.image.view, err = b.newImageView(dst.image, vk.FormatR8g8b8a8Unorm, vk.ImageAspectColorBit, vk.ImageViewType2d, 1); err != nil {
		b.destroyTexture(td)
		return nil, err
	}
	if td.sampler, err = b.newSampler(vk.SamplerAddressModeRepeat); err != nil {
		b.destroyTexture(td)
		return nil, err
	}

	h := b.textures.Insert(td)
	b.textureCache[tex.Name] = h
	tex.SetHandle(h)
	tex.SetDirty(false)
	b.log.Debug("texture uploaded", zap.String("texture", tex.Name), zap.Int("width", tex.Width), zap.Int("height", tex.Height))
	return td, nil
}

// fillStaging copies pixels row by row honoring the driver's row pitch.
func (b *Backend) fillStaging(staging image, tex *render.Texture) error {
	var layout vk.SubresourceLayout
	vk.GetImageSubresourceLayout(b.device, staging.image, &vk.ImageSubresource{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}, &layout)
	layout.Deref()

	ptr, err := b.mapped(staging.memory)
	if err != nil {
		return err
	}
	defer vk.UnmapMemory(b.device, staging.memory)

	rowBytes := tex.Width * tex.Format.BytesPerPixel()
	pitch := int(layout.RowPitch)
	dst := unsafe.Slice((*byte)(unsafe.Add(ptr, int(layout.Offset))), pitch*(tex.Height-1)+rowBytes)
	for y := 0; y < tex.Height; y++ {
		copy(dst[y*pitch:y*pitch+rowBytes], tex.Data[y*rowBytes:(y+1)*rowBytes])
	}
	return nil
}

func (b *Backend) newSampler(mode vk.SamplerAddressMode) (vk.Sampler, error) {
	var s vk.Sampler
	ret := vk.CreateSampler(b.device, &vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: mode,
		AddressModeV: mode,
		AddressModeW: mode,
		MaxLod:       1,
		BorderColor:  vk.BorderColorFloatOpaqueWhite,
	}, nil, &s)
	if err := vkError(ret, "vkCreateSampler"); err != nil {
		return vk.NullSampler, err
	}
	return s, nil
}
