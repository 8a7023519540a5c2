package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/lighting"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/shader"
)

// Descriptor bindings shared by every material.
const (
	bindingFrame    = 0
	bindingObject   = 1
	bindingTextures = 2 // five consecutive texture or input attachment slots
)

// compositePushSize is three vec4: light color with the viewport width in
// w, light position with the viewport height in w, then the light's frame
// block index and a directional flag.
const compositePushSize = 48

// Shadow pipelines receive the frame block index of their light as one int.
const (
	shadowPushSize   = 4
	shadowPushStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageGeometryBit)
)

type materialData struct {
	mat     *render.Material
	program shader.Program
	stages  []vk.PipelineShaderStageCreateInfo

	setLayout vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	sets      []vk.DescriptorSet
	layout    vk.PipelineLayout

	frameData  []*render.UniformBuffer
	objectData []*render.UniformBuffer
}

// textureSlots returns the texture slots of mat by binding offset, nil for
// unset slots.
func textureSlots(mat *render.Material) [gbufferCount]*render.Texture {
	return [gbufferCount]*render.Texture{
		mat.AlbedoTexture,
		mat.NormalTexture,
		mat.MetallicRoughnessTexture,
		mat.OcclusionTexture,
		mat.EmissiveTexture,
	}
}

// materialBindings lists the descriptor bindings of a material: the frame
// and object storage buffers, then the G-buffer inputs of the composite or
// the set texture slots of a lit material.
func materialBindings(mat *render.Material) []vk.DescriptorSetLayoutBinding {
	stages := vk.ShaderStageFlags(vk.ShaderStageAllGraphics)
	out := []vk.DescriptorSetLayoutBinding{
		{Binding: bindingFrame, DescriptorType: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1, StageFlags: stages},
		{Binding: bindingObject, DescriptorType: vk.DescriptorTypeStorageBufferDynamic, DescriptorCount: 1, StageFlags: stages},
	}
	fragment := vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	switch mat.Technique {
	case render.TechniqueDeferredComposite:
		for i := 0; i < gbufferCount; i++ {
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(bindingTextures + i),
				DescriptorType:  vk.DescriptorTypeInputAttachment,
				DescriptorCount: 1,
				StageFlags:      fragment,
			})
		}
	case render.TechniqueDeferredLit:
		for i, tex := range textureSlots(mat) {
			if tex == nil {
				continue
			}
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(bindingTextures + i),
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				StageFlags:      fragment,
			})
		}
	}
	return out
}

// poolSizes counts descriptors by type for numSets copies of bindings.
func poolSizes(bindings []vk.DescriptorSetLayoutBinding, numSets int) []vk.DescriptorPoolSize {
	counts := make(map[vk.DescriptorType]uint32)
	var order []vk.DescriptorType
	for _, bd := range bindings {
		if _, ok := counts[bd.DescriptorType]; !ok {
			order = append(order, bd.DescriptorType)
		}
		counts[bd.DescriptorType] += bd.DescriptorCount * uint32(numSets)
	}
	out := make([]vk.DescriptorPoolSize, len(order))
	for i, t := range order {
		out[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: counts[t]}
	}
	return out
}

// stageOf maps a shader file name to its pipeline stage.
func stageOf(name string) vk.ShaderStageFlagBits {
	switch {
	case strings.Contains(name, ".geom"):
		return vk.ShaderStageGeometryBit
	case strings.Contains(name, ".frag"):
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

// BuildMaterial loads the material shaders, uploads its textures and
// creates one descriptor set per frame bound to that frame's buffers.
func (b *Backend) BuildMaterial(mat *render.Material, frameData, objectData []*render.UniformBuffer) error {
	if !mat.NeedsBuild() {
		return nil
	}
	program, err := shader.ForMaterial(mat)
	if err != nil {
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
	if old, ok := b.materials.Get(mat.Handle()); ok {
		vk.DeviceWaitIdle(b.device)
		b.destroyMaterial(old)
	}

	md := &materialData{
		mat:        mat,
		program:    program,
		frameData:  frameData[:b.numFrames],
		objectData: objectData[:b.numFrames],
	}
	for _, name := range program.Stages() {
		module, err := b.module(name)
		if err != nil {
			return b.fail(fmt.Errorf("building material %s: %w", mat.Name, err))
		}
		md.stages = append(md.stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stageOf(name),
			Module: module,
			PName:  "main\x00",
		})
	}

	if err := b.createDescriptors(md); err != nil {
		b.destroyMaterial(md)
		return b.fail(fmt.Errorf("building material %s: %w", mat.Name, err))
	}
	if err := b.writeDescriptors(md); err != nil {
		b.destroyMaterial(md)
		return fmt.Errorf("building material %s: %w", mat.Name, err)
	}

	if h := mat.Handle(); h == render.NoHandle || !b.materials.Set(h, md) {
		mat.SetHandle(b.materials.Insert(md))
	}
	mat.SetDirty(false)
	b.log.Debug("material built",
		zap.String("material", mat.Name),
		zap.Stringer("technique", mat.Technique),
		zap.Strings("shaders", program.Stages()))
	return nil
}

// module returns the cached shader module for name, loading it on first use.
func (b *Backend) module(name string) (vk.ShaderModule, error) {
	if m, ok := b.modules[name]; ok {
		return m, nil
	}
	if b.opts.Shaders == nil {
		return vk.NullShaderModule, fmt.Errorf("no shader source for %s", name)
	}
	words, err := shader.LoadSPIRV(b.opts.Shaders, name)
	if err != nil {
		return vk.NullShaderModule, err
	}
	var m vk.ShaderModule
	ret := vk.CreateShaderModule(b.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(words) * 4),
		PCode:    words,
	}, nil, &m)
	if err := vkError(ret, "vkCreateShaderModule "+name); err != nil {
		return vk.NullShaderModule, err
	}
	b.modules[name] = m
	return m, nil
}

func (b *Backend) createDescriptors(md *materialData) error {
	bindings := materialBindings(md.mat)
	ret := vk.CreateDescriptorSetLayout(b.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &md.setLayout)
	if err := vkError(ret, "vkCreateDescriptorSetLayout"); err != nil {
		return err
	}

	sizes := poolSizes(bindings, b.numFrames)
	ret = vk.CreateDescriptorPool(b.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(b.numFrames),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &md.pool)
	if err := vkError(ret, "vkCreateDescriptorPool"); err != nil {
		return err
	}

	md.sets = make([]vk.DescriptorSet, b.numFrames)
	for i := range md.sets {
		ret = vk.AllocateDescriptorSets(b.device, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     md.pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{md.setLayout},
		}, &md.sets[i])
		if err := vkError(ret, "vkAllocateDescriptorSets"); err != nil {
			return err
		}
	}

	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{md.setLayout},
	}
	if r, ok := pushConstantRange(md.mat.Technique); ok {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{r}
	}
	ret = vk.CreatePipelineLayout(b.device, &info, nil, &md.layout)
	return vkError(ret, "vkCreatePipelineLayout")
}

// pushConstantRange returns the push constant block of a technique.
func pushConstantRange(tech render.Technique) (vk.PushConstantRange, bool) {
	switch tech {
	case render.TechniqueDeferredComposite:
		return vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
			Size:       compositePushSize,
		}, true
	case render.TechniqueShadow, render.TechniqueShadowCube:
		return vk.PushConstantRange{StageFlags: shadowPushStages, Size: shadowPushSize}, true
	}
	return vk.PushConstantRange{}, false
}

func (b *Backend) writeDescriptors(md *materialData) error {
	var writes []vk.WriteDescriptorSet
	for frame, set := range md.sets {
		fd, ok := b.uniforms.Get(md.frameData[frame].Handle())
		if !ok {
			return fmt.Errorf("frame data %d: %w", frame, render.ErrNotBuilt)
		}
		od, ok := b.uniforms.Get(md.objectData[frame].Handle())
		if !ok {
			return fmt.Errorf("object data %d: %w", frame, render.ErrNotBuilt)
		}
		writes = append(writes,
			vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      bindingFrame,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeStorageBuffer,
				PBufferInfo:     []vk.DescriptorBufferInfo{{Buffer: fd.buffer, Range: vk.DeviceSize(vk.WholeSize)}},
			},
			vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      bindingObject,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeStorageBufferDynamic,
				PBufferInfo:     []vk.DescriptorBufferInfo{{Buffer: od.buffer, Range: vk.DeviceSize(lighting.ObjectParamsSize)}},
			})
	}

	switch md.mat.Technique {
	case render.TechniqueDeferredComposite:
		inputs, err := b.compositeInputWrites(md)
		if err != nil {
			return err
		}
		writes = append(writes, inputs...)
	case render.TechniqueDeferredLit:
		for i, tex := range textureSlots(md.mat) {
			if tex == nil {
				continue
			}
			td, err := b.buildTexture(tex)
			if err != nil {
				return err
			}
			for _, set := range md.sets {
				writes = append(writes, vk.WriteDescriptorSet{
					SType:           vk.StructureTypeWriteDescriptorSet,
					DstSet:          set,
					DstBinding:      uint32(bindingTextures + i),
					DescriptorCount: 1,
					DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
					PImageInfo: []vk.DescriptorImageInfo{{
						Sampler:     td.sampler,
						ImageView:   td.image.view,
						ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
					}},
				})
			}
		}
	}
	vk.UpdateDescriptorSets(b.device, uint32(len(writes)), writes, 0, nil)
	return nil
}

// compositeInputWrites points the G-buffer input attachments of md at the
// on-screen view's current G-buffer.
func (b *Backend) compositeInputWrites(md *materialData) ([]vk.WriteDescriptorSet, error) {
	if b.onscreen == nil {
		return nil, fmt.Errorf("composite %s: no on-screen view: %w", md.mat.Name, render.ErrNotBuilt)
	}
	vd, err := b.viewData(b.onscreen)
	if err != nil {
		return nil, fmt.Errorf("composite %s: %w", md.mat.Name, err)
	}
	var writes []vk.WriteDescriptorSet
	for _, set := range md.sets {
		for i := range vd.gbuffer {
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      uint32(bindingTextures + i),
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeInputAttachment,
				PImageInfo: []vk.DescriptorImageInfo{{
					ImageView:   vd.gbuffer[i].view,
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}},
			})
		}
	}
	return writes, nil
}

// rewriteCompositeInputs refreshes every composite material after the
// G-buffer was recreated.
func (b *Backend) rewriteCompositeInputs() error {
	var err error
	b.materials.Each(func(_ render.Handle, md *materialData) {
		if err != nil || md.mat.Technique != render.TechniqueDeferredComposite {
			return
		}
		var writes []vk.WriteDescriptorSet
		if writes, err = b.compositeInputWrites(md); err == nil {
			vk.UpdateDescriptorSets(b.device, uint32(len(writes)), writes, 0, nil)
		}
	})
	return err
}

func (b *Backend) destroyMaterial(md *materialData) {
	if md.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(b.device, md.layout, nil)
		md.layout = vk.NullPipelineLayout
	}
	if md.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(b.device, md.pool, nil)
		md.pool = vk.NullDescriptorPool
	}
	if md.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(b.device, md.setLayout, nil)
		md.setLayout = vk.NullDescriptorSetLayout
	}
	md.sets = nil
}
