package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/shader"
)

type bufferData struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	mapped unsafe.Pointer
	size   int
}

// BuildUniformBuffer creates a persistently mapped, host-coherent storage
// buffer of ub.Size bytes.
func (b *Backend) BuildUniformBuffer(ub *render.UniformBuffer) error {
	if !ub.NeedsBuild() {
		return nil
	}
	if ub.Size <= 0 {
		return fmt.Errorf("uniform buffer %s: size %d", ub.Name, ub.Size)
	}
	if old, ok := b.uniforms.Get(ub.Handle()); ok {
		vk.DeviceWaitIdle(b.device)
		b.destroyBuffer(old)
	}

	buf, reqs, err := b.newBuffer(ub.Size, vk.BufferUsageStorageBufferBit)
	if err != nil {
		return b.fail(fmt.Errorf("uniform buffer %s: %w", ub.Name, err))
	}
	bd := &bufferData{buffer: buf, size: ub.Size}
	if bd.memory, err = b.allocate(reqs, hostMemory); err != nil {
		b.destroyBuffer(bd)
		return b.fail(fmt.Errorf("uniform buffer %s: %w", ub.Name, err))
	}
	vk.BindBufferMemory(b.device, buf, bd.memory, 0)
	if bd.mapped, err = b.mapped(bd.memory); err != nil {
		b.destroyBuffer(bd)
		return b.fail(fmt.Errorf("uniform buffer %s: %w", ub.Name, err))
	}

	if h := ub.Handle(); h == render.NoHandle || !b.uniforms.Set(h, bd) {
		ub.SetHandle(b.uniforms.Insert(bd))
	}
	ub.SetDirty(false)
	b.log.Debug("uniform buffer built", zap.String("buffer", ub.Name), zap.Int("size", ub.Size))
	return nil
}

// UpdateUniformData copies data into the mapped buffer at offset.
func (b *Backend) UpdateUniformData(ub *render.UniformBuffer, offset int, data []byte) error {
	bd, ok := b.uniforms.Get(ub.Handle())
	if !ok {
		return fmt.Errorf("updating %s: %w", ub.Name, render.ErrNotBuilt)
	}
	if offset < 0 || offset+len(data) > bd.size {
		return fmt.Errorf("updating %s: %d bytes at %d overflow %d", ub.Name, len(data), offset, bd.size)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(bd.mapped, offset), data)
	return nil
}

func (b *Backend) destroyBuffer(bd *bufferData) {
	if bd.mapped != nil {
		vk.UnmapMemory(b.device, bd.memory)
		bd.mapped = nil
	}
	if bd.buffer != vk.NullBuffer {
		vk.DestroyBuffer(b.device, bd.buffer, nil)
		bd.buffer = vk.NullBuffer
	}
	if bd.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.device, bd.memory, nil)
		bd.memory = vk.NullDeviceMemory
	}
}

// meshPipeline is what BindPipeline needs for one view and frame.
type meshPipeline struct {
	pipeline vk.Pipeline
	material render.Handle
}

type meshData struct {
	vertices    vk.Buffer
	indices     vk.Buffer
	memory      vk.DeviceMemory
	indexCount  uint32
	indexOffset int
	pipelines   map[render.MeshPipeline]meshPipeline
}

func (b *Backend) destroyMesh(md *meshData) {
	if md.vertices != vk.NullBuffer {
		vk.DestroyBuffer(b.device, md.vertices, nil)
	}
	if md.indices != vk.NullBuffer {
		vk.DestroyBuffer(b.device, md.indices, nil)
	}
	if md.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.device, md.memory, nil)
	}
	*md = meshData{}
}

func floatBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

func indexBytes(idx []uint32) []byte {
	if len(idx) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&idx[0])), len(idx)*4)
}

// BuildMesh uploads the interleaved vertices and 32-bit indices into one
// allocation, builds every material the mesh is drawn with and creates its
// pipelines for each frame in flight.
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
	if old, ok := b.meshes.Get(mesh.Handle()); ok {
		vk.DeviceWaitIdle(b.device)
		b.destroyMesh(old)
	}

	md, err := b.uploadMesh(mesh)
	if err != nil {
		return b.fail(fmt.Errorf("building mesh %s: %w", mesh.Name, err))
	}
	layout := mesh.Layout()
	for _, target := range b.depth.Targets(mesh, b.onscreen, b.opts.DepthPrepass, lights) {
		vd, err := b.viewData(target.View)
		if err != nil {
			b.destroyMesh(md)
			return fmt.Errorf("building mesh %s: %w", mesh.Name, err)
		}
		if err := b.BuildMaterial(target.Material, frameData, objectData); err != nil {
			b.destroyMesh(md)
			return err
		}
		mat, _ := b.materials.Get(target.Material.Handle())
		state := pipelineStateFor(target.Material.Technique, target.View.Type, b.opts.DepthPrepass)
		for frame := 0; frame < b.numFrames; frame++ {
			key, err := shader.PipelineKey(mesh, target.Material, uint32(frame))
			if err != nil {
				b.destroyMesh(md)
				return fmt.Errorf("building mesh %s: %w", mesh.Name, err)
			}
			p, err := b.pipelines.GetOrCreate(key, func(key render.PipelineKey) (vk.Pipeline, error) {
				return b.createPipeline(key, mat, vd.renderPass, layout, state)
			})
			if err != nil {
				b.destroyMesh(md)
				return b.fail(fmt.Errorf("building mesh %s: %w", mesh.Name, err))
			}
			md.pipelines[render.MeshPipeline{
				View:         target.View.Handle(),
				FrameIndex:   uint32(frame),
				DepthPrepass: target.DepthPrepass,
			}] = meshPipeline{pipeline: p, material: target.Material.Handle()}
		}
	}

	if h := mesh.Handle(); h == render.NoHandle || !b.meshes.Set(h, md) {
		mesh.SetHandle(b.meshes.Insert(md))
	}
	mesh.SetDirty(false)
	b.log.Debug("mesh built",
		zap.String("mesh", mesh.Name),
		zap.Int("vertices", mesh.VertexCount()),
		zap.Int("indices", mesh.IndexCount()),
		zap.Int("pipelines", len(md.pipelines)))
	return nil
}

func (b *Backend) uploadMesh(mesh *render.Mesh) (*meshData, error) {
	vertices := floatBytes(mesh.Interleave())
	indices := indexBytes(mesh.Indices)
	md := &meshData{
		indexCount: uint32(len(mesh.Indices)),
		pipelines:  make(map[render.MeshPipeline]meshPipeline),
	}

	var vreqs, ireqs vk.MemoryRequirements
	var err error
	if md.vertices, vreqs, err = b.newBuffer(len(vertices), vk.BufferUsageVertexBufferBit); err != nil {
		return nil, err
	}
	// Keep a valid index buffer for meshes drawn without indices.
	indexSize := len(indices)
	if indexSize == 0 {
		indexSize = 4
	}
	if md.indices, ireqs, err = b.newBuffer(indexSize, vk.BufferUsageIndexBufferBit); err != nil {
		b.destroyMesh(md)
		return nil, err
	}

	md.indexOffset = render.Align(int(vreqs.Size), int(ireqs.Alignment))
	reqs := vk.MemoryRequirements{
		Size:           vk.DeviceSize(md.indexOffset) + ireqs.Size,
		Alignment:      vreqs.Alignment,
		MemoryTypeBits: vreqs.MemoryTypeBits & ireqs.MemoryTypeBits,
	}
	if md.memory, err = b.allocate(reqs, hostMemory); err != nil {
		b.destroyMesh(md)
		return nil, err
	}
	vk.BindBufferMemory(b.device, md.vertices, md.memory, 0)
	vk.BindBufferMemory(b.device, md.indices, md.memory, vk.DeviceSize(md.indexOffset))

	ptr, err := b.mapped(md.memory)
	if err != nil {
		b.destroyMesh(md)
		return nil, err
	}
	vk.Memcopy(ptr, vertices)
	if len(indices) > 0 {
		vk.Memcopy(unsafe.Add(ptr, md.indexOffset), indices)
	}
	vk.UnmapMemory(b.device, md.memory)
	return md, nil
}

// pipelineState is the fixed-function state of one pipeline.
type pipelineState struct {
	subpass    uint32
	depthTest  bool
	depthWrite bool
	compare    vk.CompareOp
	colors     int
	additive   bool
	depthBias  bool
	cull       vk.CullModeFlagBits
}

// pipelineStateFor derives pipeline state from the technique, the target
// view and whether the on-screen pass has a depth pre-pass. With a pre-pass
// the G-buffer fill only tests for equal depth and writes none.
func pipelineStateFor(tech render.Technique, viewType render.ViewType, prepass bool) pipelineState {
	s := pipelineState{
		depthTest:  true,
		depthWrite: true,
		compare:    vk.CompareOpLessOrEqual,
		cull:       vk.CullModeBackBit,
	}
	if viewType.IsShadow() {
		s.depthBias = true
		return s
	}
	switch tech {
	case render.TechniqueDepthPrepass:
	case render.TechniqueDeferredComposite:
		s.depthTest, s.depthWrite = false, false
		s.compare = vk.CompareOpAlways
		s.colors = 1
		s.additive = true
		s.cull = vk.CullModeNone
		s.subpass = 1
		if prepass {
			s.subpass = 2
		}
	default:
		s.colors = gbufferCount
		if prepass {
			s.subpass = 1
			s.depthWrite = false
			s.compare = vk.CompareOpEqual
		}
	}
	return s
}

func attributeFormat(components int) vk.Format {
	switch components {
	case 1:
		return vk.FormatR32Sfloat
	case 2:
		return vk.FormatR32g32Sfloat
	case 4:
		return vk.FormatR32g32b32a32Sfloat
	}
	return vk.FormatR32g32b32Sfloat
}

// vertexInput describes one interleaved binding following layout.
func vertexInput(layout render.VertexLayout) (vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	binding := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(layout.StrideBytes()),
		InputRate: vk.VertexInputRateVertex,
	}
	attrs := make([]vk.VertexInputAttributeDescription, len(layout.Attributes))
	for i, a := range layout.Attributes {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: uint32(a.Location),
			Binding:  0,
			Format:   attributeFormat(a.Components),
			Offset:   uint32(a.Offset * 4),
		}
	}
	return binding, attrs
}

func boolean(v bool) vk.Bool32 {
	if v {
		return vk.True
	}
	return vk.False
}

func (b *Backend) createPipeline(key render.PipelineKey, md *materialData, rp vk.RenderPass, layout render.VertexLayout, state pipelineState) (vk.Pipeline, error) {
	binding, attrs := vertexInput(layout)

	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	if state.depthBias {
		dynamic = append(dynamic, vk.DynamicStateDepthBias)
	}

	var blend *vk.PipelineColorBlendStateCreateInfo
	if state.colors > 0 {
		attachments := make([]vk.PipelineColorBlendAttachmentState, state.colors)
		for i := range attachments {
			attachments[i].ColorWriteMask = 0xF
			if state.additive {
				attachments[i].BlendEnable = vk.True
				attachments[i].SrcColorBlendFactor = vk.BlendFactorOne
				attachments[i].DstColorBlendFactor = vk.BlendFactorOne
				attachments[i].ColorBlendOp = vk.BlendOpAdd
				attachments[i].SrcAlphaBlendFactor = vk.BlendFactorOne
				attachments[i].DstAlphaBlendFactor = vk.BlendFactorOne
				attachments[i].AlphaBlendOp = vk.BlendOpAdd
			}
		}
		blend = &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOpEnable:   vk.False,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
		}
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(md.stages)),
		PStages:    md.stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   1,
			PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{binding},
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:           vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode:     vk.PolygonModeFill,
			CullMode:        vk.CullModeFlags(state.cull),
			FrontFace:       vk.FrontFaceCounterClockwise,
			DepthBiasEnable: boolean(state.depthBias),
			LineWidth:       1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  boolean(state.depthTest),
			DepthWriteEnable: boolean(state.depthWrite),
			DepthCompareOp:   state.compare,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PColorBlendState: blend,
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:     md.layout,
		RenderPass: rp,
		Subpass:    state.subpass,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(b.device, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := vkError(ret, "vkCreateGraphicsPipelines "+key.String()); err != nil {
		return vk.NullPipeline, err
	}
	b.log.Debug("pipeline created", zap.Stringer("key", key), zap.Uint32("subpass", state.subpass))
	return pipelines[0], nil
}
