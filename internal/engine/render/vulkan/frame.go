package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// Timestamp queries written by the on-screen pass.
const (
	queryBegin = iota
	queryGBuffer
	queryEnd
)

// clearValues returns one clear value per attachment of the view's pass.
func clearValues(t render.ViewType) []vk.ClearValue {
	if t.IsShadow() {
		return []vk.ClearValue{vk.NewClearDepthStencil(1, 0)}
	}
	out := make([]vk.ClearValue, screenAttachCnt)
	out[attachBackBuffer] = vk.NewClearValue([]float32{0, 0, 0, 1})
	out[attachDepth] = vk.NewClearDepthStencil(1, 0)
	for i := 0; i < gbufferCount; i++ {
		out[attachGBuffer+i] = vk.NewClearValue([]float32{0, 0.2, 0.8, 1})
	}
	out[attachGDepth] = vk.NewClearDepthStencil(1, 0)
	return out
}

// flippedViewport maps +Y up clip space onto the framebuffer with a
// negative viewport height.
func flippedViewport(extent vk.Extent2D) vk.Viewport {
	return vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// slot returns the frame slot a call with frameIndex records into.
// Off-screen views render with the on-screen frame index but own the slot
// AcquireBackBuffer handed out.
func (vd *viewData) slot(frameIndex uint32) *frameSlot {
	if vd.screen() {
		return &vd.slots[frameIndex]
	}
	return &vd.slots[vd.current]
}

// compositePush packs the push constants of one composite draw.
func compositePush(light render.CompositeLight, extent vk.Extent2D) [compositePushSize / 4]float32 {
	var directional float32
	if light.Directional {
		directional = 1
	}
	return [compositePushSize / 4]float32{
		light.Color.X, light.Color.Y, light.Color.Z, float32(extent.Width),
		light.Position.X, light.Position.Y, light.Position.Z, float32(extent.Height),
		float32(light.Index), directional, 0, 0,
	}
}

func (b *Backend) wait(fence vk.Fence) error {
	return vkError(vk.WaitForFences(b.device, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64), "vkWaitForFences")
}

// AcquireBackBuffer takes the oldest free frame slot of view and waits
// until the GPU is done with it. On-screen views also acquire the next
// swapchain image; an out-of-date swapchain returns render.ErrOutOfDate
// and leaves the slot free.
func (b *Backend) AcquireBackBuffer(view *render.View) (uint32, error) {
	vd, err := b.viewData(view)
	if err != nil {
		return 0, err
	}
	frame, ok := vd.free.Acquire()
	if !ok {
		return 0, fmt.Errorf("acquiring %s: %w", view.Name, ErrNoFreeSlot)
	}
	slot := &vd.slots[frame]
	if err := b.wait(slot.renderFence); err != nil {
		vd.free.Release(frame)
		return 0, b.fail(err)
	}
	if vd.screen() {
		if err := b.wait(slot.presentFence); err != nil {
			vd.free.Release(frame)
			return 0, b.fail(err)
		}
		var idx uint32
		ret := vk.AcquireNextImage(b.device, vd.swapchain.handle, vk.MaxUint64, slot.acquired, vk.NullFence, &idx)
		switch ret {
		case vk.Success, vk.Suboptimal:
		case vk.ErrorOutOfDate:
			vd.free.Release(frame)
			vd.outOfDate = true
			return 0, fmt.Errorf("acquiring %s: %w", view.Name, render.ErrOutOfDate)
		default:
			vd.free.Release(frame)
			return 0, b.fail(vkError(ret, "vkAcquireNextImage"))
		}
		vk.ResetFences(b.device, 1, []vk.Fence{slot.presentFence})
		slot.image = idx
	}
	vd.current = frame
	return frame, nil
}

// RenderBegin starts recording the frame's command buffer and begins the
// view's render pass.
func (b *Backend) RenderBegin(view, lastView *render.View, frameData, objectData *render.UniformBuffer, frameIndex uint32) error {
	vd, err := b.viewData(view)
	if err != nil {
		return err
	}
	if vd.recording {
		return fmt.Errorf("render begin %s: already recording", view.Name)
	}
	if int(frameIndex) >= len(vd.slots) {
		return fmt.Errorf("render begin %s: frame %d of %d", view.Name, frameIndex, len(vd.slots))
	}
	fd, ok := b.uniforms.Get(frameData.Handle())
	if !ok {
		return fmt.Errorf("render begin %s: frame data: %w", view.Name, render.ErrNotBuilt)
	}
	od, ok := b.uniforms.Get(objectData.Handle())
	if !ok {
		return fmt.Errorf("render begin %s: object data: %w", view.Name, render.ErrNotBuilt)
	}

	if vd.screen() {
		vd.current = frameIndex
	}
	slot := vd.slot(frameIndex)
	if err := b.wait(slot.renderFence); err != nil {
		return b.fail(err)
	}
	vk.ResetFences(b.device, 1, []vk.Fence{slot.renderFence})

	cmd := slot.cmd
	vk.ResetCommandBuffer(cmd, 0)
	ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := vkError(ret, "vkBeginCommandBuffer"); err != nil {
		return b.fail(err)
	}

	shaders := vk.PipelineStageVertexShaderBit | vk.PipelineStageGeometryShaderBit | vk.PipelineStageFragmentShaderBit
	hostWrites := func(buf vk.Buffer) vk.BufferMemoryBarrier {
		return vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessHostWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf,
			Size:                vk.DeviceSize(vk.WholeSize),
		}
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageHostBit), vk.PipelineStageFlags(shaders),
		0, 0, nil, 2, []vk.BufferMemoryBarrier{hostWrites(fd.buffer), hostWrites(od.buffer)}, 0, nil)

	framebuffer := vd.framebuffers[0]
	if vd.screen() {
		framebuffer = vd.framebuffers[slot.image]
		vk.CmdResetQueryPool(cmd, b.queryPool, 0, uint32(len(b.timestamps)))
		vk.CmdWriteTimestamp(cmd, vk.PipelineStageTopOfPipeBit, b.queryPool, queryBegin)
	}

	clears := clearValues(view.Type)
	vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vd.renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vd.extent,
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)

	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{flippedViewport(vd.extent)})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: vd.extent}})
	if view.Type.IsShadow() {
		vk.CmdSetDepthBias(cmd, b.depthBiasConstant, 0, b.depthBiasSlope)
	}

	vd.recording = true
	vd.subpass = 0
	vd.bound, vd.material = nil, nil
	return nil
}

// readTimestamps fetches the queries of the on-screen frame that just
// completed.
func (b *Backend) readTimestamps() {
	var results [3]uint64
	ret := vk.GetQueryPoolResults(b.device, b.queryPool, 0, uint32(len(results)),
		uint64(unsafe.Sizeof(results)), unsafe.Pointer(&results[0]), vk.DeviceSize(8),
		vk.QueryResultFlags(vk.QueryResult64Bit|vk.QueryResultWaitBit))
	if err := vkError(ret, "vkGetQueryPoolResults"); err != nil {
		b.log.Debug("timestamps unavailable", zap.Error(err))
		return
	}
	b.timestamps = results
}

func (b *Backend) recording(view *render.View) (*viewData, error) {
	vd, err := b.viewData(view)
	if err != nil {
		return nil, err
	}
	if !vd.recording {
		return nil, fmt.Errorf("view %s: not recording", view.Name)
	}
	return vd, nil
}

// EndDepthPrepass advances from the depth pre-pass to the G-buffer subpass.
func (b *Backend) EndDepthPrepass(view *render.View, frameIndex uint32) error {
	vd, err := b.recording(view)
	if err != nil {
		return err
	}
	if !vd.screen() || !b.opts.DepthPrepass || vd.subpass != 0 {
		return fmt.Errorf("end depth prepass %s: not in a depth pre-pass", view.Name)
	}
	vk.CmdNextSubpass(vd.slot(frameIndex).cmd, vk.SubpassContentsInline)
	vd.subpass++
	vd.bound, vd.material = nil, nil
	return nil
}

// BindPipeline binds the pipeline built for mesh in view.
func (b *Backend) BindPipeline(mesh *render.Mesh, view *render.View, frameIndex uint32, depthPrepass bool) error {
	vd, err := b.recording(view)
	if err != nil {
		return err
	}
	md, ok := b.meshes.Get(mesh.Handle())
	if !ok {
		return fmt.Errorf("bind pipeline %s: %w", mesh.Name, render.ErrNotBuilt)
	}
	mp, ok := md.pipelines[render.MeshPipeline{View: view.Handle(), FrameIndex: frameIndex, DepthPrepass: depthPrepass}]
	if !ok {
		return fmt.Errorf("bind pipeline %s in %s: %w", mesh.Name, view.Name, render.ErrNotBuilt)
	}
	mat, ok := b.materials.Get(mp.material)
	if !ok {
		return fmt.Errorf("bind pipeline %s: material: %w", mesh.Name, render.ErrNotBuilt)
	}
	cmd := vd.slot(frameIndex).cmd
	if vd.bound == nil || vd.bound.pipeline != mp.pipeline {
		vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, mp.pipeline)
	}
	if view.Type.IsShadow() {
		index := int32(view.LightIndex)
		vk.CmdPushConstants(cmd, mat.layout, shadowPushStages, 0, shadowPushSize, unsafe.Pointer(&index))
	}
	vd.bound, vd.material = &mp, mat
	return nil
}

// Render binds the material descriptors at the object's slot and draws
// mesh.
func (b *Backend) Render(mesh *render.Mesh, objectOffset uint32, view *render.View, frameIndex uint32, depthPrepass bool) error {
	vd, err := b.recording(view)
	if err != nil {
		return err
	}
	md, ok := b.meshes.Get(mesh.Handle())
	if !ok {
		return fmt.Errorf("render %s: %w", mesh.Name, render.ErrNotBuilt)
	}
	if vd.bound == nil {
		return fmt.Errorf("render %s: no pipeline bound", mesh.Name)
	}
	if objectOffset%uint32(b.alignment) != 0 {
		return fmt.Errorf("render %s: object offset %d not aligned to %d", mesh.Name, objectOffset, b.alignment)
	}

	cmd := vd.slot(frameIndex).cmd
	mat := vd.material
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, mat.layout, 0, 1,
		[]vk.DescriptorSet{mat.sets[frameIndex]}, 1, []uint32{objectOffset})
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{md.vertices}, []vk.DeviceSize{0})
	if md.indexCount == 0 {
		vk.CmdDraw(cmd, uint32(mesh.VertexCount()), 1, 0, 0)
		return nil
	}
	vk.CmdBindIndexBuffer(cmd, md.indices, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(cmd, md.indexCount, 1, 0, 0, 0)
	return nil
}

// RenderEnd records the per-light composite of on-screen views, ends the
// pass and submits. The submission waits on lastView: the swapchain
// acquire when lastView is the on-screen view, else lastView's render.
// On-screen views end the frame: RenderEnd blocks until the GPU finished
// it and reads the timestamps.
func (b *Backend) RenderEnd(view, lastView *render.View, frameData, objectData *render.UniformBuffer, frameIndex uint32) error {
	vd, err := b.recording(view)
	if err != nil {
		return err
	}
	slot := vd.slot(frameIndex)
	cmd := slot.cmd

	if vd.screen() {
		vk.CmdWriteTimestamp(cmd, vk.PipelineStageBottomOfPipeBit, b.queryPool, queryGBuffer)
		vk.CmdNextSubpass(cmd, vk.SubpassContentsInline)
		vd.subpass++
		for _, light := range view.CompositeLights {
			push := compositePush(light, vd.extent)
			for _, mesh := range view.CompositeMeshes {
				if err := b.BindPipeline(mesh, view, frameIndex, false); err != nil {
					return err
				}
				vk.CmdPushConstants(cmd, vd.material.layout,
					vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
					0, compositePushSize, unsafe.Pointer(&push[0]))
				if err := b.Render(mesh, 0, view, frameIndex, false); err != nil {
					return err
				}
			}
		}
	}
	vk.CmdEndRenderPass(cmd)
	if vd.screen() {
		vk.CmdWriteTimestamp(cmd, vk.PipelineStageBottomOfPipeBit, b.queryPool, queryEnd)
	}
	vd.recording = false
	if err := vkError(vk.EndCommandBuffer(cmd), "vkEndCommandBuffer"); err != nil {
		return b.fail(err)
	}

	wait, stage, err := b.waitFor(vd, lastView)
	if err != nil {
		return err
	}
	ret := vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{wait},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(stage)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{slot.rendered},
	}}, slot.renderFence)
	if err := vkError(ret, "vkQueueSubmit"); err != nil {
		return b.fail(err)
	}
	if vd.screen() {
		if err := b.wait(slot.renderFence); err != nil {
			return b.fail(err)
		}
		b.readTimestamps()
	}
	return nil
}

// waitFor returns the semaphore and stage a submission of vd waits on.
func (b *Backend) waitFor(vd *viewData, lastView *render.View) (vk.Semaphore, vk.PipelineStageFlagBits, error) {
	last := vd
	if lastView != nil && lastView != vd.view {
		var err error
		if last, err = b.viewData(lastView); err != nil {
			return vk.NullSemaphore, 0, err
		}
	}
	slot := last.slots[last.current]
	if !last.screen() {
		return slot.rendered, vk.PipelineStageAllCommandsBit, nil
	}
	if vd.screen() {
		return slot.acquired, vk.PipelineStageColorAttachmentOutputBit, nil
	}
	return slot.acquired, vk.PipelineStageAllCommandsBit, nil
}

// SwapBackBuffer presents on-screen views and returns the slot to the
// view's ring.
func (b *Backend) SwapBackBuffer(view *render.View, frameIndex uint32) error {
	vd, err := b.viewData(view)
	if err != nil {
		return err
	}
	if vd.recording {
		return fmt.Errorf("swap %s: still recording", view.Name)
	}
	if int(frameIndex) >= len(vd.slots) {
		return fmt.Errorf("swap %s: frame %d of %d", view.Name, frameIndex, len(vd.slots))
	}
	var presentErr error
	if vd.screen() {
		slot := vd.slot(frameIndex)
		ret := vk.QueuePresent(b.presentQueue, &vk.PresentInfo{
			SType:              vk.StructureTypePresentInfo,
			WaitSemaphoreCount: 1,
			PWaitSemaphores:    []vk.Semaphore{slot.rendered},
			SwapchainCount:     1,
			PSwapchains:        []vk.Swapchain{vd.swapchain.handle},
			PImageIndices:      []uint32{slot.image},
		})
		switch ret {
		case vk.Success, vk.Suboptimal:
		case vk.ErrorOutOfDate:
			vd.outOfDate = true
			presentErr = fmt.Errorf("presenting %s: %w", view.Name, render.ErrOutOfDate)
		default:
			presentErr = b.fail(vkError(ret, "vkQueuePresent"))
		}
		ret = vk.QueueSubmit(b.presentQueue, 0, nil, slot.presentFence)
		if err := vkError(ret, "vkQueueSubmit"); err != nil && presentErr == nil {
			presentErr = b.fail(err)
		}
	}
	index := frameIndex
	if !vd.screen() {
		index = vd.current
	}
	if !vd.free.Release(index) {
		return fmt.Errorf("swap %s: slot %d was not acquired", view.Name, index)
	}
	return presentErr
}
