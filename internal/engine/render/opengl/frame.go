package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/renderlab/internal/engine/lighting"
	"github.com/Faultbox/renderlab/internal/engine/render"
)

// compositeUniforms packs a composite light the way composite.frag reads
// it: color with the extent width in w, position with the height in w.
func compositeUniforms(light render.CompositeLight, width, height int32) (color, position [4]float32) {
	color = [4]float32{light.Color.X, light.Color.Y, light.Color.Z, float32(width)}
	position = [4]float32{light.Position.X, light.Position.Y, light.Position.Z, float32(height)}
	return color, position
}

// AcquireBackBuffer takes the oldest free slot of view. The on-screen view
// reports render.ErrOutOfDate when the drawable no longer matches its
// extent.
func (b *Backend) AcquireBackBuffer(view *render.View) (uint32, error) {
	vd, err := b.viewData(view)
	if err != nil {
		return 0, err
	}
	if vd.screen() {
		if w, h := b.opts.Window.DrawableSize(); w > 0 && h > 0 && (int32(w) != vd.width || int32(h) != vd.height) {
			return 0, fmt.Errorf("acquiring %s: %w", view.Name, render.ErrOutOfDate)
		}
	}
	frame, ok := vd.slots.Acquire()
	if !ok {
		return 0, fmt.Errorf("acquiring %s: no free frame slot", view.Name)
	}
	vd.current = frame
	return frame, nil
}

// RenderBegin binds and clears the view's framebuffer and binds the frame
// block.
func (b *Backend) RenderBegin(view, lastView *render.View, frameData, objectData *render.UniformBuffer, frameIndex uint32) error {
	vd, err := b.viewData(view)
	if err != nil {
		return err
	}
	if vd.recording {
		return fmt.Errorf("render begin %s: already recording", view.Name)
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
		b.readTimestamps()
		gl.QueryCounter(b.queries[0], gl.TIMESTAMP)
		vd.gbuffer.bind()
	} else {
		vd.shadow.bind()
	}
	gl.BindBufferBase(gl.UNIFORM_BUFFER, frameBinding, fd.ubo)

	vd.objectData = od
	vd.recording = true
	vd.subpass = 0
	vd.bound, vd.material = nil, nil
	return nil
}

// readTimestamps collects the queries of the previous on-screen frame.
func (b *Backend) readTimestamps() {
	if !b.queriesWritten {
		return
	}
	for i, q := range b.queries {
		gl.GetQueryObjectui64v(q, gl.QUERY_RESULT, &b.timestamps[i])
	}
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

// EndDepthPrepass moves on to the G-buffer fill. The depth buffer is kept;
// the fill tests LEQUAL against it.
func (b *Backend) EndDepthPrepass(view *render.View, frameIndex uint32) error {
	vd, err := b.recording(view)
	if err != nil {
		return err
	}
	if !vd.screen() || !b.opts.DepthPrepass || vd.subpass != 0 {
		return fmt.Errorf("end depth prepass %s: not in a depth pre-pass", view.Name)
	}
	vd.subpass++
	vd.bound, vd.material = nil, nil
	return nil
}

// BindPipeline selects the program and state built for mesh in view and
// binds the material maps.
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
	if vd.bound != mp.pipeline {
		gl.UseProgram(mp.pipeline.program.id)
		mp.pipeline.state.apply(b.depthBiasConstant, b.depthBiasSlope)
	}
	if vd.material != mat {
		mat.bindTextures()
		mat.program.setInt("uTextureMask", mat.mask)
	}
	if view.Type.IsShadow() {
		mp.pipeline.program.setInt("uLightIndex", int32(view.LightIndex))
	}
	vd.bound, vd.material = mp.pipeline, mat
	return nil
}

// Render binds the object slot at objectOffset and draws mesh.
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
	if err := b.bindObject(vd, objectOffset); err != nil {
		return err
	}

	gl.BindVertexArray(md.vao)
	if !md.normals {
		gl.VertexAttrib3f(locNormal, 0, 0, 1)
	}
	if md.indexCount > 0 {
		gl.DrawElements(gl.TRIANGLES, md.indexCount, gl.UNSIGNED_INT, nil)
	} else {
		gl.DrawArrays(gl.TRIANGLES, 0, md.vertexCount)
	}
	gl.BindVertexArray(0)
	return nil
}

// bindObject points the object block at one slot of the object buffer
// bound by RenderBegin.
func (b *Backend) bindObject(vd *viewData, offset uint32) error {
	od := vd.objectData
	if int(offset)+lighting.ObjectParamsSize > od.size {
		return fmt.Errorf("render %s: object offset %d past buffer of %d", vd.view.Name, offset, od.size)
	}
	gl.BindBufferRange(gl.UNIFORM_BUFFER, objectBinding, od.ubo, int(offset), lighting.ObjectParamsSize)
	return nil
}

// RenderEnd composites every light into the default framebuffer for
// on-screen views. GL orders the work itself, so lastView is not waited on.
func (b *Backend) RenderEnd(view, lastView *render.View, frameData, objectData *render.UniformBuffer, frameIndex uint32) error {
	vd, err := b.recording(view)
	if err != nil {
		return err
	}
	if vd.screen() {
		gl.QueryCounter(b.queries[1], gl.TIMESTAMP)
		if err := b.composite(vd, frameIndex); err != nil {
			vd.recording = false
			return err
		}
		gl.QueryCounter(b.queries[2], gl.TIMESTAMP)
		b.queriesWritten = true
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	vd.recording = false
	return nil
}

func (b *Backend) composite(vd *viewData, frameIndex uint32) error {
	view := vd.view
	vd.subpass++

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, vd.width, vd.height)
	gl.ColorMask(true, true, true, true)
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	vd.gbuffer.bindTextures()

	for _, light := range view.CompositeLights {
		kind := shadowKind(light.Shadow)
		if kind != shadowNone {
			sd, err := b.viewData(light.Shadow)
			if err != nil {
				return err
			}
			unit := uint32(unitShadowMap)
			if kind == shadowCube {
				unit = unitShadowCube
			}
			sd.shadow.bindTexture(unit)
		}
		color, position := compositeUniforms(light, vd.width, vd.height)
		for _, mesh := range view.CompositeMeshes {
			if err := b.BindPipeline(mesh, view, frameIndex, false); err != nil {
				return err
			}
			prog := vd.bound.program
			prog.setVec4("uLightColor", color)
			prog.setVec4("uLightPosition", position)
			prog.setInt("uLightIndex", int32(light.Index))
			prog.setInt("uShadowKind", kind)
			// The lighting pass covers the screen with one triangle.
			gl.BindVertexArray(b.fullscreen)
			gl.DrawArrays(gl.TRIANGLES, 0, 3)
		}
	}
	gl.BindVertexArray(0)
	return nil
}

// SwapBackBuffer presents on-screen views and returns the slot to the ring.
func (b *Backend) SwapBackBuffer(view *render.View, frameIndex uint32) error {
	vd, err := b.viewData(view)
	if err != nil {
		return err
	}
	if vd.recording {
		return fmt.Errorf("swap %s: still recording", view.Name)
	}
	if vd.screen() {
		b.opts.Window.GLSwap()
	}
	if slot := vd.slot(frameIndex); !vd.slots.Release(slot) {
		return fmt.Errorf("swap %s: slot %d was not acquired", view.Name, slot)
	}
	return nil
}
