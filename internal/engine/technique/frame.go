package technique

import (
	"fmt"

	"github.com/Faultbox/renderlab/internal/engine/lighting"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/pkg/math"
)

// Render draws one frame: dirty shadow maps first, then the on-screen
// geometry and lighting passes, then presents.
func (t *Technique) Render() error {
	if !t.built {
		return fmt.Errorf("technique: %w", render.ErrNotBuilt)
	}

	frame, err := t.g.AcquireBackBuffer(t.onscreen)
	if err != nil {
		return fmt.Errorf("acquiring %s: %w", t.onscreen.Name, err)
	}
	lastView := t.onscreen

	t.prepareFrame()
	if err := t.writeFrame(frame); err != nil {
		return err
	}

	lights := t.activeLights()
	casters := t.hasShadowCasters()
	for i, e := range lights {
		if err := render.UpdateLightInfo(t.g, t.frameData[frame], i, len(lights)); err != nil {
			return fmt.Errorf("light info %d: %w", i, err)
		}
		if !casters || !e.light.CastShadow || e.light.ShadowView == nil || !e.light.Dirty() {
			continue
		}
		e.light.ShadowView.LightIndex = i
		if err := t.renderShadow(e.light.ShadowView, frame, lastView); err != nil {
			return fmt.Errorf("shadow pass %s: %w", e.light.Name, err)
		}
		lastView = e.light.ShadowView
		e.light.SetDirty(false)
	}

	if err := t.renderOnscreen(frame, lastView); err != nil {
		return fmt.Errorf("on-screen pass: %w", err)
	}
	return nil
}

// prepareFrame computes the frame block, the object slots and the
// composite light list for this frame.
func (t *Technique) prepareFrame() {
	vp := t.onscreen.ViewProjection()
	for i, in := range t.instances {
		mat := in.mesh.Material
		params := lighting.ObjectParams{
			Model:          t.entities.CompositeTransform(in.entity),
			ViewProjection: vp,
		}
		if mat != nil {
			params.Albedo = mat.Albedo
			params.Emissive = mat.Emissive
			params.Metallic = mat.Metallic
			params.Roughness = mat.Roughness
			params.LightingEnabled = mat.Lighting
		}
		t.objectBytes[i] = params.Bytes()
	}

	t.params.Clear()
	t.params.ViewPosition = t.onscreen.Position()
	t.onscreen.CompositeLights = t.onscreen.CompositeLights[:0]

	var sceneBounds *lighting.AABB
	for i, e := range t.activeLights() {
		l := e.light
		world := t.entities.CompositeTransform(e.entity)
		cl := render.CompositeLight{Index: i, Color: l.Diffuse, Shadow: l.ShadowView}

		if l.Type == render.LightDirectional {
			if sceneBounds == nil {
				b := t.worldBounds()
				sceneBounds = &b
			}
			dir := world.MulVec4(l.Direction.Vec4(0)).XYZ().Normalize()
			t.params.AddLight(lighting.DirectionalLightBlock(dir, l.Diffuse, *sceneBounds))
			cl.Position = dir
			cl.Directional = true
		} else {
			pos := l.WorldPosition(world)
			t.params.AddLight(lighting.PointLightBlock(pos, l.Diffuse))
			cl.Position = pos
		}
		t.onscreen.CompositeLights = append(t.onscreen.CompositeLights, cl)
	}
	t.frameBytes = t.params.Bytes()
}

func (t *Technique) hasShadowCasters() bool {
	for _, in := range t.instances {
		if t.entities.CastShadow(in.entity) {
			return true
		}
	}
	return false
}

// worldBounds returns the world-space bounds of every shadow-casting mesh.
func (t *Technique) worldBounds() lighting.AABB {
	b := lighting.EmptyAABB()
	for _, in := range t.instances {
		if !t.entities.CastShadow(in.entity) {
			continue
		}
		b = b.Union(in.bounds.Transform(t.entities.CompositeTransform(in.entity)))
	}
	if b.Empty() {
		return lighting.AABB{Min: math.Vec3{X: -1, Y: -1, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}
	}
	return b
}

// writeFrame uploads this frame's blocks into the buffers of frameIndex.
// The on-screen acquire waited for the GPU to release them.
func (t *Technique) writeFrame(frameIndex uint32) error {
	if err := t.g.UpdateUniformData(t.frameData[frameIndex], 0, t.frameBytes); err != nil {
		return fmt.Errorf("frame data: %w", err)
	}
	for i, in := range t.instances {
		if err := t.g.UpdateUniformData(t.objectData[frameIndex], int(in.offset), t.objectBytes[i]); err != nil {
			return fmt.Errorf("object data %s: %w", in.mesh.Name, err)
		}
	}
	return nil
}

// renderShadow draws the shadow casters into view with the buffers of the
// on-screen frame. The slot acquired here only orders reuse of the view's
// own command buffer.
func (t *Technique) renderShadow(view *render.View, frame uint32, lastView *render.View) error {
	if _, err := t.g.AcquireBackBuffer(view); err != nil {
		return err
	}
	fd, od := t.frameData[frame], t.objectData[frame]
	if err := t.g.RenderBegin(view, lastView, fd, od, frame); err != nil {
		return err
	}
	if err := t.renderMeshes(view, frame, false); err != nil {
		return err
	}
	if err := t.g.RenderEnd(view, lastView, fd, od, frame); err != nil {
		return err
	}
	return t.g.SwapBackBuffer(view, frame)
}

func (t *Technique) renderOnscreen(frame uint32, lastView *render.View) error {
	view := t.onscreen
	fd, od := t.frameData[frame], t.objectData[frame]
	if err := t.g.RenderBegin(view, lastView, fd, od, frame); err != nil {
		return err
	}
	if t.g.DepthPrepass() {
		if err := t.renderMeshes(view, frame, true); err != nil {
			return err
		}
		if err := t.g.EndDepthPrepass(view, frame); err != nil {
			return err
		}
	}
	if err := t.renderMeshes(view, frame, false); err != nil {
		return err
	}
	if err := t.g.RenderEnd(view, lastView, fd, od, frame); err != nil {
		return err
	}
	return t.g.SwapBackBuffer(view, frame)
}

// renderMeshes draws every instance into view. Shadow views skip entities
// that do not cast shadows.
func (t *Technique) renderMeshes(view *render.View, frame uint32, depthPrepass bool) error {
	shadow := view.Type.IsShadow()
	for _, in := range t.instances {
		if shadow && !t.entities.CastShadow(in.entity) {
			continue
		}
		if err := t.g.BindPipeline(in.mesh, view, frame, depthPrepass); err != nil {
			return err
		}
		if err := t.g.Render(in.mesh, in.offset, view, frame, depthPrepass); err != nil {
			return err
		}
	}
	return nil
}
