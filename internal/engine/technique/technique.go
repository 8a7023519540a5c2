// Package technique sequences one deferred-shading frame: uniform layout,
// shadow passes and the on-screen pass, on top of any render.Graphics.
package technique

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/geometry"
	"github.com/Faultbox/renderlab/internal/engine/lighting"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/logger"
	"github.com/Faultbox/renderlab/pkg/math"
)

// Names of the resources the technique creates.
const (
	CompositeMeshName     = "Composite Mesh"
	CompositeMaterialName = "Composite Material"
)

// ErrNoOnscreenView is returned by Build when no screen view was added.
var ErrNoOnscreenView = errors.New("no on-screen view")

// instance is one mesh drawn for one entity, with its object slot.
type instance struct {
	entity render.EntityID
	mesh   *render.Mesh
	offset uint32
	bounds lighting.AABB // mesh space
}

type lightEntry struct {
	entity render.EntityID
	light  *render.Light
}

type renderable struct {
	entity render.EntityID
	rc     *render.RenderComponent
}

// Technique drives a render.Graphics through build and per-frame rendering.
type Technique struct {
	g         render.Graphics
	entities  render.EntitySource
	numFrames int
	log       *zap.Logger

	onscreen    *render.View
	views       []*render.View
	renderables []renderable
	lights      []lightEntry

	frameData         []*render.UniformBuffer
	objectData        []*render.UniformBuffer
	frameAlignedSize  int
	objectAlignedSize int

	instances []instance
	composite *render.Mesh
	params    *lighting.FrameParams
	built     bool

	// per-frame scratch
	frameBytes  []byte
	objectBytes [][]byte
}

// New creates a technique rendering through g. entities resolves the
// transforms and shadow flags of the entities components are added for.
func New(g render.Graphics, entities render.EntitySource, numFrames int) *Technique {
	return &Technique{
		g:         g,
		entities:  entities,
		numFrames: numFrames,
		log:       logger.Named("technique"),
		params:    lighting.NewFrameParams(),
	}
}

// AddView registers a view. The first screen view becomes the on-screen
// view.
func (t *Technique) AddView(v *render.View) {
	t.views = append(t.views, v)
	if v.Type == render.ViewScreen && t.onscreen == nil {
		t.onscreen = v
		t.g.SetOnscreenView(v)
	}
}

// OnscreenView returns the view presented to the window.
func (t *Technique) OnscreenView() *render.View {
	return t.onscreen
}

// AddRenderComponent registers the meshes of rc as drawn for entity.
func (t *Technique) AddRenderComponent(entity render.EntityID, rc *render.RenderComponent) {
	t.renderables = append(t.renderables, renderable{entity: entity, rc: rc})
}

// AddLightComponent registers a light owned by entity, with its shadow view.
func (t *Technique) AddLightComponent(entity render.EntityID, l *render.Light) {
	t.lights = append(t.lights, lightEntry{entity: entity, light: l})
	if l.ShadowView != nil {
		t.AddView(l.ShadowView)
	}
}

// Lights returns the registered lights in registration order.
func (t *Technique) Lights() []*render.Light {
	out := make([]*render.Light, len(t.lights))
	for i, e := range t.lights {
		out[i] = e.light
	}
	return out
}

// FrameDataAlignedSize returns the aligned size of the frame block.
func (t *Technique) FrameDataAlignedSize() int { return t.frameAlignedSize }

// ObjectDataAlignedSize returns the stride of the object buffer.
func (t *Technique) ObjectDataAlignedSize() int { return t.objectAlignedSize }

// FrameData returns the frame uniform buffers, one per frame in flight.
func (t *Technique) FrameData() []*render.UniformBuffer { return t.frameData }

// ObjectData returns the object uniform buffers, one per frame in flight.
func (t *Technique) ObjectData() []*render.UniformBuffer { return t.objectData }

// CompositeMesh returns the light volume drawn by the lighting subpass.
func (t *Technique) CompositeMesh() *render.Mesh { return t.composite }

// ObjectOffsets returns the object buffer offset of every mesh instance in
// registration order.
func (t *Technique) ObjectOffsets() []uint32 {
	out := make([]uint32, len(t.instances))
	for i, in := range t.instances {
		out[i] = in.offset
	}
	return out
}

// Build creates every GPU resource. It runs once, before the first Render.
func (t *Technique) Build() error {
	if t.onscreen == nil {
		return ErrNoOnscreenView
	}
	for _, v := range t.views {
		if err := t.g.BuildView(v, t.numFrames); err != nil {
			return fmt.Errorf("building view %s: %w", v.Name, err)
		}
	}

	alignment := t.g.BufferAlignment()
	t.frameAlignedSize = render.Align(lighting.FrameParamsSize, alignment)
	t.objectAlignedSize = render.Align(lighting.ObjectParamsSize, alignment)

	t.instances = t.instances[:0]
	for _, r := range t.renderables {
		for _, m := range r.rc.Meshes {
			t.instances = append(t.instances, instance{
				entity: r.entity,
				mesh:   m,
				offset: uint32(len(t.instances) * t.objectAlignedSize),
				bounds: lighting.BoundsOf(m.Positions),
			})
		}
	}

	t.frameData = make([]*render.UniformBuffer, t.numFrames)
	t.objectData = make([]*render.UniformBuffer, t.numFrames)
	slots := max(len(t.instances), 1)
	for i := 0; i < t.numFrames; i++ {
		t.frameData[i] = render.NewUniformBuffer(fmt.Sprintf("Frame Data UniformBuffer %d", i), t.frameAlignedSize)
		t.objectData[i] = render.NewUniformBuffer(fmt.Sprintf("Object Data UniformBuffer %d", i), t.objectAlignedSize*slots)
		if err := t.g.BuildUniformBuffer(t.frameData[i]); err != nil {
			return fmt.Errorf("building frame data %d: %w", i, err)
		}
		if err := t.g.BuildUniformBuffer(t.objectData[i]); err != nil {
			return fmt.Errorf("building object data %d: %w", i, err)
		}
	}

	if len(t.lights) > lighting.MaxLights {
		t.log.Warn("too many lights, extra lights are ignored",
			zap.Int("lights", len(t.lights)), zap.Int("max", lighting.MaxLights))
	}
	var lights []*render.Light
	for _, e := range t.activeLights() {
		lights = append(lights, e.light)
	}
	for _, in := range t.instances {
		if err := t.g.BuildMesh(in.mesh, t.frameData, t.objectData, lights); err != nil {
			return fmt.Errorf("building mesh %s: %w", in.mesh.Name, err)
		}
	}

	t.composite = geometry.UnitCube(CompositeMeshName, render.NewMaterial(CompositeMaterialName, render.TechniqueDeferredComposite))
	if err := t.g.BuildMesh(t.composite, t.frameData, t.objectData, nil); err != nil {
		return fmt.Errorf("building composite mesh: %w", err)
	}
	t.onscreen.AddCompositeMesh(t.composite)

	t.objectBytes = make([][]byte, len(t.instances))
	t.built = true
	t.log.Info("technique built",
		zap.Int("views", len(t.views)),
		zap.Int("meshes", len(t.instances)),
		zap.Int("lights", len(t.lights)),
		zap.Int("frameAlignedSize", t.frameAlignedSize),
		zap.Int("objectAlignedSize", t.objectAlignedSize))
	return nil
}

// UpdateWindow moves and resizes the on-screen viewport.
func (t *Technique) UpdateWindow(x, y, width, height int) error {
	if t.onscreen == nil {
		return ErrNoOnscreenView
	}
	t.onscreen.ViewportPosition = math.Vec2{X: float32(x), Y: float32(y)}
	t.onscreen.SetExtent(width, height)
	if !t.built {
		return nil
	}
	return t.g.Resize(t.onscreen, width, height)
}

// activeLights returns the lights that fit in the frame block.
func (t *Technique) activeLights() []lightEntry {
	if len(t.lights) > lighting.MaxLights {
		return t.lights[:lighting.MaxLights]
	}
	return t.lights
}
