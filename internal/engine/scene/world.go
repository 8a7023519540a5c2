// Package scene holds the entity tree that feeds the renderer: transforms,
// shadow flags, render and light components, and per-entity processors.
package scene

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/logger"
	"github.com/Faultbox/renderlab/pkg/math"
)

// EntityID names an entity. Zero is the invalid entity and, as a parent,
// means "no parent".
type EntityID = render.EntityID

// NoEntity is the zero EntityID.
const NoEntity EntityID = 0

// ErrNoRenderer is returned by Frame before SetRenderer.
var ErrNoRenderer = errors.New("scene has no renderer")

// Renderer receives the components of the world. technique.Technique
// implements it.
type Renderer interface {
	AddRenderComponent(entity render.EntityID, rc *render.RenderComponent)
	AddLightComponent(entity render.EntityID, l *render.Light)
	Render() error
}

// Processor updates an entity once per World.Update.
type Processor interface {
	Process(w *World, id EntityID, absMicros, deltaMicros int64)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(w *World, id EntityID, absMicros, deltaMicros int64)

func (f ProcessorFunc) Process(w *World, id EntityID, absMicros, deltaMicros int64) {
	f(w, id, absMicros, deltaMicros)
}

type entity struct {
	name       string
	parent     EntityID
	children   []EntityID
	local      math.Mat4
	composite  math.Mat4
	castShadow bool
	renders    []*render.RenderComponent
	lights     []*render.Light
	processors []Processor
}

// Options configures a World.
type Options struct {
	ShadowSizes       render.ShadowSizes
	DepthBiasConstant float32
	DepthBiasSlope    float32
}

// DefaultOptions returns the default shadow sizes and depth bias.
func DefaultOptions() Options {
	return Options{
		ShadowSizes:       render.DefaultShadowSizes(),
		DepthBiasConstant: 3,
	}
}

// World owns every entity. It is not safe for concurrent use.
type World struct {
	opts     Options
	renderer Renderer
	graphics render.Graphics
	log      *zap.Logger
	now      func() time.Time

	entities map[EntityID]*entity
	order    []EntityID
	nextID   EntityID
	lights   []*render.Light

	depthBiasConstant float32
	depthBiasSlope    float32

	stats frameStats
}

// NewWorld creates an empty world. g receives the depth bias and reports
// GPU timings.
func NewWorld(g render.Graphics, opts Options) *World {
	return &World{
		opts:              opts,
		graphics:          g,
		log:               logger.Named("world"),
		now:               time.Now,
		entities:          make(map[EntityID]*entity),
		depthBiasConstant: opts.DepthBiasConstant,
		depthBiasSlope:    opts.DepthBiasSlope,
	}
}

// SetRenderer attaches the renderer that draws the world. Components added
// before the call are handed over in creation order.
func (w *World) SetRenderer(r Renderer) {
	w.renderer = r
	for _, id := range w.order {
		e := w.entities[id]
		for _, rc := range e.renders {
			r.AddRenderComponent(id, rc)
		}
		for _, l := range e.lights {
			r.AddLightComponent(id, l)
		}
	}
}

// AddEntity creates an entity under parent (NoEntity for a root). It
// inherits the parent's shadow flag.
func (w *World) AddEntity(name string, parent EntityID) (EntityID, error) {
	e := &entity{
		name:       name,
		parent:     parent,
		local:      math.Identity(),
		composite:  math.Identity(),
		castShadow: true,
	}
	if parent != NoEntity {
		p, ok := w.entities[parent]
		if !ok {
			return NoEntity, fmt.Errorf("adding %s: unknown parent %d", name, parent)
		}
		e.composite = p.composite
		e.castShadow = p.castShadow
	}

	w.nextID++
	id := w.nextID
	w.entities[id] = e
	w.order = append(w.order, id)
	if parent != NoEntity {
		w.entities[parent].children = append(w.entities[parent].children, id)
	}
	return id, nil
}

// MustAddEntity is AddEntity for scene setup code with known-good parents.
func (w *World) MustAddEntity(name string, parent EntityID) EntityID {
	id, err := w.AddEntity(name, parent)
	if err != nil {
		panic(err)
	}
	return id
}

func (w *World) get(id EntityID) *entity {
	e, ok := w.entities[id]
	if !ok {
		panic(fmt.Sprintf("scene: unknown entity %d", id))
	}
	return e
}

// Len returns the number of entities.
func (w *World) Len() int {
	return len(w.entities)
}

// Name returns the entity name.
func (w *World) Name(id EntityID) string {
	return w.get(id).name
}

// Parent returns the parent of id, or NoEntity for roots.
func (w *World) Parent(id EntityID) EntityID {
	return w.get(id).parent
}

// Children returns the direct children of id.
func (w *World) Children(id EntityID) []EntityID {
	return w.get(id).children
}

// Transform returns the local transform of id.
func (w *World) Transform(id EntityID) math.Mat4 {
	return w.get(id).local
}

// SetTransform replaces the local transform of id and recomputes the
// composite transforms of its subtree. Shadow maps that may see the change
// are marked dirty.
func (w *World) SetTransform(id EntityID, m math.Mat4) {
	e := w.get(id)
	e.local = m
	parent := math.Identity()
	if e.parent != NoEntity {
		parent = w.get(e.parent).composite
	}
	w.propagate(id, parent)

	if w.subtreeCastsShadow(id) {
		w.dirtyShadowMaps()
		return
	}
	w.walk(id, func(e *entity) {
		for _, l := range e.lights {
			l.SetDirty(true)
		}
	})
}

// subtreeCastsShadow reports whether id or a descendant draws meshes into
// shadow maps.
func (w *World) subtreeCastsShadow(id EntityID) bool {
	found := false
	w.walk(id, func(e *entity) {
		if e.castShadow && len(e.renders) > 0 {
			found = true
		}
	})
	return found
}

func (w *World) walk(id EntityID, fn func(*entity)) {
	e := w.get(id)
	fn(e)
	for _, c := range e.children {
		w.walk(c, fn)
	}
}

func (w *World) propagate(id EntityID, parent math.Mat4) {
	e := w.get(id)
	e.composite = parent.Mul(e.local)
	for _, c := range e.children {
		w.propagate(c, e.composite)
	}
}

// CompositeTransform returns parent composite x local for id.
func (w *World) CompositeTransform(id EntityID) math.Mat4 {
	return w.get(id).composite
}

// CastShadow reports whether id is drawn into shadow maps.
func (w *World) CastShadow(id EntityID) bool {
	return w.get(id).castShadow
}

// SetCastShadow sets the shadow flag of id and all its descendants.
func (w *World) SetCastShadow(id EntityID, cast bool) {
	w.walk(id, func(e *entity) { e.castShadow = cast })
	w.dirtyShadowMaps()
}

// dirtyShadowMaps marks every light that renders a shadow map.
func (w *World) dirtyShadowMaps() {
	for _, l := range w.lights {
		if l.CastShadow && l.ShadowView != nil {
			l.SetDirty(true)
		}
	}
}

// AddRenderComponent attaches rc to id and hands it to the renderer.
func (w *World) AddRenderComponent(id EntityID, rc *render.RenderComponent) {
	e := w.get(id)
	e.renders = append(e.renders, rc)
	if w.renderer != nil {
		w.renderer.AddRenderComponent(id, rc)
	}
}

// AddLightComponent creates a light on id. Shadow-casting directional and
// point lights get a shadow view sized from the world options.
func (w *World) AddLightComponent(id EntityID, name string, typ render.LightType, castShadow bool) *render.Light {
	e := w.get(id)
	l := render.NewLight(name, typ, castShadow, w.opts.ShadowSizes)
	e.lights = append(e.lights, l)
	w.lights = append(w.lights, l)
	if w.renderer != nil {
		w.renderer.AddLightComponent(id, l)
	}
	return l
}

// Lights returns every light in creation order.
func (w *World) Lights() []*render.Light {
	return w.lights
}

// AddProcessor attaches p to id.
func (w *World) AddProcessor(id EntityID, p Processor) {
	e := w.get(id)
	e.processors = append(e.processors, p)
}

// Update runs every processor in entity creation order, then recomputes
// all composite transforms.
func (w *World) Update(absMicros, deltaMicros int64) {
	start := w.now()
	for _, id := range w.order {
		for _, p := range w.entities[id].processors {
			p.Process(w, id, absMicros, deltaMicros)
		}
	}
	for _, id := range w.order {
		if w.entities[id].parent == NoEntity {
			w.propagate(id, math.Identity())
		}
	}
	w.stats.process += w.now().Sub(start)
}

// DepthBias returns the current shadow depth bias.
func (w *World) DepthBias() (constant, slope float32) {
	return w.depthBiasConstant, w.depthBiasSlope
}

// AdjustDepthBias adds delta to the constant depth bias. Shadow maps are
// re-rendered with the new value.
func (w *World) AdjustDepthBias(delta float32) {
	w.depthBiasConstant += delta
	w.dirtyShadowMaps()
	w.log.Info("depth bias", zap.Float32("constant", w.depthBiasConstant), zap.Float32("slope", w.depthBiasSlope))
}

// Frame renders one frame and accounts its timing.
func (w *World) Frame() error {
	w.graphics.SetDepthBias(w.depthBiasConstant, w.depthBiasSlope)

	if w.renderer == nil {
		return ErrNoRenderer
	}
	start := w.now()
	if err := w.renderer.Render(); err != nil {
		return err
	}
	end := w.now()

	w.stats.add(end.Sub(start), w.graphics.GPUFrameTime(), w.graphics.GPUFrameTime2())
	if w.stats.windowStart.IsZero() {
		w.stats.windowStart = start
	}
	if end.Sub(w.stats.windowStart) >= time.Second {
		w.stats.log(w.log)
		w.stats.reset(end)
	}
	return nil
}
