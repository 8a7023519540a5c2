package render

import (
	"github.com/Faultbox/renderlab/pkg/math"
)

// EntityID names a scene entity. The zero value is not a valid entity.
type EntityID uint32

// EntitySource resolves entity state the technique needs every frame.
type EntitySource interface {
	CompositeTransform(id EntityID) math.Mat4
	CastShadow(id EntityID) bool
}

// LightType is the shape of a light.
type LightType int

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return "unknown"
}

// Default shadow map sizes in pixels.
const (
	DefaultShadowMapSize  = 2048
	DefaultShadowCubeSize = 1024
)

// ShadowSizes configures the shadow views created for lights.
type ShadowSizes struct {
	Map  int // directional
	Cube int // point
}

// DefaultShadowSizes returns 2048 for directional and 1024 for point lights.
func DefaultShadowSizes() ShadowSizes {
	return ShadowSizes{Map: DefaultShadowMapSize, Cube: DefaultShadowCubeSize}
}

// Light is the light component data. Position is in the owning entity's
// local space.
type Light struct {
	Name string
	Type LightType

	Position    math.Vec3
	Direction   math.Vec3
	Ambient     math.Vec3
	Diffuse     math.Vec3
	Specular    math.Vec3
	Attenuation math.Vec3

	InnerConeAngle float32
	OuterConeAngle float32

	CastShadow bool
	ShadowView *View

	clean bool
}

// NewLight creates a dirty light. Shadow-casting directional and point
// lights get a shadow view sized from sizes.
func NewLight(name string, typ LightType, castShadow bool, sizes ShadowSizes) *Light {
	l := &Light{
		Name:           name,
		Type:           typ,
		Direction:      math.Vec3{Z: -1},
		Ambient:        math.Vec3{X: 0.2, Y: 0.2, Z: 0.2},
		Diffuse:        math.Vec3{X: 0.8, Y: 0.8, Z: 0.8},
		Specular:       math.Vec3{X: 0.2, Y: 0.2, Z: 0.2},
		Attenuation:    math.Vec3{X: 1},
		OuterConeAngle: 90,
		CastShadow:     castShadow,
	}
	if castShadow {
		switch typ {
		case LightDirectional:
			l.ShadowView = NewView(name+" shadow view", ViewShadow)
			l.ShadowView.SetExtent(sizes.Map, sizes.Map)
		case LightPoint:
			l.ShadowView = NewView(name+" shadow cube view", ViewShadowCube)
			l.ShadowView.SetExtent(sizes.Cube, sizes.Cube)
		}
	}
	return l
}

// Dirty reports whether the shadow map must be re-rendered.
func (l *Light) Dirty() bool {
	return !l.clean
}

// SetDirty marks the shadow map stale (true) or current (false).
func (l *Light) SetDirty(dirty bool) {
	l.clean = !dirty
}

// WorldPosition transforms the light position by the entity transform.
func (l *Light) WorldPosition(composite math.Mat4) math.Vec3 {
	return composite.MulVec4(l.Position.Vec4(1)).XYZ()
}

// RenderComponent groups the meshes drawn for one entity.
type RenderComponent struct {
	Name   string
	Meshes []*Mesh
}

// NewRenderComponent creates a component holding meshes.
func NewRenderComponent(name string, meshes ...*Mesh) *RenderComponent {
	return &RenderComponent{Name: name, Meshes: meshes}
}

// AddMesh appends a mesh.
func (rc *RenderComponent) AddMesh(m *Mesh) {
	rc.Meshes = append(rc.Meshes, m)
}
