package render

import "github.com/Faultbox/renderlab/pkg/math"

// ViewType selects the render target of a view.
type ViewType int

const (
	ViewScreen ViewType = iota
	ViewShadow
	ViewShadowCube
	// ViewReflection is reserved; backends never build it.
	ViewReflection
)

func (t ViewType) String() string {
	switch t {
	case ViewScreen:
		return "screen"
	case ViewShadow:
		return "shadow"
	case ViewShadowCube:
		return "shadow-cube"
	case ViewReflection:
		return "reflection"
	}
	return "unknown"
}

// IsShadow reports whether the view renders a depth-only shadow map.
func (t ViewType) IsShadow() bool {
	return t == ViewShadow || t == ViewShadowCube
}

// CompositeLight is the per-light data pushed to the composite pass.
type CompositeLight struct {
	Index    int
	Color    math.Vec3
	Position math.Vec3 // world space; the light direction for directional lights

	Directional bool
	// Shadow is the light's shadow view, nil when it casts none.
	Shadow *View
}

// View is one render target with its camera parameters.
type View struct {
	Resource

	Name string
	Type ViewType

	FieldOfView float32 // degrees
	NearClip    float32
	FarClip     float32

	ViewportPosition math.Vec2
	ViewportSize     math.Vec2

	ViewMatrix math.Mat4

	// CompositeMeshes are drawn by the lighting subpass of on-screen views.
	CompositeMeshes []*Mesh
	// CompositeLights is refreshed by the technique every frame.
	CompositeLights []CompositeLight

	// LightIndex is the frame block slot of the light a shadow view renders
	// for. The technique sets it before each shadow pass.
	LightIndex int
}

// NewView creates a view with a 45 degree field of view, clip planes
// 0.1..200 and a 1x1 viewport.
func NewView(name string, typ ViewType) *View {
	return &View{
		Name:         name,
		Type:         typ,
		FieldOfView:  45,
		NearClip:     0.1,
		FarClip:      200,
		ViewportSize: math.Vec2{X: 1, Y: 1},
		ViewMatrix:   math.Identity(),
	}
}

// Extent returns the viewport size in pixels.
func (v *View) Extent() (width, height int) {
	return int(v.ViewportSize.X), int(v.ViewportSize.Y)
}

// SetExtent sets the viewport size in pixels.
func (v *View) SetExtent(width, height int) {
	v.ViewportSize = math.Vec2{X: float32(width), Y: float32(height)}
}

// Projection returns a 0..1 depth perspective projection for the viewport.
func (v *View) Projection() math.Mat4 {
	aspect := float32(1)
	if v.ViewportSize.Y != 0 {
		aspect = v.ViewportSize.X / v.ViewportSize.Y
	}
	return math.PerspectiveZO(math.Radians(v.FieldOfView), aspect, v.NearClip, v.FarClip)
}

// ViewProjection returns Projection * ViewMatrix.
func (v *View) ViewProjection() math.Mat4 {
	return v.Projection().Mul(v.ViewMatrix)
}

// Position returns the camera position in world space.
func (v *View) Position() math.Vec3 {
	return v.ViewMatrix.Inverse().Translation()
}

// AddCompositeMesh appends a mesh to the lighting subpass.
func (v *View) AddCompositeMesh(m *Mesh) {
	v.CompositeMeshes = append(v.CompositeMeshes, m)
}
