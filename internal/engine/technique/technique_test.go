package technique

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/renderlab/internal/engine/geometry"
	"github.com/Faultbox/renderlab/internal/engine/lighting"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/render/headless"
	"github.com/Faultbox/renderlab/pkg/math"
)

type entities struct {
	transforms map[render.EntityID]math.Mat4
	noShadow   map[render.EntityID]bool
}

func newEntities() *entities {
	return &entities{
		transforms: make(map[render.EntityID]math.Mat4),
		noShadow:   make(map[render.EntityID]bool),
	}
}

func (e *entities) CompositeTransform(id render.EntityID) math.Mat4 {
	if m, ok := e.transforms[id]; ok {
		return m
	}
	return math.Identity()
}

func (e *entities) CastShadow(id render.EntityID) bool {
	return !e.noShadow[id]
}

type scene struct {
	backend  *headless.Backend
	entities *entities
	tech     *Technique
	screen   *render.View
}

func newScene(t *testing.T, frames int, opts headless.Options) *scene {
	t.Helper()
	b := headless.New(opts)
	require.NoError(t, b.Initialize(frames))
	ents := newEntities()
	tech := New(b, ents, frames)

	screen := render.NewView("Main View", render.ViewScreen)
	screen.SetExtent(1200, 800)
	tech.AddView(screen)
	return &scene{backend: b, entities: ents, tech: tech, screen: screen}
}

func litMaterial(name string) *render.Material {
	return render.NewMaterial(name, render.TechniqueDeferredLit)
}

func (s *scene) addBoxes(n int) {
	for i := 0; i < n; i++ {
		id := render.EntityID(100 + i)
		mesh := geometry.Box("box", math.Vec3{X: 1, Y: 1, Z: 1}, litMaterial("box"))
		s.tech.AddRenderComponent(id, render.NewRenderComponent("box", mesh))
		s.entities.transforms[id] = math.Translate(float32(i)*3, 0, 0)
	}
}

func (s *scene) addPointLight(id render.EntityID, castShadow bool) *render.Light {
	l := render.NewLight(fmt.Sprintf("light %d", id), render.LightPoint, castShadow, render.DefaultShadowSizes())
	l.Position = math.Vec3{Y: 5}
	s.tech.AddLightComponent(id, l)
	return l
}

func TestObjectBufferSizes(t *testing.T) {
	s := newScene(t, 2, headless.Options{Alignment: 256})
	s.addBoxes(3)
	require.NoError(t, s.tech.Build())

	aligned := render.Align(lighting.ObjectParamsSize, 256)
	assert.Equal(t, aligned, s.tech.ObjectDataAlignedSize())
	assert.Equal(t, render.Align(lighting.FrameParamsSize, 256), s.tech.FrameDataAlignedSize())

	total := 0
	require.Len(t, s.tech.ObjectData(), 2)
	for _, ub := range s.tech.ObjectData() {
		total += ub.Size
	}
	assert.Equal(t, 2*aligned*3, total)
	assert.Equal(t, "Object Data UniformBuffer 1", s.tech.ObjectData()[1].Name)
	assert.Equal(t, "Frame Data UniformBuffer 0", s.tech.FrameData()[0].Name)
}

func TestObjectOffsets(t *testing.T) {
	for _, alignment := range []int{1, 64, 256} {
		s := newScene(t, 2, headless.Options{Alignment: alignment})
		s.addBoxes(4)
		require.NoError(t, s.tech.Build())

		offsets := s.tech.ObjectOffsets()
		require.Len(t, offsets, 4)
		stride := uint32(s.tech.ObjectDataAlignedSize())
		for i, off := range offsets {
			assert.Zero(t, off%uint32(alignment))
			if i > 0 {
				assert.Greater(t, off, offsets[i-1])
				assert.GreaterOrEqual(t, off-offsets[i-1], uint32(lighting.ObjectParamsSize), "slots overlap")
			}
			assert.LessOrEqual(t, int(off+stride), s.tech.ObjectData()[0].Size)
		}
	}
}

func TestCompositeMesh(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	require.NoError(t, s.tech.Build())

	cm := s.tech.CompositeMesh()
	require.NotNil(t, cm)
	assert.Equal(t, CompositeMeshName, cm.Name)
	assert.Equal(t, CompositeMaterialName, cm.Material.Name)
	assert.Equal(t, render.TechniqueDeferredComposite, cm.Material.Technique)
	assert.Equal(t, 8, cm.VertexCount())
	assert.Equal(t, geometry.UnitCubeIndices, cm.Indices)
	assert.Equal(t, []*render.Mesh{cm}, s.screen.CompositeMeshes)
}

func TestTwoShadowLights(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(2)
	a := s.addPointLight(1, true)
	b := s.addPointLight(2, true)
	require.NoError(t, s.tech.Build())
	require.True(t, a.Dirty())
	require.True(t, b.Dirty())

	require.NoError(t, s.tech.Render())
	subs := s.backend.Submissions()
	require.Len(t, subs, 3)
	assert.Equal(t, render.ViewShadowCube, subs[0].Type)
	assert.Equal(t, render.ViewShadowCube, subs[1].Type)
	assert.Equal(t, render.ViewScreen, subs[2].Type)

	// Each pass waits on the one before it.
	assert.Equal(t, "Main View", subs[0].WaitsOn)
	assert.Equal(t, subs[0].View, subs[1].WaitsOn)
	assert.Equal(t, subs[1].View, subs[2].WaitsOn)
	assert.True(t, subs[2].Presented)
	assert.Len(t, subs[2].Composite, 2)

	assert.False(t, a.Dirty())
	assert.False(t, b.Dirty())

	s.backend.ResetSubmissions()
	require.NoError(t, s.tech.Render())
	assert.Zero(t, s.backend.CountSubmissions(render.ViewShadowCube))
	assert.Equal(t, 1, s.backend.CountSubmissions(render.ViewScreen))
	assert.False(t, a.Dirty())

	// Invalidating one light re-renders only its map.
	a.SetDirty(true)
	s.backend.ResetSubmissions()
	require.NoError(t, s.tech.Render())
	assert.Equal(t, 1, s.backend.CountSubmissions(render.ViewShadowCube))
	assert.Equal(t, a.ShadowView.Name, s.backend.Submissions()[0].View)
}

func TestNonCastingLight(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	l := s.addPointLight(1, false)
	require.Nil(t, l.ShadowView)
	require.NoError(t, s.tech.Build())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.tech.Render())
	}
	assert.Zero(t, s.backend.CountSubmissions(render.ViewShadowCube))
	assert.Zero(t, s.backend.CountSubmissions(render.ViewShadow))
	assert.Equal(t, 3, s.backend.CountSubmissions(render.ViewScreen))
}

func TestNoShadowCasters(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	s.entities.noShadow[100] = true
	l := s.addPointLight(1, true)
	require.NoError(t, s.tech.Build())

	require.NoError(t, s.tech.Render())
	assert.Zero(t, s.backend.CountSubmissions(render.ViewShadowCube))
	assert.Len(t, s.backend.Submissions()[0].Composite, 1, "the light still shades")
	assert.True(t, l.Dirty())
}

func TestShadowPassSkipsNonCasters(t *testing.T) {
	s := newScene(t, 1, headless.Options{})
	s.addBoxes(3)
	s.entities.noShadow[101] = true
	s.addPointLight(1, true)
	require.NoError(t, s.tech.Build())
	require.NoError(t, s.tech.Render())

	subs := s.backend.Submissions()
	require.Len(t, subs, 2)
	assert.Len(t, subs[0].Draws, 2)
	for _, d := range subs[0].Draws {
		assert.Equal(t, render.ShadowCubeMaterialName, d.Material)
	}
	offsets := s.tech.ObjectOffsets()
	assert.Equal(t, offsets[0], subs[0].Draws[0].ObjectOffset)
	assert.Equal(t, offsets[2], subs[0].Draws[1].ObjectOffset)
}

func TestDepthPrepassFrame(t *testing.T) {
	s := newScene(t, 2, headless.Options{DepthPrepass: true})
	s.addBoxes(2)
	require.NoError(t, s.tech.Build())
	require.NoError(t, s.tech.Render())

	subs := s.backend.Submissions()
	require.Len(t, subs, 1)
	draws := subs[0].Draws
	require.Len(t, draws, 4)
	assert.Equal(t, render.DepthPrepassMaterialName, draws[0].Material)
	assert.Equal(t, render.DepthPrepassMaterialName, draws[1].Material)
	assert.Equal(t, 1, draws[2].Subpass)
	assert.Equal(t, 1, draws[3].Subpass)
}

func TestFramesAlternate(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	require.NoError(t, s.tech.Build())

	var frames []uint32
	for i := 0; i < 4; i++ {
		require.NoError(t, s.tech.Render())
		subs := s.backend.Submissions()
		frames = append(frames, subs[len(subs)-1].FrameIndex)
	}
	assert.Equal(t, []uint32{0, 1, 0, 1}, frames)
}

func TestUniformContents(t *testing.T) {
	s := newScene(t, 1, headless.Options{Alignment: 256})
	s.addBoxes(2)
	s.addPointLight(1, true)
	s.addPointLight(2, false)
	require.NoError(t, s.tech.Build())
	require.NoError(t, s.tech.Render())

	fd, ok := s.backend.UniformData(s.tech.FrameData()[0])
	require.True(t, ok)
	// The last light written is index 1 of 2.
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0}, fd[:8])

	od, ok := s.backend.UniformData(s.tech.ObjectData()[0])
	require.True(t, ok)
	want := lighting.ObjectParams{
		Model:           math.Translate(3, 0, 0),
		ViewProjection:  s.screen.ViewProjection(),
		Albedo:          math.Vec4{1, 1, 1, 1},
		Metallic:        1,
		Roughness:       1,
		LightingEnabled: true,
	}.Bytes()
	off := int(s.tech.ObjectOffsets()[1])
	assert.Equal(t, want, od[off:off+lighting.ObjectParamsSize])
}

func TestRenderBeforeBuild(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	assert.ErrorIs(t, s.tech.Render(), render.ErrNotBuilt)

	empty := New(headless.New(headless.Options{}), newEntities(), 2)
	assert.ErrorIs(t, empty.Build(), ErrNoOnscreenView)
}

func TestUpdateWindow(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	require.NoError(t, s.tech.Build())
	created := s.backend.Stats().SwapchainCreates

	require.NoError(t, s.tech.UpdateWindow(0, 0, 1200, 800))
	assert.Equal(t, created, s.backend.Stats().SwapchainCreates)

	require.NoError(t, s.tech.UpdateWindow(10, 20, 800, 600))
	assert.Equal(t, created+1, s.backend.Stats().SwapchainCreates)
	assert.Equal(t, math.Vec2{X: 10, Y: 20}, s.screen.ViewportPosition)
	w, h := s.screen.Extent()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
	require.NoError(t, s.tech.Render())
}

func TestDirectionalLight(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(2)
	sun := render.NewLight("sun", render.LightDirectional, true, render.DefaultShadowSizes())
	sun.Direction = lighting.SunDirection(0, 45)
	s.tech.AddLightComponent(1, sun)
	require.NoError(t, s.tech.Build())
	require.NoError(t, s.tech.Render())

	assert.Equal(t, 1, s.backend.CountSubmissions(render.ViewShadow))
	cl := s.screen.CompositeLights
	require.Len(t, cl, 1)
	assert.True(t, cl[0].Directional)
	assert.Same(t, sun.ShadowView, cl[0].Shadow)
	assert.InDelta(t, 1, cl[0].Position.Length(), 1e-5)
}

func TestShadowPassUsesOnscreenFrame(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	l := s.addPointLight(1, true)
	require.NoError(t, s.tech.Build())

	require.NoError(t, s.tech.Render())
	require.NoError(t, s.tech.Render())
	s.backend.ResetSubmissions()

	// The shadow ring was used once, the screen ring twice: the rings no
	// longer line up.
	l.SetDirty(true)
	require.NoError(t, s.tech.Render())

	subs := s.backend.Submissions()
	require.Len(t, subs, 2)
	shadow, screen := subs[0], subs[1]
	assert.Equal(t, render.ViewShadowCube, shadow.Type)
	assert.Equal(t, uint32(0), screen.FrameIndex)
	assert.Equal(t, screen.FrameIndex, shadow.FrameIndex)
	assert.Equal(t, uint32(1), shadow.Slot)
}

func TestShadowPassLightIndex(t *testing.T) {
	s := newScene(t, 2, headless.Options{})
	s.addBoxes(1)
	s.addPointLight(1, true)
	s.addPointLight(2, false)
	s.addPointLight(3, true)
	require.NoError(t, s.tech.Build())
	require.NoError(t, s.tech.Render())

	var indices []int
	for _, sub := range s.backend.Submissions() {
		if sub.Type.IsShadow() {
			indices = append(indices, sub.LightIndex)
		}
	}
	assert.Equal(t, []int{0, 2}, indices)
}
