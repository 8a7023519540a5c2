package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

type fixture struct {
	b       *Backend
	screen  *render.View
	frame   []*render.UniformBuffer
	object  []*render.UniformBuffer
	lights  []*render.Light
	texture *render.Texture
}

func newFixture(t *testing.T, frames int, opts Options) *fixture {
	t.Helper()
	b := New(opts)
	require.NoError(t, b.Initialize(frames))

	f := &fixture{b: b, screen: render.NewView("screen", render.ViewScreen)}
	f.screen.SetExtent(1200, 800)
	b.SetOnscreenView(f.screen)
	require.NoError(t, b.BuildView(f.screen, frames))

	for i := 0; i < frames; i++ {
		fd := render.NewUniformBuffer("frame", 1024)
		od := render.NewUniformBuffer("object", 1024)
		require.NoError(t, b.BuildUniformBuffer(fd))
		require.NoError(t, b.BuildUniformBuffer(od))
		f.frame = append(f.frame, fd)
		f.object = append(f.object, od)
	}

	light := render.NewLight("bulb", render.LightPoint, true, render.DefaultShadowSizes())
	require.NoError(t, b.BuildView(light.ShadowView, frames))
	f.lights = []*render.Light{light}
	f.texture = render.NewTexture("brick.png", 2, 2, make([]byte, 16))
	return f
}

func (f *fixture) mesh(name string) *render.Mesh {
	m := render.NewMesh(name)
	m.Positions = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	m.Normals = []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}
	m.Indices = []uint32{0, 1, 2}
	m.Material = render.NewMaterial(name+" material", render.TechniqueDeferredLit)
	return m
}

func TestRingPerView(t *testing.T) {
	for _, n := range []int{1, 2} {
		f := newFixture(t, n, Options{})
		var acquired []uint32
		for i := 0; i < n; i++ {
			frame, err := f.b.AcquireBackBuffer(f.screen)
			require.NoError(t, err)
			acquired = append(acquired, frame)
		}
		_, err := f.b.AcquireBackBuffer(f.screen)
		assert.ErrorIs(t, err, ErrNoFreeSlot)

		require.NoError(t, f.b.SwapBackBuffer(f.screen, acquired[0]))
		frame, err := f.b.AcquireBackBuffer(f.screen)
		require.NoError(t, err)
		assert.Equal(t, acquired[0], frame)
	}
}

func TestBuildIdempotence(t *testing.T) {
	f := newFixture(t, 2, Options{})
	m := f.mesh("a")
	m.Material.AlbedoTexture = f.texture
	require.NoError(t, f.b.BuildMesh(m, f.frame, f.object, f.lights))

	before := f.b.Stats()
	handles := []render.Handle{m.Handle(), m.Material.Handle(), f.texture.Handle(), f.screen.Handle(), f.frame[0].Handle()}

	require.NoError(t, f.b.BuildMesh(m, f.frame, f.object, f.lights))
	require.NoError(t, f.b.BuildMaterial(m.Material, f.frame, f.object))
	require.NoError(t, f.b.BuildView(f.screen, 2))
	require.NoError(t, f.b.BuildUniformBuffer(f.frame[0]))

	assert.Equal(t, before, f.b.Stats())
	assert.Equal(t, handles, []render.Handle{m.Handle(), m.Material.Handle(), f.texture.Handle(), f.screen.Handle(), f.frame[0].Handle()})

	// A dirty mesh is uploaded again under the same handle.
	m.SetDirty(true)
	require.NoError(t, f.b.BuildMesh(m, f.frame, f.object, f.lights))
	assert.Equal(t, before.MeshUploads+1, f.b.Stats().MeshUploads)
	assert.Equal(t, handles[0], m.Handle())
	assert.False(t, m.Dirty())
}

func TestTextureDedupByName(t *testing.T) {
	f := newFixture(t, 2, Options{})
	a, b := f.mesh("a"), f.mesh("b")
	a.Material.AlbedoTexture = f.texture
	b.Material.AlbedoTexture = render.NewTexture("brick.png", 2, 2, make([]byte, 16))

	require.NoError(t, f.b.BuildMesh(a, f.frame, f.object, f.lights))
	require.NoError(t, f.b.BuildMesh(b, f.frame, f.object, f.lights))
	assert.Equal(t, 1, f.b.Stats().TextureUploads)
	assert.Equal(t, a.Material.AlbedoTexture.Handle(), b.Material.AlbedoTexture.Handle())
}

func TestPipelineSharing(t *testing.T) {
	f := newFixture(t, 2, Options{DepthPrepass: true})
	a, b := f.mesh("a"), f.mesh("b")
	require.NoError(t, f.b.BuildMesh(a, f.frame, f.object, f.lights))
	// screen, prepass and shadow cube pipelines for both frames.
	assert.Equal(t, 6, f.b.PipelineCount())

	require.NoError(t, f.b.BuildMesh(b, f.frame, f.object, f.lights))
	assert.Equal(t, 6, f.b.PipelineCount(), "same stream count and technique share pipelines")

	c := f.mesh("c")
	c.UVs = []float32{0, 0, 1, 0, 0, 1}
	require.NoError(t, f.b.BuildMesh(c, f.frame, f.object, f.lights))
	assert.Equal(t, 12, f.b.PipelineCount(), "a different stream count needs new pipelines")

	sa, _ := f.b.meshes.Get(a.Handle())
	sb, _ := f.b.meshes.Get(b.Handle())
	sc, _ := f.b.meshes.Get(c.Handle())
	key := render.MeshPipeline{View: f.screen.Handle(), FrameIndex: 1}
	assert.Equal(t, sa.pipelines[key], sb.pipelines[key])
	assert.NotEqual(t, sa.pipelines[key], sc.pipelines[key])
}

func TestPipelinesSplitByVertexLayout(t *testing.T) {
	f := newFixture(t, 1, Options{})
	normals := f.mesh("normals")
	uvs := f.mesh("uvs")
	uvs.Normals = nil
	uvs.UVs = []float32{0, 0, 1, 0, 0, 1}
	require.Equal(t, normals.BufferCount(), uvs.BufferCount())

	require.NoError(t, f.b.BuildMesh(normals, f.frame, f.object, f.lights))
	before := f.b.PipelineCount()
	require.NoError(t, f.b.BuildMesh(uvs, f.frame, f.object, f.lights))
	assert.Equal(t, 2*before, f.b.PipelineCount(), "equal stream counts with different layouts")

	sn, _ := f.b.meshes.Get(normals.Handle())
	su, _ := f.b.meshes.Get(uvs.Handle())
	key := render.MeshPipeline{View: f.screen.Handle()}
	assert.NotEqual(t, sn.pipelines[key], su.pipelines[key])
}

func TestResizeSameExtent(t *testing.T) {
	f := newFixture(t, 2, Options{})
	before := f.b.Stats()

	require.NoError(t, f.b.Resize(f.screen, 1200, 800))
	assert.Equal(t, before.SwapchainCreates, f.b.Stats().SwapchainCreates)
	assert.Equal(t, before.GBufferCreates, f.b.Stats().GBufferCreates)

	require.NoError(t, f.b.Resize(f.screen, 1280, 720))
	assert.Equal(t, before.SwapchainCreates+1, f.b.Stats().SwapchainCreates)
	assert.Equal(t, before.GBufferCreates+1, f.b.Stats().GBufferCreates)
	w, h := f.screen.Extent()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	assert.ErrorIs(t, f.b.Resize(f.lights[0].ShadowView, 10, 10), render.ErrUnknownView)
}

func TestRecordFrame(t *testing.T) {
	f := newFixture(t, 2, Options{DepthPrepass: true})
	m := f.mesh("a")
	require.NoError(t, f.b.BuildMesh(m, f.frame, f.object, f.lights))

	composite := render.NewMesh("Composite Mesh")
	composite.Positions = []float32{0, 0, 0}
	composite.Indices = []uint32{0, 0, 0}
	composite.Material = render.NewMaterial("Composite Material", render.TechniqueDeferredComposite)
	require.NoError(t, f.b.BuildMesh(composite, f.frame, f.object, nil))
	f.screen.AddCompositeMesh(composite)
	f.screen.CompositeLights = []render.CompositeLight{{}, {}}

	frame, err := f.b.AcquireBackBuffer(f.screen)
	require.NoError(t, err)
	require.NoError(t, f.b.RenderBegin(f.screen, f.screen, f.frame[frame], f.object[frame], frame))

	require.NoError(t, f.b.BindPipeline(m, f.screen, frame, true))
	require.NoError(t, f.b.Render(m, 0, f.screen, frame, true))
	require.NoError(t, f.b.EndDepthPrepass(f.screen, frame))
	require.NoError(t, f.b.BindPipeline(m, f.screen, frame, false))
	require.NoError(t, f.b.Render(m, 0, f.screen, frame, false))
	assert.Error(t, f.b.Render(m, 100, f.screen, frame, false), "unaligned offset")

	require.NoError(t, f.b.RenderEnd(f.screen, f.screen, f.frame[frame], f.object[frame], frame))
	require.NoError(t, f.b.SwapBackBuffer(f.screen, frame))

	subs := f.b.Submissions()
	require.Len(t, subs, 1)
	s := subs[0]
	assert.True(t, s.Presented)
	assert.Equal(t, "screen", s.WaitsOn)
	require.Len(t, s.Draws, 4)
	assert.Equal(t, render.DepthPrepassMaterialName, s.Draws[0].Material)
	assert.Equal(t, 0, s.Draws[0].Subpass)
	assert.Equal(t, "a material", s.Draws[1].Material)
	assert.Equal(t, 1, s.Draws[1].Subpass)
	assert.Equal(t, "Composite Material", s.Draws[2].Material)
	assert.Equal(t, 2, s.Draws[2].Subpass)
	assert.Len(t, s.Composite, 2)
}

func TestUpdateUniformData(t *testing.T) {
	f := newFixture(t, 1, Options{})
	ub := f.frame[0]

	require.NoError(t, render.UpdateLightInfo(f.b, ub, 2, 3))
	data, ok := f.b.UniformData(ub)
	require.True(t, ok)
	assert.Equal(t, []byte{2, 0, 0, 0, 3, 0, 0, 0}, data[:8])

	assert.Error(t, f.b.UpdateUniformData(ub, 1020, make([]byte, 8)))
	assert.ErrorIs(t, f.b.UpdateUniformData(render.NewUniformBuffer("x", 4), 0, nil), render.ErrNotBuilt)
}

func TestRenderNeedsBuiltView(t *testing.T) {
	b := New(Options{})
	require.NoError(t, b.Initialize(2))
	v := render.NewView("v", render.ViewScreen)
	_, err := b.AcquireBackBuffer(v)
	assert.ErrorIs(t, err, render.ErrNotBuilt)
	assert.ErrorIs(t, b.BuildView(render.NewView("r", render.ViewReflection), 2), render.ErrUnknownView)
	assert.Error(t, b.Initialize(3))
}
