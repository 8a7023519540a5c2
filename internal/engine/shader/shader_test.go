package shader

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

func TestGBufferNames(t *testing.T) {
	tex := render.NewTexture("t", 1, 1, make([]byte, 4))

	tests := []struct {
		name     string
		setup    func(m *render.Material)
		fragment string
		vertex   string
	}{
		{
			name:     "no textures",
			setup:    func(m *render.Material) {},
			fragment: "GBuffer_CE_CA_CM_NO_VN.frag.spv",
			vertex:   "GBuffer_VN_NT.vert.spv",
		},
		{
			name:     "albedo only",
			setup:    func(m *render.Material) { m.AlbedoTexture = tex },
			fragment: "GBuffer_CE_TA_CM_NO_VN.frag.spv",
			vertex:   "GBuffer_VN.vert.spv",
		},
		{
			name: "everything",
			setup: func(m *render.Material) {
				m.AlbedoTexture = tex
				m.NormalTexture = tex
				m.MetallicRoughnessTexture = tex
				m.OcclusionTexture = tex
				m.EmissiveTexture = tex
			},
			fragment: "GBuffer_TE_TA_TM_TO_TN.frag.spv",
			vertex:   "GBuffer_TN.vert.spv",
		},
		{
			name:     "normal map",
			setup:    func(m *render.Material) { m.NormalTexture = tex },
			fragment: "GBuffer_CE_CA_CM_NO_TN.frag.spv",
			vertex:   "GBuffer_TN.vert.spv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := render.NewMaterial("m", render.TechniqueDeferredLit)
			tt.setup(m)
			p, err := ForMaterial(m)
			require.NoError(t, err)
			assert.Equal(t, tt.fragment, p.Fragment)
			assert.Equal(t, tt.vertex, p.Vertex)
			assert.Empty(t, p.Geometry)
			assert.Equal(t, strings.TrimSuffix(tt.fragment, ".frag.spv"), p.Variant())
		})
	}
}

func TestFixedPrograms(t *testing.T) {
	tests := []struct {
		technique render.Technique
		stages    []string
	}{
		{render.TechniqueDeferredComposite, []string{"DeferredComposite.vert.spv", "DeferredComposite.frag.spv"}},
		{render.TechniqueDepthPrepass, []string{"DepthPrepass.vert.spv", "DepthPrepass.frag.spv"}},
		{render.TechniqueShadow, []string{"Shadow.vert.spv", "Shadow.frag.spv"}},
		{render.TechniqueShadowCube, []string{"ShadowCube.vert.spv", "ShadowCube.geom.spv", "ShadowCube.frag.spv"}},
	}
	for _, tt := range tests {
		t.Run(tt.technique.String(), func(t *testing.T) {
			p, err := ForMaterial(render.NewMaterial("m", tt.technique))
			require.NoError(t, err)
			assert.Equal(t, tt.stages, p.Stages())
		})
	}

	_, err := ForMaterial(render.NewMaterial("m", render.TechniqueUnlit))
	assert.ErrorIs(t, err, ErrUnsupportedTechnique)
}

type mapSource map[string][]byte

func (s mapSource) Load(name string) ([]byte, error) {
	if b, ok := s[name]; ok {
		return b, nil
	}
	return nil, fs.ErrNotExist
}

func spirv(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestLoadSPIRV(t *testing.T) {
	src := mapSource{
		"ok.spv":    spirv(SPIRVMagic, 0x00010000, 0, 8, 0),
		"bad.spv":   spirv(0xdeadbeef, 0, 0, 0, 0),
		"short.spv": {0x03, 0x02, 0x23},
	}

	words, err := LoadSPIRV(src, "ok.spv")
	require.NoError(t, err)
	assert.Len(t, words, 5)
	assert.Equal(t, SPIRVMagic, words[0])

	_, err = LoadSPIRV(src, "bad.spv")
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = LoadSPIRV(src, "short.spv")
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = LoadSPIRV(src, "missing.spv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestEmbeddedGLSL(t *testing.T) {
	techniques := []render.Technique{
		render.TechniqueDeferredLit,
		render.TechniqueDeferredComposite,
		render.TechniqueDepthPrepass,
		render.TechniqueShadow,
		render.TechniqueShadowCube,
	}
	for _, tech := range techniques {
		p, err := GLSLProgram(render.NewMaterial("m", tech))
		require.NoError(t, err)
		for _, stage := range p.Stages() {
			src, err := GLSL(stage)
			require.NoError(t, err, stage)
			assert.True(t, strings.HasPrefix(src, GLSLVersion))
			assert.Contains(t, src, "FrameParams")
			assert.Contains(t, src, "void main()")
		}
	}

	_, err := GLSL("missing.frag")
	assert.Error(t, err)
}

func TestPipelineKey(t *testing.T) {
	mesh := render.NewMesh("m")
	mesh.Positions = []float32{0, 0, 0}
	mesh.Normals = []float32{0, 1, 0}

	lit := render.NewMaterial("lit", render.TechniqueDeferredLit)
	key, err := PipelineKey(mesh, lit, 1)
	require.NoError(t, err)
	assert.Equal(t, render.PipelineKey{
		BufferCount: 2,
		Streams:     render.StreamPosition | render.StreamNormal,
		Technique:   render.TechniqueDeferredLit,
		FrameIndex:  1,
		Variant:     "GBuffer_CE_CA_CM_NO_VN",
	}, key)

	shadow := render.NewMaterial("shadow", render.TechniqueShadow)
	key, err = PipelineKey(mesh, shadow, 0)
	require.NoError(t, err)
	assert.Empty(t, key.Variant)

	_, err = PipelineKey(mesh, render.NewMaterial("u", render.TechniqueUnlit), 0)
	assert.ErrorIs(t, err, ErrUnsupportedTechnique)
}

func TestVulkanCompilesCoverEveryProgram(t *testing.T) {
	compiles := VulkanCompiles()
	byOutput := make(map[string]Compile, len(compiles))
	for _, c := range compiles {
		_, dup := byOutput[c.Output]
		require.False(t, dup, c.Output)
		byOutput[c.Output] = c
	}
	// 32 fragment variants, 3 vertex variants, 9 fixed stages.
	assert.Len(t, compiles, 44)

	tex := render.NewTexture("t", 1, 1, make([]byte, 4))
	for mask := 0; mask < 1<<5; mask++ {
		m := render.NewMaterial("m", render.TechniqueDeferredLit)
		if mask&1 != 0 {
			m.AlbedoTexture = tex
		}
		if mask&2 != 0 {
			m.NormalTexture = tex
		}
		if mask&4 != 0 {
			m.MetallicRoughnessTexture = tex
		}
		if mask&8 != 0 {
			m.OcclusionTexture = tex
		}
		if mask&16 != 0 {
			m.EmissiveTexture = tex
		}
		p, err := ForMaterial(m)
		require.NoError(t, err)
		for _, s := range p.Stages() {
			assert.Contains(t, byOutput, s)
		}
	}

	for _, tech := range []render.Technique{
		render.TechniqueDeferredComposite,
		render.TechniqueDepthPrepass,
		render.TechniqueShadow,
		render.TechniqueShadowCube,
	} {
		p, err := ForMaterial(render.NewMaterial("m", tech))
		require.NoError(t, err)
		for _, s := range p.Stages() {
			assert.Contains(t, byOutput, s)
		}
	}
}

func TestVulkanSourceDefines(t *testing.T) {
	var frag, vert Compile
	for _, c := range VulkanCompiles() {
		switch c.Output {
		case "GBuffer_TE_CA_CM_NO_TN.frag.spv":
			frag = c
		case "GBuffer_TN.vert.spv":
			vert = c
		}
	}
	assert.Equal(t, []string{"HAS_UV", "NORMAL_MAP", "EMISSIVE_MAP"}, frag.Defines)
	assert.Equal(t, []string{"HAS_UV", "NORMAL_MAP"}, vert.Defines)
	assert.Equal(t, "frag", frag.Stage())

	src, err := VulkanSource(frag)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, VulkanGLSLVersion+"#define HAS_UV\n#define NORMAL_MAP\n#define EMISSIVE_MAP\n"))
	assert.Contains(t, src, "readonly buffer FrameParams")
	assert.Contains(t, src, "emissiveMap")

	_, err = VulkanSource(Compile{Output: "x.frag.spv", Source: "missing.frag"})
	assert.Error(t, err)
}

func TestVulkanShadowStagesReadLightIndexFromPushConstant(t *testing.T) {
	for _, name := range []string{"shadow.vert", "shadow_cube.geom"} {
		src, err := VulkanSource(Compile{Source: name})
		require.NoError(t, err)
		assert.Contains(t, src, "layout(push_constant)", name)
		assert.NotContains(t, src, "lightInfo.x", name)
	}
}
