package model

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/texture"
	"github.com/Faultbox/renderlab/pkg/math"
)

type memSource map[string][]byte

func (m memSource) Load(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const quadOBJ = `# two materials
mtllib scene.mtl
o Quad
v -1 0 -1
v 1 0 -1
v 1 0 1
v -1 0 1
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 1 0
usemtl Brick
f 1/1/1 2/2/1 3/3/1 4/4/1
o Tri
usemtl Glow
f -4 -3 -2
`

const sceneMTL = `newmtl Brick
Kd 0.8 0.4 0.2
Ns 98
map_Kd -s 2 2 tex/brick.png
map_Bump tex/brick.png

newmtl Glow
Kd 1 1 1
Ke 0.5 0.5 0
d 0.5
Pr 0.25
Pm 1
`

func TestLoadQuadAndTriangle(t *testing.T) {
	src := memSource{
		"models/scene.obj":     []byte(quadOBJ),
		"models/scene.mtl":     []byte(sceneMTL),
		"models/tex/brick.png": pngBytes(t),
	}
	m, err := Load(src, texture.NewLoader(src), "models/scene.obj")
	require.NoError(t, err)
	require.Len(t, m.Meshes, 2)
	assert.Empty(t, m.Warnings)

	quad := m.Meshes[0]
	assert.Equal(t, "Quad_0", quad.Name)
	assert.Equal(t, 4, quad.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, quad.Indices)
	assert.Equal(t, []float32{0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0}, quad.Normals)
	// Scaled by -s 2 and flipped to image space.
	assert.Equal(t, []float32{0, 1, 2, 1, 2, -1, 0, -1}, quad.UVs)
	assert.True(t, quad.HasTangents())

	brick := quad.Material
	assert.Equal(t, "Brick", brick.Name)
	assert.Equal(t, render.TechniqueDeferredLit, brick.Technique)
	assert.Equal(t, math.Vec4{0.8, 0.4, 0.2, 1}, brick.Albedo)
	assert.InDelta(t, 0.1414, brick.Roughness, 1e-3)
	assert.Zero(t, brick.Metallic)
	require.NotNil(t, brick.AlbedoTexture)
	assert.Same(t, brick.AlbedoTexture, brick.NormalTexture)
	assert.Equal(t, 2, brick.AlbedoTexture.Width)

	tri := m.Meshes[1]
	assert.Equal(t, "Tri_1", tri.Name)
	assert.Equal(t, 3, tri.VertexCount())
	assert.False(t, tri.HasUVs())
	// Flat normal of (-1,0,-1) (1,0,-1) (1,0,1) points down.
	assert.Equal(t, []float32{0, -1, 0, 0, -1, 0, 0, -1, 0}, tri.Normals)

	glow := tri.Material
	assert.Equal(t, math.Vec3{X: 0.5, Y: 0.5}, glow.Emissive)
	assert.Equal(t, float32(0.5), glow.Albedo[3])
	assert.True(t, glow.Blend)
	assert.Equal(t, float32(0.25), glow.Roughness)
	assert.Equal(t, float32(1), glow.Metallic)
	assert.False(t, glow.HasTextures())
	assert.Len(t, m.Materials, 2)
}

func TestLoadWithoutMaterialLibrary(t *testing.T) {
	src := memSource{"cube.obj": []byte("mtllib missing.mtl\nv 0 0 0\nv 1 0 0\nv 0 1 0\nusemtl Stone\nf 1 2 3\nf 3 2 1\n")}
	m, err := Load(src, nil, "cube.obj")
	require.NoError(t, err)
	require.Len(t, m.Meshes, 1)

	mesh := m.Meshes[0]
	assert.Equal(t, "unnamed5_0", mesh.Name)
	// Each face gets its own flat-shaded vertices.
	assert.Equal(t, 6, mesh.VertexCount())
	assert.Equal(t, "Stone", mesh.Material.Name)
	assert.True(t, mesh.Material.TwoSided)
	require.Len(t, m.Warnings, 2)
	assert.Contains(t, m.Warnings[0], "missing.mtl")
	assert.Contains(t, m.Warnings[1], "material not found: Stone")
}

func TestLoadDefaultMaterial(t *testing.T) {
	src := memSource{"tri.obj": []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")}
	m, err := Load(src, nil, "tri.obj")
	require.NoError(t, err)
	require.Len(t, m.Meshes, 1)
	assert.Equal(t, DefaultMaterialName, m.Meshes[0].Material.Name)
	assert.Empty(t, m.Warnings)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		obj  string
	}{
		{"index zero", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"index out of range", "v 0 0 0\nf 1 2 3\n"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"bad number", "v 0 zero 0\n"},
		{"short vertex", "v 0 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := memSource{"bad.obj": []byte(tt.obj)}
			_, err := Load(src, nil, "bad.obj")
			assert.ErrorIs(t, err, ErrInvalidOBJ)
		})
	}

	_, err := Load(memSource{}, nil, "none.obj")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNegativeIndicesAndWarnings(t *testing.T) {
	src := memSource{"n.obj": []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\ncurv 0 1 1 2\nf -3//-1 -2//-1 -1//-1\n")}
	m, err := Load(src, nil, "n.obj")
	require.NoError(t, err)
	require.Len(t, m.Meshes, 1)
	mesh := m.Meshes[0]
	assert.Equal(t, 3, mesh.VertexCount())
	assert.Equal(t, []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}, mesh.Normals)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "curv")
}

func TestMapOptions(t *testing.T) {
	dec := newDecoder("x")
	dec.matCurrent = dec.material("m")
	require.NoError(t, dec.parseMtlLine([]string{"map_Kd", "-clamp", "on", "-o", "0.5", "0.25", "my", "tex.png"}))
	assert.Equal(t, "my tex.png", dec.matCurrent.mapKd)
	assert.Equal(t, math.Vec2{X: 0.5, Y: 0.25}, dec.matCurrent.offset)

	err := dec.parseMtlLine([]string{"map_Kd", "-s", "2"})
	assert.ErrorIs(t, err, ErrInvalidOBJ)
}
