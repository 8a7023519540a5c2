package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle() *Mesh {
	m := NewMesh("tri")
	m.Positions = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	m.Indices = []uint32{0, 1, 2}
	return m
}

func TestPositionOnlyLayout(t *testing.T) {
	m := triangle()
	l := m.Layout()

	assert.Equal(t, 1, m.BufferCount())
	assert.Equal(t, 3, l.Stride)
	assert.Equal(t, 12, l.StrideBytes())
	require.Len(t, l.Attributes, 1)
	assert.Equal(t, VertexAttribute{Location: 0, Components: 3, Offset: 0}, l.Attributes[0])
	assert.Equal(t, m.Positions, m.Interleave())
}

func TestFullLayout(t *testing.T) {
	m := triangle()
	m.Normals = []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}
	m.UVs = []float32{0, 0, 1, 0, 0, 1}
	m.Tangents = []float32{1, 0, 0, 1, 0, 0, 1, 0, 0}
	m.Bitangents = []float32{0, 1, 0, 0, 1, 0, 0, 1, 0}

	l := m.Layout()
	assert.Equal(t, 5, m.BufferCount())
	assert.Equal(t, 17, l.Stride)

	want := []VertexAttribute{
		{Location: 0, Components: 3, Offset: 0},
		{Location: 1, Components: 3, Offset: 3},
		{Location: 2, Components: 2, Offset: 6},
		{Location: 3, Components: 3, Offset: 8},
		{Location: 4, Components: 3, Offset: 11},
	}
	assert.Equal(t, want, l.Attributes)

	v := m.Interleave()
	require.Len(t, v, 3*17)
	// second vertex: position, normal, uv, tangent, bitangent
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1, 1, 0, 1, 0, 0, 0, 1, 0}, v[17:31])
}

func TestTangentsNeedBitangents(t *testing.T) {
	m := triangle()
	m.Tangents = []float32{1, 0, 0, 1, 0, 0, 1, 0, 0}
	assert.Equal(t, 1, m.BufferCount())
	assert.Equal(t, 3, m.Layout().Stride)
}

func TestMeshValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Mesh)
		ok     bool
	}{
		{"valid", func(*Mesh) {}, true},
		{"no positions", func(m *Mesh) { m.Positions = nil }, false},
		{"ragged positions", func(m *Mesh) { m.Positions = m.Positions[:8] }, false},
		{"short normals", func(m *Mesh) { m.Normals = []float32{0, 0, 1} }, false},
		{"short uvs", func(m *Mesh) { m.UVs = []float32{0, 0} }, false},
		{"index out of range", func(m *Mesh) { m.Indices = []uint32{0, 1, 3} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := triangle()
			tt.mutate(m)
			err := m.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMesh)
			}
		})
	}
}
