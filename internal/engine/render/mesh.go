package render

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMesh is returned when a mesh's streams disagree in length.
var ErrInvalidMesh = errors.New("invalid mesh")

// Mesh is an indexed triangle list with separate attribute streams.
// Positions, Normals, Tangents and Bitangents hold 3 floats per vertex, UVs 2.
// Tangents are only used when Bitangents is present as well.
type Mesh struct {
	Resource

	Name       string
	Positions  []float32
	Normals    []float32
	UVs        []float32
	Tangents   []float32
	Bitangents []float32
	Indices    []uint32

	Material *Material
}

// NewMesh creates an empty, dirty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{Name: name}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

// IndexCount returns the number of indices.
func (m *Mesh) IndexCount() int {
	return len(m.Indices)
}

// HasNormals reports whether the normal stream is present.
func (m *Mesh) HasNormals() bool { return len(m.Normals) > 0 }

// HasUVs reports whether the texture coordinate stream is present.
func (m *Mesh) HasUVs() bool { return len(m.UVs) > 0 }

// HasTangents reports whether both tangent and bitangent streams are present.
func (m *Mesh) HasTangents() bool { return len(m.Tangents) > 0 && len(m.Bitangents) > 0 }

// BufferCount returns the number of vertex attribute streams, counting
// tangent and bitangent separately.
func (m *Mesh) BufferCount() int {
	n := 1
	if m.HasNormals() {
		n++
	}
	if m.HasUVs() {
		n++
	}
	if m.HasTangents() {
		n += 2
	}
	return n
}

// StreamMask records which vertex streams a mesh carries. Meshes with the
// same stream count can still differ in vertex layout.
type StreamMask uint8

// Vertex streams. StreamTangent covers both tangent and bitangent.
const (
	StreamPosition StreamMask = 1 << iota
	StreamNormal
	StreamUV
	StreamTangent
)

func (s StreamMask) String() string {
	var parts []string
	for _, n := range []struct {
		bit  StreamMask
		name string
	}{{StreamPosition, "pos"}, {StreamNormal, "normal"}, {StreamUV, "uv"}, {StreamTangent, "tangent"}} {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// Streams returns the streams present in m.
func (m *Mesh) Streams() StreamMask {
	s := StreamPosition
	if m.HasNormals() {
		s |= StreamNormal
	}
	if m.HasUVs() {
		s |= StreamUV
	}
	if m.HasTangents() {
		s |= StreamTangent
	}
	return s
}

// Validate checks that every present stream matches the vertex count and
// that all indices are in range.
func (m *Mesh) Validate() error {
	if len(m.Positions) == 0 || len(m.Positions)%3 != 0 {
		return fmt.Errorf("%w: %s: %d position floats", ErrInvalidMesh, m.Name, len(m.Positions))
	}
	n := m.VertexCount()
	check := func(name string, stream []float32, width int) error {
		if len(stream) != 0 && len(stream) != n*width {
			return fmt.Errorf("%w: %s: %s has %d floats, want %d", ErrInvalidMesh, m.Name, name, len(stream), n*width)
		}
		return nil
	}
	if err := check("normals", m.Normals, 3); err != nil {
		return err
	}
	if err := check("uvs", m.UVs, 2); err != nil {
		return err
	}
	if err := check("tangents", m.Tangents, 3); err != nil {
		return err
	}
	if err := check("bitangents", m.Bitangents, 3); err != nil {
		return err
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: %s: index %d = %d out of range", ErrInvalidMesh, m.Name, i, idx)
		}
	}
	return nil
}

// VertexAttribute describes one interleaved attribute.
// Offset is in floats from the start of the vertex.
type VertexAttribute struct {
	Location   int
	Components int
	Offset     int
}

// VertexLayout is the interleaved layout of a mesh. Stride is in floats.
type VertexLayout struct {
	Attributes []VertexAttribute
	Stride     int
}

// StrideBytes returns the stride in bytes.
func (l VertexLayout) StrideBytes() int {
	return l.Stride * 4
}

// Layout returns the interleaved layout: position, normal, uv, tangent,
// bitangent, skipping absent streams. Attribute locations are consecutive.
func (m *Mesh) Layout() VertexLayout {
	var l VertexLayout
	add := func(components int) {
		l.Attributes = append(l.Attributes, VertexAttribute{
			Location:   len(l.Attributes),
			Components: components,
			Offset:     l.Stride,
		})
		l.Stride += components
	}
	add(3)
	if m.HasNormals() {
		add(3)
	}
	if m.HasUVs() {
		add(2)
	}
	if m.HasTangents() {
		add(3)
		add(3)
	}
	return l
}

// Interleave packs the present streams into one vertex array following
// Layout.
func (m *Mesh) Interleave() []float32 {
	l := m.Layout()
	n := m.VertexCount()
	out := make([]float32, 0, n*l.Stride)
	normals, uvs, tangents := m.HasNormals(), m.HasUVs(), m.HasTangents()
	for i := 0; i < n; i++ {
		v, t := i*3, i*2
		out = append(out, m.Positions[v:v+3]...)
		if normals {
			out = append(out, m.Normals[v:v+3]...)
		}
		if uvs {
			out = append(out, m.UVs[t:t+2]...)
		}
		if tangents {
			out = append(out, m.Tangents[v:v+3]...)
			out = append(out, m.Bitangents[v:v+3]...)
		}
	}
	return out
}
