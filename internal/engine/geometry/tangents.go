package geometry

import (
	"fmt"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/pkg/math"
)

// GenerateTangents fills the tangent and bitangent streams of m from its
// positions, normals and UVs. Per-triangle tangents are accumulated per
// vertex, then orthogonalized against the normal.
func GenerateTangents(m *render.Mesh) error {
	if !m.HasNormals() || !m.HasUVs() {
		return fmt.Errorf("%w: %s: tangents need normals and uvs", render.ErrInvalidMesh, m.Name)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %s: %d indices is not a triangle list", render.ErrInvalidMesh, m.Name, len(m.Indices))
	}

	n := m.VertexCount()
	tan := make([]math.Vec3, n)
	bitan := make([]math.Vec3, n)

	for i := 0; i < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		p0, p1, p2 := vec3At(m.Positions, a), vec3At(m.Positions, b), vec3At(m.Positions, c)
		u0, v0 := m.UVs[a*2], m.UVs[a*2+1]
		u1, v1 := m.UVs[b*2], m.UVs[b*2+1]
		u2, v2 := m.UVs[c*2], m.UVs[c*2+1]

		e1, e2 := p1.Sub(p0), p2.Sub(p0)
		du1, dv1 := u1-u0, v1-v0
		du2, dv2 := u2-u0, v2-v0

		det := du1*dv2 - du2*dv1
		if det > -1e-8 && det < 1e-8 {
			continue
		}
		r := 1 / det
		t := e1.Scale(dv2).Sub(e2.Scale(dv1)).Scale(r)
		bt := e2.Scale(du1).Sub(e1.Scale(du2)).Scale(r)

		for _, idx := range [3]uint32{a, b, c} {
			tan[idx] = tan[idx].Add(t)
			bitan[idx] = bitan[idx].Add(bt)
		}
	}

	m.Tangents = make([]float32, 0, n*3)
	m.Bitangents = make([]float32, 0, n*3)
	for i := 0; i < n; i++ {
		normal := vec3At(m.Normals, uint32(i))
		t := tan[i].Sub(normal.Scale(normal.Dot(tan[i]))).Normalize()
		if t == (math.Vec3{}) {
			t = anyPerpendicular(normal)
		}
		b := normal.Cross(t)
		if b.Dot(bitan[i]) < 0 {
			b = b.Scale(-1)
		}
		m.Tangents = append(m.Tangents, t.X, t.Y, t.Z)
		m.Bitangents = append(m.Bitangents, b.X, b.Y, b.Z)
	}
	m.SetDirty(true)
	return nil
}

func vec3At(s []float32, i uint32) math.Vec3 {
	return math.Vec3{X: s[i*3], Y: s[i*3+1], Z: s[i*3+2]}
}

func anyPerpendicular(n math.Vec3) math.Vec3 {
	axis := math.Vec3{X: 1}
	if n.X > 0.9 || n.X < -0.9 {
		axis = math.Vec3{Y: 1}
	}
	return axis.Sub(n.Scale(n.Dot(axis))).Normalize()
}
