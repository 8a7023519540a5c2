// Package geometry builds procedural meshes.
package geometry

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/pkg/math"
)

// builder accumulates vertex streams for one mesh.
type builder struct {
	positions []float32
	normals   []float32
	uvs       []float32
	indices   []uint32
}

func (b *builder) vertex(p, n math.Vec3, u, v float32) uint32 {
	idx := uint32(len(b.positions) / 3)
	b.positions = append(b.positions, p.X, p.Y, p.Z)
	b.normals = append(b.normals, n.X, n.Y, n.Z)
	b.uvs = append(b.uvs, u, v)
	return idx
}

func (b *builder) triangle(a, c, d uint32) {
	b.indices = append(b.indices, a, c, d)
}

// quad adds two counter-clockwise triangles a-b-c and a-c-d.
func (b *builder) quad(a, c, d, e uint32) {
	b.triangle(a, c, d)
	b.triangle(a, d, e)
}

func (b *builder) mesh(name string, mat *render.Material) *render.Mesh {
	m := render.NewMesh(name)
	m.Positions = b.positions
	m.Normals = b.normals
	m.UVs = b.uvs
	m.Indices = b.indices
	m.Material = mat
	return m
}

// Box returns an axis-aligned box centered at the origin with 24 vertices,
// so that every face has its own normals and UVs.
func Box(name string, size math.Vec3, mat *render.Material) *render.Mesh {
	h := size.Scale(0.5)
	faces := []struct {
		normal, u, v math.Vec3
	}{
		{math.Vec3{X: 1}, math.Vec3{Z: -1}, math.Vec3{Y: 1}},
		{math.Vec3{X: -1}, math.Vec3{Z: 1}, math.Vec3{Y: 1}},
		{math.Vec3{Y: 1}, math.Vec3{X: 1}, math.Vec3{Z: -1}},
		{math.Vec3{Y: -1}, math.Vec3{X: 1}, math.Vec3{Z: 1}},
		{math.Vec3{Z: 1}, math.Vec3{X: 1}, math.Vec3{Y: 1}},
		{math.Vec3{Z: -1}, math.Vec3{X: -1}, math.Vec3{Y: 1}},
	}

	var b builder
	for _, f := range faces {
		center := mul(f.normal, h)
		du := mul(f.u, h)
		dv := mul(f.v, h)
		c0 := b.vertex(center.Sub(du).Sub(dv), f.normal, 0, 1)
		c1 := b.vertex(center.Add(du).Sub(dv), f.normal, 1, 1)
		c2 := b.vertex(center.Add(du).Add(dv), f.normal, 1, 0)
		c3 := b.vertex(center.Sub(du).Add(dv), f.normal, 0, 0)
		b.quad(c0, c1, c2, c3)
	}
	return b.mesh(name, mat)
}

// Plane returns a subdivided plane in XZ facing +Y. UVs repeat once per
// segment.
func Plane(name string, width, depth float32, segments int, mat *render.Material) *render.Mesh {
	if segments < 1 {
		segments = 1
	}
	var b builder
	up := math.Vec3{Y: 1}
	for z := 0; z <= segments; z++ {
		for x := 0; x <= segments; x++ {
			fx := float32(x) / float32(segments)
			fz := float32(z) / float32(segments)
			p := math.Vec3{X: (fx - 0.5) * width, Z: (0.5 - fz) * depth}
			b.vertex(p, up, float32(x), float32(z))
		}
	}
	row := uint32(segments + 1)
	for z := uint32(0); z < uint32(segments); z++ {
		for x := uint32(0); x < uint32(segments); x++ {
			i := z*row + x
			b.quad(i, i+1, i+row+1, i+row)
		}
	}
	return b.mesh(name, mat)
}

// Sphere returns a UV sphere around the Y axis.
func Sphere(name string, radius float32, rings, segments int, mat *render.Material) *render.Mesh {
	rings = max(rings, 2)
	segments = max(segments, 3)

	var b builder
	for r := 0; r <= rings; r++ {
		v := float32(r) / float32(rings)
		theta := v * math32.Pi
		st, ct := math32.Sincos(theta)
		for s := 0; s <= segments; s++ {
			u := float32(s) / float32(segments)
			phi := u * 2 * math32.Pi
			sp, cp := math32.Sincos(phi)
			n := math.Vec3{X: st * cp, Y: ct, Z: -st * sp}
			b.vertex(n.Scale(radius), n, u, v)
		}
	}
	grid(&b, rings, segments)
	return b.mesh(name, mat)
}

// Torus returns a torus around the Y axis. major is the distance from the
// center to the tube center, minor the tube radius.
func Torus(name string, major, minor float32, rings, sides int, mat *render.Material) *render.Mesh {
	rings = max(rings, 3)
	sides = max(sides, 3)

	var b builder
	for r := 0; r <= rings; r++ {
		u := float32(r) / float32(rings)
		sr, cr := math32.Sincos(u * 2 * math32.Pi)
		for s := 0; s <= sides; s++ {
			v := float32(s) / float32(sides)
			ss, cs := math32.Sincos(v * 2 * math32.Pi)
			n := math.Vec3{X: cs * cr, Y: ss, Z: -cs * sr}
			center := math.Vec3{X: major * cr, Z: -major * sr}
			b.vertex(center.Add(n.Scale(minor)), n, u, v)
		}
	}
	grid(&b, rings, sides)
	return b.mesh(name, mat)
}

// grid indexes a (rows+1) x (cols+1) vertex lattice.
func grid(b *builder, rows, cols int) {
	stride := uint32(cols + 1)
	for r := uint32(0); r < uint32(rows); r++ {
		for c := uint32(0); c < uint32(cols); c++ {
			i := r*stride + c
			b.quad(i, i+stride, i+stride+1, i+1)
		}
	}
}

// PositionsOnly returns a mesh with only positions and indices.
func PositionsOnly(name string, positions []float32, indices []uint32, mat *render.Material) *render.Mesh {
	m := render.NewMesh(name)
	m.Positions = positions
	m.Indices = indices
	m.Material = mat
	return m
}

// UnitCubeIndices is the triangle list of UnitCube.
var UnitCubeIndices = []uint32{
	0, 1, 2, 0, 2, 3,
	1, 5, 6, 1, 6, 2,
	5, 4, 6, 4, 7, 6,
	4, 0, 3, 4, 3, 7,
	4, 5, 1, 4, 1, 0,
	3, 2, 6, 3, 6, 7,
}

// UnitCube returns the 8-vertex cube spanning -0.5..0.5 used as the light
// volume of the lighting composite.
func UnitCube(name string, mat *render.Material) *render.Mesh {
	positions := []float32{
		-0.5, 0.5, -0.5,
		0.5, 0.5, -0.5,
		0.5, -0.5, -0.5,
		-0.5, -0.5, -0.5,
		-0.5, 0.5, 0.5,
		0.5, 0.5, 0.5,
		0.5, -0.5, 0.5,
		-0.5, -0.5, 0.5,
	}
	return PositionsOnly(name, positions, append([]uint32(nil), UnitCubeIndices...), mat)
}

func mul(a, b math.Vec3) math.Vec3 {
	return math.Vec3{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}
