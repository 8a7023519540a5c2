package lighting

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/renderlab/pkg/math"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min math.Vec3
	Max math.Vec3
}

// EmptyAABB returns a box that any Extend call replaces.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// Empty reports whether no point was added.
func (b AABB) Empty() bool {
	return b.Min.X > b.Max.X
}

// Extend grows the box to contain p.
func (b AABB) Extend(p math.Vec3) AABB {
	b.Min = math.Vec3{X: math32.Min(b.Min.X, p.X), Y: math32.Min(b.Min.Y, p.Y), Z: math32.Min(b.Min.Z, p.Z)}
	b.Max = math.Vec3{X: math32.Max(b.Max.X, p.X), Y: math32.Max(b.Max.Y, p.Y), Z: math32.Max(b.Max.Z, p.Z)}
	return b
}

// Union returns the box containing b and o.
func (b AABB) Union(o AABB) AABB {
	if o.Empty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Transform returns the box containing the eight transformed corners.
func (b AABB) Transform(m math.Mat4) AABB {
	if b.Empty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		c := b.Min
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		out = out.Extend(m.TransformVec3(c))
	}
	return out
}

// Center returns the center point.
func (b AABB) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Radius returns the half-diagonal.
func (b AABB) Radius() float32 {
	return b.Max.Sub(b.Min).Length() / 2
}

// BoundsOf returns the box of a flat xyz position stream.
func BoundsOf(positions []float32) AABB {
	b := EmptyAABB()
	for i := 0; i+2 < len(positions); i += 3 {
		b = b.Extend(math.Vec3{X: positions[i], Y: positions[i+1], Z: positions[i+2]})
	}
	return b
}

// DirectionalMatrix returns an orthographic view-projection that covers
// bounds as seen along direction (the direction the light travels).
func DirectionalMatrix(direction math.Vec3, bounds AABB) math.Mat4 {
	if bounds.Empty() {
		bounds = AABB{Min: math.Vec3{X: -1, Y: -1, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}
	}
	toLight := direction.Scale(-1).Normalize()
	center := bounds.Center()
	radius := math32.Max(bounds.Radius(), 0.001)
	distance := radius * 2

	eye := center.Add(toLight.Scale(distance))

	up := math.Vec3{Y: 1}
	if math32.Abs(toLight.Y) > 0.99 {
		up = math.Vec3{Z: 1}
	}
	view := math.LookAt(eye, center, up)

	padding := radius * 0.1
	half := radius + padding
	proj := math.Ortho(-half, half, -half, half, 0.1, distance+radius+padding)
	return proj.Mul(view)
}

// SunDirection converts an azimuth around +Y and an elevation above the
// horizon, both in degrees, into the direction sunlight travels.
func SunDirection(azimuth, elevation float32) math.Vec3 {
	lon := math.Radians(azimuth)
	lat := math.Radians(elevation)
	sinLon, cosLon := math32.Sincos(lon)
	sinLat, cosLat := math32.Sincos(lat)
	toSun := math.Vec3{X: cosLat * sinLon, Y: sinLat, Z: cosLat * cosLon}
	return toSun.Scale(-1)
}
