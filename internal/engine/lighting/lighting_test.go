package lighting

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/renderlab/pkg/math"
)

func float(b []byte, off int) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestBlockSizes(t *testing.T) {
	assert.Equal(t, 416, LightBlockSize)
	assert.Equal(t, 32+6*416, FrameParamsSize)
	assert.Equal(t, 192, ObjectParamsSize)
}

func TestFrameParamsBytes(t *testing.T) {
	f := NewFrameParams()
	f.LightIndex = 2
	f.ViewPosition = math.Vec3{X: 1, Y: -15, Z: 3}
	require.True(t, f.AddLight(PointLightBlock(math.Vec3{X: 5}, math.Vec3{X: 1, Y: 0.5})))

	b := f.Bytes()
	require.Len(t, b, FrameParamsSize)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, float32(-15), float(b, 20))
	assert.Equal(t, float32(1), float(b, 28), "view position w")

	light := 32
	assert.Equal(t, float32(5), float(b, light+384), "light position x")
	assert.Equal(t, float32(1), float(b, light+384+12), "light position w")
	assert.Equal(t, float32(0.5), float(b, light+400+4), "light color g")
	assert.Equal(t, float32(1), float(b, light+400+12), "light color w")
}

func TestFrameParamsFull(t *testing.T) {
	f := NewFrameParams()
	for i := 0; i < MaxLights; i++ {
		require.True(t, f.AddLight(LightBlock{}))
	}
	assert.False(t, f.AddLight(LightBlock{}))
	assert.Equal(t, MaxLights, f.LightCount())

	f.Clear()
	assert.Equal(t, 0, f.LightCount())
}

func TestPointLightFaces(t *testing.T) {
	pos := math.Vec3{X: 10, Y: 2, Z: -4}
	b := PointLightBlock(pos, math.Vec3{X: 1, Y: 1, Z: 1})

	// A point one unit along +X projects to the center of face 0.
	clip := b.ViewProjections[0].MulVec4(pos.Add(math.Vec3{X: 1}).Vec4(1))
	assert.InDelta(t, 0, clip[0]/clip[3], 1e-4)
	assert.InDelta(t, 0, clip[1]/clip[3], 1e-4)
	depth := clip[2] / clip[3]
	assert.True(t, depth > 0 && depth < 1, "depth %v", depth)
}

func TestObjectParamsBytes(t *testing.T) {
	o := ObjectParams{
		Model:           math.Translate(1, 2, 3),
		ViewProjection:  math.Identity(),
		Albedo:          math.Vec4{0.5, 0.5, 0.5, 1},
		Emissive:        math.Vec3{X: 0.1},
		Metallic:        0.25,
		Roughness:       0.75,
		LightingEnabled: true,
	}
	b := o.Bytes()
	require.Len(t, b, ObjectParamsSize)
	assert.Equal(t, float32(2), float(b, 13*4), "model translation y")
	assert.Equal(t, float32(1), float(b, 64), "view projection [0]")
	assert.Equal(t, float32(0.5), float(b, 128))
	assert.Equal(t, float32(1), float(b, 144+12), "emissive w")
	assert.Equal(t, float32(0.25), float(b, 160))
	assert.Equal(t, float32(0.75), float(b, 164))
	assert.Equal(t, float32(1), float(b, 176), "lighting flag")

	o.LightingEnabled = false
	assert.Equal(t, float32(0), float(o.Bytes(), 176))
}

func TestAABB(t *testing.T) {
	b := BoundsOf([]float32{-1, 0, 2, 3, 4, -2})
	assert.Equal(t, math.Vec3{X: -1, Y: 0, Z: -2}, b.Min)
	assert.Equal(t, math.Vec3{X: 3, Y: 4, Z: 2}, b.Max)
	assert.Equal(t, math.Vec3{X: 1, Y: 2, Z: 0}, b.Center())

	moved := b.Transform(math.Translate(10, 0, 0))
	assert.Equal(t, float32(9), moved.Min.X)
	assert.Equal(t, float32(13), moved.Max.X)

	assert.True(t, EmptyAABB().Empty())
	assert.Equal(t, b, EmptyAABB().Union(b))
}

func TestDirectionalMatrixCoversBounds(t *testing.T) {
	bounds := AABB{Min: math.Vec3{X: -10, Y: -10, Z: -10}, Max: math.Vec3{X: 10, Y: 10, Z: 10}}
	vp := DirectionalMatrix(math.Vec3{Y: -1}, bounds)

	for _, p := range []math.Vec3{bounds.Min, bounds.Max, bounds.Center()} {
		c := vp.MulVec4(p.Vec4(1))
		assert.True(t, c[0] >= -1 && c[0] <= 1, "x %v", c[0])
		assert.True(t, c[1] >= -1 && c[1] <= 1, "y %v", c[1])
		assert.True(t, c[2] >= -1 && c[2] <= 1, "z %v", c[2])
	}
}

func TestSunDirection(t *testing.T) {
	d := SunDirection(0, 90)
	assert.InDelta(t, -1, d.Y, 1e-5, "sun overhead shines straight down")
	assert.InDelta(t, 1, d.Length(), 1e-5)
}
