package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Faultbox/renderlab/pkg/math"
)

func TestViewDefaults(t *testing.T) {
	v := NewView("main", ViewScreen)
	assert.Equal(t, float32(45), v.FieldOfView)
	assert.Equal(t, float32(0.1), v.NearClip)
	assert.Equal(t, float32(200), v.FarClip)
	w, h := v.Extent()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
	assert.True(t, v.Dirty())
}

func TestViewPosition(t *testing.T) {
	v := NewView("main", ViewScreen)
	v.ViewMatrix = math.LookAt(math.Vec3{X: 0, Y: -15, Z: 0}, math.Vec3{Y: -15, Z: 1}, math.Vec3{Y: 1})
	p := v.Position()
	assert.InDelta(t, 0, p.X, 1e-4)
	assert.InDelta(t, -15, p.Y, 1e-4)
	assert.InDelta(t, 0, p.Z, 1e-4)
}

func TestViewProjectionDepthRange(t *testing.T) {
	v := NewView("main", ViewScreen)
	v.SetExtent(1200, 800)
	proj := v.Projection()

	near := proj.MulVec4(math.Vec4{0, 0, -v.NearClip, 1})
	far := proj.MulVec4(math.Vec4{0, 0, -v.FarClip, 1})
	assert.InDelta(t, 0, near[2]/near[3], 1e-4)
	assert.InDelta(t, 1, far[2]/far[3], 1e-4)
}

func TestLightShadowViews(t *testing.T) {
	sizes := DefaultShadowSizes()

	dir := NewLight("sun", LightDirectional, true, sizes)
	assert.Equal(t, ViewShadow, dir.ShadowView.Type)
	assert.Equal(t, "sun shadow view", dir.ShadowView.Name)
	w, _ := dir.ShadowView.Extent()
	assert.Equal(t, 2048, w)

	point := NewLight("bulb", LightPoint, true, sizes)
	assert.Equal(t, ViewShadowCube, point.ShadowView.Type)
	assert.Equal(t, "bulb shadow cube view", point.ShadowView.Name)
	w, _ = point.ShadowView.Extent()
	assert.Equal(t, 1024, w)

	off := NewLight("fill", LightPoint, false, sizes)
	assert.Nil(t, off.ShadowView)
	assert.True(t, off.Dirty())
}

func TestAlign(t *testing.T) {
	tests := []struct{ size, align, want int }{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{272, 256, 512},
		{272, 16, 272},
		{272, 0, 272},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Align(tt.size, tt.align), "Align(%d, %d)", tt.size, tt.align)
	}
}
