package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthMaterialsLazy(t *testing.T) {
	var d DepthMaterials
	assert.Empty(t, d.All())

	p := d.Prepass()
	assert.Same(t, p, d.Prepass())
	assert.Equal(t, TechniqueDepthPrepass, p.Technique)

	assert.Equal(t, TechniqueShadow, d.Shadow(ViewShadow).Technique)
	assert.Equal(t, TechniqueShadowCube, d.Shadow(ViewShadowCube).Technique)
	assert.Nil(t, d.Shadow(ViewScreen))
	assert.Len(t, d.All(), 3)
}

func TestTargets(t *testing.T) {
	var d DepthMaterials
	screen := NewView("screen", ViewScreen)
	mesh := NewMesh("m")
	mesh.Material = NewMaterial("mat", TechniqueDeferredLit)

	sun := NewLight("sun", LightDirectional, true, DefaultShadowSizes())
	bulb := NewLight("bulb", LightPoint, true, DefaultShadowSizes())
	dark := NewLight("dark", LightPoint, false, DefaultShadowSizes())

	targets := d.Targets(mesh, screen, true, []*Light{sun, dark, bulb})
	require.Len(t, targets, 4)

	assert.Same(t, screen, targets[0].View)
	assert.Same(t, mesh.Material, targets[0].Material)
	assert.False(t, targets[0].DepthPrepass)

	assert.Same(t, screen, targets[1].View)
	assert.True(t, targets[1].DepthPrepass)
	assert.Equal(t, TechniqueDepthPrepass, targets[1].Material.Technique)

	assert.Same(t, sun.ShadowView, targets[2].View)
	assert.Equal(t, TechniqueShadow, targets[2].Material.Technique)
	assert.Same(t, bulb.ShadowView, targets[3].View)
	assert.Equal(t, TechniqueShadowCube, targets[3].Material.Technique)

	assert.Len(t, d.Targets(mesh, screen, false, nil), 1)
}

func TestMaterialFor(t *testing.T) {
	var d DepthMaterials
	mesh := NewMesh("m")
	mesh.Material = NewMaterial("mat", TechniqueDeferredLit)

	assert.Same(t, mesh.Material, d.MaterialFor(mesh, NewView("s", ViewScreen), false))
	assert.Same(t, d.Prepass(), d.MaterialFor(mesh, NewView("s", ViewScreen), true))
	assert.Same(t, d.Shadow(ViewShadowCube), d.MaterialFor(mesh, NewView("c", ViewShadowCube), false))
}

func TestCompositeTargets(t *testing.T) {
	var d DepthMaterials
	screen := NewView("screen", ViewScreen)
	mesh := NewMesh("Composite Mesh")
	mesh.Material = NewMaterial("Composite Material", TechniqueDeferredComposite)
	sun := NewLight("sun", LightDirectional, true, DefaultShadowSizes())

	targets := d.Targets(mesh, screen, true, []*Light{sun})
	require.Len(t, targets, 1)
	assert.Same(t, screen, targets[0].View)
	assert.Empty(t, d.All())
}
