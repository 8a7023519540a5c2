package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// Values of the composite uShadowKind uniform.
const (
	shadowNone = iota
	shadowMap2D
	shadowCube
)

// shadowKind returns the composite shadow mode for a light's shadow view.
func shadowKind(view *render.View) int32 {
	switch {
	case view == nil:
		return shadowNone
	case view.Type == render.ViewShadowCube:
		return shadowCube
	case view.Type == render.ViewShadow:
		return shadowMap2D
	}
	return shadowNone
}

// shadowMap is a depth-only framebuffer. Cube maps attach all six faces as
// layers; the geometry shader routes each triangle with gl_Layer.
type shadowMap struct {
	fbo     uint32
	texture uint32
	target  uint32
	width   int32
	height  int32
}

func newShadowMap(width, height int32, cube bool) (*shadowMap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid shadow map size %dx%d", width, height)
	}
	sm := &shadowMap{target: gl.TEXTURE_2D, width: width, height: height}
	if cube {
		sm.target = gl.TEXTURE_CUBE_MAP
	}

	gl.GenFramebuffers(1, &sm.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, sm.fbo)

	gl.GenTextures(1, &sm.texture)
	gl.BindTexture(sm.target, sm.texture)
	if cube {
		for face := uint32(0); face < 6; face++ {
			gl.TexImage2D(gl.TEXTURE_CUBE_MAP_POSITIVE_X+face, 0, gl.DEPTH_COMPONENT24,
				width, height, 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
		}
		gl.TexParameteri(sm.target, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(sm.target, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(sm.target, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	} else {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT24, width, height, 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
		// White border: nothing outside the light frustum is shadowed.
		gl.TexParameteri(sm.target, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_BORDER)
		gl.TexParameteri(sm.target, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_BORDER)
		borderColor := []float32{1.0, 1.0, 1.0, 1.0}
		gl.TexParameterfv(sm.target, gl.TEXTURE_BORDER_COLOR, &borderColor[0])
	}
	gl.TexParameteri(sm.target, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(sm.target, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	// The composite compares depths itself.
	gl.TexParameteri(sm.target, gl.TEXTURE_COMPARE_MODE, gl.NONE)

	gl.FramebufferTexture(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, sm.texture, 0)
	gl.DrawBuffer(gl.NONE)
	gl.ReadBuffer(gl.NONE)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(sm.target, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		sm.destroy()
		return nil, fmt.Errorf("shadow framebuffer incomplete: 0x%x", status)
	}
	return sm, nil
}

// bind makes the map the render target and clears it.
func (sm *shadowMap) bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, sm.fbo)
	gl.Viewport(0, 0, sm.width, sm.height)
	gl.DepthMask(true)
	gl.Clear(gl.DEPTH_BUFFER_BIT)
}

// bindTexture binds the depth texture to unit for the composite.
func (sm *shadowMap) bindTexture(unit uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(sm.target, sm.texture)
}

func (sm *shadowMap) destroy() {
	if sm.fbo != 0 {
		gl.DeleteFramebuffers(1, &sm.fbo)
		sm.fbo = 0
	}
	if sm.texture != 0 {
		gl.DeleteTextures(1, &sm.texture)
		sm.texture = 0
	}
}
