package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// gbufferFormat is the internal format, format and type of one G-buffer
// target.
type gbufferFormat struct {
	internal int32
	format   uint32
	xtype    uint32
}

// gbufferFormats lists the targets in attachment order: position, normal,
// albedo, metallic-roughness and emissive.
var gbufferFormats = [5]gbufferFormat{
	{gl.RGBA16F, gl.RGBA, gl.FLOAT},
	{gl.RGBA16F, gl.RGBA, gl.FLOAT},
	{gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
	{gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
	{gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
}

// gbuffer is the multiple render target framebuffer of the on-screen view.
type gbuffer struct {
	fbo     uint32
	targets [len(gbufferFormats)]uint32
	depth   uint32
	width   int32
	height  int32
}

// newGBuffer creates the G-buffer with the specified dimensions.
func newGBuffer(width, height int32) (*gbuffer, error) {
	g := &gbuffer{width: max(width, 1), height: max(height, 1)}
	if err := g.create(); err != nil {
		return nil, fmt.Errorf("creating g-buffer: %w", err)
	}
	return g, nil
}

func (g *gbuffer) create() error {
	gl.GenFramebuffers(1, &g.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, g.fbo)

	gl.GenTextures(int32(len(g.targets)), &g.targets[0])
	drawBuffers := make([]uint32, len(g.targets))
	for i, tex := range g.targets {
		f := gbufferFormats[i]
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.TexImage2D(gl.TEXTURE_2D, 0, f.internal, g.width, g.height, 0, f.format, f.xtype, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
		attachment := uint32(gl.COLOR_ATTACHMENT0 + i)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, attachment, gl.TEXTURE_2D, tex, 0)
		drawBuffers[i] = attachment
	}
	gl.DrawBuffers(int32(len(drawBuffers)), &drawBuffers[0])

	gl.GenRenderbuffers(1, &g.depth)
	gl.BindRenderbuffer(gl.RENDERBUFFER, g.depth)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT32F, g.width, g.height)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, g.depth)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		g.destroy()
		return fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	return nil
}

// bind makes the G-buffer the render target and clears every target to
// zero, so the composite skips pixels no mesh covered.
func (g *gbuffer) bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, g.fbo)
	gl.Viewport(0, 0, g.width, g.height)
	gl.ColorMask(true, true, true, true)
	gl.DepthMask(true)
	zero := [4]float32{}
	for i := range g.targets {
		gl.ClearBufferfv(gl.COLOR, int32(i), &zero[0])
	}
	one := float32(1)
	gl.ClearBufferfv(gl.DEPTH, 0, &one)
}

// bindTextures binds the targets to texture units 0..4 for the composite.
func (g *gbuffer) bindTextures() {
	for i, tex := range g.targets {
		gl.ActiveTexture(uint32(gl.TEXTURE0 + i))
		gl.BindTexture(gl.TEXTURE_2D, tex)
	}
}

// resize reallocates the targets if the dimensions changed.
func (g *gbuffer) resize(width, height int32) {
	width, height = max(width, 1), max(height, 1)
	if width == g.width && height == g.height {
		return
	}
	g.width, g.height = width, height
	for i, tex := range g.targets {
		f := gbufferFormats[i]
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.TexImage2D(gl.TEXTURE_2D, 0, f.internal, g.width, g.height, 0, f.format, f.xtype, nil)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.BindRenderbuffer(gl.RENDERBUFFER, g.depth)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT32F, g.width, g.height)
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
}

func (g *gbuffer) destroy() {
	if g.fbo != 0 {
		gl.DeleteFramebuffers(1, &g.fbo)
		g.fbo = 0
	}
	if g.targets[0] != 0 {
		gl.DeleteTextures(int32(len(g.targets)), &g.targets[0])
		g.targets = [len(gbufferFormats)]uint32{}
	}
	if g.depth != 0 {
		gl.DeleteRenderbuffers(1, &g.depth)
		g.depth = 0
	}
}
