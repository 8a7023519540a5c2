// Package shader resolves the shader files a material needs and loads
// their SPIR-V or GLSL sources.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// ErrUnsupportedTechnique is returned for techniques without a shader set.
var ErrUnsupportedTechnique = errors.New("no shaders for technique")

const spirvExt = ".spv"

// Program names the shader stages of one material. Geometry is empty for
// two-stage programs. Names are relative to the shader directory.
type Program struct {
	Vertex   string
	Geometry string
	Fragment string
}

// Variant returns the fragment shader name without extensions. Pipelines
// of one technique with different variants are not interchangeable.
func (p Program) Variant() string {
	name, _, _ := strings.Cut(p.Fragment, ".")
	return name
}

// Stages returns the non-empty stage names in pipeline order.
func (p Program) Stages() []string {
	out := []string{p.Vertex}
	if p.Geometry != "" {
		out = append(out, p.Geometry)
	}
	return append(out, p.Fragment)
}

// ForMaterial returns the SPIR-V program for mat's technique.
func ForMaterial(mat *render.Material) (Program, error) {
	switch mat.Technique {
	case render.TechniqueDeferredLit:
		return Program{Vertex: GBufferVertex(mat), Fragment: GBufferFragment(mat)}, nil
	case render.TechniqueDeferredComposite:
		return fixed("DeferredComposite", false), nil
	case render.TechniqueDepthPrepass:
		return fixed("DepthPrepass", false), nil
	case render.TechniqueShadow:
		return fixed("Shadow", false), nil
	case render.TechniqueShadowCube:
		return fixed("ShadowCube", true), nil
	}
	return Program{}, fmt.Errorf("%w: %s", ErrUnsupportedTechnique, mat.Technique)
}

func fixed(base string, geometry bool) Program {
	p := Program{
		Vertex:   base + ".vert" + spirvExt,
		Fragment: base + ".frag" + spirvExt,
	}
	if geometry {
		p.Geometry = base + ".geom" + spirvExt
	}
	return p
}

// GBufferFragment returns the G-buffer fill fragment shader for mat. Each
// slot contributes T (texture) or C/N/V (constant, none, vertex) so that
// every texture combination maps to its own file.
func GBufferFragment(mat *render.Material) string {
	var b strings.Builder
	b.WriteString("GBuffer_")
	b.WriteString(pick(mat.EmissiveTexture, "TE_", "CE_"))
	b.WriteString(pick(mat.AlbedoTexture, "TA_", "CA_"))
	b.WriteString(pick(mat.MetallicRoughnessTexture, "TM_", "CM_"))
	b.WriteString(pick(mat.OcclusionTexture, "TO_", "NO_"))
	b.WriteString(pick(mat.NormalTexture, "TN", "VN"))
	b.WriteString(".frag" + spirvExt)
	return b.String()
}

// GBufferVertex returns the G-buffer fill vertex shader for mat.
func GBufferVertex(mat *render.Material) string {
	switch {
	case !mat.HasTextures():
		return "GBuffer_VN_NT.vert" + spirvExt
	case mat.NormalTexture != nil:
		return "GBuffer_TN.vert" + spirvExt
	}
	return "GBuffer_VN.vert" + spirvExt
}

func pick(t *render.Texture, textured, constant string) string {
	if t != nil {
		return textured
	}
	return constant
}

// PipelineKey returns the pipeline cache key for drawing mesh with mat.
// Deferred-lit materials are further split by their shader variant.
func PipelineKey(mesh *render.Mesh, mat *render.Material, frameIndex uint32) (render.PipelineKey, error) {
	p, err := ForMaterial(mat)
	if err != nil {
		return render.PipelineKey{}, err
	}
	key := render.PipelineKey{
		BufferCount: mesh.BufferCount(),
		Streams:     mesh.Streams(),
		Technique:   mat.Technique,
		FrameIndex:  frameIndex,
	}
	if mat.Technique == render.TechniqueDeferredLit {
		key.Variant = p.Variant()
	}
	return key, nil
}
