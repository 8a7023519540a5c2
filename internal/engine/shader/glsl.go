package shader

import (
	"embed"
	"fmt"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// GLSLVersion is prepended to every GLSL stage.
const GLSLVersion = "#version 410 core\n"

//go:embed glsl
var glslFiles embed.FS

// GLSL returns the embedded GLSL stage name (e.g. "gbuffer.frag") with the
// version line and the shared block declarations prepended.
func GLSL(name string) (string, error) {
	body, err := glslFiles.ReadFile("glsl/" + name)
	if err != nil {
		return "", fmt.Errorf("glsl %s: %w", name, err)
	}
	common, err := glslFiles.ReadFile("glsl/common.glsl")
	if err != nil {
		return "", fmt.Errorf("glsl common: %w", err)
	}
	return GLSLVersion + string(common) + "\n" + string(body), nil
}

// GLSLProgram names the embedded GLSL stages used by the OpenGL backend for
// a technique. It mirrors ForMaterial for the SPIR-V path.
func GLSLProgram(mat *render.Material) (Program, error) {
	switch mat.Technique {
	case render.TechniqueDeferredLit:
		return Program{Vertex: "gbuffer.vert", Fragment: "gbuffer.frag"}, nil
	case render.TechniqueDeferredComposite:
		return Program{Vertex: "composite.vert", Fragment: "composite.frag"}, nil
	case render.TechniqueDepthPrepass:
		return Program{Vertex: "depth.vert", Fragment: "depth.frag"}, nil
	case render.TechniqueShadow:
		return Program{Vertex: "shadow.vert", Fragment: "depth.frag"}, nil
	case render.TechniqueShadowCube:
		return Program{Vertex: "shadow_cube.vert", Geometry: "shadow_cube.geom", Fragment: "depth.frag"}, nil
	}
	return Program{}, fmt.Errorf("%w: %s", ErrUnsupportedTechnique, mat.Technique)
}
