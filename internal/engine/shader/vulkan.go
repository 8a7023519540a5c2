package shader

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

//go:generate go run ../../../cmd/shadergen -out ../../../shaders

// VulkanGLSLVersion is prepended to every Vulkan GLSL stage.
const VulkanGLSLVersion = "#version 450\n"

//go:embed vulkan
var vulkanFiles embed.FS

// Compile is one SPIR-V file built from an embedded Vulkan GLSL stage.
type Compile struct {
	Output  string // SPIR-V name as returned by ForMaterial
	Source  string // embedded stage, e.g. "gbuffer.frag"
	Defines []string
}

// Stage returns the glslc stage name of c.
func (c Compile) Stage() string {
	return c.Source[strings.LastIndexByte(c.Source, '.')+1:]
}

// VulkanSource returns the GLSL text of c with the version line, the
// defines and the shared block declarations prepended.
func VulkanSource(c Compile) (string, error) {
	body, err := vulkanFiles.ReadFile("vulkan/" + c.Source)
	if err != nil {
		return "", fmt.Errorf("vulkan glsl %s: %w", c.Source, err)
	}
	common, err := vulkanFiles.ReadFile("vulkan/common.glsl")
	if err != nil {
		return "", fmt.Errorf("vulkan glsl common: %w", err)
	}
	var b strings.Builder
	b.WriteString(VulkanGLSLVersion)
	for _, d := range c.Defines {
		fmt.Fprintf(&b, "#define %s\n", d)
	}
	b.Write(common)
	b.WriteString("\n")
	b.Write(body)
	return b.String(), nil
}

// fixedSources maps the stages of the fixed techniques to their GLSL.
var fixedSources = map[string]string{
	"DeferredComposite.vert.spv": "composite.vert",
	"DeferredComposite.frag.spv": "composite.frag",
	"DepthPrepass.vert.spv":      "depth.vert",
	"DepthPrepass.frag.spv":      "depth.frag",
	"Shadow.vert.spv":            "shadow.vert",
	"Shadow.frag.spv":            "depth.frag",
	"ShadowCube.vert.spv":        "shadow_cube.vert",
	"ShadowCube.geom.spv":        "shadow_cube.geom",
	"ShadowCube.frag.spv":        "depth.frag",
}

// VulkanCompiles lists every SPIR-V file the Vulkan backend can ask for,
// sorted by output name.
func VulkanCompiles() []Compile {
	out := make(map[string]Compile, len(fixedSources)+35)
	for name, src := range fixedSources {
		out[name] = Compile{Output: name, Source: src}
	}

	placeholder := &render.Texture{}
	for mask := 0; mask < 1<<5; mask++ {
		mat := render.NewMaterial("variant", render.TechniqueDeferredLit)
		slots := []**render.Texture{
			&mat.AlbedoTexture,
			&mat.NormalTexture,
			&mat.MetallicRoughnessTexture,
			&mat.OcclusionTexture,
			&mat.EmissiveTexture,
		}
		for i, s := range slots {
			if mask&(1<<i) != 0 {
				*s = placeholder
			}
		}
		vert := GBufferVertex(mat)
		out[vert] = Compile{Output: vert, Source: "gbuffer.vert", Defines: gbufferDefines(mat, false)}
		frag := GBufferFragment(mat)
		out[frag] = Compile{Output: frag, Source: "gbuffer.frag", Defines: gbufferDefines(mat, true)}
	}

	list := make([]Compile, 0, len(out))
	for _, c := range out {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Output < list[j].Output })
	return list
}

// gbufferDefines returns the preprocessor switches of mat's G-buffer
// stages. Vertex stages only care about the inputs they forward.
func gbufferDefines(mat *render.Material, fragment bool) []string {
	var defs []string
	if mat.HasTextures() {
		defs = append(defs, "HAS_UV")
	}
	if mat.NormalTexture != nil {
		defs = append(defs, "NORMAL_MAP")
	}
	if !fragment {
		return defs
	}
	if mat.AlbedoTexture != nil {
		defs = append(defs, "ALBEDO_MAP")
	}
	if mat.MetallicRoughnessTexture != nil {
		defs = append(defs, "METALLIC_ROUGHNESS_MAP")
	}
	if mat.OcclusionTexture != nil {
		defs = append(defs, "OCCLUSION_MAP")
	}
	if mat.EmissiveTexture != nil {
		defs = append(defs, "EMISSIVE_MAP")
	}
	return defs
}
