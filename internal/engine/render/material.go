package render

import "github.com/Faultbox/renderlab/pkg/math"

// Technique selects the shader family and fixed-function state of a material.
type Technique int

const (
	TechniqueUnlit Technique = iota
	TechniqueLit
	TechniqueLitNormalMap
	TechniqueLitNoTexture
	TechniqueShadow
	TechniqueShadowCube
	TechniqueDepthPrepass
	TechniqueDeferredLit
	TechniqueDeferredComposite
)

var techniqueNames = [...]string{
	TechniqueUnlit:             "unlit",
	TechniqueLit:               "lit",
	TechniqueLitNormalMap:      "lit-normal-map",
	TechniqueLitNoTexture:      "lit-no-texture",
	TechniqueShadow:            "shadow",
	TechniqueShadowCube:        "shadow-cube",
	TechniqueDepthPrepass:      "depth-prepass",
	TechniqueDeferredLit:       "deferred-lit",
	TechniqueDeferredComposite: "deferred-composite",
}

func (t Technique) String() string {
	if t >= 0 && int(t) < len(techniqueNames) {
		return techniqueNames[t]
	}
	return "unknown"
}

// DepthOnly reports whether the technique writes no color attachments.
func (t Technique) DepthOnly() bool {
	return t == TechniqueShadow || t == TechniqueShadowCube || t == TechniqueDepthPrepass
}

// Material holds surface parameters shared by any number of meshes.
type Material struct {
	Resource

	Name      string
	Technique Technique

	Albedo    math.Vec4
	Metallic  float32
	Roughness float32
	Emissive  math.Vec3

	AlbedoTexture            *Texture
	NormalTexture            *Texture
	MetallicRoughnessTexture *Texture
	OcclusionTexture         *Texture
	EmissiveTexture          *Texture

	TwoSided bool
	Blend    bool
	Lighting bool
}

// NewMaterial creates a dirty material with white albedo, metallic and
// roughness 1, no emission and lighting enabled.
func NewMaterial(name string, technique Technique) *Material {
	return &Material{
		Name:      name,
		Technique: technique,
		Albedo:    math.Vec4{1, 1, 1, 1},
		Metallic:  1,
		Roughness: 1,
		Lighting:  true,
	}
}

// Textures returns the non-nil texture slots in binding order.
func (m *Material) Textures() []*Texture {
	var out []*Texture
	for _, t := range []*Texture{m.AlbedoTexture, m.NormalTexture, m.MetallicRoughnessTexture, m.OcclusionTexture, m.EmissiveTexture} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// HasTextures reports whether any texture slot is set.
func (m *Material) HasTextures() bool {
	return len(m.Textures()) > 0
}
