package render

// Names of the backend-wide depth-only materials.
const (
	DepthPrepassMaterialName = "Depth Prepass Material"
	ShadowMaterialName       = "Shadow Material"
	ShadowCubeMaterialName   = "Shadow Cube Material"
)

// DepthMaterials lazily creates the materials shared by every depth-only
// draw: the depth pre-pass and the two shadow techniques. A backend owns
// one instance.
type DepthMaterials struct {
	prepass    *Material
	shadow     *Material
	shadowCube *Material
}

// Prepass returns the depth pre-pass material.
func (d *DepthMaterials) Prepass() *Material {
	if d.prepass == nil {
		d.prepass = NewMaterial(DepthPrepassMaterialName, TechniqueDepthPrepass)
	}
	return d.prepass
}

// Shadow returns the material for shadow views of type t, or nil for views
// that are not shadow maps.
func (d *DepthMaterials) Shadow(t ViewType) *Material {
	switch t {
	case ViewShadow:
		if d.shadow == nil {
			d.shadow = NewMaterial(ShadowMaterialName, TechniqueShadow)
		}
		return d.shadow
	case ViewShadowCube:
		if d.shadowCube == nil {
			d.shadowCube = NewMaterial(ShadowCubeMaterialName, TechniqueShadowCube)
		}
		return d.shadowCube
	}
	return nil
}

// All returns the materials created so far.
func (d *DepthMaterials) All() []*Material {
	var out []*Material
	for _, m := range []*Material{d.prepass, d.shadow, d.shadowCube} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// MaterialFor returns the material mesh is drawn with into view.
func (d *DepthMaterials) MaterialFor(mesh *Mesh, view *View, depthPrepass bool) *Material {
	switch {
	case view.Type.IsShadow():
		return d.Shadow(view.Type)
	case depthPrepass:
		return d.Prepass()
	}
	return mesh.Material
}

// PipelineTarget is one view and material combination a mesh is drawn with.
type PipelineTarget struct {
	View         *View
	Material     *Material
	DepthPrepass bool
}

// Targets lists every combination BuildMesh must create pipelines for: the
// on-screen view, its depth pre-pass when enabled, and the shadow view of
// every light that casts shadows. Composite meshes only run in the
// lighting subpass of the on-screen view.
func (d *DepthMaterials) Targets(mesh *Mesh, onscreen *View, depthPrepass bool, lights []*Light) []PipelineTarget {
	var out []PipelineTarget
	composite := mesh.Material != nil && mesh.Material.Technique == TechniqueDeferredComposite
	if onscreen != nil {
		out = append(out, PipelineTarget{View: onscreen, Material: mesh.Material})
		if composite {
			return out
		}
		if depthPrepass {
			out = append(out, PipelineTarget{View: onscreen, Material: d.Prepass(), DepthPrepass: true})
		}
	}
	for _, l := range lights {
		if !l.CastShadow || l.ShadowView == nil {
			continue
		}
		out = append(out, PipelineTarget{View: l.ShadowView, Material: d.Shadow(l.ShadowView.Type)})
	}
	return out
}

// MeshPipeline identifies the pipeline a mesh binds for one view and frame.
type MeshPipeline struct {
	View         Handle
	FrameIndex   uint32
	DepthPrepass bool
}
