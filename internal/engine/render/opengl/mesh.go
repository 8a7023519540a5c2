package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/shader"
)

// Fixed attribute locations of the GLSL vertex stages.
const (
	locPosition = iota
	locNormal
	locUV
	locTangent
	locBitangent
)

type meshData struct {
	vao, vbo, ebo uint32
	indexCount    int32
	vertexCount   int32
	normals       bool
	pipelines     map[render.MeshPipeline]meshPipeline
}

type meshPipeline struct {
	pipeline *pipeline
	material render.Handle
}

func (md *meshData) destroy() {
	if md.vao != 0 {
		gl.DeleteVertexArrays(1, &md.vao)
	}
	for _, buf := range []*uint32{&md.vbo, &md.ebo} {
		if *buf != 0 {
			gl.DeleteBuffers(1, buf)
		}
	}
	*md = meshData{}
}

// attributeLocations maps the interleaved attributes of mesh to the fixed
// shader locations, since Layout numbers them consecutively.
func attributeLocations(mesh *render.Mesh) []uint32 {
	out := []uint32{locPosition}
	if mesh.HasNormals() {
		out = append(out, locNormal)
	}
	if mesh.HasUVs() {
		out = append(out, locUV)
	}
	if mesh.HasTangents() {
		out = append(out, locTangent, locBitangent)
	}
	return out
}

// BuildMesh uploads the mesh into a VAO, builds the materials it is drawn
// with and resolves its pipelines.
func (b *Backend) BuildMesh(mesh *render.Mesh, frameData, objectData []*render.UniformBuffer, lights []*render.Light) error {
	if !mesh.NeedsBuild() {
		return nil
	}
	if err := mesh.Validate(); err != nil {
		return err
	}
	if mesh.Material == nil {
		return fmt.Errorf("building mesh %s: no material", mesh.Name)
	}
	if old, ok := b.meshes.Get(mesh.Handle()); ok {
		old.destroy()
	}

	md := b.uploadMesh(mesh)
	for _, target := range b.depth.Targets(mesh, b.onscreen, b.opts.DepthPrepass, lights) {
		if target.View.Handle() == render.NoHandle {
			md.destroy()
			return fmt.Errorf("building mesh %s: %w: view %s", mesh.Name, render.ErrNotBuilt, target.View.Name)
		}
		if err := b.BuildMaterial(target.Material, frameData, objectData); err != nil {
			md.destroy()
			return err
		}
		mat, _ := b.materials.Get(target.Material.Handle())
		state := stateFor(target.Material.Technique, target.View.Type)
		if target.Material.TwoSided {
			state.cull = false
		}
		for frame := 0; frame < b.numFrames; frame++ {
			key, err := shader.PipelineKey(mesh, target.Material, uint32(frame))
			if err != nil {
				md.destroy()
				return fmt.Errorf("building mesh %s: %w", mesh.Name, err)
			}
			p, err := b.pipelines.GetOrCreate(key, func(render.PipelineKey) (*pipeline, error) {
				b.log.Debug("pipeline created", zap.Stringer("key", key), zap.String("program", mat.program.name))
				return &pipeline{program: mat.program, state: state}, nil
			})
			if err != nil {
				md.destroy()
				return err
			}
			md.pipelines[render.MeshPipeline{
				View:         target.View.Handle(),
				FrameIndex:   uint32(frame),
				DepthPrepass: target.DepthPrepass,
			}] = meshPipeline{pipeline: p, material: target.Material.Handle()}
		}
	}

	if h := mesh.Handle(); h == render.NoHandle || !b.meshes.Set(h, md) {
		mesh.SetHandle(b.meshes.Insert(md))
	}
	mesh.SetDirty(false)
	b.log.Debug("mesh uploaded",
		zap.String("mesh", mesh.Name),
		zap.Int("vertices", mesh.VertexCount()),
		zap.Int("indices", mesh.IndexCount()))
	return nil
}

func (b *Backend) uploadMesh(mesh *render.Mesh) *meshData {
	md := &meshData{
		indexCount:  int32(mesh.IndexCount()),
		vertexCount: int32(mesh.VertexCount()),
		normals:     mesh.HasNormals(),
		pipelines:   make(map[render.MeshPipeline]meshPipeline),
	}
	vertices := mesh.Interleave()
	layout := mesh.Layout()

	gl.GenVertexArrays(1, &md.vao)
	gl.BindVertexArray(md.vao)

	gl.GenBuffers(1, &md.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, md.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)

	locations := attributeLocations(mesh)
	for i, a := range layout.Attributes {
		gl.VertexAttribPointer(locations[i], int32(a.Components), gl.FLOAT, false,
			int32(layout.StrideBytes()), gl.PtrOffset(a.Offset*4))
		gl.EnableVertexAttribArray(locations[i])
	}

	if md.indexCount > 0 {
		gl.GenBuffers(1, &md.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, md.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(mesh.Indices)*4, gl.Ptr(mesh.Indices), gl.STATIC_DRAW)
	}

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return md
}

// pipeline is a program plus the fixed-function state it draws with.
type pipeline struct {
	program *program
	state   glState
}

type glState struct {
	depthTest  bool
	depthWrite bool
	colorWrite bool
	additive   bool
	depthBias  bool
	cull       bool
}

// stateFor returns the fixed-function state of a technique drawn into a
// view of type viewType. Depth compare is LEQUAL throughout so the G-buffer
// fill passes on the depth laid down by the pre-pass.
func stateFor(tech render.Technique, viewType render.ViewType) glState {
	s := glState{depthTest: true, depthWrite: true, colorWrite: true, cull: true}
	switch {
	case viewType.IsShadow():
		s.colorWrite = false
		s.depthBias = true
	case tech == render.TechniqueDepthPrepass:
		s.colorWrite = false
	case tech == render.TechniqueDeferredComposite:
		s.depthTest, s.depthWrite = false, false
		s.additive = true
		s.cull = false
	}
	return s
}

// apply sets the GL state of s.
func (s glState) apply(depthBiasConstant, depthBiasSlope float32) {
	enable(gl.DEPTH_TEST, s.depthTest)
	gl.DepthMask(s.depthWrite)
	gl.ColorMask(s.colorWrite, s.colorWrite, s.colorWrite, s.colorWrite)
	enable(gl.BLEND, s.additive)
	if s.additive {
		gl.BlendFunc(gl.ONE, gl.ONE)
	}
	enable(gl.CULL_FACE, s.cull)
	enable(gl.POLYGON_OFFSET_FILL, s.depthBias)
	if s.depthBias {
		gl.PolygonOffset(depthBiasSlope, depthBiasConstant)
	}
}

func enable(capability uint32, on bool) {
	if on {
		gl.Enable(capability)
	} else {
		gl.Disable(capability)
	}
}
