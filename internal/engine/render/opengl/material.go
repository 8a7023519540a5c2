package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/shader"
)

type bufferData struct {
	ubo  uint32
	size int
}

// BuildUniformBuffer allocates a dynamic uniform buffer of ub.Size bytes.
func (b *Backend) BuildUniformBuffer(ub *render.UniformBuffer) error {
	if !ub.NeedsBuild() {
		return nil
	}
	if ub.Size <= 0 {
		return fmt.Errorf("uniform buffer %s: size %d", ub.Name, ub.Size)
	}
	if old, ok := b.uniforms.Get(ub.Handle()); ok {
		gl.DeleteBuffers(1, &old.ubo)
	}
	bd := &bufferData{size: ub.Size}
	gl.GenBuffers(1, &bd.ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, bd.ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, ub.Size, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)

	if h := ub.Handle(); h == render.NoHandle || !b.uniforms.Set(h, bd) {
		ub.SetHandle(b.uniforms.Insert(bd))
	}
	ub.SetDirty(false)
	b.log.Debug("uniform buffer built", zap.String("buffer", ub.Name), zap.Int("size", ub.Size))
	return nil
}

// UpdateUniformData writes data into ub at offset. Writes are ordered with
// the draws already issued.
func (b *Backend) UpdateUniformData(ub *render.UniformBuffer, offset int, data []byte) error {
	bd, ok := b.uniforms.Get(ub.Handle())
	if !ok {
		return fmt.Errorf("updating %s: %w", ub.Name, render.ErrNotBuilt)
	}
	if offset < 0 || offset+len(data) > bd.size {
		return fmt.Errorf("updating %s: %d bytes at %d overflow %d", ub.Name, len(data), offset, bd.size)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, bd.ubo)
	gl.BufferSubData(gl.UNIFORM_BUFFER, offset, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	return nil
}

type materialData struct {
	mat      *render.Material
	program  *program
	textures [5]uint32
	mask     int32
}

// textureSlots returns the texture slots of mat in sampler order, nil for
// unset slots.
func textureSlots(mat *render.Material) [5]*render.Texture {
	return [5]*render.Texture{
		mat.AlbedoTexture,
		mat.NormalTexture,
		mat.MetallicRoughnessTexture,
		mat.OcclusionTexture,
		mat.EmissiveTexture,
	}
}

// textureMask sets bit i for every present texture slot, in the order of
// the gbuffer.frag samplers.
func textureMask(mat *render.Material) int32 {
	var mask int32
	for i, tex := range textureSlots(mat) {
		if tex != nil {
			mask |= 1 << i
		}
	}
	return mask
}

// BuildMaterial links the material program and uploads its textures.
func (b *Backend) BuildMaterial(mat *render.Material, frameData, objectData []*render.UniformBuffer) error {
	if !mat.NeedsBuild() {
		return nil
	}
	p, err := shader.GLSLProgram(mat)
	if err != nil {
		return fmt.Errorf("building material %s: %w", mat.Name, err)
	}
	if len(frameData) < b.numFrames || len(objectData) < b.numFrames {
		return fmt.Errorf("building material %s: need %d frame and object buffers", mat.Name, b.numFrames)
	}
	for i := 0; i < b.numFrames; i++ {
		if frameData[i].Handle() == render.NoHandle || objectData[i].Handle() == render.NoHandle {
			return fmt.Errorf("building material %s: %w: uniform buffers for frame %d", mat.Name, render.ErrNotBuilt, i)
		}
	}
	prog, err := b.program(p)
	if err != nil {
		return b.fail(fmt.Errorf("building material %s: %w", mat.Name, err))
	}

	md := &materialData{mat: mat, program: prog, mask: textureMask(mat)}
	for i, tex := range textureSlots(mat) {
		if tex == nil {
			continue
		}
		if md.textures[i], err = b.buildTexture(tex); err != nil {
			return fmt.Errorf("building material %s: %w", mat.Name, err)
		}
	}

	if h := mat.Handle(); h == render.NoHandle || !b.materials.Set(h, md) {
		mat.SetHandle(b.materials.Insert(md))
	}
	mat.SetDirty(false)
	return nil
}

// bindTextures binds the material maps to units 0..4.
func (md *materialData) bindTextures() {
	for i, tex := range md.textures {
		if tex == 0 {
			continue
		}
		gl.ActiveTexture(uint32(gl.TEXTURE0 + i))
		gl.BindTexture(gl.TEXTURE_2D, tex)
	}
}

// buildTexture uploads tex once per name with mipmaps.
func (b *Backend) buildTexture(tex *render.Texture) (uint32, error) {
	if h, ok := b.textureCache[tex.Name]; ok {
		if id, ok := b.textures.Get(h); ok {
			tex.SetHandle(h)
			tex.SetDirty(false)
			return id, nil
		}
	}
	if tex.Width <= 0 || tex.Height <= 0 || len(tex.Data) < tex.Size() {
		return 0, fmt.Errorf("texture %s: %d bytes for %dx%d", tex.Name, len(tex.Data), tex.Width, tex.Height)
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(tex.Width), int32(tex.Height), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(tex.Data))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	h := b.textures.Insert(id)
	b.textureCache[tex.Name] = h
	tex.SetHandle(h)
	tex.SetDirty(false)
	b.log.Debug("texture uploaded", zap.String("texture", tex.Name), zap.Int("width", tex.Width), zap.Int("height", tex.Height))
	return id, nil
}
