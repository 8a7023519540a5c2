package opengl

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/shader"
)

// Texture units. Material maps take the first five, the composite reads
// the G-buffer from the same units and the shadow maps after them.
const (
	unitShadowMap  = 5
	unitShadowCube = 6
)

var (
	materialSamplers  = [5]string{"uAlbedoMap", "uNormalMap", "uMetallicRoughnessMap", "uOcclusionMap", "uEmissiveMap"}
	compositeSamplers = [5]string{"uPosition", "uNormal", "uAlbedo", "uMetallicRoughness", "uEmissive"}
)

// program is a linked GL program with its uniform locations.
type program struct {
	id       uint32
	name     string
	uniforms map[string]int32
}

// uniform returns the location of name, -1 when the linker dropped it.
func (p *program) uniform(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

func (p *program) setInt(name string, v int32) {
	if loc := p.uniform(name); loc >= 0 {
		gl.Uniform1i(loc, v)
	}
}

func (p *program) setVec4(name string, v [4]float32) {
	if loc := p.uniform(name); loc >= 0 {
		gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
	}
}

// program compiles and links the embedded GLSL stages of p once.
func (b *Backend) program(p shader.Program) (*program, error) {
	name := strings.Join(p.Stages(), "+")
	if prog, ok := b.programs[name]; ok {
		return prog, nil
	}

	var shaders []uint32
	defer func() {
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
	}()
	for _, stage := range p.Stages() {
		src, err := shader.GLSL(stage)
		if err != nil {
			return nil, err
		}
		s, err := compileShader(src, stageType(stage))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		shaders = append(shaders, s)
	}
	id, err := linkProgram(shaders)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	prog := &program{id: id, name: name, uniforms: make(map[string]int32)}
	bindBlock(id, "FrameParams", frameBinding)
	bindBlock(id, "ObjectParams", objectBinding)
	gl.UseProgram(id)
	for i := range materialSamplers {
		prog.setInt(materialSamplers[i], int32(i))
		prog.setInt(compositeSamplers[i], int32(i))
	}
	prog.setInt("uShadowMap", unitShadowMap)
	prog.setInt("uShadowCube", unitShadowCube)
	gl.UseProgram(0)

	b.programs[name] = prog
	b.log.Debug("shader program created", zap.String("program", name), zap.Uint32("id", id))
	return prog, nil
}

// stageType maps an embedded stage name to its GL shader type.
func stageType(name string) uint32 {
	switch {
	case strings.HasSuffix(name, ".geom"):
		return gl.GEOMETRY_SHADER
	case strings.HasSuffix(name, ".frag"):
		return gl.FRAGMENT_SHADER
	}
	return gl.VERTEX_SHADER
}

// bindBlock points the named uniform block at binding. Blocks the stage
// does not use are optimized out and skipped.
func bindBlock(prog uint32, name string, binding uint32) {
	idx := gl.GetUniformBlockIndex(prog, gl.Str(name+"\x00"))
	if idx != gl.INVALID_INDEX {
		gl.UniformBlockBinding(prog, idx, binding)
	}
}

// compileShader compiles a shader from source.
func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %s", log)
	}
	return shader, nil
}

func linkProgram(shaders []uint32) (uint32, error) {
	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link failed: %s", log)
	}
	for _, s := range shaders {
		gl.DetachShader(program, s)
	}
	return program, nil
}
