// Package lighting packs frame and per-object shader parameter blocks.
//
// Layouts follow std430 rules as read by the deferred shaders:
//
//	FrameParams  { ivec4 lightInfo; vec4 viewPosition; LightBlock lights[MaxLights]; }
//	LightBlock   { mat4 viewProjections[6]; vec4 position; vec4 color; }
//	ObjectParams { mat4 model; mat4 viewProjection; vec4 albedo; vec4 emissive;
//	               vec4 metallicRoughness; vec4 flags; }
package lighting

import (
	"encoding/binary"
	gomath "math"

	"github.com/Faultbox/renderlab/pkg/math"
)

// MaxLights is the number of light slots in the frame block.
const MaxLights = 6

// Block sizes in bytes.
const (
	LightBlockSize  = 6*64 + 16 + 16
	FrameParamsSize = 16 + 16 + MaxLights*LightBlockSize

	lightsOffset       = 32
	viewPositionOffset = 16
)

// Cube shadow projection parameters.
const (
	CubeNear = 0.1
	CubeFar  = 1000
)

// LightBlock is the shader view of one light.
type LightBlock struct {
	ViewProjections [6]math.Mat4
	Position        math.Vec4
	Color           math.Vec4
}

// PointLightBlock builds the block of a point light at a world position,
// with one view-projection per cube face.
func PointLightBlock(position, diffuse math.Vec3) LightBlock {
	return LightBlock{
		ViewProjections: math.CubeViewProjections(position, CubeNear, CubeFar),
		Position:        position.Vec4(1),
		Color:           diffuse.Vec4(1),
	}
}

// DirectionalLightBlock builds the block of a directional light. Every face
// slot holds the same orthographic matrix fitted to bounds.
func DirectionalLightBlock(direction, diffuse math.Vec3, bounds AABB) LightBlock {
	vp := DirectionalMatrix(direction, bounds)
	b := LightBlock{
		Position: direction.Vec4(0),
		Color:    diffuse.Vec4(1),
	}
	for i := range b.ViewProjections {
		b.ViewProjections[i] = vp
	}
	return b
}

// FrameParams accumulates the per-frame block.
type FrameParams struct {
	LightIndex   int
	ViewPosition math.Vec3
	Lights       []LightBlock
}

// NewFrameParams creates an empty frame block.
func NewFrameParams() *FrameParams {
	return &FrameParams{Lights: make([]LightBlock, 0, MaxLights)}
}

// Clear removes all lights.
func (f *FrameParams) Clear() {
	f.Lights = f.Lights[:0]
	f.LightIndex = 0
}

// AddLight appends a light. It returns false when all slots are used.
func (f *FrameParams) AddLight(b LightBlock) bool {
	if len(f.Lights) >= MaxLights {
		return false
	}
	f.Lights = append(f.Lights, b)
	return true
}

// LightCount returns the number of packed lights.
func (f *FrameParams) LightCount() int {
	return len(f.Lights)
}

// Bytes encodes the whole block.
func (f *FrameParams) Bytes() []byte {
	buf := make([]byte, FrameParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(f.LightIndex)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(len(f.Lights))))
	putVec4(buf[viewPositionOffset:], f.ViewPosition.Vec4(1))
	for i, l := range f.Lights {
		putLight(buf[lightsOffset+i*LightBlockSize:], l)
	}
	return buf
}

func putLight(dst []byte, l LightBlock) {
	for i, m := range l.ViewProjections {
		putMat4(dst[i*64:], m)
	}
	putVec4(dst[6*64:], l.Position)
	putVec4(dst[6*64+16:], l.Color)
}

func putFloat(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, gomath.Float32bits(v))
}

func putVec4(dst []byte, v math.Vec4) {
	for i, c := range v {
		putFloat(dst[i*4:], c)
	}
}

func putMat4(dst []byte, m math.Mat4) {
	for i, c := range m {
		putFloat(dst[i*4:], c)
	}
}
