package lighting

import (
	"github.com/Faultbox/renderlab/pkg/math"
)

// ObjectParamsSize is the unaligned byte size of one object slot.
const ObjectParamsSize = 64 + 64 + 4*16

// ObjectParams is the per-mesh-instance block.
type ObjectParams struct {
	Model           math.Mat4
	ViewProjection  math.Mat4
	Albedo          math.Vec4
	Emissive        math.Vec3
	Metallic        float32
	Roughness       float32
	LightingEnabled bool
}

// Bytes encodes the block. Emissive w is 1 and flags.r carries the
// lighting switch.
func (o ObjectParams) Bytes() []byte {
	buf := make([]byte, ObjectParamsSize)
	putMat4(buf[0:], o.Model)
	putMat4(buf[64:], o.ViewProjection)
	putVec4(buf[128:], o.Albedo)
	putVec4(buf[144:], o.Emissive.Vec4(1))
	putVec4(buf[160:], math.Vec4{o.Metallic, o.Roughness, 0, 0})
	var lit float32
	if o.LightingEnabled {
		lit = 1
	}
	putVec4(buf[176:], math.Vec4{lit, 0, 0, 0})
	return buf
}
