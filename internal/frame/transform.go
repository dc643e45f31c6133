package frame

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// TransformSize is the size of an encoded Transform: three column-major 4x4
// float matrices.
const TransformSize = 3 * 16 * 4

// One full turn takes this long.
const rotationPeriod = 4 * time.Second

// Transform is the uniform block read by the vertex shader.
type Transform struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// NewTransform spins the model about Z at 90 degrees a second and looks at it
// from (2,2,2) with a 45 degree field of view.
func NewTransform(elapsed time.Duration, extent core1_0.Extent2D) Transform {
	turn := float32(elapsed%rotationPeriod) / float32(rotationPeriod)

	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}

	t := Transform{
		Model: mgl32.HomogRotate3DZ(turn * 2 * math.Pi),
		View: mgl32.LookAtV(
			mgl32.Vec3{2, 2, 2},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		Proj: mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10),
	}
	// Clip space Y points down.
	t.Proj[5] *= -1
	return t
}

func (t Transform) Bytes() []byte {
	data := make([]byte, TransformSize)
	offset := 0
	for _, m := range []mgl32.Mat4{t.Model, t.View, t.Proj} {
		for _, f := range m {
			common.ByteOrder.PutUint32(data[offset:], math.Float32bits(f))
			offset += 4
		}
	}
	return data
}
