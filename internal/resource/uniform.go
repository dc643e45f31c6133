package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

// UniformBuffers holds one persistently mapped uniform buffer per frame slot.
type UniformBuffers struct {
	buffers []gpu.Buffer
	mapped  [][]byte
	size    int
}

func NewUniformBuffers(device gpu.Device, count, size int) (*UniformBuffers, error) {
	u := &UniformBuffers{size: size}

	for i := 0; i < count; i++ {
		buffer, err := device.CreateBuffer(size, core1_0.BufferUsageUniformBuffer, hostCoherent)
		if err != nil {
			u.Destroy()
			return nil, gpu.Created("uniform buffer", err)
		}

		mapped, err := buffer.Map()
		if err != nil {
			buffer.Destroy()
			u.Destroy()
			return nil, errors.Wrap(err, "map uniform buffer")
		}

		u.buffers = append(u.buffers, buffer)
		u.mapped = append(u.mapped, mapped)
	}

	return u, nil
}

func (u *UniformBuffers) Len() int  { return len(u.buffers) }
func (u *UniformBuffers) Size() int { return u.size }

func (u *UniformBuffers) Buffer(slot int) gpu.Buffer {
	return u.buffers[slot]
}

// Write replaces the contents of the buffer for slot. The caller guarantees
// the GPU is no longer reading that slot.
func (u *UniformBuffers) Write(slot int, data []byte) error {
	if slot < 0 || slot >= len(u.mapped) {
		return errors.Newf("uniform slot %d out of range [0, %d)", slot, len(u.mapped))
	}
	if len(data) != u.size {
		return errors.Newf("uniform data is %d bytes, buffer holds %d", len(data), u.size)
	}

	copy(u.mapped[slot], data)
	return nil
}

func (u *UniformBuffers) Destroy() {
	for i := len(u.buffers) - 1; i >= 0; i-- {
		u.buffers[i].Unmap()
		u.buffers[i].Destroy()
	}
	u.buffers = nil
	u.mapped = nil
}
