// Package resource creates the device-local buffers and images the renderer
// draws with, filling them through host-visible staging buffers.
package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

const hostCoherent = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// Uploader runs one-shot command buffers on a queue and blocks until they
// have executed.
type Uploader struct {
	device gpu.Device
	pool   gpu.CommandPool
	queue  gpu.Queue
}

func NewUploader(device gpu.Device, pool gpu.CommandPool, queue gpu.Queue) *Uploader {
	return &Uploader{device: device, pool: pool, queue: queue}
}

func (u *Uploader) Device() gpu.Device {
	return u.device
}

// Submit records a one-shot command buffer with record, submits it and waits
// for the queue to drain.
func (u *Uploader) Submit(record func(cb gpu.CommandBuffer) error) error {
	buffers, err := u.pool.Allocate(1)
	if err != nil {
		return gpu.Created("one-shot command buffer", err)
	}
	buffer := buffers[0]
	defer buffer.Free()

	err = buffer.Begin(core1_0.CommandBufferUsageOneTimeSubmit)
	if err != nil {
		return err
	}

	err = record(buffer)
	if err != nil {
		return err
	}

	err = buffer.End()
	if err != nil {
		return err
	}

	err = u.queue.Submit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{buffer},
	})
	if err != nil {
		return errors.Wrap(err, "submit one-shot commands")
	}

	return u.queue.WaitIdle()
}

// Staging returns a host-visible transfer source holding a copy of data.
func (u *Uploader) Staging(data []byte) (gpu.Buffer, error) {
	staging, err := u.device.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc, hostCoherent)
	if err != nil {
		return nil, gpu.Created("staging buffer", err)
	}

	err = write(staging, data)
	if err != nil {
		staging.Destroy()
		return nil, err
	}
	return staging, nil
}

// UploadBuffer creates a device-local buffer with the given usage and fills
// it with data through a staging buffer.
func (u *Uploader) UploadBuffer(data []byte, usage core1_0.BufferUsageFlags) (gpu.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("nothing to upload")
	}

	staging, err := u.Staging(data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	buffer, err := u.device.CreateBuffer(len(data), core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, gpu.Created("buffer", err)
	}

	err = u.Submit(func(cb gpu.CommandBuffer) error {
		return cb.CopyBuffer(staging, buffer, len(data))
	})
	if err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

func write(buffer gpu.Buffer, data []byte) error {
	mapped, err := buffer.Map()
	if err != nil {
		return errors.Wrap(err, "map memory")
	}
	defer buffer.Unmap()

	copy(mapped, data)
	return nil
}
