package resource

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

// Descriptors is a pool with one set per frame slot, each binding that slot's
// uniform buffer and the shared texture.
type Descriptors struct {
	Pool gpu.DescriptorPool
	Sets []gpu.DescriptorSet
}

func NewDescriptors(device gpu.Device, layout gpu.DescriptorSetLayout, uniforms *UniformBuffers, texture *Texture) (*Descriptors, error) {
	slots := uniforms.Len()

	pool, err := device.CreateDescriptorPool(core1_0.DescriptorPoolCreateInfo{
		MaxSets: slots,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: slots,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: slots,
			},
		},
	})
	if err != nil {
		return nil, gpu.Created("descriptor pool", err)
	}

	sets, err := pool.Allocate(layout, slots)
	if err != nil {
		pool.Destroy()
		return nil, gpu.Created("descriptor sets", err)
	}

	for i, set := range sets {
		err = set.WriteBuffer(0, uniforms.Buffer(i), uniforms.Size())
		if err == nil {
			err = set.WriteImage(1, texture.View, texture.Sampler)
		}
		if err != nil {
			pool.Destroy()
			return nil, err
		}
	}

	return &Descriptors{Pool: pool, Sets: sets}, nil
}

// Destroy frees the pool and with it every set.
func (d *Descriptors) Destroy() {
	d.Pool.Destroy()
}
