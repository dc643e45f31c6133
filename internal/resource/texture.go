package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/assets"
	"github.com/vkngwrapper/quadview/internal/gpu"
)

const TextureFormat = core1_0.FormatR8G8B8A8SRGB

// Texture is a sampled image together with its view and sampler.
type Texture struct {
	Image   gpu.Image
	View    gpu.ImageView
	Sampler gpu.Sampler
}

type transition struct {
	from, to core1_0.ImageLayout
}

var transitions = map[transition]gpu.ImageBarrier{
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal}: {
		SrcAccess: 0,
		DstAccess: core1_0.AccessTransferWrite,
		SrcStage:  core1_0.PipelineStageTopOfPipe,
		DstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		SrcAccess: core1_0.AccessTransferWrite,
		DstAccess: core1_0.AccessShaderRead,
		SrcStage:  core1_0.PipelineStageTransfer,
		DstStage:  core1_0.PipelineStageFragmentShader,
	},
}

// LayoutBarrier returns the barrier moving a color image from oldLayout to
// newLayout. Only the transitions a texture upload needs are known.
func LayoutBarrier(image gpu.Image, oldLayout, newLayout core1_0.ImageLayout) (gpu.ImageBarrier, error) {
	barrier, ok := transitions[transition{oldLayout, newLayout}]
	if !ok {
		return gpu.ImageBarrier{}, errors.AssertionFailedf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
	}

	barrier.Image = image
	barrier.Aspect = core1_0.ImageAspectColor
	barrier.OldLayout = oldLayout
	barrier.NewLayout = newLayout
	return barrier, nil
}

func transitionLayout(cb gpu.CommandBuffer, image gpu.Image, oldLayout, newLayout core1_0.ImageLayout) error {
	barrier, err := LayoutBarrier(image, oldLayout, newLayout)
	if err != nil {
		return err
	}
	return cb.ImageBarrier(barrier)
}

// UploadTexture copies decoded pixels into a device-local sampled image and
// leaves it in the shader-read-only layout.
func UploadTexture(u *Uploader, pixels assets.Texture) (*Texture, error) {
	if len(pixels.Pixels) != pixels.Width*pixels.Height*4 {
		return nil, errors.Newf("texture is %dx%d but holds %d bytes", pixels.Width, pixels.Height, len(pixels.Pixels))
	}
	device := u.Device()

	staging, err := u.Staging(pixels.Pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	extent := core1_0.Extent2D{Width: pixels.Width, Height: pixels.Height}
	image, err := device.CreateImage(core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        TextureFormat,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, gpu.Created("texture image", err)
	}

	var owned gpu.Scope
	owned.Defer("texture image", image.Destroy)

	err = u.Submit(func(cb gpu.CommandBuffer) error {
		err := transitionLayout(cb, image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
		if err != nil {
			return err
		}

		err = cb.CopyBufferToImage(staging, image, extent)
		if err != nil {
			return err
		}

		return transitionLayout(cb, image, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		owned.Release()
		return nil, err
	}

	view, err := device.CreateImageView(image, TextureFormat, core1_0.ImageAspectColor)
	if err := owned.Own("texture image view", view, err); err != nil {
		owned.Release()
		return nil, err
	}

	sampler, err := device.CreateSampler(core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    device.MaxSamplerAnisotropy(),

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		owned.Release()
		return nil, gpu.Created("texture sampler", err)
	}

	return &Texture{Image: image, View: view, Sampler: sampler}, nil
}

func (t *Texture) Destroy() {
	t.Sampler.Destroy()
	t.View.Destroy()
	t.Image.Destroy()
}
