package resource

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/assets"
	"github.com/vkngwrapper/quadview/internal/gpu"
	"github.com/vkngwrapper/quadview/internal/gpu/gputest"
	"github.com/vkngwrapper/quadview/internal/mesh"
)

func newUploader(t *testing.T) (*gputest.Device, *Uploader) {
	t.Helper()
	dev := gputest.NewDevice()
	// Uploads must wait for completion themselves.
	dev.SetManualCompletion(true)

	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	return dev, NewUploader(dev, pool, dev.NewQueue("graphics"))
}

// download reads a device-local buffer back through a second staging buffer.
func download(t *testing.T, u *Uploader, src gpu.Buffer) []byte {
	t.Helper()

	dst, err := u.Device().CreateBuffer(src.Size(), core1_0.BufferUsageTransferDst, hostCoherent)
	require.NoError(t, err)
	defer dst.Destroy()

	require.NoError(t, u.Submit(func(cb gpu.CommandBuffer) error {
		return cb.CopyBuffer(src, dst, src.Size())
	}))

	mapped, err := dst.Map()
	require.NoError(t, err)
	defer dst.Unmap()
	return append([]byte(nil), mapped...)
}

func TestUploadRoundTrip(t *testing.T) {
	dev, u := newUploader(t)

	vertexData, err := mesh.Quad().VertexData()
	require.NoError(t, err)
	_, indexData, err := mesh.Quad().IndexData()
	require.NoError(t, err)

	for _, data := range [][]byte{
		vertexData[:32],
		vertexData,
		indexData[:2],
		indexData,
	} {
		t.Run(fmt.Sprintf("%d bytes", len(data)), func(t *testing.T) {
			buffer, err := u.UploadBuffer(data, core1_0.BufferUsageVertexBuffer|core1_0.BufferUsageTransferSrc)
			require.NoError(t, err)
			defer buffer.Destroy()

			require.Equal(t, data, download(t, u, buffer))
		})
	}

	require.Zero(t, dev.Pending())
	require.Zero(t, dev.Live("buffer"))
	require.Zero(t, dev.Live("command buffer"))
	require.Empty(t, dev.Violations())
}

func TestUploadBufferDestination(t *testing.T) {
	dev, u := newUploader(t)

	buffer, err := u.UploadBuffer([]byte{1, 2, 3}, core1_0.BufferUsageIndexBuffer)
	require.NoError(t, err)

	b := buffer.(*gputest.Buffer)
	require.Equal(t, core1_0.MemoryPropertyDeviceLocal, b.Properties)
	require.NotZero(t, b.Usage&core1_0.BufferUsageIndexBuffer)
	// Staging buffer is gone.
	require.Equal(t, 1, dev.Live("buffer"))

	_, err = u.UploadBuffer(nil, core1_0.BufferUsageIndexBuffer)
	require.Error(t, err)
}

func TestUploadGeometry(t *testing.T) {
	dev, u := newUploader(t)

	geometry, err := UploadGeometry(u, mesh.Quad())
	require.NoError(t, err)
	require.Equal(t, 6, geometry.IndexCount)
	require.Equal(t, core1_0.IndexTypeUInt16, geometry.IndexType)
	require.Equal(t, 4*32, geometry.Vertices.Size())
	require.Equal(t, 12, geometry.Indices.Size())

	geometry.Destroy()
	require.Zero(t, dev.Live("buffer"))
}

func TestUploadTexture(t *testing.T) {
	dev, u := newUploader(t)

	pixels := assets.Texture{
		Width:  2,
		Height: 1,
		Pixels: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	texture, err := UploadTexture(u, pixels)
	require.NoError(t, err)

	image := texture.Image.(*gputest.Image)
	require.Equal(t, pixels.Pixels, image.Pixels())
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, image.CurrentLayout())
	require.Equal(t, TextureFormat, image.Format())

	sampler := texture.Sampler.(*gputest.Sampler)
	require.True(t, sampler.Info.AnisotropyEnable)
	require.Equal(t, dev.MaxSamplerAnisotropy(), sampler.Info.MaxAnisotropy)
	require.Equal(t, core1_0.SamplerAddressModeRepeat, sampler.Info.AddressModeU)
	require.Empty(t, dev.Violations())

	texture.Destroy()
	// Only the command pool is left.
	require.Equal(t, 1, dev.Live(""))
}

func TestUploadTextureSizeMismatch(t *testing.T) {
	_, u := newUploader(t)

	_, err := UploadTexture(u, assets.Texture{Width: 2, Height: 2, Pixels: make([]byte, 4)})
	require.Error(t, err)
}

func TestUploadTextureSamplerFailure(t *testing.T) {
	dev, u := newUploader(t)
	dev.FailNext("sampler", errors.New("VK_ERROR_OUT_OF_HOST_MEMORY"))

	_, err := UploadTexture(u, assets.Texture{Width: 1, Height: 1, Pixels: make([]byte, 4)})
	require.True(t, errors.Is(err, gpu.ErrObjectCreation))
	require.Contains(t, err.Error(), "texture sampler")
	require.Zero(t, dev.Live("image"))
	require.Zero(t, dev.Live("image view"))
}

func TestLayoutBarrier(t *testing.T) {
	barrier, err := LayoutBarrier(nil, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	require.Equal(t, core1_0.PipelineStageTopOfPipe, barrier.SrcStage)
	require.Equal(t, core1_0.AccessTransferWrite, barrier.DstAccess)

	_, err = LayoutBarrier(nil, core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutTransferDstOptimal)
	require.Error(t, err)
	require.True(t, errors.HasAssertionFailure(err))
}

func TestUniformBuffers(t *testing.T) {
	dev := gputest.NewDevice()

	uniforms, err := NewUniformBuffers(dev, 2, 8)
	require.NoError(t, err)
	require.Equal(t, 2, uniforms.Len())

	require.NoError(t, uniforms.Write(1, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.Error(t, uniforms.Write(2, make([]byte, 8)))
	require.Error(t, uniforms.Write(0, make([]byte, 4)))

	uniforms.Destroy()
	require.Zero(t, dev.Live("buffer"))
	require.Empty(t, dev.Violations())
}

func TestDescriptors(t *testing.T) {
	dev, u := newUploader(t)

	layout, err := dev.CreateDescriptorSetLayout(core1_0.DescriptorSetLayoutCreateInfo{})
	require.NoError(t, err)
	uniforms, err := NewUniformBuffers(dev, 2, 192)
	require.NoError(t, err)
	texture, err := UploadTexture(u, assets.Texture{Width: 1, Height: 1, Pixels: make([]byte, 4)})
	require.NoError(t, err)

	descriptors, err := NewDescriptors(dev, layout, uniforms, texture)
	require.NoError(t, err)
	require.Len(t, descriptors.Sets, 2)

	pool := descriptors.Pool.(*gputest.DescriptorPool)
	require.Equal(t, 2, pool.Info.MaxSets)
	for i, set := range descriptors.Sets {
		s := set.(*gputest.DescriptorSet)
		require.Same(t, uniforms.Buffer(i), gpu.Buffer(s.Buffers[0]))
		require.Same(t, texture.View, gpu.ImageView(s.Views[1]))
	}
}
