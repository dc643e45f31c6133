package pipeline

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
	"github.com/vkngwrapper/quadview/internal/gpu/gputest"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func TestBytecode(t *testing.T) {
	words, err := Bytecode(spirv)
	require.NoError(t, err)
	require.Equal(t, []uint32{spirvMagic, 0x00010000}, words)
}

func TestBytecodeWordOrder(t *testing.T) {
	code := make([]byte, 12)
	words := []uint32{spirvMagic, 0x00010300, 0xdeadbeef}
	for i, word := range words {
		common.ByteOrder.PutUint32(code[i*4:], word)
	}

	decoded, err := Bytecode(code)
	require.NoError(t, err)
	require.Equal(t, words, decoded)
}

func TestBytecodeRejects(t *testing.T) {
	for name, code := range map[string][]byte{
		"empty":     nil,
		"unaligned": spirv[:6],
		"magic":     {0x07, 0x23, 0x02, 0x03},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Bytecode(code)
			require.Error(t, err)
		})
	}
}

func TestRenderPassAttachments(t *testing.T) {
	dev := gputest.NewDevice()

	renderPass, err := NewRenderPass(dev, core1_0.FormatB8G8R8A8SRGB, core1_0.FormatD32SignedFloat)
	require.NoError(t, err)

	info := renderPass.(*gputest.RenderPass).Info
	require.Len(t, info.Attachments, 2)
	require.Equal(t, core1_0.FormatB8G8R8A8SRGB, info.Attachments[0].Format)
	require.Equal(t, core1_0.FormatD32SignedFloat, info.Attachments[1].Format)
	require.Equal(t, 1, info.Subpasses[0].DepthStencilAttachment.Attachment)
}

func TestBuild(t *testing.T) {
	dev := gputest.NewDevice()

	renderPass, err := NewRenderPass(dev, core1_0.FormatB8G8R8A8SRGB, core1_0.FormatD32SignedFloat)
	require.NoError(t, err)
	setLayout, err := NewDescriptorSetLayout(dev)
	require.NoError(t, err)

	p, err := Build(dev, renderPass, setLayout, spirv, spirv)
	require.NoError(t, err)

	info := p.Pipeline.(*gputest.Pipeline).Info
	require.Equal(t, []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor}, info.DynamicStates)
	require.Equal(t, core1_0.CullModeBack, info.Rasterization.CullMode)
	require.Len(t, info.VertexInput.VertexAttributeDescriptions, 3)

	// Shader modules do not outlive the build.
	require.Zero(t, dev.Live("shader module"))
	require.Empty(t, dev.Violations())

	p.Destroy()
	require.Zero(t, dev.Live("pipeline"))
	require.Zero(t, dev.Live("pipeline layout"))
}

func TestBuildFailure(t *testing.T) {
	dev := gputest.NewDevice()
	renderPass, err := NewRenderPass(dev, core1_0.FormatB8G8R8A8SRGB, core1_0.FormatD32SignedFloat)
	require.NoError(t, err)
	setLayout, err := NewDescriptorSetLayout(dev)
	require.NoError(t, err)

	dev.FailNext("pipeline", errors.New("VK_ERROR_INITIALIZATION_FAILED"))
	_, err = Build(dev, renderPass, setLayout, spirv, spirv)
	require.Error(t, err)
	require.True(t, errors.Is(err, gpu.ErrObjectCreation))
	require.Contains(t, err.Error(), "failed to create graphics pipeline")
	require.Zero(t, dev.Live("shader module"))
	require.Zero(t, dev.Live("pipeline layout"))

	_, err = Build(dev, renderPass, setLayout, spirv[:4], []byte{1, 2, 3, 4})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fragment shader")
}
