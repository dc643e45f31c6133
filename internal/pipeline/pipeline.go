package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/quadview/internal/gpu"
	"github.com/vkngwrapper/quadview/internal/mesh"
)

const spirvMagic = 0x07230203

// Bytecode converts a SPIR-V binary into the word slice shader modules are
// created from.
func Bytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("spir-v length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = common.ByteOrder.Uint32(b[i*4:])
	}

	if byteCode[0] != spirvMagic {
		return nil, errors.Newf("bad spir-v magic number %#08x", byteCode[0])
	}
	return byteCode, nil
}

// NewRenderPass creates the single-subpass pass drawing into a presentable
// color attachment and a depth attachment.
func NewRenderPass(device gpu.Device, colorFormat, depthFormat core1_0.Format) (gpu.RenderPass, error) {
	renderPass, err := device.CreateRenderPass(core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         colorFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	return renderPass, gpu.Created("render pass", err)
}

// NewDescriptorSetLayout creates the layout shared by every frame's set:
// the transform uniform at binding 0, the texture sampler at binding 1.
func NewDescriptorSetLayout(device gpu.Device) (gpu.DescriptorSetLayout, error) {
	layout, err := device.CreateDescriptorSetLayout(core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	return layout, gpu.Created("descriptor set layout", err)
}

// Pipeline is the graphics pipeline and the layout it was built with.
type Pipeline struct {
	Layout   gpu.PipelineLayout
	Pipeline gpu.Pipeline
}

func (p *Pipeline) Destroy() {
	p.Pipeline.Destroy()
	p.Layout.Destroy()
}

// Build compiles the two shader stages and the fixed-function state into a
// pipeline for renderPass. Shader modules only live for the duration of the
// call. Viewport and scissor are dynamic.
func Build(device gpu.Device, renderPass gpu.RenderPass, setLayout gpu.DescriptorSetLayout, vertexCode, fragmentCode []byte) (*Pipeline, error) {
	var modules gpu.Scope
	defer modules.Release()

	vertShader, err := shaderModule(device, &modules, "vertex", vertexCode)
	if err != nil {
		return nil, err
	}
	fragShader, err := shaderModule(device, &modules, "fragment", fragmentCode)
	if err != nil {
		return nil, err
	}

	layout, err := device.CreatePipelineLayout(setLayout)
	if err != nil {
		return nil, gpu.Created("pipeline layout", err)
	}

	pipeline, err := device.CreateGraphicsPipeline(gpu.GraphicsPipelineInfo{
		VertexShader:   vertShader,
		FragmentShader: fragShader,
		EntryPoint:     "main",

		VertexInput: core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   mesh.BindingDescriptions(),
			VertexAttributeDescriptions: mesh.AttributeDescriptions(),
		},
		InputAssembly: core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		Rasterization: core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceCounterClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		Multisample: core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		DepthStencil: core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  true,
			DepthWriteEnable: true,
			DepthCompareOp:   core1_0.CompareOpLess,
		},
		ColorBlend: core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},

		Layout:     layout,
		RenderPass: renderPass,
	})
	if err != nil {
		layout.Destroy()
		return nil, gpu.Created("graphics pipeline", err)
	}

	return &Pipeline{Layout: layout, Pipeline: pipeline}, nil
}

func shaderModule(device gpu.Device, scope *gpu.Scope, stage string, code []byte) (gpu.ShaderModule, error) {
	words, err := Bytecode(code)
	if err != nil {
		return nil, errors.Wrapf(err, "%s shader", stage)
	}

	module, err := device.CreateShaderModule(words)
	if err := scope.Own(stage+" shader module", module, err); err != nil {
		return nil, err
	}
	return module, nil
}
