package app

import (
	"log"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/assets"
	"github.com/vkngwrapper/quadview/internal/config"
	"github.com/vkngwrapper/quadview/internal/frame"
	"github.com/vkngwrapper/quadview/internal/gpu"
	"github.com/vkngwrapper/quadview/internal/pipeline"
	"github.com/vkngwrapper/quadview/internal/resource"
	"github.com/vkngwrapper/quadview/internal/swapchain"
)

// Target is the device side a Renderer draws with.
type Target struct {
	Device   gpu.Device
	Surface  gpu.Surface
	Graphics gpu.Queue
	Present  gpu.Queue

	GraphicsFamily int
	// QueueFamilies lists every family touching swapchain images.
	QueueFamilies []int
}

// Window is what the renderer needs from the host window.
type Window interface {
	swapchain.Window
	frame.ResizeSource
}

// Renderer owns every GPU object below the device: the swapchain, the
// pipeline, the uploaded scene and the frame slots.
type Renderer struct {
	device gpu.Device
	owned  gpu.Scope
	frames *frame.Orchestrator
}

// NewRenderer builds everything needed to draw bundle into window. A failure
// returns at once; whatever was created stays alive until the process exits.
func NewRenderer(target Target, window Window, bundle assets.Bundle) (*Renderer, error) {
	r := &Renderer{device: target.Device}
	dev := target.Device
	owned := &r.owned

	chain, err := swapchain.New(dev, target.Surface, window, target.QueueFamilies...)
	if err != nil {
		return nil, err
	}

	renderPass, err := pipeline.NewRenderPass(dev, chain.Format(), chain.DepthFormat())
	if err != nil {
		return nil, err
	}
	owned.Defer("render pass", renderPass.Destroy)

	// Framebuffers go before the render pass they were made for.
	owned.Defer("swapchain", chain.Destroy)
	err = chain.CreateFramebuffers(renderPass)
	if err != nil {
		return nil, err
	}

	setLayout, err := pipeline.NewDescriptorSetLayout(dev)
	if err != nil {
		return nil, err
	}
	owned.Defer("descriptor set layout", setLayout.Destroy)

	graphicsPipeline, err := pipeline.Build(dev, renderPass, setLayout, bundle.VertexShader, bundle.FragmentShader)
	if err != nil {
		return nil, err
	}
	owned.Defer("graphics pipeline", graphicsPipeline.Destroy)

	pool, err := dev.CreateCommandPool(target.GraphicsFamily)
	if err := owned.Own("command pool", pool, err); err != nil {
		return nil, err
	}

	uploader := resource.NewUploader(dev, pool, target.Graphics)

	geometry, err := resource.UploadGeometry(uploader, bundle.Mesh)
	if err != nil {
		return nil, err
	}
	owned.Defer("geometry", geometry.Destroy)

	texture, err := resource.UploadTexture(uploader, bundle.Texture)
	if err != nil {
		return nil, err
	}
	owned.Defer("texture", texture.Destroy)

	uniforms, err := resource.NewUniformBuffers(dev, config.MaxFramesInFlight, frame.TransformSize)
	if err != nil {
		return nil, err
	}
	owned.Defer("uniform buffers", uniforms.Destroy)

	descriptors, err := resource.NewDescriptors(dev, setLayout, uniforms, texture)
	if err != nil {
		return nil, err
	}
	owned.Defer("descriptors", descriptors.Destroy)

	r.frames, err = frame.New(dev, pool, target.Graphics, target.Present, chain, window, frame.Scene{
		RenderPass:     renderPass,
		Pipeline:       graphicsPipeline.Pipeline,
		PipelineLayout: graphicsPipeline.Layout,
		VertexBuffer:   geometry.Vertices,
		IndexBuffer:    geometry.Indices,
		IndexType:      geometry.IndexType,
		IndexCount:     geometry.IndexCount,
		DescriptorSets: descriptors.Sets,
		Uniforms:       uniforms,
	}, frame.NewClock())
	if err != nil {
		return nil, err
	}
	owned.Defer("frames", r.frames.Destroy)

	log.Printf("scene: %d vertices, %d indices (%s), %dx%d texture",
		len(bundle.Mesh.Vertices), geometry.IndexCount, indexTypeName(geometry.IndexType),
		bundle.Texture.Width, bundle.Texture.Height)
	return r, nil
}

func indexTypeName(indexType core1_0.IndexType) string {
	if indexType == core1_0.IndexTypeUInt16 {
		return "16-bit"
	}
	return "32-bit"
}

func (r *Renderer) DrawFrame() error {
	return r.frames.DrawFrame()
}

// Destroy waits for the device to finish and releases everything the
// renderer created, newest first.
func (r *Renderer) Destroy() error {
	err := r.device.WaitIdle()
	if err != nil {
		return err
	}

	log.Printf("shutdown: releasing %d objects", r.owned.Len())
	r.owned.Release()
	return nil
}
