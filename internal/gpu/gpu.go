// Package gpu describes the GPU objects the renderer creates and drives.
//
// Every object kind is an interface so the render loop can run against the
// vkngwrapper-backed implementation in this package or against the software
// implementation in gputest. Configuration structs reuse the core1_0 and
// khr_surface types directly; only handles are abstracted.
package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Status is the outcome of an acquire or present that did not fail outright.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSuboptimal means the image was acquired or presented but the
	// swapchain no longer matches the surface exactly.
	StatusSuboptimal
	// StatusOutOfDate means the swapchain can no longer be used.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// Destroyer is implemented by every object the device hands out.
type Destroyer interface {
	Destroy()
}

type Device interface {
	WaitIdle() error

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateCommandPool(queueFamilyIndex int) (CommandPool, error)

	// CreateBuffer creates a buffer and binds freshly allocated memory with
	// the requested properties to it. The buffer owns the memory.
	CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (Buffer, error)
	// CreateImage creates an image and binds freshly allocated memory with
	// the requested properties to it. The image owns the memory.
	CreateImage(info core1_0.ImageCreateInfo, properties core1_0.MemoryPropertyFlags) (Image, error)
	CreateImageView(image Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (ImageView, error)
	CreateSampler(info core1_0.SamplerCreateInfo) (Sampler, error)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	CreateFramebuffer(renderPass RenderPass, extent core1_0.Extent2D, attachments ...ImageView) (Framebuffer, error)
	CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (DescriptorSetLayout, error)
	CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (DescriptorPool, error)
	CreatePipelineLayout(setLayouts ...DescriptorSetLayout) (PipelineLayout, error)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)

	CreateSwapchain(info SwapchainInfo) (Swapchain, error)

	// FindSupportedFormat returns the first candidate whose optimal-tiling
	// features include all of features.
	FindSupportedFormat(candidates []core1_0.Format, features core1_0.FormatFeatureFlags) (core1_0.Format, error)
	MaxSamplerAnisotropy() float32
}

type Queue interface {
	Submit(info SubmitInfo) error
	// Present queues imageIndex of swapchain for presentation once wait is
	// signaled. Out-of-date and suboptimal swapchains are reported through
	// the status, not the error.
	Present(swapchain Swapchain, imageIndex int, wait ...Semaphore) (Status, error)
	WaitIdle() error
}

type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	SignalSemaphores []Semaphore
	// Fence is signaled once every command buffer has completed. May be nil.
	Fence Fence
}

type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled. There is no timeout.
	Wait() error
	Reset() error
}

type Semaphore interface {
	Destroyer
}

type CommandPool interface {
	Destroyer
	Allocate(count int) ([]CommandBuffer, error)
}

type CommandBuffer interface {
	Reset() error
	Begin(usage core1_0.CommandBufferUsageFlags) error
	End() error
	// Free returns the command buffer to its pool.
	Free()

	BeginRenderPass(info RenderPassBegin) error
	EndRenderPass()
	BindPipeline(pipeline Pipeline)
	BindVertexBuffers(buffers ...Buffer)
	BindIndexBuffer(buffer Buffer, indexType core1_0.IndexType)
	BindDescriptorSets(layout PipelineLayout, sets ...DescriptorSet)
	SetViewport(viewport core1_0.Viewport)
	SetScissor(scissor core1_0.Rect2D)
	DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int)

	CopyBuffer(src, dst Buffer, size int) error
	CopyBufferToImage(src Buffer, dst Image, extent core1_0.Extent2D) error
	ImageBarrier(barrier ImageBarrier) error
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue
}

type ImageBarrier struct {
	Image     Image
	Aspect    core1_0.ImageAspectFlags
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

type Buffer interface {
	Destroyer
	Size() int
	// Map exposes the buffer memory to the host. Only host-visible buffers can
	// be mapped; the slice stays valid until Unmap or Destroy.
	Map() ([]byte, error)
	Unmap()
}

type Image interface {
	Destroyer
	Extent() core1_0.Extent2D
	Format() core1_0.Format
}

type ImageView interface{ Destroyer }

type Sampler interface{ Destroyer }

type ShaderModule interface{ Destroyer }

type RenderPass interface{ Destroyer }

type Framebuffer interface {
	Destroyer
	Extent() core1_0.Extent2D
}

type DescriptorSetLayout interface{ Destroyer }

type DescriptorPool interface {
	Destroyer
	Allocate(layout DescriptorSetLayout, count int) ([]DescriptorSet, error)
}

// DescriptorSet is freed with its pool.
type DescriptorSet interface {
	WriteBuffer(binding int, buffer Buffer, size int) error
	WriteImage(binding int, view ImageView, sampler Sampler) error
}

type PipelineLayout interface{ Destroyer }

type Pipeline interface{ Destroyer }

type GraphicsPipelineInfo struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	EntryPoint     string

	VertexInput   core1_0.PipelineVertexInputStateCreateInfo
	InputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	Rasterization core1_0.PipelineRasterizationStateCreateInfo
	Multisample   core1_0.PipelineMultisampleStateCreateInfo
	DepthStencil  core1_0.PipelineDepthStencilStateCreateInfo
	ColorBlend    core1_0.PipelineColorBlendStateCreateInfo
	DynamicStates []core1_0.DynamicState

	Layout     PipelineLayout
	RenderPass RenderPass
}

// Surface is a presentable surface already bound to the physical device the
// renderer runs on.
type Surface interface {
	Destroyer
	Support() (SurfaceSupport, error)
}

type SurfaceSupport struct {
	Capabilities khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

type SwapchainInfo struct {
	Surface       Surface
	MinImageCount int
	Format        khr_surface.SurfaceFormat
	Extent        core1_0.Extent2D
	PresentMode   khr_surface.PresentMode
	PreTransform  khr_surface.SurfaceTransformFlags
	// QueueFamilies lists the families sharing the images. Two or more
	// distinct families switch the images to concurrent sharing.
	QueueFamilies []int
}

type Swapchain interface {
	Destroyer
	// Images returns the presentable images. They belong to the swapchain
	// and must not be destroyed individually.
	Images() ([]Image, error)
	// AcquireNextImage blocks until an image is available and arranges for
	// signal to be signaled when the presentation engine releases it.
	AcquireNextImage(signal Semaphore) (int, Status, error)
}
