package gpu

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// vkDevice implements Device over a vkngwrapper logical device. Objects
// handed out by it only accept objects from the same implementation.
type vkDevice struct {
	instance  core1_0.CoreInstanceDriver
	driver    core1_0.CoreDeviceDriver
	swapchain khr_swapchain.ExtensionDriver
	physical  core1_0.PhysicalDevice

	maxAnisotropy float32
}

// NewDevice wraps a logical device created from physical.
func NewDevice(instance core1_0.CoreInstanceDriver, physical core1_0.PhysicalDevice, driver core1_0.CoreDeviceDriver) (Device, error) {
	properties, err := instance.GetPhysicalDeviceProperties(physical)
	if err != nil {
		return nil, errors.Wrap(err, "query physical device properties")
	}

	return &vkDevice{
		instance:      instance,
		driver:        driver,
		swapchain:     khr_swapchain.CreateExtensionDriverFromCoreDriver(driver),
		physical:      physical,
		maxAnisotropy: properties.Limits.MaxSamplerAnisotropy,
	}, nil
}

// NewQueue wraps a queue fetched from the device returned by NewDevice.
func NewQueue(device Device, queue core1_0.Queue) Queue {
	d := device.(*vkDevice)
	return &vkQueue{device: d, handle: queue}
}

func (d *vkDevice) WaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return err
}

func (d *vkDevice) MaxSamplerAnisotropy() float32 {
	return d.maxAnisotropy
}

func (d *vkDevice) CreateFence(signaled bool) (Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	fence, _, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, err
	}
	return &vkFence{device: d, handle: fence}, nil
}

func (d *vkDevice) CreateSemaphore() (Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, err
	}
	return &vkSemaphore{device: d, handle: semaphore}, nil
}

func (d *vkDevice) CreateCommandPool(queueFamilyIndex int) (CommandPool, error) {
	pool, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamilyIndex,
	})
	if err != nil {
		return nil, err
	}
	return &vkCommandPool{device: d, handle: pool}, nil
}

func (d *vkDevice) memoryTypeIndex(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.instance.GetPhysicalDeviceMemoryProperties(d.physical)

	var typeFlags []core1_0.MemoryPropertyFlags
	for _, memoryType := range memProperties.MemoryTypes {
		typeFlags = append(typeFlags, memoryType.PropertyFlags)
	}

	return findMemoryType(typeFlags, typeFilter, properties)
}

// findMemoryType returns the first memory type allowed by typeFilter whose
// flags include all of properties.
func findMemoryType(typeFlags []core1_0.MemoryPropertyFlags, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, flags := range typeFlags {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (flags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("failed to find a memory type with properties %s", properties)
}

func (d *vkDevice) allocate(size int, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	memoryTypeIndex, err := d.memoryTypeIndex(typeFilter, properties)
	if err != nil {
		return core1_0.DeviceMemory{}, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return core1_0.DeviceMemory{}, errors.Wrap(err, "allocate memory")
	}
	return memory, nil
}

func (d *vkDevice) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (Buffer, error) {
	buffer, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, err
	}

	requirements := d.driver.GetBufferMemoryRequirements(buffer)
	memory, err := d.allocate(requirements.Size, requirements.MemoryTypeBits, properties)
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return nil, err
	}

	_, err = d.driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		d.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	return &vkBuffer{device: d, handle: buffer, memory: memory, size: size}, nil
}

func (d *vkDevice) CreateImage(info core1_0.ImageCreateInfo, properties core1_0.MemoryPropertyFlags) (Image, error) {
	image, _, err := d.driver.CreateImage(nil, info)
	if err != nil {
		return nil, err
	}

	requirements := d.driver.GetImageMemoryRequirements(image)
	memory, err := d.allocate(requirements.Size, requirements.MemoryTypeBits, properties)
	if err != nil {
		d.driver.DestroyImage(image, nil)
		return nil, err
	}

	_, err = d.driver.BindImageMemory(image, memory, 0)
	if err != nil {
		d.driver.DestroyImage(image, nil)
		d.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "bind image memory")
	}

	return &vkImage{
		device: d,
		handle: image,
		memory: memory,
		owned:  true,
		extent: core1_0.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		format: info.Format,
	}, nil
}

func (d *vkDevice) CreateImageView(image Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (ImageView, error) {
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image.(*vkImage).handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, err
	}
	return &vkImageView{device: d, handle: view}, nil
}

func (d *vkDevice) CreateSampler(info core1_0.SamplerCreateInfo) (Sampler, error) {
	sampler, _, err := d.driver.CreateSampler(nil, info)
	if err != nil {
		return nil, err
	}
	return &vkSampler{device: d, handle: sampler}, nil
}

func (d *vkDevice) CreateShaderModule(code []uint32) (ShaderModule, error) {
	module, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, err
	}
	return &vkShaderModule{device: d, handle: module}, nil
}

func (d *vkDevice) CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error) {
	renderPass, _, err := d.driver.CreateRenderPass(nil, info)
	if err != nil {
		return nil, err
	}
	return &vkRenderPass{device: d, handle: renderPass}, nil
}

func (d *vkDevice) CreateFramebuffer(renderPass RenderPass, extent core1_0.Extent2D, attachments ...ImageView) (Framebuffer, error) {
	views := make([]core1_0.ImageView, 0, len(attachments))
	for _, attachment := range attachments {
		views = append(views, attachment.(*vkImageView).handle)
	}

	framebuffer, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass.(*vkRenderPass).handle,
		Layers:      1,
		Attachments: views,
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return nil, err
	}
	return &vkFramebuffer{device: d, handle: framebuffer, extent: extent}, nil
}

func (d *vkDevice) CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (DescriptorSetLayout, error) {
	layout, _, err := d.driver.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return nil, err
	}
	return &vkDescriptorSetLayout{device: d, handle: layout}, nil
}

func (d *vkDevice) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (DescriptorPool, error) {
	pool, _, err := d.driver.CreateDescriptorPool(nil, info)
	if err != nil {
		return nil, err
	}
	return &vkDescriptorPool{device: d, handle: pool}, nil
}

func (d *vkDevice) CreatePipelineLayout(setLayouts ...DescriptorSetLayout) (PipelineLayout, error) {
	var handles []core1_0.DescriptorSetLayout
	for _, layout := range setLayouts {
		handles = append(handles, layout.(*vkDescriptorSetLayout).handle)
	}

	layout, _, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: handles,
	})
	if err != nil {
		return nil, err
	}
	return &vkPipelineLayout{device: d, handle: layout}, nil
}

func (d *vkDevice) CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error) {
	entryPoint := info.EntryPoint
	if entryPoint == "" {
		entryPoint = "main"
	}

	vertexInput := info.VertexInput
	inputAssembly := info.InputAssembly
	rasterization := info.Rasterization
	multisample := info.Multisample
	depthStencil := info.DepthStencil
	colorBlend := info.ColorBlend

	createInfo := core1_0.GraphicsPipelineCreateInfo{
		Stages: []core1_0.PipelineShaderStageCreateInfo{
			{
				Stage:  core1_0.StageVertex,
				Module: info.VertexShader.(*vkShaderModule).handle,
				Name:   entryPoint,
			},
			{
				Stage:  core1_0.StageFragment,
				Module: info.FragmentShader.(*vkShaderModule).handle,
				Name:   entryPoint,
			},
		},
		VertexInputState:   &vertexInput,
		InputAssemblyState: &inputAssembly,
		// Viewport and scissor are dynamic; only the counts matter here.
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		RasterizationState: &rasterization,
		MultisampleState:   &multisample,
		DepthStencilState:  &depthStencil,
		ColorBlendState:    &colorBlend,
		Layout:             info.Layout.(*vkPipelineLayout).handle,
		RenderPass:         info.RenderPass.(*vkRenderPass).handle,
		Subpass:            0,
		BasePipelineIndex:  -1,
	}
	if len(info.DynamicStates) > 0 {
		createInfo.DynamicState = &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: info.DynamicStates,
		}
	}

	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil, createInfo)
	if err != nil {
		return nil, err
	}
	return &vkPipeline{device: d, handle: pipelines[0]}, nil
}

func (d *vkDevice) FindSupportedFormat(candidates []core1_0.Format, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range candidates {
		props := d.instance.GetPhysicalDeviceFormatProperties(d.physical, format)

		if (props.OptimalTilingFeatures & features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("failed to find supported format for optimal tiling, featureset %s", features)
}

func (d *vkDevice) mapMemory(memory core1_0.DeviceMemory, size int) ([]byte, error) {
	ptr, _, err := d.driver.MapMemory(memory, 0, size, 0)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}
