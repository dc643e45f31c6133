package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type vkFence struct {
	device *vkDevice
	handle core1_0.Fence
}

func (f *vkFence) Wait() error {
	_, err := f.device.driver.WaitForFences(true, common.NoTimeout, f.handle)
	return err
}

func (f *vkFence) Reset() error {
	_, err := f.device.driver.ResetFences(f.handle)
	return err
}

func (f *vkFence) Destroy() {
	f.device.driver.DestroyFence(f.handle, nil)
}

type vkSemaphore struct {
	device *vkDevice
	handle core1_0.Semaphore
}

func (s *vkSemaphore) Destroy() {
	s.device.driver.DestroySemaphore(s.handle, nil)
}

type vkCommandPool struct {
	device *vkDevice
	handle core1_0.CommandPool
}

func (p *vkCommandPool) Allocate(count int) ([]CommandBuffer, error) {
	buffers, _, err := p.device.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	commandBuffers := make([]CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		commandBuffers = append(commandBuffers, &vkCommandBuffer{device: p.device, handle: buffer})
	}
	return commandBuffers, nil
}

func (p *vkCommandPool) Destroy() {
	p.device.driver.DestroyCommandPool(p.handle, nil)
}

type vkBuffer struct {
	device *vkDevice
	handle core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
}

func (b *vkBuffer) Size() int { return b.size }

func (b *vkBuffer) Map() ([]byte, error) {
	return b.device.mapMemory(b.memory, b.size)
}

func (b *vkBuffer) Unmap() {
	b.device.driver.UnmapMemory(b.memory)
}

func (b *vkBuffer) Destroy() {
	b.device.driver.DestroyBuffer(b.handle, nil)
	b.device.driver.FreeMemory(b.memory, nil)
}

type vkImage struct {
	device *vkDevice
	handle core1_0.Image
	memory core1_0.DeviceMemory
	// Swapchain images are not owned and are released with their swapchain.
	owned bool

	extent core1_0.Extent2D
	format core1_0.Format
}

func (i *vkImage) Extent() core1_0.Extent2D { return i.extent }
func (i *vkImage) Format() core1_0.Format   { return i.format }

func (i *vkImage) Destroy() {
	if !i.owned {
		return
	}
	i.device.driver.DestroyImage(i.handle, nil)
	i.device.driver.FreeMemory(i.memory, nil)
}

type vkImageView struct {
	device *vkDevice
	handle core1_0.ImageView
}

func (v *vkImageView) Destroy() {
	v.device.driver.DestroyImageView(v.handle, nil)
}

type vkSampler struct {
	device *vkDevice
	handle core1_0.Sampler
}

func (s *vkSampler) Destroy() {
	s.device.driver.DestroySampler(s.handle, nil)
}

type vkShaderModule struct {
	device *vkDevice
	handle core1_0.ShaderModule
}

func (m *vkShaderModule) Destroy() {
	m.device.driver.DestroyShaderModule(m.handle, nil)
}

type vkRenderPass struct {
	device *vkDevice
	handle core1_0.RenderPass
}

func (r *vkRenderPass) Destroy() {
	r.device.driver.DestroyRenderPass(r.handle, nil)
}

type vkFramebuffer struct {
	device *vkDevice
	handle core1_0.Framebuffer
	extent core1_0.Extent2D
}

func (f *vkFramebuffer) Extent() core1_0.Extent2D { return f.extent }

func (f *vkFramebuffer) Destroy() {
	f.device.driver.DestroyFramebuffer(f.handle, nil)
}

type vkDescriptorSetLayout struct {
	device *vkDevice
	handle core1_0.DescriptorSetLayout
}

func (l *vkDescriptorSetLayout) Destroy() {
	l.device.driver.DestroyDescriptorSetLayout(l.handle, nil)
}

type vkDescriptorPool struct {
	device *vkDevice
	handle core1_0.DescriptorPool
}

func (p *vkDescriptorPool) Allocate(layout DescriptorSetLayout, count int) ([]DescriptorSet, error) {
	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout.(*vkDescriptorSetLayout).handle
	}

	handles, _, err := p.device.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.handle,
		SetLayouts:     layouts,
	})
	if err != nil {
		return nil, err
	}

	sets := make([]DescriptorSet, 0, len(handles))
	for _, handle := range handles {
		sets = append(sets, &vkDescriptorSet{device: p.device, handle: handle})
	}
	return sets, nil
}

func (p *vkDescriptorPool) Destroy() {
	p.device.driver.DestroyDescriptorPool(p.handle, nil)
}

type vkDescriptorSet struct {
	device *vkDevice
	handle core1_0.DescriptorSet
}

func (s *vkDescriptorSet) WriteBuffer(binding int, buffer Buffer, size int) error {
	return s.device.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          s.handle,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: buffer.(*vkBuffer).handle,
					Offset: 0,
					Range:  size,
				},
			},
		},
	}, nil)
}

func (s *vkDescriptorSet) WriteImage(binding int, view ImageView, sampler Sampler) error {
	return s.device.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          s.handle,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view.(*vkImageView).handle,
					Sampler:     sampler.(*vkSampler).handle,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
}

type vkPipelineLayout struct {
	device *vkDevice
	handle core1_0.PipelineLayout
}

func (l *vkPipelineLayout) Destroy() {
	l.device.driver.DestroyPipelineLayout(l.handle, nil)
}

type vkPipeline struct {
	device *vkDevice
	handle core1_0.Pipeline
}

func (p *vkPipeline) Destroy() {
	p.device.driver.DestroyPipeline(p.handle, nil)
}

type vkCommandBuffer struct {
	device *vkDevice
	handle core1_0.CommandBuffer
}

func (c *vkCommandBuffer) Reset() error {
	_, err := c.device.driver.ResetCommandBuffer(c.handle, 0)
	return err
}

func (c *vkCommandBuffer) Begin(usage core1_0.CommandBufferUsageFlags) error {
	_, err := c.device.driver.BeginCommandBuffer(c.handle, core1_0.CommandBufferBeginInfo{
		Flags: usage,
	})
	return err
}

func (c *vkCommandBuffer) End() error {
	_, err := c.device.driver.EndCommandBuffer(c.handle)
	return err
}

func (c *vkCommandBuffer) Free() {
	c.device.driver.FreeCommandBuffers(c.handle)
}

func (c *vkCommandBuffer) BeginRenderPass(info RenderPassBegin) error {
	return c.device.driver.CmdBeginRenderPass(c.handle, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  info.RenderPass.(*vkRenderPass).handle,
			Framebuffer: info.Framebuffer.(*vkFramebuffer).handle,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: info.Extent,
			},
			ClearValues: info.ClearValues,
		})
}

func (c *vkCommandBuffer) EndRenderPass() {
	c.device.driver.CmdEndRenderPass(c.handle)
}

func (c *vkCommandBuffer) BindPipeline(pipeline Pipeline) {
	c.device.driver.CmdBindPipeline(c.handle, core1_0.PipelineBindPointGraphics, pipeline.(*vkPipeline).handle)
}

func (c *vkCommandBuffer) BindVertexBuffers(buffers ...Buffer) {
	handles := make([]core1_0.Buffer, 0, len(buffers))
	offsets := make([]int, 0, len(buffers))
	for _, buffer := range buffers {
		handles = append(handles, buffer.(*vkBuffer).handle)
		offsets = append(offsets, 0)
	}
	c.device.driver.CmdBindVertexBuffers(c.handle, 0, handles, offsets)
}

func (c *vkCommandBuffer) BindIndexBuffer(buffer Buffer, indexType core1_0.IndexType) {
	c.device.driver.CmdBindIndexBuffer(c.handle, buffer.(*vkBuffer).handle, 0, indexType)
}

func (c *vkCommandBuffer) BindDescriptorSets(layout PipelineLayout, sets ...DescriptorSet) {
	handles := make([]core1_0.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		handles = append(handles, set.(*vkDescriptorSet).handle)
	}
	c.device.driver.CmdBindDescriptorSets(c.handle, core1_0.PipelineBindPointGraphics, layout.(*vkPipelineLayout).handle, 0, handles, nil)
}

func (c *vkCommandBuffer) SetViewport(viewport core1_0.Viewport) {
	c.device.driver.CmdSetViewport(c.handle, viewport)
}

func (c *vkCommandBuffer) SetScissor(scissor core1_0.Rect2D) {
	c.device.driver.CmdSetScissor(c.handle, scissor)
}

func (c *vkCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	c.device.driver.CmdDrawIndexed(c.handle, indexCount, instanceCount, uint32(firstIndex), vertexOffset, uint32(firstInstance))
}

func (c *vkCommandBuffer) CopyBuffer(src, dst Buffer, size int) error {
	return c.device.driver.CmdCopyBuffer(c.handle, src.(*vkBuffer).handle, dst.(*vkBuffer).handle,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
}

func (c *vkCommandBuffer) CopyBufferToImage(src Buffer, dst Image, extent core1_0.Extent2D) error {
	return c.device.driver.CmdCopyBufferToImage(c.handle, src.(*vkBuffer).handle, dst.(*vkImage).handle, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		},
	)
}

func (c *vkCommandBuffer) ImageBarrier(barrier ImageBarrier) error {
	aspect := barrier.Aspect
	if aspect == 0 {
		aspect = core1_0.ImageAspectColor
	}

	return c.device.driver.CmdPipelineBarrier(c.handle, barrier.SrcStage, barrier.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               barrier.Image.(*vkImage).handle,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: barrier.SrcAccess,
			DstAccessMask: barrier.DstAccess,
		},
	})
}

func semaphoreHandles(semaphores []Semaphore) []core1_0.Semaphore {
	if len(semaphores) == 0 {
		return nil
	}

	handles := make([]core1_0.Semaphore, 0, len(semaphores))
	for _, semaphore := range semaphores {
		handles = append(handles, semaphore.(*vkSemaphore).handle)
	}
	return handles
}

type vkQueue struct {
	device *vkDevice
	handle core1_0.Queue
}

func (q *vkQueue) Submit(info SubmitInfo) error {
	if len(info.WaitSemaphores) != len(info.WaitStages) {
		return errors.AssertionFailedf("%d wait semaphores but %d wait stages", len(info.WaitSemaphores), len(info.WaitStages))
	}

	commandBuffers := make([]core1_0.CommandBuffer, 0, len(info.CommandBuffers))
	for _, buffer := range info.CommandBuffers {
		commandBuffers = append(commandBuffers, buffer.(*vkCommandBuffer).handle)
	}

	var fence *core1_0.Fence
	if info.Fence != nil {
		fence = &info.Fence.(*vkFence).handle
	}

	_, err := q.device.driver.QueueSubmit(q.handle, fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   semaphoreHandles(info.WaitSemaphores),
			WaitDstStageMask: info.WaitStages,
			CommandBuffers:   commandBuffers,
			SignalSemaphores: semaphoreHandles(info.SignalSemaphores),
		},
	)
	return err
}

func (q *vkQueue) WaitIdle() error {
	_, err := q.device.driver.QueueWaitIdle(q.handle)
	return err
}
