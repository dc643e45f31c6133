package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

// Command is one recorded command. The concrete types below are what tests
// inspect.
type Command interface{}

type BeginRenderPass struct {
	RenderPass  *RenderPass
	Framebuffer *Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue
}

type EndRenderPass struct{}

type BindPipeline struct {
	Pipeline *Pipeline
}

type BindVertexBuffers struct {
	Buffers []*Buffer
}

type BindIndexBuffer struct {
	Buffer    *Buffer
	IndexType core1_0.IndexType
}

type BindDescriptorSets struct {
	Layout *PipelineLayout
	Sets   []*DescriptorSet
}

type SetViewport struct {
	Viewport core1_0.Viewport
}

type SetScissor struct {
	Scissor core1_0.Rect2D
}

type DrawIndexed struct {
	IndexCount    int
	InstanceCount int
	FirstIndex    int
	VertexOffset  int
	FirstInstance int
}

type CopyBuffer struct {
	Src, Dst *Buffer
	Size     int
}

type CopyBufferToImage struct {
	Src    *Buffer
	Dst    *Image
	Extent core1_0.Extent2D
}

type ImageBarrier struct {
	Image   *Image
	Barrier gpu.ImageBarrier
}

type CommandBuffer struct {
	device *Device
	pool   *CommandPool

	commands  []Command
	recording bool
	inPass    bool
	pending   bool
	freed     bool

	// Resets counts explicit resets; Begins counts recordings started.
	Resets int
	Begins int
}

// Commands returns the commands recorded since the last reset.
func (c *CommandBuffer) Commands() []Command {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	return append([]Command(nil), c.commands...)
}

func (c *CommandBuffer) ResetCount() int {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	return c.Resets
}

func (c *CommandBuffer) Reset() error {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.pending {
		d.violate("command buffer reset while its submission is pending")
	}
	c.commands = nil
	c.recording = false
	c.inPass = false
	c.Resets++
	return nil
}

func (c *CommandBuffer) Begin(usage core1_0.CommandBufferUsageFlags) error {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.pending {
		d.violate("command buffer re-recorded while its submission is pending")
	}
	if c.freed {
		d.violate("recording into a freed command buffer")
	}
	c.commands = nil
	c.recording = true
	c.Begins++
	return nil
}

func (c *CommandBuffer) End() error {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if !c.recording {
		return errors.New("command buffer is not recording")
	}
	if c.inPass {
		d.violate("command buffer ended inside a render pass")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) Free() {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.freed {
		d.violate("command buffer freed twice")
		return
	}
	if c.pending {
		d.violate("command buffer freed while pending")
	}
	c.freed = true
	d.events = append(d.events, "free command buffer")
	d.live["command buffer"]--
}

func (c *CommandBuffer) record(cmd Command) {
	if !c.recording {
		c.device.violate("%T recorded outside Begin/End", cmd)
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandBuffer) BeginRenderPass(info gpu.RenderPassBegin) error {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	framebuffer := info.Framebuffer.(*Framebuffer)
	if framebuffer.destroyed {
		d.violate("render pass begun on a destroyed framebuffer")
	}
	if framebuffer.extent != info.Extent {
		d.violate("render area %v does not match framebuffer extent %v", info.Extent, framebuffer.extent)
	}
	c.inPass = true
	c.record(BeginRenderPass{
		RenderPass:  info.RenderPass.(*RenderPass),
		Framebuffer: framebuffer,
		Extent:      info.Extent,
		ClearValues: info.ClearValues,
	})
	return nil
}

func (c *CommandBuffer) EndRenderPass() {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.inPass = false
	c.record(EndRenderPass{})
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.record(BindPipeline{Pipeline: pipeline.(*Pipeline)})
}

func (c *CommandBuffer) BindVertexBuffers(buffers ...gpu.Buffer) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	cmd := BindVertexBuffers{}
	for _, buffer := range buffers {
		cmd.Buffers = append(cmd.Buffers, buffer.(*Buffer))
	}
	c.record(cmd)
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.record(BindIndexBuffer{Buffer: buffer.(*Buffer), IndexType: indexType})
}

func (c *CommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, sets ...gpu.DescriptorSet) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	cmd := BindDescriptorSets{Layout: layout.(*PipelineLayout)}
	for _, set := range sets {
		cmd.Sets = append(cmd.Sets, set.(*DescriptorSet))
	}
	c.record(cmd)
}

func (c *CommandBuffer) SetViewport(viewport core1_0.Viewport) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.record(SetViewport{Viewport: viewport})
}

func (c *CommandBuffer) SetScissor(scissor core1_0.Rect2D) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.record(SetScissor{Scissor: scissor})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	if !c.inPass {
		c.device.violate("draw recorded outside a render pass")
	}
	c.record(DrawIndexed{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	})
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	s, t := src.(*Buffer), dst.(*Buffer)
	if size > len(s.data) || size > len(t.data) {
		return errors.Newf("copy of %d bytes overruns %d byte source or %d byte destination", size, len(s.data), len(t.data))
	}
	c.record(CopyBuffer{Src: s, Dst: t, Size: size})
	return nil
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, extent core1_0.Extent2D) error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	s, img := src.(*Buffer), dst.(*Image)
	if need := extent.Width * extent.Height * 4; need > len(s.data) || need > len(img.data) {
		return errors.Newf("copy of %dx%d texels overruns source or destination", extent.Width, extent.Height)
	}
	c.record(CopyBufferToImage{Src: s, Dst: img, Extent: extent})
	return nil
}

func (c *CommandBuffer) ImageBarrier(barrier gpu.ImageBarrier) error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.record(ImageBarrier{Image: barrier.Image.(*Image), Barrier: barrier})
	return nil
}

// execute runs the side effects of commands. The caller holds the device lock.
func (d *Device) execute(commands []Command) {
	for _, cmd := range commands {
		switch c := cmd.(type) {
		case CopyBuffer:
			copy(c.Dst.data[:c.Size], c.Src.data[:c.Size])
		case CopyBufferToImage:
			if c.Dst.Layout != core1_0.ImageLayoutTransferDstOptimal {
				d.violate("buffer copied into an image in layout %v", c.Dst.Layout)
			}
			n := c.Extent.Width * c.Extent.Height * 4
			copy(c.Dst.data[:n], c.Src.data[:n])
		case ImageBarrier:
			if c.Barrier.OldLayout != core1_0.ImageLayoutUndefined && c.Barrier.OldLayout != c.Image.Layout {
				d.violate("barrier expects layout %v but image is in %v", c.Barrier.OldLayout, c.Image.Layout)
			}
			c.Image.Layout = c.Barrier.NewLayout
		}
	}
}
