package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

type Fence struct {
	device    *Device
	signaled  bool
	pending   bool
	destroyed bool
}

func (f *Fence) Wait() error {
	d := f.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if !f.signaled && !f.pending {
		d.violate("waiting on a fence no submission will signal")
		return errors.New("fence would never be signaled")
	}

	d.waiters++
	for !f.signaled {
		d.cond.Wait()
	}
	d.waiters--
	return nil
}

func (f *Fence) Reset() error {
	d := f.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if f.pending {
		d.violate("reset of a fence still pending")
	}
	f.signaled = false
	return nil
}

// Signaled reports whether the fence is currently signaled.
func (f *Fence) Signaled() bool {
	f.device.mu.Lock()
	defer f.device.mu.Unlock()
	return f.signaled
}

func (f *Fence) Destroy() {
	f.device.mu.Lock()
	defer f.device.mu.Unlock()
	if f.pending {
		f.device.violate("fence destroyed while pending")
	}
	f.device.destroyLocked("fence", &f.destroyed)
}

type Semaphore struct {
	device    *Device
	signaled  bool
	destroyed bool
}

func (s *Semaphore) Destroy() {
	s.device.destroy("semaphore", &s.destroyed)
}

// wait consumes the signal. The caller holds the device lock.
func (s *Semaphore) wait(what string) {
	if s.destroyed {
		s.device.violate("%s waited on a destroyed semaphore", what)
	}
	if !s.signaled {
		s.device.violate("%s waited on a semaphore nothing signaled", what)
	}
	s.signaled = false
}

// signal schedules the semaphore. The caller holds the device lock.
func (s *Semaphore) signal(what string) {
	if s.signaled {
		s.device.violate("%s signaled a semaphore that was already signaled", what)
	}
	s.signaled = true
}

type CommandPool struct {
	device    *Device
	Family    int
	buffers   []*CommandBuffer
	destroyed bool
}

func (p *CommandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	d := p.device
	d.mu.Lock()
	defer d.mu.Unlock()

	var buffers []gpu.CommandBuffer
	for i := 0; i < count; i++ {
		if err := d.create("command buffer"); err != nil {
			return nil, err
		}
		buffer := &CommandBuffer{device: d, pool: p}
		p.buffers = append(p.buffers, buffer)
		buffers = append(buffers, buffer)
	}
	return buffers, nil
}

func (p *CommandPool) Destroy() {
	d := p.device
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, buffer := range p.buffers {
		if !buffer.freed {
			if buffer.pending {
				d.violate("command pool destroyed while a command buffer is pending")
			}
			buffer.freed = true
			d.live["command buffer"]--
		}
	}
	d.destroyLocked("command pool", &p.destroyed)
}

type Buffer struct {
	device     *Device
	data       []byte
	mapped     bool
	destroyed  bool
	Usage      core1_0.BufferUsageFlags
	Properties core1_0.MemoryPropertyFlags
}

func (b *Buffer) Size() int { return len(b.data) }

func (b *Buffer) Map() ([]byte, error) {
	d := b.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.Properties&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, errors.New("buffer memory is not host visible")
	}
	if b.mapped {
		d.violate("buffer mapped twice")
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Unmap() {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	b.mapped = false
}

func (b *Buffer) Destroy() {
	b.device.destroy("buffer", &b.destroyed)
}

type Image struct {
	device    *Device
	owned     bool
	destroyed bool
	extent    core1_0.Extent2D
	format    core1_0.Format
	data      []byte

	Usage  core1_0.ImageUsageFlags
	Layout core1_0.ImageLayout
}

func (i *Image) Extent() core1_0.Extent2D { return i.extent }
func (i *Image) Format() core1_0.Format   { return i.format }

// Pixels returns a copy of the image contents as tightly packed 4-byte texels.
func (i *Image) Pixels() []byte {
	i.device.mu.Lock()
	defer i.device.mu.Unlock()
	return append([]byte(nil), i.data...)
}

// CurrentLayout is the layout left by the last executed barrier.
func (i *Image) CurrentLayout() core1_0.ImageLayout {
	i.device.mu.Lock()
	defer i.device.mu.Unlock()
	return i.Layout
}

func (i *Image) Destroy() {
	if !i.owned {
		i.device.mu.Lock()
		i.device.violate("swapchain image destroyed directly")
		i.device.mu.Unlock()
		return
	}
	i.device.destroy("image", &i.destroyed)
}

type ImageView struct {
	device    *Device
	destroyed bool
	Image     *Image
	Format    core1_0.Format
	Aspect    core1_0.ImageAspectFlags
}

func (v *ImageView) Destroy() {
	v.device.destroy("image view", &v.destroyed)
}

type Sampler struct {
	device    *Device
	destroyed bool
	Info      core1_0.SamplerCreateInfo
}

func (s *Sampler) Destroy() {
	s.device.destroy("sampler", &s.destroyed)
}

type ShaderModule struct {
	device    *Device
	destroyed bool
	Code      []uint32
}

func (m *ShaderModule) Destroy() {
	m.device.destroy("shader module", &m.destroyed)
}

type RenderPass struct {
	device    *Device
	destroyed bool
	Info      core1_0.RenderPassCreateInfo
}

func (r *RenderPass) Destroy() {
	r.device.destroy("render pass", &r.destroyed)
}

type Framebuffer struct {
	device      *Device
	destroyed   bool
	extent      core1_0.Extent2D
	RenderPass  *RenderPass
	Attachments []*ImageView
}

func (f *Framebuffer) Extent() core1_0.Extent2D { return f.extent }

func (f *Framebuffer) Destroyed() bool {
	f.device.mu.Lock()
	defer f.device.mu.Unlock()
	return f.destroyed
}

func (f *Framebuffer) Destroy() {
	f.device.destroy("framebuffer", &f.destroyed)
}

type DescriptorSetLayout struct {
	device    *Device
	destroyed bool
	Info      core1_0.DescriptorSetLayoutCreateInfo
}

func (l *DescriptorSetLayout) Destroy() {
	l.device.destroy("descriptor set layout", &l.destroyed)
}

type DescriptorPool struct {
	device    *Device
	destroyed bool
	Info      core1_0.DescriptorPoolCreateInfo
	Sets      []*DescriptorSet
}

func (p *DescriptorPool) Allocate(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	d := p.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(p.Sets)+count > p.Info.MaxSets {
		return nil, errors.Newf("descriptor pool exhausted: %d sets allocated, %d requested, max %d", len(p.Sets), count, p.Info.MaxSets)
	}

	var sets []gpu.DescriptorSet
	for i := 0; i < count; i++ {
		set := &DescriptorSet{
			device:   d,
			Layout:   layout.(*DescriptorSetLayout),
			Buffers:  map[int]*Buffer{},
			Views:    map[int]*ImageView{},
			Samplers: map[int]*Sampler{},
		}
		p.Sets = append(p.Sets, set)
		sets = append(sets, set)
	}
	return sets, nil
}

func (p *DescriptorPool) Destroy() {
	p.device.destroy("descriptor pool", &p.destroyed)
}

type DescriptorSet struct {
	device   *Device
	Layout   *DescriptorSetLayout
	Buffers  map[int]*Buffer
	Views    map[int]*ImageView
	Samplers map[int]*Sampler
}

func (s *DescriptorSet) WriteBuffer(binding int, buffer gpu.Buffer, size int) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	b := buffer.(*Buffer)
	if size > len(b.data) {
		return errors.Newf("descriptor range %d exceeds buffer size %d", size, len(b.data))
	}
	s.Buffers[binding] = b
	return nil
}

func (s *DescriptorSet) WriteImage(binding int, view gpu.ImageView, sampler gpu.Sampler) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.Views[binding] = view.(*ImageView)
	s.Samplers[binding] = sampler.(*Sampler)
	return nil
}

type PipelineLayout struct {
	device     *Device
	destroyed  bool
	SetLayouts []*DescriptorSetLayout
}

func (l *PipelineLayout) Destroy() {
	l.device.destroy("pipeline layout", &l.destroyed)
}

type Pipeline struct {
	device    *Device
	destroyed bool
	Info      gpu.GraphicsPipelineInfo
}

func (p *Pipeline) Destroy() {
	p.device.destroy("pipeline", &p.destroyed)
}
