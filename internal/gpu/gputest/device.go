// Package gputest is a software GPU implementing the gpu interfaces.
//
// It keeps every object in memory, records an event log and the command
// streams of every submission, and executes copies and layout barriers when
// a submission completes. Submissions complete as soon as they are made
// unless the device is switched to manual completion, in which case they stay
// pending (and their fences unsignaled) until Complete is called.
//
// Misuse that a validation layer would catch is recorded as a violation
// instead of failing the call, so tests can assert on it.
package gputest

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	events     []string
	live       map[string]int
	violations []string
	failures   map[string]error

	manual      bool
	pending     []*pendingSubmission
	submissions []Submission
	presents    []Present
	waiters     int

	acquireResults []gpu.Status
	presentResults []gpu.Status
	unsupported    map[core1_0.Format]bool

	maxAnisotropy float32
}

func NewDevice() *Device {
	d := &Device{
		live:          map[string]int{},
		failures:      map[string]error{},
		unsupported:   map[core1_0.Format]bool{},
		maxAnisotropy: 16,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// NewQueue returns a queue submitting to d.
func (d *Device) NewQueue(name string) *Queue {
	return &Queue{device: d, name: name}
}

// SetManualCompletion switches between immediate completion (the default)
// and completion on Complete.
func (d *Device) SetManualCompletion(manual bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manual = manual
}

// FailNext makes the next creation of an object of kind fail with err.
func (d *Device) FailNext(kind string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[kind] = err
}

// ScriptAcquire queues statuses returned by the next acquires, in order.
// Once exhausted, acquires succeed.
func (d *Device) ScriptAcquire(statuses ...gpu.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireResults = append(d.acquireResults, statuses...)
}

// ScriptPresent queues statuses returned by the next presents, in order.
func (d *Device) ScriptPresent(statuses ...gpu.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentResults = append(d.presentResults, statuses...)
}

// Unsupport removes format from the formats FindSupportedFormat accepts.
func (d *Device) Unsupport(format core1_0.Format) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unsupported[format] = true
}

// Events returns the event log: "create <kind>", "destroy <kind>",
// "wait idle" and so on, in order.
func (d *Device) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Live reports how many objects of kind exist. An empty kind counts all.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if kind != "" {
		return d.live[kind]
	}
	total := 0
	for _, n := range d.live {
		total += n
	}
	return total
}

func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

func (d *Device) Presents() []Present {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Present(nil), d.presents...)
}

// Pending reports how many submissions have not completed.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Waiters reports how many goroutines are blocked in Fence.Wait.
func (d *Device) Waiters() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiters
}

// Complete finishes every pending submission.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked(len(d.pending))
}

// CompleteOne finishes the oldest pending submission, if any.
func (d *Device) CompleteOne() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked(1)
}

func (d *Device) completeLocked(n int) {
	if n > len(d.pending) {
		n = len(d.pending)
	}

	for _, p := range d.pending[:n] {
		for _, buffer := range p.buffers {
			d.execute(buffer.commands)
			buffer.pending = false
		}
		if p.fence != nil {
			p.fence.signaled = true
			p.fence.pending = false
		}
	}
	d.pending = d.pending[n:]
	d.cond.Broadcast()
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// create logs the creation of kind and returns the injected failure, if any.
func (d *Device) create(kind string) error {
	if err, failing := d.failures[kind]; failing {
		delete(d.failures, kind)
		return err
	}
	d.events = append(d.events, "create "+kind)
	d.live[kind]++
	return nil
}

func (d *Device) destroy(kind string, destroyed *bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyLocked(kind, destroyed)
}

func (d *Device) destroyLocked(kind string, destroyed *bool) {
	if *destroyed {
		d.violate("%s destroyed twice", kind)
		return
	}
	*destroyed = true
	d.events = append(d.events, "destroy "+kind)
	d.live[kind]--
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, "wait idle")
	d.completeLocked(len(d.pending))
	return nil
}

func (d *Device) MaxSamplerAnisotropy() float32 {
	return d.maxAnisotropy
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("fence"); err != nil {
		return nil, err
	}
	return &Fence{device: d, signaled: signaled}, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("semaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{device: d}, nil
}

func (d *Device) CreateCommandPool(queueFamilyIndex int) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("command pool"); err != nil {
		return nil, err
	}
	return &CommandPool{device: d, Family: queueFamilyIndex}, nil
}

func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size <= 0 {
		return nil, errors.Newf("buffer size must be positive, got %d", size)
	}
	if err := d.create("buffer"); err != nil {
		return nil, err
	}
	return &Buffer{device: d, data: make([]byte, size), Usage: usage, Properties: properties}, nil
}

func (d *Device) CreateImage(info core1_0.ImageCreateInfo, properties core1_0.MemoryPropertyFlags) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("image"); err != nil {
		return nil, err
	}
	return &Image{
		device: d,
		owned:  true,
		extent: core1_0.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		format: info.Format,
		Usage:  info.Usage,
		Layout: info.InitialLayout,
		data:   make([]byte, info.Extent.Width*info.Extent.Height*4),
	}, nil
}

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := image.(*Image)
	if img.destroyed {
		d.violate("image view created for a destroyed image")
	}
	if err := d.create("image view"); err != nil {
		return nil, err
	}
	return &ImageView{device: d, Image: img, Format: format, Aspect: aspect}, nil
}

func (d *Device) CreateSampler(info core1_0.SamplerCreateInfo) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("sampler"); err != nil {
		return nil, err
	}
	return &Sampler{device: d, Info: info}, nil
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 {
		return nil, errors.New("empty shader code")
	}
	if err := d.create("shader module"); err != nil {
		return nil, err
	}
	return &ShaderModule{device: d, Code: code}, nil
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("render pass"); err != nil {
		return nil, err
	}
	return &RenderPass{device: d, Info: info}, nil
}

func (d *Device) CreateFramebuffer(renderPass gpu.RenderPass, extent core1_0.Extent2D, attachments ...gpu.ImageView) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rp := renderPass.(*RenderPass)
	if len(attachments) != len(rp.Info.Attachments) {
		d.violate("framebuffer has %d attachments, render pass expects %d", len(attachments), len(rp.Info.Attachments))
	}
	views := make([]*ImageView, 0, len(attachments))
	for _, attachment := range attachments {
		view := attachment.(*ImageView)
		if view.destroyed {
			d.violate("framebuffer created with a destroyed image view")
		}
		views = append(views, view)
	}

	if err := d.create("framebuffer"); err != nil {
		return nil, err
	}
	return &Framebuffer{device: d, RenderPass: rp, Attachments: views, extent: extent}, nil
}

func (d *Device) CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("descriptor set layout"); err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{device: d, Info: info}, nil
}

func (d *Device) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("descriptor pool"); err != nil {
		return nil, err
	}
	return &DescriptorPool{device: d, Info: info}, nil
}

func (d *Device) CreatePipelineLayout(setLayouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("pipeline layout"); err != nil {
		return nil, err
	}
	layout := &PipelineLayout{device: d}
	for _, setLayout := range setLayouts {
		layout.SetLayouts = append(layout.SetLayouts, setLayout.(*DescriptorSetLayout))
	}
	return layout, nil
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, module := range []gpu.ShaderModule{info.VertexShader, info.FragmentShader} {
		if module == nil || module.(*ShaderModule).destroyed {
			d.violate("graphics pipeline created without a live shader module")
		}
	}
	if err := d.create("pipeline"); err != nil {
		return nil, err
	}
	return &Pipeline{device: d, Info: info}, nil
}

func (d *Device) FindSupportedFormat(candidates []core1_0.Format, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, format := range candidates {
		if !d.unsupported[format] {
			return format, nil
		}
	}
	return 0, errors.Newf("failed to find supported format for optimal tiling, featureset %s", features)
}

var (
	_ gpu.Device  = (*Device)(nil)
	_ gpu.Queue   = (*Queue)(nil)
	_ gpu.Surface = (*Surface)(nil)
)
