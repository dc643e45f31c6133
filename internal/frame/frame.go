// Package frame drives the per-frame render loop: it waits for a frame slot
// to retire, acquires a swapchain image, records and submits the draw,
// presents, and hands stale swapchains to their manager for recreation.
package frame

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/config"
	"github.com/vkngwrapper/quadview/internal/gpu"
)

// Swapchain is the orchestrator's view of the swapchain manager. The handles
// it returns are only valid until the next Recreate.
type Swapchain interface {
	Swapchain() gpu.Swapchain
	Extent() core1_0.Extent2D
	Framebuffer(imageIndex int) gpu.Framebuffer
	Recreate(renderPass gpu.RenderPass) error
}

// ResizeSource reports whether the window was resized since the last call.
type ResizeSource interface {
	PollResize() bool
}

// UniformWriter writes the transform for a frame slot.
type UniformWriter interface {
	Write(slot int, data []byte) error
}

// Scene is everything a frame draws. None of it is owned by the orchestrator.
type Scene struct {
	RenderPass     gpu.RenderPass
	Pipeline       gpu.Pipeline
	PipelineLayout gpu.PipelineLayout

	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	IndexType    core1_0.IndexType
	IndexCount   int

	// DescriptorSets holds one set per frame slot.
	DescriptorSets []gpu.DescriptorSet
	Uniforms       UniformWriter
}

type slot struct {
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
	inFlight       gpu.Fence
	commands       gpu.CommandBuffer
}

type Orchestrator struct {
	graphics gpu.Queue
	present  gpu.Queue
	chain    Swapchain
	resize   ResizeSource
	scene    Scene
	clock    *Clock

	owned   gpu.Scope
	slots   []slot
	current int
}

// New creates config.MaxFramesInFlight frame slots, each with its own
// semaphores, a signaled fence and a command buffer from pool.
func New(device gpu.Device, pool gpu.CommandPool, graphics, present gpu.Queue, chain Swapchain, resize ResizeSource, scene Scene, clock *Clock) (*Orchestrator, error) {
	if len(scene.DescriptorSets) != config.MaxFramesInFlight {
		return nil, errors.Newf("scene has %d descriptor sets, need one per frame in flight (%d)", len(scene.DescriptorSets), config.MaxFramesInFlight)
	}

	o := &Orchestrator{
		graphics: graphics,
		present:  present,
		chain:    chain,
		resize:   resize,
		scene:    scene,
		clock:    clock,
	}

	err := o.createSlots(device, pool)
	if err != nil {
		o.owned.Release()
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) createSlots(device gpu.Device, pool gpu.CommandPool) error {
	commandBuffers, err := pool.Allocate(config.MaxFramesInFlight)
	if err != nil {
		return gpu.Created("frame command buffers", err)
	}
	for _, cb := range commandBuffers {
		o.owned.Defer("frame command buffer", cb.Free)
	}

	for i := 0; i < config.MaxFramesInFlight; i++ {
		imageAvailable, err := device.CreateSemaphore()
		if err := o.owned.Own("image available semaphore", imageAvailable, err); err != nil {
			return err
		}

		renderFinished, err := device.CreateSemaphore()
		if err := o.owned.Own("render finished semaphore", renderFinished, err); err != nil {
			return err
		}

		// Signaled so the first wait on every slot returns at once.
		inFlight, err := device.CreateFence(true)
		if err := o.owned.Own("in flight fence", inFlight, err); err != nil {
			return err
		}

		o.slots = append(o.slots, slot{
			imageAvailable: imageAvailable,
			renderFinished: renderFinished,
			inFlight:       inFlight,
			commands:       commandBuffers[i],
		})
	}

	return nil
}

// CurrentFrame is the index of the slot the next DrawFrame uses.
func (o *Orchestrator) CurrentFrame() int {
	return o.current
}

// DrawFrame renders and presents one frame. A swapchain that went out of
// date on acquire is recreated and the frame is dropped without advancing
// to the next slot.
func (o *Orchestrator) DrawFrame() error {
	s := o.slots[o.current]

	err := s.inFlight.Wait()
	if err != nil {
		return errors.Wrapf(err, "wait for frame %d", o.current)
	}

	imageIndex, status, err := o.chain.Swapchain().AcquireNextImage(s.imageAvailable)
	if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}
	if status == gpu.StatusOutOfDate {
		// The new chain already has the window's current size.
		o.resize.PollResize()
		return o.recreate()
	}

	// Only reset once work is certain to be submitted with this fence.
	err = s.inFlight.Reset()
	if err != nil {
		return errors.Wrapf(err, "reset fence for frame %d", o.current)
	}

	err = s.commands.Reset()
	if err != nil {
		return errors.Wrap(err, "reset command buffer")
	}
	err = o.record(s.commands, imageIndex)
	if err != nil {
		return errors.Wrap(err, "record command buffer")
	}

	transform := NewTransform(o.clock.Elapsed(), o.chain.Extent())
	err = o.scene.Uniforms.Write(o.current, transform.Bytes())
	if err != nil {
		return errors.Wrap(err, "update uniform buffer")
	}

	err = o.graphics.Submit(gpu.SubmitInfo{
		CommandBuffers:   []gpu.CommandBuffer{s.commands},
		WaitSemaphores:   []gpu.Semaphore{s.imageAvailable},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		SignalSemaphores: []gpu.Semaphore{s.renderFinished},
		Fence:            s.inFlight,
	})
	if err != nil {
		return errors.Wrap(err, "submit draw command buffer")
	}

	status, err = o.present.Present(o.chain.Swapchain(), imageIndex, s.renderFinished)
	if err != nil {
		return errors.Wrap(err, "present swapchain image")
	}

	resized := o.resize.PollResize()
	if status != gpu.StatusSuccess || resized {
		err = o.recreate()
		if err != nil {
			return err
		}
	}

	o.current = (o.current + 1) % len(o.slots)
	return nil
}

func (o *Orchestrator) recreate() error {
	err := o.chain.Recreate(o.scene.RenderPass)
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	return nil
}

func (o *Orchestrator) record(cb gpu.CommandBuffer, imageIndex int) error {
	err := cb.Begin(0)
	if err != nil {
		return err
	}

	extent := o.chain.Extent()
	err = cb.BeginRenderPass(gpu.RenderPassBegin{
		RenderPass:  o.scene.RenderPass,
		Framebuffer: o.chain.Framebuffer(imageIndex),
		Extent:      extent,
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0, 0, 0, 1},
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
	})
	if err != nil {
		return err
	}

	cb.BindPipeline(o.scene.Pipeline)
	cb.SetViewport(core1_0.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cb.SetScissor(core1_0.Rect2D{Extent: extent})
	cb.BindVertexBuffers(o.scene.VertexBuffer)
	cb.BindIndexBuffer(o.scene.IndexBuffer, o.scene.IndexType)
	cb.BindDescriptorSets(o.scene.PipelineLayout, o.scene.DescriptorSets[o.current])
	cb.DrawIndexed(o.scene.IndexCount, 1, 0, 0, 0)
	cb.EndRenderPass()

	return cb.End()
}

// Destroy releases the frame slots. The caller waits for the device to go
// idle first.
func (o *Orchestrator) Destroy() {
	o.owned.Release()
	o.slots = nil
}
