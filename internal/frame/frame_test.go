package frame

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/assets"
	"github.com/vkngwrapper/quadview/internal/config"
	"github.com/vkngwrapper/quadview/internal/gpu"
	"github.com/vkngwrapper/quadview/internal/gpu/gputest"
	"github.com/vkngwrapper/quadview/internal/mesh"
	"github.com/vkngwrapper/quadview/internal/pipeline"
	"github.com/vkngwrapper/quadview/internal/resource"
	"github.com/vkngwrapper/quadview/internal/swapchain"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

type window struct{}

func (window) DrawableSize() (int, int) { return 800, 600 }
func (window) WaitEvents()              {}
func (window) ShouldClose() bool        { return false }

type resizes struct {
	pending []bool
}

func (r *resizes) PollResize() bool {
	if len(r.pending) == 0 {
		return false
	}
	resized := r.pending[0]
	r.pending = r.pending[1:]
	return resized
}

type uniformWrite struct {
	slot int
	data []byte
}

type uniformRecorder struct {
	UniformWriter
	writes []uniformWrite
}

func (u *uniformRecorder) Write(slot int, data []byte) error {
	u.writes = append(u.writes, uniformWrite{slot: slot, data: data})
	return u.UniformWriter.Write(slot, data)
}

type harness struct {
	dev      *gputest.Device
	chain    *swapchain.Manager
	resize   *resizes
	uniforms *uniformRecorder
	o        *Orchestrator

	// before is the number of submissions made while setting up.
	before int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dev: gputest.NewDevice(), resize: &resizes{}}
	dev := h.dev

	var err error
	h.chain, err = swapchain.New(dev, gputest.NewSurface(800, 600), window{}, 0)
	require.NoError(t, err)
	renderPass, err := pipeline.NewRenderPass(dev, h.chain.Format(), h.chain.DepthFormat())
	require.NoError(t, err)
	require.NoError(t, h.chain.CreateFramebuffers(renderPass))

	setLayout, err := pipeline.NewDescriptorSetLayout(dev)
	require.NoError(t, err)
	p, err := pipeline.Build(dev, renderPass, setLayout, spirv, spirv)
	require.NoError(t, err)

	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	graphics := dev.NewQueue("graphics")
	uploader := resource.NewUploader(dev, pool, graphics)

	geometry, err := resource.UploadGeometry(uploader, mesh.Quad())
	require.NoError(t, err)
	texture, err := resource.UploadTexture(uploader, assets.Texture{Width: 1, Height: 1, Pixels: make([]byte, 4)})
	require.NoError(t, err)
	uniforms, err := resource.NewUniformBuffers(dev, config.MaxFramesInFlight, TransformSize)
	require.NoError(t, err)
	descriptors, err := resource.NewDescriptors(dev, setLayout, uniforms, texture)
	require.NoError(t, err)
	h.uniforms = &uniformRecorder{UniformWriter: uniforms}

	now := 1500 * time.Millisecond
	clock := NewClockWith(func() time.Duration {
		now += time.Second
		return now
	})

	h.o, err = New(dev, pool, graphics, dev.NewQueue("present"), h.chain, h.resize, Scene{
		RenderPass:     renderPass,
		Pipeline:       p.Pipeline,
		PipelineLayout: p.Layout,
		VertexBuffer:   geometry.Vertices,
		IndexBuffer:    geometry.Indices,
		IndexType:      geometry.IndexType,
		IndexCount:     geometry.IndexCount,
		DescriptorSets: descriptors.Sets,
		Uniforms:       h.uniforms,
	}, clock)
	require.NoError(t, err)

	h.before = len(dev.Submissions())
	return h
}

func (h *harness) submissions() []gputest.Submission {
	return h.dev.Submissions()[h.before:]
}

func TestDrawFrameQuad(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.o.DrawFrame())

	submissions := h.submissions()
	require.Len(t, submissions, 1)
	require.Equal(t, "graphics", submissions[0].Queue)
	require.Len(t, submissions[0].CommandBuffers, 1)
	require.Equal(t, []gputest.DrawIndexed{{IndexCount: 6, InstanceCount: 1, FirstIndex: 0}}, submissions[0].Draws())
	require.Equal(t, []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput}, submissions[0].WaitStages)
	require.NotNil(t, submissions[0].Fence)

	presents := h.dev.Presents()
	require.Len(t, presents, 1)
	require.Equal(t, "present", presents[0].Queue)
	require.Same(t, h.chain.Swapchain(), gpu.Swapchain(presents[0].Swapchain))

	// Every clock reading is a second later than the one before.
	require.Len(t, h.uniforms.writes, 1)
	require.Equal(t, 0, h.uniforms.writes[0].slot)
	require.Equal(t, NewTransform(time.Second, h.chain.Extent()).Bytes(), h.uniforms.writes[0].data)

	require.Equal(t, 1, h.o.CurrentFrame())
	require.Empty(t, h.dev.Violations())
}

func TestDrawFrameRecordsExtent(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.o.DrawFrame())

	var viewport gputest.SetViewport
	var scissor gputest.SetScissor
	for _, cmd := range h.submissions()[0].Commands[0] {
		switch c := cmd.(type) {
		case gputest.SetViewport:
			viewport = c
		case gputest.SetScissor:
			scissor = c
		}
	}
	require.Equal(t, float32(800), viewport.Viewport.Width)
	require.Equal(t, float32(600), viewport.Viewport.Height)
	require.Equal(t, float32(1), viewport.Viewport.MaxDepth)
	require.Equal(t, h.chain.Extent(), scissor.Scissor.Extent)
}

func TestFrameIndexAdvances(t *testing.T) {
	h := newHarness(t)

	var visited []int
	for i := 0; i < 2*config.MaxFramesInFlight; i++ {
		visited = append(visited, h.o.CurrentFrame())
		require.NoError(t, h.o.DrawFrame())
	}
	require.Equal(t, []int{0, 1, 0, 1}, visited)

	// Slots use their own descriptor sets and uniform slots.
	for i, write := range h.uniforms.writes {
		require.Equal(t, visited[i], write.slot)
	}

	old := h.chain.Swapchain()
	h.dev.ScriptAcquire(gpu.StatusOutOfDate)
	require.NoError(t, h.o.DrawFrame())

	require.Equal(t, 0, h.o.CurrentFrame())
	require.Len(t, h.submissions(), 2*config.MaxFramesInFlight)
	require.True(t, old.(*gputest.Swapchain).Destroyed())
	require.NotSame(t, old, h.chain.Swapchain())

	// The dropped frame left its fence signaled, so the slot is usable.
	require.NoError(t, h.o.DrawFrame())
	require.Equal(t, 1, h.o.CurrentFrame())
	require.Empty(t, h.dev.Violations())
}

func TestSuboptimalAcquireStillDraws(t *testing.T) {
	h := newHarness(t)
	h.dev.ScriptAcquire(gpu.StatusSuboptimal)

	require.NoError(t, h.o.DrawFrame())
	require.Len(t, h.submissions(), 1)
	require.Equal(t, 1, h.o.CurrentFrame())
}

func TestOutOfDateAcquireConsumesResize(t *testing.T) {
	h := newHarness(t)
	h.resize.pending = []bool{true}
	h.dev.ScriptAcquire(gpu.StatusOutOfDate)

	require.NoError(t, h.o.DrawFrame())
	require.Empty(t, h.resize.pending)
	rebuilt := h.chain.Swapchain()

	require.NoError(t, h.o.DrawFrame())
	require.Same(t, rebuilt, h.chain.Swapchain())
	require.False(t, rebuilt.(*gputest.Swapchain).Destroyed())
	require.Equal(t, 1, h.o.CurrentFrame())
	require.Empty(t, h.dev.Violations())
}

func TestFrameSlotMutualExclusion(t *testing.T) {
	h := newHarness(t)
	h.dev.SetManualCompletion(true)

	for i := 0; i < config.MaxFramesInFlight; i++ {
		require.NoError(t, h.o.DrawFrame())
	}
	require.Equal(t, config.MaxFramesInFlight, h.dev.Pending())

	slot0 := h.submissions()[0].CommandBuffers[0]
	require.Equal(t, 1, slot0.ResetCount())

	done := make(chan error, 1)
	go func() {
		done <- h.o.DrawFrame()
	}()

	require.Eventually(t, func() bool {
		return h.dev.Waiters() == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, slot0.ResetCount())
	require.Len(t, h.submissions(), config.MaxFramesInFlight)

	h.dev.CompleteOne()
	require.NoError(t, <-done)

	require.Equal(t, 2, slot0.ResetCount())
	require.Len(t, h.submissions(), config.MaxFramesInFlight+1)
	require.Empty(t, h.dev.Violations())
}

func TestRecreateAfterPresent(t *testing.T) {
	for name, setup := range map[string]func(h *harness){
		"suboptimal":  func(h *harness) { h.dev.ScriptPresent(gpu.StatusSuboptimal) },
		"out of date": func(h *harness) { h.dev.ScriptPresent(gpu.StatusOutOfDate) },
		"resize":      func(h *harness) { h.resize.pending = []bool{true} },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(h)
			old := h.chain.Swapchain()

			require.NoError(t, h.o.DrawFrame())

			require.Len(t, h.dev.Presents(), 1)
			require.Same(t, old, gpu.Swapchain(h.dev.Presents()[0].Swapchain))
			require.True(t, old.(*gputest.Swapchain).Destroyed())
			require.Equal(t, 1, h.o.CurrentFrame())

			require.NoError(t, h.o.DrawFrame())
			require.Same(t, h.chain.Swapchain(), gpu.Swapchain(h.dev.Presents()[1].Swapchain))
			require.Empty(t, h.dev.Violations())
		})
	}
}

func TestNewRequiresSetPerSlot(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)

	_, err = New(dev, pool, dev.NewQueue("graphics"), dev.NewQueue("present"), nil, nil, Scene{}, NewClock())
	require.Error(t, err)
}

func TestNewFailureReleasesSlots(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	dev.FailNext("fence", gpu.ErrObjectCreation)

	scene := Scene{DescriptorSets: make([]gpu.DescriptorSet, config.MaxFramesInFlight)}
	_, err = New(dev, pool, dev.NewQueue("graphics"), dev.NewQueue("present"), nil, nil, scene, NewClock())
	require.True(t, errors.Is(err, gpu.ErrObjectCreation))
	require.Contains(t, err.Error(), "in flight fence")

	require.Zero(t, dev.Live("semaphore"))
	require.Zero(t, dev.Live("command buffer"))
}

func TestDestroy(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.DrawFrame())

	require.NoError(t, h.dev.WaitIdle())
	h.o.Destroy()

	require.Zero(t, h.dev.Live("semaphore"))
	require.Zero(t, h.dev.Live("fence"))
	require.Zero(t, h.dev.Live("command buffer"))
	require.Empty(t, h.dev.Violations())
}

func TestClock(t *testing.T) {
	now := 10 * time.Second
	clock := NewClockWith(func() time.Duration { return now })

	require.Zero(t, clock.Elapsed())
	now += 250 * time.Millisecond
	require.Equal(t, 250*time.Millisecond, clock.Elapsed())

	require.GreaterOrEqual(t, NewClock().Elapsed(), time.Duration(0))
}

func TestTransform(t *testing.T) {
	extent := core1_0.Extent2D{Width: 800, Height: 600}

	// A quarter turn a second.
	x := NewTransform(time.Second, extent).Model.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	require.InDelta(t, 0, x[0], 1e-5)
	require.InDelta(t, 1, x[1], 1e-5)

	require.Equal(t, NewTransform(0, extent).Model, NewTransform(4*time.Second, extent).Model)

	transform := NewTransform(0, extent)
	require.Less(t, transform.Proj[5], float32(0))
	require.Len(t, transform.Bytes(), TransformSize)

	// Minimized windows have no aspect ratio; the transform must stay finite.
	degenerate := NewTransform(0, core1_0.Extent2D{})
	require.False(t, degenerate.Proj.ApproxEqual(transform.Proj))
}
