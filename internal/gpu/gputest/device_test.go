package gputest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

func hostBuffer(t *testing.T, dev *Device, size int) gpu.Buffer {
	t.Helper()
	buffer, err := dev.CreateBuffer(size, core1_0.BufferUsageTransferSrc|core1_0.BufferUsageTransferDst,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	return buffer
}

func TestCopyExecutesOnCompletion(t *testing.T) {
	dev := NewDevice()
	dev.SetManualCompletion(true)
	queue := dev.NewQueue("graphics")

	src := hostBuffer(t, dev, 4)
	dst := hostBuffer(t, dev, 4)
	data, err := src.Map()
	require.NoError(t, err)
	copy(data, []byte{1, 2, 3, 4})
	src.Unmap()

	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	buffers, err := pool.Allocate(1)
	require.NoError(t, err)
	cb := buffers[0]

	require.NoError(t, cb.Begin(core1_0.CommandBufferUsageOneTimeSubmit))
	require.NoError(t, cb.CopyBuffer(src, dst, 4))
	require.NoError(t, cb.End())
	require.NoError(t, queue.Submit(gpu.SubmitInfo{CommandBuffers: buffers}))

	out, err := dst.Map()
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, out)
	require.Equal(t, 1, dev.Pending())

	require.NoError(t, queue.WaitIdle())
	require.Equal(t, []byte{1, 2, 3, 4}, out)
	require.Empty(t, dev.Violations())
}

func TestFenceBlocksUntilComplete(t *testing.T) {
	dev := NewDevice()
	dev.SetManualCompletion(true)
	queue := dev.NewQueue("graphics")

	fence, err := dev.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, queue.Submit(gpu.SubmitInfo{Fence: fence}))

	var waitErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		waitErr = fence.Wait()
	}()

	require.Eventually(t, func() bool { return dev.Waiters() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("fence wait returned before completion")
	default:
	}

	dev.Complete()
	<-done
	require.NoError(t, waitErr)
	require.True(t, fence.(*Fence).Signaled())
}

func TestViolations(t *testing.T) {
	dev := NewDevice()
	dev.SetManualCompletion(true)
	queue := dev.NewQueue("graphics")

	fence, err := dev.CreateFence(true)
	require.NoError(t, err)
	semaphore, err := dev.CreateSemaphore()
	require.NoError(t, err)
	pool, err := dev.CreateCommandPool(0)
	require.NoError(t, err)
	buffers, err := pool.Allocate(1)
	require.NoError(t, err)

	require.NoError(t, buffers[0].Begin(0))
	require.NoError(t, buffers[0].End())

	// Signaled fence, semaphore nobody signaled.
	require.NoError(t, queue.Submit(gpu.SubmitInfo{
		CommandBuffers: buffers,
		WaitSemaphores: []gpu.Semaphore{semaphore},
		WaitStages:     []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		Fence:          fence,
	}))
	require.NoError(t, buffers[0].Reset())
	require.NoError(t, fence.Reset())

	require.Len(t, dev.Violations(), 4)

	dev.Complete()
	fence.Destroy()
	fence.Destroy()
	require.Len(t, dev.Violations(), 5)
}

func TestFailNext(t *testing.T) {
	dev := NewDevice()
	dev.FailNext("sampler", gpu.ErrObjectCreation)

	_, err := dev.CreateSampler(core1_0.SamplerCreateInfo{})
	require.Error(t, err)
	require.Zero(t, dev.Live("sampler"))

	sampler, err := dev.CreateSampler(core1_0.SamplerCreateInfo{})
	require.NoError(t, err)
	require.Equal(t, 1, dev.Live("sampler"))
	sampler.Destroy()
	require.Zero(t, dev.Live(""))
	require.Equal(t, []string{"create sampler", "destroy sampler"}, dev.Events())
}

func TestAcquireAndPresentScripts(t *testing.T) {
	dev := NewDevice()
	queue := dev.NewQueue("present")
	surface := NewSurface(800, 600)

	sc, err := dev.CreateSwapchain(gpu.SwapchainInfo{Surface: surface, MinImageCount: 2, Extent: core1_0.Extent2D{Width: 800, Height: 600}})
	require.NoError(t, err)
	semaphore, err := dev.CreateSemaphore()
	require.NoError(t, err)

	dev.ScriptAcquire(gpu.StatusOutOfDate)
	dev.ScriptPresent(gpu.StatusSuboptimal)

	_, status, err := sc.AcquireNextImage(semaphore)
	require.NoError(t, err)
	require.Equal(t, gpu.StatusOutOfDate, status)

	index, status, err := sc.AcquireNextImage(semaphore)
	require.NoError(t, err)
	require.Equal(t, gpu.StatusSuccess, status)
	require.Equal(t, 0, index)

	status, err = queue.Present(sc, index, semaphore)
	require.NoError(t, err)
	require.Equal(t, gpu.StatusSuboptimal, status)
	require.Empty(t, dev.Violations())

	sc.Destroy()
	_, _, err = sc.AcquireNextImage(semaphore)
	require.Error(t, err)
	require.Len(t, dev.Violations(), 1)
}
