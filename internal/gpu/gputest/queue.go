package gputest

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

// Submission is a snapshot of one queue submission.
type Submission struct {
	Queue          string
	CommandBuffers []*CommandBuffer
	// Commands holds the recorded commands of each command buffer at submit time.
	Commands         [][]Command
	WaitSemaphores   []*Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	SignalSemaphores []*Semaphore
	Fence            *Fence
}

// Draws returns every indexed draw in the submission.
func (s Submission) Draws() []DrawIndexed {
	var draws []DrawIndexed
	for _, commands := range s.Commands {
		for _, cmd := range commands {
			if draw, ok := cmd.(DrawIndexed); ok {
				draws = append(draws, draw)
			}
		}
	}
	return draws
}

type Present struct {
	Queue      string
	Swapchain  *Swapchain
	ImageIndex int
}

type pendingSubmission struct {
	buffers []*CommandBuffer
	fence   *Fence
}

type Queue struct {
	device *Device
	name   string
}

func (q *Queue) Submit(info gpu.SubmitInfo) error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(info.WaitSemaphores) != len(info.WaitStages) {
		return errors.AssertionFailedf("%d wait semaphores but %d wait stages", len(info.WaitSemaphores), len(info.WaitStages))
	}

	submission := Submission{Queue: q.name, WaitStages: info.WaitStages}
	p := &pendingSubmission{}

	for _, s := range info.WaitSemaphores {
		semaphore := s.(*Semaphore)
		semaphore.wait("submission")
		submission.WaitSemaphores = append(submission.WaitSemaphores, semaphore)
	}

	for _, b := range info.CommandBuffers {
		buffer := b.(*CommandBuffer)
		if buffer.recording {
			d.violate("command buffer submitted while still recording")
		}
		if buffer.pending {
			d.violate("command buffer submitted while already pending")
		}
		buffer.pending = true
		p.buffers = append(p.buffers, buffer)
		submission.CommandBuffers = append(submission.CommandBuffers, buffer)
		submission.Commands = append(submission.Commands, append([]Command(nil), buffer.commands...))
	}

	for _, s := range info.SignalSemaphores {
		semaphore := s.(*Semaphore)
		semaphore.signal("submission")
		submission.SignalSemaphores = append(submission.SignalSemaphores, semaphore)
	}

	if info.Fence != nil {
		fence := info.Fence.(*Fence)
		if fence.signaled || fence.pending {
			d.violate("submission fence was not reset")
		}
		fence.signaled = false
		fence.pending = true
		p.fence = fence
		submission.Fence = fence
	}

	d.submissions = append(d.submissions, submission)
	d.pending = append(d.pending, p)
	if !d.manual {
		d.completeLocked(len(d.pending))
	}
	return nil
}

func (q *Queue) Present(swapchain gpu.Swapchain, imageIndex int, wait ...gpu.Semaphore) (gpu.Status, error) {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()

	sc := swapchain.(*Swapchain)
	if sc.destroyed {
		d.violate("present to a destroyed swapchain")
		return gpu.StatusSuccess, errors.New("swapchain destroyed")
	}
	if imageIndex < 0 || imageIndex >= len(sc.images) {
		return gpu.StatusSuccess, errors.Newf("image index %d out of range", imageIndex)
	}
	if !sc.acquired[imageIndex] {
		d.violate("present of image %d that was not acquired", imageIndex)
	}
	sc.acquired[imageIndex] = false

	for _, s := range wait {
		s.(*Semaphore).wait("present")
	}

	d.presents = append(d.presents, Present{Queue: q.name, Swapchain: sc, ImageIndex: imageIndex})

	status := gpu.StatusSuccess
	if len(d.presentResults) > 0 {
		status = d.presentResults[0]
		d.presentResults = d.presentResults[1:]
	}
	return status, nil
}

func (q *Queue) WaitIdle() error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, "queue wait idle")
	d.completeLocked(len(d.pending))
	return nil
}

// Surface is a window surface whose reported support can be changed between
// swapchain creations to simulate a resize.
type Surface struct {
	mu        sync.Mutex
	support   gpu.SurfaceSupport
	destroyed bool
}

// NewSurface returns a surface reporting a fixed extent, the preferred sRGB
// format and both FIFO and mailbox present modes.
func NewSurface(width, height int) *Surface {
	return &Surface{support: gpu.SurfaceSupport{
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  core1_0.Extent2D{Width: width, Height: height},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}}
}

func (s *Surface) SetSupport(support gpu.SurfaceSupport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.support = support
}

// SetExtent changes the extent the surface reports as current.
func (s *Surface) SetExtent(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.support.Capabilities.CurrentExtent = core1_0.Extent2D{Width: width, Height: height}
}

func (s *Surface) Support() (gpu.SurfaceSupport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return gpu.SurfaceSupport{}, errors.New("surface destroyed")
	}
	support := s.support
	support.Formats = append([]khr_surface.SurfaceFormat(nil), s.support.Formats...)
	support.PresentModes = append([]khr_surface.PresentMode(nil), s.support.PresentModes...)
	return support, nil
}

func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

type Swapchain struct {
	device    *Device
	destroyed bool
	images    []gpu.Image
	acquired  []bool
	next      int

	Info gpu.SwapchainInfo
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		d.violate("swapchain created with extent %dx%d", info.Extent.Width, info.Extent.Height)
	}
	if err := d.create("swapchain"); err != nil {
		return nil, err
	}

	sc := &Swapchain{device: d, Info: info, acquired: make([]bool, info.MinImageCount)}
	for i := 0; i < info.MinImageCount; i++ {
		sc.images = append(sc.images, &Image{
			device: d,
			extent: info.Extent,
			format: info.Format.Format,
			Usage:  core1_0.ImageUsageColorAttachment,
		})
	}
	return sc, nil
}

func (s *Swapchain) Images() ([]gpu.Image, error) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.destroyed {
		s.device.violate("images fetched from a destroyed swapchain")
	}
	return append([]gpu.Image(nil), s.images...), nil
}

func (s *Swapchain) Destroyed() bool {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	return s.destroyed
}

func (s *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.Status, error) {
	d := s.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.destroyed {
		d.violate("acquire from a destroyed swapchain")
		return 0, gpu.StatusSuccess, errors.New("swapchain destroyed")
	}

	status := gpu.StatusSuccess
	if len(d.acquireResults) > 0 {
		status = d.acquireResults[0]
		d.acquireResults = d.acquireResults[1:]
	}
	if status == gpu.StatusOutOfDate {
		return 0, status, nil
	}

	index := s.next
	s.next = (s.next + 1) % len(s.images)
	s.acquired[index] = true
	signal.(*Semaphore).signal("acquire")
	return index, status, nil
}

func (s *Swapchain) Destroy() {
	s.device.destroy("swapchain", &s.destroyed)
}
