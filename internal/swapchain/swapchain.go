package swapchain

import (
	"log"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/quadview/internal/gpu"
)

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

// Window is the part of the host window the manager needs.
type Window interface {
	// DrawableSize is the size of the drawable area in pixels. It is zero
	// while the window is minimized.
	DrawableSize() (width, height int)
	// WaitEvents blocks until at least one host event has been handled.
	WaitEvents()
	ShouldClose() bool
}

// Manager owns the swapchain, its image views, the depth attachment and one
// framebuffer per swapchain image.
type Manager struct {
	device   gpu.Device
	surface  gpu.Surface
	window   Window
	families []int

	// chain owns everything rebuilt on recreation.
	chain gpu.Scope

	swapchain   gpu.Swapchain
	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode
	extent      core1_0.Extent2D

	images       []gpu.Image
	views        []gpu.ImageView
	depthFormat  core1_0.Format
	depthImage   gpu.Image
	depthView    gpu.ImageView
	framebuffers []gpu.Framebuffer
}

// New creates the swapchain, its views and the depth attachment. Framebuffers
// need a render pass, which in turn needs Format and DepthFormat, so they are
// created separately by CreateFramebuffers.
//
// queueFamilies lists the graphics and present families; when they differ
// the images are shared between them.
func New(device gpu.Device, surface gpu.Surface, window Window, queueFamilies ...int) (*Manager, error) {
	depthFormat, err := device.FindSupportedFormat(depthFormats, core1_0.FormatFeatureDepthStencilAttachment)
	if err != nil {
		return nil, errors.Wrap(err, "depth format")
	}

	m := &Manager{
		device:      device,
		surface:     surface,
		window:      window,
		families:    queueFamilies,
		depthFormat: depthFormat,
	}

	err = m.create()
	if err != nil {
		m.chain.Release()
		return nil, err
	}
	return m, nil
}

func (m *Manager) Swapchain() gpu.Swapchain             { return m.swapchain }
func (m *Manager) Extent() core1_0.Extent2D             { return m.extent }
func (m *Manager) Format() core1_0.Format               { return m.format.Format }
func (m *Manager) DepthFormat() core1_0.Format          { return m.depthFormat }
func (m *Manager) PresentMode() khr_surface.PresentMode { return m.presentMode }
func (m *Manager) ImageCount() int                      { return len(m.images) }

func (m *Manager) Framebuffer(imageIndex int) gpu.Framebuffer {
	return m.framebuffers[imageIndex]
}

func (m *Manager) create() error {
	support, err := m.surface.Support()
	if err != nil {
		return errors.Wrap(err, "query surface support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return errors.New("surface offers no formats or no present modes")
	}

	width, height := m.window.DrawableSize()
	format := ChooseSurfaceFormat(support.Formats)
	if m.swapchain != nil && format.Format != m.format.Format {
		return errors.Newf("surface format changed from %s to %s", m.format.Format, format.Format)
	}

	m.format = format
	m.presentMode = ChoosePresentMode(support.PresentModes)
	m.extent = ChooseExtent(support.Capabilities, width, height)

	swapchain, err := m.device.CreateSwapchain(gpu.SwapchainInfo{
		Surface:       m.surface,
		MinImageCount: ImageCount(support.Capabilities),
		Format:        m.format,
		Extent:        m.extent,
		PresentMode:   m.presentMode,
		PreTransform:  support.Capabilities.CurrentTransform,
		QueueFamilies: m.families,
	})
	if err := m.chain.Own("swapchain", swapchain, err); err != nil {
		return err
	}
	m.swapchain = swapchain

	m.images, err = swapchain.Images()
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}

	m.views = m.views[:0]
	for _, image := range m.images {
		view, err := m.device.CreateImageView(image, m.format.Format, core1_0.ImageAspectColor)
		if err := m.chain.Own("swapchain image view", view, err); err != nil {
			return err
		}
		m.views = append(m.views, view)
	}

	m.depthImage, err = m.device.CreateImage(core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  m.extent.Width,
			Height: m.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        m.depthFormat,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageDepthStencilAttachment,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err := m.chain.Own("depth image", m.depthImage, err); err != nil {
		return err
	}

	m.depthView, err = m.device.CreateImageView(m.depthImage, m.depthFormat, core1_0.ImageAspectDepth)
	if err := m.chain.Own("depth image view", m.depthView, err); err != nil {
		return err
	}

	log.Printf("swapchain: %dx%d, format %s, present mode %s, %d images",
		m.extent.Width, m.extent.Height, m.format.Format, m.presentMode, len(m.images))
	return nil
}

// CreateFramebuffers creates one framebuffer per swapchain image for
// renderPass, each with the image's view and the depth view attached.
func (m *Manager) CreateFramebuffers(renderPass gpu.RenderPass) error {
	m.framebuffers = m.framebuffers[:0]
	for _, view := range m.views {
		framebuffer, err := m.device.CreateFramebuffer(renderPass, m.extent, view, m.depthView)
		if err := m.chain.Own("framebuffer", framebuffer, err); err != nil {
			return err
		}
		m.framebuffers = append(m.framebuffers, framebuffer)
	}
	return nil
}

// Recreate rebuilds the whole chain for the current surface. It blocks,
// handling host events, while the window has no drawable area, and waits for
// the device to go idle before destroying anything. A window closed while
// minimized leaves the old chain in place.
func (m *Manager) Recreate(renderPass gpu.RenderPass) error {
	width, height := m.window.DrawableSize()
	for width == 0 || height == 0 {
		m.window.WaitEvents()
		if m.window.ShouldClose() {
			return nil
		}
		width, height = m.window.DrawableSize()
	}

	err := m.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}

	m.chain.Release()

	err = m.create()
	if err != nil {
		return err
	}
	return m.CreateFramebuffers(renderPass)
}

func (m *Manager) Destroy() {
	m.chain.Release()
	m.framebuffers = nil
	m.views = nil
	m.images = nil
	m.swapchain = nil
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB with the sRGB non-linear color
// space and otherwise takes the first advertised format. formats must not be
// empty.
func ChooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return formats[0]
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which is always
// available.
func ChoosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range modes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the current extent unless the surface reports the
// "size from swapchain" sentinel, in which case the drawable size is clamped
// to the supported range.
func ChooseExtent(capabilities khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if uint32(capabilities.CurrentExtent.Width) != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// ImageCount asks for one image more than the minimum, within the maximum
// when there is one.
func ImageCount(capabilities khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
