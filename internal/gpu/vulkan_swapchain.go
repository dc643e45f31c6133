package gpu

import (
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

type vkSurface struct {
	extension khr_surface.ExtensionDriver
	handle    khr_surface.Surface
	physical  core1_0.PhysicalDevice
}

// NewSurface wraps a window surface as seen from physical.
func NewSurface(extension khr_surface.ExtensionDriver, surface khr_surface.Surface, physical core1_0.PhysicalDevice) Surface {
	return &vkSurface{extension: extension, handle: surface, physical: physical}
}

func (s *vkSurface) Support() (SurfaceSupport, error) {
	var support SurfaceSupport

	capabilities, _, err := s.extension.GetPhysicalDeviceSurfaceCapabilities(s.handle, s.physical)
	if err != nil {
		return support, err
	}
	support.Capabilities = *capabilities

	support.Formats, _, err = s.extension.GetPhysicalDeviceSurfaceFormats(s.handle, s.physical)
	if err != nil {
		return support, err
	}

	support.PresentModes, _, err = s.extension.GetPhysicalDeviceSurfacePresentModes(s.handle, s.physical)
	return support, err
}

func (s *vkSurface) Destroy() {
	s.extension.DestroySurface(s.handle, nil)
}

func (d *vkDevice) CreateSwapchain(info SwapchainInfo) (Swapchain, error) {
	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	unique := map[int]bool{}
	for _, family := range info.QueueFamilies {
		if !unique[family] {
			unique[family] = true
			queueFamilyIndices = append(queueFamilyIndices, family)
		}
	}
	if len(queueFamilyIndices) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
	} else {
		queueFamilyIndices = nil
	}

	swapchain, _, err := d.swapchain.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: info.Surface.(*vkSurface).handle,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format.Format,
		ImageColorSpace:  info.Format.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   info.PreTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    info.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, err
	}

	return &vkSwapchain{device: d, handle: swapchain, format: info.Format.Format, extent: info.Extent}, nil
}

type vkSwapchain struct {
	device *vkDevice
	handle khr_swapchain.Swapchain
	format core1_0.Format
	extent core1_0.Extent2D
}

func (s *vkSwapchain) Images() ([]Image, error) {
	handles, _, err := s.device.swapchain.GetSwapchainImages(s.handle)
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(handles))
	for _, handle := range handles {
		images = append(images, &vkImage{device: s.device, handle: handle, extent: s.extent, format: s.format})
	}
	return images, nil
}

func (s *vkSwapchain) AcquireNextImage(signal Semaphore) (int, Status, error) {
	semaphore := signal.(*vkSemaphore).handle

	imageIndex, res, err := s.device.swapchain.AcquireNextImage(s.handle, common.NoTimeout, &semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return imageIndex, StatusOutOfDate, nil
	} else if err != nil {
		return imageIndex, StatusSuccess, err
	}

	if res == khr_swapchain.VKSuboptimal {
		return imageIndex, StatusSuboptimal, nil
	}
	return imageIndex, StatusSuccess, nil
}

func (s *vkSwapchain) Destroy() {
	s.device.swapchain.DestroySwapchain(s.handle, nil)
}

func (q *vkQueue) Present(swapchain Swapchain, imageIndex int, wait ...Semaphore) (Status, error) {
	res, err := q.device.swapchain.QueuePresent(q.handle, khr_swapchain.PresentInfo{
		WaitSemaphores: semaphoreHandles(wait),
		Swapchains:     []khr_swapchain.Swapchain{swapchain.(*vkSwapchain).handle},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		return StatusOutOfDate, nil
	} else if res == khr_swapchain.VKSuboptimal {
		return StatusSuboptimal, nil
	} else if err != nil {
		return StatusSuccess, err
	}

	return StatusSuccess, nil
}
