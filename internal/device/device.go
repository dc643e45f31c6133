// Package device bootstraps Vulkan for an SDL window: instance, validation,
// surface, physical device selection, logical device and queues.
package device

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/quadview/internal/config"
	"github.com/vkngwrapper/quadview/internal/gpu"
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Window is the host window the surface is created for.
type Window interface {
	SDL() *sdl.Window
	RequiredExtensions() []string
}

// Context is the device the renderer runs on and everything it was created
// from.
type Context struct {
	Device   gpu.Device
	Surface  gpu.Surface
	Graphics gpu.Queue
	Present  gpu.Queue
	Families QueueFamilies

	owned gpu.Scope
}

type bootstrap struct {
	cfg    config.Config
	window Window
	owned  *gpu.Scope

	global     core1_0.GlobalDriver
	instance   core1_0.CoreInstanceDriver
	surfaceExt khr_surface.ExtensionDriver
	surface    khr_surface.Surface
	physical   core1_0.PhysicalDevice
	families   QueueFamilies
}

// New creates the device context for window. On failure everything created
// so far is destroyed again.
func New(cfg config.Config, window Window) (*Context, error) {
	c := &Context{}
	b := &bootstrap{cfg: cfg, window: window, owned: &c.owned}

	err := b.run(c)
	if err != nil {
		c.owned.Release()
		return nil, err
	}
	return c, nil
}

func (b *bootstrap) run(c *Context) error {
	var err error
	b.global, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	err = b.createInstance()
	if err != nil {
		return err
	}

	err = b.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = b.createSurface()
	if err != nil {
		return err
	}

	err = b.pickPhysicalDevice()
	if err != nil {
		return err
	}

	return b.createLogicalDevice(c)
}

func (b *bootstrap) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    b.cfg.Title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := b.global.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range b.window.RequiredExtensions() {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("missing instance extension %s required by the window", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if b.cfg.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if b.cfg.EnableValidation {
		layers, _, err := b.global.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range b.cfg.ValidationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.WithHint(
					errors.Newf("validation layer %s not available", layer),
					"install the LunarG Vulkan SDK or disable validation")
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Also report problems during instance creation and destruction.
		instanceOptions.Next = debugMessengerOptions()
	}

	b.instance, _, err = b.global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return gpu.Created("instance", err)
	}
	instance := b.instance
	b.owned.Defer("instance", func() { instance.DestroyInstance(nil) })

	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	if severity&ext_debug_utils.SeverityError != 0 {
		log.Printf("[%s %s] - %+v", severity, msgType, errors.New(data.Message))
		return false
	}

	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (b *bootstrap) setupDebugMessenger() error {
	if !b.cfg.EnableValidation {
		return nil
	}

	debugDriver := ext_debug_utils.CreateExtensionDriverFromCoreDriver(b.instance)
	messenger, _, err := debugDriver.CreateDebugUtilsMessenger(nil, debugMessengerOptions())
	if err != nil {
		return gpu.Created("debug messenger", err)
	}
	b.owned.Defer("debug messenger", func() { debugDriver.DestroyDebugUtilsMessenger(messenger, nil) })

	return nil
}

func (b *bootstrap) createSurface() error {
	b.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(b.instance)
	surface, err := vkng_sdl2.CreateSurface(b.instance.Instance(), b.surfaceExt, b.window.SDL())
	if err != nil {
		return gpu.Created("window surface", err)
	}
	b.surface = surface

	surfaceExt := b.surfaceExt
	b.owned.Defer("window surface", func() { surfaceExt.DestroySurface(surface, nil) })
	return nil
}

func (b *bootstrap) pickPhysicalDevice() error {
	physicalDevices, _, err := b.instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	for _, physical := range physicalDevices {
		families, suitable, err := b.isDeviceSuitable(physical)
		if err != nil {
			return err
		}
		if !suitable {
			continue
		}

		b.physical = physical
		b.families = families

		properties, err := b.instance.GetPhysicalDeviceProperties(physical)
		if err != nil {
			return errors.Wrap(err, "query physical device properties")
		}
		log.Printf("device: %s, graphics family %d, present family %d",
			properties.DeviceName, families.Graphics, families.Present)
		return nil
	}

	return errors.New("failed to find a suitable GPU")
}

func (b *bootstrap) isDeviceSuitable(physical core1_0.PhysicalDevice) (QueueFamilies, bool, error) {
	var flags []core1_0.QueueFlags
	for _, queueFamily := range b.instance.GetPhysicalDeviceQueueFamilyProperties(physical) {
		flags = append(flags, queueFamily.QueueFlags)
	}

	families, complete, err := pickQueueFamilies(flags, func(family int) (bool, error) {
		supported, _, err := b.surfaceExt.GetPhysicalDeviceSurfaceSupport(b.surface, physical, family)
		return supported, err
	})
	if err != nil || !complete {
		return families, false, err
	}

	extensions, _, err := b.instance.EnumerateDeviceExtensionProperties(physical)
	if err != nil {
		return families, false, errors.Wrap(err, "enumerate device extensions")
	}
	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return families, false, nil
		}
	}

	support, err := gpu.NewSurface(b.surfaceExt, b.surface, physical).Support()
	if err != nil {
		return families, false, errors.Wrap(err, "query surface support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return families, false, nil
	}

	features := b.instance.GetPhysicalDeviceFeatures(physical)
	return families, features.SamplerAnisotropy, nil
}

func (b *bootstrap) createLogicalDevice(c *Context) error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range b.families.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	extensions, _, err := b.instance.EnumerateDeviceExtensionProperties(b.physical)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}

	// Required wherever the implementation is a portability subset (MoltenVK).
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	deviceDriver, _, err := b.instance.CreateDevice(b.physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return gpu.Created("logical device", err)
	}
	b.owned.Defer("logical device", func() { deviceDriver.DestroyDevice(nil) })

	c.Device, err = gpu.NewDevice(b.instance, b.physical, deviceDriver)
	if err != nil {
		return err
	}

	c.Surface = gpu.NewSurface(b.surfaceExt, b.surface, b.physical)
	c.Families = b.families
	c.Graphics = gpu.NewQueue(c.Device, deviceDriver.GetQueue(b.families.Graphics, 0))
	c.Present = gpu.NewQueue(c.Device, deviceDriver.GetQueue(b.families.Present, 0))
	return nil
}

// Destroy tears down the device, surface, messenger and instance. Everything
// created from the device must already be gone.
func (c *Context) Destroy() {
	c.owned.Release()
}
