package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueueIndex uint32
	GraphicsQueue      vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

// NewVulkanDevice picks a physical device with a graphics queue and
// creates the logical device around it. Headless operation needs no
// present queue and no swapchain extension.
func NewVulkanDevice(context *VulkanContext) (*VulkanDevice, error) {
	device := &VulkanDevice{}

	if err := device.selectPhysicalDevice(context); err != nil {
		return nil, err
	}

	queuePriority := float32(1.0)
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}
	queueCreateInfo.Deref()

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}
	deviceCreateInfo.Deref()

	var logicalDevice vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkCreateDevice failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &queue)
	device.GraphicsQueue = queue

	if err := device.detectDepthFormat(); err != nil {
		device.Destroy(context)
		return nil, err
	}

	return device, nil
}

// selectPhysicalDevice prefers a discrete GPU with a graphics queue
// and falls back to any device that has one.
func (d *VulkanDevice) selectPhysicalDevice(context *VulkanContext) error {
	var deviceCount uint32
	vk.EnumeratePhysicalDevices(context.Instance, &deviceCount, nil)
	if deviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, deviceCount)
	vk.EnumeratePhysicalDevices(context.Instance, &deviceCount, physicalDevices)

	var fallback vk.PhysicalDevice
	var fallbackQueueIndex uint32

	for _, pd := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()

		queueIndex, ok := graphicsQueueIndex(pd)
		if !ok {
			continue
		}

		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			d.PhysicalDevice = pd
			d.GraphicsQueueIndex = queueIndex
			d.Properties = properties
			break
		}
		if fallback == nil {
			fallback = pd
			fallbackQueueIndex = queueIndex
			d.Properties = properties
		}
	}

	if d.PhysicalDevice == nil {
		if fallback == nil {
			err := fmt.Errorf("no devices with a graphics queue were found")
			core.LogError(err.Error())
			return err
		}
		d.PhysicalDevice = fallback
		d.GraphicsQueueIndex = fallbackQueueIndex
	}

	vk.GetPhysicalDeviceFeatures(d.PhysicalDevice, &d.Features)
	d.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &d.Memory)
	d.Memory.Deref()

	core.LogInfo("Selected device: '%s'", vk.ToString(d.Properties.DeviceName[:]))
	switch d.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU")
	default:
		core.LogInfo("GPU type is Unknown")
	}

	return nil
}

func graphicsQueueIndex(pd vk.PhysicalDevice) (uint32, bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	for i, qf := range queueFamilies {
		qf.Deref()
		if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// detectDepthFormat finds the first depth format the device supports
// as an optimal-tiling depth/stencil attachment.
func (d *VulkanDevice) detectDepthFormat() error {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)

	for _, format := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, format, &properties)
		properties.Deref()

		if (properties.OptimalTilingFeatures & flags) == flags {
			d.DepthFormat = format
			return nil
		}
	}

	err := fmt.Errorf("failed to find a supported depth format")
	core.LogError(err.Error())
	return err
}

func (d *VulkanDevice) Destroy(context *VulkanContext) {
	d.GraphicsQueue = nil
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, context.Allocator)
		d.LogicalDevice = nil
	}
	d.PhysicalDevice = nil
}
