package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
)

type VulkanFence struct {
	Handle vk.Fence
	// Indicates if the fence is currently signaled.
	IsSignaled bool
}

func NewVulkanFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkCreateFence failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence

	return fence, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence signals or timeoutNS elapses.
func (vf *VulkanFence) Wait(context *VulkanContext, timeoutNS uint64) bool {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return true
	}

	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNS)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return true
	case vk.Timeout:
		core.LogWarn("vkWaitForFences - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vkWaitForFences - VK_ERROR_DEVICE_LOST")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vkWaitForFences - VK_ERROR_OUT_OF_HOST_MEMORY")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vkWaitForFences - VK_ERROR_OUT_OF_DEVICE_MEMORY")
	default:
		core.LogError("vkWaitForFences - An unknown error has occurred")
	}
	return false
}

func (vf *VulkanFence) Reset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkResetFences failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}
