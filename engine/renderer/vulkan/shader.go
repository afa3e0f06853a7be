package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewVulkanShaderStage wraps SPIR-V words in a shader module and the
// pipeline stage info that consumes it. The code slice must stay
// reachable until the module is created.
func NewVulkanShaderStage(context *VulkanContext, code []byte, stageFlag vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		err := fmt.Errorf("shader byte code size %d is not a multiple of 4", len(code))
		core.LogError(err.Error())
		return nil, err
	}

	stage := &VulkanShaderStage{}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	createInfo.Deref()

	var handle vk.ShaderModule
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkCreateShaderModule failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	stage.Handle = handle

	stage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stageFlag,
		Module: stage.Handle,
		PName:  vulkanSafeString("main"),
	}
	stage.ShaderStageCreateInfo.Deref()

	return stage, nil
}

func (vs *VulkanShaderStage) Destroy(context *VulkanContext) {
	if vs.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullShaderModule
	}
}
