package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

/**
 * @brief Returns the string representation of result.
 * @param result The result to get the string for.
 * @param getExtended Indicates whether to also return an extended result.
 * @returns The error code and/or extended error message in string form.
 */
func VulkanResultString(result vk.Result, getExtended bool) string {
	// From: https://www.khronos.org/registry/vulkan/specs/1.1/html/vkspec.html#VkResult
	switch result {
	case vk.Success:
		if !getExtended {
			return "VK_SUCCESS"
		}
		return "VK_SUCCESS Command successfully completed"
	case vk.NotReady:
		if !getExtended {
			return "VK_NOT_READY"
		}
		return "VK_NOT_READY A fence or query has not yet completed"
	case vk.Timeout:
		if !getExtended {
			return "VK_TIMEOUT"
		}
		return "VK_TIMEOUT A wait operation has not completed in the specified time"
	case vk.Incomplete:
		if !getExtended {
			return "VK_INCOMPLETE"
		}
		return "VK_INCOMPLETE A return array was too small for the result"
	case vk.ErrorOutOfHostMemory:
		if !getExtended {
			return "VK_ERROR_OUT_OF_HOST_MEMORY"
		}
		return "VK_ERROR_OUT_OF_HOST_MEMORY A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		if !getExtended {
			return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
		}
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		if !getExtended {
			return "VK_ERROR_INITIALIZATION_FAILED"
		}
		return "VK_ERROR_INITIALIZATION_FAILED Initialization of an object could not be completed for implementation-specific reasons"
	case vk.ErrorDeviceLost:
		if !getExtended {
			return "VK_ERROR_DEVICE_LOST"
		}
		return "VK_ERROR_DEVICE_LOST The logical or physical device has been lost"
	case vk.ErrorLayerNotPresent:
		if !getExtended {
			return "VK_ERROR_LAYER_NOT_PRESENT"
		}
		return "VK_ERROR_LAYER_NOT_PRESENT A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		if !getExtended {
			return "VK_ERROR_EXTENSION_NOT_PRESENT"
		}
		return "VK_ERROR_EXTENSION_NOT_PRESENT A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		if !getExtended {
			return "VK_ERROR_FEATURE_NOT_PRESENT"
		}
		return "VK_ERROR_FEATURE_NOT_PRESENT A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		if !getExtended {
			return "VK_ERROR_INCOMPATIBLE_DRIVER"
		}
		return "VK_ERROR_INCOMPATIBLE_DRIVER The requested version of Vulkan is not supported by the driver or is otherwise incompatible"
	case vk.ErrorTooManyObjects:
		if !getExtended {
			return "VK_ERROR_TOO_MANY_OBJECTS"
		}
		return "VK_ERROR_TOO_MANY_OBJECTS Too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		if !getExtended {
			return "VK_ERROR_FORMAT_NOT_SUPPORTED"
		}
		return "VK_ERROR_FORMAT_NOT_SUPPORTED A requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		if !getExtended {
			return "VK_ERROR_FRAGMENTED_POOL"
		}
		return "VK_ERROR_FRAGMENTED_POOL A pool allocation has failed due to fragmentation of the pool's memory"
	case vk.ErrorOutOfPoolMemory:
		if !getExtended {
			return "VK_ERROR_OUT_OF_POOL_MEMORY"
		}
		return "VK_ERROR_OUT_OF_POOL_MEMORY A pool memory allocation has failed"
	default:
		if !getExtended {
			return "unhandled vk.Result"
		}
		return "unhandled vk.Result An unhandled result code was returned"
	}
}

/**
 * @brief Indicates if the passed result is a success or an error as defined by the Vulkan spec.
 * @returns True if success; otherwise false. Defaults to true for unknown result types.
 */
func VulkanResultIsSuccess(result vk.Result) bool {
	switch result {
	// Success Codes
	default:
		fallthrough
	case vk.Success, vk.NotReady, vk.Timeout, vk.EventSet, vk.EventReset,
		vk.Incomplete, vk.Suboptimal, vk.ThreadIdle, vk.ThreadDone,
		vk.OperationDeferred, vk.OperationNotDeferred, vk.PipelineCompileRequired:
		return true
	// Error codes
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorInitializationFailed,
		vk.ErrorDeviceLost, vk.ErrorMemoryMapFailed, vk.ErrorLayerNotPresent,
		vk.ErrorExtensionNotPresent, vk.ErrorFeatureNotPresent, vk.ErrorIncompatibleDriver,
		vk.ErrorTooManyObjects, vk.ErrorFormatNotSupported, vk.ErrorFragmentedPool,
		vk.ErrorSurfaceLost, vk.ErrorNativeWindowInUse, vk.ErrorOutOfDate, vk.ErrorIncompatibleDisplay,
		vk.ErrorInvalidShaderNv, vk.ErrorOutOfPoolMemory, vk.ErrorInvalidExternalHandle,
		vk.ErrorFragmentation, vk.ErrorInvalidDeviceAddress, vk.ErrorFullScreenExclusiveModeLost,
		vk.ErrorUnknown:
		return false
	}
}

// vulkanSafeString null-terminates a Go string for cgo consumption.
func vulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

// sliceUint32 reinterprets SPIR-V bytes as the uint32 words
// vk.ShaderModuleCreateInfo expects. The byte length must be a
// multiple of four.
func sliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer(&data[0]))[:len(data)/4]
}
