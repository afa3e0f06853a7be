package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
}

// NewVulkanBuffer creates a buffer in host-visible, host-coherent
// memory. Mesh data in this engine is written once at bake time and
// read back rarely, so the extra staging hop to device-local memory
// is not worth carrying.
func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{
		Size: size,
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	bufferCreateInfo.Deref()

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &handle); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkCreateBuffer failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits,
		uint32(vk.MemoryPropertyHostVisibleBit)|uint32(vk.MemoryPropertyHostCoherentBit))
	if memoryType == -1 {
		buffer.Destroy(context)
		err := fmt.Errorf("required memory type not found; buffer not valid")
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); !VulkanResultIsSuccess(res) {
		buffer.Destroy(context)
		err := fmt.Errorf("vkAllocateMemory failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); !VulkanResultIsSuccess(res) {
		buffer.Destroy(context)
		err := fmt.Errorf("vkBindBufferMemory failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	return buffer, nil
}

// LoadData copies bytes into the mapped buffer memory.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, data []byte) error {
	if uint64(len(data)) > vb.Size {
		err := fmt.Errorf("buffer upload of %d bytes exceeds buffer size %d", len(data), vb.Size)
		core.LogError(err.Error())
		return err
	}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vk.DeviceSize(len(data)), 0, &mapped); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkMapMemory failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	copy((*[1 << 30]byte)(mapped)[:len(data)], data)
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)

	return nil
}

// ReadData copies size bytes out of the mapped buffer memory.
func (vb *VulkanBuffer) ReadData(context *VulkanContext, size uint64) ([]byte, error) {
	if size > vb.Size {
		size = vb.Size
	}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vk.DeviceSize(size), 0, &mapped); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkMapMemory failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	out := make([]byte, size)
	copy(out, (*[1 << 30]byte)(mapped)[:size])
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)

	return out, nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	vb.Size = 0
}
