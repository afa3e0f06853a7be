package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
)

// vulkanFormat maps an engine pixel format onto the Vulkan format
// enum. PixelFormatInvalid has no Vulkan counterpart.
func vulkanFormat(format renderer.PixelFormat) (vk.Format, error) {
	switch format {
	case renderer.PixelFormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, nil
	case renderer.PixelFormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm, nil
	case renderer.PixelFormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat, nil
	case renderer.PixelFormatDepth32Float:
		return vk.FormatD32Sfloat, nil
	case renderer.PixelFormatDepth24UnormStencil8:
		return vk.FormatD24UnormS8Uint, nil
	}
	return vk.FormatUndefined, fmt.Errorf("pixel format %s has no vulkan equivalent", format)
}

func vulkanSampleCount(samples uint32) (vk.SampleCountFlagBits, error) {
	switch samples {
	case 0, 1:
		return vk.SampleCount1Bit, nil
	case 2:
		return vk.SampleCount2Bit, nil
	case 4:
		return vk.SampleCount4Bit, nil
	case 8:
		return vk.SampleCount8Bit, nil
	}
	return vk.SampleCount1Bit, fmt.Errorf("unsupported sample count %d", samples)
}

type VulkanRenderPass struct {
	Handle vk.RenderPass
	W, H   uint32
	// Clear values applied on begin.
	R, G, B, A float32
	Depth      float32
	Stencil    uint32

	ColourAttachmentCount uint32
	HasDepth              bool
}

// NewVulkanRenderPass builds a single-subpass render pass matching a
// target configuration. Colour attachments finish in the transfer-src
// layout so the backend can read them back without an extra
// transition pass.
func NewVulkanRenderPass(context *VulkanContext, target *renderer.TargetConfig) (*VulkanRenderPass, error) {
	samples, err := vulkanSampleCount(target.SampleCount)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	renderPass := &VulkanRenderPass{
		W:                     target.Width,
		H:                     target.Height,
		R:                     0.1,
		G:                     0.1,
		B:                     0.15,
		A:                     1.0,
		Depth:                 1.0,
		Stencil:               0,
		ColourAttachmentCount: uint32(len(target.ColourFormats)),
		HasDepth:              target.DepthStencilFormat.IsDepthStencil(),
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(target.ColourFormats)+1)
	colourReferences := make([]vk.AttachmentReference, 0, len(target.ColourFormats))

	for i, format := range target.ColourFormats {
		vkFormat, err := vulkanFormat(format)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}

		colourAttachment := vk.AttachmentDescription{
			Format:         vkFormat,
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			// Transitioned to after the render pass so readback can copy directly.
			FinalLayout: vk.ImageLayoutTransferSrcOptimal,
		}
		colourAttachment.Deref()
		attachmentDescriptions = append(attachmentDescriptions, colourAttachment)

		colourReferences = append(colourReferences, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colourReferences)),
		PColorAttachments:    colourReferences,
	}

	if renderPass.HasDepth {
		depthFormat, err := vulkanFormat(target.DepthStencilFormat)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}

		depthAttachment := vk.AttachmentDescription{
			Format:         depthFormat,
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthAttachment.Deref()
		attachmentDescriptions = append(attachmentDescriptions, depthAttachment)

		depthReference := vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthReference.Deref()
		subpass.PDepthStencilAttachment = &depthReference
	}
	subpass.Deref()

	dependency := vk.SubpassDependency{
		SrcSubpass:      vk.SubpassExternal,
		DstSubpass:      0,
		SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask:   0,
		DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		DependencyFlags: 0,
	}
	dependency.Deref()

	renderPassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	renderPassCreateInfo.Deref()

	var handle vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderPassCreateInfo, context.Allocator, &handle); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkCreateRenderPass failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	renderPass.Handle = handle

	return renderPass, nil
}

func (vr *VulkanRenderPass) Destroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderPass) Begin(commandBuffer *VulkanCommandBuffer, frameBuffer vk.Framebuffer) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: frameBuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: vr.W, Height: vr.H},
		},
	}

	clearValues := make([]vk.ClearValue, 0, vr.ColourAttachmentCount+1)
	for i := uint32(0); i < vr.ColourAttachmentCount; i++ {
		var clear vk.ClearValue
		clear.SetColor([]float32{vr.R, vr.G, vr.B, vr.A})
		clearValues = append(clearValues, clear)
	}
	if vr.HasDepth {
		var clear vk.ClearValue
		clear.SetDepthStencil(vr.Depth, vr.Stencil)
		clearValues = append(clearValues, clear)
	}

	beginInfo.ClearValueCount = uint32(len(clearValues))
	beginInfo.PClearValues = clearValues
	beginInfo.Deref()

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderPass) End(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
