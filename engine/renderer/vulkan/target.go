package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
)

// VulkanTarget is the offscreen substitute for a swapchain image: one
// colour image per configured format, an optional depth image, the
// render pass matching the configuration and the framebuffer tying
// them together. Targets are cached by configuration so pipelines and
// command buffers built against the same configuration share one.
type VulkanTarget struct {
	Config renderer.TargetConfig

	RenderPass   *VulkanRenderPass
	ColourImages []*VulkanImage
	DepthImage   *VulkanImage
	Framebuffer  vk.Framebuffer
}

// targetKey folds a target configuration into a cache key. Two
// configurations with the same key are render-pass compatible.
func targetKey(target *renderer.TargetConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d s%d", target.Width, target.Height, target.SampleCount)
	for _, format := range target.ColourFormats {
		fmt.Fprintf(&sb, " c:%s", format)
	}
	fmt.Fprintf(&sb, " d:%s", target.DepthStencilFormat)
	return sb.String()
}

func NewVulkanTarget(context *VulkanContext, target *renderer.TargetConfig) (*VulkanTarget, error) {
	if len(target.ColourFormats) == 0 {
		err := fmt.Errorf("target configuration has no colour attachments")
		core.LogError(err.Error())
		return nil, err
	}
	if target.Width == 0 || target.Height == 0 {
		err := fmt.Errorf("target configuration has zero extent (%dx%d)", target.Width, target.Height)
		core.LogError(err.Error())
		return nil, err
	}

	vt := &VulkanTarget{
		Config: *target,
	}

	renderPass, err := NewVulkanRenderPass(context, target)
	if err != nil {
		return nil, err
	}
	vt.RenderPass = renderPass

	samples, err := vulkanSampleCount(target.SampleCount)
	if err != nil {
		vt.Destroy(context)
		return nil, err
	}

	attachments := make([]vk.ImageView, 0, len(target.ColourFormats)+1)

	for _, format := range target.ColourFormats {
		vkFormat, err := vulkanFormat(format)
		if err != nil {
			vt.Destroy(context)
			return nil, err
		}

		image, err := NewVulkanImage(context, target.Width, target.Height, vkFormat, samples,
			vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit),
			vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			vt.Destroy(context)
			return nil, err
		}
		vt.ColourImages = append(vt.ColourImages, image)
		attachments = append(attachments, image.View)
	}

	if target.DepthStencilFormat.IsDepthStencil() {
		depthFormat, err := vulkanFormat(target.DepthStencilFormat)
		if err != nil {
			vt.Destroy(context)
			return nil, err
		}

		aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		if target.DepthStencilFormat == renderer.PixelFormatDepth24UnormStencil8 {
			aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}

		image, err := NewVulkanImage(context, target.Width, target.Height, depthFormat, samples,
			vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), aspect)
		if err != nil {
			vt.Destroy(context)
			return nil, err
		}
		vt.DepthImage = image
		attachments = append(attachments, image.View)
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      vt.RenderPass.Handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           target.Width,
		Height:          target.Height,
		Layers:          1,
	}
	framebufferCreateInfo.Deref()

	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &framebuffer); !VulkanResultIsSuccess(res) {
		vt.Destroy(context)
		err := fmt.Errorf("vkCreateFramebuffer failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	vt.Framebuffer = framebuffer

	return vt, nil
}

func (vt *VulkanTarget) Destroy(context *VulkanContext) {
	if vt.Framebuffer != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vt.Framebuffer, context.Allocator)
		vt.Framebuffer = vk.NullFramebuffer
	}
	if vt.DepthImage != nil {
		vt.DepthImage.Destroy(context)
		vt.DepthImage = nil
	}
	for _, image := range vt.ColourImages {
		image.Destroy(context)
	}
	vt.ColourImages = nil
	if vt.RenderPass != nil {
		vt.RenderPass.Destroy(context)
		vt.RenderPass = nil
	}
}
