// Package vulkan is the hardware rendering backend. It runs headless:
// no window, surface or swapchain is created, and every render pass
// targets offscreen images whose colour contents can be read back
// through a staging buffer.
package vulkan

import (
	"fmt"
	"image"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
)

var ErrDeviceClosed = fmt.Errorf("vulkan device has been shut down")

// Loader initialization is process-wide and must happen exactly once,
// even when backends are created and destroyed repeatedly.
var (
	vulkanInitMutex   sync.Mutex
	vulkanInitialized bool
)

// Config carries backend creation parameters. ShaderLibrary maps
// shader names, as scene descriptions reference them, to SPIR-V
// blobs.
type Config struct {
	AppName       string
	Width         uint32
	Height        uint32
	Validation    bool
	ShaderLibrary map[string][]byte
}

type vulkanEffectData struct {
	vertexStage   *VulkanShaderStage
	fragmentStage *VulkanShaderStage
}

type vulkanBufferData struct {
	buffer *VulkanBuffer
}

type vulkanPipelineData struct {
	pipeline *VulkanPipeline
	target   *VulkanTarget
}

type vulkanCommandBufferData struct {
	commandBuffer *VulkanCommandBuffer
	target        *VulkanTarget
	recorded      bool
}

// VulkanBackend implements renderer.Device on a headless Vulkan
// device. All methods serialize on one mutex; the graphics queue and
// the target cache are not safe for concurrent use without it.
type VulkanBackend struct {
	mu     sync.Mutex
	config Config

	context *VulkanContext

	// Offscreen targets, cached by configuration key.
	targets map[string]*VulkanTarget

	// Fence guarding Submit, reused across submissions.
	submitFence *VulkanFence

	// Staging buffer for colour readback, grown on demand.
	staging *VulkanBuffer

	// The target the most recent submission rendered to.
	lastTarget *VulkanTarget

	closed bool
}

// NewDevice initializes the Vulkan loader, creates the instance and
// logical device and prepares the shared command pool. It fails, with
// no side effects, on machines without a Vulkan ICD.
func NewDevice(config Config) (*VulkanBackend, error) {
	if config.Width == 0 || config.Height == 0 {
		config.Width, config.Height = 1280, 720
	}

	vulkanInitMutex.Lock()
	if !vulkanInitialized {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			vulkanInitMutex.Unlock()
			err = fmt.Errorf("failed to load vulkan library: %w", err)
			core.LogError(err.Error())
			return nil, err
		}
		if err := vk.Init(); err != nil {
			vulkanInitMutex.Unlock()
			err = fmt.Errorf("failed to initialize vulkan loader: %w", err)
			core.LogError(err.Error())
			return nil, err
		}
		vulkanInitialized = true
	}
	vulkanInitMutex.Unlock()

	backend := &VulkanBackend{
		config:  config,
		context: &VulkanContext{},
		targets: make(map[string]*VulkanTarget),
	}

	if err := backend.createInstance(); err != nil {
		return nil, err
	}

	device, err := NewVulkanDevice(backend.context)
	if err != nil {
		backend.destroyInstance()
		return nil, err
	}
	backend.context.Device = device

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	poolCreateInfo.Deref()

	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, backend.context.Allocator, &pool); !VulkanResultIsSuccess(res) {
		device.Destroy(backend.context)
		backend.destroyInstance()
		err := fmt.Errorf("vkCreateCommandPool failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	backend.context.CommandPool = pool

	fence, err := NewVulkanFence(backend.context, false)
	if err != nil {
		backend.destroyCommandPool()
		device.Destroy(backend.context)
		backend.destroyInstance()
		return nil, err
	}
	backend.submitFence = fence

	core.LogInfo("Vulkan backend initialized (%dx%d, %d shaders in library)",
		config.Width, config.Height, len(config.ShaderLibrary))
	return backend, nil
}

func (b *VulkanBackend) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   vulkanSafeString(b.config.AppName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        vulkanSafeString("Kiln"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	if b.config.Validation {
		if layer, ok := validationLayer(); ok {
			createInfo.EnabledLayerCount = 1
			createInfo.PpEnabledLayerNames = []string{layer}
			core.LogInfo("Vulkan validation layer enabled")
		} else {
			core.LogWarn("Vulkan validation requested but VK_LAYER_KHRONOS_validation is not available")
		}
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &instance); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkCreateInstance failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	b.context.Instance = instance
	vk.InitInstance(instance)
	return nil
}

// validationLayer reports whether the Khronos validation layer is
// installed, returning its null-terminated name when it is.
func validationLayer() (string, bool) {
	name := "VK_LAYER_KHRONOS_validation"

	var layerCount uint32
	vk.EnumerateInstanceLayerProperties(&layerCount, nil)
	available := make([]vk.LayerProperties, layerCount)
	vk.EnumerateInstanceLayerProperties(&layerCount, available)

	for _, layer := range available {
		layer.Deref()
		if vk.ToString(layer.LayerName[:]) == name {
			return vulkanSafeString(name), true
		}
	}
	return "", false
}

func (b *VulkanBackend) destroyInstance() {
	if b.context.Instance != nil {
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

func (b *VulkanBackend) destroyCommandPool() {
	if b.context.CommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(b.context.Device.LogicalDevice, b.context.CommandPool, b.context.Allocator)
		b.context.CommandPool = vk.NullCommandPool
	}
}

// target returns the cached offscreen target for the configuration,
// creating it on first use.
func (b *VulkanBackend) target(config *renderer.TargetConfig) (*VulkanTarget, error) {
	resolved := *config
	if resolved.Width == 0 || resolved.Height == 0 {
		resolved.Width, resolved.Height = b.config.Width, b.config.Height
	}

	key := targetKey(&resolved)
	if existing, ok := b.targets[key]; ok {
		return existing, nil
	}

	created, err := NewVulkanTarget(b.context, &resolved)
	if err != nil {
		return nil, err
	}
	b.targets[key] = created
	core.LogDebug("created offscreen target [%s]", key)
	return created, nil
}

func (b *VulkanBackend) CreateEffect(vertexShader, fragmentShader string) (*renderer.Effect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDeviceClosed
	}

	vertexCode, ok := b.config.ShaderLibrary[vertexShader]
	if !ok {
		err := fmt.Errorf("vertex shader %q not found in shader library", vertexShader)
		core.LogError(err.Error())
		return nil, err
	}
	fragmentCode, ok := b.config.ShaderLibrary[fragmentShader]
	if !ok {
		err := fmt.Errorf("fragment shader %q not found in shader library", fragmentShader)
		core.LogError(err.Error())
		return nil, err
	}

	vertexStage, err := NewVulkanShaderStage(b.context, vertexCode, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	fragmentStage, err := NewVulkanShaderStage(b.context, fragmentCode, vk.ShaderStageFragmentBit)
	if err != nil {
		vertexStage.Destroy(b.context)
		return nil, err
	}

	return &renderer.Effect{
		VertexShader:   vertexShader,
		FragmentShader: fragmentShader,
		InternalData: &vulkanEffectData{
			vertexStage:   vertexStage,
			fragmentStage: fragmentStage,
		},
	}, nil
}

func (b *VulkanBackend) DestroyEffect(effect *renderer.Effect) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}

	data, ok := effect.InternalData.(*vulkanEffectData)
	if !ok {
		return fmt.Errorf("effect %q was not created by this backend", effect.VertexShader)
	}
	data.vertexStage.Destroy(b.context)
	data.fragmentStage.Destroy(b.context)
	effect.InternalData = nil
	return nil
}

func (b *VulkanBackend) CreateBuffer(data []byte) (*renderer.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDeviceClosed
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot create a device buffer from zero bytes")
	}

	usage := vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	buffer, err := NewVulkanBuffer(b.context, uint64(len(data)), usage)
	if err != nil {
		return nil, err
	}
	if err := buffer.LoadData(b.context, data); err != nil {
		buffer.Destroy(b.context)
		return nil, err
	}

	out := &renderer.Buffer{
		Size:         uint64(len(data)),
		InternalData: &vulkanBufferData{buffer: buffer},
	}
	out.ID = core.IdentifierAcquireNewID(out)
	return out, nil
}

func (b *VulkanBackend) DestroyBuffer(buffer *renderer.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}

	data, ok := buffer.InternalData.(*vulkanBufferData)
	if !ok {
		return fmt.Errorf("buffer %s was not created by this backend", buffer.ID)
	}
	data.buffer.Destroy(b.context)
	core.IdentifierReleaseID(buffer.ID)
	buffer.InternalData = nil
	return nil
}

func (b *VulkanBackend) CreatePipeline(effect *renderer.Effect, target *renderer.TargetConfig) (*renderer.PipelineState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDeviceClosed
	}

	effectData, ok := effect.InternalData.(*vulkanEffectData)
	if !ok {
		err := fmt.Errorf("pipeline requires an effect compiled by this backend")
		core.LogError(err.Error())
		return nil, err
	}

	vulkanTarget, err := b.target(target)
	if err != nil {
		return nil, err
	}

	samples, err := vulkanSampleCount(target.SampleCount)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	pipeline, err := NewGraphicsPipeline(b.context, &VulkanPipelineConfig{
		RenderPass: vulkanTarget.RenderPass,
		Stages: []vk.PipelineShaderStageCreateInfo{
			effectData.vertexStage.ShaderStageCreateInfo,
			effectData.fragmentStage.ShaderStageCreateInfo,
		},
		Samples:               samples,
		ColourAttachmentCount: vulkanTarget.RenderPass.ColourAttachmentCount,
		DepthTest:             vulkanTarget.RenderPass.HasDepth,
	})
	if err != nil {
		return nil, err
	}

	return &renderer.PipelineState{
		InternalData: &vulkanPipelineData{
			pipeline: pipeline,
			target:   vulkanTarget,
		},
	}, nil
}

func (b *VulkanBackend) DestroyPipeline(pipeline *renderer.PipelineState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}

	data, ok := pipeline.InternalData.(*vulkanPipelineData)
	if !ok {
		return fmt.Errorf("pipeline was not created by this backend")
	}
	data.pipeline.Destroy(b.context)
	pipeline.InternalData = nil
	return nil
}

func (b *VulkanBackend) CreateCommandBuffer() (*renderer.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDeviceClosed
	}

	commandBuffer, err := NewVulkanCommandBuffer(b.context, b.context.CommandPool, true)
	if err != nil {
		return nil, err
	}

	out := &renderer.CommandBuffer{
		InternalData: &vulkanCommandBufferData{commandBuffer: commandBuffer},
	}
	out.ID = core.IdentifierAcquireNewID(out)
	return out, nil
}

func (b *VulkanBackend) RecordCommandBuffer(cb *renderer.CommandBuffer, target *renderer.TargetConfig, draws []renderer.DrawCall) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}

	cbData, ok := cb.InternalData.(*vulkanCommandBufferData)
	if !ok {
		err := fmt.Errorf("command buffer %s was not created by this backend", cb.ID)
		core.LogError(err.Error())
		return err
	}

	vulkanTarget, err := b.target(target)
	if err != nil {
		return err
	}

	commandBuffer := cbData.commandBuffer
	if commandBuffer.State != COMMAND_BUFFER_STATE_READY {
		// Recording replaces previous contents.
		if err := commandBuffer.Reset(); err != nil {
			return err
		}
	}
	if err := commandBuffer.Begin(false, false, false); err != nil {
		return err
	}

	vulkanTarget.RenderPass.Begin(commandBuffer, vulkanTarget.Framebuffer)

	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width:    float32(vulkanTarget.Config.Width),
		Height:   float32(vulkanTarget.Config.Height),
		MinDepth: 0, MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: vulkanTarget.Config.Width, Height: vulkanTarget.Config.Height},
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	for i, draw := range draws {
		pipelineData, ok := draw.Pipeline.InternalData.(*vulkanPipelineData)
		if !ok {
			vulkanTarget.RenderPass.End(commandBuffer)
			commandBuffer.End()
			err := fmt.Errorf("draw %d references a pipeline not created by this backend", i)
			core.LogError(err.Error())
			return err
		}
		vertexData, ok := draw.Vertex.InternalData.(*vulkanBufferData)
		if !ok {
			vulkanTarget.RenderPass.End(commandBuffer)
			commandBuffer.End()
			err := fmt.Errorf("draw %d references a vertex buffer not created by this backend", i)
			core.LogError(err.Error())
			return err
		}

		pipelineData.pipeline.Bind(commandBuffer, vk.PipelineBindPointGraphics)
		vk.CmdBindVertexBuffers(commandBuffer.Handle, 0, 1,
			[]vk.Buffer{vertexData.buffer.Handle}, []vk.DeviceSize{0})

		instances := draw.InstanceCount
		if instances == 0 {
			instances = 1
		}

		if draw.Index != nil {
			indexData, ok := draw.Index.InternalData.(*vulkanBufferData)
			if !ok {
				vulkanTarget.RenderPass.End(commandBuffer)
				commandBuffer.End()
				err := fmt.Errorf("draw %d references an index buffer not created by this backend", i)
				core.LogError(err.Error())
				return err
			}

			indexType := vk.IndexTypeUint32
			if draw.IndexSize == 2 {
				indexType = vk.IndexTypeUint16
			}
			vk.CmdBindIndexBuffer(commandBuffer.Handle, indexData.buffer.Handle, 0, indexType)
			vk.CmdDrawIndexed(commandBuffer.Handle, draw.IndexCount, instances, 0, 0, 0)
		} else {
			vk.CmdDraw(commandBuffer.Handle, draw.VertexCount, instances, 0, 0)
		}
	}

	vulkanTarget.RenderPass.End(commandBuffer)
	if err := commandBuffer.End(); err != nil {
		return err
	}

	cbData.target = vulkanTarget
	cbData.recorded = true
	return nil
}

func (b *VulkanBackend) DestroyCommandBuffer(cb *renderer.CommandBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}

	data, ok := cb.InternalData.(*vulkanCommandBufferData)
	if !ok {
		return fmt.Errorf("command buffer %s was not created by this backend", cb.ID)
	}
	data.commandBuffer.Free(b.context, b.context.CommandPool)
	core.IdentifierReleaseID(cb.ID)
	cb.InternalData = nil
	return nil
}

// Submit executes the recorded command buffers in slice order within
// a single queue submission and blocks until the fence signals.
func (b *VulkanBackend) Submit(cbs []*renderer.CommandBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}
	if len(cbs) == 0 {
		return nil
	}

	handles := make([]vk.CommandBuffer, 0, len(cbs))
	var last *vulkanCommandBufferData
	for _, cb := range cbs {
		data, ok := cb.InternalData.(*vulkanCommandBufferData)
		if !ok {
			err := fmt.Errorf("command buffer %s was not created by this backend", cb.ID)
			core.LogError(err.Error())
			return err
		}
		if !data.recorded {
			err := fmt.Errorf("command buffer %s submitted before being recorded", cb.ID)
			core.LogError(err.Error())
			return err
		}
		handles = append(handles, data.commandBuffer.Handle)
		last = data
	}

	if err := b.submitFence.Reset(b.context); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	submitInfo.Deref()

	if res := vk.QueueSubmit(b.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, b.submitFence.Handle); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkQueueSubmit failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	if !b.submitFence.Wait(b.context, ^uint64(0)) {
		return fmt.Errorf("submission fence wait failed")
	}

	for _, cb := range cbs {
		cb.InternalData.(*vulkanCommandBufferData).commandBuffer.UpdateSubmitted()
	}
	b.lastTarget = last.target
	return nil
}

// CaptureColour copies the first colour attachment of the most
// recently submitted target into host memory. Multisampled targets
// and float formats are not supported for readback.
func (b *VulkanBackend) CaptureColour() (image.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDeviceClosed
	}
	if b.lastTarget == nil {
		return nil, fmt.Errorf("nothing has been submitted yet; no colour target to capture")
	}

	target := b.lastTarget
	format := target.Config.ColourFormats[0]
	if format != renderer.PixelFormatRGBA8Unorm && format != renderer.PixelFormatBGRA8Unorm {
		return nil, fmt.Errorf("capture supports 8-bit colour formats, target uses %s", format)
	}
	if target.Config.SampleCount > 1 {
		return nil, fmt.Errorf("capture of multisampled targets is not supported")
	}

	width, height := target.Config.Width, target.Config.Height
	size := uint64(width) * uint64(height) * 4

	if b.staging == nil || b.staging.Size < size {
		if b.staging != nil {
			b.staging.Destroy(b.context)
		}
		staging, err := NewVulkanBuffer(b.context, size, vk.BufferUsageFlags(vk.BufferUsageTransferDstBit))
		if err != nil {
			return nil, err
		}
		b.staging = staging
	}

	copyCommandBuffer, err := AllocateAndBeginSingleUse(b.context, b.context.CommandPool)
	if err != nil {
		return nil, err
	}

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	region.Deref()

	// The render pass leaves colour attachments in transfer-src layout.
	vk.CmdCopyImageToBuffer(copyCommandBuffer.Handle,
		target.ColourImages[0].Handle, vk.ImageLayoutTransferSrcOptimal,
		b.staging.Handle, 1, []vk.BufferImageCopy{region})

	if err := copyCommandBuffer.EndSingleUse(b.context, b.context.CommandPool, b.context.Device.GraphicsQueue); err != nil {
		return nil, err
	}

	pixels, err := b.staging.ReadData(b.context, size)
	if err != nil {
		return nil, err
	}

	if format == renderer.PixelFormatBGRA8Unorm {
		for i := 0; i+3 < len(pixels); i += 4 {
			pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
		}
	}

	out := &image.RGBA{
		Pix:    pixels,
		Stride: int(width) * 4,
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}
	return out, nil
}

// Shutdown waits for the device to go idle and destroys everything
// the backend owns. Objects handed out through Create* calls must be
// destroyed by their owners first.
func (b *VulkanBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDeviceClosed
	}
	b.closed = true

	vk.DeviceWaitIdle(b.context.Device.LogicalDevice)

	if b.submitFence != nil {
		b.submitFence.Destroy(b.context)
		b.submitFence = nil
	}
	if b.staging != nil {
		b.staging.Destroy(b.context)
		b.staging = nil
	}
	for _, target := range b.targets {
		target.Destroy(b.context)
	}
	b.targets = nil
	b.lastTarget = nil

	b.destroyCommandPool()
	b.context.Device.Destroy(b.context)
	b.destroyInstance()

	core.LogInfo("Vulkan backend shut down")
	return nil
}
