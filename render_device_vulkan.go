// render_device_vulkan.go - Vulkan implementation of the GPU device

//go:build !headless

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_device_vulkan.go - Vulkan GPU Device

Vulkan implementation of the GPUDevice surface using goki/vulkan. One
graphics queue drives everything; per-frame-in-flight command and descriptor
pools back the render target rings. Attachments live in the GENERAL layout
for their whole life so the color attachment can double as an input
attachment for programmable blending without per-scene layout churn.
*/

package main

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

func init() {
	compiledFeatures = append(compiledFeatures, "Vulkan render backend")
}

// VulkanDevice implements GPUDevice over one Vulkan logical device.
type VulkanDevice struct {
	instance vk.Instance
	gpu      vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	family   uint32
	memProps vk.PhysicalDeviceMemoryProperties

	prerenderPools  [RENDER_FRAMES_IN_FLIGHT]vk.CommandPool
	renderPools     [RENDER_FRAMES_IN_FLIGHT]vk.CommandPool
	descriptorPools [RENDER_FRAMES_IN_FLIGHT]vk.DescriptorPool

	attachmentsLayout vk.DescriptorSetLayout
}

// vulkanImage bundles an image with its memory and view.
type vulkanImage struct {
	image         vk.Image
	memory        vk.DeviceMemory
	view          vk.ImageView
	width, height uint32
	format        SurfaceFormat
}

// NewVulkanDevice loads the Vulkan library and builds the device, queue,
// pools and the render-target descriptor layout.
func NewVulkanDevice() (GPUDevice, error) {
	if err := vk.Init(); err != nil {
		return nil, &RenderError{Operation: "vulkan init", Details: "loading vulkan library", Err: err}
	}

	d := &VulkanDevice{}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   "Vita3K\x00",
		ApplicationVersion: vk.MakeVersion(0, 2, 0),
		PEngineName:        "Vita3K renderer\x00",
		ApiVersion:         vk.ApiVersion11,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}, nil, &instance); res != vk.Success {
		return nil, &RenderError{Operation: "vulkan init", Details: "instance creation", Err: vk.Error(res)}
	}
	d.instance = instance
	vk.InitInstance(instance)

	var gpuCount uint32
	vk.EnumeratePhysicalDevices(d.instance, &gpuCount, nil)
	if gpuCount == 0 {
		return nil, &RenderError{Operation: "vulkan init", Details: "no physical devices"}
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	vk.EnumeratePhysicalDevices(d.instance, &gpuCount, gpus)
	d.gpu = gpus[0]

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.gpu, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.gpu, &familyCount, families)
	found := false
	for i := uint32(0); i < familyCount; i++ {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			d.family = i
			found = true
			break
		}
	}
	if !found {
		return nil, &RenderError{Operation: "vulkan init", Details: "no graphics queue family"}
	}

	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	var device vk.Device
	if res := vk.CreateDevice(d.gpu, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}, nil, &device); res != vk.Success {
		return nil, &RenderError{Operation: "vulkan init", Details: "device creation", Err: vk.Error(res)}
	}
	d.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(d.device, d.family, 0, &queue)
	d.queue = queue

	vk.GetPhysicalDeviceMemoryProperties(d.gpu, &d.memProps)
	d.memProps.Deref()

	for frame := 0; frame < RENDER_FRAMES_IN_FLIGHT; frame++ {
		poolInfo := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: d.family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}
		if res := vk.CreateCommandPool(d.device, &poolInfo, nil, &d.prerenderPools[frame]); res != vk.Success {
			return nil, &RenderError{Operation: "vulkan init", Details: "prerender pool", Err: vk.Error(res)}
		}
		if res := vk.CreateCommandPool(d.device, &poolInfo, nil, &d.renderPools[frame]); res != vk.Success {
			return nil, &RenderError{Operation: "vulkan init", Details: "render pool", Err: vk.Error(res)}
		}

		descrInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       256,
			PoolSizeCount: 2,
			PPoolSizes: []vk.DescriptorPoolSize{
				{Type: vk.DescriptorTypeInputAttachment, DescriptorCount: 256},
				{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 256},
			},
		}
		if res := vk.CreateDescriptorPool(d.device, &descrInfo, nil, &d.descriptorPools[frame]); res != vk.Success {
			return nil, &RenderError{Operation: "vulkan init", Details: "descriptor pool", Err: vk.Error(res)}
		}
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 2,
		PBindings: []vk.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  vk.DescriptorTypeInputAttachment,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
			{
				Binding:         1,
				DescriptorType:  vk.DescriptorTypeStorageImage,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
		},
	}
	if res := vk.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &d.attachmentsLayout); res != vk.Success {
		return nil, &RenderError{Operation: "vulkan init", Details: "attachments layout", Err: vk.Error(res)}
	}

	return d, nil
}

func translateVkFormat(format SurfaceFormat) vk.Format {
	switch format {
	case FORMAT_R8G8B8A8_UNORM:
		return vk.FormatR8g8b8a8Unorm
	case FORMAT_R8G8B8A8_SRGB:
		return vk.FormatR8g8b8a8Srgb
	case FORMAT_R5G6B5_UNORM:
		return vk.FormatR5g6b5UnormPack16
	case FORMAT_R4G4B4A4_UNORM:
		return vk.FormatR4g4b4a4UnormPack16
	case FORMAT_A2R10G10B10_UNORM:
		return vk.FormatA2r10g10b10UnormPack32
	case FORMAT_R16G16B16A16_SFLOAT:
		return vk.FormatR16g16b16a16Sfloat
	case FORMAT_D32_SFLOAT_S8_UINT:
		return vk.FormatD32SfloatS8Uint
	default:
		return vk.FormatR8g8b8a8Unorm
	}
}

func (d *VulkanDevice) findMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		d.memProps.MemoryTypes[i].Deref()
		if typeBits&(1<<i) != 0 && d.memProps.MemoryTypes[i].PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches bits 0x%X props 0x%X", typeBits, props)
}

func (d *VulkanDevice) AllocateCommandBuffer(frame int, kind CommandPoolKind) (CommandBuffer, error) {
	pool := d.renderPools[frame]
	if kind == POOL_PRERENDER {
		pool = d.prerenderPools[frame]
	}
	cmds := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)
	if res != vk.Success {
		return nil, &RenderError{Operation: "command buffer allocation", Details: "vkAllocateCommandBuffers", Err: vk.Error(res)}
	}
	return &VulkanCommandBuffer{device: d, cmd: cmds[0]}, nil
}

func (d *VulkanDevice) CreateFence() (GPUFence, error) {
	var fence vk.Fence
	res := vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence)
	if res != vk.Success {
		return nil, &RenderError{Operation: "fence creation", Details: "vkCreateFence", Err: vk.Error(res)}
	}
	return fence, nil
}

func (d *VulkanDevice) ResetFences(fences []GPUFence) error {
	vkFences := make([]vk.Fence, len(fences))
	for i, f := range fences {
		vkFences[i] = f.(vk.Fence)
	}
	if res := vk.ResetFences(d.device, uint32(len(vkFences)), vkFences); res != vk.Success {
		return &RenderError{Operation: "fence reset", Details: "vkResetFences", Err: vk.Error(res)}
	}
	return nil
}

func (d *VulkanDevice) WaitForFences(fences []GPUFence) error {
	vkFences := make([]vk.Fence, len(fences))
	for i, f := range fences {
		vkFences[i] = f.(vk.Fence)
	}
	res := vk.WaitForFences(d.device, uint32(len(vkFences)), vkFences, vk.True, ^uint64(0))
	if res != vk.Success {
		return &RenderError{Operation: "fence wait", Details: "vkWaitForFences", Err: vk.Error(res)}
	}
	return nil
}

func (d *VulkanDevice) CreateImage(width, height uint32, format SurfaceFormat) (ImageViewHandle, error) {
	usage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageInputAttachmentBit |
		vk.ImageUsageStorageBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if format.IsDepthStencil() {
		usage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageTransferSrcBit)
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}

	var image vk.Image
	res := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        translateVkFormat(format),
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if res != vk.Success {
		return nil, &RenderError{Operation: "image creation", Details: "vkCreateImage", Err: vk.Error(res)}
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &memReqs)
	memReqs.Deref()
	memType, err := d.findMemoryType(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, &RenderError{Operation: "image creation", Details: "memory type", Err: err}
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory); res != vk.Success {
		return nil, &RenderError{Operation: "image creation", Details: "vkAllocateMemory", Err: vk.Error(res)}
	}
	vk.BindImageMemory(d.device, image, memory, 0)

	var view vk.ImageView
	if res := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   translateVkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view); res != vk.Success {
		return nil, &RenderError{Operation: "image creation", Details: "vkCreateImageView", Err: vk.Error(res)}
	}

	return &vulkanImage{
		image:  image,
		memory: memory,
		view:   view,
		width:  width,
		height: height,
		format: format,
	}, nil
}

func (d *VulkanDevice) CreateRenderPass(format SurfaceFormat, zlsControl uint32) (RenderPassHandle, error) {
	dsLoad := vk.AttachmentLoadOpClear
	if zlsControl&GXM_DS_FORCE_LOAD != 0 {
		dsLoad = vk.AttachmentLoadOpLoad
	}
	dsStore := vk.AttachmentStoreOpDontCare
	if zlsControl&GXM_DS_FORCE_STORE != 0 {
		dsStore = vk.AttachmentStoreOpStore
	}

	attachments := []vk.AttachmentDescription{
		{
			// color content is never implicitly cleared
			Format:         translateVkFormat(format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		},
		{
			Format:         vk.FormatD32SfloatS8Uint,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         dsLoad,
			StoreOp:        dsStore,
			StencilLoadOp:  dsLoad,
			StencilStoreOp: dsStore,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		},
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{
			{Attachment: 0, Layout: vk.ImageLayoutGeneral},
		},
		PDepthStencilAttachment: &vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutGeneral},
	}

	var rp vk.RenderPass
	res := vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}, nil, &rp)
	if res != vk.Success {
		return nil, &RenderError{Operation: "render pass creation", Details: "vkCreateRenderPass", Err: vk.Error(res)}
	}
	return rp, nil
}

func (d *VulkanDevice) CreateFramebuffer(rp RenderPassHandle, color, depthStencil ImageViewHandle, width, height uint32) (FramebufferHandle, error) {
	views := []vk.ImageView{
		color.(*vulkanImage).view,
		depthStencil.(*vulkanImage).view,
	}
	var fb vk.Framebuffer
	res := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.(vk.RenderPass),
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}, nil, &fb)
	if res != vk.Success {
		return nil, &RenderError{Operation: "framebuffer creation", Details: "vkCreateFramebuffer", Err: vk.Error(res)}
	}
	return fb, nil
}

func (d *VulkanDevice) AllocateRenderTargetSet(frame int) (DescriptorSet, error) {
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPools[frame],
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.attachmentsLayout},
	}, &set)
	if res != vk.Success {
		return nil, &RenderError{Operation: "descriptor set allocation", Details: "vkAllocateDescriptorSets", Err: vk.Error(res)}
	}
	return set, nil
}

func (d *VulkanDevice) UpdateRenderTargetSet(set DescriptorSet, color, mask ImageViewHandle, useMask bool) {
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.(vk.DescriptorSet),
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeInputAttachment,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   color.(*vulkanImage).view,
				ImageLayout: vk.ImageLayoutGeneral,
			}},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.(vk.DescriptorSet),
			DstBinding:      1,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   mask.(*vulkanImage).view,
				ImageLayout: vk.ImageLayoutGeneral,
			}},
		},
	}
	count := uint32(1)
	if useMask {
		count = 2
	}
	vk.UpdateDescriptorSets(d.device, count, writes, 0, nil)
}

func (d *VulkanDevice) Submit(prerender, render CommandBuffer, fence GPUFence) error {
	// the prerender cmd executes first; pipeline barriers recorded inside
	// it order the rest
	cmds := []vk.CommandBuffer{
		prerender.(*VulkanCommandBuffer).cmd,
		render.(*VulkanCommandBuffer).cmd,
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(cmds)),
		PCommandBuffers:    cmds,
	}
	res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, fence.(vk.Fence))
	if res != vk.Success {
		return &RenderError{Operation: "queue submission", Details: "vkQueueSubmit", Err: vk.Error(res)}
	}
	return nil
}

// ReadImage copies an image's contents into host memory through a staging
// buffer on a one-shot command buffer. Blocking; only the wait thread and
// the display path use it.
func (d *VulkanDevice) ReadImage(view ImageViewHandle) []byte {
	img, ok := view.(*vulkanImage)
	if !ok || img.format.IsDepthStencil() {
		return nil
	}
	size := vk.DeviceSize(img.width * img.height * 4)

	staging, stagingMem, err := d.createBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		logError("image readback: %v", err)
		return nil
	}
	defer vk.DestroyBuffer(d.device, staging, nil)
	defer vk.FreeMemory(d.device, stagingMem, nil)

	cmdRaw, err := d.AllocateCommandBuffer(0, POOL_RENDER)
	if err != nil {
		logError("image readback: %v", err)
		return nil
	}
	cmd := cmdRaw.(*VulkanCommandBuffer)
	if err := cmd.Begin(); err != nil {
		return nil
	}
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: img.width, Height: img.height, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(cmd.cmd, img.image, vk.ImageLayoutGeneral, staging, 1, []vk.BufferImageCopy{region})
	if err := cmd.End(); err != nil {
		return nil
	}

	fenceRaw, err := d.CreateFence()
	if err != nil {
		return nil
	}
	fence := fenceRaw.(vk.Fence)
	defer vk.DestroyFence(d.device, fence, nil)

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.cmd},
	}
	if res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, fence); res != vk.Success {
		logError("image readback submit: %v", vk.Error(res))
		return nil
	}
	vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, ^uint64(0))

	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.device, stagingMem, 0, size, 0, &ptr); res != vk.Success {
		return nil
	}
	defer vk.UnmapMemory(d.device, stagingMem)

	out := make([]byte, size)
	vk.Memcopy(unsafe.Pointer(&out[0]), unsafe.Slice((*byte)(ptr), int(size)))
	return out
}

func (d *VulkanDevice) createBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	var buffer vk.Buffer
	res := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if res != vk.Success {
		return nil, nil, fmt.Errorf("vkCreateBuffer: %w", vk.Error(res))
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &memReqs)
	memReqs.Deref()
	memType, err := d.findMemoryType(memReqs.MemoryTypeBits, props)
	if err != nil {
		return nil, nil, err
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory); res != vk.Success {
		return nil, nil, fmt.Errorf("vkAllocateMemory: %w", vk.Error(res))
	}
	vk.BindBufferMemory(d.device, buffer, memory, 0)
	return buffer, memory, nil
}

func (d *VulkanDevice) Close() {
	vk.DeviceWaitIdle(d.device)
	vk.DestroyDescriptorSetLayout(d.device, d.attachmentsLayout, nil)
	for frame := 0; frame < RENDER_FRAMES_IN_FLIGHT; frame++ {
		vk.DestroyDescriptorPool(d.device, d.descriptorPools[frame], nil)
		vk.DestroyCommandPool(d.device, d.prerenderPools[frame], nil)
		vk.DestroyCommandPool(d.device, d.renderPools[frame], nil)
	}
	vk.DestroyDevice(d.device, nil)
	vk.DestroyInstance(d.instance, nil)
}

// VulkanCommandBuffer wraps one vk.CommandBuffer plus the staging buffers
// its recorded uploads keep alive until the buffer is re-begun.
type VulkanCommandBuffer struct {
	device *VulkanDevice
	cmd    vk.CommandBuffer

	stagingBuffers  []vk.Buffer
	stagingMemories []vk.DeviceMemory
}

func (cb *VulkanCommandBuffer) releaseStaging() {
	for i := range cb.stagingBuffers {
		vk.DestroyBuffer(cb.device.device, cb.stagingBuffers[i], nil)
		vk.FreeMemory(cb.device.device, cb.stagingMemories[i], nil)
	}
	cb.stagingBuffers = cb.stagingBuffers[:0]
	cb.stagingMemories = cb.stagingMemories[:0]
}

func (cb *VulkanCommandBuffer) Begin() error {
	cb.releaseStaging()
	res := vk.BeginCommandBuffer(cb.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if res != vk.Success {
		return &RenderError{Operation: "command buffer begin", Details: "vkBeginCommandBuffer", Err: vk.Error(res)}
	}
	return nil
}

func (cb *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(cb.cmd); res != vk.Success {
		return &RenderError{Operation: "command buffer end", Details: "vkEndCommandBuffer", Err: vk.Error(res)}
	}
	return nil
}

func (cb *VulkanCommandBuffer) BeginRenderPass(rp RenderPassHandle, fb FramebufferHandle, width, height uint32, clearDepth float32, clearStencil uint32) {
	// only the depth-stencil attachment may be cleared if not force loaded
	var clearValues [2]vk.ClearValue
	clearValues[1].SetDepthStencil(clearDepth, clearStencil)

	vk.CmdBeginRenderPass(cb.cmd, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.(vk.RenderPass),
		Framebuffer: fb.(vk.Framebuffer),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: 2,
		PClearValues:    clearValues[:],
	}, vk.SubpassContentsInline)
}

func (cb *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(cb.cmd)
}

func (cb *VulkanCommandBuffer) SetViewport(vp Viewport) {
	vk.CmdSetViewport(cb.cmd, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (cb *VulkanCommandBuffer) SetScissor(sc Scissor) {
	vk.CmdSetScissor(cb.cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: sc.X, Y: sc.Y},
		Extent: vk.Extent2D{Width: sc.Width, Height: sc.Height},
	}})
}

func (cb *VulkanCommandBuffer) SetDepthBias(constant, slope float32) {
	vk.CmdSetDepthBias(cb.cmd, constant, 0, slope)
}

func (cb *VulkanCommandBuffer) SetLineWidth(width float32) {
	vk.CmdSetLineWidth(cb.cmd, width)
}

func (cb *VulkanCommandBuffer) SetStencilState(face StencilFace, st GxmStencilState) {
	faceFlags := vk.StencilFaceFlags(vk.StencilFaceFrontBit)
	if face == STENCIL_FACE_BACK {
		faceFlags = vk.StencilFaceFlags(vk.StencilFaceBackBit)
	}
	vk.CmdSetStencilCompareMask(cb.cmd, faceFlags, st.CompareMask)
	vk.CmdSetStencilWriteMask(cb.cmd, faceFlags, st.WriteMask)
	vk.CmdSetStencilReference(cb.cmd, faceFlags, st.Ref)
}

func (cb *VulkanCommandBuffer) UploadImage(view ImageViewHandle, data []byte) {
	img, ok := view.(*vulkanImage)
	if !ok {
		return
	}
	staging, stagingMem, err := cb.device.createBuffer(vk.DeviceSize(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		logError("image upload: %v", err)
		return
	}
	cb.stagingBuffers = append(cb.stagingBuffers, staging)
	cb.stagingMemories = append(cb.stagingMemories, stagingMem)

	var ptr unsafe.Pointer
	if res := vk.MapMemory(cb.device.device, stagingMem, 0, vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		logError("image upload map: %v", vk.Error(res))
		return
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(cb.device.device, stagingMem)

	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: img.width, Height: img.height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.cmd, staging, img.image, vk.ImageLayoutGeneral, 1, []vk.BufferImageCopy{region})
}

func (cb *VulkanCommandBuffer) BeginQuery(pool QueryPoolHandle, query uint32) {
	vk.CmdBeginQuery(cb.cmd, pool.(vk.QueryPool), query, 0)
}

func (cb *VulkanCommandBuffer) EndQuery(pool QueryPoolHandle, query uint32) {
	vk.CmdEndQuery(cb.cmd, pool.(vk.QueryPool), query)
}

func (cb *VulkanCommandBuffer) CopyQueryResults(pool QueryPoolHandle, first, count uint32, buffer BufferHandle, offset uint32) {
	vk.CmdCopyQueryPoolResults(cb.cmd, pool.(vk.QueryPool), first, count,
		buffer.(vk.Buffer), vk.DeviceSize(offset), 4, vk.QueryResultFlags(vk.QueryResultWaitBit))
}
