// render_device.go - GPU device abstraction for the rendering subsystem

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_device.go - GPU Device Abstraction

The render context consumes a small set of device and queue primitives:
command-buffer allocation, descriptor-set allocation and update, fence
creation, ordered queue submission and blocking multi-fence waits. This file
defines that surface as interfaces so the same state machine drives both the
Vulkan backend and the software reference backend.

The software backend serves two purposes:
1. Fallback when Vulkan is unavailable
2. Reference implementation for testing
*/

package main

import "fmt"

// RenderError provides detailed error context for device operations.
type RenderError struct {
	Operation string // What operation was being attempted
	Details   string // Additional error context
	Err       error  // Underlying error if any
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s failed: %s: %v", e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("render %s failed: %s", e.Operation, e.Details)
}

// Opaque backend handles. Each backend stores its native object behind these;
// the state machine only moves them between collaborators.
type (
	GPUFence          interface{}
	RenderPassHandle  interface{}
	FramebufferHandle interface{}
	ImageViewHandle   interface{}
	DescriptorSet     interface{}
	QueryPoolHandle   interface{}
	BufferHandle      interface{}
)

// CommandPoolKind selects which per-frame pool a command buffer comes from.
// Prerender buffers carry setup work (layout transitions, uploads) and are
// always submitted before their paired render buffer.
type CommandPoolKind int

const (
	POOL_PRERENDER CommandPoolKind = iota
	POOL_RENDER
)

// CommandBuffer is the recording surface of one command buffer. All calls
// are only valid between Begin and End; render-area calls additionally only
// inside a render pass. Misuse is a caller bug; backends log rather than
// return errors, consistent with the renderer's propagation policy.
type CommandBuffer interface {
	Begin() error
	End() error

	BeginRenderPass(rp RenderPassHandle, fb FramebufferHandle, width, height uint32, clearDepth float32, clearStencil uint32)
	EndRenderPass()

	SetViewport(vp Viewport)
	SetScissor(sc Scissor)
	SetDepthBias(constant, slope float32)
	SetLineWidth(width float32)
	SetStencilState(face StencilFace, st GxmStencilState)

	// UploadImage records a host-to-image copy; valid outside a render pass
	// only, which is why mask refreshes ride in the prerender buffer.
	UploadImage(view ImageViewHandle, data []byte)

	BeginQuery(pool QueryPoolHandle, query uint32)
	EndQuery(pool QueryPoolHandle, query uint32)
	CopyQueryResults(pool QueryPoolHandle, first, count uint32, buffer BufferHandle, offset uint32)
}

// GPUDevice is the device/queue surface consumed by the render context and
// its collaborator caches.
type GPUDevice interface {
	AllocateCommandBuffer(frame int, kind CommandPoolKind) (CommandBuffer, error)
	CreateFence() (GPUFence, error)
	ResetFences(fences []GPUFence) error
	// WaitForFences blocks until every fence has signaled. This is the only
	// blocking GPU call the subsystem makes and only the wait thread is
	// allowed to issue it.
	WaitForFences(fences []GPUFence) error

	CreateImage(width, height uint32, format SurfaceFormat) (ImageViewHandle, error)
	CreateRenderPass(format SurfaceFormat, zlsControl uint32) (RenderPassHandle, error)
	CreateFramebuffer(rp RenderPassHandle, color, depthStencil ImageViewHandle, width, height uint32) (FramebufferHandle, error)

	AllocateRenderTargetSet(frame int) (DescriptorSet, error)
	// UpdateRenderTargetSet exposes the current color attachment as an input
	// attachment and, when useMask is set, the target's mask image as a
	// storage image.
	UpdateRenderTargetSet(set DescriptorSet, color, mask ImageViewHandle, useMask bool)

	// Submit queues the prerender buffer followed by the render buffer as a
	// single ordered submission signaling fence on completion.
	Submit(prerender, render CommandBuffer, fence GPUFence) error

	// ReadImage returns the RGBA contents of an image, or nil if the backend
	// cannot read it back. Consumed by the surface-sync path and the display
	// output.
	ReadImage(view ImageViewHandle) []byte

	Close()
}

// Predefined render device backends.
const (
	RENDER_BACKEND_VULKAN = iota // goki/vulkan accelerated backend
	RENDER_BACKEND_SOFTWARE
)

// NewGPUDevice creates a render device using the specified backend.
func NewGPUDevice(backend int) (GPUDevice, error) {
	switch backend {
	case RENDER_BACKEND_VULKAN:
		return NewVulkanDevice()
	case RENDER_BACKEND_SOFTWARE:
		return NewSoftwareDevice(), nil
	default:
		return nil, &RenderError{
			Operation: "device creation",
			Details:   fmt.Sprintf("unknown backend %d", backend),
		}
	}
}
