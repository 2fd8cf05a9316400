// render_target.go - Per-output render target with growable scene rings

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_target.go - Render Target

One RenderTarget exists per logical output surface the guest renders into.
It owns, per frame in flight, a ring of prerender/render command-buffer
pairs (one pair per scene) and a shared ring of fences reused round-robin
across submissions.

The rings are provisioned for RENDER_SCENES_PER_FRAME scenes and grow
monotonically if a title records more scenes in one frame than planned.
Growth is a safety valve, not an error: the index is valid by construction
because growth happens before use. Only the render thread touches the rings,
so they need no lock.
*/

package main

// RenderTarget owns the command-buffer and fence rings for one output.
type RenderTarget struct {
	width, height   uint32
	multisampleMode bool

	cmdBuffers    [RENDER_FRAMES_IN_FLIGHT][]CommandBuffer
	preCmdBuffers [RENDER_FRAMES_IN_FLIGHT][]CommandBuffer
	cmdBufferIdx  int

	fences   []GPUFence
	fenceIdx int

	lastUsedFrame uint64

	// mask is the hardware mask buffer exposed to shaders as a storage
	// image when the mask-bit feature is active.
	mask ImageViewHandle
}

var sceneOverflowWarned bool

// NewRenderTarget provisions the rings for the expected number of scenes
// per frame and creates the target's mask image.
func NewRenderTarget(device GPUDevice, width, height uint32, multisample bool) (*RenderTarget, error) {
	rt := &RenderTarget{
		width:           width,
		height:          height,
		multisampleMode: multisample,
	}

	for frame := 0; frame < RENDER_FRAMES_IN_FLIGHT; frame++ {
		for scene := 0; scene < RENDER_SCENES_PER_FRAME; scene++ {
			cmd, err := device.AllocateCommandBuffer(frame, POOL_RENDER)
			if err != nil {
				return nil, &RenderError{Operation: "render target creation", Details: "render command buffer", Err: err}
			}
			pre, err := device.AllocateCommandBuffer(frame, POOL_PRERENDER)
			if err != nil {
				return nil, &RenderError{Operation: "render target creation", Details: "prerender command buffer", Err: err}
			}
			rt.cmdBuffers[frame] = append(rt.cmdBuffers[frame], cmd)
			rt.preCmdBuffers[frame] = append(rt.preCmdBuffers[frame], pre)
		}
	}

	for scene := 0; scene < RENDER_SCENES_PER_FRAME; scene++ {
		fence, err := device.CreateFence()
		if err != nil {
			return nil, &RenderError{Operation: "render target creation", Details: "fence", Err: err}
		}
		rt.fences = append(rt.fences, fence)
	}

	mask, err := device.CreateImage(width, height, FORMAT_R8G8B8A8_UNORM)
	if err != nil {
		return nil, &RenderError{Operation: "render target creation", Details: "mask image", Err: err}
	}
	rt.mask = mask

	return rt, nil
}

// Width returns the target's current logical width.
func (rt *RenderTarget) Width() uint32 { return rt.width }

// Height returns the target's current logical height.
func (rt *RenderTarget) Height() uint32 { return rt.height }

// beginFrameIfNew resets the scene index the first time the target is
// touched in a new frame.
func (rt *RenderTarget) beginFrameIfNew(frameTimestamp uint64) {
	if rt.lastUsedFrame != frameTimestamp {
		rt.cmdBufferIdx = 0
		rt.lastUsedFrame = frameTimestamp
	}
}

// exhausted reports whether the current frame has used every provisioned
// scene slot.
func (rt *RenderTarget) exhausted(frame int) bool {
	return rt.cmdBufferIdx == len(rt.cmdBuffers[frame])
}

// grow adds one command-buffer pair to the given frame's ring and inserts a
// fresh fence at the current fence index so the next fence used is the one
// just created.
func (rt *RenderTarget) grow(device GPUDevice, frame int) error {
	if !sceneOverflowWarned {
		logWarn("Render target is using more scenes per frame than what was planned!")
		sceneOverflowWarned = true
	}

	cmd, err := device.AllocateCommandBuffer(frame, POOL_RENDER)
	if err != nil {
		return err
	}
	pre, err := device.AllocateCommandBuffer(frame, POOL_PRERENDER)
	if err != nil {
		return err
	}
	rt.cmdBuffers[frame] = append(rt.cmdBuffers[frame], cmd)
	rt.preCmdBuffers[frame] = append(rt.preCmdBuffers[frame], pre)

	fence, err := device.CreateFence()
	if err != nil {
		return err
	}
	rt.fences = append(rt.fences, nil)
	copy(rt.fences[rt.fenceIdx+1:], rt.fences[rt.fenceIdx:])
	rt.fences[rt.fenceIdx] = fence
	return nil
}

// nextFence returns the next fence in the round-robin ring, wrapping the
// index past the end.
func (rt *RenderTarget) nextFence() GPUFence {
	fence := rt.fences[rt.fenceIdx]
	rt.fenceIdx++
	if rt.fenceIdx == len(rt.fences) {
		rt.fenceIdx = 0
	}
	return fence
}
