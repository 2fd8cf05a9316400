// render_context.go - Recording state machine of the GXM render context

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_context.go - Render Context Recording State Machine

One RenderContext translates the guest's GXM draw state into command buffers
for the active render target. Its lifecycle per scene:

    Idle -> StartRecording -> Recording -> StartRenderPass -> InPass
         -> StopRenderPass -> Recording -> StopRecording -> Idle

StopRecording submits the prerender and render buffers as one ordered
submission fenced by the target's round-robin fence ring, then queues the
asynchronous completion work (notification delivery, surface sync) for the
wait thread. Calling a transition in the wrong state is a caller bug: it is
logged and ignored, never propagated.

All state here is owned by the render thread. The only cross-thread traffic
is the wait-request queue.
*/

package main

import "sync"

// VisibilityBuffer receives occlusion-query results for the current scene.
type VisibilityBuffer struct {
	QueryPool    QueryPoolHandle
	GPUBuffer    BufferHandle
	BufferOffset uint32
}

// RenderState is the device-level state shared by every context of one
// emulator session: the device, the collaborator caches and the
// notification condition guarding guest-memory completion writes.
type RenderState struct {
	device        GPUDevice
	pipelineCache *PipelineCache
	surfaceCache  *SurfaceCache

	notificationMutex sync.Mutex
	notificationReady *sync.Cond
}

// Device returns the GPU device the state was built over.
func (s *RenderState) Device() GPUDevice { return s.device }

// SurfaceCache returns the shared surface cache.
func (s *RenderState) SurfaceCache() *SurfaceCache { return s.surfaceCache }

// NewRenderState wires the caches over the device.
func NewRenderState(device GPUDevice) *RenderState {
	s := &RenderState{
		device:        device,
		pipelineCache: NewPipelineCache(device),
		surfaceCache:  NewSurfaceCache(device),
	}
	s.notificationReady = sync.NewCond(&s.notificationMutex)
	return s
}

// RenderContext drives one context's recording state machine. Exactly one
// context records at a time per render thread.
type RenderContext struct {
	state    *RenderState
	features FeatureState

	renderTarget *RenderTarget
	record       GxmRecord

	viewport Viewport
	scissor  Scissor

	// Non-owning handles into the target's rings, valid only while
	// recording; cleared on StopRecording to force errors on reuse.
	renderCmd    CommandBuffer
	prerenderCmd CommandBuffer

	isRecording  bool
	inRenderpass bool

	sceneTimestamp  uint64
	frameTimestamp  uint64
	currentFrameIdx int

	currentRenderPass        RenderPassHandle
	currentFramebuffer       FramebufferHandle
	currentColorAttachment   ImageViewHandle
	currentDSAttachment      ImageViewHandle
	currentFramebufferHeight uint32

	rendertargetSet DescriptorSet
	refreshPipeline bool
	currentPipeline interface{}

	vertexTextures       [MAX_GXM_TEXTURES]GxmTexture
	fragmentTextures     [MAX_GXM_TEXTURES]GxmTexture
	lastVertTextureCount uint32
	lastFragTextureCount uint32

	isInQuery               bool
	currentQueryIdx         uint32
	visibilityMaxUsedIdx    int
	currentVisibilityBuffer *VisibilityBuffer

	requestQueue   *FenceWaitQueue
	waitThreadDone chan struct{}

	newFrameMutex   sync.Mutex
	newFrameCond    *sync.Cond
	lastFrameWaited uint64

	renderedFences [RENDER_FRAMES_IN_FLIGHT][]GPUFence
}

// NewRenderContext creates an idle context over the shared render state.
// Frame timestamps start at 1 so a fresh render target (lastUsedFrame 0) is
// always treated as new on first use. The frame slot index always tracks
// the timestamp modulo the frames in flight, so the first frame must not
// start in slot 0 or it would share resources with the frame only two
// FinishFrame calls later.
func NewRenderContext(state *RenderState) *RenderContext {
	ctx := &RenderContext{
		state:                state,
		frameTimestamp:       1,
		currentFrameIdx:      1 % RENDER_FRAMES_IN_FLIGHT,
		visibilityMaxUsedIdx: -1,
		requestQueue:         NewFenceWaitQueue(),
		viewport:             Viewport{MaxDepth: 1},
	}
	ctx.newFrameCond = sync.NewCond(&ctx.newFrameMutex)
	return ctx
}

// SetContext activates a render target for the coming scene: resolves the
// record's surfaces, fetches the render pass and framebuffer from the
// collaborator caches, then opens recording and the render pass. A nil
// target keeps the current one. The feature snapshot passed here is the one
// the whole scene runs under.
func (ctx *RenderContext) SetContext(bus MemoryBus, rt *RenderTarget, features FeatureState) {
	if rt != nil {
		ctx.renderTarget = rt
	} else {
		rt = ctx.renderTarget
	}
	if rt == nil {
		logError("SetContext called with no render target")
		return
	}

	ctx.features = features
	ctx.sceneTimestamp++

	colorFin := &ctx.record.ColorSurface
	// resolved for the pipeline cache before the null-surface normalization
	ctx.record.ColorBaseFormat = gxmGetBaseFormat(colorFin.ColorFormat)
	ctx.record.IsGammaCorrected = colorFin.Gamma != 0
	format := translateColorFormat(ctx.record.ColorBaseFormat)

	if colorFin.Gamma != 0 && format == FORMAT_R8G8B8A8_UNORM {
		format = FORMAT_R8G8B8A8_SRGB
	}

	if !colorFin.Data.Valid() {
		colorFin = nil

		// set back default values
		format = FORMAT_R8G8B8A8_UNORM
		ctx.record.ColorSurface.Downscale = false
		ctx.record.IsGammaCorrected = false
		ctx.record.IsMaskUpdate = false
		ctx.record.ColorBaseFormat = GXM_COLOR_BASE_FORMAT_U8U8U8U8
	}

	if rt.multisampleMode && !ctx.record.ColorSurface.Downscale {
		// MSAA without downscale: emulate by doubling the target's
		// dimensions, restored in StopRecording
		rt.width *= 2
		rt.height *= 2
	}

	dsFin := &ctx.record.DepthStencilSurface
	if !dsFin.DepthData.Valid() && !dsFin.StencilData.Valid() {
		dsFin = nil
	}

	state := ctx.state
	state.surfaceCache.SetRenderTarget(rt)

	ctx.StartRecording()

	ctx.currentRenderPass = state.pipelineCache.RetrieveRenderPass(format, ctx.record.DepthStencilSurface.ZlsControl)

	ctx.currentFramebuffer, ctx.currentColorAttachment, ctx.currentDSAttachment, ctx.currentFramebufferHeight =
		state.surfaceCache.RetrieveFramebufferHandle(bus, colorFin, dsFin, ctx.currentRenderPass, rt.width, rt.height)

	if features.UseMaskBit {
		syncMask(ctx)
	}

	ctx.StartRenderPass()
}

// StartRecording opens the next prerender/render command-buffer pair of the
// active target and pushes the baseline dynamic state into the render
// buffer. Growing the target's rings when the frame has used every
// provisioned scene slot is expected behavior, not an error.
func (ctx *RenderContext) StartRecording() {
	if ctx.isRecording {
		logError("Attempt to start recording while already recording")
		return
	}
	if ctx.renderTarget == nil {
		logError("Recording started without a set render target")
		return
	}

	rt := ctx.renderTarget
	rt.beginFrameIfNew(ctx.frameTimestamp)

	if rt.exhausted(ctx.currentFrameIdx) {
		if err := rt.grow(ctx.state.device, ctx.currentFrameIdx); err != nil {
			logError("could not grow render target rings: %v", err)
			return
		}
	}

	ctx.renderCmd = rt.cmdBuffers[ctx.currentFrameIdx][rt.cmdBufferIdx]
	ctx.prerenderCmd = rt.preCmdBuffers[ctx.currentFrameIdx][rt.cmdBufferIdx]
	rt.cmdBufferIdx++

	if err := ctx.renderCmd.Begin(); err != nil {
		logError("could not begin render command buffer: %v", err)
	}
	if err := ctx.prerenderCmd.Begin(); err != nil {
		logError("could not begin prerender command buffer: %v", err)
	}

	ctx.isRecording = true

	// set all the dynamic state here
	ctx.renderCmd.SetViewport(ctx.viewport)
	ctx.renderCmd.SetScissor(ctx.scissor)
	syncDepthBias(ctx)
	syncPointLineWidth(ctx, true)
	syncStencilFunc(ctx, STENCIL_FACE_FRONT)
	if ctx.record.TwoSided == GXM_TWO_SIDED_ENABLED {
		syncStencilFunc(ctx, STENCIL_FACE_BACK)
	}
}

// StartRenderPass opens the render pass over the current framebuffer,
// auto-promoting to Recording first if needed. Only the depth-stencil
// attachment gets a clear value; color content is either force-loaded prior
// content or explicitly drawn.
func (ctx *RenderContext) StartRenderPass() {
	if ctx.inRenderpass {
		logError("Starting render pass while already in render pass")
		return
	}

	if !ctx.isRecording {
		ctx.StartRecording()
		if !ctx.isRecording {
			return
		}
	}

	// make sure we are not keeping any texture from the previous pass
	// (textures can still be bound even though they are not used)
	ctx.lastVertTextureCount = ^uint32(0)
	ctx.lastFragTextureCount = ^uint32(0)
	for i := 0; i < MAX_GXM_TEXTURES; i++ {
		ctx.vertexTextures[i].Sampler = nil
		ctx.fragmentTextures[i].Sampler = nil
	}

	rt := ctx.renderTarget
	ctx.renderCmd.BeginRenderPass(ctx.currentRenderPass, ctx.currentFramebuffer, rt.width, rt.height,
		ctx.record.DepthStencilSurface.BackgroundDepth, ctx.record.DepthStencilSurface.BackgroundStencil())

	// descriptor set for the whole scene with the color attachment and the
	// mask; the mask binding only participates when the feature is active
	set, err := ctx.state.device.AllocateRenderTargetSet(ctx.currentFrameIdx)
	if err != nil {
		logError("could not allocate render target descriptor set: %v", err)
	} else {
		ctx.state.device.UpdateRenderTargetSet(set, ctx.currentColorAttachment, rt.mask, ctx.features.UseMaskBit)
		ctx.rendertargetSet = set
	}

	ctx.refreshPipeline = true
	ctx.currentPipeline = nil
	ctx.inRenderpass = true
}

// StopRenderPass ends the open render pass, returning to Recording.
func (ctx *RenderContext) StopRenderPass() {
	if !ctx.inRenderpass {
		logError("Stopping render pass while not in render pass")
		return
	}
	ctx.renderCmd.EndRenderPass()

	ctx.inRenderpass = false
}

// StopRecording closes the scene: ends any open query scope and render
// pass, copies pending query results, performs surface sync, ends and
// submits both command buffers under the next ring fence, and queues the
// asynchronous completion work for the wait thread.
func (ctx *RenderContext) StopRecording(notif1, notif2 GxmNotification) {
	if !ctx.isRecording {
		logError("Stopping recording while not recording")
		return
	}

	// do this before ending the render pass
	if ctx.isInQuery {
		ctx.renderCmd.EndQuery(ctx.currentVisibilityBuffer.QueryPool, ctx.currentQueryIdx)
		ctx.isInQuery = false
	}

	if ctx.inRenderpass {
		ctx.StopRenderPass()
	}

	if ctx.visibilityMaxUsedIdx != -1 {
		ctx.renderCmd.CopyQueryResults(ctx.currentVisibilityBuffer.QueryPool, 0,
			uint32(ctx.visibilityMaxUsedIdx+1), ctx.currentVisibilityBuffer.GPUBuffer,
			ctx.currentVisibilityBuffer.BufferOffset)
		ctx.visibilityMaxUsedIdx = -1
	}

	var surfaceInfo *ColorSurfaceCacheInfo
	if ctx.features.SupportMemoryMapping && !ctx.features.DisableSurfaceSync {
		surfaceInfo = ctx.state.surfaceCache.PerformSurfaceSync()
	}

	if err := ctx.prerenderCmd.End(); err != nil {
		logError("could not end prerender command buffer: %v", err)
	}
	if err := ctx.renderCmd.End(); err != nil {
		logError("could not end render command buffer: %v", err)
	}

	rt := ctx.renderTarget
	fence := rt.nextFence()

	// the prerender cmd must be submitted before the render cmd, the
	// pipeline barriers do the rest
	if err := ctx.state.device.Submit(ctx.prerenderCmd, ctx.renderCmd, fence); err != nil {
		logError("queue submission failed: %v", err)
	}
	ctx.renderedFences[ctx.currentFrameIdx] = append(ctx.renderedFences[ctx.currentFrameIdx], fence)

	if ctx.features.SupportMemoryMapping {
		ctx.requestQueue.Push(NotificationRequest{
			Notifications: [2]GxmNotification{notif1, notif2},
			Fence:         fence,
		})
		if surfaceInfo != nil {
			ctx.requestQueue.Push(PostSurfaceSyncRequest{CacheInfo: surfaceInfo})
		}
	}

	if rt.multisampleMode && !ctx.record.ColorSurface.Downscale {
		// revert changes made in SetContext
		rt.width /= 2
		rt.height /= 2
	}

	ctx.renderCmd = nil
	ctx.prerenderCmd = nil
	ctx.isRecording = false
}

// Record exposes the mutable draw state the guest writes between scenes.
func (ctx *RenderContext) Record() *GxmRecord { return &ctx.record }

// FrameTimestamp returns the timestamp the next FinishFrame will retire.
func (ctx *RenderContext) FrameTimestamp() uint64 { return ctx.frameTimestamp }

// IsRecording reports whether a scene is currently open.
func (ctx *RenderContext) IsRecording() bool { return ctx.isRecording }

// InRenderPass reports whether a render pass is currently open.
func (ctx *RenderContext) InRenderPass() bool { return ctx.inRenderpass }

// SceneTimestamp returns the context's monotonically increasing scene counter.
func (ctx *RenderContext) SceneTimestamp() uint64 { return ctx.sceneTimestamp }
