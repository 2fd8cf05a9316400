// render_context_test.go - Test suite for the recording state machine

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import (
	"strings"
	"testing"
)

func newSceneContext(t *testing.T) (*SoftwareDevice, *GuestBus, *RenderContext, *RenderTarget) {
	t.Helper()
	device := NewSoftwareDevice()
	bus := NewGuestBus()
	ctx := NewRenderContext(NewRenderState(device))

	target, err := NewRenderTarget(device, 960, 544, false)
	if err != nil {
		t.Fatalf("NewRenderTarget failed: %v", err)
	}
	return device, bus, ctx, target
}

func defaultFeatures() FeatureState {
	return FeatureState{SupportMemoryMapping: true}
}

func hasOp(ops []string, prefix string) bool {
	for _, op := range ops {
		if strings.HasPrefix(op, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// State transitions
// =============================================================================

func TestRenderContext_SceneLifecycle(t *testing.T) {
	device, bus, ctx, target := newSceneContext(t)

	if ctx.IsRecording() || ctx.InRenderPass() {
		t.Fatal("fresh context is not idle")
	}

	ctx.Record().ColorSurface = GxmColorSurface{Data: 0x100000}
	ctx.SetContext(bus, target, defaultFeatures())

	if !ctx.IsRecording() {
		t.Fatal("SetContext did not open recording")
	}
	if !ctx.InRenderPass() {
		t.Fatal("SetContext did not open the render pass")
	}

	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	if ctx.IsRecording() || ctx.InRenderPass() {
		t.Error("StopRecording did not return the context to idle")
	}
	if got := len(device.Submissions()); got != 1 {
		t.Errorf("submissions = %d, want 1", got)
	}
}

func TestRenderContext_SceneTimestampAdvances(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	before := ctx.SceneTimestamp()
	ctx.SetContext(bus, target, defaultFeatures())
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	if got := ctx.SceneTimestamp(); got != before+1 {
		t.Errorf("SceneTimestamp = %d, want %d", got, before+1)
	}
}

func TestRenderContext_DoubleStartRecordingIgnored(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.SetContext(bus, target, defaultFeatures())
	if target.cmdBufferIdx != 1 {
		t.Fatalf("cmdBufferIdx after first scene open = %d, want 1", target.cmdBufferIdx)
	}

	ctx.StartRecording()

	if target.cmdBufferIdx != 1 {
		t.Errorf("duplicate StartRecording consumed a scene slot: cmdBufferIdx = %d", target.cmdBufferIdx)
	}
}

func TestRenderContext_StartRecordingWithoutTarget(t *testing.T) {
	device := NewSoftwareDevice()
	ctx := NewRenderContext(NewRenderState(device))

	ctx.StartRecording()

	if ctx.IsRecording() {
		t.Error("recording opened without a render target")
	}
}

func TestRenderContext_StopTransitionsOutOfOrderIgnored(t *testing.T) {
	device, _, ctx, target := newSceneContext(t)
	ctx.renderTarget = target

	ctx.StopRenderPass()
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	if got := len(device.Submissions()); got != 0 {
		t.Errorf("out-of-order StopRecording submitted %d times, want 0", got)
	}
}

func TestRenderContext_StartRenderPassAutoPromotes(t *testing.T) {
	_, _, ctx, target := newSceneContext(t)
	ctx.renderTarget = target

	ctx.StartRenderPass()

	if !ctx.IsRecording() {
		t.Fatal("StartRenderPass did not promote to recording")
	}
	if !ctx.InRenderPass() {
		t.Fatal("StartRenderPass did not open the pass")
	}
}

// =============================================================================
// Dynamic state baseline
// =============================================================================

func TestRenderContext_BaselineDynamicState(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.SetContext(bus, target, defaultFeatures())

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	for _, want := range []string{"begin", "setViewport", "setScissor", "setDepthBias", "setLineWidth", "setStencil face=0", "beginRenderPass"} {
		if !hasOp(ops, want) {
			t.Errorf("baseline state missing %q in %v", want, ops)
		}
	}
	if hasOp(ops, "setStencil face=1") {
		t.Error("back-face stencil pushed with two-sided mode disabled")
	}
}

func TestRenderContext_TwoSidedStencilBaseline(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.Record().TwoSided = GXM_TWO_SIDED_ENABLED
	ctx.Record().BackStencil = GxmStencilState{Func: GXM_STENCIL_FUNC_ALWAYS, Ref: 3}
	ctx.SetContext(bus, target, defaultFeatures())

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(ops, "setStencil face=1") {
		t.Errorf("back-face stencil not pushed for two-sided mode: %v", ops)
	}
}

func TestRenderContext_ZeroLineWidthClamped(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.Record().LineWidth = 0
	ctx.SetContext(bus, target, defaultFeatures())

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(ops, "setLineWidth 1") {
		t.Errorf("zero line width not clamped to 1: %v", ops)
	}
}

func TestRenderContext_SetViewportWhileRecording(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)
	ctx.SetContext(bus, target, defaultFeatures())

	ctx.SetViewport(Viewport{Width: 480, Height: 272, MaxDepth: 1})

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(ops, "setViewport 480x272") {
		t.Errorf("viewport change not pushed while recording: %v", ops)
	}
}

// =============================================================================
// Render pass contents
// =============================================================================

func TestRenderContext_DepthStencilClearValues(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.Record().DepthStencilSurface = GxmDepthStencilSurface{
		DepthData:       0x400000,
		BackgroundDepth: 0.5,
		ZlsControl:      0x7F,
	}
	ctx.SetContext(bus, target, defaultFeatures())

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(ops, "beginRenderPass 960x544 clearDepth=0.5 clearStencil=127") {
		t.Errorf("clear values not taken from the surface record: %v", ops)
	}
}

func TestRenderContext_GammaSelectsSRGBPass(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.Record().ColorSurface = GxmColorSurface{Data: 0x100000, Gamma: 1}
	ctx.SetContext(bus, target, defaultFeatures())

	rp, ok := ctx.currentRenderPass.(*softRenderPass)
	if !ok {
		t.Fatalf("render pass handle = %T, want *softRenderPass", ctx.currentRenderPass)
	}
	if rp.format != FORMAT_R8G8B8A8_SRGB {
		t.Errorf("render pass format = %d, want sRGB", rp.format)
	}
	if !ctx.Record().IsGammaCorrected {
		t.Error("IsGammaCorrected not derived from the surface record")
	}
	ctx.StopRecording(GxmNotification{}, GxmNotification{})
}

func TestRenderContext_NullColorSurfaceDefaults(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	// stale state from a previous scene with no new surface bound
	ctx.Record().ColorSurface = GxmColorSurface{Gamma: 1, Downscale: true}
	ctx.Record().IsMaskUpdate = true
	ctx.SetContext(bus, target, defaultFeatures())

	rec := ctx.Record()
	if rec.ColorBaseFormat != GXM_COLOR_BASE_FORMAT_U8U8U8U8 {
		t.Errorf("ColorBaseFormat = %d, want U8U8U8U8 default", rec.ColorBaseFormat)
	}
	if rec.IsGammaCorrected || rec.IsMaskUpdate || rec.ColorSurface.Downscale {
		t.Error("null color surface did not reset derived state")
	}
	if rp := ctx.currentRenderPass.(*softRenderPass); rp.format != FORMAT_R8G8B8A8_UNORM {
		t.Errorf("render pass format = %d, want UNORM default", rp.format)
	}
}

func TestRenderContext_TextureBindingsInvalidatedPerPass(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.fragmentTextures[0].Sampler = struct{}{}
	ctx.vertexTextures[3].Sampler = struct{}{}
	ctx.lastFragTextureCount = 4
	ctx.lastVertTextureCount = 4

	ctx.SetContext(bus, target, defaultFeatures())

	if ctx.fragmentTextures[0].Sampler != nil || ctx.vertexTextures[3].Sampler != nil {
		t.Error("stale texture bindings survived the pass start")
	}
	if ctx.lastFragTextureCount != ^uint32(0) || ctx.lastVertTextureCount != ^uint32(0) {
		t.Error("texture counts not invalidated at pass start")
	}
}

func TestRenderContext_MaskInitializedWhenFeatureActive(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	features := defaultFeatures()
	features.UseMaskBit = true
	ctx.SetContext(bus, target, features)

	preOps := ctx.prerenderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(preOps, "uploadImage") {
		t.Errorf("mask fill not recorded in the prerender buffer: %v", preOps)
	}

	set, ok := ctx.rendertargetSet.(*softDescriptorSet)
	if !ok {
		t.Fatalf("descriptor set = %T, want *softDescriptorSet", ctx.rendertargetSet)
	}
	if !set.useMask || set.mask == nil {
		t.Error("descriptor set does not carry the mask attachment")
	}
}

func TestRenderContext_MaskUpdateSceneSkipsFill(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.Record().ColorSurface = GxmColorSurface{Data: 0x100000}
	ctx.Record().IsMaskUpdate = true
	features := defaultFeatures()
	features.UseMaskBit = true
	ctx.SetContext(bus, target, features)

	preOps := ctx.prerenderCmd.(*SoftwareCommandBuffer).Ops()
	if hasOp(preOps, "uploadImage") {
		t.Errorf("mask fill recorded for a mask-update scene: %v", preOps)
	}
}

// =============================================================================
// Submission
// =============================================================================

func TestRenderContext_SubmissionOrderAndFence(t *testing.T) {
	device, bus, ctx, target := newSceneContext(t)

	ctx.SetContext(bus, target, defaultFeatures())
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	subs := device.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	sub := subs[0]
	if sub.Prerender == sub.Render {
		t.Error("prerender and render share one command buffer")
	}
	preOps := sub.Prerender.Ops()
	if preOps[0] != "begin" || preOps[len(preOps)-1] != "end" {
		t.Errorf("prerender buffer not properly bracketed: %v", preOps)
	}
	if !sub.Fence.(*SoftwareFence).Signaled() {
		t.Error("submission fence never signaled")
	}
}

func TestRenderContext_StopRecordingQueuesNotification(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.Record().ColorSurface = GxmColorSurface{Data: 0x100000}
	ctx.SetContext(bus, target, defaultFeatures())
	ctx.StopRecording(GxmNotification{Address: 0x1000, Value: 1}, GxmNotification{})

	// one notification plus the surface-sync request for the bound surface
	if got := ctx.requestQueue.Len(); got != 2 {
		t.Errorf("queued requests = %d, want 2", got)
	}
}

func TestRenderContext_SurfaceSyncDisabled(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	features := defaultFeatures()
	features.DisableSurfaceSync = true
	ctx.Record().ColorSurface = GxmColorSurface{Data: 0x100000}
	ctx.SetContext(bus, target, features)
	ctx.StopRecording(GxmNotification{Address: 0x1000, Value: 1}, GxmNotification{})

	if got := ctx.requestQueue.Len(); got != 1 {
		t.Errorf("queued requests = %d, want 1 (notification only)", got)
	}
}

func TestRenderContext_OpenQueryClosedAtStop(t *testing.T) {
	device, bus, ctx, target := newSceneContext(t)

	ctx.SetContext(bus, target, defaultFeatures())
	ctx.SetVisibilityBuffer(struct{}{}, struct{}{}, 16)
	ctx.BeginVisibilityQuery(2)
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	ops := device.Submissions()[0].Render.Ops()
	if !hasOp(ops, "endQuery 2") {
		t.Errorf("open query not closed before submission: %v", ops)
	}
	if !hasOp(ops, "copyQueryResults first=0 count=3 offset=16") {
		t.Errorf("query results not copied for max used index: %v", ops)
	}
}

func TestRenderContext_QueryScopeBracketed(t *testing.T) {
	device, bus, ctx, target := newSceneContext(t)

	ctx.SetContext(bus, target, defaultFeatures())
	ctx.SetVisibilityBuffer(struct{}{}, struct{}{}, 0)
	ctx.BeginVisibilityQuery(0)
	ctx.EndVisibilityQuery()
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	ops := device.Submissions()[0].Render.Ops()
	begin, end := -1, -1
	for i, op := range ops {
		switch {
		case strings.HasPrefix(op, "beginQuery 0"):
			begin = i
		case strings.HasPrefix(op, "endQuery 0"):
			end = i
		}
	}
	if begin == -1 {
		t.Fatalf("no beginQuery recorded: %v", ops)
	}
	if end == -1 {
		t.Fatalf("no endQuery recorded: %v", ops)
	}
	if begin >= end {
		t.Errorf("beginQuery at %d not before endQuery at %d: %v", begin, end, ops)
	}
}

// =============================================================================
// Ring management
// =============================================================================

func TestRenderContext_SceneRingGrowth(t *testing.T) {
	device, bus, ctx, target := newSceneContext(t)

	for scene := 0; scene < RENDER_SCENES_PER_FRAME+1; scene++ {
		ctx.SetContext(bus, target, defaultFeatures())
		if !ctx.IsRecording() {
			t.Fatalf("scene %d failed to open", scene)
		}
		ctx.StopRecording(GxmNotification{}, GxmNotification{})
	}

	if got := len(device.Submissions()); got != RENDER_SCENES_PER_FRAME+1 {
		t.Errorf("submissions = %d, want %d", got, RENDER_SCENES_PER_FRAME+1)
	}
	if got := device.FenceCount(); got != RENDER_SCENES_PER_FRAME+1 {
		t.Errorf("fences created = %d, want %d", got, RENDER_SCENES_PER_FRAME+1)
	}
}

func TestRenderContext_FrameSlotTracksTimestamp(t *testing.T) {
	_, _, ctx, _ := newSceneContext(t)

	for frame := 0; frame < 2*RENDER_FRAMES_IN_FLIGHT; frame++ {
		want := int(ctx.frameTimestamp % RENDER_FRAMES_IN_FLIGHT)
		if ctx.currentFrameIdx != want {
			t.Fatalf("frame timestamp %d uses slot %d, want %d",
				ctx.frameTimestamp, ctx.currentFrameIdx, want)
		}
		ctx.FinishFrame()
	}
}

func TestRenderContext_FirstFramesUseDistinctSlots(t *testing.T) {
	_, _, ctx, _ := newSceneContext(t)

	seen := make(map[int]uint64)
	for frame := 0; frame < RENDER_FRAMES_IN_FLIGHT; frame++ {
		if prev, ok := seen[ctx.currentFrameIdx]; ok {
			t.Fatalf("frame timestamp %d reuses slot %d already used by frame %d",
				ctx.frameTimestamp, ctx.currentFrameIdx, prev)
		}
		seen[ctx.currentFrameIdx] = ctx.frameTimestamp
		ctx.FinishFrame()
	}
}

func TestRenderContext_FenceRingWrapsAcrossFrames(t *testing.T) {
	device, bus, ctx, target := newSceneContext(t)

	for scene := 0; scene < RENDER_SCENES_PER_FRAME; scene++ {
		ctx.SetContext(bus, target, defaultFeatures())
		ctx.StopRecording(GxmNotification{}, GxmNotification{})
	}
	ctx.FinishFrame()

	ctx.SetContext(bus, target, defaultFeatures())
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	subs := device.Submissions()
	first := subs[0].Fence
	wrapped := subs[RENDER_SCENES_PER_FRAME].Fence
	if first != wrapped {
		t.Error("fence ring did not wrap back to the first fence")
	}
	if got := device.FenceCount(); got != RENDER_SCENES_PER_FRAME {
		t.Errorf("fences created = %d, want %d (no growth expected)", got, RENDER_SCENES_PER_FRAME)
	}
}

func TestRenderContext_MultisampleDimensionsRestored(t *testing.T) {
	device := NewSoftwareDevice()
	bus := NewGuestBus()
	ctx := NewRenderContext(NewRenderState(device))
	target, err := NewRenderTarget(device, 960, 544, true)
	if err != nil {
		t.Fatalf("NewRenderTarget failed: %v", err)
	}

	ctx.SetContext(bus, target, defaultFeatures())

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(ops, "beginRenderPass 1920x1088") {
		t.Errorf("multisample scene not rendered at doubled dimensions: %v", ops)
	}

	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	if target.Width() != 960 || target.Height() != 544 {
		t.Errorf("target dimensions = %dx%d after scene, want 960x544", target.Width(), target.Height())
	}
}

func TestRenderContext_DownscaleSkipsMultisampleDoubling(t *testing.T) {
	device := NewSoftwareDevice()
	bus := NewGuestBus()
	ctx := NewRenderContext(NewRenderState(device))
	target, err := NewRenderTarget(device, 960, 544, true)
	if err != nil {
		t.Fatalf("NewRenderTarget failed: %v", err)
	}

	ctx.Record().ColorSurface = GxmColorSurface{Data: 0x100000, Downscale: true}
	ctx.SetContext(bus, target, defaultFeatures())

	ops := ctx.renderCmd.(*SoftwareCommandBuffer).Ops()
	if !hasOp(ops, "beginRenderPass 960x544") {
		t.Errorf("downscaled surface should render at native dimensions: %v", ops)
	}
	ctx.StopRecording(GxmNotification{}, GxmNotification{})
}

func TestRenderContext_NilTargetKeepsCurrent(t *testing.T) {
	_, bus, ctx, target := newSceneContext(t)

	ctx.SetContext(bus, target, defaultFeatures())
	ctx.StopRecording(GxmNotification{}, GxmNotification{})

	ctx.SetContext(bus, nil, defaultFeatures())

	if !ctx.IsRecording() {
		t.Error("SetContext with nil target did not reuse the current target")
	}
	if ctx.renderTarget != target {
		t.Error("render target replaced by nil")
	}
}
