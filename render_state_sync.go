// render_state_sync.go - Per-draw dynamic pipeline state synchronization

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_state_sync.go - Dynamic State Sync Helpers

Small helpers pushing per-draw dynamic pipeline state from the context's
draw record into the active render command buffer: depth bias, line width,
stencil configuration per face, viewport and scissor. Draw-call translation
calls these as the guest changes state mid-scene; StartRecording calls them
once to establish the scene's baseline.
*/

package main

// syncDepthBias pushes the record's depth bias into the render buffer.
func syncDepthBias(ctx *RenderContext) {
	if !ctx.isRecording {
		return
	}
	ctx.renderCmd.SetDepthBias(float32(ctx.record.DepthBiasUnits), float32(ctx.record.DepthBiasFactor))
}

// syncPointLineWidth pushes the record's line width. setWidth is false when
// the caller only changed point-size state, which has no dynamic command.
func syncPointLineWidth(ctx *RenderContext, setWidth bool) {
	if !ctx.isRecording || !setWidth {
		return
	}
	width := ctx.record.LineWidth
	if width == 0 {
		width = 1
	}
	ctx.renderCmd.SetLineWidth(width)
}

// syncStencilFunc pushes one face's stencil configuration.
func syncStencilFunc(ctx *RenderContext, face StencilFace) {
	if !ctx.isRecording {
		return
	}
	st := ctx.record.FrontStencil
	if face == STENCIL_FACE_BACK {
		st = ctx.record.BackStencil
	}
	ctx.renderCmd.SetStencilState(face, st)
}

// syncMask reinitializes the target's mask image to fully visible before
// the render pass opens. A mask-update scene writes the mask itself and is
// left alone. The fill is recorded into the prerender buffer so it executes
// before any draw of the scene.
func syncMask(ctx *RenderContext) {
	if !ctx.isRecording || ctx.renderTarget == nil {
		return
	}
	if ctx.record.IsMaskUpdate {
		return
	}
	rt := ctx.renderTarget
	mask := make([]byte, rt.width*rt.height*4)
	for i := range mask {
		mask[i] = 0xFF
	}
	ctx.prerenderCmd.UploadImage(rt.mask, mask)
}

// SetViewport updates the context's viewport and pushes it when recording.
func (ctx *RenderContext) SetViewport(vp Viewport) {
	ctx.viewport = vp
	if ctx.isRecording {
		ctx.renderCmd.SetViewport(vp)
	}
}

// SetScissor updates the context's scissor and pushes it when recording.
func (ctx *RenderContext) SetScissor(sc Scissor) {
	ctx.scissor = sc
	if ctx.isRecording {
		ctx.renderCmd.SetScissor(sc)
	}
}

// SetVisibilityBuffer selects the buffer receiving occlusion-query results
// for the coming scenes.
func (ctx *RenderContext) SetVisibilityBuffer(pool QueryPoolHandle, buffer BufferHandle, offset uint32) {
	ctx.currentVisibilityBuffer = &VisibilityBuffer{
		QueryPool:    pool,
		GPUBuffer:    buffer,
		BufferOffset: offset,
	}
}

// BeginVisibilityQuery opens an occlusion-query scope for the given index.
func (ctx *RenderContext) BeginVisibilityQuery(index uint32) {
	if ctx.currentVisibilityBuffer == nil {
		logError("visibility query begun without a visibility buffer")
		return
	}
	if ctx.isInQuery {
		logError("visibility query begun while one is already open")
		return
	}
	ctx.renderCmd.BeginQuery(ctx.currentVisibilityBuffer.QueryPool, index)
	ctx.isInQuery = true
	ctx.currentQueryIdx = index
	if int(index) > ctx.visibilityMaxUsedIdx {
		ctx.visibilityMaxUsedIdx = int(index)
	}
}

// EndVisibilityQuery closes the open occlusion-query scope.
func (ctx *RenderContext) EndVisibilityQuery() {
	if !ctx.isInQuery {
		return
	}
	ctx.renderCmd.EndQuery(ctx.currentVisibilityBuffer.QueryPool, ctx.currentQueryIdx)
	ctx.isInQuery = false
}
