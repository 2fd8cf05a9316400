// pipeline_cache.go - Render pass cache keyed by surface format and DS control

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

// renderPassKey identifies a render pass: the color format plus the
// depth-stencil load/store control bits. The background stencil value does
// not participate, it is a clear value, not pass state.
type renderPassKey struct {
	format SurfaceFormat
	zls    uint32
}

// PipelineCache hands out render passes for a given surface format and
// depth-stencil control, creating and caching them on first use. Pipeline
// and shader caching proper live elsewhere; the render context only consumes
// this one operation.
type PipelineCache struct {
	device       GPUDevice
	renderPasses map[renderPassKey]RenderPassHandle
}

// NewPipelineCache creates an empty cache over the device.
func NewPipelineCache(device GPUDevice) *PipelineCache {
	return &PipelineCache{
		device:       device,
		renderPasses: make(map[renderPassKey]RenderPassHandle),
	}
}

// RetrieveRenderPass returns the render pass for the format and control
// word, creating it on a cache miss. Creation failure is logged and yields
// a nil handle; the caller continues per the renderer's propagation policy.
func (pc *PipelineCache) RetrieveRenderPass(format SurfaceFormat, zlsControl uint32) RenderPassHandle {
	key := renderPassKey{
		format: format,
		zls:    zlsControl & (GXM_DS_FORCE_LOAD | GXM_DS_FORCE_STORE),
	}
	if rp, ok := pc.renderPasses[key]; ok {
		return rp
	}

	rp, err := pc.device.CreateRenderPass(format, key.zls)
	if err != nil {
		logError("could not create render pass for format %d: %v", format, err)
		return nil
	}
	pc.renderPasses[key] = rp
	return rp
}

// Size reports the number of cached render passes.
func (pc *PipelineCache) Size() int {
	return len(pc.renderPasses)
}
