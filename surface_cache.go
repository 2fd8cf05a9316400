// surface_cache.go - Guest surface to GPU image/framebuffer cache

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
surface_cache.go - Surface Cache

Bridges guest surface records to GPU resources: images keyed by guest
address, framebuffers keyed by their attachments and render pass. Eviction
policy is out of this layer's scope; entries live for the cache's lifetime.

The cache also owns surface synchronization: when memory mapping is
supported, the color surface rendered this scene must be copied back into
guest memory once the GPU is done. PerformSurfaceSync hands out a token at
submission time; the wait thread returns it through PerformPostSurfaceSync
after the submission's fence has signaled.
*/

package main

// ColorSurfaceCacheInfo is the opaque token carried by a
// PostSurfaceSyncRequest. It names the guest destination and the GPU image
// holding the rendered pixels.
type ColorSurfaceCacheInfo struct {
	Data          Address
	Width, Height uint32
	Format        SurfaceFormat
	Image         ImageViewHandle
}

type framebufferKey struct {
	color ImageViewHandle
	ds    ImageViewHandle
	rp    RenderPassHandle
}

// SurfaceCache maps guest surfaces to device images and framebuffers.
type SurfaceCache struct {
	device GPUDevice
	target *RenderTarget

	colorSurfaces map[Address]*ColorSurfaceCacheInfo
	dsSurfaces    map[Address]ImageViewHandle
	framebuffers  map[framebufferKey]FramebufferHandle

	// scratch attachments for surfaces with no guest backing, sized to the
	// current render target.
	scratchColor ImageViewHandle
	scratchDS    ImageViewHandle

	// color surface of the scene being recorded, candidate for post-sync.
	currentColor *ColorSurfaceCacheInfo
}

// NewSurfaceCache creates an empty cache over the device.
func NewSurfaceCache(device GPUDevice) *SurfaceCache {
	return &SurfaceCache{
		device:        device,
		colorSurfaces: make(map[Address]*ColorSurfaceCacheInfo),
		dsSurfaces:    make(map[Address]ImageViewHandle),
		framebuffers:  make(map[framebufferKey]FramebufferHandle),
	}
}

// SetRenderTarget points the cache at the target subsequent retrievals
// render into and drops scratch attachments sized for the previous one.
func (sc *SurfaceCache) SetRenderTarget(rt *RenderTarget) {
	if sc.target != rt {
		sc.scratchColor = nil
		sc.scratchDS = nil
	}
	sc.target = rt
}

// RetrieveFramebufferHandle resolves the scene's attachments and returns the
// framebuffer for them under the given render pass, creating and caching
// images and framebuffer as needed. A nil surface record selects a scratch
// attachment sized to the render target. Returns the framebuffer, the color
// and depth-stencil attachment views, and the framebuffer height.
func (sc *SurfaceCache) RetrieveFramebufferHandle(bus MemoryBus, color *GxmColorSurface, ds *GxmDepthStencilSurface, rp RenderPassHandle, width, height uint32) (FramebufferHandle, ImageViewHandle, ImageViewHandle, uint32) {
	colorView := sc.retrieveColorView(color, width, height)
	dsView := sc.retrieveDSView(ds, width, height)

	key := framebufferKey{color: colorView, ds: dsView, rp: rp}
	fb, ok := sc.framebuffers[key]
	if !ok {
		var err error
		fb, err = sc.device.CreateFramebuffer(rp, colorView, dsView, width, height)
		if err != nil {
			logError("could not create framebuffer: %v", err)
			return nil, colorView, dsView, height
		}
		sc.framebuffers[key] = fb
	}
	return fb, colorView, dsView, height
}

func (sc *SurfaceCache) retrieveColorView(color *GxmColorSurface, width, height uint32) ImageViewHandle {
	if color == nil || !color.Data.Valid() {
		sc.currentColor = nil
		if sc.scratchColor == nil {
			view, err := sc.device.CreateImage(width, height, FORMAT_R8G8B8A8_UNORM)
			if err != nil {
				logError("could not create scratch color attachment: %v", err)
				return nil
			}
			sc.scratchColor = view
		}
		return sc.scratchColor
	}

	info, ok := sc.colorSurfaces[color.Data]
	if !ok {
		format := translateColorFormat(gxmGetBaseFormat(color.ColorFormat))
		view, err := sc.device.CreateImage(width, height, format)
		if err != nil {
			logError("could not create color surface image: %v", err)
			return nil
		}
		info = &ColorSurfaceCacheInfo{
			Data:   color.Data,
			Width:  width,
			Height: height,
			Format: format,
			Image:  view,
		}
		sc.colorSurfaces[color.Data] = info
	}
	sc.currentColor = info
	return info.Image
}

func (sc *SurfaceCache) retrieveDSView(ds *GxmDepthStencilSurface, width, height uint32) ImageViewHandle {
	if ds == nil || (!ds.DepthData.Valid() && !ds.StencilData.Valid()) {
		if sc.scratchDS == nil {
			view, err := sc.device.CreateImage(width, height, FORMAT_D32_SFLOAT_S8_UINT)
			if err != nil {
				logError("could not create scratch depth-stencil attachment: %v", err)
				return nil
			}
			sc.scratchDS = view
		}
		return sc.scratchDS
	}

	key := ds.DepthData
	if !key.Valid() {
		key = ds.StencilData
	}
	view, ok := sc.dsSurfaces[key]
	if !ok {
		var err error
		view, err = sc.device.CreateImage(width, height, FORMAT_D32_SFLOAT_S8_UINT)
		if err != nil {
			logError("could not create depth-stencil surface image: %v", err)
			return nil
		}
		sc.dsSurfaces[key] = view
	}
	return view
}

// ColorSurface returns the cached entry for a guest color surface address,
// or nil if the address was never rendered to.
func (sc *SurfaceCache) ColorSurface(addr Address) *ColorSurfaceCacheInfo {
	return sc.colorSurfaces[addr]
}

// PerformSurfaceSync returns the post-sync token for the scene's color
// surface, or nil when the scene rendered into a surface with no guest
// backing. Called by the render thread at submission time.
func (sc *SurfaceCache) PerformSurfaceSync() *ColorSurfaceCacheInfo {
	info := sc.currentColor
	sc.currentColor = nil
	return info
}

// PerformPostSurfaceSync copies the rendered surface back into guest
// memory. Called by the wait thread after the scene's fence has signaled;
// the cache performs its own synchronization, none is required here.
func (sc *SurfaceCache) PerformPostSurfaceSync(bus MemoryBus, info *ColorSurfaceCacheInfo) {
	if info == nil {
		return
	}
	pixels := sc.device.ReadImage(info.Image)
	if pixels == nil {
		return
	}
	guest, ok := bus.(*GuestBus)
	if !ok {
		return
	}
	guest.WriteRange(uint32(info.Data), pixels)
}
