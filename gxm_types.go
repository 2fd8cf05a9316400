// gxm_types.go - GXM draw-state records and emulated-memory handles

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
gxm_types.go - GXM Draw-State Records

The emulated GXM API describes draws through small records the guest writes
into its own address space: a color surface, a depth-stencil surface, blend
and stencil modes, and completion notifications. This file defines the Go
mirror of those records plus the Address handle used to touch guest memory.

Guest addresses are never host pointers. An Address is an offset into the
emulated address space and is only ever resolved against a MemoryBus, which
keeps the guest address space fully decoupled from the host one.
*/

package main

// Address is a guest-memory location. The zero value means "no address",
// mirroring the hardware convention of a null surface or notification slot.
type Address uint32

// Valid reports whether the address refers to guest memory.
func (a Address) Valid() bool {
	return a != 0
}

// Write32 stores a 32-bit value at the guest location through the bus.
func (a Address) Write32(bus MemoryBus, value uint32) {
	bus.Write32(uint32(a), value)
}

// Read32 loads a 32-bit value from the guest location through the bus.
func (a Address) Read32(bus MemoryBus) uint32 {
	return bus.Read32(uint32(a))
}

// GxmNotification is an emulated-hardware completion signal: once the GPU
// work for a scene finishes, Value is written to Address in guest memory.
// A zero Address disables the slot.
type GxmNotification struct {
	Address Address
	Value   uint32
}

// GxmColorSurface mirrors the guest's color surface record.
type GxmColorSurface struct {
	Data        Address
	ColorFormat uint32
	Gamma       uint32
	Downscale   bool
}

// GxmDepthStencilSurface mirrors the guest's depth-stencil surface record.
// ZlsControl carries the load/store control bits and the background stencil
// value, BackgroundDepth the clear depth used when the attachment is not
// force-loaded.
type GxmDepthStencilSurface struct {
	DepthData       Address
	StencilData     Address
	BackgroundDepth float32
	ZlsControl      uint32
}

// BackgroundStencil extracts the background stencil value from the control word.
func (s GxmDepthStencilSurface) BackgroundStencil() uint32 {
	return s.ZlsControl & GXM_DS_STENCIL_BITS_MASK
}

// GxmStencilState is one face's stencil configuration from the draw record.
type GxmStencilState struct {
	Func        uint32
	Ref         uint32
	CompareMask uint32
	WriteMask   uint32
}

// GxmRecord is the currently configured draw state for a context: the bound
// surfaces plus the pieces of pipeline state this layer pushes dynamically.
type GxmRecord struct {
	ColorSurface        GxmColorSurface
	DepthStencilSurface GxmDepthStencilSurface

	ColorBaseFormat  uint32
	IsGammaCorrected bool
	IsMaskUpdate     bool

	TwoSided     uint32
	FrontStencil GxmStencilState
	BackStencil  GxmStencilState

	DepthBiasUnits  int32
	DepthBiasFactor int32
	LineWidth       float32
}

// GxmTexture is the slice of a texture binding this layer tracks: enough to
// know whether a slot still holds a stale binding from a previous pass.
type GxmTexture struct {
	Data    Address
	Sampler interface{}
}

// Viewport in framebuffer coordinates, matching the explicit-API convention
// of a flipped, offset viewport computed by the draw-state translators.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Scissor rectangle in framebuffer coordinates.
type Scissor struct {
	X, Y          int32
	Width, Height uint32
}
