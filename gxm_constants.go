// gxm_constants.go - GXM surface format and draw-state constants

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

// Color base formats of the emulated GXM API. Only the formats the
// render-context layer has to distinguish are listed here; the full
// translation table lives with the texture/surface format converters.
const (
	GXM_COLOR_BASE_FORMAT_U8U8U8U8 = iota
	GXM_COLOR_BASE_FORMAT_U8U8U8
	GXM_COLOR_BASE_FORMAT_U5U6U5
	GXM_COLOR_BASE_FORMAT_U4U4U4U4
	GXM_COLOR_BASE_FORMAT_U2U10U10U10
	GXM_COLOR_BASE_FORMAT_F16F16F16F16
)

// Depth-stencil control word layout. The low byte carries the background
// stencil value, the upper bits carry load/store control for the attachment.
const (
	GXM_DS_STENCIL_BITS_MASK = 0x000000FF
	GXM_DS_FORCE_LOAD        = 0x00000100
	GXM_DS_FORCE_STORE       = 0x00000200
)

// Stencil compare functions as encoded in the draw record.
const (
	GXM_STENCIL_FUNC_NEVER = iota
	GXM_STENCIL_FUNC_LESS
	GXM_STENCIL_FUNC_EQUAL
	GXM_STENCIL_FUNC_LESS_EQUAL
	GXM_STENCIL_FUNC_GREATER
	GXM_STENCIL_FUNC_NOT_EQUAL
	GXM_STENCIL_FUNC_GREATER_EQUAL
	GXM_STENCIL_FUNC_ALWAYS
)

// Two-sided stencil mode.
const (
	GXM_TWO_SIDED_DISABLED = 0
	GXM_TWO_SIDED_ENABLED  = 1
)

// SurfaceFormat is the backend-neutral render-surface format handed to the
// pipeline cache. Backends map it onto their native format enumeration.
type SurfaceFormat uint32

const (
	FORMAT_R8G8B8A8_UNORM SurfaceFormat = iota
	FORMAT_R8G8B8A8_SRGB
	FORMAT_R5G6B5_UNORM
	FORMAT_R4G4B4A4_UNORM
	FORMAT_A2R10G10B10_UNORM
	FORMAT_R16G16B16A16_SFLOAT
	FORMAT_D32_SFLOAT_S8_UINT
)

// IsDepthStencil reports whether the format is the depth-stencil attachment
// format rather than a color format.
func (f SurfaceFormat) IsDepthStencil() bool {
	return f == FORMAT_D32_SFLOAT_S8_UINT
}

// Color format words carry the base format in their low bits; the remaining
// bits select swizzle and packing variants this layer does not distinguish.
const GXM_COLOR_FORMAT_BASE_MASK = 0x0000001F

// gxmGetBaseFormat extracts the base format from a full color format word.
func gxmGetBaseFormat(colorFormat uint32) uint32 {
	return colorFormat & GXM_COLOR_FORMAT_BASE_MASK
}

// translateColorFormat maps a GXM color base format onto the backend-neutral
// surface format. Unknown base formats fall back to 32-bit RGBA, matching the
// hardware's default surface layout.
func translateColorFormat(baseFormat uint32) SurfaceFormat {
	switch baseFormat {
	case GXM_COLOR_BASE_FORMAT_U8U8U8U8, GXM_COLOR_BASE_FORMAT_U8U8U8:
		return FORMAT_R8G8B8A8_UNORM
	case GXM_COLOR_BASE_FORMAT_U5U6U5:
		return FORMAT_R5G6B5_UNORM
	case GXM_COLOR_BASE_FORMAT_U4U4U4U4:
		return FORMAT_R4G4B4A4_UNORM
	case GXM_COLOR_BASE_FORMAT_U2U10U10U10:
		return FORMAT_A2R10G10B10_UNORM
	case GXM_COLOR_BASE_FORMAT_F16F16F16F16:
		return FORMAT_R16G16B16A16_SFLOAT
	default:
		return FORMAT_R8G8B8A8_UNORM
	}
}

// Render-context provisioning. A frame may contain several scenes; each
// scene needs one prerender/render command-buffer pair and one fence. The
// rings grow at runtime if a title records more scenes than provisioned.
const (
	RENDER_FRAMES_IN_FLIGHT = 3
	RENDER_SCENES_PER_FRAME = 8
	MAX_GXM_TEXTURES        = 16
)

// StencilFace selects which stencil face a dynamic-state update applies to.
type StencilFace int

const (
	STENCIL_FACE_FRONT StencilFace = iota
	STENCIL_FACE_BACK
)
