// display_output.go - display backend interface for presenting rendered frames

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import "fmt"

// PS Vita native panel dimensions
const (
	DISPLAY_NATIVE_WIDTH  = 960
	DISPLAY_NATIVE_HEIGHT = 544
)

// DisplayConfig contains hardware-independent presentation settings.
type DisplayConfig struct {
	Width       int
	Height      int
	Scale       int  // Integer scaling factor for the window
	VSync       bool // Whether to sync frame updates to display refresh
	RefreshRate int  // Target refresh rate in Hz
}

// DisplayOutput is the minimal surface a presentation backend must
// implement. Frames arrive as raw RGBA pixels.
type DisplayOutput interface {
	Start() error
	Stop() error
	Close() error
	IsStarted() bool

	SetDisplayConfig(config DisplayConfig) error
	GetDisplayConfig() DisplayConfig
	UpdateFrame(buffer []byte, width, height int) error

	WaitForVSync() error
	GetFrameCount() uint64
}

// Predefined display backend types
const (
	DISPLAY_BACKEND_EBITEN = iota // Pure Go Ebiten backend
	DISPLAY_BACKEND_NONE          // Discards frames, for headless runs
)

// NewDisplayOutput creates a display output using the specified backend.
func NewDisplayOutput(backend int) (DisplayOutput, error) {
	switch backend {
	case DISPLAY_BACKEND_EBITEN:
		return NewEbitenDisplay()
	case DISPLAY_BACKEND_NONE:
		return NewHeadlessDisplay()
	}
	return nil, &RenderError{
		Operation: "display backend creation",
		Details:   fmt.Sprintf("unknown backend type: %d", backend),
	}
}
