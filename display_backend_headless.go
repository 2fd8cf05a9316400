//go:build headless

// display_backend_headless.go - headless build stub for the Ebiten backend

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

// NewEbitenDisplay is unavailable in headless builds. Callers fall back to
// the frame-discarding backend.
func NewEbitenDisplay() (DisplayOutput, error) {
	return nil, &RenderError{Operation: "display backend creation", Details: "Ebiten not compiled in (headless build)"}
}
