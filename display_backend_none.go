// display_backend_none.go - frame-discarding display backend

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import "sync/atomic"

// HeadlessDisplay counts frames and discards them. Always compiled so
// automated runs and tests have a display target without a window system.
type HeadlessDisplay struct {
	started    bool
	config     DisplayConfig
	frameCount uint64
}

func NewHeadlessDisplay() (DisplayOutput, error) {
	return &HeadlessDisplay{
		config: DisplayConfig{
			Width:       DISPLAY_NATIVE_WIDTH,
			Height:      DISPLAY_NATIVE_HEIGHT,
			Scale:       1,
			RefreshRate: 60,
		},
	}, nil
}

func (h *HeadlessDisplay) Start() error {
	h.started = true
	return nil
}

func (h *HeadlessDisplay) Stop() error {
	h.started = false
	return nil
}

func (h *HeadlessDisplay) Close() error {
	h.started = false
	return nil
}

func (h *HeadlessDisplay) IsStarted() bool {
	return h.started
}

func (h *HeadlessDisplay) SetDisplayConfig(config DisplayConfig) error {
	h.config = config
	return nil
}

func (h *HeadlessDisplay) GetDisplayConfig() DisplayConfig {
	return h.config
}

func (h *HeadlessDisplay) UpdateFrame(buffer []byte, width, height int) error {
	atomic.AddUint64(&h.frameCount, 1)
	return nil
}

func (h *HeadlessDisplay) WaitForVSync() error {
	return nil
}

func (h *HeadlessDisplay) GetFrameCount() uint64 {
	return atomic.LoadUint64(&h.frameCount)
}
