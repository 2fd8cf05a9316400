//go:build !headless

// display_backend_ebiten.go - Ebiten display backend

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	xdraw "golang.org/x/image/draw"
)

func init() {
	compiledFeatures = append(compiledFeatures, "Ebiten display backend")
}

type EbitenDisplay struct {
	running     bool
	window      *ebiten.Image
	width       int
	height      int
	scale       int
	frameBuffer []byte
	bufferMutex sync.RWMutex
	frameCount  uint64
	refreshRate int
	vsyncChan   chan struct{}
	done        chan struct{}

	scaled *image.RGBA
}

func NewEbitenDisplay() (DisplayOutput, error) {
	return &EbitenDisplay{
		width:       DISPLAY_NATIVE_WIDTH,
		height:      DISPLAY_NATIVE_HEIGHT,
		scale:       1,
		frameBuffer: make([]byte, DISPLAY_NATIVE_WIDTH*DISPLAY_NATIVE_HEIGHT*4),
		refreshRate: 60,
		vsyncChan:   make(chan struct{}, 1),
		done:        make(chan struct{}),
	}, nil
}

func (ed *EbitenDisplay) Start() error {
	if ed.running {
		return nil
	}
	ed.running = true
	ebiten.SetWindowSize(ed.width*ed.scale, ed.height*ed.scale)
	ebiten.SetWindowTitle("Vita3K")
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)

	go func() {
		defer func() {
			ed.running = false
			select {
			case <-ed.done:
			default:
				close(ed.done)
			}
		}()
		if err := ebiten.RunGame(ed); err != nil {
			logError("Ebiten: %v", err)
		}
	}()

	// Wait for first Draw call so Ebiten is ready before frames arrive
	<-ed.vsyncChan
	return nil
}

func (ed *EbitenDisplay) Stop() error {
	ed.running = false
	return nil
}

func (ed *EbitenDisplay) Close() error {
	return ed.Stop()
}

func (ed *EbitenDisplay) IsStarted() bool {
	return ed.running
}

func (ed *EbitenDisplay) Done() <-chan struct{} {
	return ed.done
}

// UpdateFrame accepts an RGBA frame at any resolution and rescales it to
// the configured display size when they differ. Render targets may carry
// doubled multisample dimensions or game-chosen sizes.
func (ed *EbitenDisplay) UpdateFrame(buffer []byte, width, height int) error {
	if len(buffer) < width*height*4 {
		return &RenderError{Operation: "frame update", Details: "buffer smaller than declared dimensions"}
	}

	ed.bufferMutex.Lock()
	defer ed.bufferMutex.Unlock()

	if width == ed.width && height == ed.height {
		copy(ed.frameBuffer, buffer)
		return nil
	}

	src := &image.RGBA{
		Pix:    buffer,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	if ed.scaled == nil || ed.scaled.Rect.Dx() != ed.width || ed.scaled.Rect.Dy() != ed.height {
		ed.scaled = image.NewRGBA(image.Rect(0, 0, ed.width, ed.height))
	}
	xdraw.ApproxBiLinear.Scale(ed.scaled, ed.scaled.Rect, src, src.Rect, xdraw.Src, nil)
	copy(ed.frameBuffer, ed.scaled.Pix)
	return nil
}

func (ed *EbitenDisplay) SetDisplayConfig(config DisplayConfig) error {
	ed.bufferMutex.Lock()
	defer ed.bufferMutex.Unlock()

	width := config.Width
	height := config.Height
	if width <= 0 {
		width = DISPLAY_NATIVE_WIDTH
	}
	if height <= 0 {
		height = DISPLAY_NATIVE_HEIGHT
	}
	ed.width = width
	ed.height = height
	if config.Scale > 0 {
		ed.scale = config.Scale
	}
	if config.RefreshRate > 0 {
		ed.refreshRate = config.RefreshRate
	}
	newSize := ed.width * ed.height * 4
	if len(ed.frameBuffer) != newSize {
		ed.frameBuffer = make([]byte, newSize)
	}
	ebiten.SetWindowSize(ed.width*ed.scale, ed.height*ed.scale)
	if ed.window != nil {
		ed.window.Dispose()
		ed.window = nil
	}
	return nil
}

func (ed *EbitenDisplay) GetDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Width:       ed.width,
		Height:      ed.height,
		Scale:       ed.scale,
		VSync:       true,
		RefreshRate: ed.refreshRate,
	}
}

func (ed *EbitenDisplay) WaitForVSync() error {
	<-ed.vsyncChan
	return nil
}

func (ed *EbitenDisplay) GetFrameCount() uint64 {
	return atomic.LoadUint64(&ed.frameCount)
}

func (ed *EbitenDisplay) Update() error {
	if ebiten.IsWindowBeingClosed() || !ed.running {
		return ebiten.Termination
	}
	return nil
}

func (ed *EbitenDisplay) Draw(screen *ebiten.Image) {
	if ed.window == nil {
		ed.window = ebiten.NewImage(ed.width, ed.height)
	}

	ed.bufferMutex.RLock()
	ed.window.WritePixels(ed.frameBuffer)
	ed.bufferMutex.RUnlock()
	screen.DrawImage(ed.window, nil)

	atomic.AddUint64(&ed.frameCount, 1)

	select {
	case ed.vsyncChan <- struct{}{}:
	default:
	}
}

func (ed *EbitenDisplay) Layout(_, _ int) (int, int) {
	return ed.width, ed.height
}
