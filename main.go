// main.go - entry point for the Vita3K rendering demo harness

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func boilerPlate() {
	fmt.Println("Vita3K rendering harness")
	fmt.Println("(c) 2024 - 2026 The Vita3K Go contributors")
	fmt.Println("https://github.com/8bitDream/Vita3K")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	boilerPlate()

	var (
		backendName string
		headless    bool
		frames      int
		scenes      int
		multisample bool
		useMaskBit  bool
		noSync      bool
		showInfo    bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&backendName, "backend", "vulkan", "GPU backend: vulkan or software")
	flagSet.BoolVar(&headless, "no-display", false, "Discard frames instead of opening a window")
	flagSet.IntVar(&frames, "frames", 60, "Number of frames to render")
	flagSet.IntVar(&scenes, "scenes", 2, "Scenes per frame")
	flagSet.BoolVar(&multisample, "msaa", false, "Render at doubled multisample dimensions")
	flagSet.BoolVar(&useMaskBit, "mask-bit", false, "Enable the fragment mask attachment")
	flagSet.BoolVar(&noSync, "no-surface-sync", false, "Disable color surface readback to guest memory")
	flagSet.BoolVar(&showInfo, "info", false, "Print build information and exit")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./vita3k-render [-backend vulkan|software] [-frames N] [-scenes N] [-msaa] [-mask-bit] [-no-display]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if showInfo {
		printFeatures()
		os.Exit(0)
	}

	var backend int
	switch backendName {
	case "vulkan":
		backend = RENDER_BACKEND_VULKAN
	case "software":
		backend = RENDER_BACKEND_SOFTWARE
	default:
		fmt.Printf("Error: unknown backend %q\n", backendName)
		os.Exit(1)
	}

	device, err := NewGPUDevice(backend)
	if err != nil && backend == RENDER_BACKEND_VULKAN {
		fmt.Printf("Warning: Vulkan unavailable (%v), falling back to software\n", err)
		device, err = NewGPUDevice(RENDER_BACKEND_SOFTWARE)
	}
	if err != nil {
		fmt.Printf("Failed to initialize GPU backend: %v\n", err)
		os.Exit(1)
	}
	defer device.Close()

	displayBackend := DISPLAY_BACKEND_EBITEN
	if headless {
		displayBackend = DISPLAY_BACKEND_NONE
	}
	display, err := NewDisplayOutput(displayBackend)
	if err != nil {
		fmt.Printf("Warning: display unavailable (%v), discarding frames\n", err)
		display, _ = NewDisplayOutput(DISPLAY_BACKEND_NONE)
	}
	if err := display.Start(); err != nil {
		fmt.Printf("Failed to start display: %v\n", err)
		os.Exit(1)
	}
	defer display.Close()

	bus := NewGuestBus()
	state := NewRenderState(device)
	ctx := NewRenderContext(state)
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	target, err := NewRenderTarget(device, DISPLAY_NATIVE_WIDTH, DISPLAY_NATIVE_HEIGHT, multisample)
	if err != nil {
		fmt.Printf("Failed to create render target: %v\n", err)
		os.Exit(1)
	}

	features := FeatureState{
		UseMaskBit:           useMaskBit,
		SupportMemoryMapping: true,
		DisableSurfaceSync:   noSync,
	}

	// Guest-visible surfaces and notification slots
	const (
		colorSurfaceAddr = Address(0x100000)
		depthSurfaceAddr = Address(0x400000)
		notifBase        = Address(0x1000)
	)

	color := &GxmColorSurface{
		Data:        colorSurfaceAddr,
		ColorFormat: GXM_COLOR_BASE_FORMAT_U8U8U8U8,
	}
	depth := &GxmDepthStencilSurface{
		DepthData:       depthSurfaceAddr,
		StencilData:     depthSurfaceAddr + 0x200000,
		BackgroundDepth: 1.0,
	}

	sequence := uint32(1)
	for frame := 0; frame < frames; frame++ {
		for scene := 0; scene < scenes; scene++ {
			rec := ctx.Record()
			rec.ColorSurface = *color
			rec.DepthStencilSurface = *depth
			ctx.SetContext(bus, target, features)
			if !ctx.IsRecording() {
				fmt.Println("Error: scene failed to start recording")
				os.Exit(1)
			}

			ctx.SetViewport(Viewport{Width: DISPLAY_NATIVE_WIDTH, Height: DISPLAY_NATIVE_HEIGHT, MaxDepth: 1})
			ctx.SetScissor(Scissor{Width: DISPLAY_NATIVE_WIDTH, Height: DISPLAY_NATIVE_HEIGHT})

			notif := GxmNotification{Address: notifBase + Address(4*(scene%2)), Value: sequence}
			ctx.StopRecording(notif, GxmNotification{})
			state.WaitForNotification(bus, notif)
			sequence++
		}

		if frame >= RENDER_FRAMES_IN_FLIGHT {
			ctx.WaitForFrame(ctx.FrameTimestamp() - RENDER_FRAMES_IN_FLIGHT)
		}
		ctx.FinishFrame()

		if info := state.SurfaceCache().ColorSurface(colorSurfaceAddr); info != nil {
			if pixels := device.ReadImage(info.Image); pixels != nil {
				display.UpdateFrame(pixels, int(info.Width), int(info.Height))
			}
		}
		display.WaitForVSync()
	}

	fmt.Printf("Rendered %d frames (%d scenes)\n", frames, frames*scenes)
}
