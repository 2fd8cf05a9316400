// features.go - Renderer feature flags and build-time feature registry

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import (
	"fmt"
	"runtime"
	"sort"
)

// FeatureState is an immutable snapshot of the renderer feature flags. The
// render context captures one at context-setup time and reads only the
// snapshot afterwards, so a scene's behavior never shifts mid-recording.
type FeatureState struct {
	// UseMaskBit exposes the render target's mask buffer to shaders as a
	// storage image.
	UseMaskBit bool
	// SupportMemoryMapping means GPU-visible guest memory: completion
	// notifications and surface sync become meaningful.
	SupportMemoryMapping bool
	// DisableSurfaceSync globally turns off the GPU-to-guest surface
	// copy-back even when memory mapping is supported.
	DisableSurfaceSync bool
}

// compiledFeatures tracks build-time feature flags via init() registration.
var compiledFeatures []string

func printFeatures() {
	fmt.Printf("Vita3K renderer %s\n", Version)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("Compiled features:")

	sort.Strings(compiledFeatures)
	for _, f := range compiledFeatures {
		fmt.Printf("  %s\n", f)
	}
	if len(compiledFeatures) == 0 {
		fmt.Println("  (none)")
	}
}
