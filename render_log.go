// render_log.go - Logging helpers for the rendering subsystem

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import "fmt"

// logWarn prints a non-fatal warning. The renderer never propagates errors
// to its callers; protocol violations and degraded conditions are surfaced
// here and execution continues.
func logWarn(format string, args ...interface{}) {
	fmt.Printf("Warning: "+format+"\n", args...)
}

// logError prints an error condition that the renderer tolerates at runtime.
func logError(format string, args ...interface{}) {
	fmt.Printf("Error: "+format+"\n", args...)
}

// debugAssert panics in debug builds (-tags debug) and is a no-op otherwise.
// Used where continuing is a documented fail-soft choice rather than a safe
// recovery, so debug runs fail loudly at the exact spot.
func debugAssert(cond bool, format string, args ...interface{}) {
	if debugAssertions && !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
