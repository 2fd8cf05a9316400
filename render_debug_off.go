// render_debug_off.go - Release-build assertion switch

//go:build !debug

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

const debugAssertions = false
