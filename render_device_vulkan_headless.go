// render_device_vulkan_headless.go - headless build stub for the Vulkan backend

//go:build headless

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

// NewVulkanDevice is unavailable in headless builds. Callers fall back to
// the software device.
func NewVulkanDevice() (GPUDevice, error) {
	return nil, &RenderError{Operation: "vulkan init", Details: "not compiled in (headless build)"}
}
