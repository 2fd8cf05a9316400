// render_device_software.go - Software reference implementation of the GPU device

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_device_software.go - Software GPU Device

Software implementation of the GPUDevice surface. Command buffers record
their operations as an inspectable log instead of GPU commands, fences are
plain condition-variable objects, and submission "completes" synchronously.

Rasterization is deliberately absent: this layer's contract is command
ordering and synchronization, which the op log captures exactly, and that is
what the tests assert against.
*/

package main

import (
	"fmt"
	"sync"
)

// SoftwareFence is a host-side fence. Submit signals it synchronously; tests
// may create one through CreateFence and signal it by hand to model GPU work
// that has not completed yet.
type SoftwareFence struct {
	mutex    sync.Mutex
	cond     *sync.Cond
	signaled bool
}

func newSoftwareFence() *SoftwareFence {
	f := &SoftwareFence{}
	f.cond = sync.NewCond(&f.mutex)
	return f
}

// Signal marks the fence as completed and wakes all waiters.
func (f *SoftwareFence) Signal() {
	f.mutex.Lock()
	f.signaled = true
	f.mutex.Unlock()
	f.cond.Broadcast()
}

// Signaled reports the fence state without blocking.
func (f *SoftwareFence) Signaled() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.signaled
}

func (f *SoftwareFence) wait() {
	f.mutex.Lock()
	for !f.signaled {
		f.cond.Wait()
	}
	f.mutex.Unlock()
}

func (f *SoftwareFence) reset() {
	f.mutex.Lock()
	f.signaled = false
	f.mutex.Unlock()
}

// SoftwareCommandBuffer records its operations as formatted strings.
type SoftwareCommandBuffer struct {
	frame int
	kind  CommandPoolKind

	mutex  sync.Mutex
	began  bool
	ended  bool
	inPass bool
	ops    []string
}

func (cb *SoftwareCommandBuffer) record(format string, args ...interface{}) {
	cb.ops = append(cb.ops, fmt.Sprintf(format, args...))
}

// Ops returns a copy of the recorded operation log.
func (cb *SoftwareCommandBuffer) Ops() []string {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	out := make([]string, len(cb.ops))
	copy(out, cb.ops)
	return out
}

func (cb *SoftwareCommandBuffer) Begin() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.began && !cb.ended {
		return &RenderError{Operation: "command buffer begin", Details: "already recording"}
	}
	cb.began = true
	cb.ended = false
	cb.inPass = false
	cb.ops = cb.ops[:0]
	cb.record("begin")
	return nil
}

func (cb *SoftwareCommandBuffer) End() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if !cb.began || cb.ended {
		return &RenderError{Operation: "command buffer end", Details: "not recording"}
	}
	if cb.inPass {
		return &RenderError{Operation: "command buffer end", Details: "render pass still open"}
	}
	cb.ended = true
	cb.record("end")
	return nil
}

func (cb *SoftwareCommandBuffer) BeginRenderPass(rp RenderPassHandle, fb FramebufferHandle, width, height uint32, clearDepth float32, clearStencil uint32) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.inPass {
		logError("software cmd: beginRenderPass while already in a pass")
		return
	}
	cb.inPass = true
	cb.record("beginRenderPass %dx%d clearDepth=%g clearStencil=%d", width, height, clearDepth, clearStencil)
}

func (cb *SoftwareCommandBuffer) EndRenderPass() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if !cb.inPass {
		logError("software cmd: endRenderPass while not in a pass")
		return
	}
	cb.inPass = false
	cb.record("endRenderPass")
}

func (cb *SoftwareCommandBuffer) SetViewport(vp Viewport) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("setViewport %gx%g@%g,%g", vp.Width, vp.Height, vp.X, vp.Y)
}

func (cb *SoftwareCommandBuffer) SetScissor(sc Scissor) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("setScissor %dx%d@%d,%d", sc.Width, sc.Height, sc.X, sc.Y)
}

func (cb *SoftwareCommandBuffer) SetDepthBias(constant, slope float32) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("setDepthBias %g %g", constant, slope)
}

func (cb *SoftwareCommandBuffer) SetLineWidth(width float32) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("setLineWidth %g", width)
}

func (cb *SoftwareCommandBuffer) SetStencilState(face StencilFace, st GxmStencilState) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("setStencil face=%d func=%d ref=%d", face, st.Func, st.Ref)
}

func (cb *SoftwareCommandBuffer) UploadImage(view ImageViewHandle, data []byte) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.inPass {
		logError("software cmd: uploadImage inside a render pass")
		return
	}
	if img, ok := view.(*softImage); ok {
		copy(img.pixels, data)
	}
	cb.record("uploadImage %d bytes", len(data))
}

func (cb *SoftwareCommandBuffer) BeginQuery(pool QueryPoolHandle, query uint32) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("beginQuery %d", query)
}

func (cb *SoftwareCommandBuffer) EndQuery(pool QueryPoolHandle, query uint32) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("endQuery %d", query)
}

func (cb *SoftwareCommandBuffer) CopyQueryResults(pool QueryPoolHandle, first, count uint32, buffer BufferHandle, offset uint32) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.record("copyQueryResults first=%d count=%d offset=%d", first, count, offset)
}

// softImage backs ImageViewHandle in the software device.
type softImage struct {
	width, height uint32
	format        SurfaceFormat
	pixels        []byte // RGBA
}

type softRenderPass struct {
	format     SurfaceFormat
	zlsControl uint32
}

type softFramebuffer struct {
	rp            RenderPassHandle
	color         ImageViewHandle
	depthStencil  ImageViewHandle
	width, height uint32
}

type softDescriptorSet struct {
	frame   int
	color   ImageViewHandle
	mask    ImageViewHandle
	useMask bool
}

// SoftwareSubmission is one ordered prerender+render submission.
type SoftwareSubmission struct {
	Prerender *SoftwareCommandBuffer
	Render    *SoftwareCommandBuffer
	Fence     GPUFence
}

// SoftwareDevice implements GPUDevice on the host CPU.
type SoftwareDevice struct {
	mutex       sync.Mutex
	submissions []SoftwareSubmission
	fenceCount  int
	cmdCount    int

	// FailWaits makes WaitForFences return an error, for exercising the
	// wait thread's fail-soft path.
	FailWaits bool
}

// NewSoftwareDevice creates a new software render device.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{}
}

func (d *SoftwareDevice) AllocateCommandBuffer(frame int, kind CommandPoolKind) (CommandBuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.cmdCount++
	return &SoftwareCommandBuffer{frame: frame, kind: kind}, nil
}

func (d *SoftwareDevice) CreateFence() (GPUFence, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fenceCount++
	return newSoftwareFence(), nil
}

func (d *SoftwareDevice) ResetFences(fences []GPUFence) error {
	for _, f := range fences {
		f.(*SoftwareFence).reset()
	}
	return nil
}

func (d *SoftwareDevice) WaitForFences(fences []GPUFence) error {
	if d.FailWaits {
		return &RenderError{Operation: "fence wait", Details: "simulated device loss"}
	}
	for _, f := range fences {
		f.(*SoftwareFence).wait()
	}
	return nil
}

func (d *SoftwareDevice) CreateImage(width, height uint32, format SurfaceFormat) (ImageViewHandle, error) {
	return &softImage{
		width:  width,
		height: height,
		format: format,
		pixels: make([]byte, width*height*4),
	}, nil
}

func (d *SoftwareDevice) CreateRenderPass(format SurfaceFormat, zlsControl uint32) (RenderPassHandle, error) {
	return &softRenderPass{format: format, zlsControl: zlsControl}, nil
}

func (d *SoftwareDevice) CreateFramebuffer(rp RenderPassHandle, color, depthStencil ImageViewHandle, width, height uint32) (FramebufferHandle, error) {
	return &softFramebuffer{
		rp:           rp,
		color:        color,
		depthStencil: depthStencil,
		width:        width,
		height:       height,
	}, nil
}

func (d *SoftwareDevice) AllocateRenderTargetSet(frame int) (DescriptorSet, error) {
	return &softDescriptorSet{frame: frame}, nil
}

func (d *SoftwareDevice) UpdateRenderTargetSet(set DescriptorSet, color, mask ImageViewHandle, useMask bool) {
	s := set.(*softDescriptorSet)
	s.color = color
	s.useMask = useMask
	if useMask {
		s.mask = mask
	}
}

func (d *SoftwareDevice) Submit(prerender, render CommandBuffer, fence GPUFence) error {
	pre := prerender.(*SoftwareCommandBuffer)
	rnd := render.(*SoftwareCommandBuffer)
	if !pre.ended || !rnd.ended {
		return &RenderError{Operation: "submit", Details: "command buffer not ended"}
	}

	d.mutex.Lock()
	d.submissions = append(d.submissions, SoftwareSubmission{Prerender: pre, Render: rnd, Fence: fence})
	d.mutex.Unlock()

	// Software execution is synchronous, so the work is complete by the
	// time Submit returns.
	fence.(*SoftwareFence).Signal()
	return nil
}

func (d *SoftwareDevice) ReadImage(view ImageViewHandle) []byte {
	img, ok := view.(*softImage)
	if !ok {
		return nil
	}
	out := make([]byte, len(img.pixels))
	copy(out, img.pixels)
	return out
}

func (d *SoftwareDevice) Close() {}

// Submissions returns a copy of the submission log.
func (d *SoftwareDevice) Submissions() []SoftwareSubmission {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]SoftwareSubmission, len(d.submissions))
	copy(out, d.submissions)
	return out
}

// FenceCount reports how many fences the device has created.
func (d *SoftwareDevice) FenceCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.fenceCount
}

// CommandBufferCount reports how many command buffers have been allocated.
func (d *SoftwareDevice) CommandBufferCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.cmdCount
}
