// render_wait_thread_test.go - Test suite for the GPU wait thread

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

package main

import (
	"testing"
	"time"
)

func newWaitTestContext() (*SoftwareDevice, *GuestBus, *RenderContext) {
	device := NewSoftwareDevice()
	bus := NewGuestBus()
	ctx := NewRenderContext(NewRenderState(device))
	return device, bus, ctx
}

// =============================================================================
// Notification delivery
// =============================================================================

func TestWaitThread_NotificationWrite(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	fence, _ := device.CreateFence()
	fence.(*SoftwareFence).Signal()

	notif := GxmNotification{Address: 0x1000, Value: 42}
	ctx.requestQueue.Push(NotificationRequest{
		Notifications: [2]GxmNotification{notif, {}},
		Fence:         fence,
	})

	ctx.state.WaitForNotification(bus, notif)

	if got := bus.Read32(0x1000); got != 42 {
		t.Errorf("guest memory at 0x1000 = %d, want 42", got)
	}
}

func TestWaitThread_BothNotificationSlots(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	fence, _ := device.CreateFence()
	fence.(*SoftwareFence).Signal()

	first := GxmNotification{Address: 0x1000, Value: 11}
	second := GxmNotification{Address: 0x1004, Value: 22}
	ctx.requestQueue.Push(NotificationRequest{
		Notifications: [2]GxmNotification{first, second},
		Fence:         fence,
	})

	ctx.state.WaitForNotification(bus, first)
	ctx.state.WaitForNotification(bus, second)

	if got := bus.Read32(0x1000); got != 11 {
		t.Errorf("first slot = %d, want 11", got)
	}
	if got := bus.Read32(0x1004); got != 22 {
		t.Errorf("second slot = %d, want 22", got)
	}
}

// TestWaitThread_NoWriteBeforeFenceSignal verifies the defining ordering
// property: a notification value must not appear in guest memory until the
// request's fence has signaled.
func TestWaitThread_NoWriteBeforeFenceSignal(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	fence, _ := device.CreateFence()
	notif := GxmNotification{Address: 0x1000, Value: 42}
	ctx.requestQueue.Push(NotificationRequest{
		Notifications: [2]GxmNotification{notif, {}},
		Fence:         fence,
	})

	time.Sleep(20 * time.Millisecond)
	if got := bus.Read32(0x1000); got != 0 {
		t.Fatalf("notification written before fence signal: got %d", got)
	}

	fence.(*SoftwareFence).Signal()
	ctx.state.WaitForNotification(bus, notif)

	if got := bus.Read32(0x1000); got != 42 {
		t.Errorf("guest memory at 0x1000 = %d, want 42", got)
	}
}

func TestWaitThread_InvalidSlotsSkipped(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	fence, _ := device.CreateFence()
	fence.(*SoftwareFence).Signal()

	// no valid address anywhere: the request only accumulates the fence
	ctx.requestQueue.Push(NotificationRequest{Fence: fence})

	// a later valid request must still be delivered
	fence2, _ := device.CreateFence()
	fence2.(*SoftwareFence).Signal()
	notif := GxmNotification{Address: 0x2000, Value: 5}
	ctx.requestQueue.Push(NotificationRequest{
		Notifications: [2]GxmNotification{notif, {}},
		Fence:         fence2,
	})

	ctx.state.WaitForNotification(bus, notif)
	if got := bus.Read32(0x2000); got != 5 {
		t.Errorf("guest memory at 0x2000 = %d, want 5", got)
	}
}

// =============================================================================
// Frame completion
// =============================================================================

func TestWaitThread_FrameDonePublishesTimestamp(t *testing.T) {
	_, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	if ctx.LastFrameWaited() != 0 {
		t.Fatalf("LastFrameWaited before any frame = %d, want 0", ctx.LastFrameWaited())
	}

	first := ctx.FrameTimestamp()
	ctx.FinishFrame()
	ctx.WaitForFrame(first)

	if got := ctx.LastFrameWaited(); got < first {
		t.Errorf("LastFrameWaited = %d, want >= %d", got, first)
	}
	if got := ctx.FrameTimestamp(); got != first+1 {
		t.Errorf("FrameTimestamp after FinishFrame = %d, want %d", got, first+1)
	}
}

func TestWaitThread_FrameTimestampsMonotonic(t *testing.T) {
	_, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	for i := 0; i < 5; i++ {
		ts := ctx.FrameTimestamp()
		ctx.FinishFrame()
		ctx.WaitForFrame(ts)
		if got := ctx.LastFrameWaited(); got < ts {
			t.Fatalf("frame %d: LastFrameWaited = %d, want >= %d", i, got, ts)
		}
	}
}

// =============================================================================
// Surface sync
// =============================================================================

func TestWaitThread_PostSurfaceSyncWritesGuestMemory(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	img, _ := device.CreateImage(2, 2, FORMAT_R8G8B8A8_UNORM)
	pixels := img.(*softImage).pixels
	for i := range pixels {
		pixels[i] = byte(i + 1)
	}

	info := &ColorSurfaceCacheInfo{
		Data:   0x3000,
		Width:  2,
		Height: 2,
		Format: FORMAT_R8G8B8A8_UNORM,
		Image:  img,
	}
	ctx.requestQueue.Push(PostSurfaceSyncRequest{CacheInfo: info})
	ctx.ShutdownWaitThread()

	got := bus.ReadRange(0x3000, uint32(len(pixels)))
	for i := range pixels {
		if got[i] != pixels[i] {
			t.Fatalf("guest memory byte %d = %d, want %d", i, got[i], pixels[i])
		}
	}
}

// =============================================================================
// Failure tolerance and shutdown
// =============================================================================

// TestWaitThread_FailedWaitStillDelivers exercises the release-build
// fall-through: when the device cannot wait on fences, the thread drops the
// batch and performs the action anyway instead of hanging.
func TestWaitThread_FailedWaitStillDelivers(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	device.FailWaits = true
	ctx.StartWaitThread(bus)
	defer ctx.ShutdownWaitThread()

	fence, _ := device.CreateFence() // never signaled
	notif := GxmNotification{Address: 0x1000, Value: 42}
	ctx.requestQueue.Push(NotificationRequest{
		Notifications: [2]GxmNotification{notif, {}},
		Fence:         fence,
	})

	done := make(chan struct{})
	go func() {
		ctx.state.WaitForNotification(bus, notif)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait thread hung on a failed fence wait")
	}
}

func TestWaitThread_ShutdownDrainsPendingRequests(t *testing.T) {
	device, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)

	const count = 10
	for i := uint32(0); i < count; i++ {
		fence, _ := device.CreateFence()
		fence.(*SoftwareFence).Signal()
		ctx.requestQueue.Push(NotificationRequest{
			Notifications: [2]GxmNotification{{Address: Address(0x1000 + 4*i), Value: i + 1}, {}},
			Fence:         fence,
		})
	}

	ctx.ShutdownWaitThread()

	for i := uint32(0); i < count; i++ {
		if got := bus.Read32(0x1000 + 4*i); got != i+1 {
			t.Errorf("slot %d = %d, want %d", i, got, i+1)
		}
	}
}

func TestWaitThread_ShutdownWithoutStartIsNoop(t *testing.T) {
	_, _, ctx := newWaitTestContext()
	ctx.ShutdownWaitThread()
}

func TestWaitThread_DoubleStartIgnored(t *testing.T) {
	_, bus, ctx := newWaitTestContext()
	ctx.StartWaitThread(bus)
	first := ctx.waitThreadDone
	ctx.StartWaitThread(bus)
	if ctx.waitThreadDone != first {
		t.Error("second StartWaitThread replaced the running thread")
	}
	ctx.ShutdownWaitThread()
}
