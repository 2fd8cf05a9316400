// render_wait_thread.go - Background fence-wait and notification delivery

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
render_wait_thread.go - Wait Thread

One background goroutine per context owns every blocking fence wait for that
context's submissions, keeping the render thread free of GPU stalls. It
drains the context's wait-request queue and performs the per-kind action
once the relevant fences have signaled:

    Notification     - write completion values into guest memory, then
                       broadcast to everything blocked on notifications
    FrameDone        - publish the completed frame timestamp, then wake the
                       frame-pacing gate
    PostSurfaceSync  - hand the surface-cache token back for readback

Fences accumulate and are only flushed immediately before an action that
needs them signaled, amortizing the wait call when several scenes complete
close together. Mutexes are never held across a blocking wait.
*/

package main

// StartWaitThread launches the context's wait thread over the given guest
// bus. It returns immediately; the thread runs until ShutdownWaitThread.
func (ctx *RenderContext) StartWaitThread(bus MemoryBus) {
	if ctx.waitThreadDone != nil {
		logError("wait thread already running")
		return
	}
	ctx.waitThreadDone = make(chan struct{})
	go func() {
		defer close(ctx.waitThreadDone)
		ctx.WaitThreadFunction(bus)
	}()
}

// ShutdownWaitThread closes the request queue and blocks until the wait
// thread has drained it. In-flight fence waits are not interruptible;
// shutdown is always drain-and-close.
func (ctx *RenderContext) ShutdownWaitThread() {
	if ctx.waitThreadDone == nil {
		return
	}
	ctx.requestQueue.Close()
	<-ctx.waitThreadDone
	ctx.waitThreadDone = nil
}

// WaitThreadFunction is the wait thread's loop. It exits only when the
// queue reports closure; a failed fence wait is logged and, in release
// builds, tolerated by clearing the batch so the thread cannot hang forever.
// That fall-through trades a possible ordering guarantee for liveness and is
// a deliberate, documented risk.
func (ctx *RenderContext) WaitThreadFunction(bus MemoryBus) {
	// try to wait for multiple fences at the same time if possible
	var fences []GPUFence

	waitForFences := func() {
		if len(fences) == 0 {
			return
		}
		if err := ctx.state.device.WaitForFences(fences); err != nil {
			logError("Could not wait for fences: %v", err)
			debugAssert(false, "fence wait failed: %v", err)
		}
		// don't reset them, only drop the batch
		fences = fences[:0]
	}

	for {
		request, ok := ctx.requestQueue.Pop()
		if !ok {
			break
		}

		switch req := request.(type) {
		case NotificationRequest:
			fences = append(fences, req.Fence)

			if req.Notifications[0].Address.Valid() || req.Notifications[1].Address.Valid() {
				waitForFences()

				state := ctx.state
				state.notificationMutex.Lock()
				if req.Notifications[0].Address.Valid() {
					req.Notifications[0].Address.Write32(bus, req.Notifications[0].Value)
				}
				if req.Notifications[1].Address.Valid() {
					req.Notifications[1].Address.Write32(bus, req.Notifications[1].Value)
				}
				// unlocking before the wakeup keeps waiters off the mutex
				state.notificationMutex.Unlock()
				state.notificationReady.Broadcast()
			}

		case FrameDoneRequest:
			waitForFences()

			// the fences stay unreset; FinishFrame resets them when the
			// frame slot is reused
			ctx.newFrameMutex.Lock()
			ctx.lastFrameWaited = req.FrameTimestamp
			ctx.newFrameMutex.Unlock()
			ctx.newFrameCond.Signal()

		case PostSurfaceSyncRequest:
			waitForFences()

			ctx.state.surfaceCache.PerformPostSurfaceSync(bus, req.CacheInfo)
		}
	}
}

// FinishFrame closes the current frame: it asks the wait thread to publish
// the frame's timestamp once all its GPU work is done, then advances to the
// next frame-in-flight slot, resetting that slot's fences for reuse.
func (ctx *RenderContext) FinishFrame() {
	ctx.requestQueue.Push(FrameDoneRequest{FrameTimestamp: ctx.frameTimestamp})

	ctx.frameTimestamp++
	ctx.currentFrameIdx = int(ctx.frameTimestamp % RENDER_FRAMES_IN_FLIGHT)

	if pending := ctx.renderedFences[ctx.currentFrameIdx]; len(pending) > 0 {
		if err := ctx.state.device.ResetFences(pending); err != nil {
			logError("could not reset frame fences: %v", err)
		}
		ctx.renderedFences[ctx.currentFrameIdx] = pending[:0]
	}
}

// WaitForFrame blocks the caller until the wait thread has published a
// completed-frame timestamp of at least the given value. This is the
// frame-pacing gate; single consumer expected.
func (ctx *RenderContext) WaitForFrame(timestamp uint64) {
	ctx.newFrameMutex.Lock()
	for ctx.lastFrameWaited < timestamp {
		ctx.newFrameCond.Wait()
	}
	ctx.newFrameMutex.Unlock()
}

// LastFrameWaited returns the most recently published completed-frame
// timestamp.
func (ctx *RenderContext) LastFrameWaited() uint64 {
	ctx.newFrameMutex.Lock()
	defer ctx.newFrameMutex.Unlock()
	return ctx.lastFrameWaited
}

// WaitForNotification blocks until guest memory at the notification's
// address holds the notification's value, the way emulated code waits on a
// hardware completion signal.
func (s *RenderState) WaitForNotification(bus MemoryBus, notif GxmNotification) {
	if !notif.Address.Valid() {
		return
	}
	s.notificationMutex.Lock()
	for notif.Address.Read32(bus) != notif.Value {
		s.notificationReady.Wait()
	}
	s.notificationMutex.Unlock()
}
