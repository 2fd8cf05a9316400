// fence_wait_queue.go - Wait-request queue feeding the GPU wait thread

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
fence_wait_queue.go - Fence Wait Queue

Multi-producer/single-consumer queue carrying wait requests from the render
thread to the background wait thread. Push never blocks and the queue never
drops a request; Pop blocks until a request is available or the queue has
been closed and drained. Per-producer FIFO order is preserved, which is all
the wait thread relies on since each request only depends on its own fence.
*/

package main

import "sync"

// WaitRequest is the sum type of everything the wait thread can be asked to
// do after GPU work completes. The interface is sealed so the consumer's
// type switch stays exhaustive.
type WaitRequest interface {
	waitRequest()
}

// NotificationRequest delivers up to two guest-memory completion writes once
// Fence has signaled.
type NotificationRequest struct {
	Notifications [2]GxmNotification
	Fence         GPUFence
}

// FrameDoneRequest publishes a frame timestamp once all prior GPU work has
// completed.
type FrameDoneRequest struct {
	FrameTimestamp uint64
}

// PostSurfaceSyncRequest hands a surface-cache token back to the cache once
// the GPU work writing that surface has completed.
type PostSurfaceSyncRequest struct {
	CacheInfo *ColorSurfaceCacheInfo
}

func (NotificationRequest) waitRequest()    {}
func (FrameDoneRequest) waitRequest()       {}
func (PostSurfaceSyncRequest) waitRequest() {}

// FenceWaitQueue is an unbounded FIFO of wait requests. A channel cannot
// model it: pushes must never block the render thread, so the backlog has
// no fixed bound.
type FenceWaitQueue struct {
	mutex    sync.Mutex
	notEmpty *sync.Cond
	requests []WaitRequest
	closed   bool
}

// NewFenceWaitQueue creates an open, empty queue.
func NewFenceWaitQueue() *FenceWaitQueue {
	q := &FenceWaitQueue{}
	q.notEmpty = sync.NewCond(&q.mutex)
	return q
}

// Push appends a request. It never blocks and may be called concurrently.
// Pushes after Close are dropped with a warning; submissions racing shutdown
// are a caller bug.
func (q *FenceWaitQueue) Push(req WaitRequest) {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		logWarn("wait request pushed after queue close, dropped")
		return
	}
	q.requests = append(q.requests, req)
	q.mutex.Unlock()
	q.notEmpty.Signal()
}

// Pop blocks until a request is available, returning it in FIFO order.
// Once the queue is closed and drained, Pop returns (nil, false); that is
// the consumer's only termination signal.
func (q *FenceWaitQueue) Pop() (WaitRequest, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for len(q.requests) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.requests) == 0 {
		return nil, false
	}
	req := q.requests[0]
	q.requests = q.requests[1:]
	return req, true
}

// Close marks the queue closed. Requests already queued are still delivered;
// shutdown is drain-and-close, never abort-in-place.
func (q *FenceWaitQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.mutex.Unlock()
	q.notEmpty.Broadcast()
}

// Len reports the number of undelivered requests.
func (q *FenceWaitQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.requests)
}
