package vthreads

import (
	"context"
	"sync/atomic"
)

// ShutdownLatch is a binary gate that starts open (count 1) and closes
// exactly once. Concurrent closers race on a compare-and-set; only the
// winner observes true from Close, and only the winner should perform
// any one-time shutdown action.
//
// Instances must be initialized using NewShutdownLatch.
type ShutdownLatch struct {
	noCopy noCopy
	closed atomic.Bool
	done   chan struct{}
}

// NewShutdownLatch returns an open latch.
func NewShutdownLatch() *ShutdownLatch {
	return &ShutdownLatch{done: make(chan struct{})}
}

// Close transitions the latch from open to closed. It returns true for
// the single call that performed the transition.
func (l *ShutdownLatch) Close() bool {
	if !l.closed.CompareAndSwap(false, true) {
		return false
	}
	close(l.done)
	return true
}

// Closed reports whether Close has been called.
func (l *ShutdownLatch) Closed() bool {
	return l.closed.Load()
}

// Count returns 1 while the latch is open and 0 once it has closed.
func (l *ShutdownLatch) Count() int {
	if l.Closed() {
		return 0
	}
	return 1
}

// Done returns a channel that is closed once the latch has closed.
func (l *ShutdownLatch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch has closed, or returns an InterruptedError
// if ctx is done first.
func (l *ShutdownLatch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		select {
		case <-l.done:
			return nil
		default:
		}
		return Interrupted("latch wait", ctx)
	}
}
