package vthreads

import (
	"context"
	"sync/atomic"
)

// Rendezvous is a single-permit handoff between a producer, which calls
// Release once it is ready, and a consumer, which calls Acquire to wait
// for that readiness. At most one permit is ever outstanding.
//
// Instances must be initialized using NewRendezvous.
type Rendezvous struct {
	noCopy   noCopy
	permit   chan struct{}
	releases atomic.Uint64
}

// NewRendezvous returns a rendezvous with no permit available.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{permit: make(chan struct{}, 1)}
}

// Release makes the permit available. It never blocks, and returns false
// if a permit was already outstanding, in which case the call has no
// effect.
func (r *Rendezvous) Release() bool {
	r.releases.Add(1)
	select {
	case r.permit <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the permit is available and takes it. An
// available permit always wins over a done ctx; otherwise a done ctx
// yields an InterruptedError.
func (r *Rendezvous) Acquire(ctx context.Context) error {
	select {
	case <-r.permit:
		return nil
	default:
	}

	select {
	case <-r.permit:
		return nil
	case <-ctx.Done():
		if r.TryAcquire() {
			return nil
		}
		return Interrupted("rendezvous acquire", ctx)
	}
}

// TryAcquire takes the permit if it is available.
func (r *Rendezvous) TryAcquire() bool {
	select {
	case <-r.permit:
		return true
	default:
		return false
	}
}

// Releases returns the number of Release calls made so far.
func (r *Rendezvous) Releases() uint64 {
	return r.releases.Load()
}
