package vthreads

import (
	"context"
	"strconv"
	"sync/atomic"
)

// State is the lifecycle state of a Unit.
type State int32

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Unit is the handle of a procedure spawned by Pool.Go. The pool owns
// the bookkeeping; the spawner owns the handle and decides whether to
// join it.
type Unit struct {
	noCopy noCopy
	id     uint64
	state  atomic.Int32
	done   chan struct{}
	err    error // written once, before done is closed
}

func newUnit(id uint64) *Unit {
	return &Unit{id: id, done: make(chan struct{})}
}

// finish records the outcome and wakes every joiner. It must be called
// exactly once.
func (u *Unit) finish(state State, err error) {
	u.err = err
	u.state.Store(int32(state))
	close(u.done)
}

// ID returns an identifier, unique within the pool that spawned u.
func (u *Unit) ID() uint64 {
	return u.id
}

// State returns the current lifecycle state.
func (u *Unit) State() State {
	return State(u.state.Load())
}

// Done returns a channel that is closed once the unit has finished.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Err returns the failure of a finished unit, or nil while the unit is
// still running or if it completed successfully.
func (u *Unit) Err() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

// Join blocks until the unit has finished, and returns its failure. If
// ctx is done first, Join returns an InterruptedError and the unit keeps
// running.
func (u *Unit) Join(ctx context.Context) error {
	select {
	case <-u.done:
		return u.err
	default:
	}
	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return Interrupted("join", ctx)
	}
}
