package vthreads

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is the failure of a unit spawned on a closed pool.
	ErrPoolClosed = errors.New("vthreads: pool closed")

	// ErrInterrupted is matched (errors.Is) by every InterruptedError.
	ErrInterrupted = errors.New("vthreads: interrupted")
)

// InterruptedError reports that a blocking operation gave up because its
// context was done. It unwraps to both ErrInterrupted and the context
// cause.
type InterruptedError struct {
	// Op names the blocking operation, e.g. "join" or "rendezvous acquire".
	Op string
	// Cause is context.Cause of the interrupting context.
	Cause error
}

// Interrupted returns the InterruptedError for op giving up on ctx.
func Interrupted(op string, ctx context.Context) *InterruptedError {
	return &InterruptedError{Op: op, Cause: context.Cause(ctx)}
}

func (e *InterruptedError) Error() string {
	if e.Cause == nil {
		return "vthreads: " + e.Op + " interrupted"
	}
	return "vthreads: " + e.Op + " interrupted: " + e.Cause.Error()
}

func (e *InterruptedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInterrupted}
	}
	return []error{ErrInterrupted, e.Cause}
}

// PanicError is the failure of a unit whose procedure panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("vthreads: unit panicked: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
