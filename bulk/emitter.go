package bulk

import (
	"context"
	"io"
	"strconv"
	"sync"
)

// Emitter observes completed tasks. The result of a task is only ever
// its emission. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, indices ...int) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, indices ...int) error

// Emit calls fn(ctx, indices...).
func (fn EmitterFunc) Emit(ctx context.Context, indices ...int) error {
	return fn(ctx, indices...)
}

// Discard is an Emitter that does nothing.
var Discard Emitter = EmitterFunc(func(context.Context, ...int) error { return nil })

// WriterEmitter writes each index followed by a space, so that a batch
// of n tasks prints "0 1 2 ... " in completion order.
type WriterEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewWriterEmitter returns an emitter writing to w.
func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{w: w}
}

// Emit writes all indices in a single Write call.
func (e *WriterEmitter) Emit(_ context.Context, indices ...int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf = e.buf[:0]
	for _, i := range indices {
		e.buf = strconv.AppendInt(e.buf, int64(i), 10)
		e.buf = append(e.buf, ' ')
	}
	_, err := e.w.Write(e.buf)
	return err
}

// Finish ends the line.
func (e *WriterEmitter) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.w, "\n")
	return err
}
