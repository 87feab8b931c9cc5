package fiber

import (
	"context"
	"errors"
	"fmt"
	"runtime/trace"
)

// DefaultBatchSize is the default maximum number of inputs handed to a
// Flusher at once.
const DefaultBatchSize = 128

// ErrStalled is returned by Carrier.Run when fibers remain unfinished
// but none of them is waiting on I/O, so none can ever resume. The
// stalled fibers are abandoned.
var ErrStalled = errors.New("fiber: all fibers parked without pending I/O")

// Carrier runs trees of fibers on the calling goroutine and services
// their I/O through a Flusher. A Carrier holds no per-run state and may
// be reused, but not by concurrent Run calls sharing a Flusher that is
// not safe for concurrent use.
type Carrier[I, O any] struct {
	flusher   Flusher[I, O]
	batchSize int
}

// CarrierOption configures a Carrier, see NewCarrier.
type CarrierOption func(*carrierConfig)

type carrierConfig struct {
	batchSize int
}

// WithBatchSize bounds the number of inputs per Flush call. Values <= 0
// flush everything pending in one call.
func WithBatchSize(n int) CarrierOption {
	return func(c *carrierConfig) {
		c.batchSize = n
	}
}

// NewCarrier returns a carrier that flushes I/O through flusher.
func NewCarrier[I, O any](flusher Flusher[I, O], opts ...CarrierOption) *Carrier[I, O] {
	if flusher == nil {
		panic("fiber: nil flusher")
	}
	cfg := carrierConfig{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Carrier[I, O]{flusher: flusher, batchSize: cfg.batchSize}
}

type session[I, O any] struct {
	queue   queue[I, O]
	err     error
	spawned int
}

func (s *session[I, O]) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Run starts fn as the root fiber and drives it, and every fiber it
// transitively spawns, to completion. Whenever all runnable fibers have
// parked, the pending I/O is flushed in batches, each fiber resuming
// with its own result as soon as its batch returns.
//
// Run returns the first flush error or recovered fiber panic. A panic
// ends only the fiber that raised it.
func (c *Carrier[I, O]) Run(ctx context.Context, fn func(context.Context, *Fiber[I, O])) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, tracer := trace.NewTask(ctx, traceTaskType)
	defer tracer.End()

	sess := new(session[I, O])
	root := newFiber(ctx, fn, nil, sess)

	trace.Log(ctx, traceCategory, "RUN")

	root.resumez()
	for !root.done {
		if sess.queue.len() == 0 {
			trace.Log(ctx, traceCategory, "STALLED")
			return ErrStalled
		}

		trace.Logf(ctx, traceCategory, "FLUSH PENDING %v", sess.queue.len())
		if err := c.flush(ctx, sess.queue.take(c.batchSize)); err != nil {
			sess.fail(err)
		}
	}
	root.cancel()

	trace.Logf(ctx, traceCategory, "DONE FIBERS %v", sess.spawned)
	return sess.err
}

func (c *Carrier[I, O]) flush(ctx context.Context, reqs []*request[I, O]) error {
	in := make([]I, len(reqs))
	for i, req := range reqs {
		in[i] = req.in
	}

	out, err := c.flusher.Flush(ctx, in)
	if err == nil && len(out) != len(in) {
		err = fmt.Errorf("fiber: flusher returned %d outputs for %d inputs", len(out), len(in))
	}

	for i, req := range reqs {
		res := outcome[O]{err: err}
		if err == nil {
			res.out = out[i]
		}
		req.fiber.park(false)
		req.fiber.run(res)
	}
	return err
}
