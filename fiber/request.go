package fiber

import "context"

// Flusher performs one batch of I/O for parked fibers. It must return
// exactly one output per input, in input order. A non-nil error fails
// every input of the batch.
type Flusher[I, O any] interface {
	Flush(ctx context.Context, in []I) ([]O, error)
}

// FlusherFunc adapts a function to the Flusher interface.
type FlusherFunc[I, O any] func(ctx context.Context, in []I) ([]O, error)

// Flush calls fn(ctx, in).
func (fn FlusherFunc[I, O]) Flush(ctx context.Context, in []I) ([]O, error) {
	return fn(ctx, in)
}

type request[I, O any] struct {
	fiber *Fiber[I, O]
	in    I
}

type outcome[O any] struct {
	out O
	err error
}

type queue[I, O any] struct {
	requests []*request[I, O]
}

func (q *queue[I, O]) add(reqs ...*request[I, O]) {
	q.requests = append(q.requests, reqs...)
}

// take removes up to n requests from the front of the queue, or all of
// them if n <= 0.
func (q *queue[I, O]) take(n int) []*request[I, O] {
	if n <= 0 || n > len(q.requests) {
		n = len(q.requests)
	}
	reqs := q.requests[:n:n]
	q.requests = q.requests[n:]
	if len(q.requests) == 0 {
		q.requests = nil
	}
	return reqs
}

func (q *queue[I, O]) len() int {
	return len(q.requests)
}
