package vthreads

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool spawns execution units and provides a barrier close. Each unit
// runs on its own goroutine, so tens of thousands of outstanding units
// cost only their stacks; blocking inside a unit parks that goroutine
// and never a shared OS thread.
//
// Instances must be initialized using NewPool.
type Pool struct {
	noCopy      noCopy
	name        string
	logger      *Logger
	sem         *semaphore.Weighted // nil if unbounded
	ctx         context.Context
	cancel      context.CancelCauseFunc
	wg          sync.WaitGroup
	nextID      atomic.Uint64
	outstanding atomic.Int64
	failures    atomic.Int64

	mu       sync.Mutex
	closed   bool
	firstErr error
}

// PoolOption configures a Pool, see NewPool.
type PoolOption func(*Pool)

// WithMaxUnits bounds the number of units that may run at once. Units
// beyond the bound are accepted immediately and wait for a free slot on
// their own goroutine. Values <= 0 leave the pool unbounded.
func WithMaxUnits(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		} else {
			p.sem = nil
		}
	}
}

// WithPoolLogger sets the logger used to report unit failures.
func WithPoolLogger(l *Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithPoolName sets the name attached to log events.
func WithPoolName(name string) PoolOption {
	return func(p *Pool) {
		p.name = name
	}
}

// NewPool creates a pool. The context given to every unit is derived
// from ctx; it is cancelled when ctx is, when Shutdown gives up waiting,
// or once Close has returned.
func NewPool(ctx context.Context, opts ...PoolOption) *Pool {
	p := &Pool{name: "pool"}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancelCause(ctx)
	return p
}

// Go spawns fn as a new unit and returns its handle. It never blocks. On
// a closed pool the returned unit has already failed with ErrPoolClosed.
func (p *Pool) Go(fn func(ctx context.Context) error) *Unit {
	u := newUnit(p.nextID.Add(1))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		u.finish(StateFailed, ErrPoolClosed)
		return u
	}
	p.wg.Add(1)
	p.outstanding.Add(1)
	p.mu.Unlock()

	go p.run(u, fn)
	return u
}

func (p *Pool) run(u *Unit, fn func(context.Context) error) {
	defer p.wg.Done()
	defer p.outstanding.Add(-1)

	if p.sem != nil {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.complete(u, err)
			return
		}
		defer p.sem.Release(1)
	}

	p.complete(u, call(p.ctx, fn))
}

func call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func (p *Pool) complete(u *Unit, err error) {
	switch {
	case err == nil:
		u.finish(StateCompleted, nil)

	case p.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		u.finish(StateCancelled, err)

	default:
		p.failures.Add(1)
		p.mu.Lock()
		if p.firstErr == nil {
			p.firstErr = err
		}
		p.mu.Unlock()
		p.logger.Err().
			Str("pool", p.name).
			Uint64("unit", u.id).
			Err(err).
			Log("unit failed")
		u.finish(StateFailed, err)
	}
}

// Close stops the pool accepting units, then blocks until every unit
// accepted before that point has finished. It is a barrier, not a
// cancellation signal. It returns the first unit failure, if any, and
// may be called any number of times.
//
// Close must not be called from a unit of the same pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel(ErrPoolClosed)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// Shutdown is Close bounded by ctx. If ctx is done first, the units are
// abandoned: the pool context is cancelled and an InterruptedError is
// returned without waiting further. The Close started by Shutdown still
// runs in the background, holding a goroutine until every abandoned unit
// has returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		err := Interrupted("pool shutdown", ctx)
		p.cancel(err)
		p.logger.Warning().
			Str("pool", p.name).
			Int64("outstanding", p.outstanding.Load()).
			Err(err).
			Log("abandoning units")
		return err
	}
}

// Len returns the number of units that have not finished.
func (p *Pool) Len() int {
	return int(p.outstanding.Load())
}

// Failures returns the number of units that have failed so far.
func (p *Pool) Failures() int {
	return int(p.failures.Load())
}

// JoinAll blocks until every given unit has finished, and returns the
// joined failures. If ctx is done first it returns an InterruptedError.
func JoinAll(ctx context.Context, units ...*Unit) error {
	var errs []error
	for _, u := range units {
		if err := u.Join(ctx); err != nil {
			select {
			case <-u.done:
				errs = append(errs, err)
			default:
				return err
			}
		}
	}
	return errors.Join(errs...)
}
