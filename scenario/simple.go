package scenario

import (
	"context"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/bulk"
)

// Easy starts a single unit that logs a greeting, and joins it.
type Easy struct {
	settings
}

// NewEasy returns the scenario.
func NewEasy(opts ...Option) *Easy {
	return &Easy{settings: newSettings(opts)}
}

// Name implements Scenario.
func (*Easy) Name() string { return "easy" }

// Run implements Scenario.
func (e *Easy) Run(ctx context.Context) error {
	logger := vthreads.Component(e.logger, "easy")

	pool := vthreads.NewPool(ctx, vthreads.WithPoolName("easy"), vthreads.WithPoolLogger(logger))
	defer pool.Close()

	u := pool.Go(func(context.Context) error {
		logger.Info().Log("hello")
		return nil
	})
	return u.Join(ctx)
}

// Future submits one unit to a pool, joins it, and closes the pool.
type Future struct {
	settings
}

// NewFuture returns the scenario.
func NewFuture(opts ...Option) *Future {
	return &Future{settings: newSettings(opts)}
}

// Name implements Scenario.
func (*Future) Name() string { return "future" }

// Run implements Scenario.
func (f *Future) Run(ctx context.Context) error {
	logger := vthreads.Component(f.logger, "future")

	pool := vthreads.NewPool(ctx, vthreads.WithPoolName("future"), vthreads.WithPoolLogger(logger))

	u := pool.Go(func(context.Context) error {
		logger.Info().Log("running task in a future")
		return nil
	})

	err := u.Join(ctx)
	if err == nil {
		logger.Info().
			Uint64("unit", u.ID()).
			Log("future completed")
	}

	if cerr := pool.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tasks runs a bulk fan-out of a fixed number of tasks.
type Tasks struct {
	n int
	settings
}

// NewTasks returns the scenario for n tasks.
func NewTasks(n int, opts ...Option) *Tasks {
	return &Tasks{n: n, settings: newSettings(opts)}
}

// Name implements Scenario.
func (*Tasks) Name() string { return "tasks" }

// Run implements Scenario.
func (t *Tasks) Run(ctx context.Context) error {
	opts := []bulk.Option{
		bulk.WithLogger(t.logger),
		bulk.WithRecorder(t.recorder),
	}

	var emitter *bulk.WriterEmitter
	if t.output != nil {
		emitter = bulk.NewWriterEmitter(t.output)
		opts = append(opts, bulk.WithEmitter(emitter))
	}

	err := bulk.New(append(opts, t.bulkOpts...)...).Run(ctx, t.n)
	if emitter != nil {
		if ferr := emitter.Finish(); err == nil {
			err = ferr
		}
	}
	return err
}
