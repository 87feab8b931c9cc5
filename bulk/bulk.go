// Package bulk fans a fixed number of independent tasks out onto
// lightweight execution units, and waits for all of them at a single
// boundary.
package bulk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/fiber"
	"github.com/jmp/vthreads/stats"
)

// Mode selects the kind of execution unit tasks run on.
type Mode int

const (
	// ModeGoroutine runs every task on its own pool unit, closing the
	// pool as the barrier.
	ModeGoroutine Mode = iota
	// ModeFiber runs every task as a fiber on one carrier goroutine.
	// Emission is batched through the carrier's flusher.
	ModeFiber
)

func (m Mode) String() string {
	switch m {
	case ModeGoroutine:
		return "goroutine"
	case ModeFiber:
		return "fiber"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "goroutine", "":
		return ModeGoroutine, nil
	case "fiber":
		return ModeFiber, nil
	default:
		return 0, fmt.Errorf("bulk: unknown mode %q", s)
	}
}

// Dispatcher runs batches of tasks.
//
// Instances must be initialized using New.
type Dispatcher struct {
	mode      Mode
	emitter   Emitter
	maxUnits  int
	batchSize int
	logger    *vthreads.Logger
	recorder  stats.Recorder
}

// Option configures a Dispatcher, see New.
type Option func(*Dispatcher)

// WithMode sets the execution mode.
func WithMode(mode Mode) Option {
	return func(d *Dispatcher) {
		d.mode = mode
	}
}

// WithEmitter sets the emitter tasks report to.
func WithEmitter(e Emitter) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.emitter = e
		}
	}
}

// WithMaxUnits bounds the number of tasks running at once in
// ModeGoroutine. Values <= 0 leave it unbounded.
func WithMaxUnits(n int) Option {
	return func(d *Dispatcher) {
		d.maxUnits = n
	}
}

// WithBatchSize bounds the number of indices per Emit call in
// ModeFiber.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		d.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *vthreads.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithRecorder sets the recorder, which receives a TaskCompleted event
// per task.
func WithRecorder(r stats.Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = stats.OrDiscard(r)
	}
}

// New returns a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		emitter:   Discard,
		batchSize: fiber.DefaultBatchSize,
		recorder:  stats.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = vthreads.Component(d.logger, "bulk")
	return d
}

// Run runs tasks 0 to n-1 and returns once every one of them has
// finished, with the first task failure. Tasks complete in no
// particular order.
func (d *Dispatcher) Run(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("bulk: negative task count %d", n)
	}
	if n == 0 {
		return nil
	}

	d.logger.Info().
		Int("tasks", n).
		Str("mode", d.mode.String()).
		Log("dispatching")
	start := time.Now()

	var err error
	switch d.mode {
	case ModeGoroutine:
		err = d.runGoroutines(ctx, n)
	case ModeFiber:
		err = d.runFibers(ctx, n)
	default:
		return fmt.Errorf("bulk: unknown mode %v", d.mode)
	}

	if err != nil {
		d.logger.Err().
			Int("tasks", n).
			Err(err).
			Log("dispatch failed")
		return err
	}

	d.logger.Info().
		Int("tasks", n).
		Dur("elapsed", time.Since(start)).
		Log("dispatched")
	return nil
}

func (d *Dispatcher) runGoroutines(ctx context.Context, n int) error {
	pool := vthreads.NewPool(ctx,
		vthreads.WithPoolName("bulk"),
		vthreads.WithPoolLogger(d.logger),
		vthreads.WithMaxUnits(d.maxUnits),
	)
	for i := 0; i < n; i++ {
		pool.Go(func(ctx context.Context) error {
			if err := d.emitter.Emit(ctx, i); err != nil {
				return fmt.Errorf("bulk: task %d: %w", i, err)
			}
			d.completed(ctx, i)
			return nil
		})
	}
	return pool.Close()
}

func (d *Dispatcher) runFibers(ctx context.Context, n int) error {
	carrier := fiber.NewCarrier[int, struct{}](
		fiber.FlusherFunc[int, struct{}](d.flush),
		fiber.WithBatchSize(d.batchSize),
	)

	var groupErr error
	err := carrier.Run(ctx, func(_ context.Context, root *fiber.Fiber[int, struct{}]) {
		group := root.Group()
		for i := 0; i < n; i++ {
			group.Go(func(ctx context.Context) error {
				f, _ := fiber.FromContext[int, struct{}](ctx)
				_, err := f.IO(i)
				return err
			})
		}
		groupErr = group.Wait(root)
	})
	if err != nil {
		return err
	}
	return groupErr
}

// flush emits one batch of parked tasks.
func (d *Dispatcher) flush(ctx context.Context, indices []int) ([]struct{}, error) {
	if err := d.emitter.Emit(ctx, indices...); err != nil {
		return nil, fmt.Errorf("bulk: tasks %d to %d: %w", indices[0], indices[len(indices)-1], err)
	}
	for _, i := range indices {
		d.completed(ctx, i)
	}
	return make([]struct{}, len(indices)), nil
}

func (d *Dispatcher) completed(ctx context.Context, i int) {
	if err := d.recorder.Record(ctx, stats.Event{Kind: stats.TaskCompleted, Index: i}); err != nil {
		d.logger.Debug().
			Int("task", i).
			Err(err).
			Log("record failed")
	}
}
