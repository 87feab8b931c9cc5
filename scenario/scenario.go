// Package scenario sequences the demonstrations: a paired server and
// client, single units, and a bulk fan-out.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/bulk"
	"github.com/jmp/vthreads/client"
	"github.com/jmp/vthreads/server"
	"github.com/jmp/vthreads/stats"
)

// Scenario is one demonstration.
type Scenario interface {
	Name() string
	Run(ctx context.Context) error
}

// Option configures a scenario. Options that do not apply to a given
// scenario are ignored by it.
type Option func(*settings)

type settings struct {
	logger     *vthreads.Logger
	recorder   stats.Recorder
	serverOpts []server.Option
	clientOpts []client.Option
	bulkOpts   []bulk.Option
	output     io.Writer
}

func newSettings(opts []Option) settings {
	s := settings{recorder: stats.Discard}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger.
func WithLogger(l *vthreads.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithRecorder sets the recorder shared by the scenario's components.
func WithRecorder(r stats.Recorder) Option {
	return func(s *settings) {
		s.recorder = stats.OrDiscard(r)
	}
}

// WithServerOptions appends options for the server of ClientServer.
func WithServerOptions(opts ...server.Option) Option {
	return func(s *settings) {
		s.serverOpts = append(s.serverOpts, opts...)
	}
}

// WithClientOptions appends options for the client of ClientServer.
func WithClientOptions(opts ...client.Option) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// WithBulkOptions appends options for the dispatcher of Tasks.
func WithBulkOptions(opts ...bulk.Option) Option {
	return func(s *settings) {
		s.bulkOpts = append(s.bulkOpts, opts...)
	}
}

// WithOutput sets where Tasks prints the task indices.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		s.output = w
	}
}

// Runner runs scenarios in order. A failing scenario is logged and does
// not stop the ones after it.
type Runner struct {
	logger    *vthreads.Logger
	scenarios []Scenario
}

// NewRunner returns a runner for the given scenarios.
func NewRunner(logger *vthreads.Logger, scenarios ...Scenario) *Runner {
	return &Runner{
		logger:    vthreads.Component(logger, "runner"),
		scenarios: scenarios,
	}
}

// Run runs every scenario and returns their joined failures. It stops
// early only if ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	var errs []error
	for _, s := range r.scenarios {
		if ctx.Err() != nil {
			errs = append(errs, vthreads.Interrupted("runner", ctx))
			break
		}

		r.logger.Info().
			Str("scenario", s.Name()).
			Log("scenario starting")
		start := time.Now()

		if err := s.Run(ctx); err != nil {
			r.logger.Err().
				Str("scenario", s.Name()).
				Err(err).
				Log("scenario failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}

		r.logger.Info().
			Str("scenario", s.Name()).
			Dur("elapsed", time.Since(start)).
			Log("scenario finished")
	}
	return errors.Join(errs...)
}
