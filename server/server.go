// Package server implements a line-oriented TCP server that runs one
// execution unit per connection and shuts down when any connection sends
// the sentinel line.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/stats"
)

// Server accepts connections and hands each to its own unit. It is
// single use: Run may be called once.
//
// Instances must be initialized using New.
type Server struct {
	host         string
	port         int
	rendezvous   *vthreads.Rendezvous
	latch        *vthreads.ShutdownLatch
	sentinel     string
	echo         bool
	drainTimeout time.Duration
	logger       *vthreads.Logger
	recorder     stats.Recorder
	maxConns     int
	onLine       func(conn uint64, line string)
	listen       ListenFunc

	state     atomic.Int32
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	listening chan struct{}
	done      chan struct{}
	nextConn  atomic.Uint64

	mu    sync.Mutex
	ln    net.Listener
	conns map[uint64]net.Conn
}

// New returns a server in StateStarting.
func New(opts ...Option) *Server {
	s := &Server{
		port:         DefaultPort,
		latch:        vthreads.NewShutdownLatch(),
		sentinel:     DefaultSentinel,
		drainTimeout: DefaultDrainTimeout,
		recorder:     stats.Discard,
		listen:       new(net.ListenConfig).Listen,
		stop:         make(chan struct{}),
		listening:    make(chan struct{}),
		done:         make(chan struct{}),
		conns:        make(map[uint64]net.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = vthreads.Component(s.logger, "server")
	return s
}

// Run binds the listening socket, releases the rendezvous, and serves
// connections until the latch closes, ctx is done, or Stop is called.
// It then drains the connection handlers and returns.
//
// Run returns nil after a requested shutdown, a *StartupError if the
// socket could not be bound, and the context error if ctx ended first.
func (s *Server) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerClosed
	}
	defer close(s.done)

	select {
	case <-s.stop:
		s.setState(StateStopped)
		return ErrServerClosed
	default:
	}

	s.setState(StateStarting)
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := s.listen(ctx, "tcp", addr)
	if err != nil {
		err = &StartupError{Addr: addr, Err: err}
		s.logger.Err().
			Str("addr", addr).
			Err(err).
			Log("bind failed")
		s.setState(StateStopped)
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.setState(StateListening)
	close(s.listening)
	s.record(ctx, stats.Event{Kind: stats.ServerListening})
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("port", s.Port()).
		Log("listening")
	if s.rendezvous != nil {
		s.rendezvous.Release()
	}

	pool := vthreads.NewPool(ctx,
		vthreads.WithPoolName("connections"),
		vthreads.WithPoolLogger(s.logger),
		vthreads.WithMaxUnits(s.maxConns),
	)

	accepting := make(chan struct{})
	go s.watch(ctx, ln, accepting)

	err = s.acceptLoop(ctx, ln, pool)
	close(accepting)

	s.setState(StateDraining)
	_ = ln.Close()
	if perr := s.drain(pool); perr != nil {
		s.logger.Warning().
			Err(perr).
			Log("connection handler failed")
	}

	s.setState(StateStopped)
	s.logger.Info().
		Int("port", s.Port()).
		Bool("latch_closed", s.latch.Closed()).
		Log("stopped")
	return err
}

// watch closes the listener once shutdown is requested, releasing a
// blocked Accept.
func (s *Server) watch(ctx context.Context, ln net.Listener, accepting <-chan struct{}) {
	select {
	case <-s.latch.Done():
	case <-ctx.Done():
	case <-s.stop:
	case <-accepting:
		return
	}
	_ = ln.Close()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, pool *vthreads.Pool) error {
	for {
		if stop, err := s.stopping(ctx); stop {
			return err
		}

		s.setState(StateAccepting)
		conn, err := ln.Accept()
		if err != nil {
			if stop, serr := s.stopping(ctx); stop {
				return serr
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Err().
				Err(err).
				Log("accept failed")
			return fmt.Errorf("server: accept: %w", err)
		}

		if stop, err := s.stopping(ctx); stop {
			_ = conn.Close()
			return err
		}

		s.setState(StateDispatching)
		id := s.nextConn.Add(1)
		s.track(id, conn)
		pool.Go(func(ctx context.Context) error {
			defer s.untrack(id)
			return s.handle(ctx, id, conn)
		})
	}
}

// stopping reports whether the accept loop should exit, and the error
// Run should then return.
func (s *Server) stopping(ctx context.Context) (bool, error) {
	if s.latch.Closed() {
		return true, nil
	}
	select {
	case <-s.stop:
		return true, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}
	return false, nil
}

// drain waits for the connection handlers, closing their connections
// once the drain timeout expires. Connections whose handler never ran,
// because the pool was cancelled while they waited for a slot, are
// closed afterwards.
func (s *Server) drain(pool *vthreads.Pool) error {
	err := s.waitHandlers(pool)
	if n := s.closeConns(); n > 0 {
		s.logger.Warning().
			Int("conns", n).
			Log("closed connections without a handler")
	}
	return err
}

func (s *Server) waitHandlers(pool *vthreads.Pool) error {
	if s.drainTimeout <= 0 {
		return pool.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	err := pool.Shutdown(ctx)
	if !errors.Is(err, vthreads.ErrInterrupted) {
		return err
	}

	s.logger.Warning().
		Int("conns", s.closeConns()).
		Dur("drain_timeout", s.drainTimeout).
		Log("closing connections")
	return pool.Close()
}

// Stop requests shutdown and, if Run has started, waits for it to
// return. It may be called any number of times.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if !s.started.Load() {
		s.setState(StateStopped)
		return nil
	}
	<-s.done
	return nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound address, or nil before StateListening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Port returns the bound port once listening, otherwise the configured
// port.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.port
}

// Latch returns the shutdown latch.
func (s *Server) Latch() *vthreads.ShutdownLatch {
	return s.latch
}

// Listening returns a channel closed once the socket is bound.
func (s *Server) Listening() <-chan struct{} {
	return s.listening
}

// Done returns a channel closed once Run has returned.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Server) track(id uint64, conn net.Conn) {
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// closeConns closes and forgets every tracked connection, returning how
// many there were.
func (s *Server) closeConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conns)
	for id, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, id)
	}
	return n
}

func (s *Server) record(ctx context.Context, ev stats.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.logger.Debug().
			Str("kind", ev.Kind.String()).
			Err(err).
			Log("record failed")
	}
}
