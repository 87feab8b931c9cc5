package server

import (
	"context"
	"net"
	"time"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/stats"
)

const (
	// DefaultPort is the port used when none is configured.
	DefaultPort = 8080

	// DefaultSentinel is the line prefix that requests shutdown.
	DefaultSentinel = "exit"

	// DefaultDrainTimeout bounds how long a stopping server waits for
	// its connections to finish on their own.
	DefaultDrainTimeout = 5 * time.Second
)

// ListenFunc opens the listening socket.
type ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

// Option configures a Server, see New.
type Option func(*Server)

// WithAddr sets the host and port to listen on. Port 0 picks an
// ephemeral port, available from Port once the server is listening.
func WithAddr(host string, port int) Option {
	return func(s *Server) {
		s.host = host
		s.port = port
	}
}

// WithPort sets the port to listen on, on all interfaces unless WithAddr
// also set a host.
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithRendezvous sets the rendezvous released once the server is
// listening.
func WithRendezvous(rv *vthreads.Rendezvous) Option {
	return func(s *Server) {
		s.rendezvous = rv
	}
}

// WithLatch sets the shutdown latch, which may be shared with other
// components. By default each server has its own.
func WithLatch(latch *vthreads.ShutdownLatch) Option {
	return func(s *Server) {
		if latch != nil {
			s.latch = latch
		}
	}
}

// WithSentinel sets the line prefix that requests shutdown. An empty
// sentinel is ignored.
func WithSentinel(sentinel string) Option {
	return func(s *Server) {
		if sentinel != "" {
			s.sentinel = sentinel
		}
	}
}

// WithEcho makes handlers write every received line back to the peer.
func WithEcho(echo bool) Option {
	return func(s *Server) {
		s.echo = echo
	}
}

// WithDrainTimeout sets how long a stopping server waits for its
// connections before closing them. Values <= 0 wait indefinitely.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.drainTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *vthreads.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRecorder sets the recorder for connection events.
func WithRecorder(r stats.Recorder) Option {
	return func(s *Server) {
		s.recorder = stats.OrDiscard(r)
	}
}

// WithMaxConns bounds the number of connections handled at once. Excess
// connections are accepted and wait for a free handler. Values <= 0
// leave it unbounded.
func WithMaxConns(n int) Option {
	return func(s *Server) {
		s.maxConns = n
	}
}

// WithLineHandler sets a function called, from the connection's
// handler, with every received line.
func WithLineHandler(fn func(conn uint64, line string)) Option {
	return func(s *Server) {
		s.onLine = fn
	}
}

// WithListen replaces the function used to open the listening socket.
func WithListen(fn ListenFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.listen = fn
		}
	}
}
