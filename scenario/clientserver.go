package scenario

import (
	"context"
	"errors"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/client"
	"github.com/jmp/vthreads/server"
)

var errServerExited = errors.New("scenario: server exited before listening")

// ClientServer starts a server, waits on a rendezvous until it is
// listening, then runs a client against it and waits for both.
type ClientServer struct {
	host string
	port int
	settings
}

// NewClientServer returns the scenario for the given listen address.
// Port 0 listens on an ephemeral port, which the client is pointed at.
func NewClientServer(host string, port int, opts ...Option) *ClientServer {
	return &ClientServer{
		host:     host,
		port:     port,
		settings: newSettings(opts),
	}
}

// Name implements Scenario.
func (*ClientServer) Name() string { return "client-server" }

// Run implements Scenario. It returns the server's failure, if any, or
// an InterruptedError if ctx ended the run; client failures are logged
// only. Run never returns while either unit
// is still running.
func (cs *ClientServer) Run(ctx context.Context) error {
	logger := vthreads.Component(cs.logger, "client-server")

	pool := vthreads.NewPool(ctx,
		vthreads.WithPoolName("client-server"),
		vthreads.WithPoolLogger(logger),
	)

	rv := vthreads.NewRendezvous()
	srv := server.New(append([]server.Option{
		server.WithAddr(cs.host, cs.port),
		server.WithRendezvous(rv),
		server.WithLogger(cs.logger),
		server.WithRecorder(cs.recorder),
	}, cs.serverOpts...)...)

	ready, cancelReady := context.WithCancelCause(ctx)
	defer cancelReady(nil)

	serverUnit := pool.Go(func(ctx context.Context) error {
		defer cancelReady(errServerExited)
		return srv.Run(ctx)
	})

	logger.Debug().Log("waiting for server")
	if err := rv.Acquire(ready); err != nil {
		_ = srv.Stop()
		serverErr := serverUnit.Join(context.Background())
		_ = pool.Close()
		if serverErr != nil {
			return serverErr
		}
		logger.Err().
			Err(err).
			Log("rendezvous interrupted")
		return err
	}

	host := cs.host
	if host == "" {
		host = client.DefaultHost
	}
	cl := client.New(srv.Port(), append([]client.Option{
		client.WithHost(host),
		client.WithLogger(cs.logger),
		client.WithRecorder(cs.recorder),
		client.WithPool(pool),
	}, cs.clientOpts...)...)

	var report client.Report
	clientUnit := pool.Go(func(ctx context.Context) (err error) {
		report, err = cl.Transmit(ctx)
		return err
	})

	logger.Debug().Log("waiting for client")
	clientErr := clientUnit.Join(context.Background())
	if clientErr != nil || report.Failed > 0 {
		logger.Err().
			Int("port", srv.Port()).
			Int("failed", report.Failed).
			Err(clientErr).
			Log("client did not deliver its script")
		// without the sentinel the server would never stop
		_ = srv.Stop()
	}

	logger.Debug().Log("waiting for server")
	serverErr := serverUnit.Join(context.Background())

	// unit failures were already logged by the pool
	_ = pool.Close()

	if serverErr == nil && ctx.Err() != nil {
		return vthreads.Interrupted("client-server", ctx)
	}
	return serverErr
}
