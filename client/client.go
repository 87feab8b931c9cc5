// Package client sends scripted groups of lines to a line-oriented
// server, one short-lived connection per group.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/stats"
)

// DefaultHost is the host dialed when none is configured.
const DefaultHost = "localhost"

// DefaultDialTimeout bounds each connection attempt.
const DefaultDialTimeout = 5 * time.Second

var natoAlphabet = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
	"hotel", "india", "juliett", "kilo", "lima", "mike", "november",
	"oscar", "papa", "quebec", "romeo", "sierra", "tango", "uniform",
	"uniform", "victor", "whiskey", "xray", "zulu",
}

// DefaultScript returns the demo script: a "start" connection, a
// connection carrying the NATO alphabet, and a final "exit" connection.
func DefaultScript() [][]string {
	return [][]string{
		{"start"},
		append([]string(nil), natoAlphabet...),
		{"exit"},
	}
}

// Dialer opens connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnectError reports that one group of lines could not be delivered.
type ConnectError struct {
	Addr  string
	Group int
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("client: group %d to %s: %v", e.Group, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Report summarizes a Transmit call.
type Report struct {
	// Groups is the number of groups delivered.
	Groups int
	// Lines is the number of lines delivered.
	Lines int
	// Failed is the number of groups that could not be delivered.
	Failed int
}

// Client transmits a script of line groups.
//
// Instances must be initialized using New.
type Client struct {
	host        string
	port        int
	script      [][]string
	dialer      Dialer
	dialTimeout time.Duration
	logger      *vthreads.Logger
	recorder    stats.Recorder
	pool        *vthreads.Pool
}

// Option configures a Client, see New.
type Option func(*Client)

// WithHost sets the host to dial.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

// WithScript sets the groups of lines to send. The last group is sent
// only after every other group, and is expected to carry the sentinel.
func WithScript(script [][]string) Option {
	return func(c *Client) {
		c.script = script
	}
}

// WithDialer replaces the dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithDialTimeout bounds each connection attempt. Values <= 0 leave only
// the context as a bound.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *vthreads.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRecorder sets the recorder, which receives a ClientDialed event
// before every connection attempt.
func WithRecorder(r stats.Recorder) Option {
	return func(c *Client) {
		c.recorder = stats.OrDiscard(r)
	}
}

// WithPool runs the groups on p instead of a pool owned by Transmit. The
// caller remains responsible for closing p.
func WithPool(p *vthreads.Pool) Option {
	return func(c *Client) {
		c.pool = p
	}
}

// New returns a client for the given port, with DefaultScript.
func New(port int, opts ...Option) *Client {
	c := &Client{
		host:        DefaultHost,
		port:        port,
		script:      DefaultScript(),
		dialer:      new(net.Dialer),
		dialTimeout: DefaultDialTimeout,
		recorder:    stats.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = vthreads.Component(c.logger, "client")
	return c
}

// Addr returns the address dialed.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Transmit sends every group but the last concurrently, each on its own
// connection and unit, and then the last group once the others are
// done. Delivery failures are logged and counted in the Report; the only
// error returned is an InterruptedError if ctx ends first.
func (c *Client) Transmit(ctx context.Context) (Report, error) {
	var report Report
	if len(c.script) == 0 {
		return report, nil
	}

	pool := c.pool
	if pool == nil {
		pool = vthreads.NewPool(ctx,
			vthreads.WithPoolName("client"),
			vthreads.WithPoolLogger(c.logger),
		)
		defer pool.Close()
	}

	c.logger.Info().
		Str("addr", c.Addr()).
		Int("groups", len(c.script)).
		Log("transmitting")

	last := len(c.script) - 1
	failures := make([]error, len(c.script))
	spawn := func(i int) *vthreads.Unit {
		return pool.Go(func(ctx context.Context) error {
			failures[i] = c.send(ctx, i, c.script[i])
			return nil
		})
	}

	units := make([]*vthreads.Unit, last)
	for i := range units {
		units[i] = spawn(i)
	}
	for i, u := range units {
		if err := c.tally(ctx, &report, u, failures, i); err != nil {
			return report, err
		}
	}

	if err := ctx.Err(); err != nil {
		return report, vthreads.Interrupted("client transmit", ctx)
	}

	if err := c.tally(ctx, &report, spawn(last), failures, last); err != nil {
		return report, err
	}

	c.logger.Info().
		Int("groups", report.Groups).
		Int("lines", report.Lines).
		Int("failed", report.Failed).
		Log("transmitted")
	return report, nil
}

// tally joins the unit sending group i. Failures stay out of the pool,
// so that a shared pool never reports them.
func (c *Client) tally(ctx context.Context, report *Report, u *vthreads.Unit, failures []error, i int) error {
	err := u.Join(ctx)
	switch {
	case errors.Is(err, vthreads.ErrInterrupted):
		return err
	case err == nil && failures[i] == nil:
		report.Groups++
		report.Lines += len(c.script[i])
	default:
		report.Failed++
	}
	return nil
}

// send delivers one group on a fresh connection, closing it afterwards.
func (c *Client) send(ctx context.Context, group int, lines []string) error {
	addr := c.Addr()

	dialCtx := ctx
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	if err := c.recorder.Record(ctx, stats.Event{Kind: stats.ClientDialed, Index: group, At: time.Now()}); err != nil {
		c.logger.Debug().
			Err(err).
			Log("record failed")
	}

	conn, err := c.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return c.failure(group, addr, err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return c.failure(group, addr, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return c.failure(group, addr, err)
		}
	}
	if err := w.Flush(); err != nil {
		return c.failure(group, addr, err)
	}

	c.logger.Debug().
		Int("group", group).
		Int("lines", len(lines)).
		Log("group sent")
	return nil
}

func (c *Client) failure(group int, addr string, err error) error {
	err = &ConnectError{Addr: addr, Group: group, Err: err}
	c.logger.Err().
		Int("group", group).
		Int("port", c.port).
		Err(err).
		Log("transmit failed")
	return err
}
