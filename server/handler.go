package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/stats"
)

// handle owns conn for its whole life. Transport failures end only this
// connection; they are logged and recorded, never returned. The
// connection is closed as soon as ctx is done, which ends a blocked read.
func (s *Server) handle(ctx context.Context, id uint64, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger := s.logger.Clone().
		Uint64("conn", id).
		Str("peer", conn.RemoteAddr().String()).
		Int("port", s.Port()).
		Logger()

	s.record(ctx, stats.Event{Kind: stats.ConnOpened, Conn: id})
	logger.Debug().Log("connection opened")

	var echo *bufio.Writer
	if s.echo {
		echo = bufio.NewWriter(conn)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				s.record(ctx, stats.Event{Kind: stats.ConnClosed, Conn: id})
				logger.Debug().
					Err(context.Cause(ctx)).
					Log("connection interrupted")
				return nil
			}
			s.transportFailure(ctx, logger, id, err)
			return nil
		}

		s.record(ctx, stats.Event{Kind: stats.LineReceived, Conn: id, Line: line})
		logger.Info().
			Str("line", line).
			Log("received")
		if s.onLine != nil {
			s.onLine(id, line)
		}

		if echo != nil {
			_, _ = echo.WriteString(line)
			_ = echo.WriteByte('\n')
			if err := echo.Flush(); err != nil {
				s.transportFailure(ctx, logger, id, err)
				return nil
			}
		}

		if strings.HasPrefix(line, s.sentinel) {
			if s.latch.Close() {
				s.record(ctx, stats.Event{Kind: stats.ShutdownRequested, Conn: id})
				logger.Info().Log("shutdown requested")
			}
			s.record(ctx, stats.Event{Kind: stats.ConnClosed, Conn: id})
			return nil
		}
	}

	s.record(ctx, stats.Event{Kind: stats.ConnClosed, Conn: id})
	logger.Debug().Log("connection closed")
	return nil
}

// readLine returns the next line without its terminator ("\n" or
// "\r\n"). Lines have no length limit. A final line missing its
// terminator is still returned; io.EOF follows on the next call.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func (s *Server) transportFailure(ctx context.Context, logger *vthreads.Logger, id uint64, err error) {
	s.record(ctx, stats.Event{Kind: stats.ConnFailed, Conn: id})
	logger.Err().
		Err(err).
		Log("connection failed")
}
