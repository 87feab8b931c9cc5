package server

import (
	"errors"
	"fmt"
)

// ErrServerClosed is returned by Run if the server was stopped before
// it started, or has already run.
var ErrServerClosed = errors.New("server: closed")

// StartupError reports a failure to bind the listening socket. It is
// fatal to Run and is never retried.
type StartupError struct {
	Addr string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("server: listen on %s: %v", e.Addr, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
