// Package stats records runtime events of the server, client, and bulk
// dispatcher. Recording is best effort: callers log a failed Record and
// carry on.
package stats

import (
	"context"
	"strconv"
	"time"
)

// Kind identifies what an Event describes.
type Kind int

const (
	ConnOpened Kind = iota + 1
	LineReceived
	ConnClosed
	ConnFailed
	ShutdownRequested
	ServerListening
	ClientDialed
	TaskCompleted
)

var kindNames = [...]string{
	ConnOpened:        "conn_opened",
	LineReceived:      "line_received",
	ConnClosed:        "conn_closed",
	ConnFailed:        "conn_failed",
	ShutdownRequested: "shutdown_requested",
	ServerListening:   "server_listening",
	ClientDialed:      "client_dialed",
	TaskCompleted:     "task_completed",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Event is a single recorded occurrence. Conn is set for connection
// events, Index for task events, and Line for LineReceived. Seq is
// assigned by recorders that order events.
type Event struct {
	Kind  Kind
	Conn  uint64
	Index int
	Line  string
	At    time.Time
	Seq   uint64
}

// Recorder stores events. Implementations must be safe for concurrent
// use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// OrDiscard returns r, or Discard if r is nil.
func OrDiscard(r Recorder) Recorder {
	if r == nil {
		return Discard
	}
	return r
}
