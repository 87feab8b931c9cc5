package vthreads

import "github.com/joeycumines/logiface"

// Logger is the logging handle injected into every component. A nil
// *Logger discards everything.
type Logger = logiface.Logger[logiface.Event]

// Component returns a sub-logger of l that tags every event with the
// given component name. It returns nil if l is nil.
func Component(l *Logger, name string) *Logger {
	return l.Clone().Str("component", name).Logger()
}
