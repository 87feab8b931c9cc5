package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmp/vthreads"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// ParseLevel maps a level name, as printed by logiface.Level.String or
// spelled out in full, to its level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "informational", "":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("config: unknown log level %q", s)
	}
}

// NewLogger returns a JSON lines logger writing to w.
func NewLogger(w io.Writer, level logiface.Level) *vthreads.Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}
