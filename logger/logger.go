// Package logger builds the slog loggers used by the stepform binaries.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Mode uint8

const (
	ModeDev Mode = iota
	ModeProd
	ModeSilent
)

func (m Mode) String() string {
	switch m {
	case ModeProd:
		return "prod"
	case ModeSilent:
		return "silent"
	default:
		return "dev"
	}
}

// ParseMode accepts dev, prod and silent. An empty string is dev.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dev", "development":
		return ModeDev, nil
	case "prod", "production":
		return ModeProd, nil
	case "silent", "silence", "off":
		return ModeSilent, nil
	}
	return ModeDev, fmt.Errorf("unknown log mode %q", s)
}

// New returns a logger for mode. Dev writes debug text to stderr, prod
// writes info JSON to stdout.
func New(mode Mode) *slog.Logger {
	return slog.New(NewHandler(mode, nil))
}

// NewHandler builds the handler for mode writing to w, or to the mode's
// default stream when w is nil.
func NewHandler(mode Mode, w io.Writer) slog.Handler {
	switch mode {
	case ModeProd:
		if w == nil {
			w = os.Stdout
		}
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	case ModeSilent:
		return slog.NewTextHandler(io.Discard, nil)
	default:
		if w == nil {
			w = os.Stderr
		}
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
}
