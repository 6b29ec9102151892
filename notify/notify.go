// Package notify is the fire-and-forget toast surface used by workflows.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
)

type Position string

const (
	PositionTopRight    Position = "top-right"
	PositionTopCenter   Position = "top-center"
	PositionBottomRight Position = "bottom-right"
)

const DefaultDuration = 3 * time.Second

type Toast struct {
	Kind     Kind          `json:"kind"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	Position Position      `json:"position"`
}

// Notifier shows a toast. Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, t Toast)
}

// Func adapts a function into a Notifier.
type Func func(ctx context.Context, t Toast)

func (f Func) Notify(ctx context.Context, t Toast) {
	f(ctx, t)
}

func New(kind Kind, message string) Toast {
	return Toast{Kind: kind, Message: message, Duration: DefaultDuration, Position: PositionTopRight}
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, t Toast) {
	level := slog.LevelInfo
	switch t.Kind {
	case KindError:
		level = slog.LevelError
	case KindWarning:
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "Toast", "kind", t.Kind, "message", t.Message, "duration", t.Duration, "position", t.Position)
}

// Recorder keeps every toast in memory. The HTTP view drains it.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(_ context.Context, t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Drain returns the recorded toasts and forgets them.
func (r *Recorder) Drain() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.toasts
	r.toasts = nil
	return out
}

type Multi []Notifier

func (m Multi) Notify(ctx context.Context, t Toast) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, t)
		}
	}
}

// Discard drops every toast.
var Discard Notifier = Func(func(context.Context, Toast) {})
