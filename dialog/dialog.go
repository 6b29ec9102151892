// Package dialog owns the open/close lifecycle of one form dialog: hydration
// from fetched defaults, stale response guarding and close interception.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tbxark/stepform/form"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/types"
)

type Fetcher interface {
	Fetch(ctx context.Context) (types.Values, error)
}

type FetchFunc func(ctx context.Context) (types.Values, error)

func (f FetchFunc) Fetch(ctx context.Context) (types.Values, error) {
	return f(ctx)
}

type Status string

const (
	StatusClosed  Status = "closed"
	StatusLoading Status = "loading"
	StatusOpen    Status = "open"
)

var (
	// ErrStale is returned when a fetch resolves for an instance that was
	// closed or reopened meanwhile. The response is discarded.
	ErrStale   = errors.New("dialog: stale hydration discarded")
	ErrNotOpen = errors.New("dialog: not open")
)

type Shell struct {
	mu       sync.Mutex
	owner    string
	form     *form.Container
	guard    *guard.Guard
	fetcher  Fetcher
	save     func(ctx context.Context) error
	onClose  []func()
	onOpen   []func()
	instance uuid.UUID
	status   Status
	cancel   context.CancelFunc
	fetchErr error
}

type Option func(*Shell)

// WithOwner sets the name the guard tracks this dialog under. A random
// identity is used otherwise.
func WithOwner(owner string) Option {
	return func(s *Shell) {
		if owner != "" {
			s.owner = owner
		}
	}
}

func WithFetcher(f Fetcher) Option {
	return func(s *Shell) {
		s.fetcher = f
	}
}

// WithSave registers the submit function offered by "save" in the
// unsaved-changes confirmation.
func WithSave(fn func(ctx context.Context) error) Option {
	return func(s *Shell) {
		s.save = fn
	}
}

func WithOnClose(fn func()) Option {
	return func(s *Shell) {
		if fn != nil {
			s.onClose = append(s.onClose, fn)
		}
	}
}

// WithOnHydrate registers fn to run after every successful hydration.
func WithOnHydrate(fn func()) Option {
	return func(s *Shell) {
		if fn != nil {
			s.onOpen = append(s.onOpen, fn)
		}
	}
}

func New(f *form.Container, g *guard.Guard, opts ...Option) *Shell {
	s := &Shell{
		owner:  "dialog-" + uuid.NewString(),
		form:   f,
		guard:  g,
		status: StatusClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	f.OnDirty(func(dirty bool) {
		g.MarkDirty(s.owner, dirty)
	})
	return s
}

func (s *Shell) Owner() string {
	return s.owner
}

func (s *Shell) Form() *form.Container {
	return s.form
}

func (s *Shell) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Instance identifies the current opening of the dialog; uuid.Nil when closed.
func (s *Shell) Instance() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance
}

// FetchError is the error of the last hydration, if it failed.
func (s *Shell) FetchError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

// Open starts a new instance and hydrates the form from the fetcher. It
// blocks until the fetch resolves. Opening again cancels an earlier fetch.
func (s *Shell) Open(ctx context.Context) (uuid.UUID, error) {
	id, fetchCtx := s.begin(ctx)
	slog.Debug("Dialog opening", "owner", s.owner, "instance", id)
	return id, s.hydrate(fetchCtx, id)
}

// Reload re-hydrates the open dialog, for instance after the selected entity
// changed. Unsaved changes are confirmed through the guard first; reloaded is
// false while the confirmation is pending.
func (s *Shell) Reload(ctx context.Context) (reloaded bool, err error) {
	if s.Status() == StatusClosed {
		return false, ErrNotOpen
	}
	return s.guard.RequestClose(ctx, guard.Request{
		Owner:     s.owner,
		Reason:    "reload",
		OnDiscard: s.discard,
		OnSave:    s.saveFn(),
		OnClose: func(ctx context.Context) error {
			id, fetchCtx := s.begin(ctx)
			return s.hydrate(fetchCtx, id)
		},
	})
}

// Close closes the dialog, through the unsaved-changes confirmation when the
// form is dirty. closed is false while the confirmation is pending.
func (s *Shell) Close(ctx context.Context) (closed bool, err error) {
	return s.guard.RequestClose(ctx, guard.Request{
		Owner:     s.owner,
		Reason:    "close",
		OnDiscard: s.discard,
		OnSave:    s.saveFn(),
		OnClose:   s.closeNow,
	})
}

// Destroy closes without confirmation and drops the dialog from the guard.
func (s *Shell) Destroy() {
	_ = s.closeNow(context.Background())
	s.guard.Forget(s.owner)
}

func (s *Shell) begin(ctx context.Context) (uuid.UUID, context.Context) {
	fetchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.instance = uuid.New()
	s.status = StatusLoading
	s.cancel = cancel
	s.fetchErr = nil
	id := s.instance
	s.mu.Unlock()
	return id, fetchCtx
}

func (s *Shell) hydrate(ctx context.Context, id uuid.UUID) error {
	values := types.Values{}
	var err error
	if s.fetcher != nil {
		values, err = s.fetcher.Fetch(ctx)
	}

	s.mu.Lock()
	if s.instance != id {
		s.mu.Unlock()
		slog.Debug("Discarding stale hydration", "owner", s.owner, "instance", id)
		return ErrStale
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err != nil {
		s.status = StatusOpen
		s.fetchErr = err
		s.mu.Unlock()
		return fmt.Errorf("hydrate dialog: %w", err)
	}
	s.status = StatusOpen
	hooks := append([]func(){}, s.onOpen...)
	s.mu.Unlock()

	s.guard.MarkDirty(s.owner, false)
	s.form.Hydrate(values)
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (s *Shell) discard(ctx context.Context) error {
	s.form.Reset()
	return nil
}

func (s *Shell) saveFn() func(ctx context.Context) error {
	if s.save == nil {
		return nil
	}
	return s.save
}

func (s *Shell) closeNow(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.instance = uuid.Nil
	s.status = StatusClosed
	hooks := append([]func(){}, s.onClose...)
	s.mu.Unlock()
	slog.Debug("Dialog closed", "owner", s.owner)
	for _, fn := range hooks {
		fn()
	}
	return nil
}
