// Package guard coordinates unsaved-changes confirmation across every form of
// an application session. One Guard is shared by all dialogs; it is the only
// state forms share.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type Decision string

const (
	DecisionDiscard Decision = "discard"
	DecisionSave    Decision = "save"
	DecisionStay    Decision = "stay"
)

var (
	ErrNoPendingRequest = errors.New("guard: no close request is pending")
	ErrNoSaveHandler    = errors.New("guard: request has no save handler")
	ErrUnknownDecision  = errors.New("guard: unknown decision")
)

// Request describes a close, navigation or context switch. OnDiscard restores
// the form, OnSave submits it and OnClose performs the close itself. A request
// without an Owner covers the whole session and is intercepted while any
// owner is dirty.
type Request struct {
	Owner     string
	Reason    string
	OnDiscard func(ctx context.Context) error
	OnSave    func(ctx context.Context) error
	OnClose   func(ctx context.Context) error
}

// Prompt is published when the confirmation opens or is dismissed.
type Prompt struct {
	Owner  string `json:"owner"`
	Reason string `json:"reason,omitempty"`
	Open   bool   `json:"open"`
}

type Guard struct {
	mu          sync.Mutex
	dirty       map[string]bool
	pending     *Request
	subscribers map[int]func(Prompt)
	nextID      int
}

func New() *Guard {
	return &Guard{
		dirty:       make(map[string]bool),
		subscribers: make(map[int]func(Prompt)),
	}
}

// MarkDirty records whether owner has unsaved changes.
func (g *Guard) MarkDirty(owner string, dirty bool) {
	g.mu.Lock()
	if dirty {
		g.dirty[owner] = true
	} else {
		delete(g.dirty, owner)
	}
	g.mu.Unlock()
	slog.Debug("Guard dirty flag", "owner", owner, "dirty", dirty)
}

// Dirty reports whether any owner has unsaved changes.
func (g *Guard) Dirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.dirty) > 0
}

func (g *Guard) DirtyOwner(owner string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dirty[owner]
}

// Pending returns the confirmation currently shown, if any.
func (g *Guard) Pending() (Prompt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Prompt{}, false
	}
	return Prompt{Owner: g.pending.Owner, Reason: g.pending.Reason, Open: true}, true
}

// Subscribe registers fn for prompt changes and returns a function removing it.
func (g *Guard) Subscribe(fn func(Prompt)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subscribers[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.subscribers, id)
		g.mu.Unlock()
	}
}

// RequestClose closes at once when the owner is clean. Otherwise it opens the
// confirmation, or replaces the callbacks of the one already open, and
// returns closed=false.
func (g *Guard) RequestClose(ctx context.Context, req Request) (closed bool, err error) {
	g.mu.Lock()
	if !g.blocksLocked(req.Owner) {
		g.mu.Unlock()
		return true, call(ctx, req.OnClose)
	}
	coalesced := g.pending != nil
	r := req
	g.pending = &r
	g.mu.Unlock()
	slog.Debug("Close intercepted", "owner", req.Owner, "reason", req.Reason, "coalesced", coalesced)
	g.publish(Prompt{Owner: req.Owner, Reason: req.Reason, Open: true})
	return false, nil
}

// RequestNavigate leaves the session context, for navigation away or a
// switch of the active client. It goes through the confirmation while any
// form of the session is dirty.
func (g *Guard) RequestNavigate(ctx context.Context, req Request) (navigated bool, err error) {
	req.Owner = ""
	if req.Reason == "" {
		req.Reason = "navigate"
	}
	return g.RequestClose(ctx, req)
}

func (g *Guard) blocksLocked(owner string) bool {
	if owner == "" {
		return len(g.dirty) > 0
	}
	return g.dirty[owner]
}

func (g *Guard) clearLocked(owner string) {
	if owner == "" {
		clear(g.dirty)
		return
	}
	delete(g.dirty, owner)
}

// Resolve applies the user's decision to the pending confirmation. A failed
// save keeps the confirmation open and the owner dirty.
func (g *Guard) Resolve(ctx context.Context, d Decision) error {
	g.mu.Lock()
	req := g.pending
	if req == nil {
		g.mu.Unlock()
		return ErrNoPendingRequest
	}
	switch d {
	case DecisionStay:
		g.pending = nil
		g.mu.Unlock()
		g.publish(Prompt{Owner: req.Owner, Reason: req.Reason})
		return nil
	case DecisionDiscard:
		g.pending = nil
		g.clearLocked(req.Owner)
		g.mu.Unlock()
		g.publish(Prompt{Owner: req.Owner, Reason: req.Reason})
		if err := call(ctx, req.OnDiscard); err != nil {
			return fmt.Errorf("discard changes: %w", err)
		}
		return call(ctx, req.OnClose)
	case DecisionSave:
		g.mu.Unlock()
		if req.OnSave == nil {
			return ErrNoSaveHandler
		}
		if err := req.OnSave(ctx); err != nil {
			slog.Debug("Save before close failed", "owner", req.Owner, "error", err)
			return fmt.Errorf("save changes: %w", err)
		}
		g.mu.Lock()
		g.clearLocked(req.Owner)
		if g.pending == req {
			g.pending = nil
		}
		g.mu.Unlock()
		g.publish(Prompt{Owner: req.Owner, Reason: req.Reason})
		return call(ctx, req.OnClose)
	default:
		g.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownDecision, d)
	}
}

// Forget drops every trace of owner, used when its dialog is destroyed.
func (g *Guard) Forget(owner string) {
	g.mu.Lock()
	delete(g.dirty, owner)
	dismissed := g.pending != nil && g.pending.Owner == owner
	if dismissed {
		g.pending = nil
	}
	g.mu.Unlock()
	if dismissed {
		g.publish(Prompt{Owner: owner})
	}
}

func (g *Guard) publish(p Prompt) {
	g.mu.Lock()
	subs := make([]func(Prompt), 0, len(g.subscribers))
	for _, fn := range g.subscribers {
		subs = append(subs, fn)
	}
	g.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

func call(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
