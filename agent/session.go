package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tbxark/stepform"
)

var ErrNoSessionKey = errors.New("session key not found in context")

type Cache[S any] interface {
	Set(ctx context.Context, key string, val S) error
	Get(ctx context.Context, key string) (S, bool, error)
	Del(ctx context.Context, key string) error
}

type MemoryCache[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

func NewMemoryCache[S any]() *MemoryCache[S] {
	return &MemoryCache[S]{m: map[string]S{}}
}

func (m *MemoryCache[S]) Set(ctx context.Context, key string, val S) error {
	m.mu.Lock()
	m.m[key] = val
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	m.mu.RLock()
	val, ok := m.m[key]
	m.mu.RUnlock()
	return val, ok, nil
}

func (m *MemoryCache[S]) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

// Store scopes a Cache to a namespace and the session key of the context.
type Store[S any] struct {
	core      Cache[S]
	namespace string
}

func NewStore[S any](core Cache[S], namespace string) Store[S] {
	return Store[S]{core: core, namespace: namespace}
}

func (s Store[S]) key(ctx context.Context) (string, error) {
	key, ok := SessionKeyFromContext(ctx)
	if !ok {
		return "", ErrNoSessionKey
	}
	return s.namespace + ":" + key, nil
}

func (s Store[S]) Set(ctx context.Context, val S) error {
	key, err := s.key(ctx)
	if err != nil {
		return err
	}
	return s.core.Set(ctx, key, val)
}

func (s Store[S]) Get(ctx context.Context) (S, bool, error) {
	key, err := s.key(ctx)
	if err != nil {
		var zero S
		return zero, false, err
	}
	return s.core.Get(ctx, key)
}

func (s Store[S]) Del(ctx context.Context) error {
	key, err := s.key(ctx)
	if err != nil {
		return err
	}
	return s.core.Del(ctx, key)
}

type sessionKeyContext struct{}

// WithSessionKey routes session and history lookups made with ctx.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyContext{}, key)
}

func SessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyContext{}).(string)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Session is one conversation driving one workflow.
type Session struct {
	Workflow       *stepform.Workflow
	LatestQuestion string
}

// WorkflowFactory builds the workflow a new session drives.
type WorkflowFactory func(ctx context.Context) (*stepform.Workflow, error)

type SessionStore struct {
	mu      sync.Mutex
	store   Store[*Session]
	factory WorkflowFactory
}

func NewSessionStore(core Cache[*Session], factory WorkflowFactory) *SessionStore {
	return &SessionStore{
		store:   NewStore(core, "stepform:session"),
		factory: factory,
	}
}

func NewMemorySessionStore(factory WorkflowFactory) *SessionStore {
	return NewSessionStore(NewMemoryCache[*Session](), factory)
}

// Load returns the session of ctx, opening a fresh workflow on first use.
// created reports whether the session was built by this call.
func (s *SessionStore) Load(ctx context.Context) (sess *Session, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok, err := s.store.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return sess, false, nil
	}
	wf, err := s.factory(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build workflow: %w", err)
	}
	sess = &Session{Workflow: wf}
	if err := s.store.Set(ctx, sess); err != nil {
		wf.Destroy()
		return nil, false, err
	}
	if _, err := wf.Open(ctx); err != nil {
		slog.Debug("Workflow open failed", "form", wf.Name(), "error", err)
		return sess, true, fmt.Errorf("failed to open workflow: %w", err)
	}
	return sess, true, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	return s.store.Set(ctx, sess)
}

// Remove destroys the session's workflow and forgets the session.
func (s *SessionStore) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	if ok && sess.Workflow != nil {
		sess.Workflow.Destroy()
	}
	return s.store.Del(ctx)
}
