// Package httpapi serves stepform workflows over HTTP. A session owns one
// unsaved-changes guard and the workflows opened in it.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/metrics"
	"github.com/tbxark/stepform/notify"
	"golang.org/x/text/language"
)

var (
	ErrUnknownSession = errors.New("httpapi: unknown session")
	ErrUnknownForm    = errors.New("httpapi: unknown form")
	ErrNotOpened      = errors.New("httpapi: form is not opened in this session")
	ErrUnsavedChanges = errors.New("httpapi: session has unsaved changes")
)

type session struct {
	mu        sync.Mutex
	guard     *guard.Guard
	toasts    *notify.Recorder
	workflows map[string]*stepform.Workflow
}

// saveDirty saves every dirty workflow of the session, stopping at the first
// failure so the confirmation stays open.
func (sess *session) saveDirty(ctx context.Context) error {
	for _, wf := range sess.snapshot() {
		if !wf.View().Dirty {
			continue
		}
		if _, err := wf.Save(ctx); err != nil {
			return fmt.Errorf("save %s: %w", wf.Name(), err)
		}
	}
	return nil
}

// closeAll destroys every workflow; the next open hydrates from scratch.
func (sess *session) closeAll() {
	sess.mu.Lock()
	workflows := sess.workflows
	sess.workflows = map[string]*stepform.Workflow{}
	sess.mu.Unlock()
	for _, wf := range workflows {
		wf.Destroy()
	}
}

func (sess *session) snapshot() []*stepform.Workflow {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]*stepform.Workflow, 0, len(sess.workflows))
	for _, wf := range sess.workflows {
		out = append(out, wf)
	}
	return out
}

type Server struct {
	mu       sync.RWMutex
	defs     map[string]stepform.Definition
	sessions map[uuid.UUID]*session
	notifier notify.Notifier
	lang     language.Tag
	log      *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Server)

// WithNotifier forwards every toast to n besides the session recorder.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

func WithLanguage(tag language.Tag) Option {
	return func(s *Server) {
		s.lang = tag
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics counts requests and serves GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func New(defs []stepform.Definition, opts ...Option) *Server {
	s := &Server{
		defs:     make(map[string]stepform.Definition, len(defs)),
		sessions: map[uuid.UUID]*session{},
		lang:     language.English,
		log:      slog.Default(),
	}
	for _, d := range defs {
		s.defs[d.Name] = d
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with request ids, access logs, gzip and panic
// recovery installed.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(AccessLog(s.log))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(Compress)
	r.Use(middleware.Recoverer)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/forms", s.listForms)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Delete("/", s.deleteSession)
			r.Post("/navigate", s.navigate)
			r.Get("/prompt", s.prompt)
			r.Post("/resolve", s.resolve)
			r.Get("/toasts", s.drainToasts)
			r.Route("/forms/{form}", func(r chi.Router) {
				r.Post("/open", s.open)
				r.Get("/", s.view)
				r.Put("/fields", s.setFields)
				r.Patch("/", s.applyPatch)
				r.Get("/changes", s.changes)
				r.Post("/advance", s.action(advance))
				r.Post("/retreat", s.action(retreat))
				r.Post("/close", s.action(closeForm))
				r.Post("/reset", s.action(reset))
				r.Post("/retry", s.action(retry))
				r.Post("/recover", s.action(recoverFailure))
				r.Post("/reload", s.action(reload))
			})
		})
	})
	return r
}

func (s *Server) session(r *http.Request) (*session, error) {
	id, err := uuid.Parse(chi.URLParam(r, "session"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSession, err)
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess, nil
}

// workflow returns the opened workflow named by the URL, creating it when
// create is set.
func (s *Server) workflow(r *http.Request, create bool) (*session, *stepform.Workflow, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, nil, err
	}
	name := chi.URLParam(r, "form")
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if wf, ok := sess.workflows[name]; ok {
		return sess, wf, nil
	}
	if !create {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotOpened, name)
	}
	def, ok := s.defs[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownForm, name)
	}
	var n notify.Notifier = sess.toasts
	if s.notifier != nil {
		n = notify.Multi{sess.toasts, s.notifier}
	}
	wf, err := stepform.New(def, sess.guard, stepform.WithNotifier(n), stepform.WithLanguage(s.lang))
	if err != nil {
		return nil, nil, err
	}
	sess.workflows[name] = wf
	return sess, wf, nil
}

func (s *Server) names() []string {
	out := make([]string, 0, len(s.defs))
	for name := range s.defs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty request body")
	}
	return sonic.Unmarshal(data, v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.log.Error("Encode response failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
