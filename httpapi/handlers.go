package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/form"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/patch"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type viewResponse struct {
	View  *stepform.View `json:"view,omitempty"`
	Error *apiError      `json:"error,omitempty"`
}

type fieldsRequest struct {
	Values types.Values `json:"values"`
}

type patchRequest struct {
	Ops []patch.Operation `json:"ops"`
}

type resolveRequest struct {
	Decision guard.Decision `json:"decision"`
}

type navigateRequest struct {
	Reason string `json:"reason"`
}

// sessionResponse answers session-wide requests. Navigated is false while the
// unsaved-changes prompt waits for a decision.
type sessionResponse struct {
	Navigated bool          `json:"navigated"`
	Prompt    *guard.Prompt `json:"prompt"`
	Error     *apiError     `json:"error,omitempty"`
}

var errorTable = []struct {
	target error
	status int
	code   string
}{
	{ErrUnknownSession, http.StatusNotFound, "unknown_session"},
	{ErrUnknownForm, http.StatusNotFound, "unknown_form"},
	{ErrNotOpened, http.StatusNotFound, "not_opened"},
	{ErrUnsavedChanges, http.StatusConflict, "unsaved_changes"},
	{step.ErrBusy, http.StatusConflict, "busy"},
	{step.ErrInvalid, http.StatusUnprocessableEntity, "invalid"},
	{form.ErrUnknownField, http.StatusUnprocessableEntity, "unknown_field"},
	{form.ErrReadOnlyField, http.StatusUnprocessableEntity, "read_only_field"},
	{patch.ErrPathNotAllowed, http.StatusUnprocessableEntity, "path_not_allowed"},
	{step.ErrLastStep, http.StatusConflict, "last_step"},
	{step.ErrNotFailed, http.StatusConflict, "not_failed"},
	{step.ErrNotOnStep, http.StatusConflict, "not_on_step"},
	{guard.ErrNoPendingRequest, http.StatusConflict, "no_pending_request"},
	{guard.ErrUnknownDecision, http.StatusBadRequest, "unknown_decision"},
	{dialog.ErrNotOpen, http.StatusConflict, "not_open"},
	{dialog.ErrStale, http.StatusConflict, "stale"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{context.Canceled, http.StatusRequestTimeout, "canceled"},
}

// classify maps an error to its HTTP status and a stable code.
func classify(err error) (int, string) {
	var failure *submit.Failure
	if errors.As(err, &failure) {
		if failure.Outcome == submit.OutcomeTransport {
			return http.StatusBadGateway, string(failure.Outcome)
		}
		return http.StatusUnprocessableEntity, string(failure.Outcome)
	}
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= 500 {
		s.log.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, viewResponse{Error: &apiError{Code: code, Message: err.Error()}})
}

// respond writes the workflow view; a non-nil err sets the status while the
// view still describes the state the error left behind.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v stepform.View, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, viewResponse{View: &v})
		return
	}
	status, code := classify(err)
	if status >= 500 {
		s.log.Error("Workflow operation failed", "path", r.URL.Path, "form", v.Form, "error", err)
	}
	s.writeJSON(w, status, viewResponse{View: &v, Error: &apiError{Code: code, Message: err.Error()}})
}

func (s *Server) listForms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"forms": s.names()})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.New()
	sess := &session{
		guard:     guard.New(),
		toasts:    &notify.Recorder{},
		workflows: map[string]*stepform.Workflow{},
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.writeJSON(w, http.StatusCreated, map[string]string{"session": id.String()})
}

// deleteSession tears the session down. While a form is dirty it raises the
// session-wide confirmation instead and answers 409; resolving it with save
// or discard finishes the teardown.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, _ := uuid.Parse(chi.URLParam(r, "session"))
	closed, err := sess.guard.RequestNavigate(r.Context(), guard.Request{
		Reason: "teardown",
		OnSave: sess.saveDirty,
		OnClose: func(context.Context) error {
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
			sess.closeAll()
			return nil
		},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !closed {
		s.unsaved(w, sess)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// navigate switches the session's client context. Every form is closed once
// the switch goes through.
func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req navigateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, viewResponse{Error: &apiError{Code: "bad_request", Message: err.Error()}})
			return
		}
	}
	navigated, err := sess.guard.RequestNavigate(r.Context(), guard.Request{
		Reason: req.Reason,
		OnSave: sess.saveDirty,
		OnClose: func(context.Context) error {
			sess.closeAll()
			return nil
		},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !navigated {
		s.unsaved(w, sess)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Navigated: true})
}

func (s *Server) unsaved(w http.ResponseWriter, sess *session) {
	out := sessionResponse{Error: &apiError{Code: "unsaved_changes", Message: ErrUnsavedChanges.Error()}}
	if p, ok := sess.guard.Pending(); ok {
		out.Prompt = &p
	}
	s.writeJSON(w, http.StatusConflict, out)
}

func (s *Server) prompt(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := map[string]any{"prompt": nil}
	if p, ok := sess.guard.Pending(); ok {
		out["prompt"] = p
	}
	s.writeJSON(w, http.StatusOK, out)
}

// resolve answers the session's pending unsaved-changes prompt, on behalf of
// the workflow that raised it or of the session itself.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, viewResponse{Error: &apiError{Code: "bad_request", Message: err.Error()}})
		return
	}
	p, ok := sess.guard.Pending()
	if !ok {
		s.fail(w, r, guard.ErrNoPendingRequest)
		return
	}
	if p.Owner == "" {
		if err := sess.guard.Resolve(r.Context(), req.Decision); err != nil {
			s.fail(w, r, err)
			return
		}
		out := sessionResponse{Navigated: req.Decision != guard.DecisionStay}
		if next, ok := sess.guard.Pending(); ok {
			out.Prompt = &next
		}
		s.writeJSON(w, http.StatusOK, out)
		return
	}
	var owner *stepform.Workflow
	for _, wf := range sess.snapshot() {
		if wf.Owner() == p.Owner {
			owner = wf
			break
		}
	}
	if owner == nil {
		s.fail(w, r, guard.ErrNoPendingRequest)
		return
	}
	v, err := owner.Resolve(r.Context(), req.Decision)
	s.respond(w, r, v, err)
}

func (s *Server) drainToasts(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toasts := sess.toasts.Drain()
	if toasts == nil {
		toasts = []notify.Toast{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"toasts": toasts})
}

func (s *Server) open(w http.ResponseWriter, r *http.Request) {
	_, wf, err := s.workflow(r, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := wf.Open(r.Context())
	s.respond(w, r, v, err)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	_, wf, err := s.workflow(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, wf.View(), nil)
}

func (s *Server) setFields(w http.ResponseWriter, r *http.Request) {
	_, wf, err := s.workflow(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req fieldsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, viewResponse{Error: &apiError{Code: "bad_request", Message: err.Error()}})
		return
	}
	v, err := wf.SetFields(req.Values)
	s.respond(w, r, v, err)
}

func (s *Server) applyPatch(w http.ResponseWriter, r *http.Request) {
	_, wf, err := s.workflow(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, viewResponse{Error: &apiError{Code: "bad_request", Message: err.Error()}})
		return
	}
	v, err := wf.ApplyPatch(req.Ops)
	s.respond(w, r, v, err)
}

// changes lists the unsaved edits as RFC6902 operations against the loaded
// values.
func (s *Server) changes(w http.ResponseWriter, r *http.Request) {
	_, wf, err := s.workflow(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ops, err := wf.Form().Diff()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ops == nil {
		ops = []patch.Operation{}
	}
	s.writeJSON(w, http.StatusOK, patchRequest{Ops: ops})
}

// action adapts a workflow operation into a handler.
func (s *Server) action(op func(*stepform.Workflow, *http.Request) (stepform.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, wf, err := s.workflow(r, false)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		v, err := op(wf, r)
		s.respond(w, r, v, err)
	}
}

func advance(wf *stepform.Workflow, r *http.Request) (stepform.View, error) {
	return wf.Advance(r.Context())
}

func retreat(wf *stepform.Workflow, r *http.Request) (stepform.View, error) {
	return wf.Retreat(r.Context())
}

func closeForm(wf *stepform.Workflow, r *http.Request) (stepform.View, error) {
	return wf.Close(r.Context())
}

func reset(wf *stepform.Workflow, _ *http.Request) (stepform.View, error) {
	return wf.Reset()
}

func retry(wf *stepform.Workflow, r *http.Request) (stepform.View, error) {
	return wf.Retry(r.Context())
}

func recoverFailure(wf *stepform.Workflow, r *http.Request) (stepform.View, error) {
	return wf.Recover(r.Context())
}

func reload(wf *stepform.Workflow, r *http.Request) (stepform.View, error) {
	return wf.Reload(r.Context())
}
