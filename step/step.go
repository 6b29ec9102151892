// Package step drives a form through an ordered list of steps and the
// submitting, succeeded and failed pseudo-steps.
package step

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tbxark/stepform/form"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

// Step is one screen of the workflow. Fields gated to Index must validate
// before the controller leaves it. Transient fields are cleared on Reset.
type Step struct {
	Index     int
	Name      string
	Terminal  bool
	Submit    submit.Adapter
	Transient []string
}

// State is the single discriminated value the workflow is rendered from.
type State struct {
	Kind    types.Kind     `json:"kind"`
	Step    int            `json:"step"`
	Name    string         `json:"name,omitempty"`
	Failure *submit.Result `json:"failure,omitempty"`
	Payload types.Values   `json:"payload,omitempty"`
}

var (
	ErrNoSteps        = errors.New("step: at least one step is required")
	ErrBusy           = errors.New("step: a submission is in flight")
	ErrInvalid        = errors.New("step: current step has invalid fields")
	ErrLastStep       = errors.New("step: no step after the last one")
	ErrNotFailed      = errors.New("step: no failed submission to recover from")
	ErrNotOnStep      = errors.New("step: workflow is not on a step")
	ErrNoCloseHandler = errors.New("step: no close handler configured")
	ErrNoSubmit       = errors.New("step: last step has no submission")
)

// CloseFunc requests closing the hosting dialog. closed is false when the
// request is waiting for an unsaved-changes decision.
type CloseFunc func(ctx context.Context) (closed bool, err error)

type Controller struct {
	mu        sync.Mutex
	form      *form.Container
	steps     []Step
	state     State
	closeFn   CloseFunc
	observers []func(State)
}

type Option func(*Controller)

func WithClose(fn CloseFunc) Option {
	return func(c *Controller) {
		c.closeFn = fn
	}
}

// WithObserver registers fn to receive every state change.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

func New(f *form.Container, steps []Step, opts ...Option) (*Controller, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	c := &Controller{form: f, steps: make([]Step, len(steps))}
	for i, s := range steps {
		if s.Index != 0 && s.Index != i+1 {
			return nil, fmt.Errorf("step %q has index %d at position %d", s.Name, s.Index, i+1)
		}
		s.Index = i + 1
		c.steps[i] = s
	}
	c.steps[len(c.steps)-1].Terminal = true
	for _, opt := range opts {
		opt(c)
	}
	c.state = c.stepState(1)
	f.SetStep(1)
	return c, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

// Current returns the step the controller is on or last was on.
func (c *Controller) Current() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps[c.state.Step-1]
}

// Advance leaves the current step when its fields validate. A step with an
// adapter submits first and moves on only when the submission succeeds.
func (c *Controller) Advance(ctx context.Context) (State, error) {
	c.mu.Lock()
	switch c.state.Kind {
	case types.KindSubmitting:
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	case types.KindStep:
	default:
		st := c.state
		c.mu.Unlock()
		return st, ErrNotOnStep
	}
	cur := c.steps[c.state.Step-1]
	if res := c.form.Validate(cur.Index); !res.Valid {
		st := c.state
		c.mu.Unlock()
		slog.Debug("Advance blocked by validation", "step", cur.Index, "errors", len(res.Errors))
		return st, ErrInvalid
	}
	if cur.Submit == nil {
		if cur.Index == len(c.steps) {
			st := c.state
			c.mu.Unlock()
			return st, ErrLastStep
		}
		st := c.moveLocked(cur.Index + 1)
		c.mu.Unlock()
		c.publish(st)
		return st, nil
	}
	return c.submitLocked(ctx, cur)
}

// Retreat moves one step back. From step 1, or from the success pseudo-step,
// it requests closing the dialog. From the failed pseudo-step it returns to
// the step that failed.
func (c *Controller) Retreat(ctx context.Context) (State, error) {
	c.mu.Lock()
	switch {
	case c.state.Kind == types.KindSubmitting:
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	case c.state.Kind == types.KindFailed:
		st := c.moveLocked(c.state.Step)
		c.mu.Unlock()
		c.publish(st)
		return st, nil
	case c.state.Kind == types.KindStep && c.state.Step > 1:
		st := c.moveLocked(c.state.Step - 1)
		c.mu.Unlock()
		c.publish(st)
		return st, nil
	case c.state.Kind == types.KindClosed:
		st := c.state
		c.mu.Unlock()
		return st, nil
	}
	closeFn := c.closeFn
	c.mu.Unlock()
	return c.requestClose(ctx, closeFn)
}

// Close requests closing the dialog from any state but submitting.
func (c *Controller) Close(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.state.Kind == types.KindSubmitting {
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	}
	closeFn := c.closeFn
	c.mu.Unlock()
	return c.requestClose(ctx, closeFn)
}

func (c *Controller) requestClose(ctx context.Context, closeFn CloseFunc) (State, error) {
	if closeFn == nil {
		return c.State(), ErrNoCloseHandler
	}
	closed, err := closeFn(ctx)
	if err != nil || !closed {
		return c.State(), err
	}
	return c.MarkClosed(), nil
}

// MarkClosed records that the hosting dialog closed.
func (c *Controller) MarkClosed() State {
	c.mu.Lock()
	c.state = State{Kind: types.KindClosed, Step: c.state.Step, Name: c.state.Name}
	st := c.state
	c.mu.Unlock()
	c.publish(st)
	return st
}

// Reset returns to step 1 and clears the pending submission and every
// transient value.
func (c *Controller) Reset() (State, error) {
	c.mu.Lock()
	if c.state.Kind == types.KindSubmitting {
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	}
	var transient []string
	for _, s := range c.steps {
		transient = append(transient, s.Transient...)
	}
	c.form.ClearPending()
	if len(transient) > 0 {
		c.form.Clear(transient...)
	}
	st := c.moveLocked(1)
	c.mu.Unlock()
	c.publish(st)
	return st, nil
}

// Save validates every field and submits through the last step from
// whichever step the workflow is on. It backs "save" in the unsaved-changes
// confirmation.
func (c *Controller) Save(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.state.Kind == types.KindSubmitting {
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	}
	last := c.steps[len(c.steps)-1]
	if last.Submit == nil {
		st := c.state
		c.mu.Unlock()
		return st, ErrNoSubmit
	}
	if res := c.form.Validate(0); !res.Valid {
		st := c.state
		c.mu.Unlock()
		return st, ErrInvalid
	}
	return c.submitLocked(ctx, last)
}

// Retry re-invokes the submission that failed.
func (c *Controller) Retry(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.state.Kind == types.KindSubmitting {
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	}
	if c.state.Kind != types.KindFailed {
		st := c.state
		c.mu.Unlock()
		return st, ErrNotFailed
	}
	return c.submitLocked(ctx, c.steps[c.state.Step-1])
}

// Recover applies the recovery the failed submission was classified with.
func (c *Controller) Recover(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.state.Kind != types.KindFailed || c.state.Failure == nil {
		st := c.state
		c.mu.Unlock()
		return st, ErrNotFailed
	}
	recovery := c.state.Failure.Recovery
	switch recovery {
	case submit.RecoveryRestart:
		c.mu.Unlock()
		return c.Reset()
	case submit.RecoveryAdjust:
		st := c.moveLocked(c.state.Step)
		c.mu.Unlock()
		c.publish(st)
		return st, nil
	default:
		c.mu.Unlock()
		return c.Retry(ctx)
	}
}

// submitLocked is entered with c.mu held and releases it before the
// network call.
func (c *Controller) submitLocked(ctx context.Context, cur Step) (State, error) {
	if !c.form.BeginSubmit() {
		st := c.state
		c.mu.Unlock()
		return st, ErrBusy
	}
	c.state = State{Kind: types.KindSubmitting, Step: cur.Index, Name: cur.Name}
	submitting := c.state
	values := c.form.Values()
	c.mu.Unlock()
	c.publish(submitting)
	slog.Debug("Submitting step", "step", cur.Index, "name", cur.Name)

	result := c.send(ctx, cur.Submit, values)
	failure := result.Error()
	c.form.EndSubmit(failure)

	c.mu.Lock()
	var st State
	switch {
	case !result.OK():
		r := result
		st = State{Kind: types.KindFailed, Step: cur.Index, Name: cur.Name, Failure: &r}
		c.state = st
	case cur.Terminal:
		st = State{Kind: types.KindSucceeded, Step: cur.Index, Name: cur.Name, Payload: result.Payload}
		c.state = st
	default:
		st = c.moveLocked(cur.Index + 1)
	}
	c.mu.Unlock()
	if st.Kind == types.KindSucceeded {
		c.form.Hydrate(values)
	}
	slog.Debug("Submission settled", "step", cur.Index, "outcome", result.Outcome, "code", result.Code)
	c.publish(st)
	return st, failure
}

// send hands a PatchAdapter the changes since hydration besides the values.
func (c *Controller) send(ctx context.Context, adapter submit.Adapter, values types.Values) submit.Result {
	pa, ok := adapter.(submit.PatchAdapter)
	if !ok {
		return adapter.Submit(ctx, values)
	}
	changes, err := c.form.Changes()
	if err != nil {
		slog.Debug("Merge patch unavailable, submitting values", "error", err)
		return adapter.Submit(ctx, values)
	}
	return pa.SubmitPatch(ctx, values, changes)
}

func (c *Controller) moveLocked(index int) State {
	c.state = c.stepState(index)
	c.form.SetStep(index)
	return c.state
}

func (c *Controller) stepState(index int) State {
	return State{Kind: types.KindStep, Step: index, Name: c.steps[index-1].Name}
}

func (c *Controller) publish(st State) {
	for _, fn := range c.observers {
		fn(st)
	}
}
