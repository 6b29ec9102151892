// Package submit performs the remote call behind a form submission and
// classifies its outcome.
package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbxark/stepform/types"
)

type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeValidation Outcome = "validation_failure"
	OutcomeDomain     Outcome = "domain_failure"
	OutcomeTransport  Outcome = "transport_failure"
)

// Recovery is the affordance offered after a failed submission.
type Recovery string

const (
	RecoveryRetry   Recovery = "retry"
	RecoveryAdjust  Recovery = "adjust"
	RecoveryRestart Recovery = "restart"
)

type Result struct {
	Outcome     Outcome             `json:"outcome"`
	Payload     types.Values        `json:"payload,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
	FormErrors  []string            `json:"form_errors,omitempty"`
	Code        string              `json:"code,omitempty"`
	Params      map[string]any      `json:"params,omitempty"`
	Recovery    Recovery            `json:"recovery,omitempty"`
	Err         error               `json:"-"`
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Error returns the result as a *Failure, or nil on success.
func (r Result) Error() error {
	if r.OK() {
		return nil
	}
	return &Failure{Outcome: r.Outcome, Code: r.Code, Recovery: r.Recovery, Cause: r.Err}
}

func Success(payload types.Values) Result {
	return Result{Outcome: OutcomeSuccess, Payload: payload}
}

func ValidationFailure(fields map[string][]string, form []string) Result {
	return Result{Outcome: OutcomeValidation, FieldErrors: fields, FormErrors: form, Recovery: RecoveryAdjust}
}

func DomainFailure(code string, params map[string]any, recovery Recovery) Result {
	if recovery == "" {
		recovery = RecoveryRetry
	}
	return Result{Outcome: OutcomeDomain, Code: code, Params: params, Recovery: recovery}
}

func TransportFailure(err error) Result {
	return Result{Outcome: OutcomeTransport, Recovery: RecoveryRetry, Err: err}
}

// Adapter submits form values to the backend exactly once per call.
type Adapter interface {
	Submit(ctx context.Context, values types.Values) Result
}

// PatchAdapter also accepts the RFC7386 merge patch from the loaded values,
// for endpoints that update only what changed. values is always the full
// set so an adapter may still send it.
type PatchAdapter interface {
	Adapter
	SubmitPatch(ctx context.Context, values types.Values, patch []byte) Result
}

// Failure is the error form of a failed Result.
type Failure struct {
	Outcome  Outcome
	Code     string
	Recovery Recovery
	Cause    error
}

func (f *Failure) Error() string {
	base := string(f.Outcome)
	if f.Code != "" {
		base += ": " + f.Code
	}
	if f.Cause != nil {
		base += fmt.Sprintf(" (cause: %v)", f.Cause)
	}
	return base
}

func (f *Failure) Unwrap() error { return f.Cause }

// RemoteError is what a backend call returns when the backend rejects the
// request. Message carries the error code, Payload its parameters.
type RemoteError struct {
	Status      int
	Message     string
	Payload     map[string]any
	FieldErrors map[string][]string
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
	}
	return "remote error: " + e.Message
}

// Classify maps the outcome of a backend call onto a Result. fields lists the
// form's field names and is used to attribute field error paths.
func Classify(payload types.Values, err error, codes Codes, fields []string) Result {
	if err == nil {
		return Success(payload)
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return TransportFailure(err)
	}
	if len(remote.FieldErrors) > 0 {
		mapped, form := MapFieldErrors(fields, remote.FieldErrors)
		r := ValidationFailure(mapped, form)
		r.Err = err
		return r
	}
	if code, ok := codes.Lookup(remote.Message); ok {
		r := DomainFailure(remote.Message, remote.Payload, code.Recovery)
		r.Err = err
		return r
	}
	return TransportFailure(err)
}

// CallFunc performs the backend call behind a Func adapter.
type CallFunc func(ctx context.Context, values types.Values) (types.Values, error)

// Func adapts a CallFunc into an Adapter, classifying its errors with Codes.
type Func struct {
	Call   CallFunc
	Codes  Codes
	Fields []string
}

func NewFunc(call CallFunc, codes Codes, fields ...string) *Func {
	return &Func{Call: call, Codes: codes, Fields: fields}
}

func (f *Func) Submit(ctx context.Context, values types.Values) Result {
	if f.Call == nil {
		return TransportFailure(errors.New("submit: no call configured"))
	}
	payload, err := f.Call(ctx, values.Clone())
	return Classify(payload, err, f.Codes, f.Fields)
}
