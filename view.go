package stepform

import (
	"github.com/google/uuid"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

// View is the single value a workflow is rendered from.
type View struct {
	Form       string              `json:"form"`
	Title      string              `json:"title,omitempty"`
	Instance   string              `json:"instance,omitempty"`
	Status     dialog.Status       `json:"status"`
	Kind       types.Kind          `json:"kind"`
	Step       int                 `json:"step"`
	StepName   string              `json:"step_name,omitempty"`
	StepCount  int                 `json:"step_count"`
	Values     types.Values        `json:"values"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Deferred   map[string][]string `json:"deferred,omitempty"`
	FormErrors []string            `json:"form_errors,omitempty"`
	Valid      bool                `json:"valid"`
	Dirty      bool                `json:"dirty"`
	Submitting bool                `json:"submitting"`
	Failure    *Failure            `json:"failure,omitempty"`
	Prompt     *guard.Prompt       `json:"prompt,omitempty"`
	Payload    types.Values        `json:"payload,omitempty"`
}

// Failure describes the failed pseudo-step.
type Failure struct {
	Outcome     submit.Outcome      `json:"outcome"`
	Code        string              `json:"code,omitempty"`
	Message     string              `json:"message"`
	Recovery    submit.Recovery     `json:"recovery"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
}

func (w *Workflow) View() View {
	st := w.controller.State()
	res := w.form.Validate(st.Step)
	v := View{
		Form:       w.def.Name,
		Title:      w.def.Title,
		Status:     w.shell.Status(),
		Kind:       st.Kind,
		Step:       st.Step,
		StepName:   st.Name,
		StepCount:  len(w.def.Steps),
		Values:     w.form.Values(),
		Errors:     nonEmpty(res.Errors),
		Deferred:   nonEmpty(res.Deferred),
		FormErrors: res.FormErrors,
		Valid:      res.Valid,
		Dirty:      w.form.Dirty(),
		Submitting: w.form.Pending().InFlight,
		Payload:    st.Payload,
	}
	if id := w.shell.Instance(); id != uuid.Nil {
		v.Instance = id.String()
	}
	if st.Kind == types.KindFailed && st.Failure != nil {
		v.Failure = &Failure{
			Outcome:     st.Failure.Outcome,
			Code:        st.Failure.Code,
			Message:     w.def.Codes.Message(w.translator, w.lang, *st.Failure),
			Recovery:    st.Failure.Recovery,
			FieldErrors: st.Failure.FieldErrors,
		}
	}
	if p, ok := w.guard.Pending(); ok && p.Owner == w.owner {
		v.Prompt = &p
	}
	return v
}

// ToolRequest snapshots the workflow for command parsers, patch and dialogue
// generators.
func (w *Workflow) ToolRequest(pair types.MessagePair) *types.ToolRequest {
	v := w.View()
	fields := w.schema.Fields()
	infos := make([]types.FieldInfo, 0, len(fields))
	for _, f := range fields {
		if f.ReadOnly {
			continue
		}
		infos = append(infos, f.Info())
	}
	req := &types.ToolRequest{
		Form:          w.def.Name,
		Kind:          v.Kind,
		Step:          v.Step,
		StepName:      v.StepName,
		State:         v.Values,
		Dirty:         v.Dirty,
		Prompting:     v.Prompt != nil,
		MessagePair:   pair,
		Fields:        infos,
		MissingFields: w.schema.Missing(v.Values, v.Step),
	}
	names := make(map[string]string, len(fields))
	for _, f := range fields {
		names[f.Name] = f.DisplayName
	}
	// Empty required fields are reported as missing, not as errors.
	for _, fe := range w.form.Validate(v.Step).FieldErrors() {
		if fe.Kind == string(schema.ErrRequired) {
			continue
		}
		fe.DisplayName = names[fe.Field]
		req.ValidationErrors = append(req.ValidationErrors, fe)
	}
	if v.Failure != nil {
		req.Failure = v.Failure.Message
	}
	if js, err := w.schema.JSONSchema(); err == nil {
		req.StateSchema = js
	}
	return req
}

func nonEmpty(m map[string][]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
