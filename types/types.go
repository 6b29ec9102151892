package types

import (
	"maps"
	"time"
)

// Kind discriminates the state a workflow is rendered from.
type Kind string

const (
	KindStep       Kind = "step"
	KindSubmitting Kind = "submitting"
	KindSucceeded  Kind = "succeeded"
	KindFailed     Kind = "failed"
	KindClosed     Kind = "closed"
)

// Terminal reports whether the kind is a pseudo-step reached only through a submission outcome.
func (k Kind) Terminal() bool {
	return k == KindSucceeded || k == KindFailed
}

// Values maps a field name to its current value: string, bool, number, time.Time or FileRef.
type Values map[string]any

func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// FileRef references an uploaded file held by the backend.
type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
}

type FieldInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required"`
	Step        int    `json:"step,omitempty"`
}

type FieldError struct {
	Field       string `json:"field"`
	DisplayName string `json:"display_name,omitempty"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
}

type MessagePair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ToolRequest is the snapshot handed to command parsers, patch and dialogue generators.
type ToolRequest struct {
	Form        string      `json:"form"`
	Kind        Kind        `json:"kind"`
	Step        int         `json:"step"`
	StepName    string      `json:"step_name,omitempty"`
	State       Values      `json:"state"`
	StateSchema string      `json:"-"`
	Dirty       bool        `json:"dirty"`
	Prompting   bool        `json:"prompting"`
	MessagePair MessagePair `json:"message_pair"`

	Fields           []FieldInfo  `json:"fields,omitempty"`
	MissingFields    []FieldInfo  `json:"missing_fields,omitempty"`
	ValidationErrors []FieldError `json:"validation_errors,omitempty"`
	Failure          string       `json:"failure,omitempty"`

	Now time.Time `json:"-"`
}
