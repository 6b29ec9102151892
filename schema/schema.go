// Package schema validates form values against declarative field rules and
// cross-field refinements.
package schema

import (
	"errors"
	"fmt"

	"github.com/tbxark/stepform/i18n"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeFile    FieldType = "file"
)

// Blank decides how an empty (or whitespace-only) string is treated.
type Blank int

const (
	// BlankUnset treats an empty string as an absent value.
	BlankUnset Blank = iota
	// BlankValue validates an empty string like any other value.
	BlankValue
)

// FieldSpec is the static description of one form field. Step 0 applies the
// field to every step; k >= 1 gates it to step k. ReadOnly fields are only
// set by hydration.
type FieldSpec struct {
	Name        string
	DisplayName string
	Description string
	Type        FieldType
	Step        int
	Optional    bool
	ReadOnly    bool
	Blank       Blank
	Rules       []Rule
}

func (f FieldSpec) Info() types.FieldInfo {
	display := f.DisplayName
	if display == "" {
		display = f.Name
	}
	return types.FieldInfo{
		Name:        f.Name,
		DisplayName: display,
		Description: f.Description,
		Type:        string(f.Type),
		Required:    !f.Optional,
		Step:        f.Step,
	}
}

// Refinement is a schema-level rule evaluated after the per-field rules. Its
// violation is attributed to every name in Fields, or to the form when empty.
type Refinement struct {
	Name   string
	Fields []string
	Step   int
	Check  func(values types.Values) *Violation
}

type Schema struct {
	title       string
	fields      []FieldSpec
	index       map[string]int
	refinements []Refinement
	translator  *i18n.Translator
	lang        language.Tag
}

type Option func(*Schema)

func WithTranslator(t *i18n.Translator) Option {
	return func(s *Schema) {
		if t != nil {
			s.translator = t
		}
	}
}

func WithLanguage(tag language.Tag) Option {
	return func(s *Schema) {
		s.lang = tag
	}
}

func WithTitle(title string) Option {
	return func(s *Schema) {
		s.title = title
	}
}

var (
	ErrEmptyFieldName     = errors.New("schema: field name is required")
	ErrDuplicateFieldName = errors.New("schema: duplicate field name")
	ErrUnknownField       = errors.New("schema: unknown field")
)

func New(fields []FieldSpec, refinements []Refinement, opts ...Option) (*Schema, error) {
	s := &Schema{
		fields:      make([]FieldSpec, 0, len(fields)),
		index:       make(map[string]int, len(fields)),
		refinements: append([]Refinement(nil), refinements...),
		translator:  i18n.Default(),
		lang:        language.English,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, ErrEmptyFieldName
		}
		if _, ok := s.index[f.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFieldName, f.Name)
		}
		if f.Type == "" {
			f.Type = TypeString
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	for _, r := range s.refinements {
		for _, name := range r.Fields {
			if _, ok := s.index[name]; !ok {
				return nil, fmt.Errorf("%w: refinement %s references %s", ErrUnknownField, r.Name, name)
			}
		}
	}
	return s, nil
}

func (s *Schema) Title() string {
	return s.title
}

func (s *Schema) Fields() []FieldSpec {
	return append([]FieldSpec(nil), s.fields...)
}

func (s *Schema) Field(name string) (FieldSpec, bool) {
	idx, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[idx], true
}

// StepFields returns the fields gated to exactly the given step.
func (s *Schema) StepFields(step int) []FieldSpec {
	var out []FieldSpec
	for _, f := range s.fields {
		if f.Step == step {
			out = append(out, f)
		}
	}
	return out
}

// Language returns a copy of the schema rendering messages for tag.
func (s *Schema) Language(tag language.Tag) *Schema {
	cp := *s
	cp.lang = tag
	return &cp
}

// Result is the outcome of one validation pass. Errors only holds violations
// that block validity; Deferred holds violations of touched fields that the
// active step exempts.
type Result struct {
	Valid      bool
	Errors     map[string][]string
	Deferred   map[string][]string
	FormErrors []string
	Violations map[string][]Violation

	order []string
}

// FieldErrors flattens the blocking errors in schema field order.
func (r Result) FieldErrors() []types.FieldError {
	var out []types.FieldError
	for _, name := range r.order {
		msgs := r.Errors[name]
		kinds := r.Violations[name]
		for i, msg := range msgs {
			fe := types.FieldError{Field: name, Message: msg}
			if i < len(kinds) {
				fe.Kind = string(kinds[i].Kind)
			}
			out = append(out, fe)
		}
	}
	return out
}

// HasErrors reports whether name carries blocking errors.
func (r Result) HasErrors(name string) bool {
	return len(r.Errors[name]) > 0
}

func relevant(fieldStep, step int) bool {
	return step <= 0 || fieldStep == 0 || fieldStep <= step
}

// Validate recomputes every error from scratch. A step <= 0 validates all
// fields. touched lists the fields the user edited.
func (s *Schema) Validate(values types.Values, step int, touched map[string]bool) Result {
	res := Result{
		Valid:      true,
		Errors:     map[string][]string{},
		Deferred:   map[string][]string{},
		Violations: map[string][]Violation{},
	}
	for _, f := range s.fields {
		res.order = append(res.order, f.Name)
		violations := validateField(f, values)
		if len(violations) == 0 {
			continue
		}
		if relevant(f.Step, step) {
			res.Valid = false
			for _, v := range violations {
				res.Errors[f.Name] = append(res.Errors[f.Name], s.message(v))
			}
			res.Violations[f.Name] = append(res.Violations[f.Name], violations...)
		} else if touched[f.Name] {
			for _, v := range violations {
				res.Deferred[f.Name] = append(res.Deferred[f.Name], s.message(v))
			}
		}
	}
	for _, r := range s.refinements {
		if r.Check == nil {
			continue
		}
		v := r.Check(values)
		if v == nil {
			continue
		}
		msg := s.message(*v)
		if !relevant(r.Step, step) {
			for _, name := range r.Fields {
				if touched[name] {
					res.Deferred[name] = appendUnique(res.Deferred[name], msg)
				}
			}
			continue
		}
		res.Valid = false
		if len(r.Fields) == 0 {
			res.FormErrors = appendUnique(res.FormErrors, msg)
			continue
		}
		for _, name := range r.Fields {
			res.Errors[name] = appendUnique(res.Errors[name], msg)
			res.Violations[name] = append(res.Violations[name], *v)
		}
	}
	if len(res.Deferred) == 0 {
		res.Deferred = nil
	}
	return res
}

// StepValid reports whether every field gated to steps <= step validates.
func (s *Schema) StepValid(values types.Values, step int) bool {
	return s.Validate(values, step, nil).Valid
}

// Missing lists the required fields of steps <= step that have no value.
func (s *Schema) Missing(values types.Values, step int) []types.FieldInfo {
	var out []types.FieldInfo
	for _, f := range s.fields {
		if f.Optional || !relevant(f.Step, step) {
			continue
		}
		if IsEmpty(values[f.Name], f.Blank) {
			out = append(out, f.Info())
		}
	}
	return out
}

func validateField(f FieldSpec, values types.Values) []Violation {
	value := values[f.Name]
	if IsEmpty(value, f.Blank) {
		if f.Optional {
			return nil
		}
		return []Violation{{Kind: ErrRequired}}
	}
	if !typeMatches(f.Type, value) {
		return []Violation{{Kind: ErrInvalidFormat}}
	}
	var out []Violation
	for _, rule := range f.Rules {
		if rule == nil {
			continue
		}
		if v := rule(value, values); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func typeMatches(t FieldType, value any) bool {
	switch t {
	case TypeNumber:
		_, ok := Number(value)
		return ok
	case TypeDate:
		_, ok := Date(value)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeFile:
		switch value.(type) {
		case types.FileRef, *types.FileRef:
			return true
		}
		return false
	default:
		return true
	}
}

func (s *Schema) message(v Violation) string {
	key, ok := kindKeys[v.Kind]
	if !ok {
		key = string(v.Kind)
	}
	return s.translator.Message(s.lang, key, v.Args...)
}

func appendUnique(list []string, msg string) []string {
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
