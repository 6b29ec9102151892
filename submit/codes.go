package submit

import (
	"slices"

	"github.com/tbxark/stepform/i18n"
	"golang.org/x/text/language"
)

// Code describes a backend error code the user can act on. Args names the
// payload entries substituted into the message, in order.
type Code struct {
	Key      string
	Args     []string
	Recovery Recovery
}

type Codes map[string]Code

func (c Codes) Lookup(code string) (Code, bool) {
	entry, ok := c[code]
	if !ok {
		return Code{}, false
	}
	if entry.Key == "" {
		entry.Key = code
	}
	if entry.Recovery == "" {
		entry.Recovery = RecoveryRetry
	}
	return entry, true
}

// Merge returns a copy of c extended with other. Entries of other win.
func (c Codes) Merge(other Codes) Codes {
	out := make(Codes, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Message renders the user-facing text for a failed result. Unknown codes and
// transport failures render the generic failure message.
func (c Codes) Message(t *i18n.Translator, tag language.Tag, r Result) string {
	if t == nil {
		t = i18n.Default()
	}
	switch r.Outcome {
	case OutcomeSuccess:
		return t.Message(tag, i18n.KeySaved)
	case OutcomeDomain:
		code, ok := c.Lookup(r.Code)
		if !ok {
			break
		}
		args := make([]any, 0, len(code.Args))
		for _, name := range code.Args {
			args = append(args, r.Params[name])
		}
		return t.Message(tag, code.Key, args...)
	case OutcomeValidation:
		if len(r.FormErrors) > 0 {
			return r.FormErrors[0]
		}
		fields := make([]string, 0, len(r.FieldErrors))
		for name := range r.FieldErrors {
			fields = append(fields, name)
		}
		slices.Sort(fields)
		for _, name := range fields {
			if msgs := r.FieldErrors[name]; len(msgs) > 0 {
				return msgs[0]
			}
		}
	}
	return t.Message(tag, i18n.KeyGenericFailure)
}
