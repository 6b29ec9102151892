package schema

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/tbxark/stepform/i18n"
	"github.com/tbxark/stepform/types"
)

// ErrorKind classifies a field validation error.
type ErrorKind string

const (
	ErrRequired           ErrorKind = "required"
	ErrInvalidEmail       ErrorKind = "invalid_email"
	ErrInvalidFormat      ErrorKind = "invalid_format"
	ErrNotPositive        ErrorKind = "not_positive"
	ErrBalanceUnavailable ErrorKind = "balance_unavailable"
	ErrTooLong            ErrorKind = "too_long"
	ErrTooShort           ErrorKind = "too_short"
	ErrNotAllowed         ErrorKind = "not_allowed"
	ErrDateOrder          ErrorKind = "date_order"
	ErrAtLeastOne         ErrorKind = "at_least_one"
	ErrRequiredWith       ErrorKind = "required_with"
)

var kindKeys = map[ErrorKind]string{
	ErrRequired:           i18n.KeyRequired,
	ErrInvalidEmail:       i18n.KeyInvalidEmail,
	ErrInvalidFormat:      i18n.KeyInvalidFormat,
	ErrNotPositive:        i18n.KeyMustBePositive,
	ErrBalanceUnavailable: i18n.KeyBalanceUnavailable,
	ErrTooLong:            i18n.KeyTooLong,
	ErrTooShort:           i18n.KeyTooShort,
	ErrNotAllowed:         i18n.KeyNotAllowed,
	ErrDateOrder:          i18n.KeyDateOrder,
	ErrAtLeastOne:         i18n.KeyAtLeastOne,
	ErrRequiredWith:       i18n.KeyRequiredWith,
}

type Violation struct {
	Kind ErrorKind `json:"kind"`
	Args []any     `json:"args,omitempty"`
}

// Rule checks one non-empty value; values gives access to siblings.
type Rule func(value any, values types.Values) *Violation

var validate = validator.New()

// Tag validates a string value with a go-playground/validator tag such as
// "e164" or "numeric".
func Tag(tag string, kind ErrorKind) Rule {
	return func(value any, _ types.Values) *Violation {
		s, ok := value.(string)
		if !ok {
			return &Violation{Kind: kind}
		}
		if err := validate.Var(s, tag); err != nil {
			return &Violation{Kind: kind}
		}
		return nil
	}
}

func Email() Rule {
	return Tag("email", ErrInvalidEmail)
}

func Pattern(re *regexp.Regexp) Rule {
	return func(value any, _ types.Values) *Violation {
		s, ok := value.(string)
		if !ok || !re.MatchString(s) {
			return &Violation{Kind: ErrInvalidFormat}
		}
		return nil
	}
}

func MaxLength(n int) Rule {
	return func(value any, _ types.Values) *Violation {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > n {
			return &Violation{Kind: ErrTooLong, Args: []any{n}}
		}
		return nil
	}
}

func MinLength(n int) Rule {
	return func(value any, _ types.Values) *Violation {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) < n {
			return &Violation{Kind: ErrTooShort, Args: []any{n}}
		}
		return nil
	}
}

// Positive requires a number strictly greater than zero.
func Positive() Rule {
	return func(value any, _ types.Values) *Violation {
		n, ok := Number(value)
		if !ok {
			return &Violation{Kind: ErrInvalidFormat}
		}
		if n <= 0 {
			return &Violation{Kind: ErrNotPositive}
		}
		return nil
	}
}

// AtMostField requires the value to be <= the number held by the bound field.
// An absent bound is reported as kind too.
func AtMostField(bound string, kind ErrorKind) Rule {
	return func(value any, values types.Values) *Violation {
		n, ok := Number(value)
		if !ok {
			return &Violation{Kind: ErrInvalidFormat}
		}
		limit, ok := Number(values[bound])
		if !ok || n > limit {
			return &Violation{Kind: kind}
		}
		return nil
	}
}

func OneOf(options ...string) Rule {
	return func(value any, _ types.Values) *Violation {
		s, ok := value.(string)
		if !ok {
			return &Violation{Kind: ErrNotAllowed}
		}
		for _, opt := range options {
			if s == opt {
				return nil
			}
		}
		return &Violation{Kind: ErrNotAllowed}
	}
}

// DateNotBefore attributes ErrDateOrder to end when it is before start.
func DateNotBefore(start, end string, step int) Refinement {
	return Refinement{
		Name:   start + "<=" + end,
		Fields: []string{end},
		Step:   step,
		Check: func(values types.Values) *Violation {
			from, okFrom := Date(values[start])
			to, okTo := Date(values[end])
			if !okFrom || !okTo {
				return nil
			}
			if to.Before(from) {
				return &Violation{Kind: ErrDateOrder}
			}
			return nil
		},
	}
}

// AtLeastOne is a form-level refinement requiring one of fields to be set.
func AtLeastOne(step int, fields ...string) Refinement {
	return Refinement{
		Name: "at_least_one(" + strings.Join(fields, ",") + ")",
		Step: step,
		Check: func(values types.Values) *Violation {
			for _, name := range fields {
				if !IsEmpty(values[name], BlankUnset) {
					return nil
				}
			}
			return &Violation{Kind: ErrAtLeastOne, Args: []any{strings.Join(fields, ", ")}}
		},
	}
}

// RequiredWith requires field whenever sibling holds a value. An empty string
// sibling counts as absent.
func RequiredWith(field, sibling string, step int) Refinement {
	return Refinement{
		Name:   field + "_with_" + sibling,
		Fields: []string{field},
		Step:   step,
		Check: func(values types.Values) *Violation {
			if IsEmpty(values[sibling], BlankUnset) {
				return nil
			}
			if IsEmpty(values[field], BlankUnset) {
				return &Violation{Kind: ErrRequiredWith, Args: []any{sibling}}
			}
			return nil
		},
	}
}

// IsEmpty reports whether v counts as an absent value under the blank policy.
func IsEmpty(v any, blank Blank) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		if blank == BlankValue {
			return false
		}
		return strings.TrimSpace(val) == ""
	case time.Time:
		return val.IsZero()
	case *time.Time:
		return val == nil || val.IsZero()
	case types.FileRef:
		return val.Name == ""
	case *types.FileRef:
		return val == nil || val.Name == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

// Number converts the numeric representations a form may hold. NaN and the
// infinities are not numbers a form can carry.
func Number(v any) (float64, bool) {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Date converts a time.Time or an ISO date/date-time string.
func Date(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, !d.IsZero()
	case string:
		for _, layout := range []string{time.DateOnly, time.RFC3339} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
