package schema

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
)

func mustSchema(t *testing.T, fields []FieldSpec, refinements ...Refinement) *Schema {
	t.Helper()
	s, err := New(fields, refinements)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestEmailScenario(t *testing.T) {
	t.Parallel()
	s := mustSchema(t, []FieldSpec{{Name: "email", Rules: []Rule{Email()}}})

	res := s.Validate(types.Values{"email": "a"}, 1, nil)
	if res.Valid {
		t.Fatal("expected invalid form for malformed email")
	}
	if diff := cmp.Diff([]string{"invalid email format"}, res.Errors["email"]); diff != "" {
		t.Errorf("email errors mismatch (-want +got):\n%s", diff)
	}

	res = s.Validate(types.Values{"email": "a@b.com"}, 1, nil)
	if !res.Valid {
		t.Fatalf("expected valid form, got errors %v", res.Errors)
	}
	if res.HasErrors("email") {
		t.Errorf("expected email errors to clear, got %v", res.Errors["email"])
	}
}

func withdrawalSchema(t *testing.T) *Schema {
	return mustSchema(t, []FieldSpec{
		{Name: "account", Step: 1},
		{Name: "balance", Type: TypeNumber, Optional: true},
		{Name: "amount", Type: TypeNumber, Step: 2, Rules: []Rule{Positive(), AtMostField("balance", ErrBalanceUnavailable)}},
	})
}

func TestWithdrawalAmountRules(t *testing.T) {
	t.Parallel()
	s := withdrawalSchema(t)

	if !s.StepValid(types.Values{"account": "acc-1", "balance": 100.0}, 1) {
		t.Fatal("step 1 should validate without an amount")
	}

	tests := []struct {
		name   string
		amount any
		want   []string
	}{
		{"zero", 0.0, []string{"value must be greater than zero"}},
		{"over balance", 150.0, []string{"balance unavailable"}},
		{"string over balance", "100.5", []string{"balance unavailable"}},
		{"in range", 50.0, nil},
		{"exact balance", "100", nil},
		{"nan string", "NaN", []string{"invalid format"}},
		{"lowercase nan", "nan", []string{"invalid format"}},
		{"infinite string", "Inf", []string{"invalid format"}},
		{"nan float", math.NaN(), []string{"invalid format"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(types.Values{"account": "acc-1", "balance": 100.0, "amount": tt.amount}, 2, nil)
			if diff := cmp.Diff(tt.want, res.Errors["amount"]); diff != "" {
				t.Errorf("amount errors mismatch (-want +got):\n%s", diff)
			}
			if res.Valid != (len(tt.want) == 0) {
				t.Errorf("Valid = %v with errors %v", res.Valid, res.Errors)
			}
		})
	}
}

func TestExemptFieldsSurfaceWhenTouched(t *testing.T) {
	t.Parallel()
	s := withdrawalSchema(t)
	values := types.Values{"account": "acc-1", "balance": 10.0, "amount": 0.0}

	res := s.Validate(values, 1, nil)
	if !res.Valid {
		t.Fatalf("step 2 field must not block step 1: %v", res.Errors)
	}
	if len(res.Deferred) != 0 {
		t.Errorf("untouched exempt field should stay silent, got %v", res.Deferred)
	}

	res = s.Validate(values, 1, map[string]bool{"amount": true})
	if !res.Valid {
		t.Fatal("touched exempt field must not block validity")
	}
	if diff := cmp.Diff([]string{"value must be greater than zero"}, res.Deferred["amount"]); diff != "" {
		t.Errorf("deferred mismatch (-want +got):\n%s", diff)
	}
}

func TestBlankPolicy(t *testing.T) {
	t.Parallel()
	s := mustSchema(t, []FieldSpec{
		{Name: "nickname", Optional: true, Rules: []Rule{MinLength(3)}},
		{Name: "code", Optional: true, Blank: BlankValue, Rules: []Rule{MinLength(3)}},
	})
	res := s.Validate(types.Values{"nickname": "  ", "code": "ab"}, 0, nil)
	if res.HasErrors("nickname") {
		t.Errorf("blank optional field should validate, got %v", res.Errors["nickname"])
	}
	if diff := cmp.Diff([]string{"must be at least 3 characters"}, res.Errors["code"]); diff != "" {
		t.Errorf("code errors mismatch (-want +got):\n%s", diff)
	}
	res = s.Validate(types.Values{"code": ""}, 0, nil)
	if !res.HasErrors("code") {
		t.Error("empty string must be validated as a value under BlankValue")
	}
}

func TestRefinements(t *testing.T) {
	t.Parallel()
	s := mustSchema(t,
		[]FieldSpec{
			{Name: "name", Optional: true},
			{Name: "document", Optional: true},
			{Name: "from", Type: TypeDate, Optional: true},
			{Name: "to", Type: TypeDate, Optional: true},
		},
		AtLeastOne(0, "name", "document", "from"),
		DateNotBefore("from", "to", 0),
		RequiredWith("to", "from", 0),
	)

	res := s.Validate(types.Values{"name": ""}, 0, nil)
	if res.Valid {
		t.Fatal("expected at-least-one refinement to fail")
	}
	if diff := cmp.Diff([]string{"fill at least one of: name, document, from"}, res.FormErrors); diff != "" {
		t.Errorf("form errors mismatch (-want +got):\n%s", diff)
	}

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	res = s.Validate(types.Values{"from": from, "to": "2026-03-01"}, 0, nil)
	if diff := cmp.Diff([]string{"end date must not be before start date"}, res.Errors["to"]); diff != "" {
		t.Errorf("date order mismatch (-want +got):\n%s", diff)
	}

	res = s.Validate(types.Values{"from": from, "to": ""}, 0, nil)
	if diff := cmp.Diff([]string{"required when from is set"}, res.Errors["to"]); diff != "" {
		t.Errorf("required-with mismatch (-want +got):\n%s", diff)
	}

	res = s.Validate(types.Values{"document": "AB123"}, 0, nil)
	if !res.Valid {
		t.Errorf("expected valid, got %v %v", res.Errors, res.FormErrors)
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	t.Parallel()
	if _, err := New([]FieldSpec{{Name: "a"}, {Name: "a"}}, nil); !errors.Is(err, ErrDuplicateFieldName) {
		t.Errorf("duplicate: got %v", err)
	}
	if _, err := New([]FieldSpec{{}}, nil); !errors.Is(err, ErrEmptyFieldName) {
		t.Errorf("empty: got %v", err)
	}
	if _, err := New([]FieldSpec{{Name: "a"}}, []Refinement{RequiredWith("b", "a", 0)}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown: got %v", err)
	}
}

func TestLanguageAndMissing(t *testing.T) {
	t.Parallel()
	s := withdrawalSchema(t).Language(language.Russian)
	res := s.Validate(types.Values{"account": "x", "amount": -1}, 2, nil)
	if diff := cmp.Diff([]string{"значение должно быть больше нуля", "недостаточно средств"}, res.Errors["amount"]); diff != "" {
		t.Errorf("russian messages mismatch (-want +got):\n%s", diff)
	}
	missing := s.Missing(types.Values{}, 1)
	if len(missing) != 1 || missing[0].Name != "account" {
		t.Errorf("Missing(step 1) = %+v", missing)
	}
	fe := res.FieldErrors()
	if len(fe) != 2 || fe[0].Kind != string(ErrNotPositive) {
		t.Errorf("FieldErrors = %+v", fe)
	}
}

func TestJSONSchema(t *testing.T) {
	t.Parallel()
	s := withdrawalSchema(t)
	doc, err := s.JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	for _, want := range []string{`"amount"`, `"number"`, `"required"`} {
		if !strings.Contains(doc, want) {
			t.Errorf("schema %s does not contain %s", doc, want)
		}
	}
}

func TestTypeMismatch(t *testing.T) {
	t.Parallel()
	s := mustSchema(t, []FieldSpec{
		{Name: "amount", Type: TypeNumber, Rules: []Rule{Positive()}},
		{Name: "from", Type: TypeDate},
		{Name: "agree", Type: TypeBoolean},
	})
	res := s.Validate(types.Values{"amount": "abc", "from": "tomorrow", "agree": "yes"}, 0, nil)
	for _, name := range []string{"amount", "from", "agree"} {
		if diff := cmp.Diff([]string{"invalid format"}, res.Errors[name]); diff != "" {
			t.Errorf("%s errors mismatch (-want +got):\n%s", name, diff)
		}
	}
}
