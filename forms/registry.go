package forms

import (
	"errors"
	"fmt"

	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/submit"
)

// Registry lists the form names a host can open.
var Registry = []string{WithdrawalName, ChangeEmailName, ClubSettingsName}

var ErrUnknownForm = errors.New("forms: unknown form")

// Build assembles a registered form from its fetcher and one adapter per
// submitting step.
func Build(name string, fetch dialog.Fetcher, adapters ...submit.Adapter) (stepform.Definition, error) {
	want := map[string]int{WithdrawalName: 1, ChangeEmailName: 2, ClubSettingsName: 1}
	n, ok := want[name]
	if !ok {
		return stepform.Definition{}, fmt.Errorf("%w: %q", ErrUnknownForm, name)
	}
	if len(adapters) != n {
		return stepform.Definition{}, fmt.Errorf("form %q takes %d submit adapters, got %d", name, n, len(adapters))
	}
	switch name {
	case WithdrawalName:
		return Withdrawal(fetch, adapters[0]), nil
	case ChangeEmailName:
		return ChangeEmail(fetch, adapters[0], adapters[1]), nil
	default:
		return ClubSettings(fetch, adapters[0]), nil
	}
}

// Codes returns the error codes of a registered form.
func Codes(name string) submit.Codes {
	switch name {
	case WithdrawalName:
		return WithdrawalCodes
	case ChangeEmailName:
		return ChangeEmailCodes
	}
	return nil
}

// FieldNames lists the field names of a registered form, used to attribute
// backend field errors.
func FieldNames(name string) []string {
	var specs []schema.FieldSpec
	switch name {
	case WithdrawalName:
		specs = WithdrawalFields()
	case ChangeEmailName:
		specs = ChangeEmailFields()
	case ClubSettingsName:
		specs = ClubSettingsFields()
	}
	out := make([]string, 0, len(specs))
	for _, f := range specs {
		out = append(out, f.Name)
	}
	return out
}
