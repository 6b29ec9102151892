package forms

import (
	"regexp"

	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/i18n"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
)

const ChangeEmailName = "change_email"

var otpPattern = regexp.MustCompile(`^\d{6}$`)

var ChangeEmailCodes = submit.Codes{
	"invalidCode":   {Key: i18n.KeyInvalidCode, Recovery: submit.RecoveryAdjust},
	"limitExceeded": {Key: i18n.KeyLimitExceeded, Recovery: submit.RecoveryRestart},
}

func ChangeEmailFields() []schema.FieldSpec {
	return []schema.FieldSpec{
		{
			Name:        "email",
			DisplayName: "New email",
			Type:        schema.TypeString,
			Step:        1,
			Rules:       []schema.Rule{schema.Email()},
		},
		{
			Name:        "code",
			DisplayName: "Confirmation code",
			Description: "Six digit code sent to the new address",
			Type:        schema.TypeString,
			Step:        2,
			Rules:       []schema.Rule{schema.Pattern(otpPattern)},
		},
	}
}

// ChangeEmail requests a code for the new address, then confirms it. The
// collected code is dropped when the flow restarts.
func ChangeEmail(fetch dialog.Fetcher, request, confirm submit.Adapter) stepform.Definition {
	return stepform.Definition{
		Name:   ChangeEmailName,
		Title:  "Change email",
		Fields: ChangeEmailFields(),
		Steps: []step.Step{
			{Name: "email", Submit: request},
			{Name: "confirm", Submit: confirm, Terminal: true, Transient: []string{"code"}},
		},
		Fetch: fetch,
		Codes: ChangeEmailCodes,
	}
}
