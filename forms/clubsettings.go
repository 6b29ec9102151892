package forms

import (
	"regexp"

	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
)

const ClubSettingsName = "club_settings"

var documentPattern = regexp.MustCompile(`^[A-Z0-9-]{4,20}$`)

// ClubSettingsFields validates "document" with BlankValue: clearing it is an
// error rather than an unset value.
func ClubSettingsFields() []schema.FieldSpec {
	return []schema.FieldSpec{
		{Name: "name", DisplayName: "Club name", Type: schema.TypeString, Optional: true, Rules: []schema.Rule{schema.MaxLength(64)}},
		{Name: "document", DisplayName: "Document", Type: schema.TypeString, Optional: true, Blank: schema.BlankValue, Rules: []schema.Rule{schema.Pattern(documentPattern)}},
		{Name: "start_date", DisplayName: "Start date", Type: schema.TypeDate, Optional: true},
		{Name: "end_date", DisplayName: "End date", Type: schema.TypeDate, Optional: true},
		{Name: "contact_email", DisplayName: "Contact email", Type: schema.TypeString, Optional: true, Rules: []schema.Rule{schema.Email()}},
		{Name: "currency", DisplayName: "Currency", Type: schema.TypeString, Optional: true, Rules: []schema.Rule{schema.OneOf("USD", "EUR", "RUB")}},
	}
}

func ClubSettingsRefinements() []schema.Refinement {
	return []schema.Refinement{
		schema.DateNotBefore("start_date", "end_date", 0),
		schema.RequiredWith("end_date", "start_date", 0),
		schema.AtLeastOne(0, "name", "document", "start_date"),
	}
}

func ClubSettings(fetch dialog.Fetcher, adapter submit.Adapter) stepform.Definition {
	return stepform.Definition{
		Name:        ClubSettingsName,
		Title:       "Club settings",
		Fields:      ClubSettingsFields(),
		Refinements: ClubSettingsRefinements(),
		Steps:       []step.Step{{Name: "settings", Submit: adapter, Terminal: true}},
		Fetch:       fetch,
	}
}
