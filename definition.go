// Package stepform composes a validation schema, a form container, a step
// controller and a dialog shell into one workflow. Concrete forms supply
// only a Definition.
package stepform

import (
	"errors"
	"fmt"

	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
)

// Definition is the static description of a form workflow.
type Definition struct {
	Name        string
	Title       string
	Description string
	Fields      []schema.FieldSpec
	Refinements []schema.Refinement
	Steps       []step.Step
	Fetch       dialog.Fetcher
	Codes       submit.Codes
}

var ErrEmptyName = errors.New("stepform: definition name is required")

func (d Definition) validate() error {
	if d.Name == "" {
		return ErrEmptyName
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %q: %w", d.Name, step.ErrNoSteps)
	}
	return nil
}
