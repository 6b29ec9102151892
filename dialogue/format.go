package dialogue

import (
	"fmt"
	"strings"

	"github.com/tbxark/stepform/types"
)

func formatMissingFields(fields []types.FieldInfo, all bool) string {
	var sb strings.Builder
	for _, field := range fields {
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf("Please provide %s (%s).\n", field.DisplayName, field.Description))
		} else {
			sb.WriteString(fmt.Sprintf("Please provide %s.\n", field.DisplayName))
		}
		if !all {
			break
		}
	}
	return sb.String()
}

func formatValidationErrors(errors []types.FieldError, all bool) string {
	var sb strings.Builder
	for _, err := range errors {
		name := err.DisplayName
		if name == "" {
			name = err.Field
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", name, err.Message))
		if !all {
			break
		}
	}
	return sb.String()
}

func stepLabel(req *types.ToolRequest) string {
	if req.StepName != "" {
		return fmt.Sprintf("step %d (%s)", req.Step, req.StepName)
	}
	return fmt.Sprintf("step %d", req.Step)
}
