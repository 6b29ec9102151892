package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

func formatFieldsSection(title string, fields []FieldInfo) string {
	if len(fields) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString(title)
	buf.WriteString("\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Name", "Description")
	for _, field := range fields {
		_ = table.Append(field.DisplayName, field.Name, field.Description)
	}
	_ = table.Render()
	return buf.String()
}

func formatValidationErrorsSection(errors []FieldError) string {
	if len(errors) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Validation errors:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Error")
	for _, err := range errors {
		_ = table.Append(err.Field, err.Message)
	}
	_ = table.Render()
	return buf.String()
}

// FormatSummary renders the values of the given fields as a markdown table.
func FormatSummary(fields []FieldInfo, values Values) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Value")
	for _, field := range fields {
		_ = table.Append(field.DisplayName, FormatValue(values[field.Name]))
	}
	_ = table.Render()
	return buf.String()
}

// FormatValue renders a single form value for humans.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.DateOnly)
	case FileRef:
		return val.Name
	case *FileRef:
		if val == nil {
			return ""
		}
		return val.Name
	default:
		return fmt.Sprint(val)
	}
}

func FormatToolRequest(req *ToolRequest) (string, error) {
	stateJSON, err := sonic.ConfigStd.Marshal(req.State)
	if err != nil {
		return "", err
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	sections := []string{
		fmt.Sprintf("# Current Date: \n %s", now.Format(time.RFC3339)),
		fmt.Sprintf("# Form:\n%s", req.Form),
		fmt.Sprintf("# Form state JSON:\n```json\n%s\n```", string(stateJSON)),
	}
	if req.StateSchema != "" {
		sections = append(sections, fmt.Sprintf("# Form state schema JSON:\n```json\n%s\n```", req.StateSchema))
	}
	if req.Kind != "" {
		state := string(req.Kind)
		if req.Kind == KindStep {
			state = fmt.Sprintf("step %d", req.Step)
			if req.StepName != "" {
				state += " (" + req.StepName + ")"
			}
		}
		sections = append(sections, fmt.Sprintf("# Current State:\n%s", state))
	}
	if req.Prompting {
		sections = append(sections, "# Pending confirmation:\nThe user has unsaved changes and must choose to save, discard or stay.")
	}
	if req.Failure != "" {
		sections = append(sections, fmt.Sprintf("# Submission failure:\n%s", req.Failure))
	}
	if req.MessagePair.Question != "" || req.MessagePair.Answer != "" {
		sections = append(sections, "# Latest Dialogue:")
		if req.MessagePair.Question != "" {
			sections = append(sections, fmt.Sprintf("## Assistant Question:\n%s", req.MessagePair.Question))
		}
		if req.MessagePair.Answer != "" {
			sections = append(sections, fmt.Sprintf("## User Answer:\n%s", req.MessagePair.Answer))
		}
	}
	if s := formatFieldsSection("# Fields of the current step:", req.Fields); s != "" {
		sections = append(sections, s)
	}
	if s := formatFieldsSection("# Missing required fields:", req.MissingFields); s != "" {
		sections = append(sections, s)
	}
	if s := formatValidationErrorsSection(req.ValidationErrors); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n"), nil
}
