package schema

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"
)

// JSONSchema describes the form values as a JSON schema document.
func (s *Schema) JSONSchema() (string, error) {
	doc := &jsonschema.Schema{
		Type:        "object",
		Title:       s.title,
		Properties:  jsonschema.NewProperties(),
		Description: "Form values keyed by field name.",
	}
	for _, f := range s.fields {
		prop := &jsonschema.Schema{
			Title:       f.Info().DisplayName,
			Description: f.Description,
		}
		switch f.Type {
		case TypeNumber:
			prop.Type = "number"
		case TypeBoolean:
			prop.Type = "boolean"
		case TypeDate:
			prop.Type = "string"
			prop.Format = "date"
		case TypeFile:
			prop.Type = "object"
		default:
			prop.Type = "string"
		}
		if f.Step > 0 {
			prop.Description = fmt.Sprintf("%s (step %d)", prop.Description, f.Step)
		}
		doc.Properties.Set(f.Name, prop)
		if !f.Optional {
			doc.Required = append(doc.Required, f.Name)
		}
	}
	data, err := sonic.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return string(data), nil
}
