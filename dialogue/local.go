package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform/i18n"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
)

// LocalDialogueGenerator builds replies from templates without a model.
type LocalDialogueGenerator struct {
	MergeAllUnvalidatedFields bool
	Translator                *i18n.Translator
	Lang                      language.Tag
}

func NewLocalDialogueGenerator() *LocalDialogueGenerator {
	return &LocalDialogueGenerator{Translator: i18n.Default(), Lang: language.English}
}

func (g *LocalDialogueGenerator) SetLanguage(tag language.Tag) {
	g.Lang = tag
}

func (g *LocalDialogueGenerator) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	t := g.Translator
	if t == nil {
		t = i18n.Default()
	}
	if req.Prompting {
		return t.Message(g.Lang, i18n.KeyUnsavedChanges), nil
	}
	switch req.Kind {
	case types.KindStep:
		var sb strings.Builder
		sb.WriteString(formatValidationErrors(req.ValidationErrors, g.MergeAllUnvalidatedFields))
		if sb.Len() == 0 || g.MergeAllUnvalidatedFields {
			sb.WriteString(formatMissingFields(req.MissingFields, g.MergeAllUnvalidatedFields))
		}
		if sb.Len() == 0 {
			return fmt.Sprintf("%s is complete. Say next to continue.", capitalize(stepLabel(req))), nil
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	case types.KindSubmitting:
		return "Submitting, please wait.", nil
	case types.KindSucceeded:
		return t.Message(g.Lang, i18n.KeySaved), nil
	case types.KindFailed:
		failure := req.Failure
		if failure == "" {
			failure = t.Message(g.Lang, i18n.KeyGenericFailure)
		}
		return failure + "\nSay retry to try again or restart to start over.", nil
	case types.KindClosed:
		return "The form is closed.", nil
	default:
		return "Please continue filling in the form.", nil
	}
}

func (g *LocalDialogueGenerator) GenerateDialogueStream(ctx context.Context, req *types.ToolRequest) (*schema.StreamReader[string], error) {
	message, err := g.GenerateDialogue(ctx, req)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]string{message}), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FailbackDialogueGenerator returns the first reply produced without an error.
type FailbackDialogueGenerator struct {
	generators []Generator
}

func NewFailbackDialogueGenerator(generators ...Generator) *FailbackDialogueGenerator {
	return &FailbackDialogueGenerator{generators: generators}
}

func (g *FailbackDialogueGenerator) SetLanguage(tag language.Tag) {
	for _, generator := range g.generators {
		if setter, ok := generator.(LanguageSetter); ok {
			setter.SetLanguage(tag)
		}
	}
}

func (g *FailbackDialogueGenerator) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	var lastErr error
	for _, generator := range g.generators {
		plan, err := generator.GenerateDialogue(ctx, req)
		if err == nil {
			return plan, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("all dialogue generators failed: %w", lastErr)
}

func (g *FailbackDialogueGenerator) GenerateDialogueStream(ctx context.Context, req *types.ToolRequest) (*schema.StreamReader[string], error) {
	var lastErr error
	for _, generator := range g.generators {
		stream, err := generator.GenerateDialogueStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all dialogue generators failed: %w", lastErr)
}
