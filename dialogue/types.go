package dialogue

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
)

// Generator renders the assistant's reply for a workflow snapshot.
type Generator interface {
	GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error)
	GenerateDialogueStream(ctx context.Context, req *types.ToolRequest) (*schema.StreamReader[string], error)
}

// LanguageSetter is implemented by generators whose reply language can change
// after construction.
type LanguageSetter interface {
	SetLanguage(tag language.Tag)
}
