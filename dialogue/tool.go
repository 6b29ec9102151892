package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultSystemPrompt is formatted with the reply language name.
const DefaultSystemPrompt = `You are an assistant guiding an operator through a stepped form of a payments panel.

Reply briefly and concretely:
- If a submission failure is shown, repeat its message and offer to retry or restart.
- If the current step has validation errors, point out the first one and how to fix it.
- If required fields of the current step are missing, ask for them one or two at a time.
- If the current step is complete, ask whether to continue to the next step or submit.
- Never invent field values and never claim the form was saved.
- Reply in %s.
`

// ToolBasedDialogueGenerator phrases step guidance with a chat model. Unsaved-changes
// prompts and final outcomes are rendered by the fixed generator so their wording never
// drifts.
type ToolBasedDialogueGenerator struct {
	chatModel    model.ToolCallingChatModel
	systemPrompt string
	customPrompt bool
	fixed        Generator
}

type GeneratorOption func(*ToolBasedDialogueGenerator)

// WithReplyLanguage sets the language the model is asked to reply in.
func WithReplyLanguage(tag language.Tag) GeneratorOption {
	return func(g *ToolBasedDialogueGenerator) {
		g.SetLanguage(tag)
	}
}

// WithSystemPrompt replaces the system prompt verbatim.
func WithSystemPrompt(prompt string) GeneratorOption {
	return func(g *ToolBasedDialogueGenerator) {
		g.systemPrompt = prompt
		g.customPrompt = true
	}
}

// WithFixedReplies sets the generator used for prompts and outcomes.
func WithFixedReplies(fixed Generator) GeneratorOption {
	return func(g *ToolBasedDialogueGenerator) {
		if fixed != nil {
			g.fixed = fixed
		}
	}
}

func NewToolBasedDialogueGenerator(chatModel model.ToolCallingChatModel, opts ...GeneratorOption) *ToolBasedDialogueGenerator {
	g := &ToolBasedDialogueGenerator{
		chatModel:    chatModel,
		systemPrompt: fmt.Sprintf(DefaultSystemPrompt, "English"),
		fixed:        NewLocalDialogueGenerator(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// SetLanguage rewrites the default system prompt for tag. A prompt set with
// WithSystemPrompt is kept.
func (g *ToolBasedDialogueGenerator) SetLanguage(tag language.Tag) {
	name := display.Tags(language.English).Name(tag)
	if name == "" {
		return
	}
	if !g.customPrompt {
		g.systemPrompt = fmt.Sprintf(DefaultSystemPrompt, name)
	}
	if setter, ok := g.fixed.(LanguageSetter); ok {
		setter.SetLanguage(tag)
	}
}

// needsModel reports whether the snapshot is open-ended enough to be phrased by the model.
func needsModel(req *types.ToolRequest) bool {
	if req.Prompting {
		return false
	}
	return req.Kind == types.KindStep || req.Kind == types.KindFailed
}

func (g *ToolBasedDialogueGenerator) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	if !needsModel(req) {
		return g.fixed.GenerateDialogue(ctx, req)
	}
	messages, err := g.messages(req)
	if err != nil {
		return "", err
	}
	response, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	if strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("LLM returned an empty reply")
	}
	return response.Content, nil
}

func (g *ToolBasedDialogueGenerator) GenerateDialogueStream(ctx context.Context, req *types.ToolRequest) (*schema.StreamReader[string], error) {
	if !needsModel(req) {
		return g.fixed.GenerateDialogueStream(ctx, req)
	}
	messages, err := g.messages(req)
	if err != nil {
		return nil, err
	}
	stream, err := g.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM stream call failed: %w", err)
	}
	return schema.StreamReaderWithConvert(stream, func(message *schema.Message) (string, error) {
		return message.Content, nil
	}), nil
}

func (g *ToolBasedDialogueGenerator) messages(req *types.ToolRequest) ([]*schema.Message, error) {
	var sb strings.Builder
	snapshot, err := types.FormatToolRequest(req)
	if err != nil {
		return nil, fmt.Errorf("build dialogue prompt: %w", err)
	}
	sb.WriteString(snapshot)

	if len(req.Fields) > 0 {
		sb.WriteString("\n\n# Current values:\n")
		sb.WriteString(types.FormatSummary(req.Fields, req.State))
	}

	messages := []*schema.Message{schema.SystemMessage(g.systemPrompt)}
	if pair := req.MessagePair; pair.Question != "" && pair.Answer != "" {
		messages = append(messages, schema.AssistantMessage(pair.Question, nil), schema.UserMessage(pair.Answer))
	}
	return append(messages, schema.UserMessage(sb.String())), nil
}
