package command

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform/structured"
	"github.com/tbxark/stepform/types"
)

const (
	parseCommandToolName        = "parse_command_intent"
	parseCommandToolDescription = "Analyze user input and determine the workflow command intent."
)

type parseCommandInput struct {
	Intent Command `json:"intent" jsonschema:"required,enum=next,enum=back,enum=close,enum=save,enum=discard,enum=stay,enum=retry,enum=restart,enum=edit,enum=do_nothing,description=The user's command intent"`
}

type ToolBasedCommandParser struct {
	chain *structured.Chain[*types.ToolRequest, parseCommandInput]
}

func NewToolBasedCommandParser(chatModel model.ToolCallingChatModel) (*ToolBasedCommandParser, error) {
	chain, err := structured.NewChain[*types.ToolRequest, parseCommandInput](
		chatModel,
		buildParseCommandPrompt,
		parseCommandToolName,
		parseCommandToolDescription,
		structured.WithCheck[*types.ToolRequest, parseCommandInput](checkIntent),
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedCommandParser{chain: chain}, nil
}

func (p *ToolBasedCommandParser) ParseCommand(ctx context.Context, req *types.ToolRequest) (Command, error) {
	result, err := p.chain.Invoke(ctx, req)
	if err != nil {
		return DoNothing, err
	}
	return result.Intent, nil
}

// checkIntent rejects unknown intents and guard decisions offered while no
// confirmation is pending.
func checkIntent(req *types.ToolRequest, out *parseCommandInput) error {
	switch {
	case out.Intent == "":
		return fmt.Errorf("empty intent")
	case !out.Intent.Valid():
		return fmt.Errorf("unknown intent %q", out.Intent)
	case !req.Prompting && (out.Intent == Save || out.Intent == Discard || out.Intent == Stay):
		return fmt.Errorf("intent %q without a pending confirmation", out.Intent)
	}
	return nil
}

func buildParseCommandPrompt(ctx context.Context, req *types.ToolRequest) ([]*schema.Message, error) {
	message, err := types.FormatToolRequest(req)
	if err != nil {
		return nil, fmt.Errorf("convert to prompt message failed: %w", err)
	}

	systemPrompt := fmt.Sprintf(`You are an assistant for a stepped form in an operator panel. Decide what the user wants the form to do.

Always combine the assistant's question with the user's answer. Context is key: do not judge intent from isolated words.

Allowed intents:
- next: the user wants to continue to the next step or submit the current one.
- back: the user wants to return to the previous step.
- close: the user wants to close or abandon the form.
- save: an unsaved-changes confirmation is pending and the user wants to save before closing.
- discard: an unsaved-changes confirmation is pending and the user wants to drop the changes.
- stay: an unsaved-changes confirmation is pending and the user wants to keep editing.
- retry: the last submission failed and the user wants to try the same submission again.
- restart: the user wants to start the form over from the first step.
- edit: the answer provides or changes field values.
- do_nothing: conversational input unrelated to the form.

Only use save, discard or stay when the request says a confirmation is pending. Only use retry when a submission failure is shown.

Call the '%s' tool with the result.`, parseCommandToolName)

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(message),
	}, nil
}
