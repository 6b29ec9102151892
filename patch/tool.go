package patch

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform/structured"
	"github.com/tbxark/stepform/types"
)

const (
	updateFormToolName        = "update_form"
	updateFormToolDescription = "Generate RFC6902 JSON Patch operations to update form fields based on user input. Only include operations for information explicitly provided by the user."
)

type ToolBasedPatchGenerator struct {
	chain *structured.Chain[*types.ToolRequest, UpdateFormArgs]
}

func NewToolBasedPatchGenerator(chatModel model.ToolCallingChatModel) (*ToolBasedPatchGenerator, error) {
	chain, err := structured.NewChain[*types.ToolRequest, UpdateFormArgs](
		chatModel,
		buildPatchPrompt,
		updateFormToolName,
		updateFormToolDescription,
		structured.WithCheck[*types.ToolRequest, UpdateFormArgs](checkOperations),
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedPatchGenerator{chain: chain}, nil
}

func (g *ToolBasedPatchGenerator) GeneratePatch(ctx context.Context, req *types.ToolRequest) (*UpdateFormArgs, error) {
	result, err := g.chain.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	return result, nil
}

func checkOperations(req *types.ToolRequest, out *UpdateFormArgs) error {
	return ValidateOperations(out.Ops, allowedFields(req))
}

func allowedFields(req *types.ToolRequest) map[string]bool {
	allowed := make(map[string]bool, len(req.Fields))
	for _, f := range req.Fields {
		allowed[f.Name] = true
	}
	return allowed
}

func buildPatchPrompt(ctx context.Context, req *types.ToolRequest) ([]*schema.Message, error) {
	message, err := types.FormatToolRequest(req)
	if err != nil {
		return nil, fmt.Errorf("convert to prompt message failed: %w", err)
	}
	var paths []string
	for _, f := range req.Fields {
		paths = append(paths, Pointer(f.Name))
	}
	allowed := "all (no restriction)"
	if len(paths) > 0 {
		allowed = strings.Join(paths, ", ")
	}
	systemPrompt := fmt.Sprintf("You are a form assistant. Analyze the user answer and call %s to generate RFC6902 JSON Patch operations. Rules: only use explicit user info; use replace for updates and add for new fields; numbers stay numbers; dates use YYYY-MM-DD; only use these paths: %s; if nothing to extract, return empty operations.", updateFormToolName, allowed)

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(message),
	}, nil
}
