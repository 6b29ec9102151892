// Package structured forces a chat model to answer through a single tool call
// and decodes the call arguments into a Go value.
package structured

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

var (
	ErrNoToolCall = errors.New("no tool call found in model response")
	ErrRejected   = errors.New("tool call arguments rejected")
)

type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Check inspects decoded arguments against the input they were produced for.
type Check[TInput, TOutput any] func(input TInput, output *TOutput) error

type Chain[TInput, TOutput any] struct {
	prompt    PromptBuilder[TInput]
	chatModel model.ToolCallingChatModel
	tool      *schema.ToolInfo
	checks    []Check[TInput, TOutput]
}

type ChainOption[TInput, TOutput any] func(*Chain[TInput, TOutput])

// WithCheck appends a check run on every decoded result. A failing check
// wraps ErrRejected.
func WithCheck[TInput, TOutput any](check Check[TInput, TOutput]) ChainOption[TInput, TOutput] {
	return func(c *Chain[TInput, TOutput]) {
		if check != nil {
			c.checks = append(c.checks, check)
		}
	}
}

func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	prompt PromptBuilder[TInput],
	toolName string,
	toolDesc string,
	opts ...ChainOption[TInput, TOutput],
) (*Chain[TInput, TOutput], error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if prompt == nil {
		return nil, errors.New("prompt builder is required")
	}
	tool, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info for %s: %w", toolName, err)
	}
	c := &Chain[TInput, TOutput]{prompt: prompt, chatModel: chatModel, tool: tool}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ToolName is the name of the forced tool.
func (c *Chain[TInput, TOutput]) ToolName() string {
	return c.tool.Name
}

func (c *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := c.prompt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt for %s: %w", c.tool.Name, err)
	}
	response, err := c.chatModel.Generate(ctx, messages,
		model.WithTools([]*schema.ToolInfo{c.tool}),
		model.WithToolChoice(schema.ToolChoiceForced, c.tool.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("call model for %s: %w", c.tool.Name, err)
	}
	out, err := Decode[TOutput](response, c.tool.Name)
	if err != nil {
		return nil, err
	}
	for _, check := range c.checks {
		if err := check(input, out); err != nil {
			return nil, fmt.Errorf("%w by %s: %w", ErrRejected, c.tool.Name, err)
		}
	}
	return out, nil
}

// Decode parses the arguments of the tool call named toolName, falling back to
// the first call when none matches.
func Decode[TOutput any](msg *schema.Message, toolName string) (*TOutput, error) {
	if msg == nil {
		return nil, ErrNoToolCall
	}
	if len(msg.ToolCalls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoToolCall, msg.Content)
	}
	args := msg.ToolCalls[0].Function.Arguments
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == toolName {
			args = tc.Function.Arguments
			break
		}
	}
	var out TOutput
	if err := sonic.UnmarshalString(args, &out); err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", toolName, err)
	}
	return &out, nil
}
