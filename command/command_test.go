package command

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform/structured"
	"github.com/tbxark/stepform/types"
)

func TestLocalCommandParser(t *testing.T) {
	t.Parallel()
	p := NewLocalCommandParser()
	tests := []struct {
		answer string
		want   Command
	}{
		{"Next", Next},
		{"  submit! ", Next},
		{"назад", Back},
		{"cancel", Close},
		{"save and close", Save},
		{"discard", Discard},
		{"keep editing", Stay},
		{"try again", Retry},
		{"start over", Restart},
		{"amount: 50", Edit},
		{"account=acc-1", Edit},
		{"hello there", DoNothing},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			t.Parallel()
			got, err := p.ParseCommand(context.Background(), &types.ToolRequest{MessagePair: types.MessagePair{Answer: tt.answer}})
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %s, want %s", tt.answer, got, tt.want)
			}
		})
	}
}

type failingParser struct{}

func (failingParser) ParseCommand(context.Context, *types.ToolRequest) (Command, error) {
	return DoNothing, errors.New("model unavailable")
}

func TestFailbackCommandParser(t *testing.T) {
	t.Parallel()
	req := &types.ToolRequest{MessagePair: types.MessagePair{Answer: "retry"}}
	got, err := NewFailbackCommandParser(failingParser{}, NewLocalCommandParser()).ParseCommand(context.Background(), req)
	if err != nil || got != Retry {
		t.Fatalf("ParseCommand = %s, %v", got, err)
	}
	if _, err := NewFailbackCommandParser(failingParser{}).ParseCommand(context.Background(), req); err == nil {
		t.Error("expected the last parser error")
	}
	if !Edit.Valid() || Command("dance").Valid() {
		t.Error("Valid mismatch")
	}
}

type intentModel struct {
	intent string
}

func (m intentModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{Function: schema.FunctionCall{
			Name:      parseCommandToolName,
			Arguments: `{"intent":"` + m.intent + `"}`,
		}}},
	}, nil
}

func (m intentModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, _ := m.Generate(ctx, input, opts...)
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m intentModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestToolBasedCommandParser(t *testing.T) {
	t.Parallel()
	tests := []struct {
		intent    string
		prompting bool
		want      Command
		rejected  bool
	}{
		{intent: "next", want: Next},
		{intent: "discard", prompting: true, want: Discard},
		{intent: "discard", rejected: true},
		{intent: "jump", rejected: true},
	}
	for _, tt := range tests {
		p, err := NewToolBasedCommandParser(intentModel{intent: tt.intent})
		if err != nil {
			t.Fatalf("NewToolBasedCommandParser: %v", err)
		}
		got, err := p.ParseCommand(context.Background(), &types.ToolRequest{Prompting: tt.prompting})
		if tt.rejected {
			if !errors.Is(err, structured.ErrRejected) {
				t.Errorf("intent %q prompting=%v: expected ErrRejected, got %v", tt.intent, tt.prompting, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("intent %q: got %s, %v", tt.intent, got, err)
		}
	}
}
