package command

import (
	"context"
	"errors"
	"strings"

	"github.com/tbxark/stepform/types"
)

// LocalCommandParser matches the whole answer against keyword lists. An
// answer holding "field: value" pairs is an edit.
type LocalCommandParser struct {
	Keywords map[Command][]string
}

func NewLocalCommandParser() *LocalCommandParser {
	return &LocalCommandParser{
		Keywords: map[Command][]string{
			Next:    {"next", "continue", "submit", "confirm", "done", "далее", "продолжить", "отправить"},
			Back:    {"back", "previous", "назад"},
			Close:   {"close", "cancel", "quit", "exit", "закрыть", "отмена"},
			Save:    {"save", "save and close", "сохранить"},
			Discard: {"discard", "discard changes", "не сохранять"},
			Stay:    {"stay", "keep editing", "остаться"},
			Retry:   {"retry", "try again", "повторить"},
			Restart: {"restart", "start over", "заново"},
		},
	}
}

func (p *LocalCommandParser) ParseCommand(ctx context.Context, req *types.ToolRequest) (Command, error) {
	normalized := strings.ToLower(strings.TrimSpace(req.MessagePair.Answer))
	normalized = strings.TrimRight(normalized, ".!")
	for _, cmd := range All {
		for _, keyword := range p.Keywords[cmd] {
			if normalized == keyword {
				return cmd, nil
			}
		}
	}
	if strings.ContainsAny(normalized, ":=") {
		return Edit, nil
	}
	return DoNothing, nil
}

// FailbackCommandParser returns the first parser result without an error.
type FailbackCommandParser struct {
	parsers []Parser
}

func NewFailbackCommandParser(parsers ...Parser) *FailbackCommandParser {
	return &FailbackCommandParser{parsers: parsers}
}

func (p *FailbackCommandParser) ParseCommand(ctx context.Context, req *types.ToolRequest) (Command, error) {
	lastErr := errors.New("no command parser configured")
	for _, parser := range p.parsers {
		cmd, err := parser.ParseCommand(ctx, req)
		if err == nil {
			return cmd, nil
		}
		lastErr = err
	}
	return DoNothing, lastErr
}
