package command

import (
	"context"

	"github.com/tbxark/stepform/types"
)

// Command is the workflow action a user turn maps to.
type Command string

const (
	Next      Command = "next"
	Back      Command = "back"
	Close     Command = "close"
	Save      Command = "save"
	Discard   Command = "discard"
	Stay      Command = "stay"
	Retry     Command = "retry"
	Restart   Command = "restart"
	Edit      Command = "edit"
	DoNothing Command = "do_nothing"
)

var All = []Command{Next, Back, Close, Save, Discard, Stay, Retry, Restart, Edit, DoNothing}

func (c Command) Valid() bool {
	for _, known := range All {
		if c == known {
			return true
		}
	}
	return false
}

type Parser interface {
	ParseCommand(ctx context.Context, req *types.ToolRequest) (Command, error)
}
