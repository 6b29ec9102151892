package agent

import (
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/command"
)

type Request struct {
	UserInput string `json:"user_input"`
}

type Response struct {
	Message  string            `json:"message,omitempty"`
	Command  command.Command   `json:"command,omitempty"`
	View     stepform.View     `json:"view"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
