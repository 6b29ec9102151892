package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/command"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/types"
)

var _ adk.Agent = (*Agent)(nil)

var ErrNoUserMessage = errors.New("no user message in input")

// Turn is the customized output of every event the agent emits. Prompt is set
// while the unsaved-changes confirmation waits for save, discard or stay.
type Turn struct {
	Form    string            `json:"form"`
	Kind    types.Kind        `json:"kind"`
	Step    int               `json:"step"`
	Command command.Command   `json:"command,omitempty"`
	Prompt  *guard.Prompt     `json:"prompt,omitempty"`
	Failure *stepform.Failure `json:"failure,omitempty"`
	View    stepform.View     `json:"view"`
}

// Agent exposes a Flow as an adk agent. The session is routed by the key set
// with WithSessionKey on the run context. A turn that leaves the form
// submitted or closed carries an exit action; a pending confirmation is
// repeated as the customized action.
type Agent struct {
	name        string
	description string
	flow        *Flow
}

func NewAgent(name, description string, flow *Flow) *Agent {
	return &Agent{
		name:        name,
		description: description,
		flow:        flow,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			if e := recover(); e != nil {
				gen.Send(a.failed(fmt.Errorf("recover from panic: %v", e)))
			}
			gen.Close()
		}()
		text, err := lastUserInput(input)
		if err != nil {
			gen.Send(a.failed(err))
			return
		}
		resp, err := a.flow.Invoke(ctx, &Request{UserInput: text})
		if err != nil {
			gen.Send(a.failed(fmt.Errorf("flow invoke failed: %w", err)))
			return
		}
		gen.Send(a.event(resp, input.EnableStreaming))
	}()
	return iter
}

func (a *Agent) failed(err error) *adk.AgentEvent {
	return &adk.AgentEvent{AgentName: a.name, Err: err}
}

func (a *Agent) event(resp *Response, streaming bool) *adk.AgentEvent {
	msg := schema.AssistantMessage(resp.Message, nil)
	variant := &adk.MessageVariant{Role: schema.Assistant, IsStreaming: streaming}
	if streaming {
		variant.MessageStream = schema.StreamReaderFromArray([]*schema.Message{msg})
	} else {
		variant.Message = msg
	}
	turn := &Turn{
		Form:    resp.View.Form,
		Kind:    resp.View.Kind,
		Step:    resp.View.Step,
		Command: resp.Command,
		Prompt:  resp.View.Prompt,
		Failure: resp.View.Failure,
		View:    resp.View,
	}
	event := &adk.AgentEvent{
		AgentName: a.name,
		Output:    &adk.AgentOutput{MessageOutput: variant, CustomizedOutput: turn},
	}
	switch {
	case turn.Prompt != nil:
		event.Action = &adk.AgentAction{CustomizedAction: *turn.Prompt}
	case turn.Kind == types.KindSucceeded || turn.Kind == types.KindClosed:
		event.Action = adk.NewExitAction()
	}
	return event
}

// lastUserInput picks the newest user message; assistant and tool messages
// replayed by a runner are skipped.
func lastUserInput(input *adk.AgentInput) (string, error) {
	if input == nil {
		return "", ErrNoUserMessage
	}
	for i := len(input.Messages) - 1; i >= 0; i-- {
		if m := input.Messages[i]; m != nil && m.Role == schema.User {
			return m.Content, nil
		}
	}
	return "", ErrNoUserMessage
}
