package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/command"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/dialogue"
	"github.com/tbxark/stepform/form"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/patch"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
)

// Flow turns one user message into at most one workflow command and a reply.
type Flow struct {
	sessions          *SessionStore
	history           HistoryReadWriter
	patchGenerator    patch.Generator
	dialogueGenerator dialogue.Generator
	commandParser     command.Parser
	lang              language.Tag
}

type FlowOption func(*Flow)

// WithHistory records every turn in h.
func WithHistory(h HistoryReadWriter) FlowOption {
	return func(f *Flow) {
		f.history = h
	}
}

// WithLanguage sets the reply language of dialogue generators that support it.
func WithLanguage(tag language.Tag) FlowOption {
	return func(f *Flow) {
		f.lang = tag
	}
}

func NewFlow(
	sessions *SessionStore,
	patchGen patch.Generator,
	dialogGen dialogue.Generator,
	commandParser command.Parser,
	opts ...FlowOption,
) (*Flow, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if patchGen == nil || dialogGen == nil || commandParser == nil {
		return nil, errors.New("patch generator, dialogue generator and command parser are required")
	}
	f := &Flow{
		sessions:          sessions,
		patchGenerator:    patchGen,
		dialogueGenerator: dialogGen,
		commandParser:     commandParser,
	}
	for _, opt := range opts {
		opt(f)
	}
	if setter, ok := dialogGen.(dialogue.LanguageSetter); ok && f.lang != language.Und {
		setter.SetLanguage(f.lang)
	}
	return f, nil
}

// NewLocalFlow drives the workflow with keyword parsing and template replies.
func NewLocalFlow(sessions *SessionStore, opts ...FlowOption) (*Flow, error) {
	return NewFlow(
		sessions,
		patch.NewLocalPatchGenerator(),
		dialogue.NewLocalDialogueGenerator(),
		command.NewLocalCommandParser(),
		opts...,
	)
}

// NewToolBasedFlow asks chatModel first and falls back to the local
// parsers when a tool call fails.
func NewToolBasedFlow(sessions *SessionStore, chatModel model.ToolCallingChatModel, opts ...FlowOption) (*Flow, error) {
	parser, err := command.NewToolBasedCommandParser(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool-based command parser: %w", err)
	}
	patchGen, err := patch.NewToolBasedPatchGenerator(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool-based patch generator: %w", err)
	}
	return NewFlow(
		sessions,
		patch.NewFailbackPatchGenerator(patchGen, patch.NewLocalPatchGenerator()),
		dialogue.NewFailbackDialogueGenerator(
			dialogue.NewToolBasedDialogueGenerator(chatModel),
			dialogue.NewLocalDialogueGenerator(),
		),
		command.NewFailbackCommandParser(parser, command.NewLocalCommandParser()),
		opts...,
	)
}

func (f *Flow) Invoke(ctx context.Context, req *Request) (*Response, error) {
	ctx = callbacks.EnsureRunInfo(ctx, "StepformFlow", "Flow")
	ctx = callbacks.OnStart(ctx, map[string]any{
		"input": req,
	})
	resp, err := f.run(ctx, req)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	callbacks.OnEnd(ctx, map[string]any{
		"command": string(resp.Command),
		"kind":    string(resp.View.Kind),
		"step":    resp.View.Step,
	})
	return resp, nil
}

func (f *Flow) run(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	metadata := map[string]string{}
	sess, created, err := f.sessions.Load(ctx)
	if sess == nil {
		return nil, err
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	wf := sess.Workflow
	pair := types.MessagePair{
		Question: sess.LatestQuestion,
		Answer:   req.UserInput,
	}

	cmd := command.DoNothing
	if !created || req.UserInput != "" {
		slog.Debug("Parsing command", "form", wf.Name(), "answer", req.UserInput)
		cmd, err = f.commandParser.ParseCommand(ctx, wf.ToolRequest(pair))
		if err != nil {
			return f.handleError(wf, fmt.Errorf("failed to parse command: %w", err))
		}
		slog.Debug("Parsed command", "form", wf.Name(), "command", cmd)
		if opErr := f.dispatch(ctx, wf, cmd, pair); opErr != nil {
			if !expected(opErr) {
				return f.handleError(wf, opErr)
			}
			metadata["error"] = opErr.Error()
		}
	}

	toolReq := wf.ToolRequest(pair)
	slog.Debug("Generating dialogue", "form", wf.Name(), "kind", toolReq.Kind, "step", toolReq.Step)
	question, err := f.dialogueGenerator.GenerateDialogue(ctx, toolReq)
	if err != nil {
		return f.handleError(wf, fmt.Errorf("failed to generate dialogue: %w", err))
	}
	sess.LatestQuestion = question

	view := wf.View()
	if view.Kind == types.KindClosed {
		metadata["closed"] = "true"
		if err := f.sessions.Remove(ctx); err != nil {
			return nil, err
		}
	} else if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	if f.history != nil {
		if _, err := f.history.Append(ctx, schema.UserMessage(req.UserInput), schema.AssistantMessage(question, nil)); err != nil {
			return nil, fmt.Errorf("failed to append history: %w", err)
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return &Response{
		Message:  question,
		Command:  cmd,
		View:     view,
		Metadata: metadata,
	}, nil
}

func (f *Flow) dispatch(ctx context.Context, wf *stepform.Workflow, cmd command.Command, pair types.MessagePair) error {
	var err error
	switch cmd {
	case command.Edit:
		slog.Debug("Requesting patch generation", "form", wf.Name())
		args, pErr := f.patchGenerator.GeneratePatch(ctx, wf.ToolRequest(pair))
		if pErr != nil {
			return fmt.Errorf("failed to generate patch: %w", pErr)
		}
		slog.Debug("Applying patch", "form", wf.Name(), "ops", args.Ops)
		_, err = wf.ApplyPatch(args.Ops)
	case command.Next:
		_, err = wf.Advance(ctx)
	case command.Back:
		_, err = wf.Retreat(ctx)
	case command.Close:
		_, err = wf.Close(ctx)
	case command.Save:
		_, err = wf.Resolve(ctx, guard.DecisionSave)
	case command.Discard:
		_, err = wf.Resolve(ctx, guard.DecisionDiscard)
	case command.Stay:
		_, err = wf.Resolve(ctx, guard.DecisionStay)
	case command.Retry:
		_, err = wf.Recover(ctx)
	case command.Restart:
		_, err = wf.Reset()
	}
	return err
}

// expected reports errors the reply already explains through the view.
func expected(err error) bool {
	var failure *submit.Failure
	switch {
	case errors.Is(err, step.ErrInvalid),
		errors.Is(err, step.ErrBusy),
		errors.Is(err, step.ErrLastStep),
		errors.Is(err, step.ErrNotFailed),
		errors.Is(err, step.ErrNotOnStep),
		errors.Is(err, guard.ErrNoPendingRequest),
		errors.Is(err, dialog.ErrNotOpen),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrReadOnlyField),
		errors.Is(err, patch.ErrPathNotAllowed):
		return true
	}
	return errors.As(err, &failure)
}

func (f *Flow) handleError(wf *stepform.Workflow, err error) (*Response, error) {
	slog.Debug("Flow turn failed", "form", wf.Name(), "error", err)
	return &Response{
		Message: fmt.Sprintf("Sorry, something went wrong while processing your input: %s", err.Error()),
		Command: command.DoNothing,
		View:    wf.View(),
		Metadata: map[string]string{
			"error": err.Error(),
		},
	}, nil
}
