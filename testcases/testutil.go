package testcases

import (
	"context"
	"os"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/google/uuid"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/agent"
	"github.com/tbxark/stepform/config"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/notify"
)

// InitChatModel skips the test unless live model tests are enabled.
func InitChatModel(t *testing.T) *openai.ChatModel {
	t.Helper()
	if os.Getenv("STEPFORM_RUN_LIVE_TESTS") != "1" {
		t.Skip("set STEPFORM_RUN_LIVE_TESTS=1 to run live LLM tests")
	}
	conf, err := config.Load("../config.yaml")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
	}
	if conf.LLM == nil || conf.LLM.APIKey == "" {
		t.Skip("config.yaml has no llm api_key")
	}
	chatModel, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:  conf.LLM.APIKey,
		Model:   conf.LLM.Model,
		BaseURL: conf.LLM.BaseURL,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
	}
	return chatModel
}

// Harness is one conversation against an in-memory backend.
type Harness struct {
	t       *testing.T
	ctx     context.Context
	Flow    *agent.Flow
	Backend *Backend
	Toasts  *notify.Recorder
}

type flowBuilder func(sessions *agent.SessionStore) (*agent.Flow, error)

func newHarness(t *testing.T, def func(*Backend) stepform.Definition, build flowBuilder) *Harness {
	t.Helper()
	backend := NewBackend()
	toasts := &notify.Recorder{}
	g := guard.New()
	sessions := agent.NewMemorySessionStore(func(ctx context.Context) (*stepform.Workflow, error) {
		return stepform.New(def(backend), g, stepform.WithNotifier(toasts))
	})
	flow, err := build(sessions)
	if err != nil {
		t.Fatalf("failed to build flow: %v", err)
	}
	return &Harness{
		t:       t,
		ctx:     agent.WithSessionKey(context.Background(), uuid.NewString()),
		Flow:    flow,
		Backend: backend,
		Toasts:  toasts,
	}
}

// NewLocalHarness drives the form with keyword parsing and template replies.
func NewLocalHarness(t *testing.T, def func(*Backend) stepform.Definition) *Harness {
	t.Helper()
	return newHarness(t, def, func(sessions *agent.SessionStore) (*agent.Flow, error) {
		return agent.NewLocalFlow(sessions)
	})
}

// NewLiveHarness drives the form with the configured chat model.
func NewLiveHarness(t *testing.T, def func(*Backend) stepform.Definition) *Harness {
	t.Helper()
	chatModel := InitChatModel(t)
	return newHarness(t, def, func(sessions *agent.SessionStore) (*agent.Flow, error) {
		return agent.NewToolBasedFlow(sessions, chatModel)
	})
}

func (h *Harness) Say(input string) *agent.Response {
	h.t.Helper()
	resp, err := h.Flow.Invoke(h.ctx, &agent.Request{UserInput: input})
	if err != nil {
		h.t.Fatalf("Invoke(%q): %v", input, err)
	}
	h.t.Logf("> %s\n< %s", input, resp.Message)
	return resp
}
