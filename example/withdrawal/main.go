package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/agent"
	"github.com/tbxark/stepform/config"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/forms"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/logger"
	"github.com/tbxark/stepform/submit"
)

func main() {
	path := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()
	conf, err := config.Load(*path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if conf.LLM == nil {
		log.Fatalf("load config: the llm section is required")
	}
	mode, err := logger.ParseMode(conf.LogMode)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	slog.SetDefault(logger.New(mode))
	if err := startApp(context.Background(), conf); err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func startApp(ctx context.Context, conf *config.Config) error {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  conf.LLM.APIKey,
		Model:   conf.LLM.Model,
		BaseURL: conf.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	wallet := &Wallet{balance: 250, minimum: 10}
	g := guard.New()
	sessions := agent.NewMemorySessionStore(func(ctx context.Context) (*stepform.Workflow, error) {
		def := forms.Withdrawal(
			dialog.FetchFunc(wallet.Fetch),
			submit.NewFunc(wallet.Withdraw, forms.WithdrawalCodes, forms.FieldNames(forms.WithdrawalName)...),
		)
		return stepform.New(def, g)
	})
	historyStore := agent.NewMemoryHistoryStore(agent.KeepLastTurns{N: 50})
	flow, err := agent.NewToolBasedFlow(sessions, cm,
		agent.WithHistory(historyStore),
		agent.WithLanguage(conf.Tag()),
	)
	if err != nil {
		return err
	}
	formAgent := agent.NewAgent(
		"WithdrawalAssistant",
		"An agent that walks a player through a withdrawal",
		flow,
	)
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: formAgent,
	})

	chatCtx := agent.WithSessionKey(ctx, "withdrawal")
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Withdrawal assistant. Tell me which account to pay out to:")
	for {
		fmt.Print("user: ")
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println("input closed, bye.")
			return nil
		}
		input = strings.TrimSpace(input)
		iter := runner.Run(chatCtx, []*schema.Message{schema.UserMessage(input)})
		for {
			event, ok := iter.Next()
			if !ok {
				break
			}
			if event.Err != nil {
				return event.Err
			}
			msg, mErr := event.Output.MessageOutput.GetMessage()
			if mErr != nil {
				return mErr
			}
			fmt.Printf("\nassistant: %v\n======\n", msg.Content)
		}
	}
}
