package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/run-bigpig/guardchat/pkg/chat"
	"github.com/run-bigpig/guardchat/pkg/config"
	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	var (
		model        string
		configPath   string
		system       string
		noGuardrails bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with an LLM",
		Long: `Send one message, or start an interactive session when no message is given.
The gateway is started first when it is not already running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if missing := config.MissingEnv(config.RequiredChatEnv...); len(missing) > 0 {
				a.printer.MissingEnv(missing)
				return exitCode(1)
			}

			if err := a.newSupervisor(configPath).EnsureRunning(ctx); err != nil {
				a.logger.Error(ctx, "Gateway unavailable", map[string]interface{}{"error": err.Error()})
				a.printer.Progress("✗ Failed to start LiteLLM proxy server.")
				return exitCode(1)
			}

			if model == "" {
				model = a.settings.Model
			}
			options := []chat.Option{
				chat.WithModel(model),
				chat.WithLogger(a.logger),
				chat.WithTracer(a.tracer),
			}
			if noGuardrails {
				options = append(options, chat.WithGuardrails())
			}
			session := chat.NewSession(a.newClient(), options...)

			if len(args) == 1 {
				reply, err := session.Chat(ctx, args[0], system)
				if err != nil {
					a.printer.Error(err)
					return exitCode(1)
				}
				a.printer.Response(reply)
				return nil
			}

			return a.repl(ctx, session, system)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "model to use (default: gpt-3.5-turbo)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to LiteLLM config.yaml file (default: config.yaml)")
	cmd.Flags().StringVarP(&system, "system", "s", "", "system message to set context")
	cmd.Flags().BoolVar(&noGuardrails, "no-guardrails", false, "disable Lakera guardrails (not recommended)")

	return cmd
}

// repl reads user turns until quit, end of input or cancellation
func (a *app) repl(ctx context.Context, session *chat.Session, system string) error {
	a.printer.Banner()

	done := make(chan struct{})
	defer close(done)
	input := readLines(a.in, done)

	for {
		fmt.Fprint(a.out, "You: ")

		var line string
		select {
		case <-ctx.Done():
			a.printer.Println("\n\nGoodbye!")
			return nil
		case next, ok := <-input:
			if !ok {
				a.printer.Println("\n\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(next)
		}

		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			a.printer.Println("\nGoodbye!")
			return nil
		case "reset":
			session.Reset()
			a.printer.Println("Conversation history cleared.\n")
			continue
		}

		reply, err := session.Chat(ctx, line, system)
		if err != nil {
			if ctx.Err() != nil {
				a.printer.Println("\n\nGoodbye!")
				return nil
			}
			a.printer.Error(err)
			continue
		}
		a.printer.Response(reply)
	}
}

// readLines delivers lines from r until EOF or done is closed
func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	return lines
}
