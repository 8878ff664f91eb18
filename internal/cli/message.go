package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voidlock/squire/internal/backend"
	"github.com/voidlock/squire/internal/config"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and manage messages",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		model  string
		resume string
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one prompt to the assistant and stream the reply to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}
			if model == "" {
				model = cfg.Backend.Model
			}

			invoker := backend.NewClaudeInvoker(backend.ClaudeConfig{
				Command:           cfg.Backend.Command,
				Model:             model,
				QuiescenceTimeout: time.Duration(cfg.Backend.QuiescenceSeconds) * time.Second,
			}, log)
			if !invoker.Available() {
				return fmt.Errorf("assistant CLI %q not found on PATH", cfg.Backend.Command)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			events, err := invoker.Invoke(ctx, backend.Request{
				Prompt:        prompt,
				SystemPrompt:  cfg.Bot.SystemPrompt,
				SessionHandle: resume,
				AllowedTools:  cfg.Bot.AllowedTools,
				MaxTurns:      cfg.Backend.MaxTurns,
			})
			if err != nil {
				return err
			}

			var turnErr error
			for ev := range events {
				switch ev.Type {
				case backend.EventFragment:
					fmt.Print(ev.Text)
				case backend.EventToolUse:
					fmt.Fprintf(cmd.ErrOrStderr(), "[using %s]\n", ev.Text)
				case backend.EventDone:
					fmt.Println()
					if ev.Result != nil && ev.Result.Handle != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "\n[session=%s costUsd=%.4f]\n",
							ev.Result.Handle, ev.Result.CostUSD)
					}
				case backend.EventError:
					turnErr = ev.Err
				}
			}
			return turnErr
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "assistant model to use")
	cmd.Flags().StringVar(&resume, "resume", "", "resume an existing assistant session by handle")

	return cmd
}
