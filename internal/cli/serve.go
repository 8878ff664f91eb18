package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voidlock/squire/internal/backend"
	"github.com/voidlock/squire/internal/channel"
	"github.com/voidlock/squire/internal/channel/irc"
	"github.com/voidlock/squire/internal/config"
	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/gateway"
	"github.com/voidlock/squire/internal/hooks"
	"github.com/voidlock/squire/internal/relay"
	"github.com/voidlock/squire/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: connect channels and relay mentions to the assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Shell hooks
			hookMgr := hooks.NewManager(log)
			registerConfiguredHooks(hookMgr, cfg.Hooks)

			// Assistant backend
			invoker := backend.NewClaudeInvoker(backend.ClaudeConfig{
				Command:           cfg.Backend.Command,
				Model:             cfg.Backend.Model,
				QuiescenceTimeout: time.Duration(cfg.Backend.QuiescenceSeconds) * time.Second,
			}, log)
			if !invoker.Available() {
				log.Warn().Str("command", cfg.Backend.Command).Msg("assistant CLI not found on PATH — mentions will fail until it is installed")
			}

			// Session store
			var sessions relay.SessionStore
			if cfg.Session.Store == "sqlite" {
				if err := paths.EnsureDirs(); err != nil {
					return err
				}
				dbPath := filepath.Join(paths.Data, "squire.db")
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				sessions = store.NewSessionStore(db, log)
				log.Info().Str("path", dbPath).Msg("using SQLite session store")
			} else {
				sessions = relay.NewMemorySessionStore()
				log.Info().Msg("using in-memory session store")
			}

			// Channels and streaming output
			channels := channel.NewRegistry(log)
			streamer := channel.NewStreamer(channel.StreamerConfig{}, channels, log)

			orch := relay.New(
				relay.Config{
					SystemPrompt: cfg.Bot.SystemPrompt,
					Scope:        domain.Scope(cfg.Session.Scope),
					MaxTurns:     cfg.Backend.MaxTurns,
					Notices: relay.Notices{
						Busy:     cfg.Messages.Busy,
						Empty:    cfg.Messages.Empty,
						Error:    cfg.Messages.Error,
						NoOutput: cfg.Messages.NoOutput,
					},
				},
				invoker,
				relay.NewPermissionGate(cfg.Bot.AllowedTools),
				sessions,
				streamer,
				hookMgr,
				log,
			)

			onMention := func(ev domain.MentionEvent) {
				// Busy rejections and backend failures are surfaced to the
				// user by the orchestrator; nothing more to do here.
				go orch.HandleMention(ctx, ev)
			}
			onReset := func(ev domain.MentionEvent) {
				go orch.Reset(ctx, ev)
			}

			if cfg.Channels.IRC != nil {
				ircCh := irc.New(*cfg.Channels.IRC, log)
				ircCh.OnMention(onMention)
				ircCh.OnReset(onReset)
				channels.Register(ircCh)
			}

			if cfg.Gateway.Enabled {
				gw := gateway.New(cfg.Gateway, sessions, channels, log)
				gw.OnMention(onMention)
				gw.OnReset(onReset)
				channels.Register(gw)
			}

			if channels.Count() == 0 {
				return fmt.Errorf("no channels configured — set channels.irc or gateway.enabled")
			}

			// Idle-session sweeper
			ttl := time.Duration(cfg.Session.IdleMinutes) * time.Minute
			go relay.NewSweeper(sessions, ttl, 0, log).Run(ctx)

			hookMgr.Emit(ctx, hooks.EventServeStart, map[string]any{
				"channels": channels.List(),
			})
			defer hookMgr.Emit(context.Background(), hooks.EventServeStop, nil)

			channels.StartAll(ctx)
			defer channels.StopAll(context.Background())

			log.Info().
				Int("channels", channels.Count()).
				Str("scope", cfg.Session.Scope).
				Str("backend", invoker.Name()).
				Msg("squire running")

			<-ctx.Done()
			log.Info().Msg("shutting down")
			return nil
		},
	}

	return cmd
}

func registerConfiguredHooks(m *hooks.Manager, cfg config.HooksConfig) {
	wire := func(event string, entries []config.HookEntry) {
		shell := make([]hooks.ShellHook, len(entries))
		for i, e := range entries {
			shell[i] = hooks.ShellHook{
				Command: e.Command,
				Timeout: time.Duration(e.Timeout) * time.Millisecond,
			}
		}
		hooks.RegisterShellHooks(m, event, shell)
	}
	wire(hooks.EventTurnStarted, cfg.TurnStarted)
	wire(hooks.EventTurnCompleted, cfg.TurnCompleted)
	wire(hooks.EventTurnFailed, cfg.TurnFailed)
	wire(hooks.EventTurnRejected, cfg.TurnRejected)
	wire(hooks.EventToolDenied, cfg.ToolDenied)
	wire(hooks.EventSessionEvicted, cfg.SessionEvicted)
	wire(hooks.EventServeStart, cfg.ServeStart)
	wire(hooks.EventServeStop, cfg.ServeStop)
}
