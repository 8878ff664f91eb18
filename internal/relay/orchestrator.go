// Package relay orchestrates conversations between chat channels and the
// assistant backend: one session per conversation, one turn in flight per
// session, fragments streamed out in order.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voidlock/squire/internal/backend"
	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/hooks"
	"github.com/voidlock/squire/internal/logging"
)

// ErrConversationBusy is returned when a mention arrives while a turn for
// the same conversation is still in flight. The previous turn is not
// affected; the new mention is rejected, never queued.
var ErrConversationBusy = errors.New("conversation busy")

// Streamer is the output sink for assistant fragments. Implementations may
// batch or edit-in-place, but must preserve relative fragment order per
// conversation.
type Streamer interface {
	// Emit delivers one fragment for the conversation.
	Emit(ctx context.Context, key domain.ConversationKey, fragment string) error

	// EmitError delivers a user-visible failure or rejection notice.
	EmitError(ctx context.Context, key domain.ConversationKey, message string)

	// Flush marks the end of a turn so buffered output can drain.
	Flush(ctx context.Context, key domain.ConversationKey)
}

// Notices are the user-facing message strings for non-content replies.
type Notices struct {
	Busy     string
	Empty    string
	Error    string
	NoOutput string
}

// DefaultNotices returns the stock notice strings.
func DefaultNotices() Notices {
	return Notices{
		Busy:     "Still working on your previous request — try again in a moment.",
		Empty:    "You rang? Add a message after the mention.",
		Error:    "Something went wrong talking to the assistant. The conversation is still usable.",
		NoOutput: "Done — nothing to report.",
	}
}

func (n *Notices) applyDefaults() {
	d := DefaultNotices()
	if n.Busy == "" {
		n.Busy = d.Busy
	}
	if n.Empty == "" {
		n.Empty = d.Empty
	}
	if n.Error == "" {
		n.Error = d.Error
	}
	if n.NoOutput == "" {
		n.NoOutput = d.NoOutput
	}
}

// Config holds the immutable per-construction settings of the orchestrator.
type Config struct {
	// SystemPrompt is the configured personality appended to the built
	// system prompt.
	SystemPrompt string

	// Scope selects how events map to conversations.
	Scope domain.Scope

	// MaxTurns bounds agentic rounds inside the backend. Zero = default.
	MaxTurns int

	Notices Notices
}

// Orchestrator coordinates one turn per mention: acquire the session,
// invoke the backend, stream fragments, release the session. It performs
// no chat-platform I/O itself; everything goes through the Streamer.
type Orchestrator struct {
	cfg      Config
	invoker  backend.Invoker
	gate     PermissionGate
	sessions SessionStore
	streamer Streamer
	hooks    *hooks.Manager
	log      *logging.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// New creates an orchestrator. hookMgr may be nil.
func New(
	cfg Config,
	invoker backend.Invoker,
	gate PermissionGate,
	sessions SessionStore,
	streamer Streamer,
	hookMgr *hooks.Manager,
	log *logging.Logger,
) *Orchestrator {
	if cfg.Scope == "" {
		cfg.Scope = domain.ScopeThread
	}
	cfg.Notices.applyDefaults()
	return &Orchestrator{
		cfg:      cfg,
		invoker:  invoker,
		gate:     gate,
		sessions: sessions,
		streamer: streamer,
		hooks:    hookMgr,
		log:      log.Sub("relay"),
		inflight: make(map[string]context.CancelFunc),
	}
}

// HandleMention runs one turn for an inbound mention. Safe to call
// concurrently; turns for distinct conversations proceed in parallel,
// while a second mention for a busy conversation is rejected with a
// notice and ErrConversationBusy.
func (o *Orchestrator) HandleMention(ctx context.Context, ev domain.MentionEvent) error {
	key := domain.KeyFor(ev, o.cfg.Scope)

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		o.streamer.EmitError(ctx, key, o.cfg.Notices.Empty)
		return nil
	}

	sess, ok := o.sessions.TryAcquire(key)
	if !ok {
		o.log.Info().Str("conversation", key.String()).Msg("rejecting concurrent mention")
		o.streamer.EmitError(ctx, key, o.cfg.Notices.Busy)
		o.hooks.Emit(ctx, hooks.EventTurnRejected, map[string]any{"conversation": key.String()})
		return ErrConversationBusy
	}

	// The busy flag must come back down on every exit path.
	released := false
	defer func() {
		if !released {
			o.sessions.Release(key, "", false)
		}
	}()

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.track(key, cancel)
	defer o.untrack(key)

	o.log.Info().
		Str("conversation", key.String()).
		Str("from", ev.AuthorID).
		Int("turn", sess.TurnCount).
		Bool("resuming", sess.Handle != "").
		Msg("starting turn")
	o.hooks.Emit(ctx, hooks.EventTurnStarted, map[string]any{
		"conversation": key.String(),
		"turn":         sess.TurnCount,
	})

	start := time.Now()
	events, err := o.invoker.Invoke(tctx, backend.Request{
		Prompt:        text,
		SessionHandle: sess.Handle,
		SystemPrompt:  buildSystemPrompt(o.cfg.SystemPrompt, ev),
		AllowedTools:  o.gate.Allowed(),
		MaxTurns:      o.cfg.MaxTurns,
	})
	if err != nil {
		released = true
		o.sessions.Release(key, "", false)
		return o.failTurn(ctx, key, err, 0)
	}

	// Single consumer loop: sink order equals production order.
	var (
		result    *backend.Result
		turnErr   error
		fragments int
	)
	for ev := range events {
		switch ev.Type {
		case backend.EventFragment:
			fragments++
			if serr := o.streamer.Emit(ctx, key, ev.Text); serr != nil {
				o.log.Error().Err(serr).Str("conversation", key.String()).Msg("sink rejected fragment")
			}
		case backend.EventToolUse:
			o.handleToolUse(ctx, key, ev.Text)
		case backend.EventDone:
			result = ev.Result
		case backend.EventError:
			turnErr = ev.Err
		}
	}
	o.streamer.Flush(ctx, key)

	if turnErr == nil && result == nil {
		turnErr = &backend.BackendError{Message: "stream ended without result"}
	}
	if turnErr != nil {
		released = true
		o.sessions.Release(key, "", false)
		return o.failTurn(ctx, key, turnErr, fragments)
	}

	released = true
	o.sessions.Release(key, result.Handle, result.Success)

	if fragments == 0 {
		// The assistant finished without saying anything (tool-only
		// turn, or a reply swallowed by the backend). Silence looks
		// like a hang from the user's side.
		o.streamer.EmitError(ctx, key, o.cfg.Notices.NoOutput)
	}

	o.log.Info().
		Str("conversation", key.String()).
		Str("handle", result.Handle).
		Int("fragments", fragments).
		Float64("costUsd", result.CostUSD).
		Dur("duration", time.Since(start)).
		Msg("turn completed")
	o.hooks.Emit(ctx, hooks.EventTurnCompleted, map[string]any{
		"conversation": key.String(),
		"fragments":    fragments,
		"durationMs":   time.Since(start).Milliseconds(),
	})
	return nil
}

// Reset cancels any in-flight turn for the conversation and evicts its
// session so the next mention starts from a clean handle.
func (o *Orchestrator) Reset(ctx context.Context, ev domain.MentionEvent) {
	key := domain.KeyFor(ev, o.cfg.Scope)

	o.mu.Lock()
	cancel := o.inflight[key.String()]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.sessions.Evict(key)
	o.log.Info().Str("conversation", key.String()).Msg("conversation reset")
	o.hooks.Emit(ctx, hooks.EventSessionEvicted, map[string]any{"conversation": key.String()})
	o.streamer.EmitError(ctx, key, "Conversation reset. Next mention starts fresh.")
}

// Sessions exposes the store for status listings.
func (o *Orchestrator) Sessions() SessionStore { return o.sessions }

func (o *Orchestrator) handleToolUse(ctx context.Context, key domain.ConversationKey, tool string) {
	if !o.gate.IsAllowed(tool) {
		// The backend saw an allow-list without this tool, so it was
		// never executable; surface the refusal and move on.
		o.log.Warn().Str("conversation", key.String()).Str("tool", tool).Msg("tool denied")
		o.hooks.Emit(ctx, hooks.EventToolDenied, map[string]any{
			"conversation": key.String(),
			"tool":         tool,
		})
		if serr := o.streamer.Emit(ctx, key, fmt.Sprintf("[%s]", o.gate.Refusal(tool))); serr != nil {
			o.log.Error().Err(serr).Msg("sink rejected refusal notice")
		}
		return
	}
	if serr := o.streamer.Emit(ctx, key, fmt.Sprintf("[using %s]", tool)); serr != nil {
		o.log.Error().Err(serr).Msg("sink rejected tool notice")
	}
}

func (o *Orchestrator) failTurn(ctx context.Context, key domain.ConversationKey, err error, fragments int) error {
	o.log.Error().
		Err(err).
		Str("conversation", key.String()).
		Int("fragmentsDelivered", fragments).
		Msg("turn failed")
	o.streamer.EmitError(ctx, key, o.cfg.Notices.Error)
	o.hooks.Emit(ctx, hooks.EventTurnFailed, map[string]any{
		"conversation": key.String(),
		"error":        err.Error(),
	})
	return err
}

func (o *Orchestrator) track(key domain.ConversationKey, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight[key.String()] = cancel
}

func (o *Orchestrator) untrack(key domain.ConversationKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, key.String())
}
