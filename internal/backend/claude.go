package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/voidlock/squire/internal/logging"
)

// ClaudeConfig configures the Claude Code CLI invoker.
type ClaudeConfig struct {
	// Command is the CLI binary. Default "claude".
	Command string

	// Model passed via --model. Empty uses the CLI's default.
	Model string

	// QuiescenceTimeout bounds the gap between streamed events. Zero
	// disables the guard.
	QuiescenceTimeout time.Duration
}

// ClaudeInvoker runs turns through the `claude` CLI in stream-json mode.
// Session continuity uses the CLI's own --resume mechanism, so handles
// survive squire restarts.
type ClaudeInvoker struct {
	cfg ClaudeConfig
	log *logging.Logger
}

// NewClaudeInvoker creates an invoker for the Claude Code CLI.
func NewClaudeInvoker(cfg ClaudeConfig, log *logging.Logger) *ClaudeInvoker {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	return &ClaudeInvoker{cfg: cfg, log: log.Sub("backend.claude")}
}

// Name returns the backend name.
func (c *ClaudeInvoker) Name() string { return "claude" }

// Available reports whether the CLI binary can be found on PATH.
func (c *ClaudeInvoker) Available() bool {
	_, err := exec.LookPath(c.cfg.Command)
	return err == nil
}

// Invoke starts one turn. The prompt is piped via stdin; output is parsed
// line by line from the CLI's stream-json format.
func (c *ClaudeInvoker) Invoke(ctx context.Context, req Request) (<-chan Event, error) {
	cctx, cancel := context.WithCancel(ctx)

	args := buildClaudeArgs(req, c.cfg.Model)
	cmd := exec.CommandContext(cctx, c.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrUnavailable, err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: starting %s: %v", ErrUnavailable, c.cfg.Command, err)
	}

	c.log.Debug().
		Strs("args", args).
		Bool("resuming", req.SessionHandle != "").
		Msg("invoking assistant")

	raw := make(chan Event, 64)
	go func() {
		defer close(raw)
		defer cancel()

		terminal := c.scanStream(stdout, raw)

		err := cmd.Wait()
		if terminal {
			return
		}

		// Stream ended without a result line.
		if cerr := ctx.Err(); cerr != nil {
			raw <- Event{Type: EventError, Err: cerr}
			return
		}
		msg := strings.TrimSpace(stderr.String())
		exit := 0
		if err != nil {
			if msg == "" {
				msg = err.Error()
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				exit = exitErr.ExitCode()
			}
		}
		if msg == "" {
			msg = "stream ended without result"
		}
		c.log.Error().Str("stderr", msg).Int("exit", exit).Msg("assistant process failed")
		raw <- Event{Type: EventError, Err: &BackendError{Message: msg, ExitCode: exit}}
	}()

	// The quiescence guard kills the subprocess when the stream stalls.
	return Quiesce(raw, c.cfg.QuiescenceTimeout, cancel), nil
}

// scanStream parses stream-json lines into events. Returns true once a
// terminal (done/error) event was emitted.
func (c *ClaudeInvoker) scanStream(r io.Reader, out chan<- Event) bool {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	terminal := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		events, err := parseClaudeStreamLine(line)
		if err != nil {
			c.log.Debug().Err(err).Str("line", string(line)).Msg("skipping unparseable line")
			continue
		}
		for _, ev := range events {
			out <- ev
			if ev.Type == EventDone || ev.Type == EventError {
				terminal = true
			}
		}
		if terminal {
			break
		}
	}
	return terminal
}

func buildClaudeArgs(req Request, model string) []string {
	// Non-interactive mode with tool gating delegated to --allowedTools;
	// the permission prompt cannot be answered on a piped stdin.
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}

	if model != "" {
		args = append(args, "--model", model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if req.SessionHandle != "" {
		args = append(args, "--resume", req.SessionHandle)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}

	// Always passed: an empty value disables tool execution entirely.
	args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))

	return args
}

// claudeStreamLine is one line of `claude -p --output-format stream-json`.
type claudeStreamLine struct {
	Type string `json:"type"`

	// type="assistant"
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
			Name string `json:"name,omitempty"`
		} `json:"content,omitempty"`
	} `json:"message,omitempty"`

	// type="result"
	Result     string  `json:"result,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	DurationMs int     `json:"duration_ms,omitempty"`
	CostUSD    float64 `json:"total_cost_usd,omitempty"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		CacheRead    int `json:"cache_read_input_tokens"`
		CacheWrite   int `json:"cache_creation_input_tokens"`
	} `json:"usage,omitempty"`
}

// parseClaudeStreamLine maps one JSON line to zero or more events.
func parseClaudeStreamLine(line []byte) ([]Event, error) {
	var msg claudeStreamLine
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}

	switch msg.Type {
	case "system":
		// Init metadata, not user-visible.
		return nil, nil

	case "assistant":
		if msg.Message == nil {
			return nil, nil
		}
		var events []Event
		for _, block := range msg.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					events = append(events, Event{Type: EventFragment, Text: block.Text})
				}
			case "tool_use":
				events = append(events, Event{Type: EventToolUse, Text: block.Name})
			}
		}
		return events, nil

	case "result":
		if msg.IsError {
			return []Event{{
				Type: EventError,
				Err:  &BackendError{Message: msg.Result},
			}}, nil
		}
		res := &Result{
			Handle:     msg.SessionID,
			Success:    true,
			DurationMs: msg.DurationMs,
			CostUSD:    msg.CostUSD,
		}
		if msg.Usage != nil {
			res.Usage = Usage{
				InputTokens:  msg.Usage.InputTokens,
				OutputTokens: msg.Usage.OutputTokens,
				CacheRead:    msg.Usage.CacheRead,
				CacheWrite:   msg.Usage.CacheWrite,
			}
		}
		return []Event{{Type: EventDone, Result: res}}, nil

	default:
		return nil, nil
	}
}
