package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellHook runs a configured command when its event fires. The payload is
// piped to stdin as JSON and the event name is exposed as $SQUIRE_EVENT.
type ShellHook struct {
	Command string
	Timeout time.Duration
}

// RegisterShellHooks wires configured shell commands into the manager.
// Each entry is registered under a name derived from its command so it can
// be removed later.
func RegisterShellHooks(m *Manager, event string, entries []ShellHook) {
	for i, entry := range entries {
		entry := entry
		name := fmt.Sprintf("shell:%d:%s", i, firstWord(entry.Command))
		m.On(event, name, func(ctx context.Context, p Payload) error {
			return runShellHook(ctx, entry, p)
		})
	}
}

func runShellHook(ctx context.Context, h ShellHook, p Payload) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(cctx, "sh", "-c", h.Command)
	cmd.Stdin = strings.NewReader(string(data))
	cmd.Env = append(cmd.Environ(), "SQUIRE_EVENT="+p.Event)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hook %q: %w (output: %s)", firstWord(h.Command), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}
