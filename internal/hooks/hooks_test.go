package hooks

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlock/squire/internal/logging"
)

func TestEmitInRegistrationOrder(t *testing.T) {
	m := NewManager(logging.Discard())

	var order []string
	m.On(EventTurnStarted, "first", func(context.Context, Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventTurnStarted, "second", func(context.Context, Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventTurnStarted, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEmitPassesPayload(t *testing.T) {
	m := NewManager(logging.Discard())

	var got Payload
	m.On(EventTurnCompleted, "capture", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventTurnCompleted, map[string]any{"conversation": "irc/#dev"})
	assert.Equal(t, EventTurnCompleted, got.Event)
	assert.Equal(t, "irc/#dev", got.Data["conversation"])
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	m := NewManager(logging.Discard())

	ran := false
	m.On(EventTurnFailed, "bad", func(context.Context, Payload) error {
		return errors.New("boom")
	})
	m.On(EventTurnFailed, "good", func(context.Context, Payload) error {
		ran = true
		return nil
	})

	m.Emit(context.Background(), EventTurnFailed, nil)
	assert.True(t, ran)
}

func TestOff(t *testing.T) {
	m := NewManager(logging.Discard())

	m.On(EventServeStart, "a", func(context.Context, Payload) error { return nil })
	m.On(EventServeStart, "b", func(context.Context, Payload) error { return nil })
	require.Equal(t, 2, m.Count(EventServeStart))

	m.Off(EventServeStart, "a")
	assert.Equal(t, 1, m.Count(EventServeStart))
}

func TestNilManagerEmit(t *testing.T) {
	var m *Manager
	// Must not panic.
	m.Emit(context.Background(), EventTurnStarted, nil)
}

func TestShellHookRuns(t *testing.T) {
	m := NewManager(logging.Discard())

	dir := t.TempDir()
	RegisterShellHooks(m, EventTurnCompleted, []ShellHook{
		{Command: "cat > " + dir + "/payload.json"},
	})
	require.Equal(t, 1, m.Count(EventTurnCompleted))

	// Emit is synchronous, so the file exists once it returns.
	m.Emit(context.Background(), EventTurnCompleted, map[string]any{"turn": 1})

	data, err := os.ReadFile(dir + "/payload.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"turn_completed"`)
}

func TestShellHookTimeout(t *testing.T) {
	entry := ShellHook{Command: "sleep 5", Timeout: 50 * time.Millisecond}
	err := runShellHook(context.Background(), entry, Payload{Event: EventTurnStarted})
	require.Error(t, err)
}

func TestFirstWord(t *testing.T) {
	assert.Equal(t, "notify-send", firstWord("notify-send 'squire done'"))
	assert.Equal(t, "", firstWord(""))
}
