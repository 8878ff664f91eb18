package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildClaudeArgs(t *testing.T) {
	args := buildClaudeArgs(Request{
		Prompt:        "hello",
		SystemPrompt:  "You are a helpful bot.",
		SessionHandle: "sess-123",
		AllowedTools:  []string{"Read", "Grep"},
		MaxTurns:      4,
	}, "sonnet")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-p")
	assert.Contains(t, joined, "--output-format stream-json")
	assert.Contains(t, joined, "--model sonnet")
	assert.Contains(t, joined, "--system-prompt You are a helpful bot.")
	assert.Contains(t, joined, "--resume sess-123")
	assert.Contains(t, joined, "--max-turns 4")
	assert.Contains(t, joined, "--allowedTools Read,Grep")
	// The prompt goes via stdin, never argv.
	assert.NotContains(t, joined, "hello")
}

func TestBuildClaudeArgsFreshSessionNoTools(t *testing.T) {
	args := buildClaudeArgs(Request{Prompt: "hi"}, "")

	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "--resume")
	assert.NotContains(t, joined, "--model")
	assert.NotContains(t, joined, "--max-turns")

	// Empty allow-list still pins --allowedTools so the CLI runs with
	// tools disabled rather than its defaults.
	idx := -1
	for i, a := range args {
		if a == "--allowedTools" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	require.Less(t, idx+1, len(args))
	assert.Equal(t, "", args[idx+1])
}

func TestParseStreamLineAssistantText(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"Hi"},{"type":"text","text":" there!"}]}}`)

	events, err := parseClaudeStreamLine(line)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventFragment, events[0].Type)
	assert.Equal(t, "Hi", events[0].Text)
	assert.Equal(t, " there!", events[1].Text)
}

func TestParseStreamLineToolUse(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash"}]}}`)

	events, err := parseClaudeStreamLine(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventToolUse, events[0].Type)
	assert.Equal(t, "Bash", events[0].Text)
}

func TestParseStreamLineResult(t *testing.T) {
	line := []byte(`{"type":"result","result":"done","session_id":"abc-1","duration_ms":420,"total_cost_usd":0.01,"usage":{"input_tokens":12,"output_tokens":34}}`)

	events, err := parseClaudeStreamLine(line)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, EventDone, ev.Type)
	require.NotNil(t, ev.Result)
	assert.True(t, ev.Result.Success)
	assert.Equal(t, "abc-1", ev.Result.Handle)
	assert.Equal(t, 420, ev.Result.DurationMs)
	assert.Equal(t, 12, ev.Result.Usage.InputTokens)
	assert.Equal(t, 34, ev.Result.Usage.OutputTokens)
}

func TestParseStreamLineErrorResult(t *testing.T) {
	line := []byte(`{"type":"result","result":"credit exhausted","is_error":true}`)

	events, err := parseClaudeStreamLine(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)

	var berr *BackendError
	require.ErrorAs(t, events[0].Err, &berr)
	assert.Equal(t, "credit exhausted", berr.Message)
}

func TestParseStreamLineSkipsSystemAndUnknown(t *testing.T) {
	for _, raw := range []string{
		`{"type":"system","session_id":"abc"}`,
		`{"type":"user"}`,
	} {
		events, err := parseClaudeStreamLine([]byte(raw))
		require.NoError(t, err)
		assert.Empty(t, events, raw)
	}
}

func TestParseStreamLineRejectsGarbage(t *testing.T) {
	_, err := parseClaudeStreamLine([]byte(`{not json`))
	assert.Error(t, err)
}

func TestScanStreamStopsAtTerminal(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}`,
		`{"type":"result","result":"ok","session_id":"s1"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"never seen"}]}}`,
	}, "\n")

	inv := NewClaudeInvoker(ClaudeConfig{}, testLog())
	out := make(chan Event, 16)
	terminal := inv.scanStream(strings.NewReader(input), out)
	close(out)

	assert.True(t, terminal)

	var types []string
	for ev := range out {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventFragment, EventDone}, types)
}
