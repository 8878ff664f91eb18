// Package backend wraps the external AI coding-assistant process.
//
// Rather than speaking an HTTP API, squire shells out to an assistant CLI
// (Claude Code's `claude` by default) in streaming JSON mode. The CLI owns
// auth, rate limits, and tool execution; squire owns which tools are
// permitted and where the output goes.
package backend

import "context"

// Event types produced during an invocation.
const (
	// EventFragment carries one incremental piece of assistant text.
	EventFragment = "fragment"

	// EventToolUse reports that the assistant invoked a tool. Text holds a
	// short human-readable notice for the chat stream.
	EventToolUse = "tool_use"

	// EventDone terminates the sequence; Result is populated.
	EventDone = "done"

	// EventError terminates the sequence; Err is populated. Fragments
	// already delivered stay delivered.
	EventError = "error"
)

// Event is one element of the lazy sequence an invocation produces. The
// sequence is ordered and finite: zero or more fragment/tool_use events
// followed by exactly one done or error event.
type Event struct {
	Type   string
	Text   string
	Err    error
	Result *Result
}

// Result is the terminal metadata of a completed turn.
type Result struct {
	// Handle is the backend session id to resume from on the next turn.
	Handle string

	Success    bool
	DurationMs int
	CostUSD    float64
	Usage      Usage
}

// Usage tracks token consumption reported by the backend.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	CacheRead    int `json:"cacheReadInputTokens,omitempty"`
	CacheWrite   int `json:"cacheCreationInputTokens,omitempty"`
}

// Request is one turn's input to the assistant.
type Request struct {
	// Prompt is the user's message text.
	Prompt string

	// SessionHandle resumes a prior backend session. Empty starts fresh;
	// the new handle comes back in Result.Handle.
	SessionHandle string

	// SystemPrompt is prepended context/personality for the assistant.
	SystemPrompt string

	// AllowedTools is the already-gated set of tool names the backend may
	// execute. Empty means no tools.
	AllowedTools []string

	// MaxTurns bounds agentic tool-use rounds inside the backend.
	// Zero means the backend's default.
	MaxTurns int
}

// Invoker performs a single streamed call against the assistant backend.
type Invoker interface {
	// Invoke starts a turn and returns the event sequence. A non-nil
	// error means the backend could not be reached and no events were
	// produced. Cancelling ctx stops fragment production promptly; the
	// sequence then terminates with an error event.
	Invoke(ctx context.Context, req Request) (<-chan Event, error)

	// Name identifies the backend (e.g. "claude").
	Name() string
}
