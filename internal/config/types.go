package config

// Config is the root configuration for squire, loaded from
// ~/.squire/config.yaml.
type Config struct {
	Bot      BotConfig      `yaml:"bot,omitempty"`
	Backend  BackendConfig  `yaml:"backend,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Messages MessagesConfig `yaml:"messages,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
}

// BotConfig defines the bot's persona and tool permissions.
type BotConfig struct {
	SystemPrompt string   `yaml:"systemPrompt,omitempty"`
	AllowedTools []string `yaml:"allowedTools,omitempty"` // exact tool names; empty disables tool use
}

// BackendConfig configures the assistant CLI backend.
type BackendConfig struct {
	Command           string `yaml:"command,omitempty"` // executable name or path, default "claude"
	Model             string `yaml:"model,omitempty"`
	QuiescenceSeconds int    `yaml:"quiescenceSeconds,omitempty"` // max silence between stream events; 0 disables
	MaxTurns          int    `yaml:"maxTurns,omitempty"`          // agentic rounds per invocation; 0 = backend default
}

// SessionConfig defines session scoping and lifetime.
type SessionConfig struct {
	Scope       string `yaml:"scope,omitempty"` // "thread" | "sender"
	IdleMinutes int    `yaml:"idleMinutes,omitempty"`
	Store       string `yaml:"store,omitempty"` // "memory" | "sqlite"
}

// MessagesConfig overrides the user-facing notice strings.
type MessagesConfig struct {
	Busy     string `yaml:"busy,omitempty"`
	Empty    string `yaml:"empty,omitempty"`
	Error    string `yaml:"error,omitempty"`
	NoOutput string `yaml:"noOutput,omitempty"` // sent when a successful turn produced no reply text
}

// ChannelsConfig defines chat channel configurations.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// GatewayConfig controls the local HTTP/WebSocket control server.
type GatewayConfig struct {
	Enabled bool        `yaml:"enabled,omitempty"`
	Port    int         `yaml:"port,omitempty"`
	Bind    string      `yaml:"bind,omitempty"` // "loopback" | "lan"
	Auth    GatewayAuth `yaml:"auth,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "compact" | "json"
	File  string `yaml:"file,omitempty"`
}

// HooksConfig defines shell hooks run on lifecycle events.
type HooksConfig struct {
	TurnStarted    []HookEntry `yaml:"turnStarted,omitempty"`
	TurnCompleted  []HookEntry `yaml:"turnCompleted,omitempty"`
	TurnFailed     []HookEntry `yaml:"turnFailed,omitempty"`
	TurnRejected   []HookEntry `yaml:"turnRejected,omitempty"`
	ToolDenied     []HookEntry `yaml:"toolDenied,omitempty"`
	SessionEvicted []HookEntry `yaml:"sessionEvicted,omitempty"`
	ServeStart     []HookEntry `yaml:"serveStart,omitempty"`
	ServeStop      []HookEntry `yaml:"serveStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
