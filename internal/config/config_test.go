package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "claude", cfg.Backend.Command)
	assert.Equal(t, 300, cfg.Backend.QuiescenceSeconds)
	assert.Equal(t, "thread", cfg.Session.Scope)
	assert.Equal(t, 60, cfg.Session.IdleMinutes)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 18990, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Style)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, "claude", cfg.Backend.Command)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadHookEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
hooks:
  turnCompleted:
    - command: "notify-send done"
  turnRejected:
    - command: "logger rejected"
      timeout: 500
  toolDenied:
    - command: "logger denied"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Hooks.TurnCompleted, 1)
	require.Len(t, cfg.Hooks.TurnRejected, 1)
	assert.Equal(t, "logger rejected", cfg.Hooks.TurnRejected[0].Command)
	assert.Equal(t, 500, cfg.Hooks.TurnRejected[0].Timeout)
	require.Len(t, cfg.Hooks.ToolDenied, 1)
	assert.Equal(t, "logger denied", cfg.Hooks.ToolDenied[0].Command)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
bot:
  systemPrompt: "Answer tersely."
  allowedTools:
    - Read
    - Grep
backend:
  command: claude-dev
  model: opus
  quiescenceSeconds: 120
  maxTurns: 8
session:
  scope: sender
  idleMinutes: 15
  store: sqlite
messages:
  busy: "hold on"
  noOutput: "nothing came back"
channels:
  irc:
    server: irc.libera.chat
    port: 6697
    nick: squirebot
    channels:
      - "#general"
      - "#dev"
    useTLS: true
logging:
  level: debug
  style: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Answer tersely.", cfg.Bot.SystemPrompt)
	assert.Equal(t, []string{"Read", "Grep"}, cfg.Bot.AllowedTools)
	assert.Equal(t, "claude-dev", cfg.Backend.Command)
	assert.Equal(t, "opus", cfg.Backend.Model)
	assert.Equal(t, 120, cfg.Backend.QuiescenceSeconds)
	assert.Equal(t, 8, cfg.Backend.MaxTurns)
	assert.Equal(t, "sender", cfg.Session.Scope)
	assert.Equal(t, 15, cfg.Session.IdleMinutes)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, "hold on", cfg.Messages.Busy)
	assert.Equal(t, "nothing came back", cfg.Messages.NoOutput)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Style)

	require.NotNil(t, cfg.Channels.IRC)
	assert.Equal(t, "irc.libera.chat", cfg.Channels.IRC.Server)
	assert.Equal(t, 6697, cfg.Channels.IRC.Port)
	assert.Equal(t, "squirebot", cfg.Channels.IRC.Nick)
	assert.Equal(t, []string{"#general", "#dev"}, cfg.Channels.IRC.Channels)
	assert.True(t, cfg.Channels.IRC.UseTLS)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [not a map"), 0o600))

	_, err := Load(path)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadFillsPartialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  model: sonnet\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sonnet", cfg.Backend.Model)
	assert.Equal(t, "claude", cfg.Backend.Command, "unset fields fall back to defaults")
	assert.Equal(t, "thread", cfg.Session.Scope)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SQUIRE_BACKEND_COMMAND", "/opt/bin/claude")
	t.Setenv("SQUIRE_MODEL", "haiku")
	t.Setenv("SQUIRE_GATEWAY_PORT", "4242")
	t.Setenv("SQUIRE_LOG_LEVEL", "DEBUG")

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/claude", cfg.Backend.Command)
	assert.Equal(t, "haiku", cfg.Backend.Model)
	assert.Equal(t, 4242, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestExpandSensitiveFields(t *testing.T) {
	t.Setenv("IRC_PASS", "hunter2")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
gateway:
  auth:
    token: ${MISSING_TOKEN}
channels:
  irc:
    server: irc.libera.chat
    nick: squirebot
    password: ${IRC_PASS}
    channels: ["#dev"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Channels.IRC.Password)
	// Unset variables stay as written.
	assert.Equal(t, "${MISSING_TOKEN}", cfg.Gateway.Auth.Token)
}

func TestSaveRawRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"backend": map[string]any{"model": "opus"},
	}
	require.NoError(t, SaveRaw(path, raw))

	got, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(got, []string{"backend", "model"})
	require.True(t, ok)
	assert.Equal(t, "opus", val)
}
