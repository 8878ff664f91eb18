package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			Command:           "claude",
			QuiescenceSeconds: 300,
		},
		Session: SessionConfig{
			Scope:       "thread",
			IdleMinutes: 60,
			Store:       "memory",
		},
		Gateway: GatewayConfig{
			Port: 18990,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}
