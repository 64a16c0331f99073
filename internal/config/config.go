// Package config decodes the host's process-level configuration from the
// environment (spec's ambient configuration stack) and loads the backend
// configuration file it points at.
package config

import (
	"github.com/joeshaw/envdecode"
)

// HostConfig is the host's environment-driven configuration. Every field is
// decoded with envdecode, matching the teacher corpus's convention of a
// single flat struct with `env` tags rather than a flag package or a config
// framework.
type HostConfig struct {
	// ListenAddr is the address the HTTP server binds, e.g. ":8080".
	ListenAddr string `env:"MCPHOST_LISTEN_ADDR,default=:8080"`

	// BackendConfigPath points at the JSON file describing backend
	// processes to spawn (spec §3, §6).
	BackendConfigPath string `env:"MCPHOST_BACKENDS_PATH,default=./mcp-backends.json"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"MCPHOST_LOG_LEVEL,default=info"`
	// LogFormat is either json (the default, for production) or text (for
	// local development readability).
	LogFormat string `env:"MCPHOST_LOG_FORMAT,default=json"`

	// KeepAliveSeconds is decoded but not applied: SSE connections always
	// use sse.KeepAliveInterval for their ping period.
	KeepAliveSeconds int `env:"MCPHOST_SSE_KEEPALIVE_SECONDS,default=30"`

	// BusRedisAddr, when set, switches the notification bus from its
	// in-memory default to a Redis-backed broker (spec §4.5).
	BusRedisAddr string `env:"MCPHOST_BUS_REDIS_ADDR"`

	// WatchBackendConfig enables an fsnotify watch on BackendConfigPath that
	// logs a restart-to-apply notice on change, rather than hot-reloading.
	WatchBackendConfig bool `env:"MCPHOST_WATCH_BACKEND_CONFIG,default=true"`
}

// Load decodes HostConfig from the process environment.
func Load() (HostConfig, error) {
	var cfg HostConfig
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}
