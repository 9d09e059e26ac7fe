// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for murmur.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/murmur/internal/mcp"
)

// LogLevel controls log verbosity for the murmur server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the matching [slog.Level]. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8000"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultHumanIdentity   = "User"
	DefaultAgentIdentity   = "Dictate"
	DefaultLLMModel        = "gpt-4o-mini"
	DefaultMaxToolRounds   = 10
)

// DefaultSystemPrompt instructs the agent to drive a browser through its
// tools and report back briefly.
const DefaultSystemPrompt = `You are a web-browsing assistant controlled by voice dictation.
Use the available browser tools to carry out the user's request step by step.
Prefer navigating and reading pages over guessing. When the task is done,
answer in one or two short sentences describing what you did or found.
If a request is unclear, ask a brief clarifying question instead of acting.`

// Config is the root configuration structure for murmur.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Agent      AgentConfig      `yaml:"agent"`
	MCP        MCPConfig        `yaml:"mcp"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown of HTTP connections and
	// in-flight agent replies.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists host patterns accepted in the Origin header of
	// websocket upgrades. Empty accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the provider implementation for each capability.
// Each entry names a factory registered in the [Registry].
type ProvidersConfig struct {
	LLM         ProviderEntry   `yaml:"llm"`
	LLMFallback []ProviderEntry `yaml:"llm_fallback"`
	STT         ProviderEntry   `yaml:"stt"`
	STTFallback []ProviderEntry `yaml:"stt_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "base").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// AgentConfig configures the reasoning agent and the sender labels of the
// dictation channel.
type AgentConfig struct {
	// HumanIdentity is the sender label whose utterances trigger an agent turn.
	HumanIdentity string `yaml:"human_identity"`

	// AgentIdentity is the sender label of agent replies.
	AgentIdentity string `yaml:"agent_identity"`

	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is passed to the model. Nil means 0.
	Temperature *float64 `yaml:"temperature"`

	// MaxToolRounds caps model round-trips that request tools in one turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// Stream requests streamed completions from the model.
	Stream bool `yaml:"stream"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http"
	// (e.g., "http://localhost:8931/mcp"). Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// ToServerConfig converts the YAML entry to the host's registration form.
func (c MCPServerConfig) ToServerConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:      c.Name,
		Transport: c.Transport,
		Command:   c.Command,
		URL:       c.URL,
		Env:       c.Env,
	}
}

// TranscriptConfig tunes correction of speech-to-text output.
type TranscriptConfig struct {
	// Vocabulary lists domain terms that speech recognition tends to
	// misspell (product names, site names). Audio transcripts are corrected
	// towards them. It can be changed without a restart.
	Vocabulary []string `yaml:"vocabulary"`
}
