// Package config builds the server's effective configuration from an
// env-var base layer plus an optional JSON overlay file, applied on top.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/streamcast/streamcast/internal/env"
)

// Config holds every knob the server needs at startup: bind/TLS, session
// capacity and timeout limits, the ASR backend, translator provider
// credentials, and the trace store DSN.
type Config struct {
	Port        string `json:"port"`
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`

	MaxSpeakers        int           `json:"max_speakers"`
	MaxListeners       int           `json:"max_listeners"`
	MaxConnectionTime  time.Duration `json:"-"`
	MaxConnSeconds     int           `json:"max_connection_seconds"`
	HeartbeatInterval  time.Duration `json:"-"`
	HeartbeatSeconds   int           `json:"heartbeat_seconds"`
	TimeoutSweepPeriod time.Duration `json:"-"`

	ASRBackendURL string `json:"asr_backend_url"`
	ASRPoolSize   int    `json:"asr_pool_size"`

	TranslationRetries int           `json:"translation_retries"`
	TranslationDelay   time.Duration `json:"-"`
	TranslationDelayMs int           `json:"translation_delay_ms"`

	OpenAIAPIKey     string `json:"-"`
	OpenAIBaseURL    string `json:"openai_base_url"`
	OpenAIModel      string `json:"openai_model"`
	AnthropicAPIKey  string `json:"-"`
	AnthropicModel   string `json:"anthropic_model"`
	GeminiAPIKey     string `json:"-"`
	GeminiModel      string `json:"gemini_model"`
	OllamaURL        string `json:"ollama_url"`
	OllamaModel      string `json:"ollama_model"`
	OllamaPoolSize   int    `json:"ollama_pool_size"`
	AgentBaseURL     string `json:"agent_base_url"`
	AgentAPIKey      string `json:"-"`
	AgentModel       string `json:"agent_model"`
	AgentProviderTag string `json:"agent_provider_tag"`

	PostgresURL string `json:"-"`
}

// Default returns the baseline configuration before any env or JSON
// overlay is applied.
func Default() Config {
	return Config{
		Port:               "16391",
		MaxSpeakers:        50,
		MaxListeners:       200,
		MaxConnSeconds:     72000,
		HeartbeatSeconds:   15,
		ASRPoolSize:        16,
		TranslationRetries: 3,
		TranslationDelayMs: 500,
		OpenAIModel:        "gpt-4.1-nano",
		AnthropicModel:     "claude-sonnet-4-5",
		GeminiModel:        "gemini-2.0-flash",
		OllamaURL:          "http://localhost:11434",
		OllamaModel:        "llama3.2:3b",
		OllamaPoolSize:     16,
		AgentProviderTag:   "agent",
	}
}

// Load builds the effective config: env vars first, then an optional JSON
// overlay file (STREAMCAST_CONFIG, default streamcast.json) applied on
// top. A missing overlay file falls back to the env-derived values
// rather than failing startup.
func Load() Config {
	cfg := Default()

	cfg.Port = env.Str("STREAMCAST_PORT", cfg.Port)
	cfg.TLSCertFile = env.Str("STREAMCAST_TLS_CERT", cfg.TLSCertFile)
	cfg.TLSKeyFile = env.Str("STREAMCAST_TLS_KEY", cfg.TLSKeyFile)

	cfg.MaxSpeakers = env.Int("MAX_SPEAKERS", cfg.MaxSpeakers)
	cfg.MaxListeners = env.Int("MAX_LISTENERS", cfg.MaxListeners)
	cfg.MaxConnSeconds = env.Int("MAX_CONNECTION_SECONDS", cfg.MaxConnSeconds)
	cfg.HeartbeatSeconds = env.Int("HEARTBEAT_SECONDS", cfg.HeartbeatSeconds)

	cfg.ASRBackendURL = env.Str("ASR_BACKEND_URL", cfg.ASRBackendURL)
	cfg.ASRPoolSize = env.Int("ASR_POOL_SIZE", cfg.ASRPoolSize)

	cfg.TranslationRetries = env.Int("TRANSLATION_RETRIES", cfg.TranslationRetries)
	cfg.TranslationDelayMs = env.Int("TRANSLATION_DELAY_MS", cfg.TranslationDelayMs)

	cfg.OpenAIAPIKey = env.Str("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = env.Str("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = env.Str("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.AnthropicAPIKey = env.Str("ANTHROPIC_API_KEY", "")
	cfg.AnthropicModel = env.Str("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.GeminiAPIKey = env.Str("GEMINI_API_KEY", "")
	cfg.GeminiModel = env.Str("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OllamaURL = env.Str("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaModel = env.Str("OLLAMA_MODEL", cfg.OllamaModel)
	cfg.OllamaPoolSize = env.Int("OLLAMA_POOL_SIZE", cfg.OllamaPoolSize)
	cfg.AgentBaseURL = env.Str("AGENT_BASE_URL", "")
	cfg.AgentAPIKey = env.Str("AGENT_API_KEY", "")
	cfg.AgentModel = env.Str("AGENT_MODEL", cfg.AgentModel)
	cfg.AgentProviderTag = env.Str("AGENT_PROVIDER_TAG", cfg.AgentProviderTag)

	cfg.PostgresURL = env.Str("POSTGRES_URL", "")

	overlayPath := env.Str("STREAMCAST_CONFIG", "streamcast.json")
	applyJSONOverlay(&cfg, overlayPath)

	cfg.MaxConnectionTime = time.Duration(cfg.MaxConnSeconds) * time.Second
	cfg.HeartbeatInterval = time.Duration(cfg.HeartbeatSeconds) * time.Second
	cfg.TranslationDelay = time.Duration(cfg.TranslationDelayMs) * time.Millisecond
	cfg.TimeoutSweepPeriod = 5 * time.Second

	return cfg
}

// applyJSONOverlay reads path, if present, and unmarshals it on top of
// cfg. A missing file is not an error (matches loadTuning); a malformed
// file is logged and ignored, leaving the env-derived values in place.
func applyJSONOverlay(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no config overlay file, using env defaults", "path", path)
		return
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		slog.Warn("bad config overlay file, ignoring", "path", path, "error", err)
		return
	}
	slog.Info("applied config overlay", "path", path)
}
