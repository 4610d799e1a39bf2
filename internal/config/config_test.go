package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"STREAMCAST_PORT", "STREAMCAST_TLS_CERT", "STREAMCAST_TLS_KEY",
		"MAX_SPEAKERS", "MAX_LISTENERS", "MAX_CONNECTION_SECONDS", "HEARTBEAT_SECONDS",
		"ASR_BACKEND_URL", "ASR_POOL_SIZE", "TRANSLATION_RETRIES", "TRANSLATION_DELAY_MS",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"GEMINI_API_KEY", "GEMINI_MODEL",
		"OLLAMA_URL", "OLLAMA_MODEL", "OLLAMA_POOL_SIZE",
		"AGENT_BASE_URL", "AGENT_API_KEY", "AGENT_MODEL", "AGENT_PROVIDER_TAG",
		"POSTGRES_URL", "STREAMCAST_CONFIG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_DefaultsWithNoEnvOrOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMCAST_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	cfg := Load()

	if cfg.Port != "16391" {
		t.Errorf("Port = %q, want default 16391", cfg.Port)
	}
	if cfg.MaxSpeakers != 50 {
		t.Errorf("MaxSpeakers = %d, want default 50", cfg.MaxSpeakers)
	}
	if cfg.HeartbeatInterval.Seconds() != 15 {
		t.Errorf("HeartbeatInterval = %v, want 15s", cfg.HeartbeatInterval)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMCAST_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("STREAMCAST_PORT", "9999")
	t.Setenv("MAX_SPEAKERS", "7")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.MaxSpeakers != 7 {
		t.Errorf("MaxSpeakers = %d, want 7", cfg.MaxSpeakers)
	}
}

func TestLoad_JSONOverlayOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMCAST_PORT", "9999")

	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.json")
	if err := os.WriteFile(path, []byte(`{"port":"7000","max_speakers":3}`), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("STREAMCAST_CONFIG", path)

	cfg := Load()

	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want overlay value 7000", cfg.Port)
	}
	if cfg.MaxSpeakers != 3 {
		t.Errorf("MaxSpeakers = %d, want overlay value 3", cfg.MaxSpeakers)
	}
}

func TestLoad_MalformedOverlayFallsBackToEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMCAST_PORT", "9999")

	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("STREAMCAST_CONFIG", path)

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want env value 9999 preserved on malformed overlay", cfg.Port)
	}
}
