package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// clearEnv はホスト環境の変数をテストから除外
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "LLM_ENABLED", "OPENAI_API_KEY",
		"ANTHROPIC_API_KEY", "DEEPSEEK_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT",
		"OPENWEATHERMAP_API_KEY", "ALPHAVANTAGE_API_KEY", "TOOLROUTER_PORT", "TOOLROUTER_HOST",
		"HEALTH_SCHEDULE", "LOG_LEVEL", "LOG_FORMAT", "DISPATCH_NARRATE", "TOOLROUTER_SESSION_DIR",
		"TOOLROUTER_MAX_SESSIONS", EnvConfigPath,
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Success(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 8080
  host: "0.0.0.0"

llm:
  provider: anthropic
  timeout: 10s

tools:
  timeout: 5s
  extra:
    - name: CalendarTool
      description: Look up calendar events
      version: "0.1.0"

dispatch:
  concurrency: 2
  narrate: false

health:
  schedule: "*/5 * * * *"

log:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected addr 0.0.0.0:8080, got %s", cfg.Server.Addr())
	}
	if cfg.LLM.Provider != ProviderAnthropic {
		t.Errorf("Expected provider anthropic, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected default anthropic model, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 10*time.Second {
		t.Errorf("Expected llm timeout 10s, got %v", cfg.LLM.Timeout)
	}
	if cfg.Tools.Timeout != 5*time.Second {
		t.Errorf("Expected tool timeout 5s, got %v", cfg.Tools.Timeout)
	}
	if len(cfg.Tools.Extra) != 1 || cfg.Tools.Extra[0].Name != "CalendarTool" {
		t.Errorf("Expected one extra tool, got %+v", cfg.Tools.Extra)
	}
	if cfg.Dispatch.NarrationEnabled() {
		t.Error("Expected narration disabled")
	}
	if cfg.Dispatch.Concurrency != 2 {
		t.Errorf("Expected concurrency 2, got %d", cfg.Dispatch.Concurrency)
	}
	if cfg.Health.Schedule != "*/5 * * * *" {
		t.Errorf("Unexpected schedule %q", cfg.Health.Schedule)
	}
}

func TestLoadConfig_WithEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "deepseek")
	t.Setenv("DEEPSEEK_API_KEY", "ds-key")
	t.Setenv("OPENWEATHERMAP_API_KEY", "owm-key")
	t.Setenv("ALPHAVANTAGE_API_KEY", "av-key")
	t.Setenv("LLM_ENABLED", "false")
	t.Setenv("TOOLROUTER_PORT", "9090")
	t.Setenv("TOOLROUTER_SESSION_DIR", "/var/lib/toolrouter/sessions")

	path := writeConfig(t, "llm:\n  provider: openai\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LLM.Provider != ProviderDeepSeek {
		t.Errorf("Expected env to override provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Key() != "ds-key" {
		t.Errorf("Expected deepseek key, got %q", cfg.LLM.Key())
	}
	if cfg.LLM.IsEnabled() {
		t.Error("Expected LLM disabled by LLM_ENABLED=false")
	}
	if cfg.Tools.OpenWeatherMapAPIKey != "owm-key" || cfg.Tools.AlphaVantageAPIKey != "av-key" {
		t.Errorf("Tool keys not loaded: %+v", cfg.Tools)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Session.StorageDir != "/var/lib/toolrouter/sessions" {
		t.Errorf("Expected session dir from env, got %q", cfg.Session.StorageDir)
	}
}

func TestLLMConfig_GenericKeyWins(t *testing.T) {
	c := LLMConfig{Provider: ProviderOpenAI, APIKey: "generic", OpenAIAPIKey: "specific"}
	if c.Key() != "generic" {
		t.Errorf("Expected LLM_API_KEY to win, got %q", c.Key())
	}

	c.APIKey = ""
	if c.Key() != "specific" {
		t.Errorf("Expected provider key, got %q", c.Key())
	}

	c.Provider = ProviderOllama
	if c.Key() != "" {
		t.Errorf("Expected no key for ollama, got %q", c.Key())
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if !cfg.LLM.IsEnabled() || !cfg.Dispatch.NarrationEnabled() {
		t.Error("Expected LLM and narration enabled by default")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: [not a number\n")

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_DefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected default host, got %q", cfg.Server.Host)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("Expected default classifier timeout 30s, got %v", cfg.LLM.Timeout)
	}
	if cfg.Tools.Timeout != 20*time.Second {
		t.Errorf("Expected default tool timeout 20s, got %v", cfg.Tools.Timeout)
	}
	if cfg.Dispatch.HistoryWindow != 10 {
		t.Errorf("Expected history window 10, got %d", cfg.Dispatch.HistoryWindow)
	}
	if cfg.Session.StorageDir != "" || cfg.Session.MaxSessions != 256 {
		t.Errorf("Unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected log defaults: %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }},
		{"negative concurrency", func(c *Config) { c.Dispatch.Concurrency = -1 }},
		{"negative max sessions", func(c *Config) { c.Session.MaxSessions = -1 }},
		{"bad schedule", func(c *Config) { c.Health.Schedule = "every minute" }},
		{"nameless extra tool", func(c *Config) { c.Tools.Extra = append(c.Tools.Extra, toolDesc("")) }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("TOOLROUTER_DOTENV_CHECK", "")
	os.Unsetenv("TOOLROUTER_DOTENV_CHECK")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TOOLROUTER_DOTENV_CHECK=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("TOOLROUTER_DOTENV_CHECK"); got != "loaded" {
		t.Errorf("Expected loaded, got %q", got)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/toolrouter.yaml")

	if got := ResolvePath("flag.yaml"); got != "flag.yaml" {
		t.Errorf("Expected flag to win, got %q", got)
	}
	if got := ResolvePath(""); got != "/etc/toolrouter.yaml" {
		t.Errorf("Expected env path, got %q", got)
	}
}

func toolDesc(name string) tool.Descriptor {
	return tool.Descriptor{Name: name}
}
