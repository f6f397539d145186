package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

// ErrInvalid は検証エラー全般をラップする
var ErrInvalid = errors.New("invalid config")

// EnvConfigPath は設定ファイルパスを指定する環境変数名
const EnvConfigPath = "TOOLROUTER_CONFIG"

// 対応LLMプロバイダー
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Config はアプリケーション全体の設定
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Tools    ToolsConfig    `yaml:"tools"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Session  SessionConfig  `yaml:"session"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Host string `yaml:"host" env:"TOOLROUTER_HOST"`
	Port int    `yaml:"port" env:"TOOLROUTER_PORT"`
}

// Addr は host:port を返す
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig は分類器のプロバイダー設定
// APIキーは環境変数からのみ読み込む
type LLMConfig struct {
	Enabled         *bool         `yaml:"enabled" env:"LLM_ENABLED"`
	Provider        string        `yaml:"provider" env:"LLM_PROVIDER"`
	Model           string        `yaml:"model" env:"LLM_MODEL"`
	BaseURL         string        `yaml:"base_url" env:"LLM_BASE_URL"`
	Timeout         time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
	AzureEndpoint   string        `yaml:"azure_endpoint" env:"AZURE_OPENAI_ENDPOINT"`
	AzureAPIVersion string        `yaml:"azure_api_version" env:"AZURE_OPENAI_API_VERSION"`

	APIKey          string `yaml:"-" env:"LLM_API_KEY"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AzureAPIKey     string `yaml:"-" env:"AZURE_OPENAI_API_KEY"`
	DeepSeekAPIKey  string `yaml:"-" env:"DEEPSEEK_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
}

// IsEnabled は分類器を有効にするか判定
func (c LLMConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Key は選択プロバイダーのAPIキーを返す
// LLM_API_KEY がプロバイダー固有の変数より優先
func (c LLMConfig) Key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case ProviderAzure:
		return c.AzureAPIKey
	case ProviderDeepSeek:
		return c.DeepSeekAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

// ToolsConfig はツールの認証情報と追加カタログ
// RemoteURL は起動時にツールを取り込む別のtoolrouter
type ToolsConfig struct {
	Timeout              time.Duration     `yaml:"timeout" env:"TOOL_TIMEOUT"`
	RemoteURL            string            `yaml:"remote_url" env:"TOOLS_REMOTE_URL"`
	OpenWeatherMapAPIKey string            `yaml:"-" env:"OPENWEATHERMAP_API_KEY"`
	AlphaVantageAPIKey   string            `yaml:"-" env:"ALPHAVANTAGE_API_KEY"`
	Extra                []tool.Descriptor `yaml:"extra"`
}

// DispatchConfig は集約処理の設定
type DispatchConfig struct {
	Concurrency   int   `yaml:"concurrency" env:"DISPATCH_CONCURRENCY"`
	Narrate       *bool `yaml:"narrate" env:"DISPATCH_NARRATE"`
	HistoryWindow int   `yaml:"history_window"`
}

// NarrationEnabled は既定でナレーションするか判定
func (c DispatchConfig) NarrationEnabled() bool {
	return c.Narrate == nil || *c.Narrate
}

// SessionConfig は会話セッションの設定
// StorageDir が空ならトランスクリプトを記録しない
type SessionConfig struct {
	StorageDir  string `yaml:"storage_dir" env:"TOOLROUTER_SESSION_DIR"`
	MaxSessions int    `yaml:"max_sessions" env:"TOOLROUTER_MAX_SESSIONS"`
}

// HealthConfig はヘルスチェックのcronスケジュール（空ならスケジュールなし）
type HealthConfig struct {
	Schedule     string        `yaml:"schedule" env:"HEALTH_SCHEDULE"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default は設定ファイルがない場合の設定を返す
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadDotEnv は .env ファイルから環境変数を読み込む
// 存在しないファイルはスキップ、既存の環境変数が優先
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ResolvePath は設定ファイルパスを決定（フラグ → TOOLROUTER_CONFIG → config.yaml）
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return "config.yaml"
}

// LoadConfig は設定ファイルを読み込み、デフォルト値と環境変数を適用して検証
// ファイルがなければデフォルト値と環境変数のみ
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Provider)
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.Provider == ProviderAzure && c.LLM.AzureAPIVersion == "" {
		c.LLM.AzureAPIVersion = "2024-10-21"
	}

	if c.Tools.Timeout == 0 {
		c.Tools.Timeout = 20 * time.Second
	}

	if c.Dispatch.Concurrency == 0 {
		c.Dispatch.Concurrency = 4
	}
	if c.Dispatch.HistoryWindow == 0 {
		c.Dispatch.HistoryWindow = 10
	}
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 256
	}

	if c.Health.CheckTimeout == 0 {
		c.Health.CheckTimeout = 5 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderOllama:
		return "llama3.1"
	default:
		return "gpt-4o-mini"
	}
}

// Validate は設定値を検証
// 認証情報の欠落はエラーにせず、起動時に該当コンポーネントを無効化
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be 1-65535)", ErrInvalid, c.Server.Port)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAzure, ProviderDeepSeek, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalid, c.LLM.Provider)
	}
	if c.LLM.Timeout < 0 || c.Tools.Timeout < 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}

	if c.Dispatch.Concurrency < 0 {
		return fmt.Errorf("%w: dispatch concurrency %d", ErrInvalid, c.Dispatch.Concurrency)
	}
	if c.Dispatch.HistoryWindow < 0 {
		return fmt.Errorf("%w: history window %d", ErrInvalid, c.Dispatch.HistoryWindow)
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("%w: max sessions %d", ErrInvalid, c.Session.MaxSessions)
	}

	if c.Health.Schedule != "" {
		gron := gronx.New()
		if !gron.IsValid(c.Health.Schedule) {
			return fmt.Errorf("%w: health schedule %q is not a cron expression", ErrInvalid, c.Health.Schedule)
		}
	}

	for i, d := range c.Tools.Extra {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: tools.extra[%d] has no name", ErrInvalid, i)
		}
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q (json or text)", ErrInvalid, c.Log.Format)
	}
	return nil
}
