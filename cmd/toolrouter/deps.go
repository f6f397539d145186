package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nyukimin/toolrouter/internal/adapter/config"
	"github.com/Nyukimin/toolrouter/internal/adapter/jsonrpc"
	"github.com/Nyukimin/toolrouter/internal/application/dispatch"
	"github.com/Nyukimin/toolrouter/internal/application/orchestrator"
	"github.com/Nyukimin/toolrouter/internal/application/resolver"
	"github.com/Nyukimin/toolrouter/internal/domain/llm"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/llm/claude"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/llm/ollama"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/llm/openai"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/persistence/transcript"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/routing"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools/stock"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools/weather"
	"github.com/Nyukimin/toolrouter/pkg/health"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// Dependencies は依存関係を保持
type Dependencies struct {
	cfg        *config.Config
	invoker    *tools.Invoker
	classifier *routing.LLMClassifier
	resolver   *resolver.Resolver
	dispatcher *dispatch.Dispatcher
	pool       *orchestrator.Pool
	store      *transcript.JSONRepository
	monitor    *health.Monitor
	rpc        *jsonrpc.Server
}

// buildProvider は設定されたLLMプロバイダーを返す
// 分類器が無効または認証情報がなければ ErrNotConfigured
func buildProvider(c config.LLMConfig) (llm.LLMProvider, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("llm disabled: %w", llm.ErrNotConfigured)
	}

	key := c.Key()
	if key == "" && c.Provider != config.ProviderOllama {
		return nil, fmt.Errorf("no API key for provider %s: %w", c.Provider, llm.ErrNotConfigured)
	}

	switch c.Provider {
	case config.ProviderOpenAI:
		p := openai.NewOpenAIProvider(key, c.Model)
		if c.BaseURL != "" {
			p.SetBaseURL(c.BaseURL)
		}
		return p, nil
	case config.ProviderAzure:
		if c.AzureEndpoint == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT not set: %w", llm.ErrNotConfigured)
		}
		return openai.NewAzureProvider(c.AzureEndpoint, key, c.Model, c.AzureAPIVersion), nil
	case config.ProviderDeepSeek:
		p := openai.NewDeepSeekProvider(key, c.Model)
		if c.BaseURL != "" {
			p.SetBaseURL(c.BaseURL)
		}
		return p, nil
	case config.ProviderAnthropic:
		p := claude.NewClaudeProvider(key, c.Model)
		if c.BaseURL != "" {
			p.SetBaseURL(c.BaseURL)
		}
		return p, nil
	case config.ProviderOllama:
		return ollama.NewOllamaProvider(c.BaseURL, c.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", c.Provider, llm.ErrNotConfigured)
	}
}

// buildDependencies は全コンポーネントを組み立てる
// 認証情報がないコンポーネントは無効化し、ここで一度だけ報告
func buildDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	d := &Dependencies{
		cfg:     cfg,
		invoker: tools.NewInvoker(tools.NewRegistry(), cfg.Tools.Timeout),
		monitor: health.NewMonitor(cfg.Health.CheckTimeout),
	}
	registry := d.invoker.Registry()

	// 1. LLM分類器
	provider, providerErr := buildProvider(cfg.LLM)
	switch {
	case providerErr == nil:
		d.classifier = routing.NewLLMClassifier(provider, cfg.LLM.Timeout)
		logger.InfoCF("main", "classifier.enabled", map[string]interface{}{
			"provider": provider.Name(),
		})
	case errors.Is(providerErr, llm.ErrNotConfigured):
		logger.WarnCF("main", "classifier.disabled", map[string]interface{}{
			"reason": providerErr.Error(),
		})
	default:
		return nil, providerErr
	}

	// 2. ツール
	if cfg.Tools.OpenWeatherMapAPIKey == "" {
		logger.WarnCF("main", "tool.unconfigured", map[string]interface{}{"tool": weather.Name, "missing": "OPENWEATHERMAP_API_KEY"})
	}
	if err := d.invoker.Register(weather.New(cfg.Tools.OpenWeatherMapAPIKey)); err != nil {
		return nil, fmt.Errorf("register %s: %w", weather.Name, err)
	}
	if cfg.Tools.AlphaVantageAPIKey == "" {
		logger.WarnCF("main", "tool.unconfigured", map[string]interface{}{"tool": stock.Name, "missing": "ALPHAVANTAGE_API_KEY"})
	}
	if err := d.invoker.Register(stock.New(cfg.Tools.AlphaVantageAPIKey)); err != nil {
		return nil, fmt.Errorf("register %s: %w", stock.Name, err)
	}
	if d.classifier != nil {
		if err := d.invoker.Register(routing.NewQueryTool(d.classifier, registry.Catalog)); err != nil {
			return nil, fmt.Errorf("register %s: %w", routing.QueryToolName, err)
		}
	}
	for _, desc := range cfg.Tools.Extra {
		if err := registry.Register(desc); err != nil {
			logger.DebugCF("main", "tool.extra_skipped", map[string]interface{}{"tool": desc.Name, "error": err.Error()})
		}
	}

	// 3. リモートツール
	if cfg.Tools.RemoteURL != "" {
		client := jsonrpc.NewClient(cfg.Tools.RemoteURL)
		if _, err := jsonrpc.DiscoverRemote(ctx, client, d.invoker); err != nil {
			logger.WarnCF("main", "remote.unavailable", map[string]interface{}{
				"server": cfg.Tools.RemoteURL,
				"error":  err.Error(),
			})
		}
		d.monitor.Add("remote_tools", func(ctx context.Context) (bool, string) {
			if err := client.Ping(ctx); err != nil {
				return false, err.Error()
			}
			return true, "ok"
		})
	}

	// 4. パイプライン
	var classifier resolver.Classifier
	var narrator dispatch.Narrator
	if d.classifier != nil {
		classifier = d.classifier
		narrator = d.classifier
	}
	d.resolver = resolver.NewResolver(classifier, routing.NewRuleClassifier(nil), registry, routing.HasJoiner)
	d.dispatcher = dispatch.NewDispatcher(d.invoker, narrator, registry, dispatch.Instructions{
		Single:  routing.NarrateSingleInstruction,
		Multi:   routing.NarrateMultiInstruction,
		General: routing.NarrateGeneralInstruction,
	}, cfg.Dispatch.Concurrency)
	if cfg.Session.StorageDir != "" {
		d.store = transcript.NewJSONRepository(cfg.Session.StorageDir)
	}
	d.pool = orchestrator.NewPool(d.newSession, cfg.Session.MaxSessions)
	d.rpc = jsonrpc.NewServer(registry, d.invoker, d.pool.Get("jsonrpc"))

	// 5. ヘルスチェック
	d.monitor.Add("catalog", health.CatalogCheck(registry.Len))
	d.monitor.Add("llm", health.ConfiguredCheck(d.classifier != nil, "classifier disabled: "+errString(providerErr)))
	d.monitor.Add("weather_api", health.ConfiguredCheck(cfg.Tools.OpenWeatherMapAPIKey != "", "OPENWEATHERMAP_API_KEY not set"))
	d.monitor.Add("stock_api", health.ConfiguredCheck(cfg.Tools.AlphaVantageAPIKey != "", "ALPHAVANTAGE_API_KEY not set"))
	if d.classifier != nil && cfg.LLM.Provider == config.ProviderOllama {
		baseURL := cfg.LLM.BaseURL
		if baseURL == "" {
			baseURL = ollama.DefaultBaseURL
		}
		d.monitor.Add("ollama_model", health.OllamaModelCheck(baseURL, cfg.LLM.Model, cfg.Health.CheckTimeout))
	}

	logger.InfoCF("main", "dependencies.ready", map[string]interface{}{
		"tools":      registry.Len(),
		"classifier": d.classifier != nil,
	})
	return d, nil
}

func (d *Dependencies) newSession(id string) *orchestrator.Orchestrator {
	opts := orchestrator.Options{
		SessionID: id,
		Window:    d.cfg.Dispatch.HistoryWindow,
		Narrate:   d.cfg.Dispatch.NarrationEnabled(),
	}
	if d.store != nil {
		opts.Store = d.store
	}
	return orchestrator.NewOrchestrator(d.resolver, d.dispatcher, d.invoker.Registry(), opts)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
