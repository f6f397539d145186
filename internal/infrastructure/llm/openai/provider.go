package openai

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Nyukimin/toolrouter/internal/domain/llm"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1/"
	deepSeekBaseURL = "https://api.deepseek.com/v1/"
	defaultRetries  = 2
)

// OpenAIProvider はOpenAI互換 chat completions プロバイダーの実装
// OpenAI本体、DeepSeek、Azure OpenAI に対応
type OpenAIProvider struct {
	kind    string
	apiKey  string
	model   string
	baseURL string
	extra   []option.RequestOption
	client  sdk.Client
}

// NewOpenAIProvider は api.openai.com 向けプロバイダーを作成
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	p := &OpenAIProvider{
		kind:    "openai",
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
	}
	p.rebuild()
	return p
}

// NewDeepSeekProvider はOpenAI互換のDeepSeek API向けプロバイダーを作成
func NewDeepSeekProvider(apiKey, model string) *OpenAIProvider {
	p := &OpenAIProvider{
		kind:    "deepseek",
		apiKey:  apiKey,
		model:   model,
		baseURL: deepSeekBaseURL,
	}
	p.rebuild()
	return p
}

// NewAzureProvider はAzure OpenAIデプロイメント向けプロバイダーを作成
// デプロイメント名をモデル名として扱う
func NewAzureProvider(endpoint, apiKey, deployment, apiVersion string) *OpenAIProvider {
	base := strings.TrimSuffix(endpoint, "/") + "/openai/deployments/" + deployment + "/"
	p := &OpenAIProvider{
		kind:    "azure",
		apiKey:  apiKey,
		model:   deployment,
		baseURL: base,
		extra: []option.RequestOption{
			option.WithHeaderDel("authorization"),
			option.WithHeader("api-key", apiKey),
			option.WithQuery("api-version", apiVersion),
		},
	}
	p.rebuild()
	return p
}

// SetBaseURL はエンドポイントを上書き（テスト用）
func (p *OpenAIProvider) SetBaseURL(url string) {
	p.baseURL = url
	p.rebuild()
}

func (p *OpenAIProvider) rebuild() {
	opts := []option.RequestOption{
		option.WithBaseURL(p.baseURL),
		option.WithMaxRetries(defaultRetries),
	}
	if p.apiKey != "" {
		opts = append(opts, option.WithAPIKey(p.apiKey))
	}
	opts = append(opts, p.extra...)
	p.client = sdk.NewClient(opts...)
}

// Generate はテキスト生成を実行
func (p *OpenAIProvider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	if p.apiKey == "" || p.model == "" {
		return llm.GenerateResponse{}, fmt.Errorf("%s: %w", p.kind, llm.ErrNotConfigured)
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: p.convertMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("%s API error: %w", p.kind, err)
	}

	var content, finishReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	return llm.GenerateResponse{
		Content:      content,
		TokensUsed:   int(resp.Usage.TotalTokens),
		FinishReason: finishReason,
	}, nil
}

// Name はプロバイダー名を返す（"<kind>-<model>"）
func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("%s-%s", p.kind, p.model)
}

func (p *OpenAIProvider) convertMessages(req llm.GenerateRequest) []sdk.ChatCompletionMessageParamUnion {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, sdk.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(msg.Content))
		default:
			messages = append(messages, sdk.UserMessage(msg.Content))
		}
	}
	return messages
}
