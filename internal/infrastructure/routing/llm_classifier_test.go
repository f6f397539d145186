package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyukimin/toolrouter/internal/domain/conversation"
	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/llm"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

// mockLLMProvider はテスト用のLLMプロバイダー（最後のリクエストを記録）
type mockLLMProvider struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	panics   bool
	last     llm.GenerateRequest
}

func (m *mockLLMProvider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	m.mu.Lock()
	m.last = req
	m.mu.Unlock()

	if m.panics {
		panic("provider exploded")
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return llm.GenerateResponse{}, ctx.Err()
		}
	}
	if m.err != nil {
		return llm.GenerateResponse{}, m.err
	}
	return llm.GenerateResponse{Content: m.response, TokensUsed: 100}, nil
}

func (m *mockLLMProvider) Name() string {
	return "mock-llm"
}

func (m *mockLLMProvider) lastRequest() llm.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

var testCatalog = []tool.Descriptor{
	{Name: "WeatherTool", Description: "Get current weather information for a location"},
	{Name: "StockPriceTool", Description: "Get current stock price information for a symbol"},
	{Name: QueryToolName, Description: "Process natural language queries using LLM"},
}

func TestLLMClassifier_Classify_Success(t *testing.T) {
	mock := &mockLLMProvider{response: "Sure! ```json\n{\"tool\": \"weathertool\", \"params\": {\"location\": \"Paris\"}, \"confidence\": 0.93, \"explanation\": \"asks about {weather}\"}\n```"}
	c := NewLLMClassifier(mock, 0)

	res := c.Classify(context.Background(), "weather in Paris?", nil, testCatalog)

	require.True(t, res.OK(), res.Message)
	assert.Equal(t, "WeatherTool", res.Intent.Tool)
	assert.Equal(t, "Paris", res.Intent.Params["location"])
	assert.Equal(t, 0.93, res.Intent.Confidence)
	assert.Equal(t, "asks about {weather}", res.Intent.Explanation)

	req := mock.lastRequest()
	assert.Equal(t, 0.2, req.Temperature)
	assert.Contains(t, req.SystemPrompt, "Available tools:")
	assert.Contains(t, req.SystemPrompt, "- WeatherTool: Get current weather information for a location")
	assert.NotContains(t, req.SystemPrompt, QueryToolName)
	assert.Contains(t, req.SystemPrompt, "'tool' set to 'unknown'")
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "User query: weather in Paris?", req.Messages[0].Content)
}

func TestLLMClassifier_Classify_UnknownToolNormalised(t *testing.T) {
	mock := &mockLLMProvider{response: `{"tool": "CalendarTool", "params": null, "confidence": 1.7}`}
	c := NewLLMClassifier(mock, 0)

	res := c.Classify(context.Background(), "book a meeting", nil, testCatalog)

	require.True(t, res.OK())
	assert.True(t, res.Intent.IsUnknown())
	assert.Equal(t, 1.0, res.Intent.Confidence)
	assert.NotNil(t, res.Intent.Params)
}

func TestLLMClassifier_Classify_Errors(t *testing.T) {
	tests := []struct {
		name string
		mock *mockLLMProvider
	}{
		{"transport error", &mockLLMProvider{err: errors.New("connection refused")}},
		{"no json", &mockLLMProvider{response: "I think it is the weather tool"}},
		{"broken json", &mockLLMProvider{response: `{"tool": }`}},
		{"provider panic", &mockLLMProvider{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(tt.mock, 0)
			res := c.Classify(context.Background(), "weather?", nil, testCatalog)
			assert.False(t, res.OK())
			assert.Equal(t, tool.StatusError, res.Status)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestLLMClassifier_Classify_Timeout(t *testing.T) {
	mock := &mockLLMProvider{response: `{"tool":"WeatherTool"}`, delay: time.Second}
	c := NewLLMClassifier(mock, 20*time.Millisecond)

	start := time.Now()
	res := c.Classify(context.Background(), "weather?", nil, testCatalog)

	assert.False(t, res.OK())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLLMClassifier_Classify_ContextInUserMessage(t *testing.T) {
	mock := &mockLLMProvider{response: `{"tool":"unknown"}`}
	c := NewLLMClassifier(mock, 0)

	history := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "weather in Paris"},
		{Role: conversation.RoleAssistant, Content: "It is sunny"},
	}
	c.Classify(context.Background(), "and tomorrow?", map[string]interface{}{
		conversation.HistoryKey: history,
		"locale":                "en-US",
	}, testCatalog)

	msg := mock.lastRequest().Messages[0].Content
	assert.True(t, strings.HasPrefix(msg, "User query: and tomorrow?\n\nAdditional context:"))
	assert.Contains(t, msg, "- conversation_history: user: weather in Paris | assistant: It is sunny")
	assert.Contains(t, msg, "- locale: en-US")
}

func TestLLMClassifier_ClassifyMultiple(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{
			name:     "wrapped object",
			response: `{"intents": [{"tool": "WeatherTool", "params": {"location": "New York"}, "confidence": 0.9}, {"tool": "StockPriceTool", "params": {"symbol": "AAPL"}, "confidence": 0.8}]}`,
			want:     []string{"WeatherTool", "StockPriceTool"},
		},
		{
			name:     "bare array",
			response: `[{"tool": "StockPriceTool", "params": {"symbol": "AAPL"}}, {"tool": "WeatherTool", "params": {"location": "Paris"}}]`,
			want:     []string{"StockPriceTool", "WeatherTool"},
		},
		{
			name:     "unknown entries dropped",
			response: `{"intents": [{"tool": "unknown"}, {"tool": "WeatherTool", "params": {"location": "Oslo"}}]}`,
			want:     []string{"WeatherTool"},
		},
		{
			name:     "empty",
			response: `{"intents": []}`,
			want:     []string{},
		},
		{
			name:     "garbage",
			response: "no structure here",
			want:     []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(&mockLLMProvider{response: tt.response}, 0)
			got := c.ClassifyMultiple(context.Background(), "q", nil, testCatalog)
			names := make([]string, 0, len(got))
			for _, in := range got {
				names = append(names, in.Tool)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestLLMClassifier_ClassifyMultiple_ErrorIsEmpty(t *testing.T) {
	c := NewLLMClassifier(&mockLLMProvider{err: errors.New("503")}, 0)
	assert.Empty(t, c.ClassifyMultiple(context.Background(), "q", nil, testCatalog))
}

func TestLLMClassifier_Narrate(t *testing.T) {
	mock := &mockLLMProvider{response: "  It's 21 degrees and clear in New York.  "}
	c := NewLLMClassifier(mock, 0)

	res := c.Narrate(context.Background(), NarrateSingleInstruction, intent.Narration{
		Query: "weather in nyc",
		Tools: []string{"WeatherTool"},
		Results: []tool.Result{
			tool.Success(map[string]interface{}{"temperature": 21.0}, "Weather in New York (US)"),
		},
	})

	require.True(t, res.OK())
	assert.Equal(t, "It's 21 degrees and clear in New York.", res.Message)

	req := mock.lastRequest()
	assert.Equal(t, 0.7, req.Temperature)
	assert.Contains(t, req.SystemPrompt, NarrateSingleInstruction)
	body := req.Messages[0].Content
	assert.Contains(t, body, "User query: weather in nyc")
	assert.Contains(t, body, "Tool used: WeatherTool")
	assert.Contains(t, body, "Response status: success")
	assert.Contains(t, body, `Response data: {"temperature":21}`)
}

func TestLLMClassifier_Narrate_Failure(t *testing.T) {
	c := NewLLMClassifier(&mockLLMProvider{err: errors.New("boom")}, 0)
	assert.False(t, c.Narrate(context.Background(), "", intent.Narration{}).OK())

	c = NewLLMClassifier(&mockLLMProvider{response: "   "}, 0)
	assert.False(t, c.Narrate(context.Background(), "", intent.Narration{}).OK())
}

func TestExtractFirstJSONText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`prefix {"a": {"b": 1}} suffix {"c": 2}`, `{"a": {"b": 1}}`},
		{`{"x": "brace } in string"}`, `{"x": "brace } in string"}`},
		{`{"x": "escaped \" quote }"}`, `{"x": "escaped \" quote }"}`},
		{`no json`, ``},
		{`{"unterminated": 1`, ``},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractFirstJSONText(tt.in))
	}
}

func TestNewLLMClassifier_NilProviderPanics(t *testing.T) {
	assert.Panics(t, func() { NewLLMClassifier(nil, 0) })
}
