package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyukimin/toolrouter/internal/domain/intent"
)

func TestRuleClassifier_NeverEmpty(t *testing.T) {
	c := NewRuleClassifier(nil)
	queries := []string{
		"",
		"   ",
		"asdkjahsd",
		"and",
		"&&&",
		"weather",
		"What's the weather in New York and stock price for AAPL",
		"plus also both as well as",
		"こんにちは",
	}
	for _, q := range queries {
		assert.NotEmpty(t, c.Classify(q), "query %q", q)
	}
}

func TestRuleClassifier_Unknown(t *testing.T) {
	c := NewRuleClassifier(nil)

	got := c.Classify("asdkjahsd")

	require.Len(t, got, 1)
	assert.Equal(t, intent.Unknown, got[0].Tool)
	assert.Equal(t, 0.0, got[0].Confidence)
	assert.Equal(t, "Could not determine intent from query", got[0].Explanation)
}

func TestRuleClassifier_Weather(t *testing.T) {
	tests := []struct {
		query    string
		location interface{}
	}{
		{"What's the weather in London?", "London"},
		{"weather at San Francisco", "San Francisco"},
		{"weather Paris", "Paris"},
		{"Is it raining in Seattle", "Seattle"},
		{"temperature for Tokyo, Japan", "Tokyo, Japan"},
		{"forecast", nil},
	}
	c := NewRuleClassifier(nil)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := c.Classify(tt.query)
			require.Len(t, got, 1)
			assert.Equal(t, "WeatherTool", got[0].Tool)
			assert.Equal(t, RuleConfidence, got[0].Confidence)
			assert.Equal(t, tt.location, got[0].Params["location"])
		})
	}
}

func TestRuleClassifier_Stock(t *testing.T) {
	tests := []struct {
		query  string
		symbol interface{}
	}{
		{"stock price for AAPL", "AAPL"},
		{"stock quote of Microsoft", "Microsoft"},
		{"Tesla stock price", "Tesla"},
		{"price for IBM", "IBM"},
		{"ticker NVDA", "NVDA"},
		{"stock", "stock"},
		{"how is the market doing today?", nil},
	}
	c := NewRuleClassifier(nil)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := c.Classify(tt.query)
			require.Len(t, got, 1)
			assert.Equal(t, "StockPriceTool", got[0].Tool)
			assert.Equal(t, tt.symbol, got[0].Params["symbol"])
		})
	}
}

func TestRuleClassifier_CompoundQuery(t *testing.T) {
	c := NewRuleClassifier(nil)

	got := c.Classify("What's the weather in New York and stock price for AAPL")

	require.Len(t, got, 2)
	assert.Equal(t, "WeatherTool", got[0].Tool)
	assert.Equal(t, "New York", got[0].Params["location"])
	assert.Equal(t, "StockPriceTool", got[1].Tool)
	assert.Equal(t, "AAPL", got[1].Params["symbol"])
}

func TestRuleClassifier_DeduplicatesSameTool(t *testing.T) {
	c := NewRuleClassifier(nil)

	got := c.Classify("weather in Paris & weather in Paris")

	require.Len(t, got, 1)
	assert.Equal(t, "Paris", got[0].Params["location"])
}

func TestRuleClassifier_CustomRules(t *testing.T) {
	c := NewRuleClassifier([]Rule{{Tool: "NewsTool", Param: "topic", Keywords: []string{"news"}}})

	got := c.Classify("latest news")
	require.Len(t, got, 1)
	assert.Equal(t, "NewsTool", got[0].Tool)
	assert.Empty(t, got[0].Params)
}

func TestMatchedTools(t *testing.T) {
	c := NewRuleClassifier(nil)

	assert.Equal(t, []string{"WeatherTool", "StockPriceTool"}, c.MatchedTools("weather in Paris stock of IBM"))
	assert.Equal(t, []string{"WeatherTool"}, c.MatchedTools("sunny today?"))
	assert.Empty(t, c.MatchedTools("hello"))
}

func TestSplitClauses(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"weather in Paris", []string{"weather in Paris"}},
		{"weather in Paris and stock for IBM", []string{"weather in Paris", "stock for IBM"}},
		{"weather in Paris & IBM price", []string{"weather in Paris", "IBM price"}},
		{"weather in Paris as well as IBM price", []string{"weather in Paris", "IBM price"}},
		{"both weather and stocks", []string{"weather", "stocks"}},
		{"Portland weather", []string{"Portland weather"}},
		{"and", []string{"and"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitClauses(tt.query))
		})
	}
}

func TestHasJoiner(t *testing.T) {
	assert.True(t, HasJoiner("weather in Paris and stock for IBM"))
	assert.False(t, HasJoiner("weather in Paris"))
	assert.False(t, HasJoiner("and"))
	assert.False(t, HasJoiner("Sandy weather"))
}
