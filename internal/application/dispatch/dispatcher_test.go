package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

type scripted struct {
	delay  time.Duration
	result tool.Result
}

// mockInvoker はツールごとの固定結果を返す（遅延指定可）
type mockInvoker struct {
	mu      sync.Mutex
	scripts map[string]scripted
	calls   []string
}

func (m *mockInvoker) Execute(_ context.Context, name string, _ map[string]interface{}) tool.Result {
	m.mu.Lock()
	s, ok := m.scripts[name]
	m.calls = append(m.calls, name)
	m.mu.Unlock()
	if !ok {
		return tool.Failure("Tool '%s' not found", name)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result
}

type mockNarrator struct {
	reply intent.NarrationResult
	got   []intent.Narration
	instr []string
}

func (m *mockNarrator) Narrate(_ context.Context, instruction string, n intent.Narration) intent.NarrationResult {
	m.got = append(m.got, n)
	m.instr = append(m.instr, instruction)
	return m.reply
}

type staticCatalog []tool.Descriptor

func (c staticCatalog) Catalog() []tool.Descriptor { return c }

var testInstructions = Instructions{Single: "single", Multi: "multi", General: "general"}

func weatherData() map[string]interface{} {
	return map[string]interface{}{"location": "New York", "temperature": 21.5}
}

func stockData() map[string]interface{} {
	return map[string]interface{}{"symbol": "AAPL", "price": "189.9"}
}

func scenarioInvoker() *mockInvoker {
	return &mockInvoker{scripts: map[string]scripted{
		"WeatherTool":    {delay: 40 * time.Millisecond, result: tool.Success(weatherData(), "Weather in New York")},
		"StockPriceTool": {result: tool.Success(stockData(), "Stock information for AAPL")},
	}}
}

func scenarioIntents() []intent.Intent {
	return []intent.Intent{
		{Tool: "WeatherTool", Params: map[string]interface{}{"location": "New York"}, Confidence: 0.7},
		{Tool: "StockPriceTool", Params: map[string]interface{}{"symbol": "AAPL"}, Confidence: 0.7},
	}
}

func TestDispatch_UnknownWithoutNarratorIsGuidance(t *testing.T) {
	inv := &mockInvoker{}
	d := NewDispatcher(inv, nil, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "asdkjahsd", []intent.Intent{intent.NewUnknown("no match")}, true)

	assert.Equal(t, tool.StatusError, resp.Status)
	assert.Equal(t, Guidance, resp.Message)
	assert.Empty(t, inv.calls)
}

func TestDispatch_UnknownNarratesGeneralHelp(t *testing.T) {
	n := &mockNarrator{reply: intent.NarrationResult{Status: tool.StatusSuccess, Message: "I can check weather."}}
	catalog := staticCatalog{{Name: "WeatherTool", Description: "weather"}}
	d := NewDispatcher(&mockInvoker{}, n, catalog, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "hello", []intent.Intent{intent.NewUnknown("")}, true)

	assert.True(t, resp.OK())
	assert.True(t, resp.Enhanced)
	assert.Equal(t, "I can check weather.", resp.Message)
	require.Len(t, n.got, 1)
	assert.Equal(t, "general", n.instr[0])
	assert.Equal(t, []tool.Descriptor(catalog), n.got[0].Catalog)
}

func TestDispatch_UnknownNarrationFailureFallsBackToGuidance(t *testing.T) {
	n := &mockNarrator{reply: intent.NarrationResult{Status: tool.StatusError, Message: "timeout"}}
	d := NewDispatcher(&mockInvoker{}, n, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "hello", []intent.Intent{intent.NewUnknown("")}, true)

	assert.Equal(t, Guidance, resp.Message)
	assert.False(t, resp.Enhanced)
}

func TestDispatch_SingleRoundTripWithoutNarration(t *testing.T) {
	inv := scenarioInvoker()
	d := NewDispatcher(inv, &mockNarrator{}, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "stock AAPL", scenarioIntents()[1:], false)

	assert.True(t, resp.OK())
	assert.Equal(t, stockData(), resp.Data)
	assert.Equal(t, "Stock information for AAPL", resp.Message)
	assert.Equal(t, "StockPriceTool", resp.Tool)
	assert.False(t, resp.MultiIntent)
	assert.False(t, resp.Enhanced)
}

func TestDispatch_SingleNarrationReplacesMessageKeepsData(t *testing.T) {
	n := &mockNarrator{reply: intent.NarrationResult{Status: tool.StatusSuccess, Message: "Apple trades at $189.90."}}
	d := NewDispatcher(scenarioInvoker(), n, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "stock AAPL", scenarioIntents()[1:], true)

	assert.True(t, resp.Enhanced)
	assert.Equal(t, "Apple trades at $189.90.", resp.Message)
	assert.Equal(t, stockData(), resp.Data)
	require.Len(t, n.got, 1)
	assert.Equal(t, []string{"StockPriceTool"}, n.got[0].Tools)
}

func TestDispatch_SingleNarrationDisabledWhenNoNarrator(t *testing.T) {
	d := NewDispatcher(scenarioInvoker(), nil, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "stock AAPL", scenarioIntents()[1:], true)

	assert.False(t, resp.Enhanced)
	assert.False(t, d.NarrationAvailable())
}

func TestDispatch_MultiScenarioKeepsResolutionOrder(t *testing.T) {
	d := NewDispatcher(scenarioInvoker(), nil, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "weather in New York and AAPL", scenarioIntents(), false)

	assert.True(t, resp.OK())
	assert.True(t, resp.MultiIntent)
	assert.Equal(t, map[string]interface{}{
		"WeatherTool":    weatherData(),
		"StockPriceTool": stockData(),
	}, resp.Data)
	assert.Equal(t, "[WeatherTool] Weather in New York\n\n[StockPriceTool] Stock information for AAPL", resp.Message)
}

func TestDispatch_MultiDataIndependentOfCompletionOrder(t *testing.T) {
	fast := scenarioInvoker()
	slow := scenarioInvoker()
	slow.scripts["WeatherTool"] = scripted{result: fast.scripts["WeatherTool"].result}
	slow.scripts["StockPriceTool"] = scripted{delay: 40 * time.Millisecond, result: fast.scripts["StockPriceTool"].result}

	a := NewDispatcher(fast, nil, nil, testInstructions, 0).Dispatch(context.Background(), "q", scenarioIntents(), false)
	b := NewDispatcher(slow, nil, nil, testInstructions, 0).Dispatch(context.Background(), "q", scenarioIntents(), false)

	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, a.Message, b.Message)
}

func TestDispatch_MultiRunsConcurrently(t *testing.T) {
	inv := &mockInvoker{scripts: map[string]scripted{
		"A": {delay: 100 * time.Millisecond, result: tool.Success(nil, "a")},
		"B": {delay: 100 * time.Millisecond, result: tool.Success(nil, "b")},
		"C": {delay: 100 * time.Millisecond, result: tool.Success(nil, "c")},
	}}
	d := NewDispatcher(inv, nil, nil, testInstructions, 3)

	start := time.Now()
	resp := d.Dispatch(context.Background(), "q", []intent.Intent{{Tool: "A"}, {Tool: "B"}, {Tool: "C"}}, false)

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, "[A] a\n\n[B] b\n\n[C] c", resp.Message)
}

func TestDispatch_MultiPartialFailure(t *testing.T) {
	inv := scenarioInvoker()
	inv.scripts["StockPriceTool"] = scripted{result: tool.Failure("No data found for 'ZZZZ'")}
	d := NewDispatcher(inv, nil, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "q", scenarioIntents(), false)

	assert.True(t, resp.OK())
	assert.True(t, resp.MultiIntent)
	assert.Contains(t, resp.Data, "WeatherTool")
	assert.NotContains(t, resp.Data, "StockPriceTool")
	assert.Contains(t, resp.Message, "[StockPriceTool] No data found for 'ZZZZ'")
}

func TestDispatch_MultiAllFailed(t *testing.T) {
	inv := &mockInvoker{scripts: map[string]scripted{}}
	d := NewDispatcher(inv, nil, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "q", scenarioIntents(), false)

	assert.Equal(t, tool.StatusError, resp.Status)
	assert.True(t, resp.MultiIntent)
	assert.Empty(t, resp.Data)
	assert.Equal(t, "[WeatherTool] Tool 'WeatherTool' not found\n\n[StockPriceTool] Tool 'StockPriceTool' not found", resp.Message)
}

func TestDispatch_MultiNarration(t *testing.T) {
	n := &mockNarrator{reply: intent.NarrationResult{Status: tool.StatusSuccess, Message: "Sunny in NY; Apple at $189.90."}}
	d := NewDispatcher(scenarioInvoker(), n, nil, testInstructions, 0)

	resp := d.Dispatch(context.Background(), "q", scenarioIntents(), true)

	assert.True(t, resp.Enhanced)
	assert.Equal(t, "Sunny in NY; Apple at $189.90.", resp.Message)
	require.Len(t, n.got, 1)
	assert.Equal(t, "multi", n.instr[0])
	assert.Equal(t, []string{"WeatherTool", "StockPriceTool"}, n.got[0].Tools)
	require.Len(t, n.got[0].Results, 2)
	assert.Equal(t, "Weather in New York", n.got[0].Results[0].Message)
}

func TestDispatch_UnknownDroppedAmongRealIntents(t *testing.T) {
	inv := scenarioInvoker()
	d := NewDispatcher(inv, nil, nil, testInstructions, 0)

	intents := append([]intent.Intent{intent.NewUnknown("")}, scenarioIntents()[0])
	resp := d.Dispatch(context.Background(), "q", intents, false)

	assert.True(t, resp.OK())
	assert.False(t, resp.MultiIntent)
	assert.Equal(t, []string{"WeatherTool"}, inv.calls)
}

func TestNewDispatcher_RequiresInvoker(t *testing.T) {
	assert.Panics(t, func() { NewDispatcher(nil, nil, nil, testInstructions, 0) })
}

// quoteInvoker は要求されたシンボルを返す（AAPL のみ遅延）
type quoteInvoker struct{}

func (quoteInvoker) Execute(_ context.Context, _ string, params map[string]interface{}) tool.Result {
	symbol, _ := params["symbol"].(string)
	if symbol == "AAPL" {
		time.Sleep(30 * time.Millisecond)
	}
	return tool.Success(map[string]interface{}{"symbol": symbol}, "quote "+symbol)
}

func TestDispatch_MultiSameToolKeepsEveryPayload(t *testing.T) {
	d := NewDispatcher(quoteInvoker{}, nil, nil, testInstructions, 0)
	intents := []intent.Intent{
		{Tool: "StockPriceTool", Params: map[string]interface{}{"symbol": "AAPL"}},
		{Tool: "StockPriceTool", Params: map[string]interface{}{"symbol": "MSFT"}},
		{Tool: "StockPriceTool", Params: map[string]interface{}{"symbol": "IBM"}},
	}

	resp := d.Dispatch(context.Background(), "stock price for AAPL and stock price for MSFT and IBM", intents, false)

	require.True(t, resp.OK())
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "AAPL", resp.Data["StockPriceTool"].(map[string]interface{})["symbol"])
	assert.Equal(t, "MSFT", resp.Data["StockPriceTool#2"].(map[string]interface{})["symbol"])
	assert.Equal(t, "IBM", resp.Data["StockPriceTool#3"].(map[string]interface{})["symbol"])
	assert.Equal(t, "[StockPriceTool] quote AAPL\n\n[StockPriceTool#2] quote MSFT\n\n[StockPriceTool#3] quote IBM", resp.Message)
}
