package dispatch

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// Guidance はどのツールも対応できず、ナレーションも使えない場合の応答
const Guidance = "I'm not sure how to help with that. Try asking about weather or stock prices."

// DefaultConcurrency はマルチインテント1件あたりの並列ツール呼び出し上限
const DefaultConcurrency = 4

// Invoker は名前でツールを1件実行
type Invoker interface {
	Execute(ctx context.Context, name string, params map[string]interface{}) tool.Result
}

// Narrator はツール出力を会話文に書き換える
type Narrator interface {
	Narrate(ctx context.Context, instruction string, n intent.Narration) intent.NarrationResult
}

// CatalogSource は一般ヘルプ応答に載せるカタログを提供
type CatalogSource interface {
	Catalog() []tool.Descriptor
}

// Instructions は応答種別ごとのナレーション指示
type Instructions struct {
	Single  string
	Multi   string
	General string
}

// Response は1クエリ分の集約応答
type Response struct {
	Status      tool.Status            `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	MultiIntent bool                   `json:"multiIntent,omitempty"`
	Enhanced    bool                   `json:"enhanced,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	RequestID   string                 `json:"requestId,omitempty"`
}

// OK は成功か判定
func (r Response) OK() bool {
	return r.Status == tool.StatusSuccess
}

// Dispatcher は解決済みインテントを実行し結果を集約
type Dispatcher struct {
	invoker      Invoker
	narrator     Narrator
	catalog      CatalogSource
	instructions Instructions
	limit        int
}

// NewDispatcher は新しいDispatcherを作成
// narrator が nil ならナレーション無効。limit が0以下なら DefaultConcurrency
func NewDispatcher(invoker Invoker, narrator Narrator, catalog CatalogSource, instructions Instructions, limit int) *Dispatcher {
	if invoker == nil {
		panic("dispatch: NewDispatcher called with nil invoker")
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Dispatcher{
		invoker:      invoker,
		narrator:     narrator,
		catalog:      catalog,
		instructions: instructions,
		limit:        limit,
	}
}

// NarrationAvailable はナレーターが設定済みか判定
func (d *Dispatcher) NarrationAvailable() bool {
	return d.narrator != nil
}

// Dispatch はクエリのインテントを実行
// 実行可能なインテントがあれば unknown は除外、unknown のみならガイダンス応答
// narrate はナレーター設定時のみ有効
func (d *Dispatcher) Dispatch(ctx context.Context, query string, intents []intent.Intent, narrate bool) Response {
	runnable := make([]intent.Intent, 0, len(intents))
	for _, in := range intents {
		if !in.IsUnknown() {
			runnable = append(runnable, in)
		}
	}

	switch len(runnable) {
	case 0:
		return d.unknown(ctx, query, narrate)
	case 1:
		return d.single(ctx, query, runnable[0], narrate)
	default:
		return d.multi(ctx, query, runnable, narrate)
	}
}

func (d *Dispatcher) unknown(ctx context.Context, query string, narrate bool) Response {
	if narrate && d.narrator != nil {
		var catalog []tool.Descriptor
		if d.catalog != nil {
			catalog = d.catalog.Catalog()
		}
		res := d.narrator.Narrate(ctx, d.instructions.General, intent.Narration{
			Query:   query,
			Catalog: catalog,
		})
		if res.OK() {
			return Response{Status: tool.StatusSuccess, Message: res.Message, Enhanced: true}
		}
		logger.WarnCF("dispatch", "dispatch.narration_failed", map[string]interface{}{
			"kind":  "general",
			"error": res.Message,
		})
	}
	return Response{Status: tool.StatusError, Message: Guidance}
}

func (d *Dispatcher) single(ctx context.Context, query string, in intent.Intent, narrate bool) Response {
	res := d.invoker.Execute(ctx, in.Tool, in.Params)
	logger.InfoCF("dispatch", "dispatch.tool_done", map[string]interface{}{
		"tool":   in.Tool,
		"status": string(res.Status),
	})

	resp := Response{Status: res.Status, Message: res.Message, Data: res.Data, Tool: in.Tool}
	if narrate && d.narrator != nil {
		nr := d.narrator.Narrate(ctx, d.instructions.Single, intent.Narration{
			Query:   query,
			Tools:   []string{in.Tool},
			Results: []tool.Result{res},
		})
		if nr.OK() {
			resp.Message = nr.Message
			resp.Enhanced = true
		} else {
			logger.WarnCF("dispatch", "dispatch.narration_failed", map[string]interface{}{
				"kind":  "single",
				"tool":  in.Tool,
				"error": nr.Message,
			})
		}
	}
	return resp
}

func (d *Dispatcher) multi(ctx context.Context, query string, intents []intent.Intent, narrate bool) Response {
	results := d.fanOut(ctx, intents)

	names := make([]string, len(intents))
	labels := resultLabels(intents)
	data := make(map[string]interface{})
	succeeded := 0
	for i, in := range intents {
		names[i] = in.Tool
		if results[i].OK() {
			succeeded++
			data[labels[i]] = results[i].Data
		}
	}

	logger.InfoCF("dispatch", "dispatch.multi_done", map[string]interface{}{
		"tools":     strings.Join(names, ","),
		"succeeded": succeeded,
		"failed":    len(intents) - succeeded,
	})

	resp := Response{Status: tool.StatusSuccess, Data: data, MultiIntent: true}
	if succeeded == 0 {
		resp.Status = tool.StatusError
		resp.Data = nil
	}

	if narrate && d.narrator != nil {
		nr := d.narrator.Narrate(ctx, d.instructions.Multi, intent.Narration{
			Query:   query,
			Tools:   names,
			Results: results,
		})
		if nr.OK() {
			resp.Message = nr.Message
			resp.Enhanced = true
			return resp
		}
		logger.WarnCF("dispatch", "dispatch.narration_failed", map[string]interface{}{
			"kind":  "multi",
			"error": nr.Message,
		})
	}

	resp.Message = joinBlocks(labels, results)
	return resp
}

// resultLabels は各インテントのキーをツール名で決める
// 同一バッチ内の重複は解決順に Tool#2, Tool#3
func resultLabels(intents []intent.Intent) []string {
	labels := make([]string, len(intents))
	seen := make(map[string]int, len(intents))
	for i, in := range intents {
		seen[in.Tool]++
		if n := seen[in.Tool]; n > 1 {
			labels[i] = fmt.Sprintf("%s#%d", in.Tool, n)
			continue
		}
		labels[i] = in.Tool
	}
	return labels
}

// fanOut は全インテントを並行実行し、結果をインテント順で返す
func (d *Dispatcher) fanOut(ctx context.Context, intents []intent.Intent) []tool.Result {
	results := make([]tool.Result, len(intents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)
	for i, in := range intents {
		g.Go(func() error {
			results[i] = d.invoker.Execute(gctx, in.Tool, in.Params)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func joinBlocks(labels []string, results []tool.Result) string {
	blocks := make([]string, len(results))
	for i, res := range results {
		blocks[i] = fmt.Sprintf("[%s] %s", labels[i], res.Message)
	}
	return strings.Join(blocks, "\n\n")
}
