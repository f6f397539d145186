package routing

import (
	"context"
	"fmt"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools"
)

// QueryToolName はツールとして公開する分類器の登録名
const QueryToolName = "LLMTool"

// CatalogFunc は現在のツールカタログを返す
type CatalogFunc func() []tool.Descriptor

type queryArgs struct {
	Query string `json:"query" jsonschema:"description=Natural language query to interpret"`
}

// QueryTool は分類器を Invoker 経由で直接呼び出すためのツール
type QueryTool struct {
	classifier *LLMClassifier
	catalog    CatalogFunc
}

// NewQueryTool は新しいQueryToolを作成（catalog は nil 可）
func NewQueryTool(classifier *LLMClassifier, catalog CatalogFunc) *QueryTool {
	return &QueryTool{classifier: classifier, catalog: catalog}
}

func (t *QueryTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        QueryToolName,
		Description: "Process natural language queries using LLM",
		Version:     "1.0.0",
		Parameters:  tools.Schema(&queryArgs{}),
	}
}

func (t *QueryTool) Params() []tool.Param {
	return []tool.Param{{Name: "query", Required: true, Description: "Natural language query"}}
}

// Execute は params["query"] を分類
// "context" マップは追加コンテキストとしてそのまま渡す
func (t *QueryTool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	query := fmt.Sprint(params["query"])
	extra, _ := params["context"].(map[string]interface{})

	var catalog []tool.Descriptor
	if t.catalog != nil {
		catalog = t.catalog()
	}

	res := t.classifier.Classify(ctx, query, extra, catalog)
	if !res.OK() {
		return tool.Failure("%s", res.Message)
	}
	return tool.Success(map[string]interface{}{
		"tool":        res.Intent.Tool,
		"params":      res.Intent.Params,
		"confidence":  res.Intent.Confidence,
		"explanation": res.Intent.Explanation,
	}, "")
}

// Format は分類結果の要約を返す
func (t *QueryTool) Format(data map[string]interface{}) string {
	return fmt.Sprintf("Interpreted as %v (confidence %v): %v", data["tool"], data["confidence"], data["explanation"])
}
