package resolver

import (
	"context"
	"strings"

	"github.com/Nyukimin/toolrouter/internal/domain/conversation"
	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// Source は解決に使われた分類器
type Source string

const (
	SourceClassifierMulti Source = "classifier_multi"
	SourceClassifier      Source = "classifier"
	SourceRules           Source = "rules"
)

// Classifier はリモート分類器のインターフェース
type Classifier interface {
	Classify(ctx context.Context, query string, extra map[string]interface{}, catalog []tool.Descriptor) intent.Result
	ClassifyMultiple(ctx context.Context, query string, extra map[string]interface{}, catalog []tool.Descriptor) []intent.Intent
}

// RuleEngine はオフラインのフォールバック
// Classify は空スライスを返してはならない
type RuleEngine interface {
	Classify(query string) []intent.Intent
	MatchedTools(query string) []string
}

// CatalogSource は分類器に渡すツールカタログを提供
type CatalogSource interface {
	Catalog() []tool.Descriptor
}

// Request はクエリと呼び出し元のコンテキスト
type Request struct {
	Query   string
	Context map[string]interface{}
	History []conversation.Turn
}

// Resolution はクエリに対する空でない順序付きインテント集合
type Resolution struct {
	Intents  []intent.Intent
	Source   Source
	Compound bool
}

// Resolver はクエリのインテントを決定
// リモート分類器を優先し、失敗時はルールにフォールバック
type Resolver struct {
	classifier Classifier
	rules      RuleEngine
	catalog    CatalogSource
	joiner     func(string) bool
}

// NewResolver は新しいResolverを作成
// classifier が nil ならルールのみ。hasJoiner はクエリが2節をつなぐか判定
func NewResolver(classifier Classifier, rules RuleEngine, catalog CatalogSource, hasJoiner func(string) bool) *Resolver {
	if rules == nil || catalog == nil {
		panic("resolver: rules and catalog are required")
	}
	if hasJoiner == nil {
		hasJoiner = func(string) bool { return false }
	}
	return &Resolver{
		classifier: classifier,
		rules:      rules,
		catalog:    catalog,
		joiner:     hasJoiner,
	}
}

// ClassifierEnabled はリモート分類器が設定済みか判定
func (r *Resolver) ClassifierEnabled() bool {
	return r.classifier != nil
}

// IsCompound はクエリが複数の要求を含みそうか判定
func (r *Resolver) IsCompound(query string) bool {
	if r.joiner(query) {
		return true
	}
	return len(r.rules.MatchedTools(query)) >= 2
}

// Resolve は必ず1件以上のインテントを返す
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	compound := r.IsCompound(req.Query)

	if r.classifier != nil {
		extra := buildContext(req)
		catalog := r.catalog.Catalog()

		if compound {
			intents := r.classifier.ClassifyMultiple(ctx, req.Query, extra, catalog)
			if len(intents) > 0 {
				r.log(SourceClassifierMulti, req.Query, intents)
				return Resolution{Intents: intents, Source: SourceClassifierMulti, Compound: true}
			}
			logger.WarnCF("resolver", "resolver.multi_degraded", map[string]interface{}{
				"query": req.Query,
			})
		}

		res := r.classifier.Classify(ctx, req.Query, extra, catalog)
		if res.OK() {
			intents := []intent.Intent{res.Intent}
			r.log(SourceClassifier, req.Query, intents)
			return Resolution{Intents: intents, Source: SourceClassifier, Compound: compound}
		}
		logger.WarnCF("resolver", "resolver.classifier_fallback", map[string]interface{}{
			"query": req.Query,
			"error": res.Message,
		})
	}

	intents := r.rules.Classify(req.Query)
	if len(intents) == 0 {
		// ルールエンジンが空を返すのは契約違反
		intents = []intent.Intent{intent.NewUnknown("Could not determine intent from query")}
	}
	r.log(SourceRules, req.Query, intents)
	return Resolution{Intents: intents, Source: SourceRules, Compound: compound}
}

func (r *Resolver) log(src Source, query string, intents []intent.Intent) {
	names := make([]string, 0, len(intents))
	for _, in := range intents {
		names = append(names, in.Tool)
	}
	logger.InfoCF("resolver", "resolver.resolved", map[string]interface{}{
		"source":  string(src),
		"intents": strings.Join(names, ","),
		"count":   len(intents),
	})
}

func buildContext(req Request) map[string]interface{} {
	extra := make(map[string]interface{}, len(req.Context)+1)
	for k, v := range req.Context {
		extra[k] = v
	}
	if len(req.History) > 0 {
		extra[conversation.HistoryKey] = req.History
	}
	return extra
}
