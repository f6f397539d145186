package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Nyukimin/toolrouter/internal/application/dispatch"
	"github.com/Nyukimin/toolrouter/internal/application/resolver"
	"github.com/Nyukimin/toolrouter/internal/domain/conversation"
	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/request"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// ErrEmptyQuery は空クエリのエラー
var ErrEmptyQuery = errors.New("query is required")

// QueryRequest はクエリ処理リクエスト
// Narrate はこのクエリに限りセッションのナレーション設定を上書き
type QueryRequest struct {
	Query   string
	Context map[string]interface{}
	Narrate *bool
}

// Resolver はクエリをインテントに解決
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) resolver.Resolution
}

// Dispatcher はインテントを実行し結果を集約
type Dispatcher interface {
	Dispatch(ctx context.Context, query string, intents []intent.Intent, narrate bool) dispatch.Response
}

// ToolCatalog はセッションが公開するレジストリのビュー
type ToolCatalog interface {
	List() []string
	Catalog() []tool.Descriptor
}

// Store は完了したターンを監査ログに記録
// セッションは書き込みのみ。新しいセッションは常に空の会話から開始
type Store interface {
	Append(ctx context.Context, id string, turns ...conversation.Turn) error
}

// Options はセッション設定（Store が nil なら記録しない）
type Options struct {
	SessionID string
	Window    int
	Narrate   bool
	Store     Store
}

// Orchestrator は1会話セッションのクエリ処理を統括
// 会話ログを所有し、クエリを直列化
type Orchestrator struct {
	mu         sync.Mutex
	resolver   Resolver
	dispatcher Dispatcher
	catalog    ToolCatalog
	conv       *conversation.Conversation
	store      Store
	window     int
	narrate    atomic.Bool
}

// NewOrchestrator は新しいOrchestratorを作成
func NewOrchestrator(r Resolver, d Dispatcher, catalog ToolCatalog, opts Options) *Orchestrator {
	if r == nil || d == nil || catalog == nil {
		panic("orchestrator: resolver, dispatcher and catalog are required")
	}
	if opts.Window <= 0 {
		opts.Window = conversation.DefaultWindow
	}
	if opts.SessionID == "" {
		opts.SessionID = request.NewID().String()
	}
	o := &Orchestrator{
		resolver:   r,
		dispatcher: d,
		catalog:    catalog,
		conv:       conversation.New(opts.SessionID),
		store:      opts.Store,
		window:     opts.Window,
	}
	o.narrate.Store(opts.Narrate)
	return o
}

// SessionID は会話IDを返す
func (o *Orchestrator) SessionID() string {
	return o.conv.ID()
}

// SetNarration はナレーション応答の既定値を切り替え
func (o *Orchestrator) SetNarration(on bool) {
	o.narrate.Store(on)
}

// Narration はナレーション応答が既定で有効か判定
func (o *Orchestrator) Narration() bool {
	return o.narrate.Load()
}

// Tools は登録済みツール名を返す
func (o *Orchestrator) Tools() []string {
	return o.catalog.List()
}

// Catalog は登録済みDescriptorを返す
func (o *Orchestrator) Catalog() []tool.Descriptor {
	return o.catalog.Catalog()
}

// History は会話ログのコピーを返す
func (o *Orchestrator) History() []conversation.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv.Turns()
}

// ProcessQuery はクエリを解決・実行・記録
// コンテキストがキャンセルされた場合は何も記録せずエラーを返す
func (o *Orchestrator) ProcessQuery(ctx context.Context, req QueryRequest) (dispatch.Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return dispatch.Response{}, ErrEmptyQuery
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	id := request.NewID()
	logger.InfoCF("orchestrator", "query.received", map[string]interface{}{
		"request_id": id.String(),
		"session_id": o.conv.ID(),
		"query":      query,
	})

	res := o.resolver.Resolve(ctx, resolver.Request{
		Query:   query,
		Context: req.Context,
		History: o.conv.RecentWindow(o.window),
	})
	if err := ctx.Err(); err != nil {
		return dispatch.Response{}, fmt.Errorf("query %s abandoned: %w", id, err)
	}

	narrate := o.narrate.Load()
	if req.Narrate != nil {
		narrate = *req.Narrate
	}
	resp := o.dispatcher.Dispatch(ctx, query, res.Intents, narrate)
	if err := ctx.Err(); err != nil {
		return dispatch.Response{}, fmt.Errorf("query %s abandoned: %w", id, err)
	}
	resp.RequestID = id.String()

	userTurn := conversation.NewTurn(conversation.RoleUser, query)
	replyTurn := conversation.NewTurn(conversation.RoleAssistant, resp.Message)
	o.conv.Append(userTurn)
	o.conv.Append(replyTurn)
	if o.store != nil {
		if err := o.store.Append(ctx, o.conv.ID(), userTurn, replyTurn); err != nil {
			logger.WarnCF("orchestrator", "session.save_failed", map[string]interface{}{
				"session_id": o.conv.ID(),
				"error":      err.Error(),
			})
		}
	}

	logger.InfoCF("orchestrator", "query.completed", map[string]interface{}{
		"request_id": id.String(),
		"source":     string(res.Source),
		"status":     string(resp.Status),
		"multi":      resp.MultiIntent,
		"enhanced":   resp.Enhanced,
	})
	return resp, nil
}
