package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// DefaultTimeout はツール1回あたりの上限時間
const DefaultTimeout = 20 * time.Second

// Invoker は名前でツールを実行
// パラメータ定義を持つツールは検証後に実行、汎用Executorには生のパラメータを渡す
type Invoker struct {
	registry *Registry
	timeout  time.Duration

	mu       sync.RWMutex
	handlers map[string]tool.Executor
}

// NewInvoker は新しいInvokerを作成
// timeout が0以下なら DefaultTimeout
func NewInvoker(registry *Registry, timeout time.Duration) *Invoker {
	if registry == nil {
		panic("tools: NewInvoker called with nil registry")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{
		registry: registry,
		timeout:  timeout,
		handlers: make(map[string]tool.Executor),
	}
}

// Registry は登録先レジストリを返す
func (inv *Invoker) Registry() *Registry {
	return inv.registry
}

// Register はパラメータ定義付きツールを登録
func (inv *Invoker) Register(t tool.Tool) error {
	return inv.install(t.Descriptor(), t)
}

// RegisterExecutor は汎用実行のみのツールを登録
func (inv *Invoker) RegisterExecutor(d tool.Descriptor, e tool.Executor) error {
	return inv.install(d, e)
}

func (inv *Invoker) install(d tool.Descriptor, e tool.Executor) error {
	if err := inv.registry.Register(d); err != nil {
		return err
	}
	inv.mu.Lock()
	inv.handlers[d.Key()] = e
	inv.mu.Unlock()

	logger.DebugCF("tools", "tool.registered", map[string]interface{}{
		"tool":    d.Name,
		"version": d.Version,
	})
	return nil
}

// Unregister はレジストリとInvokerの両方からツールを削除
func (inv *Invoker) Unregister(name string) {
	inv.registry.Unregister(name)
	inv.mu.Lock()
	delete(inv.handlers, tool.NormalizeName(name))
	inv.mu.Unlock()
}

// Execute は指定ツールを実行
// panic もGoのエラーも返さず、失敗はすべてエラーのResult
func (inv *Invoker) Execute(ctx context.Context, name string, params map[string]interface{}) tool.Result {
	d, ok := inv.registry.Get(name)
	if !ok {
		return tool.Failure("Tool '%s' not found", name)
	}

	inv.mu.RLock()
	h, ok := inv.handlers[d.Key()]
	inv.mu.RUnlock()
	if !ok {
		return tool.Failure("Don't know how to execute tool '%s'", d.Name)
	}

	args := copyParams(params)
	if t, ok := h.(tool.Tool); ok {
		bound, res, ok := bindParams(t.Params(), args)
		if !ok {
			return res
		}
		args = bound
	}

	start := time.Now()
	res := inv.call(ctx, d.Name, h, args)
	if res.OK() && res.Message == "" {
		if f, ok := h.(tool.Formatter); ok {
			res.Message = f.Format(res.Data)
		}
	}

	logger.DebugCF("tools", "tool.executed", map[string]interface{}{
		"tool":        d.Name,
		"status":      string(res.Status),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return res
}

func (inv *Invoker) call(ctx context.Context, name string, h tool.Executor, args map[string]interface{}) tool.Result {
	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	done := make(chan tool.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("tools", "tool.panic", map[string]interface{}{
					"tool":  name,
					"panic": fmt.Sprint(r),
				})
				done <- tool.Failure("Error executing tool '%s': %v", name, r)
			}
		}()
		done <- h.Execute(ctx, args)
	}()

	select {
	case res := <-done:
		if res.Status == "" {
			res.Status = tool.StatusError
		}
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tool.Failure("Tool '%s' timed out after %s", name, inv.timeout)
		}
		return tool.Failure("Tool '%s' cancelled: %v", name, ctx.Err())
	}
}

// bindParams はエイリアスとデフォルト値を解決
// 必須パラメータ欠落時は false と理由付きのResultを返す
func bindParams(decl []tool.Param, args map[string]interface{}) (map[string]interface{}, tool.Result, bool) {
	for _, p := range decl {
		v, found := lookupParam(args, p)
		for _, alias := range p.Aliases {
			delete(args, alias)
		}
		switch {
		case found:
			args[p.Name] = v
		case p.Default != nil:
			args[p.Name] = p.Default
		case p.Required:
			return nil, tool.Failure("%s parameter is required", capitalize(p.Name)), false
		}
	}
	return args, tool.Result{}, true
}

func lookupParam(args map[string]interface{}, p tool.Param) (interface{}, bool) {
	keys := append([]string{p.Name}, p.Aliases...)
	for _, k := range keys {
		if v, ok := args[k]; ok && present(v) {
			return v, true
		}
	}
	return nil, false
}

func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	default:
		return true
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func copyParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
