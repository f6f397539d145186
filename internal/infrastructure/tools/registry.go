package tools

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

// ErrToolExists は大文字小文字を無視して名前が衝突した場合のエラー
var ErrToolExists = errors.New("tool already registered")

// ErrInvalidName は空のツール名のエラー
var ErrInvalidName = errors.New("tool name is empty")

// Registry はツール名からDescriptorへの対応表
// 検索は大文字小文字を区別せず、List は登録順
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]tool.Descriptor
}

// NewRegistry は空のRegistryを作成
func NewRegistry() *Registry {
	return &Registry{
		order: make([]string, 0),
		tools: make(map[string]tool.Descriptor),
	}
}

// Register はツールを登録
// 同名（大文字小文字無視）が既にあれば ErrToolExists
func (r *Registry) Register(d tool.Descriptor) error {
	key := d.Key()
	if key == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[key]; ok {
		return fmt.Errorf("register %q (conflicts with %q): %w", d.Name, existing.Name, ErrToolExists)
	}
	r.tools[key] = d
	r.order = append(r.order, key)
	return nil
}

// Unregister はツールを削除（未登録なら何もしない）
func (r *Registry) Unregister(name string) {
	key := tool.NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[key]; !ok {
		return
	}
	delete(r.tools, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get は大文字小文字を無視してツールを取得
func (r *Registry) Get(name string) (tool.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[tool.NormalizeName(name)]
	return d, ok
}

// List は登録名を登録順で返す
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, k := range r.order {
		names = append(names, r.tools[k].Name)
	}
	return names
}

// Catalog はDescriptorを登録順で返す
func (r *Registry) Catalog() []tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tool.Descriptor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.tools[k])
	}
	return out
}

// Len は登録数を返す
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
