package tool

import (
	"context"
	"fmt"
	"strings"
)

// Status はツール実行の結果ステータス
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Descriptor はレジストリに登録するツールのメタデータ
// 名前は大文字小文字を区別せず一意
type Descriptor struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Version     string                 `json:"version" yaml:"version"`
	Parameters  map[string]interface{} `json:"parameters,omitempty" yaml:"-"`
}

// Key は検索用に正規化した名前を返す
func (d Descriptor) Key() string {
	return NormalizeName(d.Name)
}

// NormalizeName は大文字小文字を無視した比較用にツール名を正規化
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Param はツールの入力パラメータ定義
type Param struct {
	Name        string
	Aliases     []string
	Required    bool
	Default     interface{}
	Description string
}

// Result はツール実行結果
// 成功時は Data を設定。Message はエラー文または人向けの要約
type Result struct {
	Status  Status                 `json:"status"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// Success は成功結果を作成
func Success(data map[string]interface{}, message string) Result {
	return Result{Status: StatusSuccess, Data: data, Message: message}
}

// Failure はエラー結果を作成
func Failure(format string, args ...interface{}) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// OK は成功か判定
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Executor は汎用の実行インターフェース（パラメータは未検証のまま渡る）
type Executor interface {
	Execute(ctx context.Context, params map[string]interface{}) Result
}

// Tool はパラメータ定義を持つツール
// Execute 呼び出し前に Invoker が必須チェックとエイリアス解決を行う
type Tool interface {
	Executor
	Descriptor() Descriptor
	Params() []Param
}

// Formatter はメッセージのない成功結果に要約を付けるツールが実装
type Formatter interface {
	Format(data map[string]interface{}) string
}
