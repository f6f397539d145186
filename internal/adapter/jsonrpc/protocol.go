package jsonrpc

import "encoding/json"

// Version は受け付けるプロトコルバージョン
const Version = "2.0"

// 標準エラーコード
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// メソッド名
const (
	MethodToolsList    = "tools.list"
	MethodToolsGet     = "tools.get"
	MethodToolsExecute = "tools.execute"
	MethodQueryProcess = "query.process"
)

// Request はJSON-RPC 2.0リクエスト
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response はJSON-RPC 2.0レスポンス（ID が nil なら null）
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error はレスポンスのエラー
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ToolInfo は tools.list / tools.get が返すカタログ項目
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Version     string                 `json:"version"`
	Available   bool                   `json:"available,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolListResult は tools.list の結果
type ToolListResult struct {
	Status string     `json:"status"`
	Tools  []ToolInfo `json:"tools"`
}

// ToolGetParams は tools.get のパラメータ
type ToolGetParams struct {
	Name string `json:"name"`
}

// ToolGetResult は tools.get の結果
type ToolGetResult struct {
	Status  string    `json:"status"`
	Tool    *ToolInfo `json:"tool,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ToolExecuteParams は tools.execute のパラメータ
type ToolExecuteParams struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// QueryParams は query.process のパラメータ
type QueryParams struct {
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context,omitempty"`
}
