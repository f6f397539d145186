package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Nyukimin/toolrouter/internal/application/dispatch"
	"github.com/Nyukimin/toolrouter/internal/application/orchestrator"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Catalog は tools.list / tools.get が参照するレジストリのビュー
type Catalog interface {
	Get(name string) (tool.Descriptor, bool)
	Catalog() []tool.Descriptor
}

// Executor はツールを1件実行
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]interface{}) tool.Result
}

// QueryProcessor は query.process のクエリ処理を実行
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, req orchestrator.QueryRequest) (dispatch.Response, error)
}

// Server はJSON-RPCサーバー
// processor が nil なら query.process は提供しない
type Server struct {
	catalog   Catalog
	executor  Executor
	processor QueryProcessor
}

// NewServer は新しいServerを作成
func NewServer(catalog Catalog, executor Executor, processor QueryProcessor) *Server {
	if catalog == nil || executor == nil {
		panic("jsonrpc: catalog and executor are required")
	}
	return &Server{catalog: catalog, executor: executor, processor: processor}
}

// ServeHTTP はPOSTされた1リクエストを処理
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error: could not read body"))
		return
	}

	resp := s.Handle(r.Context(), body)
	status := http.StatusOK
	if resp.Error != nil && resp.Error.Code == CodeParseError {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// Handle は生リクエストをデコードして処理
func (s *Server) Handle(ctx context.Context, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(nil, CodeParseError, "Parse error: Invalid JSON was received")
	}
	if req.JSONRPC != Version {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request: Not a valid JSON-RPC 2.0 request")
	}
	if req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request: Method not specified")
	}

	logger.DebugCF("jsonrpc", "rpc.request", map[string]interface{}{"method": req.Method})

	result, rpcErr := s.call(ctx, req)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, fmt.Sprintf("Internal error: %v", err))
	}
	return Response{JSONRPC: Version, Result: raw, ID: req.ID}
}

func (s *Server) call(ctx context.Context, req Request) (result interface{}, rpcErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("jsonrpc", "rpc.panic", map[string]interface{}{
				"method": req.Method,
				"panic":  fmt.Sprint(r),
			})
			result, rpcErr = nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("Internal error: %v", r)}
		}
	}()

	switch req.Method {
	case MethodToolsList:
		return s.listTools(), nil

	case MethodToolsGet:
		var p ToolGetParams
		if err := decodeParams(req.Params, &p); err != nil || p.Name == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: tool name not specified"}
		}
		return s.getTool(p.Name), nil

	case MethodToolsExecute:
		var p ToolExecuteParams
		if err := decodeParams(req.Params, &p); err != nil || p.Tool == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: tool name not specified"}
		}
		if p.Params == nil {
			p.Params = map[string]interface{}{}
		}
		return s.executor.Execute(ctx, p.Tool, p.Params), nil

	case MethodQueryProcess:
		if s.processor == nil {
			break
		}
		var p QueryParams
		if err := decodeParams(req.Params, &p); err != nil || p.Query == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: query not specified"}
		}
		resp, err := s.processor.ProcessQuery(ctx, orchestrator.QueryRequest{Query: p.Query, Context: p.Context})
		if err != nil {
			if errors.Is(err, orchestrator.ErrEmptyQuery) {
				return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: query not specified"}
			}
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("Internal error: %v", err)}
		}
		return resp, nil
	}
	return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)}
}

func (s *Server) listTools() ToolListResult {
	catalog := s.catalog.Catalog()
	out := ToolListResult{Status: string(tool.StatusSuccess), Tools: make([]ToolInfo, 0, len(catalog))}
	for _, d := range catalog {
		out.Tools = append(out.Tools, ToolInfo{Name: d.Name, Description: d.Description, Version: d.Version})
	}
	return out
}

func (s *Server) getTool(name string) ToolGetResult {
	d, ok := s.catalog.Get(name)
	if !ok {
		return ToolGetResult{Status: string(tool.StatusError), Message: fmt.Sprintf("Tool '%s' not found", name)}
	}
	return ToolGetResult{
		Status: string(tool.StatusSuccess),
		Tool: &ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			Version:     d.Version,
			Available:   true,
			Parameters:  d.Parameters,
		},
	}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(raw, v)
}

func errorResponse(id json.RawMessage, code int, msg string) Response {
	return Response{JSONRPC: Version, Error: &Error{Code: code, Message: msg}, ID: id}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("jsonrpc", "rpc.write_failed", map[string]interface{}{"error": err.Error()})
	}
}
