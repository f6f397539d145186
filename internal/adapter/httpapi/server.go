package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Nyukimin/toolrouter/internal/application/dispatch"
	"github.com/Nyukimin/toolrouter/internal/application/orchestrator"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/health"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

const (
	maxBodyBytes     = 1 << 20
	defaultSessionID = "http"
)

// Session は1会話
type Session interface {
	ProcessQuery(ctx context.Context, req orchestrator.QueryRequest) (dispatch.Response, error)
	SetNarration(on bool)
	Narration() bool
}

// Sessions はIDごとにセッションを払い出す
type Sessions interface {
	Get(id string) *orchestrator.Orchestrator
	Drop(id string)
}

// Catalog はレジストリのビュー
type Catalog interface {
	Get(name string) (tool.Descriptor, bool)
	Catalog() []tool.Descriptor
	List() []string
}

// Executor はツールを1件実行
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]interface{}) tool.Result
}

// HealthSource はヘルスチェック結果を提供
type HealthSource interface {
	Snapshot() map[string]health.Result
	Healthy() bool
}

// Options はサーバー設定
type Options struct {
	Sessions   Sessions
	Catalog    Catalog
	Executor   Executor
	RPC        http.Handler
	Health     HealthSource
	Classifier bool
}

// Server はHTTPインターフェース
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// NewServer はルーティングを構築してServerを作成
func NewServer(opts Options) *Server {
	if opts.Sessions == nil || opts.Catalog == nil || opts.Executor == nil {
		panic("httpapi: sessions, catalog and executor are required")
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	s.mux.HandleFunc("POST /api/execute", s.handleExecute)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	if opts.RPC != nil {
		s.mux.Handle("POST /api/jsonrpc", opts.RPC)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	logger.DebugCF("httpapi", "http.request", map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// ListenAndServe は ctx 終了まで addr で待ち受け
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("httpapi", "server.listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.InfoCF("httpapi", "server.stopped", map[string]interface{}{"addr": addr})
		return nil
	}
}

type chatRequest struct {
	Query     string                 `json:"query"`
	Context   map[string]interface{} `json:"context,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Enhanced  *bool                  `json:"enhanced,omitempty"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Status: string(tool.StatusError), Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("httpapi", "http.write_failed", map[string]interface{}{"error": err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	id := req.SessionID
	if id == "" {
		id = defaultSessionID
	}
	sess := s.opts.Sessions.Get(id)

	resp, err := sess.ProcessQuery(r.Context(), orchestrator.QueryRequest{
		Query:   req.Query,
		Context: req.Context,
		Narrate: req.Enhanced,
	})
	if err != nil {
		logger.ErrorCF("httpapi", "chat.failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Internal server error: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	catalog := s.opts.Catalog.Catalog()
	infos := make([]toolInfo, 0, len(catalog))
	for _, d := range catalog {
		infos = append(infos, toolInfo{Name: d.Name, Description: d.Description, Version: d.Version})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": string(tool.StatusSuccess),
		"tools":  infos,
	})
}

type executeRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	if strings.TrimSpace(req.Tool) == "" {
		writeError(w, http.StatusBadRequest, "Tool name is required")
		return
	}
	if _, ok := s.opts.Catalog.Get(req.Tool); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Tool '%s' not found", req.Tool))
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Executor.Execute(r.Context(), req.Tool, req.Params))
}

type healthBody struct {
	Status     string                   `json:"status"`
	Agent      string                   `json:"agent"`
	Classifier string                   `json:"llm_tool"`
	Tools      []string                 `json:"direct_tools"`
	Checks     map[string]health.Result `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := healthBody{
		Status:     "healthy",
		Agent:      "healthy",
		Classifier: "unavailable",
		Tools:      s.opts.Catalog.List(),
	}
	if s.opts.Classifier {
		body.Classifier = "healthy"
	}
	if s.opts.Health != nil {
		body.Checks = s.opts.Health.Snapshot()
		if !s.opts.Health.Healthy() {
			body.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}
