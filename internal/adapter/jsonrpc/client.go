package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

// Client はリモートtoolrouterのJSON-RPCクライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient は新しいClientを作成（baseURL は scheme://host:port）
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL はサーバーアドレスを返す
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListTools はリモートのカタログを取得
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result ToolListResult
	if err := c.call(ctx, MethodToolsList, map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// GetTool はリモートのDescriptorを1件取得
func (c *Client) GetTool(ctx context.Context, name string) (ToolGetResult, error) {
	var result ToolGetResult
	err := c.call(ctx, MethodToolsGet, ToolGetParams{Name: name}, &result)
	return result, err
}

// ExecuteTool はリモートでツールを実行
func (c *Client) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (tool.Result, error) {
	var result tool.Result
	err := c.call(ctx, MethodToolsExecute, ToolExecuteParams{Tool: name, Params: params}, &result)
	return result, err
}

// ProcessQuery はリモートでクエリを処理
func (c *Client) ProcessQuery(ctx context.Context, query string, extra map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := c.call(ctx, MethodQueryProcess, QueryParams{Query: query, Context: extra}, &result)
	return result, err
}

// call はリクエストを送信し結果を out にデコード
// プロトコルエラーは *Error で返す
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	id, _ := json.Marshal(c.nextID.Add(1))
	body, err := json.Marshal(Request{JSONRPC: Version, Method: method, Params: rawParams, ID: id})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("unmarshal response (http status %d): %w", httpResp.StatusCode, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// Ping はリモートのヘルスエンドポイントを確認
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", httpResp.StatusCode)
	}
	return nil
}
