package jsonrpc

import (
	"context"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// Installer はDescriptorとExecutorを登録
type Installer interface {
	RegisterExecutor(d tool.Descriptor, e tool.Executor) error
}

// RemoteTool は実行をリモートサーバーへ転送
// パラメータは検証せずに渡す（リモート側で検証）
type RemoteTool struct {
	client *Client
	name   string
}

// NewRemoteTool は新しいRemoteToolを作成
func NewRemoteTool(client *Client, name string) *RemoteTool {
	return &RemoteTool{client: client, name: name}
}

func (t *RemoteTool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	res, err := t.client.ExecuteTool(ctx, t.name, params)
	if err != nil {
		return tool.Failure("Error communicating with remote tool server: %v", err)
	}
	if res.Status == "" {
		return tool.Failure("Remote tool '%s' returned no status", t.name)
	}
	return res
}

// DiscoverRemote はリモートのカタログを取得し、ローカルで未使用の名前のツールを登録
// 登録した名前を返す
func DiscoverRemote(ctx context.Context, client *Client, inst Installer) ([]string, error) {
	infos, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	var installed []string
	for _, info := range infos {
		d := tool.Descriptor{Name: info.Name, Description: info.Description, Version: info.Version}
		if err := inst.RegisterExecutor(d, NewRemoteTool(client, info.Name)); err != nil {
			logger.DebugCF("jsonrpc", "remote.skipped", map[string]interface{}{
				"tool":  info.Name,
				"error": err.Error(),
			})
			continue
		}
		installed = append(installed, info.Name)
	}

	logger.InfoCF("jsonrpc", "remote.discovered", map[string]interface{}{
		"server":    client.BaseURL(),
		"installed": len(installed),
		"offered":   len(infos),
	})
	return installed, nil
}
