package intent

import (
	"strings"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

// Unknown はどのツールにも該当しないクエリの番兵ツール名
const Unknown = "unknown"

// Intent はクエリ（またはその断片）から解決された1件のツール呼び出し
type Intent struct {
	Tool        string                 `json:"tool"`
	Params      map[string]interface{} `json:"params"`
	Confidence  float64                `json:"confidence"`
	Explanation string                 `json:"explanation,omitempty"`
}

// NewUnknown は信頼度0のunknownインテントを返す
func NewUnknown(explanation string) Intent {
	return Intent{
		Tool:        Unknown,
		Params:      map[string]interface{}{},
		Confidence:  0.0,
		Explanation: explanation,
	}
}

// IsUnknown は対象ツールがないか判定
func (i Intent) IsUnknown() bool {
	t := strings.TrimSpace(i.Tool)
	return t == "" || strings.EqualFold(t, Unknown)
}

// ClampConfidence は信頼度を[0,1]に丸める
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Result は単一分類の結果
type Result struct {
	Status  tool.Status
	Intent  Intent
	Message string
}

// OK は分類が成功したか判定
func (r Result) OK() bool {
	return r.Status == tool.StatusSuccess
}

// Narration はナレーターに渡す素材
// Results は Tools と同じ順序。Catalog は一般ヘルプ応答時のみ設定
type Narration struct {
	Query   string
	Tools   []string
	Results []tool.Result
	Catalog []tool.Descriptor
}

// NarrationResult はナレーターの応答
type NarrationResult struct {
	Status  tool.Status
	Message string
}

// OK はナレーションがメッセージを生成したか判定
func (r NarrationResult) OK() bool {
	return r.Status == tool.StatusSuccess && strings.TrimSpace(r.Message) != ""
}
