package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Nyukimin/toolrouter/internal/domain/conversation"
	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/llm"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// DefaultClassifierTimeout は分類・ナレーション1回あたりの上限時間
const DefaultClassifierTimeout = 30 * time.Second

const (
	classifyTemperature = 0.2
	narrateTemperature  = 0.7
	classifyMaxTokens   = 500
	narrateMaxTokens    = 800
)

var errNoJSON = errors.New("no JSON object in classifier response")

// LLMClassifier はLLMベースのインテント分類器（ツール出力の文章化も担当）
type LLMClassifier struct {
	provider llm.LLMProvider
	timeout  time.Duration
}

// NewLLMClassifier は新しいLLMClassifierを作成
// timeout が0以下なら DefaultClassifierTimeout
func NewLLMClassifier(provider llm.LLMProvider, timeout time.Duration) *LLMClassifier {
	if provider == nil {
		panic("routing: NewLLMClassifier called with nil provider")
	}
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	return &LLMClassifier{provider: provider, timeout: timeout}
}

// Name は下位プロバイダー名を返す
func (c *LLMClassifier) Name() string {
	return c.provider.Name()
}

type rawIntent struct {
	Tool        string                 `json:"tool"`
	Params      map[string]interface{} `json:"params"`
	Confidence  float64                `json:"confidence"`
	Explanation string                 `json:"explanation"`
}

// Classify はクエリを単一インテントに分類
// 失敗はすべてエラーのResultで返す
func (c *LLMClassifier) Classify(ctx context.Context, query string, extra map[string]interface{}, catalog []tool.Descriptor) intent.Result {
	catalog = routableTools(catalog)
	content, err := c.generate(ctx, llm.GenerateRequest{
		SystemPrompt: buildClassifySystemPrompt(catalog),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: buildUserMessage(query, extra)}},
		MaxTokens:    classifyMaxTokens,
		Temperature:  classifyTemperature,
	})
	if err != nil {
		logger.WarnCF("routing", "classifier.failed", map[string]interface{}{
			"provider": c.provider.Name(),
			"error":    err.Error(),
		})
		return intent.Result{Status: tool.StatusError, Message: fmt.Sprintf("LLM API request failed: %v", err)}
	}

	var raw rawIntent
	if err := decodeFirstJSON(content, &raw); err != nil {
		logger.WarnCF("routing", "classifier.parse_failed", map[string]interface{}{
			"provider": c.provider.Name(),
			"error":    err.Error(),
		})
		return intent.Result{Status: tool.StatusError, Message: fmt.Sprintf("Error in LLM processing: %v", err)}
	}

	in := normalizeIntent(raw, catalog)
	logger.InfoCF("routing", "classifier.decision", map[string]interface{}{
		"tool":       in.Tool,
		"confidence": in.Confidence,
	})
	return intent.Result{Status: tool.StatusSuccess, Intent: in}
}

// ClassifyMultiple はクエリ内の独立した要求をすべて抽出
// 空スライスは有効な構造なし（失敗はログのみ）
func (c *LLMClassifier) ClassifyMultiple(ctx context.Context, query string, extra map[string]interface{}, catalog []tool.Descriptor) []intent.Intent {
	catalog = routableTools(catalog)
	content, err := c.generate(ctx, llm.GenerateRequest{
		SystemPrompt: buildMultiSystemPrompt(catalog),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: buildUserMessage(query, extra)}},
		MaxTokens:    classifyMaxTokens,
		Temperature:  classifyTemperature,
	})
	if err != nil {
		logger.WarnCF("routing", "classifier.multi_failed", map[string]interface{}{
			"provider": c.provider.Name(),
			"error":    err.Error(),
		})
		return nil
	}

	raws, err := decodeIntentList(content)
	if err != nil {
		logger.WarnCF("routing", "classifier.multi_parse_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	out := make([]intent.Intent, 0, len(raws))
	for _, raw := range raws {
		in := normalizeIntent(raw, catalog)
		if in.IsUnknown() {
			continue
		}
		out = append(out, in)
	}
	return out
}

// Narrate はツール出力を自然文に書き換える
// instruction はシステムプロンプト末尾に付加
func (c *LLMClassifier) Narrate(ctx context.Context, instruction string, n intent.Narration) intent.NarrationResult {
	content, err := c.generate(ctx, llm.GenerateRequest{
		SystemPrompt: narratorSystemPrompt + instruction,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: buildNarrationMessage(n)}},
		MaxTokens:    narrateMaxTokens,
		Temperature:  narrateTemperature,
	})
	if err != nil {
		logger.WarnCF("routing", "narrator.failed", map[string]interface{}{
			"provider": c.provider.Name(),
			"error":    err.Error(),
		})
		return intent.NarrationResult{Status: tool.StatusError, Message: err.Error()}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return intent.NarrationResult{Status: tool.StatusError, Message: "empty narration"}
	}
	return intent.NarrationResult{Status: tool.StatusSuccess, Message: content}
}

func (c *LLMClassifier) generate(ctx context.Context, req llm.GenerateRequest) (content string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	resp, err := c.provider.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// routableTools はカタログから分類器自身のツールを除外
func routableTools(catalog []tool.Descriptor) []tool.Descriptor {
	out := make([]tool.Descriptor, 0, len(catalog))
	for _, d := range catalog {
		if strings.EqualFold(d.Name, QueryToolName) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// normalizeIntent はツール名をカタログ上の表記に揃える
// カタログ外の名前は unknown
func normalizeIntent(raw rawIntent, catalog []tool.Descriptor) intent.Intent {
	in := intent.Intent{
		Tool:        intent.Unknown,
		Params:      raw.Params,
		Confidence:  intent.ClampConfidence(raw.Confidence),
		Explanation: raw.Explanation,
	}
	if in.Params == nil {
		in.Params = map[string]interface{}{}
	}
	for _, d := range catalog {
		if strings.EqualFold(strings.TrimSpace(raw.Tool), d.Name) {
			in.Tool = d.Name
			return in
		}
	}
	return in
}

func decodeFirstJSON(text string, v interface{}) error {
	obj := extractFirstJSONText(text)
	if obj == "" {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("invalid classifier JSON: %w", err)
	}
	return nil
}

func decodeIntentList(text string) ([]rawIntent, error) {
	trimmed := strings.TrimSpace(text)
	obj := strings.Index(trimmed, "{")
	arr := strings.Index(trimmed, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		var list []rawIntent
		if err := json.NewDecoder(strings.NewReader(trimmed[arr:])).Decode(&list); err == nil {
			return list, nil
		}
	}

	var wrapped struct {
		Intents []rawIntent `json:"intents"`
	}
	if err := decodeFirstJSON(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Intents, nil
}

// extractFirstJSONText はテキスト中の最初の {...} ブロックを抽出
// JSON文字列内の括弧は無視
func extractFirstJSONText(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}

func buildUserMessage(query string, extra map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("User query: ")
	b.WriteString(query)
	if len(extra) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("\n\nAdditional context:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, formatContextValue(extra[k]))
	}
	return b.String()
}

func formatContextValue(v interface{}) string {
	switch x := v.(type) {
	case []conversation.Turn:
		parts := make([]string, 0, len(x))
		for _, t := range x {
			parts = append(parts, fmt.Sprintf("%s: %s", t.Role, t.Content))
		}
		return strings.Join(parts, " | ")
	case string:
		return x
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}
