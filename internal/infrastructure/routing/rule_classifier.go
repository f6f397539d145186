package routing

import (
	"regexp"
	"strings"

	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools/stock"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools/weather"
)

// RuleConfidence はキーワード一致時の信頼度
const RuleConfidence = 0.7

const unknownExplanation = "Could not determine intent from query"

// joinerPattern は複合クエリを節に分割
var joinerPattern = regexp.MustCompile(`(?i)\s*(?:\bas well as\b|\band\b|\balso\b|\bplus\b|\bboth\b|&)\s*`)

var bareToken = regexp.MustCompile(`^[A-Za-z]+$`)

// Rule は自由文から1ツールを認識するためのルール
type Rule struct {
	Tool        string
	Param       string
	Keywords    []string
	Patterns    []*regexp.Regexp
	BareToken   bool
	Explanation string
}

func (r Rule) matches(lower string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// extract は最初に一致したパターンの第1キャプチャを返す
func (r Rule) extract(clause string) (string, bool) {
	for _, p := range r.Patterns {
		m := p.FindStringSubmatch(clause)
		if len(m) > 1 {
			if v := strings.Trim(m[1], " \t\n,"); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// DefaultRules は天気・株価ルールを優先順で返す
func DefaultRules() []Rule {
	return []Rule{
		{
			Tool:     weather.Name,
			Param:    "location",
			Keywords: []string{"weather", "temperature", "forecast", "raining", "sunny"},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)weather\s+(?:in|at|for)\s+([A-Za-z\s,]+)`),
				regexp.MustCompile(`(?i)weather\s+([A-Za-z\s,]+)`),
				regexp.MustCompile(`(?i)(?:in|at|for)\s+([A-Za-z\s,]+)`),
			},
			Explanation: "Rule-based intent recognition identified weather-related keywords",
		},
		{
			Tool:     stock.Name,
			Param:    "symbol",
			Keywords: []string{"stock", "price", "share", "ticker", "market", "trading"},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)stock\s+(?:price|prices|quote|quotes)?\s+(?:for|of)\s+([A-Za-z\s]+)`),
				regexp.MustCompile(`(?i)([A-Za-z\s]+)\s+stock\s+(?:price|prices|quote|quotes)?`),
				regexp.MustCompile(`(?i)(?:price|prices|quote|quotes)\s+(?:for|of)\s+([A-Za-z\s]+)`),
				regexp.MustCompile(`(?i)(?:ticker|symbol)\s+([A-Za-z\s]+)`),
			},
			BareToken:   true,
			Explanation: "Rule-based intent recognition identified stock-related keywords",
		},
	}
}

// RuleClassifier はキーワード・パターンによるオフライン分類器
// 空スライスは返さない
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier は新しいRuleClassifierを作成（rules が nil なら DefaultRules）
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RuleClassifier{rules: rules}
}

// Classify はクエリを1件以上のインテントに分類
// 複合クエリは先に節へ分割し、各ツールは自分の節から抽出
func (c *RuleClassifier) Classify(query string) []intent.Intent {
	out := make([]intent.Intent, 0, 2)
	seen := make(map[string]bool)
	whole := strings.TrimSpace(query)

	for _, clause := range SplitClauses(query) {
		lower := strings.ToLower(clause)
		for _, r := range c.rules {
			if !r.matches(lower) {
				continue
			}
			params := map[string]interface{}{}
			if v, ok := r.extract(clause); ok {
				params[r.Param] = v
			} else if r.BareToken && bareToken.MatchString(whole) {
				params[r.Param] = whole
			}

			key := r.Tool + "\x00" + paramKey(params[r.Param])
			if seen[key] {
				continue
			}
			seen[key] = true

			out = append(out, intent.Intent{
				Tool:        r.Tool,
				Params:      params,
				Confidence:  RuleConfidence,
				Explanation: r.Explanation,
			})
		}
	}

	if len(out) == 0 {
		return []intent.Intent{intent.NewUnknown(unknownExplanation)}
	}
	return out
}

// MatchedTools はキーワードが含まれるツールをルール順で返す
func (c *RuleClassifier) MatchedTools(query string) []string {
	lower := strings.ToLower(query)
	var names []string
	for _, r := range c.rules {
		if r.matches(lower) {
			names = append(names, r.Tool)
		}
	}
	return names
}

// SplitClauses は接続語でクエリを分割
// 空の節は除外。接続語がなければ1節
func SplitClauses(query string) []string {
	parts := joinerPattern.Split(query, -1)
	clauses := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			clauses = append(clauses, p)
		}
	}
	if len(clauses) == 0 {
		if q := strings.TrimSpace(query); q != "" {
			return []string{q}
		}
		return []string{""}
	}
	return clauses
}

// HasJoiner は空でない2節の間に接続語があるか判定
func HasJoiner(query string) bool {
	return len(SplitClauses(query)) >= 2
}

func paramKey(v interface{}) string {
	s, _ := v.(string)
	return strings.ToLower(s)
}
