// Package stock は Alpha Vantage の株価ツール
package stock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

const (
	Name           = "StockPriceTool"
	defaultBaseURL = "https://www.alphavantage.co/query"
)

var companyTickers = map[string]string{
	"citi":             "C",
	"citigroup":        "C",
	"citibank":         "C",
	"bofa":             "BAC",
	"bank of america":  "BAC",
	"jpmorgan":         "JPM",
	"jp morgan":        "JPM",
	"wells fargo":      "WFC",
	"goldman":          "GS",
	"goldman sachs":    "GS",
	"apple":            "AAPL",
	"microsoft":        "MSFT",
	"google":           "GOOGL",
	"alphabet":         "GOOGL",
	"amazon":           "AMZN",
	"facebook":         "META",
	"meta":             "META",
	"netflix":          "NFLX",
	"tesla":            "TSLA",
	"nvidia":           "NVDA",
	"ibm":              "IBM",
	"intel":            "INTC",
	"amd":              "AMD",
	"oracle":           "ORCL",
	"salesforce":       "CRM",
	"walmart":          "WMT",
	"disney":           "DIS",
	"coca cola":        "KO",
	"coke":             "KO",
	"pepsi":            "PEP",
	"pepsico":          "PEP",
	"mcdonald's":       "MCD",
	"mcdonalds":        "MCD",
	"starbucks":        "SBUX",
	"nike":             "NKE",
	"boeing":           "BA",
	"ge":               "GE",
	"general electric": "GE",
	"ford":             "F",
	"gm":               "GM",
	"general motors":   "GM",
}

// quoteFields は結果キーと GLOBAL_QUOTE のキーの対応
var quoteFields = []struct {
	key  string
	path string
}{
	{"symbol", `Global Quote.01\. symbol`},
	{"open", `Global Quote.02\. open`},
	{"high", `Global Quote.03\. high`},
	{"low", `Global Quote.04\. low`},
	{"price", `Global Quote.05\. price`},
	{"volume", `Global Quote.06\. volume`},
	{"latest_trading_day", `Global Quote.07\. latest trading day`},
	{"previous_close", `Global Quote.08\. previous close`},
	{"change", `Global Quote.09\. change`},
	{"change_percent", `Global Quote.10\. change percent`},
}

// Args は公開スキーマ用のパラメータ定義
type Args struct {
	Symbol string `json:"symbol" jsonschema:"description=Ticker symbol or company name"`
}

// Tool は株価を取得するツール
type Tool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New は新しい株価ツールを作成
func New(apiKey string) *Tool {
	return &Tool{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL はAPIエンドポイントを上書き（テスト用）
func (t *Tool) SetBaseURL(u string) {
	t.baseURL = u
}

func (t *Tool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        Name,
		Description: "Get current stock price information for a symbol",
		Version:     "1.0.0",
		Parameters:  tools.Schema(&Args{}),
	}
}

func (t *Tool) Params() []tool.Param {
	return []tool.Param{
		{Name: "symbol", Aliases: []string{"ticker"}, Required: true, Description: "Ticker symbol or company name"},
	}
}

// Execute は params["symbol"] の株価を取得
func (t *Tool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	if t.apiKey == "" {
		return tool.Failure("API key not configured. Please set ALPHAVANTAGE_API_KEY environment variable.")
	}

	symbol := strings.TrimSpace(fmt.Sprint(params["symbol"]))
	ticker := TickerFor(symbol)
	if ticker == "" {
		return tool.Failure("Please provide a valid company name or stock symbol.")
	}

	logger.InfoCF("stock", "stock.lookup", map[string]interface{}{
		"ticker": ticker,
		"query":  symbol,
	})

	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", ticker)
	q.Set("apikey", t.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return tool.Failure("API request failed: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		logger.ErrorCF("stock", "stock.request_failed", map[string]interface{}{"error": err.Error()})
		return tool.Failure("API request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tool.Failure("API request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tool.Failure("API request failed: status=%d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return tool.Failure("Error processing data: invalid JSON response")
	}

	doc := gjson.ParseBytes(body)
	notFound := fmt.Sprintf("No data found for '%s' (ticker: %s). Please check if the company name or symbol is correct.", symbol, ticker)

	quote := doc.Get("Global Quote")
	if !quote.Exists() || len(quote.Map()) == 0 {
		if note := doc.Get("Note"); note.Exists() {
			return tool.Failure("%s", note.String())
		}
		return tool.Failure("%s", notFound)
	}
	if doc.Get(quoteFields[0].path).String() == "" {
		return tool.Failure("%s", notFound)
	}

	data := make(map[string]interface{}, len(quoteFields)+1)
	for _, f := range quoteFields {
		v := doc.Get(f.path)
		if !v.Exists() {
			data[f.key] = "N/A"
			continue
		}
		data[f.key] = v.String()
	}
	if ticker != symbol {
		data["original_query"] = symbol
	}
	return tool.Success(data, "")
}

// Format はユーザー向けの株価要約を返す
func (t *Tool) Format(data map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock information for %v:\n", data["symbol"])
	fmt.Fprintf(&b, "Current price: $%v\n", data["price"])
	fmt.Fprintf(&b, "Change: %v (%v)\n", data["change"], data["change_percent"])
	fmt.Fprintf(&b, "Volume: %v\n", data["volume"])
	fmt.Fprintf(&b, "Day's range: $%v - $%v\n", data["low"], data["high"])
	fmt.Fprintf(&b, "Latest trading day: %v", data["latest_trading_day"])
	return b.String()
}

// TickerFor は会社名をティッカーに変換
// 5文字以下の大文字入力は既知の会社名でなければそのまま、未知の入力は大文字化
func TickerFor(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if isUpper(s) && len(s) <= 5 {
		if t, ok := companyTickers[lower]; ok {
			return t
		}
		return s
	}
	if t, ok := companyTickers[lower]; ok {
		return t
	}
	return strings.ToUpper(s)
}

func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
