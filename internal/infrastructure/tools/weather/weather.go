// Package weather は OpenWeatherMap の現在天気ツール
package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/tools"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

const (
	Name           = "WeatherTool"
	defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
)

var cityCorrections = map[string]string{
	"newyork": "New York",
	"nyc":     "New York",
	"sf":      "San Francisco",
	"la":      "Los Angeles",
	"vegas":   "Las Vegas",
	"dc":      "Washington DC",
}

// Args は公開スキーマ用のパラメータ定義
type Args struct {
	Location string `json:"location" jsonschema:"description=City name or city and country code"`
	Units    string `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial,default=metric"`
}

// Tool は都市の現在天気を取得するツール
type Tool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New は新しい天気ツールを作成
// apiKey が空でも登録はされるが、呼び出しは設定エラーになる
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
		Description: "Get current weather information for a location",
		Version:     "1.0.0",
		Parameters:  tools.Schema(&Args{}),
	}
}

func (t *Tool) Params() []tool.Param {
	return []tool.Param{
		{Name: "location", Aliases: []string{"city"}, Required: true, Description: "City name"},
		{Name: "units", Default: "metric", Description: "metric or imperial"},
	}
}

// Execute は params["location"] の天気を取得
func (t *Tool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	if t.apiKey == "" {
		return tool.Failure("API key not configured. Please set OPENWEATHERMAP_API_KEY environment variable.")
	}

	location := fmt.Sprint(params["location"])
	units := strings.ToLower(fmt.Sprint(params["units"]))
	if units != "imperial" {
		units = "metric"
	}
	query := NormalizeLocation(location)

	logger.InfoCF("weather", "weather.lookup", map[string]interface{}{
		"location": query,
		"original": location,
	})

	q := url.Values{}
	q.Set("q", query)
	q.Set("appid", t.apiKey)
	q.Set("units", units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return tool.Failure("API request failed: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		logger.ErrorCF("weather", "weather.request_failed", map[string]interface{}{"error": err.Error()})
		return tool.Failure("API request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.WarnCF("weather", "weather.city_not_found", map[string]interface{}{"location": query})
		return tool.Failure("Could not find weather data for '%s'. Please check the spelling or try a different city.", location)
	}
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
	for _, path := range []string{"name", "main.temp", "weather.0.description"} {
		if !doc.Get(path).Exists() {
			return tool.Failure("Error processing data: missing field %q", path)
		}
	}

	return tool.Success(map[string]interface{}{
		"location":            doc.Get("name").String(),
		"country":             doc.Get("sys.country").String(),
		"weather_description": doc.Get("weather.0.description").String(),
		"temperature":         doc.Get("main.temp").Float(),
		"feels_like":          doc.Get("main.feels_like").Float(),
		"humidity":            doc.Get("main.humidity").Int(),
		"wind_speed":          doc.Get("wind.speed").Float(),
		"timestamp":           doc.Get("dt").Int(),
		"units":               units,
	}, "")
}

// Format はユーザー向けの天気要約を返す
func (t *Tool) Format(data map[string]interface{}) string {
	tempUnit, windUnit := "C", "m/s"
	if data["units"] == "imperial" {
		tempUnit, windUnit = "F", "mph"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Weather in %v (%v):\n", data["location"], data["country"])
	fmt.Fprintf(&b, "Temperature: %v°%s\n", data["temperature"], tempUnit)
	fmt.Fprintf(&b, "Feels like: %v°%s\n", data["feels_like"], tempUnit)
	fmt.Fprintf(&b, "Condition: %v\n", data["weather_description"])
	fmt.Fprintf(&b, "Humidity: %v%%\n", data["humidity"])
	fmt.Fprintf(&b, "Wind speed: %v %s", data["wind_speed"], windUnit)
	return b.String()
}

// NormalizeLocation はよくある都市名を補正し、それ以外は先頭大文字化
func NormalizeLocation(location string) string {
	trimmed := strings.TrimSpace(location)
	if trimmed == "" {
		return trimmed
	}
	lower := strings.ToLower(trimmed)
	if c, ok := cityCorrections[lower]; ok {
		return c
	}
	if c, ok := cityCorrections[strings.ReplaceAll(lower, " ", "")]; ok {
		return c
	}
	words := strings.Fields(lower)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
