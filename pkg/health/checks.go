package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CheckFunc checks one dependency and returns ok plus a short detail.
type CheckFunc func(ctx context.Context) (bool, string)

// HTTPCheck reports whether url answers 200 within timeout.
func HTTPCheck(url string, timeout time.Duration) CheckFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) (bool, string) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, fmt.Sprintf("bad url: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, fmt.Sprintf("unreachable: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Sprintf("status %d", resp.StatusCode)
		}
		return true, "ok"
	}
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaModelCheck reports whether model is pulled on the Ollama server at
// baseURL. A bare model name matches any tag.
func OllamaModelCheck(baseURL, model string, timeout time.Duration) CheckFunc {
	client := &http.Client{Timeout: timeout}
	tagsURL := strings.TrimSuffix(baseURL, "/") + "/api/tags"

	return func(ctx context.Context) (bool, string) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsURL, nil)
		if err != nil {
			return false, fmt.Sprintf("bad url: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, fmt.Sprintf("unreachable: %v", err)
		}
		defer resp.Body.Close()

		var tags ollamaTagsResponse
		if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
			return false, fmt.Sprintf("decode error: %v", err)
		}

		for _, m := range tags.Models {
			if m.Name == model || strings.SplitN(m.Name, ":", 2)[0] == model {
				return true, fmt.Sprintf("model %s available", model)
			}
		}
		return false, fmt.Sprintf("not pulled: %s", model)
	}
}

// ConfiguredCheck reports a static configuration state, such as whether an
// API key is present.
func ConfiguredCheck(configured bool, missing string) CheckFunc {
	return func(context.Context) (bool, string) {
		if !configured {
			return false, missing
		}
		return true, "configured"
	}
}

// CatalogCheck reports whether at least one tool is registered.
func CatalogCheck(count func() int) CheckFunc {
	return func(context.Context) (bool, string) {
		n := count()
		if n == 0 {
			return false, "no tools registered"
		}
		return true, fmt.Sprintf("%d tools registered", n)
	}
}
