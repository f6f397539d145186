package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nyukimin/toolrouter/internal/domain/llm"
)

func TestNewOllamaProvider(t *testing.T) {
	provider := NewOllamaProvider("", "test-model")

	if provider.Name() != "ollama-test-model" {
		t.Errorf("Expected name 'ollama-test-model', got '%s'", provider.Name())
	}
	if provider.baseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL, got '%s'", provider.baseURL)
	}
}

func TestOllamaProviderGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected path '/api/chat', got '%s'", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got '%s'", r.Method)
		}

		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("stream should be false")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("Expected system + user messages, got %+v", req.Messages)
		}
		if req.Options["temperature"] != 0.2 {
			t.Errorf("Expected temperature 0.2, got %v", req.Options["temperature"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message":           map[string]interface{}{"role": "assistant", "content": `{"tool":"unknown"}`},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 20,
			"eval_count":        6,
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL+"/", "test-model")

	resp, err := provider.Generate(context.Background(), llm.GenerateRequest{
		SystemPrompt: "classify",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content != `{"tool":"unknown"}` {
		t.Errorf("unexpected content '%s'", resp.Content)
	}
	if resp.TokensUsed != 26 {
		t.Errorf("Expected 26 tokens, got %d", resp.TokensUsed)
	}
}

func TestOllamaProviderGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model not loaded"))
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "test-model")

	_, err := provider.Generate(context.Background(), llm.GenerateRequest{})
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
}

func TestOllamaProviderGenerate_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "test-model")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := provider.Generate(ctx, llm.GenerateRequest{})
	if err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestOllamaProviderGenerate_NoModel(t *testing.T) {
	_, err := NewOllamaProvider("", "").Generate(context.Background(), llm.GenerateRequest{})
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
}
