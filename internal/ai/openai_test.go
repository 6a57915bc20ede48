package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIComplete_ParsesUsage(t *testing.T) {
	var gotReq openAIChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     12,
				"completion_tokens": 7,
				"total_tokens":      19,
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key", "test-model", 256, 0.5)
	comp, err := p.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if comp.Text != "hello there" {
		t.Fatalf("unexpected text: %q", comp.Text)
	}
	if comp.PromptTokens != 12 || comp.CompletionTokens != 7 || comp.TotalTokens != 19 {
		t.Fatalf("unexpected usage: %+v", comp)
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 256 {
		t.Fatalf("unexpected outbound request: %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("expected 2 outbound messages, got %d", len(gotReq.Messages))
	}
}

func TestOpenAIComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key", "test-model", 0, 0.7)
	_, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Status != http.StatusTooManyRequests {
		t.Fatalf("expected upstream status 429, got %d", pe.Status)
	}
}

func TestOpenAIComplete_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key", "test-model", 0, 0.7)
	_, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError for empty completion, got %v", err)
	}
	if pe.Status != 0 {
		t.Fatalf("expected no upstream status, got %d", pe.Status)
	}
}

func TestOpenAIComplete_MissingAPIKey(t *testing.T) {
	p := NewOpenAIProvider("http://localhost:0", "", "test-model", 0, 0.7)
	if _, err := p.Complete(context.Background(), nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
