package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sitesmith/internal/llm"
	"sitesmith/internal/state"
)

func TestChatSendsRequestAndDecodesResponse(t *testing.T) {
	var got llm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":" react "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret", 5*time.Second, nil)
	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		Model:    "openai/gpt-4o-mini",
		Messages: []state.Message{state.User("a todo app")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "react" {
		t.Fatalf("text = %q", resp.Text())
	}
	if got.MaxTokens != llm.DefaultMaxTokens {
		t.Fatalf("max tokens = %d", got.MaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "a todo app" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestChatMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Insufficient credits"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", time.Second, nil).Chat(context.Background(), llm.ChatRequest{})
	pe, ok := llm.IsProviderError(err)
	if !ok || pe.Type != llm.ErrorTypeInsufficientCredit || pe.Provider != "openrouter" {
		t.Fatalf("err = %v", err)
	}
}

func TestChatRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", time.Second, nil).Chat(context.Background(), llm.ChatRequest{})
	if pe, ok := llm.IsProviderError(err); !ok || pe.Type != llm.ErrorTypeEmpty {
		t.Fatalf("err = %v", err)
	}
}
