package llm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestFromHTTPClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		want      ErrorType
		retryable bool
		message   string
	}{
		{401, `{"error":{"message":"No auth credentials found"}}`, ErrorTypeAuth, false, "No auth credentials found"},
		{402, `{"error":{"message":"Insufficient credits"}}`, ErrorTypeInsufficientCredit, false, "Insufficient credits"},
		{403, `flagged`, ErrorTypeModeration, false, "flagged"},
		{429, ``, ErrorTypeRateLimit, true, "Too Many Requests"},
		{503, `upstream unavailable`, ErrorTypeProviderDown, true, "upstream unavailable"},
		{400, `{"error":{"message":"bad model"}}`, ErrorTypeUnknown, false, "bad model"},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
		pe := FromHTTP("openrouter", resp, []byte(tt.body))
		if pe.Type != tt.want || pe.Retryable != tt.retryable || pe.Message != tt.message {
			t.Fatalf("status %d: got %+v", tt.status, pe)
		}
	}
}

func TestFromHTTPRetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"7"}}}
	pe := FromHTTP("openrouter", resp, nil)
	if pe.RetryAfter == nil || *pe.RetryAfter != 7*time.Second {
		t.Fatalf("retry after = %v", pe.RetryAfter)
	}
}

func TestIsProviderErrorThroughWrapping(t *testing.T) {
	err := fmt.Errorf("chat: %w", NewProviderError("openrouter", ErrorTypeAuth, "401", "bad key"))
	pe, ok := IsProviderError(err)
	if !ok || pe.Type != ErrorTypeAuth {
		t.Fatalf("got %v, %v", pe, ok)
	}
	if _, ok := IsProviderError(errors.New("plain")); ok {
		t.Fatal("plain error is not a provider error")
	}
}
