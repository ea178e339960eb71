package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType classifies provider errors for UI handling
type ErrorType string

const (
	ErrorTypeRateLimit          ErrorType = "rate_limit"          // 429 - too many requests
	ErrorTypeInsufficientCredit ErrorType = "insufficient_credit" // 402 - no balance
	ErrorTypeProviderDown       ErrorType = "provider_down"       // 5xx - upstream issue
	ErrorTypeAuth               ErrorType = "auth"                // 401 - bad API key
	ErrorTypeModeration         ErrorType = "moderation"          // 403 - content flagged
	ErrorTypeEmpty              ErrorType = "empty"               // 200 without choices
	ErrorTypeUnknown            ErrorType = "unknown"             // Fallback
)

// ProviderError is a structured error returned by LLM clients
type ProviderError struct {
	Type       ErrorType      // Classification
	Provider   string         // "openrouter", "mock"
	Code       string         // Raw status or error code ("429")
	Message    string         // Human-readable message
	RetryAfter *time.Duration // How long to wait (if known)
	Retryable  bool           // Safe to send again?
}

func (e *ProviderError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Provider, e.Message, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsProviderError checks if err is a ProviderError and returns it
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewProviderError creates a new ProviderError with the given parameters
func NewProviderError(provider string, errType ErrorType, code, message string) *ProviderError {
	return &ProviderError{
		Type:     errType,
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// FromHTTP classifies a non-2xx completion response.
func FromHTTP(provider string, resp *http.Response, body []byte) *ProviderError {
	status := resp.StatusCode
	pe := NewProviderError(provider, classify(status), strconv.Itoa(status), errorMessage(status, body))
	switch pe.Type {
	case ErrorTypeRateLimit, ErrorTypeProviderDown:
		pe.Retryable = true
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			d := time.Duration(secs) * time.Second
			pe.RetryAfter = &d
		}
	}
	return pe
}

func classify(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorTypeAuth
	case status == http.StatusPaymentRequired:
		return ErrorTypeInsufficientCredit
	case status == http.StatusForbidden:
		return ErrorTypeModeration
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status >= 500:
		return ErrorTypeProviderDown
	default:
		return ErrorTypeUnknown
	}
}

// errorMessage prefers the OpenAI-style {"error":{"message":...}} body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		return text
	}
	return http.StatusText(status)
}
