package mockclient

import (
	"context"
	"fmt"
	"html"
	"strings"

	"sitesmith/internal/llm"
	"sitesmith/internal/prompts"
	"sitesmith/internal/state"
)

// Client is a deterministic llm.Client used for tests, CI and offline runs.
// Template questions are answered with "react"; every other request gets a
// small artifact that writes the last user message into the page.
type Client struct {
	template string
}

// New returns a mock client that picks the react template.
func New() *Client {
	return &Client{template: "react"}
}

// WithTemplate returns a mock client that answers template questions with name.
func WithTemplate(name string) *Client {
	return &Client{template: name}
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	response := state.Message{Role: state.RoleAssistant}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == state.RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}

	if isTemplateQuestion(req.Messages) {
		response.Content = c.template
	} else {
		response.Content = artifact(last)
	}

	return llm.ChatResponse{
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				Message:      response,
				FinishReason: "stop",
			},
		},
		Usage: &llm.Usage{
			PromptTokens:     42,
			CompletionTokens: 7,
			TotalTokens:      49,
		},
	}, nil
}

func isTemplateQuestion(msgs []state.Message) bool {
	for _, m := range msgs {
		if m.Role == state.RoleSystem && m.Content == prompts.TemplateQuestion() {
			return true
		}
	}
	return false
}

func artifact(prompt string) string {
	if prompt == "" {
		prompt = "Hello"
	}
	escaped := html.EscapeString(prompt)
	return fmt.Sprintf(`I'll update the page for you.

<boltArtifact id="mock-update" title="Mock update">
<boltAction type="file" filePath="src/App.tsx">
export default function App() {
  return <main className="p-8"><h1>%s</h1></main>;
}
</boltAction>
</boltArtifact>

The page now shows your request.`, escaped)
}
