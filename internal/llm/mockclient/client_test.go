package mockclient

import (
	"context"
	"strings"
	"testing"

	"sitesmith/internal/llm"
	"sitesmith/internal/prompts"
	"sitesmith/internal/state"
	"sitesmith/internal/steps"
)

func TestTemplateQuestion(t *testing.T) {
	resp, err := WithTemplate("node").Chat(context.Background(), llm.ChatRequest{
		Messages: []state.Message{state.User("an api"), {Role: state.RoleSystem, Content: prompts.TemplateQuestion()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "node" {
		t.Fatalf("template = %q", resp.Text())
	}
}

func TestArtifactEscapesPrompt(t *testing.T) {
	resp, err := New().Chat(context.Background(), llm.ChatRequest{
		Messages: []state.Message{state.User("<b>bold</b>")},
	})
	if err != nil {
		t.Fatal(err)
	}
	list := steps.Parse(resp.Text())
	if len(list) != 1 || list[0].Path != "src/App.tsx" {
		t.Fatalf("steps = %+v", list)
	}
	if !strings.Contains(list[0].Content, "&lt;b&gt;bold&lt;/b&gt;") {
		t.Fatalf("content = %q", list[0].Content)
	}
}
