package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sitesmith/internal/journal"
)

const savedResponse = `Creating files.
<boltArtifact id="a" title="A">
<boltAction type="file" filePath="index.html"><title>x</title></boltAction>
<boltAction type="file" filePath="index.html/oops">bad</boltAction>
<boltAction type="shell">npm run dev</boltAction>
</boltArtifact>`

func TestParseCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	if err := os.WriteFile(path, []byte(savedResponse), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"parse", path})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"[x] 1. Create index.html", "[x] 3. Run command `npm run dev`", "Rejected steps", `"index.html": {`} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestResolveSession(t *testing.T) {
	sessions := []journal.Summary{{Session: "abc-1"}, {Session: "abd-2"}, {Session: "xyz"}}
	tests := []struct {
		want    string
		id      string
		wantErr bool
	}{
		{want: "xyz", id: "xyz"},
		{want: "abc", id: "abc-1"},
		{want: "ab", wantErr: true},
		{want: "q", wantErr: true},
	}
	for _, tt := range tests {
		id, err := resolveSession(sessions, tt.want)
		if (err != nil) != tt.wantErr || id != tt.id {
			t.Fatalf("resolveSession(%q) = %q, %v", tt.want, id, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("a  todo\napp", 50); got != "a todo app" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "sitesmith version dev\n" {
		t.Fatalf("output = %q", out.String())
	}
}
