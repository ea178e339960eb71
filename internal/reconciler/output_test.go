package reconciler

import (
	"reflect"
	"testing"
)

func TestScrapeURL(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"  ➜  Local:   http://localhost:5173/", "http://localhost:5173/"},
		{"  \x1b[32m➜\x1b[39m  Local: \x1b[36mhttp://localhost:3000/\x1b[39m", "http://localhost:3000/"},
		{"Server listening on http://127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"  ➜  Network: use --host to expose", ""},
		{"see https://vitejs.dev/guide for docs", ""},
		{"compiled successfully", ""},
	}
	for _, tt := range tests {
		if got := scrapeURL(tt.line); got != tt.want {
			t.Fatalf("scrapeURL(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestRingKeepsTail(t *testing.T) {
	r := newRing(3)
	if got := r.snapshot(); len(got) != 0 {
		t.Fatalf("empty ring = %v", got)
	}
	for _, s := range []string{"a", "b"} {
		r.add(s)
	}
	if got := r.snapshot(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("partial ring = %v", got)
	}
	for _, s := range []string{"c", "d", "e"} {
		r.add(s)
	}
	if got := r.snapshot(); !reflect.DeepEqual(got, []string{"c", "d", "e"}) {
		t.Fatalf("full ring = %v", got)
	}
}

func TestMissingManifest(t *testing.T) {
	if !missingManifest("npm ERR! enoent ENOENT: no such file or directory, open '/x/package.json'", "package.json") {
		t.Fatal("expected match")
	}
	if missingManifest("npm ERR! enoent ENOENT: no such file or directory, open '/x/vite.config.ts'", "package.json") {
		t.Fatal("unrelated ENOENT should not match")
	}
}
