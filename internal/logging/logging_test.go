package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStructuredLoggerText(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger(log.New(&buf, "", 0), "reconciler", false).WithSession("0123456789abcdef")
	l.Info("transition", map[string]interface{}{"to": "serving", "from": "starting"})

	got := strings.TrimSpace(buf.String())
	want := "[reconciler] [session:01234567] transition | from=starting to=serving"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestStructuredLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger(log.New(&buf, "", 0), "project", true).WithSession("abc")
	l.Warn("step rejected", map[string]interface{}{"path": "a/b"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Component != "project" || entry.Session != "abc" || entry.Fields["path"] != "a/b" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sitesmith.log")
	l, closer, err := NewFileLogger(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	l.Println("hello")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("log file content = %q", data)
	}
}

func TestHelpersWriteToInstalledLogger(t *testing.T) {
	prev := Shared()
	defer Install(prev)
	defer SetDevMode(false)

	var buf bytes.Buffer
	Install(log.New(&buf, "", 0))
	Install(nil)

	SetDevMode(false)
	DevLog("hidden %d", 1)
	ErrorLog("mount failed: %s", "disk full")
	SetDevMode(true)
	DevLog("shown %d", 2)

	want := "[ERROR] mount failed: disk full\n[DEV] shown 2\n"
	if buf.String() != want {
		t.Fatalf("got %q\nwant %q", buf.String(), want)
	}
}
