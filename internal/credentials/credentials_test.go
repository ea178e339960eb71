package credentials

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")
	m := NewManagerAt(path)
	if m.Exists() {
		t.Fatal("fresh manager should not report an existing file")
	}

	creds, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	creds.SetProvider("openrouter", "sk-or-123")
	creds.DefaultProvider = "openrouter"
	if err := m.Save(creds); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("perm = %v", info.Mode().Perm())
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAPIKey, "")
	if loaded.GetAPIKey("openrouter") != "sk-or-123" || loaded.DefaultProvider != "openrouter" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestEnvironmentKeyWins(t *testing.T) {
	creds := &Credentials{}
	creds.SetProvider("openrouter", "sk-stored")
	t.Setenv(EnvAPIKey, "sk-env")
	if got := creds.GetAPIKey("openrouter"); got != "sk-env" {
		t.Fatalf("key = %q", got)
	}
	if !(*Credentials)(nil).IsConfigured("openrouter") {
		t.Fatal("env key should configure even without a file")
	}
}

func TestRemoveProviderClearsDefault(t *testing.T) {
	creds := &Credentials{DefaultProvider: "openrouter"}
	creds.SetProvider("openrouter", "sk-1")
	creds.RemoveProvider("openrouter")
	if creds.DefaultProvider != "" || len(creds.ListProviders()) != 0 {
		t.Fatalf("creds = %+v", creds)
	}
}

func TestOnboardStoresKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	m := NewManagerAt(filepath.Join(t.TempDir(), "credentials.yaml"))
	var out bytes.Buffer
	in := strings.NewReader("\nnot-a-key\nn\nsk-or-good\n")

	creds, err := Onboard(m, NewPrompter(in, &out))
	if err != nil {
		t.Fatal(err)
	}
	if creds.GetAPIKey("openrouter") != "sk-or-good" {
		t.Fatalf("key = %q", creds.GetAPIKey("openrouter"))
	}
	if !strings.Contains(out.String(), "cannot be empty") || !strings.Contains(out.String(), "doesn't look valid") {
		t.Fatalf("output = %q", out.String())
	}
	if !m.Exists() {
		t.Fatal("credentials not written")
	}
}

func TestOnboardGivesUp(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "credentials.yaml"))
	if _, err := Onboard(m, NewPrompter(strings.NewReader(""), &bytes.Buffer{})); err == nil {
		t.Fatal("expected an error with no input")
	}
}
