package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorString string
	}{
		{
			name:       "defaults pass",
			modifyFunc: func(c *Config) {},
		},
		{
			name: "negative temperature fails",
			modifyFunc: func(c *Config) {
				c.Temperature = -0.5
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "temperature > 2.0 fails",
			modifyFunc: func(c *Config) {
				c.Temperature = 3.0
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "request timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.RequestTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
		{
			name: "ready timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.ReadyTimeoutSeconds = 601
			},
			expectError: true,
			errorString: "ready_timeout_seconds cannot exceed",
		},
		{
			name: "blank install command fails",
			modifyFunc: func(c *Config) {
				c.InstallCommand = "   "
			},
			expectError: true,
			errorString: "install_command must not be empty",
		},
		{
			name: "unterminated quote in start command fails",
			modifyFunc: func(c *Config) {
				c.StartCommand = `npm run "dev`
			},
			expectError: true,
			errorString: "start_command",
		},
		{
			name: "relative default url fails",
			modifyFunc: func(c *Config) {
				c.DefaultURL = "localhost"
			},
			expectError: true,
			errorString: "default_url",
		},
		{
			name: "manifest in subdirectory fails",
			modifyFunc: func(c *Config) {
				c.ManifestFile = "app/package.json"
			},
			expectError: true,
			errorString: "manifest_file",
		},
		{
			name: "bad ready port fails",
			modifyFunc: func(c *Config) {
				c.ReadyPorts = []int{5173, 70000}
			},
			expectError: true,
			errorString: "ready_ports",
		},
		{
			name: "unknown provider fails",
			modifyFunc: func(c *Config) {
				c.Provider = "zai"
			},
			expectError: true,
			errorString: "provider must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(&cfg)
			err := cfg.validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Expected error containing %q, got %q", tt.errorString, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("SITESMITH_CONFIG_DIR", "/cfg")
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.InstallCommand != "npm install" || cfg.StartCommand != "npm run dev" {
		t.Fatalf("commands = %q / %q", cfg.InstallCommand, cfg.StartCommand)
	}
	if cfg.ManifestFile != "package.json" || cfg.ReadyTimeoutSeconds != 30 {
		t.Fatalf("manifest = %q, ready timeout = %d", cfg.ManifestFile, cfg.ReadyTimeoutSeconds)
	}
	if cfg.DefaultURL != "http://localhost:5173" {
		t.Fatalf("default url = %q", cfg.DefaultURL)
	}
	if !reflect.DeepEqual(cfg.ReadyPorts, []int{5173, 3000}) {
		t.Fatalf("ready ports = %v", cfg.ReadyPorts)
	}
	if cfg.MaxTokens != 1000 {
		t.Fatalf("max tokens = %d", cfg.MaxTokens)
	}
	if cfg.JournalPath != filepath.Join("/cfg", "journal.db") {
		t.Fatalf("journal path = %q", cfg.JournalPath)
	}
	if cfg.Provider != ProviderOpenRouter || cfg.Model != DefaultOpenRouterModel {
		t.Fatalf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
}

func TestCommandArgs(t *testing.T) {
	cfg := validConfig()
	cfg.StartCommand = `npm run dev -- --host "0.0.0.0"`

	install, err := cfg.InstallArgs()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(install, []string{"npm", "install"}) {
		t.Fatalf("install args = %q", install)
	}
	start, err := cfg.StartArgs()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"npm", "run", "dev", "--", "--host", "0.0.0.0"}
	if !reflect.DeepEqual(start, want) {
		t.Fatalf("start args = %q, want %q", start, want)
	}
}

func TestEnsureDefaultConfigByProvider(t *testing.T) {
	tests := []struct {
		provider      string
		expectedModel string
		expectedName  string
	}{
		{provider: "openrouter", expectedModel: DefaultOpenRouterModel, expectedName: ProviderOpenRouter},
		{provider: "mock", expectedModel: DefaultMockModel, expectedName: ProviderMock},
		{provider: "unknown", expectedModel: DefaultOpenRouterModel, expectedName: ProviderOpenRouter},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			configDir := filepath.Join(t.TempDir(), ".sitesmith")
			t.Setenv("SITESMITH_CONFIG_DIR", configDir)
			t.Setenv("SITESMITH_CONFIG_PATH", "")
			configPath := filepath.Join(configDir, "config.yaml")

			if err := EnsureDefaultConfig(tt.provider); err != nil {
				t.Fatalf("EnsureDefaultConfig failed: %v", err)
			}
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				t.Fatalf("Config file was not created: %s", configPath)
			}

			cfg, err := LoadUserConfig()
			if err != nil {
				t.Fatalf("LoadUserConfig failed: %v", err)
			}
			if cfg.Model != tt.expectedModel {
				t.Errorf("Expected Model %q, got %q", tt.expectedModel, cfg.Model)
			}
			if cfg.Provider != tt.expectedName {
				t.Errorf("Expected Provider %q, got %q", tt.expectedName, cfg.Provider)
			}
		})
	}
}

func TestEnsureDefaultConfigKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv("SITESMITH_CONFIG_PATH", path)
	if err := os.WriteFile(path, []byte("model: my/model\nstart_command: pnpm dev\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDefaultConfig("mock"); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadUserConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "my/model" || cfg.StartCommand != "pnpm dev" {
		t.Fatalf("existing config overwritten: %+v", cfg)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ready_timeout_seconds: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ready_timeout_seconds") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadUserConfigMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("SITESMITH_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := LoadUserConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StartCommand != DefaultStartCommand {
		t.Fatalf("start command = %q", cfg.StartCommand)
	}
}

func TestOverrideWorkspaceRootRebasesPaths(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	cfg := validConfig()
	cfg.WorkspaceRoot = oldRoot
	cfg.JournalPath = filepath.Join(oldRoot, "journal.db")
	cfg.HistoryPath = "/elsewhere/.history"

	cfg.OverrideWorkspaceRoot(newRoot)

	if cfg.JournalPath != filepath.Join(newRoot, "journal.db") {
		t.Fatalf("journal path = %q", cfg.JournalPath)
	}
	if cfg.HistoryPath != "/elsewhere/.history" {
		t.Fatalf("history path outside the root moved: %q", cfg.HistoryPath)
	}
}
