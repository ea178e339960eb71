package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// Provider and model defaults.
const (
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"

	DefaultOpenRouterModel = "openai/gpt-4o-mini"
	DefaultMockModel       = "mock-model"
	DefaultBaseURL         = "https://openrouter.ai/api/v1"
)

// Sandbox defaults.
const (
	DefaultInstallCommand = "npm install"
	DefaultStartCommand   = "npm run dev"
	DefaultManifestFile   = "package.json"
	DefaultReadyTimeout   = 30
	DefaultPreviewURL     = "http://localhost:5173"
	DefaultMaxTokens      = 1000
	DefaultLogMaxSizeMB   = 10
)

const maxTimeoutSeconds = 600

// Config captures the tunable runtime settings for a build session.
type Config struct {
	Provider              string  `yaml:"provider"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	Instructions          string  `yaml:"instructions,omitempty"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	WorkspaceRoot         string  `yaml:"workspace_root"`
	InstallCommand        string  `yaml:"install_command"`
	StartCommand          string  `yaml:"start_command"`
	ManifestFile          string  `yaml:"manifest_file"`
	ReadyTimeoutSeconds   int     `yaml:"ready_timeout_seconds"`
	DefaultURL            string  `yaml:"default_url"`
	ReadyPorts            []int   `yaml:"ready_ports,flow"`
	JournalPath           string  `yaml:"journal_path"`
	HistoryPath           string  `yaml:"history_path"`
	LogPath               string  `yaml:"log_path,omitempty"`
	LogMaxSizeMB          int     `yaml:"log_max_size_mb"`
	MetricsAddr           string  `yaml:"metrics_addr,omitempty"`
}

// EnsureDefaultConfig writes a default config for provider when none exists yet.
func EnsureDefaultConfig(provider string) error {
	configPath := Path()
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	cfg := Config{Provider: strings.ToLower(strings.TrimSpace(provider))}
	switch cfg.Provider {
	case ProviderMock:
		cfg.Model = DefaultMockModel
	default:
		cfg.Provider = ProviderOpenRouter
		cfg.Model = DefaultOpenRouterModel
	}
	cfg.applyDefaults()
	return Save(cfg)
}

// Path returns the location of the user config file.
// SITESMITH_CONFIG_PATH takes precedence over the config directory.
func Path() string {
	if p := os.Getenv("SITESMITH_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// LoadUserConfig loads configuration from ~/.sitesmith/config.yaml.
// If the file doesn't exist, returns defaults
func LoadUserConfig() (Config, error) {
	configPath := Path()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	return Load(configPath)
}

// Load reads the YAML configuration from disk and injects defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenRouter
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(c.Model) == "" {
		if c.Provider == ProviderMock {
			c.Model = DefaultMockModel
		} else {
			c.Model = DefaultOpenRouterModel
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 90
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = filepath.Join(GetConfigDir(), "workspaces")
	}
	if strings.TrimSpace(c.InstallCommand) == "" {
		c.InstallCommand = DefaultInstallCommand
	}
	if strings.TrimSpace(c.StartCommand) == "" {
		c.StartCommand = DefaultStartCommand
	}
	if strings.TrimSpace(c.ManifestFile) == "" {
		c.ManifestFile = DefaultManifestFile
	}
	if c.ReadyTimeoutSeconds <= 0 {
		c.ReadyTimeoutSeconds = DefaultReadyTimeout
	}
	if c.DefaultURL == "" {
		c.DefaultURL = DefaultPreviewURL
	}
	if len(c.ReadyPorts) == 0 {
		c.ReadyPorts = []int{5173, 3000}
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(GetConfigDir(), "journal.db")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(GetConfigDir(), ".sitesmith_history")
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = DefaultLogMaxSizeMB
	}
}

func (c Config) validate() error {
	if c.Provider != ProviderOpenRouter && c.Provider != ProviderMock {
		return fmt.Errorf("provider must be %q or %q (got %q)", ProviderOpenRouter, ProviderMock, c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if c.RequestTimeoutSeconds > maxTimeoutSeconds {
		return fmt.Errorf("request_timeout_seconds cannot exceed %d (10 minutes)", maxTimeoutSeconds)
	}
	if c.ReadyTimeoutSeconds > maxTimeoutSeconds {
		return fmt.Errorf("ready_timeout_seconds cannot exceed %d (10 minutes)", maxTimeoutSeconds)
	}
	if _, err := splitCommand("install_command", c.InstallCommand); err != nil {
		return err
	}
	if _, err := splitCommand("start_command", c.StartCommand); err != nil {
		return err
	}
	if strings.ContainsAny(c.ManifestFile, `/\`) {
		return fmt.Errorf("manifest_file must be a file name at the project root (got %q)", c.ManifestFile)
	}
	u, err := url.Parse(c.DefaultURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("default_url must be an absolute URL (got %q)", c.DefaultURL)
	}
	for _, p := range c.ReadyPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("ready_ports contains invalid port %d", p)
		}
	}
	if strings.TrimSpace(c.JournalPath) == "" {
		return fmt.Errorf("journal_path must be set")
	}
	if strings.TrimSpace(c.HistoryPath) == "" {
		return fmt.Errorf("history_path must be set")
	}
	return nil
}

func splitCommand(field, cmd string) ([]string, error) {
	words, err := shellquote.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%s must not be empty", field)
	}
	return words, nil
}

// InstallArgs splits the install command into argv form.
func (c Config) InstallArgs() ([]string, error) {
	return splitCommand("install_command", c.InstallCommand)
}

// StartArgs splits the start command into argv form.
func (c Config) StartArgs() ([]string, error) {
	return splitCommand("start_command", c.StartCommand)
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ReadyTimeout bounds how long a started dev server may take to report readiness.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// OverrideWorkspaceRoot swaps the workspace root at runtime and rebases dependent paths.
func (c *Config) OverrideWorkspaceRoot(root string) {
	if c == nil {
		return
	}
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return
	}
	oldRoot := c.WorkspaceRoot
	c.WorkspaceRoot = trimmed
	c.rebasePath(&c.JournalPath, oldRoot, trimmed)
	c.rebasePath(&c.HistoryPath, oldRoot, trimmed)
	c.rebasePath(&c.LogPath, oldRoot, trimmed)
}

// rebasePath moves target under newRoot when it lived under oldRoot.
// Paths outside oldRoot are left alone.
func (c *Config) rebasePath(target *string, oldRoot, newRoot string) {
	if target == nil {
		return
	}
	val := strings.TrimSpace(*target)
	if val == "" {
		return
	}
	oldAbs := absPath(oldRoot)
	pathVal := val
	if filepath.IsAbs(pathVal) {
		if oldAbs == "" {
			return
		}
		rel, err := filepath.Rel(oldAbs, pathVal)
		if err != nil || strings.HasPrefix(rel, "..") {
			return
		}
		pathVal = rel
	}
	newAbs := absPath(newRoot)
	if newAbs == "" {
		newAbs = "."
	}
	*target = filepath.Join(newAbs, pathVal)
}

func absPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// GetConfigDir returns the sitesmith config directory, honouring SITESMITH_CONFIG_DIR.
func GetConfigDir() string {
	if configDir := os.Getenv("SITESMITH_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sitesmith"
	}
	return filepath.Join(home, ".sitesmith")
}

// Save writes the config to the user's config file
func Save(c Config) error {
	configPath := Path()
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
