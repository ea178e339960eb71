package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides the stored OpenRouter key when set.
const EnvAPIKey = "OPENROUTER_API_KEY"

// Credentials stores API keys and provider configuration
type Credentials struct {
	DefaultProvider string              `yaml:"default_provider"`
	Providers       map[string]Provider `yaml:"providers"`
}

// Provider stores authentication details for a single provider
type Provider struct {
	APIKey string `yaml:"api_key"`
}

// Manager handles credential storage and retrieval
type Manager struct {
	path string
}

// NewManager creates a new credential manager.
// Checks SITESMITH_CREDENTIALS_PATH environment variable first.
// If not set, defaults to ~/.sitesmith/credentials.yaml
func NewManager() *Manager {
	credPath := os.Getenv("SITESMITH_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = filepath.Join(getConfigDir(), "credentials.yaml")
	}
	return &Manager{path: credPath}
}

// NewManagerAt returns a manager backed by an explicit file.
func NewManagerAt(path string) *Manager {
	return &Manager{path: path}
}

func getConfigDir() string {
	if configDir := os.Getenv("SITESMITH_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sitesmith"
	}
	return filepath.Join(home, ".sitesmith")
}

// Load reads credentials from disk
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{
				Providers: make(map[string]Provider),
			}, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Providers == nil {
		creds.Providers = make(map[string]Provider)
	}
	return &creds, nil
}

// Save writes credentials to disk
func (m *Manager) Save(creds *Credentials) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	// user-only read/write
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Exists checks if credentials file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Path returns the credentials file path
func (m *Manager) Path() string {
	return m.path
}

// IsConfigured checks if a provider is configured
func (c *Credentials) IsConfigured(provider string) bool {
	return c.GetAPIKey(provider) != ""
}

// GetAPIKey returns the API key for a provider. For openrouter the
// OPENROUTER_API_KEY environment variable wins over the stored key.
func (c *Credentials) GetAPIKey(provider string) string {
	if provider == "openrouter" {
		if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
			return key
		}
	}
	if c == nil || c.Providers == nil {
		return ""
	}
	return c.Providers[provider].APIKey
}

// SetProvider sets the API key for a provider
func (c *Credentials) SetProvider(name, apiKey string) {
	if c.Providers == nil {
		c.Providers = make(map[string]Provider)
	}
	c.Providers[name] = Provider{APIKey: apiKey}
}

// RemoveProvider removes a provider
func (c *Credentials) RemoveProvider(name string) {
	if c.Providers != nil {
		delete(c.Providers, name)
	}
	if c.DefaultProvider == name {
		c.DefaultProvider = ""
	}
}

// ListProviders returns all configured provider names, sorted.
func (c *Credentials) ListProviders() []string {
	if c.Providers == nil {
		return nil
	}
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
