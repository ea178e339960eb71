package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/term"

	"sitesmith/internal/config"
	"sitesmith/internal/credentials"
	"sitesmith/internal/llm"
	"sitesmith/internal/llm/mockclient"
	"sitesmith/internal/logging"
	"sitesmith/internal/openrouter"
)

// loadConfig makes sure a config file exists and loads it, applying the
// workspace override when set.
func loadConfig(creds *credentials.Credentials, workspace string) (config.Config, error) {
	provider := creds.DefaultProvider
	if mockMode() {
		provider = config.ProviderMock
	}
	if err := config.EnsureDefaultConfig(provider); err != nil {
		return config.Config{}, fmt.Errorf("ensure default config: %w", err)
	}
	cfg, err := config.LoadUserConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if ws := strings.TrimSpace(workspace); ws != "" {
		cfg.OverrideWorkspaceRoot(ws)
	}
	return cfg, nil
}

func mockMode() bool {
	return os.Getenv("SITESMITH_MOCK_LLM") == "1"
}

// openLog installs a rotating file logger and returns its closer.
func openLog(cfg config.Config) (*log.Logger, io.Closer, error) {
	path := cfg.LogPath
	if path == "" {
		path = filepath.Join(config.GetConfigDir(), "sitesmith.log")
	}
	logger, closer, err := logging.NewFileLogger(path, cfg.LogMaxSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logging.Install(logger)
	return logger, closer, nil
}

// buildClient picks the mock client or OpenRouter, running onboarding when no
// key is configured and stdin is a terminal.
func buildClient(cfg config.Config, manager *credentials.Manager, creds *credentials.Credentials, logger *log.Logger) (llm.Client, error) {
	if mockMode() || cfg.Provider == config.ProviderMock {
		logger.Println("using mock LLM client")
		return mockclient.New(), nil
	}
	key := creds.GetAPIKey(config.ProviderOpenRouter)
	if key == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, fmt.Errorf("no OpenRouter API key configured; run: sitesmith setup (or set %s)", credentials.EnvAPIKey)
		}
		onboarded, err := credentials.Onboard(manager, credentials.NewPrompter(os.Stdin, os.Stdout))
		if err != nil {
			return nil, err
		}
		key = onboarded.GetAPIKey(config.ProviderOpenRouter)
	}
	return openrouter.NewClient(cfg.BaseURL, key, cfg.RequestTimeout(), logger), nil
}

func buildEnvironmentMetadata(cfg config.Config) string {
	now := time.Now()
	zoneName, _ := now.Zone()
	lines := []string{
		fmt.Sprintf("- OS: %s (%s)", runtime.GOOS, runtime.GOARCH),
		fmt.Sprintf("- Date: %s", now.Format("2006-01-02")),
		fmt.Sprintf("- Timezone: %s", zoneName),
		fmt.Sprintf("- Install command: %s", cfg.InstallCommand),
		fmt.Sprintf("- Dev server command: %s", cfg.StartCommand),
	}
	if Version != "" {
		lines = append(lines, fmt.Sprintf("- sitesmith version: %s", Version))
	}
	return strings.Join(lines, "\n")
}
