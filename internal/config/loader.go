package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".corpclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. CORPCLAW_CONFIG
// overrides the default location under the home directory.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("CORPCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads the config file and applies environment overrides on top
// of the defaults. A missing file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Override with environment variables for each group.
	envconfig.Process("CORPCLAW_PATHS", &cfg.Paths)
	envconfig.Process("CORPCLAW_MODEL", &cfg.Model)
	envconfig.Process("CORPCLAW_ORG", &cfg.Org)
	envconfig.Process("CORPCLAW_CONTEXT", &cfg.Context)
	envconfig.Process("CORPCLAW_PROVIDERS", &cfg.Providers)
	envconfig.Process("CORPCLAW_ANTHROPIC", &cfg.Providers.Anthropic)
	envconfig.Process("CORPCLAW_OPENAI", &cfg.Providers.OpenAI)
	envconfig.Process("CORPCLAW_OPENROUTER", &cfg.Providers.OpenRouter)
	envconfig.Process("CORPCLAW_STORE", &cfg.Store)

	expandPaths(cfg)
	return cfg, nil
}

// Save writes the config file, creating its directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// expandPaths resolves the leading ~ in path-valued settings.
func expandPaths(cfg *Config) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(p string) string {
		if strings.HasPrefix(p, "~") {
			return filepath.Join(home, p[1:])
		}
		return p
	}
	cfg.Paths.Workspace = expand(cfg.Paths.Workspace)
	cfg.Paths.DataDir = expand(cfg.Paths.DataDir)
	cfg.Store.Path = expand(cfg.Store.Path)
}
