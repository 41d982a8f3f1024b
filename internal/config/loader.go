package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".bridgedesk"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
// BRIDGEDESK_CONFIG overrides the default ~/.bridgedesk/config.json.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("BRIDGEDESK_CONFIG")); explicit != "" {
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

// Load reads the config file (if present), applies env overrides and
// validates the result. A missing file yields defaults plus env.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults + env only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers BRIDGEDESK_* environment variables over the
// file values. Errors are ignored so a malformed env var never masks the
// file configuration.
func applyEnvOverrides(cfg *Config) {
	_ = envconfig.Process("BRIDGEDESK_PATHS", &cfg.Paths)
	_ = envconfig.Process("BRIDGEDESK_PROVIDER", &cfg.Provider)
	_ = envconfig.Process("BRIDGEDESK_FRUSTRATION", &cfg.Frustration)
	_ = envconfig.Process("BRIDGEDESK_QUALITY", &cfg.Quality)
	_ = envconfig.Process("BRIDGEDESK_PRIORITY", &cfg.Priority)
	_ = envconfig.Process("BRIDGEDESK_ROUTING", &cfg.Routing)
	_ = envconfig.Process("BRIDGEDESK_QUEUE", &cfg.Queue)
	_ = envconfig.Process("BRIDGEDESK_ORCHESTRATOR", &cfg.Orchestrator)
	_ = envconfig.Process("BRIDGEDESK_STREAM", &cfg.Stream)
	_ = envconfig.Process("BRIDGEDESK_NOTIFY", &cfg.Notify)
	_ = envconfig.Process("BRIDGEDESK_GATEWAY", &cfg.Gateway)
}

func expandPaths(cfg *Config) {
	cfg.Paths.DataDir = expandHome(cfg.Paths.DataDir)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], string(filepath.Separator)))
}
