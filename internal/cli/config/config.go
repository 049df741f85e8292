// Package config provides configuration for the siren remote CLI commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment prefix of CLI settings. SIREN_CLI_SERVER_URL maps to server.url.
const EnvPrefix = "SIREN_CLI_"

// Config represents the CLI configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Actor    ActorConfig    `koanf:"actor"`
	Defaults DefaultsConfig `koanf:"defaults"`
	Output   OutputConfig   `koanf:"output"`
}

// ServerConfig holds server connection settings
type ServerConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// ActorConfig is the identity forwarded to the server on every request.
type ActorConfig struct {
	ID   int64  `koanf:"id"`
	Role string `koanf:"role"`
}

// DefaultsConfig holds default list parameters
type DefaultsConfig struct {
	Limit int    `koanf:"limit"`
	Since string `koanf:"since"`
}

// OutputConfig holds output formatting settings
type OutputConfig struct {
	Format string `koanf:"format"` // table, text, json, jsonl, csv
	Color  string `koanf:"color"`  // auto, always, never
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	ConfigPath string
	Profile    string
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8125",
			Timeout: 30 * time.Second,
		},
		Defaults: DefaultsConfig{
			Limit: 50,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  "auto",
		},
	}
}

// Load loads configuration from file and environment. A missing file is not an error.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(ConfigDir(), "cli.toml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Profiles override the top-level values, e.g. [profiles.staging.server].
	if opts.Profile != "" {
		profileKey := "profiles." + opts.Profile
		if !k.Exists(profileKey) {
			return nil, fmt.Errorf("profile %q not found", opts.Profile)
		}
		if err := k.Unmarshal(profileKey, cfg); err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", opts.Profile, err)
		}
	}

	return cfg, nil
}

// ConfigDir returns the configuration directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "siren")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".siren"
	}
	return filepath.Join(home, ".config", "siren")
}

// envToKey converts an environment variable to a config key.
// e.g., SIREN_CLI_SERVER_URL -> server.url
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}
