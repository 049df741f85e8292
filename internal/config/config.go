// Package config loads the service configuration from defaults, a TOML file and
// SIREN_ environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped to keys.
// A double underscore separates sections: SIREN_SQLITE__PATH -> sqlite.path.
const EnvPrefix = "SIREN_"

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	SQLite        SQLiteConfig        `koanf:"sqlite"`
	Logging       LoggingConfig       `koanf:"logging"`
	Alerts        AlertsConfig        `koanf:"alerts"`
	Recipients    RecipientsConfig    `koanf:"recipients"`
	Notifications NotificationsConfig `koanf:"notifications"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	SMS           SMSConfig           `koanf:"sms"`
	Push          PushConfig          `koanf:"push"`
	Realtime      RealtimeConfig      `koanf:"realtime"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address           string        `koanf:"address"`
	HTTPServerTimeout time.Duration `koanf:"http_server_timeout"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
}

// SQLiteConfig holds the database location.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// AlertsConfig tunes the alert lifecycle and dispatch.
type AlertsConfig struct {
	// CancelWindow is how long after sending an alert may still be cancelled.
	CancelWindow        time.Duration `koanf:"cancel_window"`
	DispatchConcurrency int           `koanf:"dispatch_concurrency"`
	NotificationTimeout time.Duration `koanf:"notification_timeout"`
}

// RecipientsConfig tunes recipient resolution.
type RecipientsConfig struct {
	// CacheTTL caches role lookups. Zero, the default, disables the cache so user
	// changes made by other processes are seen by the next alert.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// NotificationsConfig holds provider-independent delivery settings.
type NotificationsConfig struct {
	// DryRun logs every notification instead of contacting providers.
	DryRun bool `koanf:"dry_run"`
}

// SMTPConfig configures the email provider.
type SMTPConfig struct {
	Host                  string        `koanf:"host"`
	Port                  int           `koanf:"port"`
	Username              string        `koanf:"username"`
	Password              string        `koanf:"password"`
	From                  string        `koanf:"from"`
	ReplyTo               string        `koanf:"reply_to"`
	Security              string        `koanf:"security"`
	Timeout               time.Duration `koanf:"timeout"`
	TLSInsecureSkipVerify bool          `koanf:"tls_insecure_skip_verify"`
}

// SMSConfig configures the SMS gateway.
type SMSConfig struct {
	GatewayURL string        `koanf:"gateway_url"`
	Token      string        `koanf:"token"`
	SenderID   string        `koanf:"sender_id"`
	Timeout    time.Duration `koanf:"timeout"`
}

// PushConfig configures the push gateway.
type PushConfig struct {
	GatewayURL string        `koanf:"gateway_url"`
	Token      string        `koanf:"token"`
	Timeout    time.Duration `koanf:"timeout"`
}

// RealtimeConfig tunes the websocket hub.
type RealtimeConfig struct {
	// ClientBuffer is the per-client queue length before messages are dropped.
	ClientBuffer int `koanf:"client_buffer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8125",
			HTTPServerTimeout: 30 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "siren.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Alerts: AlertsConfig{
			CancelWindow:        5 * time.Minute,
			DispatchConcurrency: 32,
			NotificationTimeout: 10 * time.Second,
		},
		SMTP: SMTPConfig{
			Port:     587,
			Security: "starttls",
			Timeout:  10 * time.Second,
		},
		SMS: SMSConfig{
			SenderID: "SIREN",
			Timeout:  10 * time.Second,
		},
		Push: PushConfig{
			Timeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			ClientBuffer: 64,
		},
	}
}

// Load reads the config file at path, if any, and applies environment overrides
// on top of Default.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Alerts.CancelWindow < 0 {
		return fmt.Errorf("alerts.cancel_window must not be negative")
	}
	if c.Realtime.ClientBuffer <= 0 {
		return fmt.Errorf("realtime.client_buffer must be greater than 0")
	}
	switch strings.ToLower(c.SMTP.Security) {
	case "", "none", "starttls", "tls":
	default:
		return fmt.Errorf("smtp.security must be none, starttls, or tls")
	}
	return nil
}

// envToKey converts an environment variable to a config key,
// e.g. SIREN_ALERTS__CANCEL_WINDOW -> alerts.cancel_window.
func envToKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
