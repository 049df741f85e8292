package config

import (
	"context"
	"log/slog"
	"time"
)

// SettingsStore defines the interface for retrieving settings from the database.
type SettingsStore interface {
	GetSettingWithDefault(ctx context.Context, key, defaultValue string) string
	GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool
	GetIntSetting(ctx context.Context, key string, defaultValue int) int
	GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration
}

// RuntimeKeys lists the settings that may override the static configuration.
var RuntimeKeys = []string{
	"alerts.cancel_window",
	"alerts.dispatch_concurrency",
	"alerts.notification_timeout",
	"notifications.dry_run",
	"smtp.host",
	"smtp.port",
	"smtp.username",
	"smtp.password",
	"smtp.from",
	"smtp.reply_to",
	"smtp.security",
	"sms.gateway_url",
	"sms.token",
	"sms.sender_id",
	"push.gateway_url",
	"push.token",
}

// LoadRuntimeConfig loads configuration from both static config and database.
// Database values override static config values for non-essential settings.
func LoadRuntimeConfig(ctx context.Context, staticConfig *Config, store SettingsStore) *Config {
	cfg := *staticConfig

	if store == nil {
		slog.Debug("no settings store provided, using static configuration only")
		return &cfg
	}

	// Alert lifecycle
	cfg.Alerts.CancelWindow = store.GetDurationSetting(ctx, "alerts.cancel_window", cfg.Alerts.CancelWindow)
	cfg.Alerts.DispatchConcurrency = store.GetIntSetting(ctx, "alerts.dispatch_concurrency", cfg.Alerts.DispatchConcurrency)
	cfg.Alerts.NotificationTimeout = store.GetDurationSetting(ctx, "alerts.notification_timeout", cfg.Alerts.NotificationTimeout)
	cfg.Notifications.DryRun = store.GetBoolSetting(ctx, "notifications.dry_run", cfg.Notifications.DryRun)

	// Email provider
	cfg.SMTP.Host = store.GetSettingWithDefault(ctx, "smtp.host", cfg.SMTP.Host)
	cfg.SMTP.Port = store.GetIntSetting(ctx, "smtp.port", cfg.SMTP.Port)
	cfg.SMTP.Username = store.GetSettingWithDefault(ctx, "smtp.username", cfg.SMTP.Username)
	cfg.SMTP.Password = store.GetSettingWithDefault(ctx, "smtp.password", cfg.SMTP.Password)
	cfg.SMTP.From = store.GetSettingWithDefault(ctx, "smtp.from", cfg.SMTP.From)
	cfg.SMTP.ReplyTo = store.GetSettingWithDefault(ctx, "smtp.reply_to", cfg.SMTP.ReplyTo)
	cfg.SMTP.Security = store.GetSettingWithDefault(ctx, "smtp.security", cfg.SMTP.Security)

	// Gateways
	cfg.SMS.GatewayURL = store.GetSettingWithDefault(ctx, "sms.gateway_url", cfg.SMS.GatewayURL)
	cfg.SMS.Token = store.GetSettingWithDefault(ctx, "sms.token", cfg.SMS.Token)
	cfg.SMS.SenderID = store.GetSettingWithDefault(ctx, "sms.sender_id", cfg.SMS.SenderID)
	cfg.Push.GatewayURL = store.GetSettingWithDefault(ctx, "push.gateway_url", cfg.Push.GatewayURL)
	cfg.Push.Token = store.GetSettingWithDefault(ctx, "push.token", cfg.Push.Token)

	slog.Debug("runtime configuration loaded (static config + database settings)")
	return &cfg
}
