package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sirenhq/siren/pkg/models"
)

// SettingsReader reads provider settings saved through the admin API.
type SettingsReader interface {
	GetSettingWithDefault(ctx context.Context, key, defaultValue string) string
	GetIntSetting(ctx context.Context, key string, defaultValue int) int
	GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool
	GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration
}

// DynamicEmailSender rebuilds its SMTP settings on every send so changes made
// through the settings API apply without a restart. Fields missing from the
// settings store fall back to defaults.
type DynamicEmailSender struct {
	settings SettingsReader
	defaults EmailSenderOptions
	logger   *slog.Logger
}

func NewDynamicEmailSender(settings SettingsReader, defaults EmailSenderOptions, logger *slog.Logger) *DynamicEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamicEmailSender{
		settings: settings,
		defaults: defaults,
		logger:   logger.With("component", "dynamic_email_sender"),
	}
}

// Options returns the SMTP options currently in effect.
func (d *DynamicEmailSender) Options(ctx context.Context) EmailSenderOptions {
	opts := d.defaults
	opts.Host = d.settings.GetSettingWithDefault(ctx, "smtp.host", opts.Host)
	opts.Port = d.settings.GetIntSetting(ctx, "smtp.port", opts.Port)
	opts.Username = d.settings.GetSettingWithDefault(ctx, "smtp.username", opts.Username)
	opts.Password = d.settings.GetSettingWithDefault(ctx, "smtp.password", opts.Password)
	opts.From = d.settings.GetSettingWithDefault(ctx, "smtp.from", opts.From)
	opts.ReplyTo = d.settings.GetSettingWithDefault(ctx, "smtp.reply_to", opts.ReplyTo)
	opts.Security = d.settings.GetSettingWithDefault(ctx, "smtp.security", opts.Security)
	opts.Logger = d.logger
	return opts
}

func (d *DynamicEmailSender) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	return NewEmailSender(d.Options(ctx)).Send(ctx, recipient, content)
}

// gatewayKey identifies the settings a cached gateway sender was built from.
type gatewayKey struct {
	url      string
	token    string
	senderID string
}

// cachedSender keeps the last sender built for a gateway so its HTTP transport is
// reused until the settings change.
type cachedSender[T ChannelSender] struct {
	mu     sync.Mutex
	key    gatewayKey
	sender T
	built  bool
}

func (c *cachedSender[T]) get(key gatewayKey, build func() T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.built || c.key != key {
		c.sender = build()
		c.key = key
		c.built = true
	}
	return c.sender
}

// DynamicSMSSender reads the SMS gateway settings on every send.
type DynamicSMSSender struct {
	settings SettingsReader
	defaults GatewayOptions
	senderID string
	cache    cachedSender[*SMSSender]
}

func NewDynamicSMSSender(settings SettingsReader, defaults GatewayOptions, senderID string) *DynamicSMSSender {
	if defaults.Logger == nil {
		defaults.Logger = slog.Default()
	}
	return &DynamicSMSSender{settings: settings, defaults: defaults, senderID: senderID}
}

func (d *DynamicSMSSender) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	key := gatewayKey{
		url:      d.settings.GetSettingWithDefault(ctx, "sms.gateway_url", d.defaults.URL),
		token:    d.settings.GetSettingWithDefault(ctx, "sms.token", d.defaults.Token),
		senderID: d.settings.GetSettingWithDefault(ctx, "sms.sender_id", d.senderID),
	}
	sender := d.cache.get(key, func() *SMSSender {
		opts := d.defaults
		opts.URL, opts.Token = key.url, key.token
		return NewSMSSender(opts, key.senderID)
	})
	return sender.Send(ctx, recipient, content)
}

// DynamicPushSender reads the push gateway settings on every send.
type DynamicPushSender struct {
	settings SettingsReader
	defaults GatewayOptions
	cache    cachedSender[*PushSender]
}

func NewDynamicPushSender(settings SettingsReader, defaults GatewayOptions) *DynamicPushSender {
	if defaults.Logger == nil {
		defaults.Logger = slog.Default()
	}
	return &DynamicPushSender{settings: settings, defaults: defaults}
}

func (d *DynamicPushSender) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	key := gatewayKey{
		url:   d.settings.GetSettingWithDefault(ctx, "push.gateway_url", d.defaults.URL),
		token: d.settings.GetSettingWithDefault(ctx, "push.token", d.defaults.Token),
	}
	sender := d.cache.get(key, func() *PushSender {
		opts := d.defaults
		opts.URL, opts.Token = key.url, key.token
		return NewPushSender(opts)
	})
	return sender.Send(ctx, recipient, content)
}
