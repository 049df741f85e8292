package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sirenhq/siren/internal/config"
	"github.com/sirenhq/siren/internal/core"
	"github.com/sirenhq/siren/internal/notify"
	"github.com/sirenhq/siren/internal/realtime"
	"github.com/sirenhq/siren/internal/recipients"
	"github.com/sirenhq/siren/internal/server"
	"github.com/sirenhq/siren/internal/sqlite"
	"github.com/sirenhq/siren/pkg/logger"
	"github.com/sirenhq/siren/pkg/models"
)

// App represents the core application context, holding dependencies and configuration.
type App struct {
	Config    *config.Config
	SQLite    *sqlite.DB
	Logger    *slog.Logger
	Core      *core.Service
	Hub       *realtime.Hub
	BuildInfo string
	Version   string

	resolver *recipients.Resolver
	server   *server.Server
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	Debug      bool
	BuildInfo  string
	Version    string
}

// New loads the configuration and creates a new App instance.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger.New(opts.Debug || cfg.Logging.Level == "debug"),
		BuildInfo: opts.BuildInfo,
		Version:   opts.Version,
	}, nil
}

// OpenDatabase connects to SQLite and applies pending migrations. Commands that
// only manage data call it without initializing the rest of the engine.
func (a *App) OpenDatabase() error {
	if a.SQLite != nil {
		return nil
	}
	db, err := sqlite.New(sqlite.Options{
		Config: a.Config.SQLite,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite: %w", err)
	}
	a.SQLite = db
	return nil
}

// Initialize wires the database, the engine components and the HTTP server.
func (a *App) Initialize(ctx context.Context) error {
	if err := a.OpenDatabase(); err != nil {
		return err
	}

	// Seed system settings from the config file on first boot.
	if err := a.seedSystemSettings(ctx); err != nil {
		// Don't fail initialization, the static configuration still applies.
		a.Logger.Warn("failed to seed system settings from config", "error", err)
	}

	// Database settings override the config file for runtime tunables.
	a.Config = config.LoadRuntimeConfig(ctx, a.Config, a.SQLite)
	a.Logger.Info("runtime configuration loaded from database and config file")

	a.resolver = recipients.New(recipients.Options{
		Store:    a.SQLite,
		Logger:   a.Logger,
		CacheTTL: a.Config.Recipients.CacheTTL,
	})

	dispatcher := notify.NewDispatcher(notify.DispatcherOptions{
		Senders:     a.buildSenders(a.SQLite),
		Concurrency: a.Config.Alerts.DispatchConcurrency,
		Timeout:     a.Config.Alerts.NotificationTimeout,
		Logger:      a.Logger,
	})

	a.Hub = realtime.New(realtime.Options{
		Logger:       a.Logger,
		ClientBuffer: a.Config.Realtime.ClientBuffer,
	})

	a.Core = core.New(core.Options{
		Store:        a.SQLite,
		Resolver:     a.resolver,
		Dispatcher:   dispatcher,
		Publisher:    a.Hub,
		Logger:       a.Logger,
		CancelWindow: a.Config.Alerts.CancelWindow,
	})

	a.server = server.New(server.ServerOptions{
		Config:    a.Config,
		Core:      a.Core,
		SQLite:    a.SQLite,
		Hub:       a.Hub,
		Logger:    a.Logger,
		BuildInfo: a.BuildInfo,
		Version:   a.Version,
	})
	return nil
}

// buildSenders picks a sender per channel. Outside dry-run every channel reads its
// provider settings on each send, so an unconfigured provider turns into failed
// attempts until an admin fills in the settings.
func (a *App) buildSenders(settings notify.SettingsReader) map[models.Channel]notify.ChannelSender {
	senders := make(map[models.Channel]notify.ChannelSender, len(models.AllChannels))
	if a.Config.Notifications.DryRun {
		a.Logger.Warn("notifications running in dry-run mode, nothing will be delivered")
		for _, ch := range models.AllChannels {
			senders[ch] = notify.NewLogSender(ch, a.Logger)
		}
		return senders
	}

	email := notify.NewDynamicEmailSender(settings, notify.EmailSenderOptions{
		Host:          a.Config.SMTP.Host,
		Port:          a.Config.SMTP.Port,
		Username:      a.Config.SMTP.Username,
		Password:      a.Config.SMTP.Password,
		From:          a.Config.SMTP.From,
		ReplyTo:       a.Config.SMTP.ReplyTo,
		Security:      a.Config.SMTP.Security,
		Timeout:       a.Config.SMTP.Timeout,
		SkipTLSVerify: a.Config.SMTP.TLSInsecureSkipVerify,
	}, a.Logger)
	senders[models.ChannelEmail] = email
	if !notify.NewEmailSender(email.Options(context.Background())).Configured() {
		a.Logger.Warn("smtp is not configured, email notifications will fail until it is")
	}

	senders[models.ChannelSMS] = notify.NewDynamicSMSSender(settings, notify.GatewayOptions{
		URL:     a.Config.SMS.GatewayURL,
		Token:   a.Config.SMS.Token,
		Timeout: a.Config.SMS.Timeout,
		Logger:  a.Logger,
	}, a.Config.SMS.SenderID)
	if a.Config.SMS.GatewayURL == "" {
		a.Logger.Warn("sms gateway is not configured, sms notifications will fail until it is")
	}

	senders[models.ChannelPush] = notify.NewDynamicPushSender(settings, notify.GatewayOptions{
		URL:     a.Config.Push.GatewayURL,
		Token:   a.Config.Push.Token,
		Timeout: a.Config.Push.Timeout,
		Logger:  a.Logger,
	})
	if a.Config.Push.GatewayURL == "" {
		a.Logger.Warn("push gateway is not configured, push notifications will fail until it is")
	}
	return senders
}

// Start begins the application's main execution loop (starts the HTTP server).
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	a.Logger.Info("starting server", "version", a.Version)
	return a.server.Start()
}

// Shutdown gracefully stops all application components with timeouts.
//
//nolint:contextcheck // Shutdown receives its own context from caller (e.g., signal handler)
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	serverCtx, serverCancel := context.WithTimeout(ctx, 5*time.Second)
	defer serverCancel()

	// Shutdown server first to stop accepting new requests.
	if a.server != nil {
		a.Logger.Info("shutting down HTTP server")

		serverDone := make(chan error, 1)
		go func() {
			serverDone <- a.server.Shutdown(serverCtx)
		}()

		select {
		case err := <-serverDone:
			if err != nil {
				a.Logger.Error("error shutting down server", "error", err)
			} else {
				a.Logger.Info("HTTP server shut down successfully")
			}
		case <-serverCtx.Done():
			a.Logger.Warn("timeout shutting down HTTP server, continuing")
		}
	}

	// Closing the hub ends every websocket writer.
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.resolver != nil {
		a.resolver.Close()
	}

	if a.SQLite != nil {
		a.Logger.Info("closing SQLite connection")
		if err := a.SQLite.Close(); err != nil {
			a.Logger.Error("error closing SQLite", "error", err)
		} else {
			a.Logger.Info("SQLite connection closed successfully")
		}
	}

	a.Logger.Info("application shutdown complete")
	return nil
}

// Close releases the database for commands that only called OpenDatabase.
func (a *App) Close() error {
	if a.SQLite == nil {
		return nil
	}
	return a.SQLite.Close()
}

type seedSetting struct {
	key         string
	value       string
	valueType   string
	description string
}

// seedSystemSettings populates the system_settings table from the config file on
// first boot. Credentials are never seeded so they stay in the config file or
// environment unless an admin stores them explicitly.
func (a *App) seedSystemSettings(ctx context.Context) error {
	settings, err := a.SQLite.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing settings: %w", err)
	}
	if len(settings) > 0 {
		a.Logger.Info("system settings already exist, skipping seeding from config")
		return nil
	}

	a.Logger.Info("seeding system settings from config (first boot)")

	cfg := a.Config
	seeds := []seedSetting{
		{"alerts.cancel_window", cfg.Alerts.CancelWindow.String(), "duration", "How long after sending an alert may still be cancelled"},
		{"alerts.dispatch_concurrency", strconv.Itoa(cfg.Alerts.DispatchConcurrency), "number", "Maximum concurrent notification attempts per alert"},
		{"alerts.notification_timeout", cfg.Alerts.NotificationTimeout.String(), "duration", "Timeout for a single notification attempt"},
		{"notifications.dry_run", strconv.FormatBool(cfg.Notifications.DryRun), "boolean", "Log notifications instead of delivering them"},
		{"smtp.host", cfg.SMTP.Host, "string", "SMTP host for alert emails"},
		{"smtp.port", strconv.Itoa(cfg.SMTP.Port), "number", "SMTP port for alert emails"},
		{"smtp.username", cfg.SMTP.Username, "string", "SMTP username for alert emails"},
		{"smtp.from", cfg.SMTP.From, "string", "From address for alert emails"},
		{"smtp.reply_to", cfg.SMTP.ReplyTo, "string", "Reply-to address for alert emails"},
		{"smtp.security", cfg.SMTP.Security, "string", "SMTP security mode (none, starttls, tls)"},
		{"sms.gateway_url", cfg.SMS.GatewayURL, "string", "SMS gateway endpoint"},
		{"sms.sender_id", cfg.SMS.SenderID, "string", "Sender id shown on SMS messages"},
		{"push.gateway_url", cfg.Push.GatewayURL, "string", "Push gateway endpoint"},
	}

	for _, seed := range seeds {
		category, _, _ := strings.Cut(seed.key, ".")
		err := a.SQLite.UpsertSetting(ctx, &models.Setting{
			Key:         seed.key,
			Value:       seed.value,
			ValueType:   seed.valueType,
			Category:    category,
			Description: seed.description,
		})
		if err != nil {
			a.Logger.Warn("failed to seed setting", "key", seed.key, "error", err)
			continue
		}
		a.Logger.Debug("seeded setting", "key", seed.key, "value", seed.value)
	}

	a.Logger.Info("system settings seeded from config successfully")
	return nil
}
