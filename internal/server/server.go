// Package server exposes the alert engine over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/sirenhq/siren/internal/config"
	"github.com/sirenhq/siren/internal/core"
	"github.com/sirenhq/siren/internal/realtime"
	"github.com/sirenhq/siren/internal/sqlite"
	"github.com/sirenhq/siren/pkg/models"
)

// ServerOptions holds the dependencies of the HTTP server.
type ServerOptions struct {
	Config    *config.Config
	Core      *core.Service
	SQLite    *sqlite.DB
	Hub       *realtime.Hub
	Logger    *slog.Logger
	BuildInfo string
	Version   string
}

// Server wraps the fiber app and the engine it serves.
type Server struct {
	app       *fiber.App
	config    *config.Config
	core      *core.Service
	sqlite    *sqlite.DB
	hub       *realtime.Hub
	log       *slog.Logger
	buildInfo string
	version   string
}

// New builds the fiber app and registers every route.
func New(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "siren",
		DisableStartupMessage: true,
		ReadTimeout:           opts.Config.Server.HTTPServerTimeout,
		WriteTimeout:          opts.Config.Server.HTTPServerTimeout,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:       app,
		config:    opts.Config,
		core:      opts.Core,
		sqlite:    opts.SQLite,
		hub:       opts.Hub,
		log:       logger.With("component", "server"),
		buildInfo: opts.BuildInfo,
		version:   opts.Version,
	}
	s.setupRoutes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	if len(s.config.Server.AllowedOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(s.config.Server.AllowedOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, " + headerActorID + ", " + headerActorRole,
		}))
	}

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)

	api := s.app.Group("/api/v1")
	api.Get("/meta", s.handleGetMeta)

	api.Use(s.requireActor)
	staff := requireRole(models.RoleAdmin, models.RoleOperator)
	admin := requireRole(models.RoleAdmin)

	// Alerts
	alerts := api.Group("/alerts")
	alerts.Get("/", s.handleListAlerts)
	alerts.Post("/", staff, s.handleCreateAlert)
	alerts.Get("/analytics", staff, s.handleGetAnalytics)
	alerts.Get("/:alertID", s.handleGetAlert)
	alerts.Put("/:alertID", staff, s.handleUpdateAlert)
	alerts.Delete("/:alertID", admin, s.handleDeleteAlert)
	alerts.Post("/:alertID/send", staff, s.handleSendAlert)
	alerts.Post("/:alertID/cancel", staff, s.handleCancelAlert)
	alerts.Post("/:alertID/acknowledge", s.handleAcknowledgeAlert)
	alerts.Get("/:alertID/acknowledgments", s.handleListAcknowledgments)

	// Incidents
	incidents := api.Group("/incidents")
	incidents.Get("/", s.handleListIncidents)
	incidents.Post("/", s.handleCreateIncident)
	incidents.Get("/:incidentID", s.handleGetIncident)
	incidents.Put("/:incidentID", staff, s.handleUpdateIncident)
	incidents.Delete("/:incidentID", admin, s.handleDeleteIncident)
	incidents.Put("/:incidentID/status", staff, s.handleUpdateIncidentStatus)
	incidents.Post("/:incidentID/responses", staff, s.handleAddIncidentResponse)
	incidents.Post("/:incidentID/alert", staff, s.handleCreateAlertFromIncident)

	// Templates
	templates := api.Group("/templates", staff)
	templates.Get("/", s.handleListTemplates)
	templates.Post("/", s.handleCreateTemplate)
	templates.Get("/categories", s.handleListTemplateCategories)
	templates.Get("/variables", s.handleListTemplateVariables)
	templates.Get("/:templateID", s.handleGetTemplate)
	templates.Put("/:templateID", s.handleUpdateTemplate)
	templates.Delete("/:templateID", admin, s.handleDeleteTemplate)
	templates.Post("/:templateID/apply", s.handleApplyTemplate)

	// Directory
	api.Get("/users", staff, s.handleListUsers)

	// Admin settings
	settings := api.Group("/admin/settings", admin)
	settings.Get("/", s.handleListSettings)
	settings.Get("/category/:category", s.handleListSettingsByCategory)
	settings.Get("/:key", s.handleGetSetting)
	settings.Put("/:key", s.handleUpdateSetting)
	settings.Delete("/:key", s.handleDeleteSetting)

	// Realtime
	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(s.handleWebSocket))

	s.app.Use(func(c *fiber.Ctx) error {
		return SendErrorWithType(c, fiber.StatusNotFound, "Route not found", models.NotFoundErrorType)
	})
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", "address", s.config.Server.Address)
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders errors that escape handlers in the standard envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	errorType := models.GeneralErrorType
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		switch code {
		case fiber.StatusNotFound:
			errorType = models.NotFoundErrorType
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			errorType = models.ValidationErrorType
		}
	}
	return SendErrorWithType(c, code, err.Error(), errorType)
}
