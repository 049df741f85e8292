package server

import (
	"context"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/pkg/models"
)

// MetaResponse represents the server metadata response
type MetaResponse struct {
	Version           string           `json:"version"`
	BuildInfo         string           `json:"build_info,omitempty"`
	HTTPServerTimeout string           `json:"http_server_timeout"`
	CancelWindow      string           `json:"cancel_window"`
	Channels          []models.Channel `json:"channels"`
	DryRun            bool             `json:"dry_run"`
}

// handleGetMeta returns server metadata including version and configuration.
// URL: GET /api/v1/meta
// Public endpoint - no actor required
func (s *Server) handleGetMeta(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, MetaResponse{
		Version:           s.version,
		BuildInfo:         s.buildInfo,
		HTTPServerTimeout: s.config.Server.HTTPServerTimeout.String(),
		CancelWindow:      s.config.Alerts.CancelWindow.String(),
		Channels:          models.AllChannels,
		DryRun:            s.config.Notifications.DryRun,
	})
}

// handleHealth reports whether the database is reachable.
// URL: GET /health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := s.sqlite.Ping(ctx); err != nil {
		s.log.Error("health check failed", "error", err)
		return SendErrorWithType(c, fiber.StatusServiceUnavailable, "database unavailable", models.DatabaseErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{
		"status":     "ok",
		"version":    s.version,
		"ws_clients": s.hub.ClientCount(),
	})
}

// handleMetrics exposes process and engine metrics in Prometheus text format.
// URL: GET /metrics
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	metrics.WritePrometheus(c.Response().BodyWriter(), true)
	return nil
}
