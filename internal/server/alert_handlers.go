package server

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/pkg/models"
)

// handleListAlerts returns alerts newest first.
// GET /api/v1/alerts?status=&severity=&created_by=&since=&until=&limit=
func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	filter, err := parseAlertFilter(c)
	if err != nil {
		return err
	}
	alerts, err := s.core.ListAlerts(c.Context(), filter)
	if err != nil {
		return s.sendServiceError(c, err, "list alerts")
	}
	return SendSuccess(c, fiber.StatusOK, alerts)
}

// handleCreateAlert creates an alert and, unless it is a draft or pending, delivers it.
// POST /api/v1/alerts
func (s *Server) handleCreateAlert(c *fiber.Ctx) error {
	var req models.CreateAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}

	alert, err := s.core.CreateAlert(c.Context(), actorFrom(c), &req)
	if err != nil {
		return s.sendServiceError(c, err, "create alert")
	}
	return SendSuccess(c, fiber.StatusCreated, alert)
}

func (s *Server) handleGetAlert(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}
	alert, err := s.core.GetAlert(c.Context(), models.AlertID(id))
	if err != nil {
		return s.sendServiceError(c, err, "retrieve alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

func (s *Server) handleUpdateAlert(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}

	var req models.UpdateAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}

	alert, err := s.core.UpdateAlert(c.Context(), models.AlertID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "update alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

func (s *Server) handleDeleteAlert(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}
	if err := s.core.DeleteAlert(c.Context(), models.AlertID(id)); err != nil {
		return s.sendServiceError(c, err, "delete alert")
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Alert deleted"})
}

// handleSendAlert publishes a draft or pending alert.
// POST /api/v1/alerts/:alertID/send
func (s *Server) handleSendAlert(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}
	alert, err := s.core.SendAlert(c.Context(), actorFrom(c), models.AlertID(id))
	if err != nil {
		return s.sendServiceError(c, err, "send alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

// handleCancelAlert withdraws a sent alert inside the cancellation window.
// POST /api/v1/alerts/:alertID/cancel
func (s *Server) handleCancelAlert(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}
	alert, err := s.core.CancelAlert(c.Context(), actorFrom(c), models.AlertID(id))
	if err != nil {
		return s.sendServiceError(c, err, "cancel alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

// handleAcknowledgeAlert records that the caller received a sent alert.
// POST /api/v1/alerts/:alertID/acknowledge
func (s *Server) handleAcknowledgeAlert(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}

	var req models.AcknowledgeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
		}
	}

	ack, err := s.core.AcknowledgeAlert(c.Context(), models.AlertID(id), actorFrom(c).UserID, req.Notes)
	if err != nil {
		return s.sendServiceError(c, err, "acknowledge alert")
	}
	return SendSuccess(c, fiber.StatusCreated, ack)
}

func (s *Server) handleListAcknowledgments(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "alertID", "alert ID")
	if err != nil {
		return err
	}
	acks, err := s.core.ListAcknowledgments(c.Context(), models.AlertID(id))
	if err != nil {
		return s.sendServiceError(c, err, "list acknowledgments")
	}
	return SendSuccess(c, fiber.StatusOK, acks)
}

// handleGetAnalytics summarizes the alerts matching the filter. The limit is ignored.
// GET /api/v1/alerts/analytics
func (s *Server) handleGetAnalytics(c *fiber.Ctx) error {
	filter, err := parseAlertFilter(c)
	if err != nil {
		return err
	}
	analytics, err := s.core.GetAnalytics(c.Context(), filter)
	if err != nil {
		return s.sendServiceError(c, err, "compute analytics")
	}
	return SendSuccess(c, fiber.StatusOK, analytics)
}

func parseAlertFilter(c *fiber.Ctx) (models.AlertFilter, error) {
	filter := models.AlertFilter{
		Status:   models.AlertStatus(c.Query("status")),
		Severity: models.AlertSeverity(c.Query("severity")),
	}
	if raw := c.Query("created_by"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, fiber.NewError(fiber.StatusBadRequest, "Invalid created_by parameter")
		}
		filter.CreatedBy = models.UserID(id)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fiber.NewError(fiber.StatusBadRequest, "Invalid limit parameter")
		}
		filter.Limit = limit
	}
	var err error
	if filter.Since, err = parseTimeQuery(c, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTimeQuery(c, "until"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseTimeQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name+" parameter, expected RFC3339")
	}
	return &t, nil
}
