package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/pkg/models"
)

func (s *Server) handleListIncidents(c *fiber.Ctx) error {
	filter := models.IncidentFilter{Status: models.IncidentStatus(c.Query("status"))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid limit parameter")
		}
		filter.Limit = limit
	}
	incidents, err := s.core.ListIncidents(c.Context(), filter)
	if err != nil {
		return s.sendServiceError(c, err, "list incidents")
	}
	return SendSuccess(c, fiber.StatusOK, incidents)
}

// handleCreateIncident reports a new incident. Any role may report.
// POST /api/v1/incidents
func (s *Server) handleCreateIncident(c *fiber.Ctx) error {
	var req models.CreateIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	incident, err := s.core.CreateIncident(c.Context(), actorFrom(c), &req)
	if err != nil {
		return s.sendServiceError(c, err, "create incident")
	}
	return SendSuccess(c, fiber.StatusCreated, incident)
}

func (s *Server) handleGetIncident(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "incidentID", "incident ID")
	if err != nil {
		return err
	}
	incident, err := s.core.GetIncident(c.Context(), models.IncidentID(id))
	if err != nil {
		return s.sendServiceError(c, err, "retrieve incident")
	}
	return SendSuccess(c, fiber.StatusOK, incident)
}

func (s *Server) handleUpdateIncident(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "incidentID", "incident ID")
	if err != nil {
		return err
	}
	var req models.UpdateIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	incident, err := s.core.UpdateIncident(c.Context(), models.IncidentID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "update incident")
	}
	return SendSuccess(c, fiber.StatusOK, incident)
}

func (s *Server) handleUpdateIncidentStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "incidentID", "incident ID")
	if err != nil {
		return err
	}
	var req models.UpdateIncidentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	incident, err := s.core.UpdateIncidentStatus(c.Context(), actorFrom(c), models.IncidentID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "update incident status")
	}
	return SendSuccess(c, fiber.StatusOK, incident)
}

func (s *Server) handleAddIncidentResponse(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "incidentID", "incident ID")
	if err != nil {
		return err
	}
	var req models.AddIncidentResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	incident, err := s.core.AddIncidentResponse(c.Context(), actorFrom(c), models.IncidentID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "add incident response")
	}
	return SendSuccess(c, fiber.StatusCreated, incident)
}

func (s *Server) handleDeleteIncident(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "incidentID", "incident ID")
	if err != nil {
		return err
	}
	if err := s.core.DeleteIncident(c.Context(), models.IncidentID(id)); err != nil {
		return s.sendServiceError(c, err, "delete incident")
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Incident deleted"})
}

// handleCreateAlertFromIncident escalates an incident into a sent alert.
// POST /api/v1/incidents/:incidentID/alert
func (s *Server) handleCreateAlertFromIncident(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "incidentID", "incident ID")
	if err != nil {
		return err
	}
	var req models.CreateAlertFromIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	escalation, err := s.core.CreateAlertFromIncident(c.Context(), actorFrom(c), models.IncidentID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "create alert from incident")
	}
	return SendSuccess(c, fiber.StatusCreated, escalation)
}
