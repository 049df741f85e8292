package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/pkg/models"
)

// handleListTemplates returns templates, optionally narrowed to a category or to
// active templates.
// GET /api/v1/templates?category=&active=
func (s *Server) handleListTemplates(c *fiber.Ctx) error {
	filter := models.TemplateFilter{Category: c.Query("category")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid active parameter")
		}
		filter.ActiveOnly = active
	}
	templates, err := s.core.ListTemplates(c.Context(), filter)
	if err != nil {
		return s.sendServiceError(c, err, "list templates")
	}
	return SendSuccess(c, fiber.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(c *fiber.Ctx) error {
	var req models.CreateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	tmpl, err := s.core.CreateTemplate(c.Context(), actorFrom(c), &req)
	if err != nil {
		return s.sendServiceError(c, err, "create template")
	}
	return SendSuccess(c, fiber.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "templateID", "template ID")
	if err != nil {
		return err
	}
	tmpl, err := s.core.GetTemplate(c.Context(), models.TemplateID(id))
	if err != nil {
		return s.sendServiceError(c, err, "retrieve template")
	}
	return SendSuccess(c, fiber.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "templateID", "template ID")
	if err != nil {
		return err
	}
	var req models.UpdateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	tmpl, err := s.core.UpdateTemplate(c.Context(), models.TemplateID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "update template")
	}
	return SendSuccess(c, fiber.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "templateID", "template ID")
	if err != nil {
		return err
	}
	if err := s.core.DeleteTemplate(c.Context(), models.TemplateID(id)); err != nil {
		return s.sendServiceError(c, err, "delete template")
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Template deleted"})
}

// handleApplyTemplate renders a template into a draft alert.
// POST /api/v1/templates/:templateID/apply
func (s *Server) handleApplyTemplate(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "templateID", "template ID")
	if err != nil {
		return err
	}
	var req models.ApplyTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	alert, err := s.core.ApplyTemplate(c.Context(), actorFrom(c), models.TemplateID(id), &req)
	if err != nil {
		return s.sendServiceError(c, err, "apply template")
	}
	return SendSuccess(c, fiber.StatusCreated, alert)
}

func (s *Server) handleListTemplateCategories(c *fiber.Ctx) error {
	categories, err := s.core.ListTemplateCategories(c.Context())
	if err != nil {
		return s.sendServiceError(c, err, "list template categories")
	}
	return SendSuccess(c, fiber.StatusOK, categories)
}

func (s *Server) handleListTemplateVariables(c *fiber.Ctx) error {
	variables, err := s.core.ListTemplateVariables(c.Context())
	if err != nil {
		return s.sendServiceError(c, err, "list template variables")
	}
	return SendSuccess(c, fiber.StatusOK, variables)
}
