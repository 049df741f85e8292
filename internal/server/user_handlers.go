package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/pkg/models"
)

// handleListUsers returns the alert recipients known to the engine, optionally
// narrowed to one role. Staff use it to build targeting.
// GET /api/v1/users?role=
func (s *Server) handleListUsers(c *fiber.Ctx) error {
	var (
		users []*models.User
		err   error
	)
	if raw := c.Query("role"); raw != "" {
		role := models.Role(raw)
		if !role.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid role parameter")
		}
		users, err = s.sqlite.ListUsersByRole(c.Context(), role)
	} else {
		users, err = s.sqlite.ListUsers(c.Context())
	}
	if err != nil {
		s.log.Error("failed to list users", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list users", models.DatabaseErrorType)
	}

	recipients := make([]models.Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, u.Recipient())
	}
	return SendSuccess(c, fiber.StatusOK, recipients)
}
