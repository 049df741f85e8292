package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/pkg/models"
)

// The upstream gateway authenticates callers and forwards their identity in
// these headers. No credential verification happens here.
const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"

	actorLocalsKey = "actor"
)

// requireActor reads the caller identity and stores it in the request locals.
func (s *Server) requireActor(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Get(headerActorID), 10, 64)
	if err != nil || id <= 0 {
		return SendErrorWithType(c, fiber.StatusUnauthorized, "Missing or invalid actor id", models.AuthenticationErrorType)
	}
	role := models.Role(c.Get(headerActorRole))
	if !role.Valid() {
		return SendErrorWithType(c, fiber.StatusUnauthorized, "Missing or invalid actor role", models.AuthenticationErrorType)
	}
	c.Locals(actorLocalsKey, models.Actor{UserID: models.UserID(id), Role: role})
	return c.Next()
}

// requireRole rejects callers whose role is not one of roles.
func requireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := c.Locals(actorLocalsKey).(models.Actor)
		if !ok {
			return SendErrorWithType(c, fiber.StatusUnauthorized, "Authentication required", models.AuthenticationErrorType)
		}
		for _, r := range roles {
			if actor.Role == r {
				return c.Next()
			}
		}
		return SendErrorWithType(c, fiber.StatusForbidden, "Insufficient permissions", models.AuthorizationErrorType)
	}
}

func actorFrom(c *fiber.Ctx) models.Actor {
	actor, _ := c.Locals(actorLocalsKey).(models.Actor)
	return actor
}

// parseIDParam parses a positive integer route parameter. The returned error is a
// *fiber.Error rendered by the error handler.
func parseIDParam(c *fiber.Ctx, name, label string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+label)
	}
	return id, nil
}
