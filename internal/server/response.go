package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/internal/core"
	"github.com/sirenhq/siren/pkg/models"
)

// SendSuccess writes data in the success envelope.
func SendSuccess(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(models.APIResponse{
		Status: "success",
		Data:   data,
	})
}

// SendError writes a general error envelope.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithType(c, status, message, models.GeneralErrorType)
}

// SendErrorWithType writes an error envelope with an explicit error type.
func SendErrorWithType(c *fiber.Ctx, status int, message string, errorType models.ErrorType) error {
	return c.Status(status).JSON(models.APIErrorResponse{
		Status:    "error",
		Message:   message,
		ErrorType: errorType,
	})
}

func sendValidationError(c *fiber.Ctx, verr *core.ValidationError) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.APIErrorResponse{
		Status:    "error",
		Message:   verr.Error(),
		ErrorType: models.ValidationErrorType,
		Fields:    verr.Fields,
	})
}

// sendServiceError maps engine errors to HTTP responses. Unexpected errors are
// logged with op and reported without detail.
func (s *Server) sendServiceError(c *fiber.Ctx, err error, op string) error {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return sendValidationError(c, verr)
	case errors.Is(err, core.ErrNotFound):
		return SendErrorWithType(c, fiber.StatusNotFound, err.Error(), models.NotFoundErrorType)
	case errors.Is(err, core.ErrDuplicateAcknowledgment):
		return SendErrorWithType(c, fiber.StatusConflict, err.Error(), models.ConflictErrorType)
	case errors.Is(err, core.ErrInvalidState):
		return SendErrorWithType(c, fiber.StatusConflict, err.Error(), models.StateErrorType)
	case errors.Is(err, core.ErrImmutableSentAlert), errors.Is(err, core.ErrCancellationWindowExpired):
		return SendErrorWithType(c, fiber.StatusUnprocessableEntity, err.Error(), models.StateErrorType)
	case errors.Is(err, core.ErrPersistence):
		s.log.Error("storage failure", "op", op, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to "+op, models.DatabaseErrorType)
	default:
		s.log.Error("request failed", "op", op, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to "+op, models.GeneralErrorType)
	}
}
