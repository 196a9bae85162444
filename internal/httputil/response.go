package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/galynx/galynx-server/internal/apperr"
)

// ErrorResponse is the JSON body sent for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error writes err as a JSON error response. Errors that are not *apperr.Error
// surface as a generic 500.
func Error(c fiber.Ctx, err error) error {
	appErr := apperr.From(err)
	return c.Status(appErr.Status).JSON(ErrorResponse{
		Error:   appErr.Code,
		Message: appErr.Message,
	})
}

// Fail writes a JSON error response with an explicit status and code.
func Fail(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: message,
	})
}
