package response

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nebulosa/api/pkg/apperr"
)

// Error codes for request-level failures.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServiceError    = "SERVICE_ERROR"
)

// ErrorResponse is the flat error envelope used by every mutating endpoint.
// The same shape travels in the stream's terminal error event.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message, details string) error {
	return c.Status(status).JSON(ErrorResponse{
		Code:    code,
		Error:   message,
		Details: details,
	})
}

func AppError(c *fiber.Ctx, status int, err *apperr.AppError) error {
	return Error(c, status, err.Code, err.Message, err.Details)
}

func ValidationError(c *fiber.Ctx, message, details string) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func InvalidFileType(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, CodeInvalidFileType, message, "")
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, "")
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", "")
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, "")
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}
