package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, gone, conflict, recenter_failed, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errGone returns a 410 error.
func errGone(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusGone, "gone", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// sessionError maps core errors onto API errors.
func sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return errNotFound(c, "session not found")
	case errors.Is(err, domain.ErrSessionClosed):
		return errGone(c, "session closed")
	case errors.Is(err, domain.ErrMapNotMounted):
		return errConflict(c, "map is not mounted")
	case errors.Is(err, domain.ErrInvalidTarget):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrRecenterFailed):
		return newError(c, fiber.StatusServiceUnavailable, "recenter_failed", err.Error())
	default:
		LoggerFromCtx(c.UserContext()).Error("session operation failed", "error", err)
		return errInternal(c, err.Error())
	}
}
