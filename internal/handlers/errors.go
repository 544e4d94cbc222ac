package handlers

import (
	"context"
	"errors"

	"gatekeep/internal/metrics"
	"gatekeep/internal/services"
	"gatekeep/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// Reasons reported for registration conflicts.
const (
	ReasonDuplicateUsername = "DuplicateUsername"
	ReasonDuplicateEmail    = "DuplicateEmail"
)

// badRequest writes a 400 {reason, field?, msg} body.
func badRequest(c *fiber.Ctx, reason, field, msg string) error {
	body := fiber.Map{"reason": reason, "msg": msg}
	if field != "" {
		body["field"] = field
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// internalError never carries the underlying error to the client.
func internalError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}

func timedOut(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Request timed out"})
}

func (h *AuthHandler) registerError(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return badRequest(c, string(verr.Reason), verr.Field, verr.Message)
	case errors.Is(err, services.ErrDuplicateUsername):
		return badRequest(c, ReasonDuplicateUsername, validation.FieldUsername, "Username already exists")
	case errors.Is(err, services.ErrDuplicateEmail):
		return badRequest(c, ReasonDuplicateEmail, validation.FieldEmail, "Email already registered")
	case errors.Is(err, context.DeadlineExceeded):
		h.log.WithError(err).Warn("Registration timed out")
		return timedOut(c)
	}
	h.log.WithError(err).Error("Registration error")
	return internalError(c, "Internal server error during registration")
}

func (h *AuthHandler) loginError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrMissingFields):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Username and password are required"})
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid credentials"})
	case errors.Is(err, context.DeadlineExceeded):
		h.log.WithError(err).Warn("Login timed out")
		return timedOut(c)
	}
	h.log.WithError(err).Error("Login error")
	return internalError(c, "Internal server error during login")
}

func registrationOutcome(err error) string {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return metrics.OutcomeInvalid
	case errors.Is(err, services.ErrDuplicateUsername), errors.Is(err, services.ErrDuplicateEmail):
		return metrics.OutcomeDuplicate
	}
	return metrics.OutcomeError
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, services.ErrMissingFields):
		return metrics.OutcomeMissing
	case errors.Is(err, services.ErrInvalidCredentials):
		return metrics.OutcomeInvalidCredentials
	}
	return metrics.OutcomeError
}
