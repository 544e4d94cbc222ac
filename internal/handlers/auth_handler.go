package handlers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"gatekeep/internal/metrics"
	"gatekeep/internal/middleware"
	"gatekeep/internal/services"
	"gatekeep/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const avatarURL = "https://ui-avatars.com/api/?background=6366f1&color=fff&name="

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	metrics     *metrics.Metrics
	timeout     time.Duration
	log         logrus.FieldLogger
}

// NewAuthHandler creates a new AuthHandler. Each request gets timeout to
// finish its store and hashing work.
func NewAuthHandler(authService *services.AuthService, m *metrics.Metrics, timeout time.Duration, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     m,
		timeout:     timeout,
		log:         log,
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", h.HandleRegister)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Post("/validate", h.HandleValidate)
	authRoutes.Post("/password-strength", h.HandlePasswordStrength)
	authRoutes.Get("/dashboard", middleware.AuthRequired(h.authService, h.metrics), h.HandleDashboard)
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// HandleRegister handles new account registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		h.log.WithError(err).Debug("Error parsing register request body")
		h.metrics.RecordRegistration(metrics.OutcomeInvalid)
		return badRequest(c, string(validation.ReasonInvalidFormat), "", "Invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	account, err := h.authService.Register(ctx, services.RegisterInput{
		Username:       req.Username,
		Password:       req.Password,
		Email:          req.Email,
		RegistrationIP: c.IP(),
	})
	if err != nil {
		h.metrics.RecordRegistration(registrationOutcome(err))
		return h.registerError(c, err)
	}

	h.metrics.RecordRegistration(metrics.OutcomeSuccess)
	return c.Status(fiber.StatusCreated).JSON(account)
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles login and issues a JWT token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		h.log.WithError(err).Debug("Error parsing login request body")
		h.metrics.RecordLogin(metrics.OutcomeInvalid)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid request body"})
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.authService.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.metrics.RecordLogin(loginOutcome(err))
		return h.loginError(c, err)
	}

	h.metrics.RecordLogin(metrics.OutcomeSuccess)
	return c.JSON(result)
}

// ValidateRequest carries any subset of the registration fields.
type ValidateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// HandleValidate reports a verdict for every field present in the body. It
// never touches the store.
func (h *AuthHandler) HandleValidate(c *fiber.Ctx) error {
	var req ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, string(validation.ReasonInvalidFormat), "", "Invalid request body")
	}

	results := make([]validation.Result, 0, 3)
	if req.Username != nil {
		results = append(results, validation.ValidateUsername(*req.Username))
	}
	if req.Email != nil {
		results = append(results, validation.ValidateEmail(*req.Email))
	}
	if req.Password != nil {
		results = append(results, validation.ValidatePassword(*req.Password))
	}
	_, failed := validation.FirstFailure(results...)

	return c.JSON(fiber.Map{
		"valid":   !failed,
		"results": results,
	})
}

// StrengthRequest is the body of a password strength query.
type StrengthRequest struct {
	Password string `json:"password"`
}

// HandlePasswordStrength scores a candidate password.
func (h *AuthHandler) HandlePasswordStrength(c *fiber.Ctx) error {
	var req StrengthRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, string(validation.ReasonInvalidFormat), "", "Invalid request body")
	}
	return c.JSON(validation.PasswordStrength(req.Password))
}

// HandleDashboard returns the profile of the authenticated account.
func (h *AuthHandler) HandleDashboard(c *fiber.Ctx) error {
	accountID, _ := c.Locals(middleware.LocalAccountID).(string)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	profile, err := h.authService.Profile(ctx, accountID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Account not found"})
		}
		h.log.WithError(err).WithField("account_id", accountID).Error("Error loading dashboard data")
		return internalError(c, "Error loading dashboard data")
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"name":   profile.Username,
			"avatar": avatarURL + url.QueryEscape(profile.Username),
		},
		"profile": profile,
	})
}

func (h *AuthHandler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}
