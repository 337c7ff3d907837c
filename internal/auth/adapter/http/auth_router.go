package http

import (
	"feedback-sync/internal/auth/domain/repository"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// credentials is the sign-in and sign-up body.
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthHTTPHandler exposes an IdentityProvider and a ProfileRepository over HTTP
// for remote clients.
type AuthHTTPHandler struct {
	provider repository.IdentityProvider
	profiles repository.ProfileRepository
	logger   logger.Logger
}

// NewAuthHTTPHandler creates a new authentication HTTP handler
func NewAuthHTTPHandler(provider repository.IdentityProvider, profiles repository.ProfileRepository, log logger.Logger) *AuthHTTPHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthHTTPHandler{provider: provider, profiles: profiles, logger: log.WithComponent("auth_http")}
}

// SetupRoutes mounts the auth and profile routes on router.
func (h *AuthHTTPHandler) SetupRoutes(router fiber.Router, middleware *AuthMiddleware) {
	auth := router.Group("/auth")
	auth.Post("/signup", h.SignUp)
	auth.Post("/signin", h.SignIn)
	auth.Post("/signout", middleware.Protect(), h.SignOut)

	profiles := router.Group("/profiles", middleware.Protect())
	profiles.Get("/:uid", h.GetProfile)
	profiles.Put("/:uid", h.SaveProfile)
}

// SignUp handles account creation
func (h *AuthHTTPHandler) SignUp(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return RespondError(c, apperrors.ErrInvalidRequest.New().WithCause(err))
	}
	identity, err := h.provider.SignUp(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(identity)
}

// SignIn handles sign-in
func (h *AuthHTTPHandler) SignIn(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return RespondError(c, apperrors.ErrInvalidRequest.New().WithCause(err))
	}
	identity, err := h.provider.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(identity)
}

// SignOut handles sign-out
func (h *AuthHTTPHandler) SignOut(c *fiber.Ctx) error {
	if err := h.provider.SignOut(c.UserContext()); err != nil {
		return RespondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetProfile returns users/{uid}. Callers may only read their own profile.
func (h *AuthHTTPHandler) GetProfile(c *fiber.Ctx) error {
	uid, err := h.ownUID(c)
	if err != nil {
		return RespondError(c, err)
	}
	profile, err := h.profiles.GetProfile(c.UserContext(), uid)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(profile)
}

// SaveProfile writes users/{uid}. The path uid wins over the body.
func (h *AuthHTTPHandler) SaveProfile(c *fiber.Ctx) error {
	uid, err := h.ownUID(c)
	if err != nil {
		return RespondError(c, err)
	}
	var profile sessionmodel.Profile
	if err := c.BodyParser(&profile); err != nil {
		return RespondError(c, apperrors.ErrInvalidRequest.New().WithCause(err))
	}
	profile.Identity = uid
	if err := h.profiles.SaveProfile(c.UserContext(), &profile); err != nil {
		return RespondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHTTPHandler) ownUID(c *fiber.Ctx) (string, error) {
	caller, ok := GetUserID(c)
	if !ok {
		return "", apperrors.NewAuthenticationError("authentication required")
	}
	uid := c.Params("uid")
	if uid != caller {
		h.logger.WithContext(c.UserContext()).Warnf("profile %s requested by %s", uid, caller)
		return "", apperrors.ErrPermissionDenied.New().WithDetail("uid", uid)
	}
	return uid, nil
}
