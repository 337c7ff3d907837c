package http

import (
	"context"
	"strings"

	"feedback-sync/internal/auth/domain/repository"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Locals keys set by Protect.
const (
	LocalUserID    = "user_id"
	LocalUserEmail = "user_email"
)

// AuthMiddleware provides authentication middleware for Fiber
type AuthMiddleware struct {
	tokens repository.TokenService
	logger logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens repository.TokenService, log logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthMiddleware{tokens: tokens, logger: log.WithComponent("auth_middleware")}
}

// SecurityHeaders adds security headers
func (m *AuthMiddleware) SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return c.Next()
	}
}

// RequestID middleware
func (m *AuthMiddleware) RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     "X-Request-ID",
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// Protect returns middleware that requires a valid bearer token. The user id
// lands in the user context (for stores that apply rules) and in Locals (for
// websocket handlers, which only see Locals).
func (m *AuthMiddleware) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := extractToken(c)
		if !ok {
			return RespondError(c, apperrors.NewAuthenticationError("authentication required"))
		}

		claims, err := m.tokens.ValidateToken(c.UserContext(), token)
		if err != nil {
			m.logger.Debugf("rejected token on %s: %v", c.Path(), err)
			return RespondError(c, err)
		}

		ctx := contextkeys.WithUserID(c.UserContext(), claims.UserID)
		if rid, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok {
			ctx = context.WithValue(ctx, contextkeys.RequestIDKey, rid)
		}
		c.SetUserContext(ctx)
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUserEmail, claims.Email)
		return c.Next()
	}
}

// extractToken reads the Authorization header, then the token query
// parameter used by websocket clients.
func extractToken(c *fiber.Ctx) (string, bool) {
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		if token := strings.TrimPrefix(h, "Bearer "); token != "" {
			return token, true
		}
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetUserID helper function to get user ID from context
func GetUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals(LocalUserID).(string)
	return userID, ok && userID != ""
}

// GetUserEmail helper function to get user email from context
func GetUserEmail(c *fiber.Ctx) (string, bool) {
	email, ok := c.Locals(LocalUserEmail).(string)
	return email, ok
}

// RespondError writes err as a serialized AppError with its HTTP status.
func RespondError(c *fiber.Ctx, err error) error {
	appErr := apperrors.WrapError(err, "internal error")
	return c.Status(apperrors.HTTPStatus(appErr)).JSON(appErr)
}
