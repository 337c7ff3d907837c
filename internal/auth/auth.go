// Package auth assembles the local identity stack: token service, bcrypt
// provider and the HTTP surface the dev store exposes to remote clients.
package auth

import (
	"fmt"

	authhttp "feedback-sync/internal/auth/adapter/http"
	"feedback-sync/internal/auth/adapter/local"
	"feedback-sync/internal/auth/adapter/security"
	"feedback-sync/internal/auth/config"
	"feedback-sync/internal/auth/domain/repository"
	"feedback-sync/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// AuthModule represents the complete authentication module
type AuthModule struct {
	tokens     repository.TokenService
	provider   repository.IdentityProvider
	profiles   repository.ProfileRepository
	handler    *authhttp.AuthHTTPHandler
	middleware *authhttp.AuthMiddleware
}

// NewAuthModule creates a new authentication module instance
func NewAuthModule(
	accounts repository.AccountRepository,
	profiles repository.ProfileRepository,
	cfg *config.Config,
	log logger.Logger,
) (*AuthModule, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	tokens, err := security.NewJWTokenService(cfg.JWTSecretKey, cfg.JWTIssuer, cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	provider := local.NewProvider(accounts, tokens, log, local.WithBcryptCost(cfg.BcryptCost))

	return &AuthModule{
		tokens:     tokens,
		provider:   provider,
		profiles:   profiles,
		handler:    authhttp.NewAuthHTTPHandler(provider, profiles, log),
		middleware: authhttp.NewAuthMiddleware(tokens, log),
	}, nil
}

// RegisterRoutes registers authentication routes with the provided router
func (am *AuthModule) RegisterRoutes(router fiber.Router) {
	am.handler.SetupRoutes(router, am.middleware)
}

// Provider returns the identity provider.
func (am *AuthModule) Provider() repository.IdentityProvider { return am.provider }

// Profiles returns the profile repository.
func (am *AuthModule) Profiles() repository.ProfileRepository { return am.profiles }

// Tokens returns the token service.
func (am *AuthModule) Tokens() repository.TokenService { return am.tokens }

// Middleware returns the auth middleware
func (am *AuthModule) Middleware() *authhttp.AuthMiddleware { return am.middleware }
