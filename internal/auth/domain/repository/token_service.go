package repository

import (
	"context"

	"feedback-sync/internal/auth/domain/model"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and checks the bearer tokens handed to clients.
type TokenService interface {
	GenerateToken(ctx context.Context, userID, email string) (string, error)
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity converts the claims back into the identity they were issued for.
func (c *Claims) Identity(token string) *model.Identity {
	return &model.Identity{UID: c.UserID, Email: c.Email, Token: token}
}
