// Package local authenticates against an AccountRepository with bcrypt
// password hashes and issues JWTs. It stands in for a hosted identity
// service in the memory, redis and mongo backends and inside the dev store.
package local

import (
	"context"
	"fmt"
	"time"

	"feedback-sync/internal/auth/domain/model"
	"feedback-sync/internal/auth/domain/repository"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Provider implements repository.IdentityProvider.
type Provider struct {
	accounts repository.AccountRepository
	tokens   repository.TokenService
	cost     int
	logger   logger.Logger
}

// Option customizes a Provider.
type Option func(*Provider)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// NewProvider creates a provider over accounts and tokens.
func NewProvider(accounts repository.AccountRepository, tokens repository.TokenService, log logger.Logger, opts ...Option) *Provider {
	if log == nil {
		log = logger.NewNopLogger()
	}
	p := &Provider{
		accounts: accounts,
		tokens:   tokens,
		cost:     bcrypt.DefaultCost,
		logger:   log.WithComponent("identity_provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &model.Account{
		UID:          uuid.New().String(),
		Email:        model.NormalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).WithFields(map[string]interface{}{"uid": account.UID}).Info("account created")
	return p.issue(ctx, account)
}

// SignIn checks the password against the stored hash. Unknown emails and
// wrong passwords both return invalid-credentials.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	account, err := p.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrInvalidCredentials.New()
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials.New()
	}
	return p.issue(ctx, account)
}

// SignOut is a no-op: tokens are stateless and expire on their own.
func (p *Provider) SignOut(ctx context.Context) error {
	p.logger.WithContext(ctx).Debug("signed out")
	return nil
}

func (p *Provider) issue(ctx context.Context, account *model.Account) (*model.Identity, error) {
	token, err := p.tokens.GenerateToken(ctx, account.UID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &model.Identity{UID: account.UID, Email: account.Email, Token: token}, nil
}
