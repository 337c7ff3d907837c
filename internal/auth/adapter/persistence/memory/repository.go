// Package memory keeps accounts and profile documents in process memory.
// It backs the memory store backend and the dev store server.
package memory

import (
	"context"
	"sync"
	"time"

	"feedback-sync/internal/auth/domain/model"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"
)

// Repository implements AccountRepository and ProfileRepository.
type Repository struct {
	mu       sync.RWMutex
	accounts map[string]model.Account // by normalized email
	profiles map[string]sessionmodel.Profile
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[string]model.Account),
		profiles: make(map[string]sessionmodel.Profile),
	}
}

func (r *Repository) CreateAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return apperrors.NewValidationError("account cannot be nil")
	}
	email := model.NormalizeEmail(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[email]; exists {
		return apperrors.ErrEmailTaken.New().WithDetail("email", email)
	}
	stored := *account
	stored.Email = email
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.accounts[email] = stored
	return nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[model.NormalizeEmail(email)]
	if !ok {
		return nil, apperrors.NewNotFoundError("account")
	}
	return &account, nil
}

func (r *Repository) GetProfile(ctx context.Context, uid string) (*sessionmodel.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[uid]
	if !ok {
		return nil, apperrors.ErrProfileNotFound.New().WithDetail("uid", uid)
	}
	return &p, nil
}

func (r *Repository) SaveProfile(ctx context.Context, profile *sessionmodel.Profile) error {
	if profile == nil {
		return apperrors.NewValidationError("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Identity] = *profile
	return nil
}
