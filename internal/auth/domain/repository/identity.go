package repository

import (
	"context"

	"feedback-sync/internal/auth/domain/model"
	sessionmodel "feedback-sync/internal/session/model"
)

// IdentityProvider authenticates users. Failures are AppErrors of the
// authentication type (invalid-credentials, email-taken).
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	SignOut(ctx context.Context) error
}

// ProfileRepository reads and writes profile documents, keyed by identity.
// GetProfile returns profile-not-found when no document exists.
type ProfileRepository interface {
	GetProfile(ctx context.Context, uid string) (*sessionmodel.Profile, error)
	SaveProfile(ctx context.Context, profile *sessionmodel.Profile) error
}

// AccountRepository stores credentials for the local provider.
type AccountRepository interface {
	// CreateAccount fails with email-taken when the address is in use.
	CreateAccount(ctx context.Context, account *model.Account) error
	// GetAccountByEmail returns a not-found error for unknown addresses.
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
}
