package testutil

import (
	"fmt"
	"time"

	"feedback-sync/internal/auth/config"
	"feedback-sync/internal/auth/domain/model"
	sessionmodel "feedback-sync/internal/session/model"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the plain password behind every fixture account.
const DefaultPassword = "password123"

// AccountFixture provides test data for accounts and profiles
type AccountFixture struct{}

// NewAccountFixture creates a new AccountFixture instance
func NewAccountFixture() *AccountFixture {
	return &AccountFixture{}
}

// AccountWithEmail returns an account whose password is DefaultPassword.
// It hashes with bcrypt.MinCost to keep tests fast.
func (f *AccountFixture) AccountWithEmail(email string) *model.Account {
	hash, _ := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	return &model.Account{
		UID:          "uid-" + model.NormalizeEmail(email),
		Email:        model.NormalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
}

// ProfileFor returns a user level profile for account.
func (f *AccountFixture) ProfileFor(account *model.Account) *sessionmodel.Profile {
	return &sessionmodel.Profile{
		Identity:    account.UID,
		DisplayName: fmt.Sprintf("User %s", account.Email),
		Email:       account.Email,
		AccessLevel: sessionmodel.AccessLevelUser,
	}
}

// Config returns an auth configuration suitable for tests.
func Config() *config.Config {
	return &config.Config{
		JWTSecretKey:   "test-secret-key-that-is-long-enough",
		JWTIssuer:      "feedback-sync-test",
		AccessTokenTTL: time.Hour,
		BcryptCost:     bcrypt.MinCost,
	}
}
