// Package redis keeps accounts and profile documents in Redis for the redis
// store backend.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"feedback-sync/internal/auth/domain/model"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"

	goredis "github.com/redis/go-redis/v9"
)

// Repository implements AccountRepository and ProfileRepository. Accounts are
// JSON strings under accounts:{email}; profiles are hashes under users:{uid}.
type Repository struct {
	client *goredis.Client
}

// NewRepository wraps client.
func NewRepository(client *goredis.Client) *Repository {
	return &Repository{client: client}
}

// storedAccount keeps the hash that Account hides from JSON.
type storedAccount struct {
	model.Account
	PasswordHash string `json:"passwordHash"`
}

func accountKey(email string) string { return "accounts:" + model.NormalizeEmail(email) }
func profileKey(uid string) string   { return "users:" + uid }

func (r *Repository) CreateAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return apperrors.NewValidationError("account cannot be nil")
	}
	stored := *account
	stored.Email = model.NormalizeEmail(account.Email)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(storedAccount{Account: stored, PasswordHash: stored.PasswordHash})
	if err != nil {
		return err
	}

	created, err := r.client.SetNX(ctx, accountKey(stored.Email), payload, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return apperrors.ErrEmailTaken.New().WithDetail("email", stored.Email)
	}
	return nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	raw, err := r.client.Get(ctx, accountKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperrors.NewNotFoundError("account")
		}
		return nil, err
	}
	var stored storedAccount
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	account := stored.Account
	account.PasswordHash = stored.PasswordHash
	return &account, nil
}

func (r *Repository) GetProfile(ctx context.Context, uid string) (*sessionmodel.Profile, error) {
	fields, err := r.client.HGetAll(ctx, profileKey(uid)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrProfileNotFound.New().WithDetail("uid", uid)
	}
	level, err := sessionmodel.ParseAccessLevel(fields["accessLevel"])
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	return &sessionmodel.Profile{
		Identity:    fields["uid"],
		DisplayName: fields["name"],
		Email:       fields["email"],
		AccessLevel: level,
	}, nil
}

func (r *Repository) SaveProfile(ctx context.Context, profile *sessionmodel.Profile) error {
	if profile == nil {
		return apperrors.NewValidationError("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	key := profileKey(profile.Identity)
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", profile.Identity,
			"name", profile.DisplayName,
			"email", profile.Email,
			"accessLevel", string(profile.AccessLevel),
		)
		pipe.HSetNX(ctx, key, "createdAt", time.Now().UTC().Format(time.RFC3339Nano))
		return nil
	})
	return err
}
