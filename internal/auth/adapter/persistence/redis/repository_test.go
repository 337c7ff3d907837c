package redis_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	authredis "feedback-sync/internal/auth/adapter/persistence/redis"
	"feedback-sync/internal/auth/domain/model"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepository(t *testing.T) *authredis.Repository {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return authredis.NewRepository(client)
}

func TestRepository_Accounts(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	email := fmt.Sprintf("user-%d@example.com", time.Now().UnixNano())

	require.NoError(t, repo.CreateAccount(ctx, &model.Account{UID: "u-1", Email: email, PasswordHash: "hash"}))

	account, err := repo.GetAccountByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "u-1", account.UID)
	assert.Equal(t, "hash", account.PasswordHash)

	err = repo.CreateAccount(ctx, &model.Account{UID: "u-2", Email: email})
	assert.True(t, errors.Is(err, apperrors.ErrEmailTaken))

	_, err = repo.GetAccountByEmail(ctx, "missing-"+email)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepository_Profiles(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.GetProfile(ctx, "u-7")
	assert.True(t, errors.Is(err, apperrors.ErrProfileNotFound))

	profile := &sessionmodel.Profile{Identity: "u-7", DisplayName: "Caio", Email: "caio@example.com", AccessLevel: sessionmodel.AccessLevelUser}
	require.NoError(t, repo.SaveProfile(ctx, profile))

	got, err := repo.GetProfile(ctx, "u-7")
	require.NoError(t, err)
	assert.Equal(t, profile, got)
}
