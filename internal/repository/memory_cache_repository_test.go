package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	repo, err := NewMemoryCacheRepository()
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	type profile struct {
		Email string `json:"email"`
	}

	require.NoError(t, repo.Set(ctx, "auth:user:u1", profile{Email: "user@example.com"}, time.Minute))

	var got profile
	require.NoError(t, repo.Get(ctx, "auth:user:u1", &got))
	assert.Equal(t, "user@example.com", got.Email)

	require.NoError(t, repo.Delete(ctx, "auth:user:u1"))
	assert.ErrorIs(t, repo.Get(ctx, "auth:user:u1", &got), appErrors.ErrCacheMiss)
}

func TestMemoryCacheMissAndUndecodable(t *testing.T) {
	repo, err := NewMemoryCacheRepository()
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "missing", &dest), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "list", []int{1, 2}, time.Minute))
	assert.ErrorIs(t, repo.Get(ctx, "list", &dest), appErrors.ErrCacheMiss)
	assert.ErrorIs(t, repo.Get(ctx, "list", &dest), appErrors.ErrCacheMiss)
}
