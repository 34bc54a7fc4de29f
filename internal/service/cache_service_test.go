package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-auth-api/internal/models"
	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
)

type memoryCache struct {
	items  map[string][]byte
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	cache := NewCacheService(newMemoryCache(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var info models.UserInfo
	hit, err := cache.Get(ctx, "user:u1", &info)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "user:u1", models.UserInfo{ID: "u1"}, 0))
	hit, err = cache.Get(ctx, "user:u1", &info)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "u1", info.ID)

	require.NoError(t, cache.Invalidate(ctx, "user:u1"))
	hit, _ = cache.Get(ctx, "user:u1", &info)
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, time.Minute, nil, false)

	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
	assert.Empty(t, repo.items)
	assert.False(t, cache.Enabled())
}

func TestCacheServiceGetError(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("redis down")
	cache := NewCacheService(repo, nil, time.Minute, nil, true)

	var info models.UserInfo
	hit, err := cache.Get(context.Background(), "k", &info)
	assert.False(t, hit)
	assert.Error(t, err)
}
