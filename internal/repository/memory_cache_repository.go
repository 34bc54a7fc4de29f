package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
)

const maxMemoryCacheEntries = 10000

// MemoryCacheRepository keeps JSON payloads in process memory. It backs the
// user cache when Redis is not deployed; entries are not shared between
// replicas.
type MemoryCacheRepository struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemoryCacheRepository builds a bounded in-process cache.
func NewMemoryCacheRepository() (*MemoryCacheRepository, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxMemoryCacheEntries * 10,
		MaxCost:     maxMemoryCacheEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryCacheRepository{cache: c}, nil
}

// Get unmarshals the cached value into dest.
func (r *MemoryCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := r.cache.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.cache.Del(key)
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value for ttl. Every entry costs one unit.
func (r *MemoryCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	r.cache.SetWithTTL(key, payload, 1, ttl)
	r.cache.Wait()
	return nil
}

// Delete removes the given keys.
func (r *MemoryCacheRepository) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		r.cache.Del(key)
	}
	r.cache.Wait()
	return nil
}

// Close releases the cache goroutines.
func (r *MemoryCacheRepository) Close() {
	r.cache.Close()
}
