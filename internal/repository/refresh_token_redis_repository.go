package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/gym-auth-api/internal/models"
)

const (
	refreshTokenKeyPrefix     = "refresh_token:"
	refreshTokenUserKeyPrefix = "refresh_token:user:"
	// Records outlive their expiry a little so a token that expires in-flight
	// still maps onto its record.
	redisRecordGrace = time.Minute
)

const createRefreshScript = `
redis.call("HSET", KEYS[1], "user_id", ARGV[2], "expires_at", ARGV[3], "revoked", "0", "created_at", ARGV[4])
redis.call("PEXPIREAT", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("PEXPIREAT", KEYS[2], ARGV[5])
return 1
`

const markRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return -1
end
redis.call("HSET", KEYS[1], "revoked", "1", "replaced_by", ARGV[1], "revoked_at", ARGV[2])
return 1
`

const rotateRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return -1
end
redis.call("HSET", KEYS[1], "revoked", "1", "replaced_by", ARGV[1], "revoked_at", ARGV[4])
redis.call("HSET", KEYS[2], "user_id", ARGV[2], "expires_at", ARGV[3], "revoked", "0", "created_at", ARGV[4])
redis.call("PEXPIREAT", KEYS[2], ARGV[5])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("PEXPIREAT", KEYS[3], ARGV[5])
return 1
`

const revokeAllRefreshScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 1 then
    if redis.call("HGET", key, "revoked") ~= "1" then
      redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[2])
      revoked = revoked + 1
    end
  else
    redis.call("SREM", KEYS[1], id)
  end
end
return revoked
`

var (
	createRefreshLua    = redis.NewScript(createRefreshScript)
	markRefreshLua      = redis.NewScript(markRefreshScript)
	rotateRefreshLua    = redis.NewScript(rotateRefreshScript)
	revokeAllRefreshLua = redis.NewScript(revokeAllRefreshScript)
)

const (
	redisStatusNotFound = 0
	redisStatusRevoked  = -1
	redisStatusOK       = 1
)

// RefreshTokenRedisRepository stores refresh token records in Redis. Every
// mutation is a Lua script so it applies atomically. The revoke-all script
// touches keys derived from set members, which requires a single-node deployment.
type RefreshTokenRedisRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRefreshTokenRedisRepository constructs a Redis-backed record store.
func NewRefreshTokenRedisRepository(client *redis.Client) *RefreshTokenRedisRepository {
	return &RefreshTokenRedisRepository{client: client, now: time.Now}
}

func refreshTokenKey(id string) string {
	return refreshTokenKeyPrefix + id
}

func refreshTokenUserKey(userID string) string {
	return refreshTokenUserKeyPrefix + userID
}

func unixMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Create persists an unrevoked record for the user and returns its id.
func (r *RefreshTokenRedisRepository) Create(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := createRefreshLua.Run(ctx, r.client,
		[]string{refreshTokenKey(id), refreshTokenUserKey(userID)},
		id, userID, unixMillis(expiresAt), unixMillis(r.now()), unixMillis(expiresAt.Add(redisRecordGrace)),
	).Result()
	if err != nil {
		return "", fmt.Errorf("create refresh token: %w", err)
	}
	return id, nil
}

// GetByID returns the record or nil when no record carries the id.
func (r *RefreshTokenRedisRepository) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, refreshTokenKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRefreshHash(id, fields)
}

// MarkRevokedAndReplaced revokes an active record and links its successor.
func (r *RefreshTokenRedisRepository) MarkRevokedAndReplaced(ctx context.Context, id, newID string) error {
	status, err := markRefreshLua.Run(ctx, r.client, []string{refreshTokenKey(id)}, newID, unixMillis(r.now())).Int64()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return statusError(status)
}

// Rotate revokes id and creates its successor in one script execution.
func (r *RefreshTokenRedisRepository) Rotate(ctx context.Context, id, userID string, expiresAt time.Time) (string, error) {
	newID := uuid.NewString()
	status, err := rotateRefreshLua.Run(ctx, r.client,
		[]string{refreshTokenKey(id), refreshTokenKey(newID), refreshTokenUserKey(userID)},
		newID, userID, unixMillis(expiresAt), unixMillis(r.now()), unixMillis(expiresAt.Add(redisRecordGrace)),
	).Int64()
	if err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	if err := statusError(status); err != nil {
		return "", err
	}
	return newID, nil
}

// RevokeAll revokes every record owned by the user and reports how many were
// newly revoked.
func (r *RefreshTokenRedisRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	count, err := revokeAllRefreshLua.Run(ctx, r.client,
		[]string{refreshTokenUserKey(userID)},
		refreshTokenKeyPrefix, unixMillis(r.now()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return count, nil
}

// ListActiveByUser returns the unrevoked, unexpired records of a user, newest first.
func (r *RefreshTokenRedisRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	ids, err := r.client.SMembers(ctx, refreshTokenUserKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, refreshTokenKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	now := r.now()
	records := make([]models.RefreshToken, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		record, err := decodeRefreshHash(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if record.Live(now) {
			records = append(records, *record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Ping verifies Redis is reachable.
func (r *RefreshTokenRedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func statusError(status int64) error {
	switch status {
	case redisStatusOK:
		return nil
	case redisStatusNotFound:
		return models.ErrRefreshTokenNotFound
	case redisStatusRevoked:
		return models.ErrRefreshTokenConflict
	default:
		return fmt.Errorf("unexpected refresh script status %d", status)
	}
}

func decodeRefreshHash(id string, fields map[string]string) (*models.RefreshToken, error) {
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token %s expires_at: %w", id, err)
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token %s created_at: %w", id, err)
	}

	record := &models.RefreshToken{
		ID:        id,
		UserID:    fields["user_id"],
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
		Revoked:   fields["revoked"] == "1",
	}
	if replacedBy, ok := fields["replaced_by"]; ok && replacedBy != "" {
		record.ReplacedBy = &replacedBy
	}
	if raw, ok := fields["revoked_at"]; ok && raw != "" {
		revokedAt, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("decode refresh token %s revoked_at: %w", id, err)
		}
		record.RevokedAt = &revokedAt
	}
	return record, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
