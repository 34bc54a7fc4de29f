package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gym-auth-api/internal/models"
)

const refreshTokenColumns = `id, user_id, expires_at, revoked, replaced_by, revoked_at, created_at`

// RefreshTokenRepository stores refresh token records in PostgreSQL.
type RefreshTokenRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, now: time.Now}
}

// Create persists an unrevoked record for the user and returns its id.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	record := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: r.now().UTC(),
	}
	if err := insertRefreshToken(ctx, r.db, record); err != nil {
		return "", err
	}
	return record.ID, nil
}

// GetByID returns the record or nil when no record carries the id.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// MarkRevokedAndReplaced revokes an active record and links its successor in a
// single conditional update. It fails with ErrRefreshTokenConflict when the
// record was already revoked.
func (r *RefreshTokenRepository) MarkRevokedAndReplaced(ctx context.Context, id, newID string) error {
	return markRevokedAndReplaced(ctx, r.db, id, newID, r.now().UTC())
}

// Rotate revokes id, links it to a freshly allocated successor and inserts the
// successor, all in one transaction. Exactly one concurrent caller can win for
// a given id; the others get ErrRefreshTokenConflict.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, id, userID string, expiresAt time.Time) (newID string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin rotation transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.now().UTC()
	successor := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}

	if err = markRevokedAndReplaced(ctx, tx, id, successor.ID, now); err != nil {
		return "", err
	}
	if err = insertRefreshToken(ctx, tx, successor); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit rotation: %w", err)
	}
	return successor.ID, nil
}

// RevokeAll revokes every record owned by the user and reports how many were
// newly revoked.
func (r *RefreshTokenRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return affected, nil
}

// ListActiveByUser returns the unrevoked, unexpired records of a user, newest first.
func (r *RefreshTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2 ORDER BY created_at DESC`
	var records []models.RefreshToken
	if err := r.db.SelectContext(ctx, &records, query, userID, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return records, nil
}

// Ping verifies the database is reachable.
func (r *RefreshTokenRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func insertRefreshToken(ctx context.Context, exec sqlx.ExtContext, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, expires_at, revoked, replaced_by, revoked_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := exec.ExecContext(ctx, query, token.ID, token.UserID, token.ExpiresAt, token.Revoked, token.ReplacedBy, token.RevokedAt, token.CreatedAt); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func markRevokedAndReplaced(ctx context.Context, exec sqlx.ExtContext, id, newID string, revokedAt time.Time) error {
	const update = `UPDATE refresh_tokens SET revoked = TRUE, replaced_by = $2, revoked_at = $3 WHERE id = $1 AND revoked = FALSE`
	res, err := exec.ExecContext(ctx, update, id, newID, revokedAt)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if affected == 1 {
		return nil
	}

	const lookup = `SELECT revoked FROM refresh_tokens WHERE id = $1`
	var revoked bool
	if err := sqlx.GetContext(ctx, exec, &revoked, lookup, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrRefreshTokenNotFound
		}
		return fmt.Errorf("inspect refresh token: %w", err)
	}
	return models.ErrRefreshTokenConflict
}

// PurgeExpired deletes records that expired before the cutoff and returns how
// many were removed. Tokens past expiry are rejected by signature checks
// before the store is consulted, so their records carry no further meaning.
func (r *RefreshTokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens rows affected: %w", err)
	}
	return count, nil
}
