package models

import (
	"errors"
	"time"
)

// RefreshToken is the server-side record of an issued refresh token. ID is the
// token's jti. A record with ReplacedBy set is always revoked.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	ReplacedBy *string    `db:"replaced_by" json:"replaced_by,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Live reports whether the record can still be redeemed at the given instant.
func (t *RefreshToken) Live(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}

// SessionInfo is the public view of a live refresh record.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	// ErrRefreshTokenNotFound is returned by store mutations addressing an unknown id.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenConflict is returned when a rotation targets a record that
	// is already revoked, typically because a concurrent rotation won.
	ErrRefreshTokenConflict = errors.New("refresh token already revoked")
)
