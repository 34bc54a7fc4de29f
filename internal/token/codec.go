package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/gym-auth-api/internal/models"
)

const (
	AudienceAccess  = "access"
	AudienceRefresh = "refresh"
)

// Config describes one signing purpose.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Codec holds the HS256 signing state shared by both token purposes.
type Codec struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// UnverifiedClaims are read from a token without checking its signature. They
// identify whose sessions to revoke defensively and must never authorize anything.
type UnverifiedClaims struct {
	UserID string
	ID     string
}

type unverifiedPayload struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func newCodec(cfg Config, audience string) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%s token secret is required", audience)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%s token ttl must be positive", audience)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Codec{secret: secret, ttl: cfg.TTL, issuer: cfg.Issuer, audience: audience, now: now}, nil
}

// TTL returns the configured lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Now returns the codec clock reading in UTC.
func (c *Codec) Now() time.Time {
	return c.now().UTC()
}

// DecodeUnsafe reads the subject and jti of a token without verifying it.
func (c *Codec) DecodeUnsafe(raw string) (UnverifiedClaims, bool) {
	if raw == "" {
		return UnverifiedClaims{}, false
	}
	payload := &unverifiedPayload{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, payload); err != nil {
		return UnverifiedClaims{}, false
	}
	userID := payload.UserID
	if userID == "" {
		userID = payload.Subject
	}
	if userID == "" {
		return UnverifiedClaims{}, false
	}
	return UnverifiedClaims{UserID: userID, ID: payload.ID}, true
}

func (c *Codec) registered(subject, id string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{c.audience},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ID:        id,
	}
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", c.audience, err)
	}
	return signed, nil
}

func (c *Codec) parse(raw string, claims jwt.Claims) error {
	if raw == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// AccessCodec issues and verifies access tokens asserting a principal.
type AccessCodec struct {
	*Codec
}

// NewAccessCodec builds an access token codec.
func NewAccessCodec(cfg Config) (*AccessCodec, error) {
	codec, err := newCodec(cfg, AudienceAccess)
	if err != nil {
		return nil, err
	}
	return &AccessCodec{Codec: codec}, nil
}

// Issue signs an access token for the principal.
func (a *AccessCodec) Issue(principal models.Principal) (string, time.Time, error) {
	if principal.UserID == "" {
		return "", time.Time{}, errors.New("access token requires a user id")
	}
	issuedAt := a.Now()
	expiresAt := issuedAt.Add(a.ttl)
	claims := &models.JWTClaims{
		UserID:           principal.UserID,
		Email:            principal.Email,
		Role:             principal.Role,
		RegisteredClaims: a.registered(principal.UserID, uuid.NewString(), issuedAt, expiresAt),
	}
	signed, err := a.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, audience and expiry and returns the claims.
func (a *AccessCodec) Verify(raw string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	if err := a.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// RefreshCodec issues and verifies refresh tokens bound to a store record.
type RefreshCodec struct {
	*Codec
}

// NewRefreshCodec builds a refresh token codec.
func NewRefreshCodec(cfg Config) (*RefreshCodec, error) {
	codec, err := newCodec(cfg, AudienceRefresh)
	if err != nil {
		return nil, err
	}
	return &RefreshCodec{Codec: codec}, nil
}

// Issue signs a refresh token embedding the record id as jti. The exp claim
// matches the record's expiry.
func (r *RefreshCodec) Issue(principal models.Principal, recordID string, expiresAt time.Time) (string, error) {
	if principal.UserID == "" || recordID == "" {
		return "", errors.New("refresh token requires a user id and record id")
	}
	claims := &models.RefreshClaims{
		UserID:           principal.UserID,
		Email:            principal.Email,
		Role:             principal.Role,
		RegisteredClaims: r.registered(principal.UserID, recordID, r.Now(), expiresAt),
	}
	return r.sign(claims)
}

// Verify checks signature, audience and expiry and returns the claims.
func (r *RefreshCodec) Verify(raw string) (*models.RefreshClaims, error) {
	claims := &models.RefreshClaims{}
	if err := r.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing user id or jti", ErrInvalidToken)
	}
	return claims, nil
}
