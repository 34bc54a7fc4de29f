package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-auth-api/internal/models"
	"github.com/noah-isme/gym-auth-api/internal/token"
)

// RefreshTokenStore is the durable record of issued refresh tokens.
// GetByID returns nil, nil for an unknown id. MarkRevokedAndReplaced is a
// conditional update that fails with models.ErrRefreshTokenConflict when id is
// already revoked. Rotate combines it with the successor insert atomically and
// fails the same way.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID string, expiresAt time.Time) (string, error)
	GetByID(ctx context.Context, id string) (*models.RefreshToken, error)
	MarkRevokedAndReplaced(ctx context.Context, id, newID string) error
	Rotate(ctx context.Context, id, userID string, expiresAt time.Time) (string, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.RefreshToken, error)
	Ping(ctx context.Context) error
}

// RotationResult is the outcome of presenting a refresh token. It is one of
// Rotated, Invalid or ReuseDetected.
type RotationResult interface {
	rotationOutcome() string
}

// Rotated carries the replacement token pair.
type Rotated struct {
	Tokens    models.TokenPair
	Principal models.Principal
}

// Invalid means the presented token failed verification. UserID is only set
// when an unverified decode produced one, and it must not be trusted.
type Invalid struct {
	Expired bool
	UserID  string
	Revoked int64
}

// ReuseDetected means a verified token referenced a superseded or unknown
// record. Every session of UserID has been revoked.
type ReuseDetected struct {
	UserID  string
	TokenID string
	Revoked int64
}

func (Rotated) rotationOutcome() string       { return RotationOutcomeRotated }
func (Invalid) rotationOutcome() string       { return RotationOutcomeInvalid }
func (ReuseDetected) rotationOutcome() string { return RotationOutcomeReuse }

// SessionService implements refresh token issuance, single-use rotation with
// reuse detection, and bulk revocation.
type SessionService struct {
	store   RefreshTokenStore
	access  *token.AccessCodec
	refresh *token.RefreshCodec
	metrics *MetricsService
	audit   AuditRecorder
	logger  *zap.Logger
}

// NewSessionService wires the session protocol.
func NewSessionService(store RefreshTokenStore, access *token.AccessCodec, refresh *token.RefreshCodec, metrics *MetricsService, audit AuditRecorder, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = noopAuditRecorder{}
	}
	return &SessionService{
		store:   store,
		access:  access,
		refresh: refresh,
		metrics: metrics,
		audit:   audit,
		logger:  logger,
	}
}

// AccessTTL returns the access token lifetime.
func (s *SessionService) AccessTTL() time.Duration {
	return s.access.TTL()
}

// RefreshTTL returns the refresh token lifetime.
func (s *SessionService) RefreshTTL() time.Duration {
	return s.refresh.TTL()
}

// IssueInitialSession opens a new lineage for an authenticated principal.
func (s *SessionService) IssueInitialSession(ctx context.Context, principal models.Principal) (*models.TokenPair, error) {
	expiresAt := s.refresh.Now().Add(s.refresh.TTL())

	start := time.Now()
	id, err := s.store.Create(ctx, principal.UserID, expiresAt)
	s.metrics.ObserveStoreOperation("create", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("create refresh record: %w", err)
	}

	pair, err := s.sign(principal, id, expiresAt)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSessionIssued()
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. Storage failures are
// returned as errors; every other outcome is a RotationResult.
func (s *SessionService) Rotate(ctx context.Context, raw string, meta models.RequestMeta) (RotationResult, error) {
	claims, err := s.refresh.Verify(raw)
	if err != nil {
		return s.reject(ctx, raw, errors.Is(err, token.ErrTokenExpired), meta), nil
	}

	start := time.Now()
	record, err := s.store.GetByID(ctx, claims.ID)
	s.metrics.ObserveStoreOperation("get", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("load refresh record: %w", err)
	}

	if record == nil || record.Revoked || record.UserID != claims.UserID {
		return s.reuse(ctx, claims.UserID, claims.ID, meta)
	}

	now := s.refresh.Now()
	if !now.Before(record.ExpiresAt) {
		return s.reject(ctx, raw, true, meta), nil
	}

	expiresAt := now.Add(s.refresh.TTL())
	start = time.Now()
	newID, err := s.store.Rotate(ctx, record.ID, claims.UserID, expiresAt)
	s.metrics.ObserveStoreOperation("rotate", time.Since(start))
	if err != nil {
		if errors.Is(err, models.ErrRefreshTokenConflict) || errors.Is(err, models.ErrRefreshTokenNotFound) {
			return s.reuse(ctx, claims.UserID, claims.ID, meta)
		}
		return nil, fmt.Errorf("rotate refresh record: %w", err)
	}

	principal := claims.Principal()
	pair, err := s.sign(principal, newID, expiresAt)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRotation(RotationOutcomeRotated)
	s.audit.Record(AuditEvent{
		UserID:     principal.UserID,
		Action:     models.AuditActionTokenRotated,
		ResourceID: newID,
		Meta:       meta,
		Details:    map[string]interface{}{"replaced": record.ID},
	})
	return Rotated{Tokens: *pair, Principal: principal}, nil
}

// Logout revokes every record of the user. Repeating it is harmless.
func (s *SessionService) Logout(ctx context.Context, userID string, meta models.RequestMeta) error {
	count, err := s.revokeAll(ctx, userID, RevocationReasonLogout)
	if err != nil {
		return err
	}
	s.audit.Record(AuditEvent{
		UserID:  userID,
		Action:  models.AuditActionLogout,
		Meta:    meta,
		Details: map[string]interface{}{"revoked": count},
	})
	return nil
}

// RevokeAll ends every session of the user on behalf of an operator and
// reports how many live records were revoked.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.revokeAll(ctx, userID, RevocationReasonAdmin)
}

// VerifyAccess checks an access token and returns its claims.
func (s *SessionService) VerifyAccess(raw string) (*models.JWTClaims, error) {
	return s.access.Verify(raw)
}

// ListSessions returns the live sessions of a user, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	start := time.Now()
	records, err := s.store.ListActiveByUser(ctx, userID)
	s.metrics.ObserveStoreOperation("list", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]models.SessionInfo, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, models.SessionInfo{ID: record.ID, CreatedAt: record.CreatedAt, ExpiresAt: record.ExpiresAt})
	}
	return sessions, nil
}

// Ping reports whether the refresh token store is reachable.
func (s *SessionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *SessionService) sign(principal models.Principal, recordID string, refreshExpiresAt time.Time) (*models.TokenPair, error) {
	refreshToken, err := s.refresh.Issue(principal, recordID, refreshExpiresAt)
	if err != nil {
		return nil, err
	}
	accessToken, accessExpiresAt, err := s.access.Issue(principal)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshTokenID:   recordID,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// reject handles a token that failed verification. The user id recovered from
// the unverified payload only selects whose sessions to revoke.
func (s *SessionService) reject(ctx context.Context, raw string, expired bool, meta models.RequestMeta) Invalid {
	s.metrics.RecordRotation(RotationOutcomeInvalid)
	result := Invalid{Expired: expired}

	unverified, ok := s.refresh.DecodeUnsafe(raw)
	if !ok {
		s.logger.Info("rejected undecodable refresh token", zap.String("ip", meta.IP))
		return result
	}

	if _, err := uuid.Parse(unverified.UserID); err != nil {
		s.logger.Info("rejected refresh token with malformed user id",
			zap.String("user_id", unverified.UserID),
			zap.String("ip", meta.IP),
		)
		return result
	}

	result.UserID = unverified.UserID
	count, err := s.revokeAll(ctx, unverified.UserID, RevocationReasonDefensive)
	if err != nil {
		s.logger.Error("defensive revocation failed", zap.String("user_id", unverified.UserID), zap.Error(err))
	}
	result.Revoked = count

	s.logger.Warn("rejected refresh token",
		zap.String("user_id", unverified.UserID),
		zap.String("token_id", unverified.ID),
		zap.Bool("expired", expired),
		zap.Int64("revoked", count),
		zap.String("ip", meta.IP),
	)
	s.audit.Record(AuditEvent{
		UserID:     unverified.UserID,
		Action:     models.AuditActionTokenInvalid,
		ResourceID: unverified.ID,
		Meta:       meta,
		Details:    map[string]interface{}{"expired": expired, "revoked": count},
	})
	return result
}

func (s *SessionService) reuse(ctx context.Context, userID, tokenID string, meta models.RequestMeta) (RotationResult, error) {
	s.metrics.RecordRotation(RotationOutcomeReuse)
	count, err := s.revokeAll(ctx, userID, RevocationReasonReuse)
	if err != nil {
		return nil, err
	}

	s.logger.Warn("refresh token reuse detected",
		zap.String("user_id", userID),
		zap.String("token_id", tokenID),
		zap.Int64("revoked", count),
		zap.String("ip", meta.IP),
		zap.String("user_agent", meta.UserAgent),
	)
	s.audit.Record(AuditEvent{
		UserID:     userID,
		Action:     models.AuditActionTokenReuseDetected,
		ResourceID: tokenID,
		Meta:       meta,
		Details:    map[string]interface{}{"revoked": count},
	})
	return ReuseDetected{UserID: userID, TokenID: tokenID, Revoked: count}, nil
}

func (s *SessionService) revokeAll(ctx context.Context, userID, reason string) (int64, error) {
	start := time.Now()
	count, err := s.store.RevokeAll(ctx, userID)
	s.metrics.ObserveStoreOperation("revoke_all", time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.metrics.RecordRevocation(reason, count)
	return count, nil
}
