package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gym-auth-api/internal/models"
	"github.com/noah-isme/gym-auth-api/internal/token"
	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
)

const userCacheKeyPrefix = "auth:user:"

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	BcryptCost    int
	UserCacheTTL  time.Duration
	SingleSession bool
}

// AuthService is the session boundary: it authenticates credentials and
// delegates token lifecycle to SessionService.
type AuthService struct {
	repo      authUserRepository
	sessions  *SessionService
	cache     *CacheService
	audit     AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, sessions *SessionService, cache *CacheService, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if audit == nil {
		audit = noopAuditRecorder{}
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{repo: repo, sessions: sessions, cache: cache, audit: audit, validator: validate, logger: logger, config: config}
}

// Register creates an account and opens its first session.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         models.RoleRegistered,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	pair, err := s.sessions.IssueInitialSession(ctx, user.Principal())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
	}

	s.audit.Record(AuditEvent{
		UserID:     user.ID,
		Action:     models.AuditActionRegister,
		Resource:   "user",
		ResourceID: user.ID,
		Meta:       models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent},
	})
	s.logger.Info("user registered", zap.String("user_id", user.ID))

	return s.loginResponse(user, pair), nil
}

// Login authenticates a user and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if s.config.SingleSession {
		if _, err := s.sessions.revokeAll(ctx, user.ID, RevocationReasonLogout); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke previous sessions")
		}
	}

	pair, err := s.sessions.IssueInitialSession(ctx, user.Principal())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.audit.Record(AuditEvent{
		UserID:     user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: user.ID,
		Meta:       models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent},
		Details:    map[string]interface{}{"status": "success"},
	})

	return s.loginResponse(user, pair), nil
}

// Refresh rotates a refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrRefreshInvalid, "refresh token is required")
	}

	result, err := s.sessions.Rotate(ctx, req.RefreshToken, models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh session")
	}

	switch outcome := result.(type) {
	case Rotated:
		return &models.RefreshTokenResponse{
			AccessToken:      outcome.Tokens.AccessToken,
			RefreshToken:     outcome.Tokens.RefreshToken,
			ExpiresIn:        int64(s.sessions.AccessTTL().Seconds()),
			RefreshExpiresIn: int64(s.sessions.RefreshTTL().Seconds()),
			IssuedAt:         time.Now().UTC(),
		}, nil
	case Invalid:
		if outcome.Expired {
			return nil, appErrors.Clone(appErrors.ErrRefreshInvalid, "refresh token expired")
		}
		return nil, appErrors.ErrRefreshInvalid
	case ReuseDetected:
		return nil, appErrors.ErrRefreshReuse
	default:
		return nil, appErrors.Clone(appErrors.ErrInternal, "unknown rotation outcome")
	}
}

// Logout ends every session of the user.
func (s *AuthService) Logout(ctx context.Context, userID string, meta models.RequestMeta) error {
	if err := s.sessions.Logout(ctx, userID, meta); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to logout")
	}
	return nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	key := userCacheKeyPrefix + userID
	var cached models.UserInfo
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	info := user.Info()
	_ = s.cache.Set(ctx, key, info, s.config.UserCacheTTL)
	return &info, nil
}

// Sessions lists the live sessions of the user.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	sessions, err := s.sessions.ListSessions(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// RevokeUserSessions ends every session of targetID and returns the number of
// records revoked.
func (s *AuthService) RevokeUserSessions(ctx context.Context, actorID, targetID string) (int64, error) {
	count, err := s.sessions.RevokeAll(ctx, targetID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	_ = s.cache.Invalidate(ctx, userCacheKeyPrefix+targetID)

	s.logger.Info("sessions revoked",
		zap.String("actor_id", actorID),
		zap.String("user_id", targetID),
		zap.Int64("revoked", count),
	)
	return count, nil
}

// ValidateToken verifies an access token for the HTTP middleware.
func (s *AuthService) ValidateToken(raw string) (*models.JWTClaims, error) {
	claims, err := s.sessions.VerifyAccess(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, appErrors.ErrTokenExpired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return claims, nil
}

// Ping checks the session store for readiness probes.
func (s *AuthService) Ping(ctx context.Context) error {
	if err := s.sessions.Ping(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "session store unavailable")
	}
	return nil
}

func (s *AuthService) loginResponse(user *models.User, pair *models.TokenPair) *models.LoginResponse {
	return &models.LoginResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresIn:        int64(s.sessions.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(s.sessions.RefreshTTL().Seconds()),
		User:             user.Info(),
		IssuedAt:         time.Now().UTC(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
