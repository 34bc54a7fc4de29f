package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gym-auth-api/internal/models"
	"github.com/noah-isme/gym-auth-api/internal/service"
	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
)

type stubValidator struct {
	tokens map[string]*models.JWTClaims
	seen   string
}

func (s *stubValidator) ValidateToken(raw string) (*models.JWTClaims, error) {
	s.seen = raw
	if raw == "expired" {
		return nil, appErrors.ErrTokenExpired
	}
	if claims, ok := s.tokens[raw]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type captureRecorder struct {
	mu     sync.Mutex
	events []service.AuditEvent
}

func (r *captureRecorder) Record(event service.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/users/:id/sessions", handlers...)
	return r
}

func perform(r http.Handler, header, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users/u1/sessions", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	validator := &stubValidator{tokens: map[string]*models.JWTClaims{
		"good": {UserID: "u1", Role: models.RoleRegistered},
	}}
	r := newRouter(JWT(validator))

	assert.Equal(t, http.StatusOK, perform(r, "Bearer good", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, "", "good").Code)

	w := perform(r, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	w = perform(r, "Basic abc", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, "Bearer expired", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestRBACAdminOrSelf(t *testing.T) {
	validator := &stubValidator{tokens: map[string]*models.JWTClaims{
		"admin": {UserID: "a1", Role: models.RoleAdmin},
		"self":  {UserID: "u1", Role: models.RoleRegistered},
		"other": {UserID: "u2", Role: models.RoleRegistered},
	}}
	r := newRouter(JWT(validator), RBAC(string(models.RoleAdmin), RoleSelf))

	assert.Equal(t, http.StatusOK, perform(r, "Bearer admin", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, "Bearer self", "").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, "Bearer other", "").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	r := newRouter(RBAC(string(models.RoleAdmin)))
	assert.Equal(t, http.StatusUnauthorized, perform(r, "", "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	validator := &stubValidator{tokens: map[string]*models.JWTClaims{
		"admin": {UserID: "a1", Role: models.RoleAdmin},
	}}
	recorder := &captureRecorder{}
	r := newRouter(JWT(validator), Audit(recorder, models.AuditActionSessionsRevoked, "session"))

	require.Equal(t, http.StatusOK, perform(r, "Bearer admin", "").Code)
	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	assert.Equal(t, "a1", event.UserID)
	assert.Equal(t, "u1", event.ResourceID)
	assert.Equal(t, models.AuditActionSessionsRevoked, event.Action)

	require.Equal(t, http.StatusUnauthorized, perform(r, "", "").Code)
	assert.Len(t, recorder.events, 1)
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))

	require.Equal(t, http.StatusOK, perform(r, "", "").Code)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="/users/:id/sessions"`)
}
