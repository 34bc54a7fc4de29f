package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-auth-api/internal/models"
	"github.com/noah-isme/gym-auth-api/internal/service"
)

// Audit records an audit event after a successful request. The :id route
// parameter, when present, becomes the event resource id.
func Audit(recorder service.AuditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID string
		if value, ok := c.Get(ContextUserKey); ok {
			if claims, ok := value.(*models.JWTClaims); ok {
				userID = claims.UserID
			}
		}

		recorder.Record(service.AuditEvent{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: c.Param("id"),
			Meta:       models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")},
			Details: map[string]interface{}{
				"path":    c.FullPath(),
				"method":  c.Request.Method,
				"status":  c.Writer.Status(),
				"latency": time.Since(start).Milliseconds(),
			},
		})
	}
}
