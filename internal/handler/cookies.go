package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-auth-api/internal/middleware"
)

const refreshCookieName = "refresh_token"

// CookieConfig controls the session cookies set for browser clients.
type CookieConfig struct {
	Enabled bool
	Secure  bool
	Domain  string
}

func (cfg CookieConfig) setTokens(c *gin.Context, accessToken string, accessTTL time.Duration, refreshToken string, refreshTTL time.Duration) {
	if !cfg.Enabled {
		return
	}
	cfg.set(c, middleware.AccessCookieName, accessToken, int(accessTTL.Seconds()))
	cfg.set(c, refreshCookieName, refreshToken, int(refreshTTL.Seconds()))
}

func (cfg CookieConfig) clear(c *gin.Context) {
	if !cfg.Enabled {
		return
	}
	cfg.set(c, middleware.AccessCookieName, "", -1)
	cfg.set(c, refreshCookieName, "", -1)
}

func (cfg CookieConfig) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", cfg.Domain, cfg.Secure, true)
}
