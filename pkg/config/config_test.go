package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ACCESS_TOKEN_SECRET":  "access",
		"REFRESH_TOKEN_SECRET": "refresh",
	}))

	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, CacheDriverRedis, cfg.Cache.Driver)
	assert.True(t, cfg.Purge.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Purge.Retention)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsSharedSecret(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ACCESS_TOKEN_SECRET":  "same",
		"REFRESH_TOKEN_SECRET": "same",
	}))

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{"REFRESH_TOKEN_SECRET": "refresh"}))
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ACCESS_TOKEN_SECRET":  "access",
		"REFRESH_TOKEN_SECRET": "refresh",
		"STORE_DRIVER":         "mongo",
	}))
	assert.Error(t, cfg.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, time.Hour, parseDuration("1h", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitAndTrim(" http://a , ,http://b"))
	assert.Nil(t, splitAndTrim(""))
}

func TestFromViperSessionFlags(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ACCESS_TOKEN_SECRET":     "access",
		"REFRESH_TOKEN_SECRET":    "refresh",
		"SESSION_SINGLE":          true,
		"SESSION_COOKIES_ENABLED": "true",
		"STORE_DRIVER":            " Redis ",
	}))

	assert.True(t, cfg.Session.SingleSession)
	assert.True(t, cfg.Session.CookiesEnabled)
	assert.Equal(t, StoreDriverRedis, cfg.Store.Driver)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownCacheDriver(t *testing.T) {
	cfg := fromViper(newTestViper(map[string]interface{}{
		"ACCESS_TOKEN_SECRET":  "access",
		"REFRESH_TOKEN_SECRET": "refresh",
		"USER_CACHE_DRIVER":    "memcached",
	}))
	assert.Error(t, cfg.Validate())
}
