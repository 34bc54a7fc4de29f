package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestErrorWithMeta(t *testing.T) {
	c, w := newContext()

	ErrorWithMeta(c, appErrors.ErrRefreshReuse, map[string]interface{}{"reason": "reuse"})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "REFRESH_TOKEN_REUSED", body.Error.Code)
	assert.Equal(t, "reuse", body.Meta["reason"])
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	c, w := newContext()

	Error(c, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestJSONWithMeta(t *testing.T) {
	c, w := newContext()

	JSON(c, http.StatusOK, gin.H{"ok": true}, nil, map[string]interface{}{"count": 1})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"meta":{"count":1}`)
}
