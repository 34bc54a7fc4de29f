package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineageServer mimics the refresh endpoint: each token may be redeemed once
// and a replay revokes everything issued so far.
func lineageServer(t *testing.T) *httptest.Server {
	t.Helper()
	var (
		mu      sync.Mutex
		next    int
		live    = map[string]bool{}
		revoked bool
	)
	issue := func() map[string]string {
		next++
		refresh := "r" + string(rune('0'+next))
		live[refresh] = true
		return map[string]string{"access_token": "a", "refresh_token": refresh}
	}
	write := func(w http.ResponseWriter, status int, body interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		write(w, http.StatusCreated, map[string]interface{}{"data": issue()})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		tok := req["refresh_token"]
		if revoked || !live[tok] {
			revoked = true
			write(w, http.StatusUnauthorized, map[string]interface{}{"error": map[string]string{"code": "REFRESH_TOKEN_REUSED"}})
			return
		}
		live[tok] = false
		write(w, http.StatusOK, map[string]interface{}{"data": issue()})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunnerPassesAgainstRotatingServer(t *testing.T) {
	srv := lineageServer(t)
	r := &runner{client: srv.Client(), base: srv.URL}

	require.NoError(t, r.run("smoke@example.com", "pw"))
	require.Len(t, r.steps, 3)
	for _, s := range r.steps {
		assert.True(t, s.ok(), s.Name)
	}
	assert.Equal(t, "REFRESH_TOKEN_REUSED", r.steps[1].Code)
}

func TestRunnerFlagsServerWithoutReuseDetection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"access_token":"a","refresh_token":"r"}}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"access_token":"a","refresh_token":"r"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := &runner{client: srv.Client(), base: srv.URL}
	require.NoError(t, r.run("smoke@example.com", "pw"))
	assert.True(t, r.steps[0].ok())
	assert.False(t, r.steps[1].ok())
	assert.False(t, r.steps[2].ok())
}
