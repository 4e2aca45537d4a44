package rest_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogout(t *testing.T) {
	s := newServer(t)
	token := tokenFor(t, "dave")

	w := postJSON(s.r, "/api/auth/logout", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second attempt with same token should fail (token revoked)
	w2 := postJSON(s.r, "/api/auth/logout", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	token := tokenFor(t, "refreshuser@local.example")

	w := postJSON(s.r, "/api/auth/refresh", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	newToken := decode(t, w)["token"].(string)
	assert.NotEmpty(t, newToken)

	// old token is dead, new one works
	assert.Equal(t, http.StatusUnauthorized,
		postJSON(s.r, "/api/auth/refresh", nil, "Authorization", "Bearer "+token).Code)
	w3 := do(s.r, http.MethodGet, "/api/friends/list", nil, "Authorization", "Bearer "+newToken)
	assert.Equal(t, http.StatusOK, w3.Code)
}

func TestRefresh_NoToken(t *testing.T) {
	s := newServer(t)
	// Without a valid Bearer token the Auth middleware rejects with 401
	w := postJSON(s.r, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
