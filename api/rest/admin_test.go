package rest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminReq(s *server, method, path string, body interface{}, ip string) int {
	return do(s.r, method, path, body, "X-Real-IP", ip).Code
}

func TestAdmin_Whitelist(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusForbidden, adminReq(s, http.MethodGet, "/api/admin/tasks", nil, "10.9.9.9"))
	assert.Equal(t, http.StatusOK, adminReq(s, http.MethodGet, "/api/admin/tasks", nil, "127.0.0.1"))
}

func TestAdmin_RunTask(t *testing.T) {
	s := newServer(t)
	ran := make(chan struct{}, 1)
	s.sched.AddTicker("friends_sweep_expired", time.Hour, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	assert.Equal(t, http.StatusAccepted, adminReq(s, http.MethodPost, "/api/admin/tasks/friends_sweep_expired/run", nil, "127.0.0.1"))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	assert.Equal(t, http.StatusNotFound, adminReq(s, http.MethodPost, "/api/admin/tasks/nope/run", nil, "127.0.0.1"))
}

func TestAdmin_IssueToken(t *testing.T) {
	s := newServer(t)
	w := do(s.r, http.MethodPost, "/api/admin/tokens", map[string]string{"user_id": "@Erin:local.example"}, "X-Real-IP", "127.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "erin@local.example", resp["user_id"])

	claims, err := middleware.ParseToken(resp["token"].(string), testSec.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "erin@local.example", claims.UserID)

	w = do(s.r, http.MethodPost, "/api/admin/tokens", map[string]string{"user_id": "bad id"}, "X-Real-IP", "127.0.0.1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_identifier", decode(t, w)["errcode"])
}
