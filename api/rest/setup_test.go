package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/friends"
	"github.com/kasuganosora/socialgraph/identity"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/ratelimit"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/store"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

type server struct {
	r     *gin.Engine
	store *store.Store
	cache cache.Cache
	sched *scheduler.Scheduler
}

func newServer(t *testing.T, tune ...func(*config.FriendsConfig)) *server {
	t.Helper()
	cfg := config.Default().Friends
	for _, fn := range tune {
		fn(&cfg)
	}
	logger := zap.NewNop()
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t).Cache
	st := store.New(db, 5*time.Second)
	lim := ratelimit.NewLocalLimiter(ratelimit.PoliciesFromConfig(cfg.RateLimiting))
	t.Cleanup(lim.Close)
	resolver := identity.NewResolver("local.example")

	svc := friends.New(cfg, friends.Deps{
		Store:    st,
		Resolver: resolver,
		Limiter:  lim,
		Cache:    c,
		Logger:   logger,
	})
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	r := gin.New()
	r.Use(mw.TraceID())
	authH := rest.NewAuthHandler(c, testSec)
	adminH := rest.NewAdminHandler(sched, resolver, testSec, logger)

	api := r.Group("/api", mw.Auth(testSec, c))
	api.POST("/auth/logout", authH.Logout)
	api.POST("/auth/refresh", authH.Refresh)
	rest.NewFriendsHandler(svc, logger).Register(api.Group("/friends"))

	admin := r.Group("/api/admin", mw.IPWhitelist([]string{"127.0.0.1"}))
	admin.GET("/tasks", adminH.Tasks)
	admin.POST("/tasks/:name/run", adminH.RunTask)
	admin.POST("/tokens", adminH.IssueToken)

	return &server{r: r, store: st, cache: c, sched: sched}
}

func tokenFor(t *testing.T, user string) string {
	t.Helper()
	tok, err := mw.GenerateToken(user, testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return do(r, http.MethodPost, path, body, headers...)
}

// as issues requests with the given user's bearer token.
func (s *server) as(t *testing.T, user string) func(method, path string, body interface{}) *httptest.ResponseRecorder {
	tok := tokenFor(t, user)
	return func(method, path string, body interface{}) *httptest.ResponseRecorder {
		return do(s.r, method, path, body, "Authorization", "Bearer "+tok)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
