package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	dbadapter "github.com/kasuganosora/socialgraph/db"
	"github.com/kasuganosora/socialgraph/friends"
	"github.com/kasuganosora/socialgraph/identity"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/ratelimit"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Warn("security.jwt_secret is not set; every request will be rejected")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	backend, err := cache.Open(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer backend.Close()
	logger.Info("Cache initialized", zap.Bool("redis", backend.Redis != nil))

	// ---- Rate limiter ----
	policies := ratelimit.PoliciesFromConfig(cfg.Friends.RateLimiting)
	local := ratelimit.NewLocalLimiter(policies)
	defer local.Close()
	var limiter ratelimit.Limiter = local
	var fallback *ratelimit.FallbackLimiter
	if backend.Redis != nil {
		fallback = ratelimit.NewFallbackLimiter(ratelimit.NewRedisLimiter(backend.Redis, policies), local, logger)
		limiter = fallback
	} else {
		logger.Warn("no redis configured; rate limits are enforced per process")
	}

	// ---- Notifications ----
	var federator notify.Federator
	if cfg.Notify.NATSURL != "" {
		nc, err := notify.Connect(cfg.Notify.NATSURL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer nc.Drain()
		federator = notify.NewNATSFederation(nc, cfg.Notify.NATSSubjectPrefix, cfg.Server.ServerName)
		logger.Info("NATS federation enabled", zap.String("url", cfg.Notify.NATSURL))
	}
	dispatcher := notify.NewDispatcher(
		notify.NewPubSubSink(backend.PubSub),
		federator,
		notify.PreferencesFromConfig(cfg.Notify),
		cfg.Notify.QueueSize,
		logger,
	)
	defer dispatcher.Stop()

	// ---- Friends engine ----
	resolver := identity.NewResolver(cfg.Server.ServerName)
	svc := friends.New(cfg.Friends, friends.Deps{
		Store:      store.New(db, cfg.Database.OpTimeout),
		Resolver:   resolver,
		Limiter:    limiter,
		Cache:      backend.Cache,
		Notifier:   dispatcher,
		Federation: dispatcher,
		Auditor:    auditSvc,
		Logger:     logger,
	})

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("friends_sweep_expired", cfg.Friends.SweepInterval, func(ctx context.Context) error {
		_, err := svc.Requests.SweepExpired(ctx)
		return err
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"rate_limit_degraded": fallback != nil && fallback.Degraded(),
			"tasks":               sched.Tasks(),
		})
	})

	throttle := mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	authH := apirest.NewAuthHandler(backend.Cache, cfg.Security)
	friendsH := apirest.NewFriendsHandler(svc, logger)
	adminH := apirest.NewAdminHandler(sched, resolver, cfg.Security, logger)
	sseH := sse.NewHandler(backend.PubSub, resolver, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth", mw.Auth(cfg.Security, backend.Cache), throttle)
		authG.POST("/logout", authH.Logout)
		authG.POST("/refresh", authH.Refresh)

		friendsG := api.Group("/friends", mw.Auth(cfg.Security, backend.Cache), throttle)
		friendsH.Register(friendsG)
		friendsG.GET("/events", sseH.ServeSSE)

		adminG := api.Group("/admin", mw.IPWhitelist(cfg.Security.AdminIPs))
		adminG.GET("/tasks", adminH.Tasks)
		adminG.POST("/tasks/:name/run", adminH.RunTask)
		adminG.POST("/tokens", adminH.IssueToken)
	}
	if len(cfg.Security.AdminIPs) == 0 {
		logger.Warn("security.admin_ips is empty; admin endpoints are open to every address")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		logger.Info("Server listening", zap.String("addr", addr), zap.String("server_name", resolver.ServerName()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
