package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/admin-auth/internal/cache"
	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/config"
	"github.com/iliyamo/admin-auth/internal/database"
	"github.com/iliyamo/admin-auth/internal/handler"
	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/middleware"
	"github.com/iliyamo/admin-auth/internal/queue"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/router"
	"github.com/iliyamo/admin-auth/internal/service"
	"github.com/iliyamo/admin-auth/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	clk := clock.System{}

	// Redis is optional: without it the cache lives in process and login is
	// not rate limited.
	rdb := config.NewRedisClient(cfg.Redis)
	var sessions cache.SessionCache = cache.Nop{}
	switch {
	case !cfg.Cache.Enabled:
		log.Info("session cache disabled")
	case rdb != nil:
		sessions = cache.NewRedis(rdb, cfg.Cache.Prefix)
	default:
		log.Warn("redis unreachable, using in-process session cache", "addr", cfg.Redis.Addr)
		sessions = cache.NewMemory(clk)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.Queue.Enabled {
		pub := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.QueueName, log)
		defer pub.Close()
		events = pub
		if cfg.Queue.AuditConsumer {
			go queue.StartAuditConsumer(ctx, cfg.Queue, log)
		}
	}

	issuer, err := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.AccessTTL, clk)
	if err != nil {
		return err
	}
	tokens := repository.NewTokenRepo(db, clk)
	deps := service.Deps{
		Users:  repository.NewUserRepo(db, clk),
		Roles:  repository.NewRoleRepo(db, clk),
		Tokens: tokens,
		Hasher: utils.NewPasswordHasher(cfg.Auth.PBKDF2Iterations),
		Issuer: issuer,
		Cache:  sessions,
		Events: events,
		Clock:  clk,
		Logger: log,
	}
	opts := service.OptionsFromConfig(cfg)
	auth := service.NewAuthService(deps, opts)
	users := service.NewUserService(deps, opts)
	rbac := service.NewRBACService(deps)

	go service.NewCleaner(tokens, cfg.Auth.CleanupInterval, log).Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	router.RegisterRoutes(e, handler.Health(db, rdb))
	router.RegisterAuth(e,
		handler.NewAuthHandler(auth, log),
		handler.NewUserHandler(users, log),
		issuer,
		middleware.NewTokenBucket(cfg.Limit, rdb, log),
	)
	router.RegisterAdmin(e, handler.NewAdminHandler(users, rbac, log), issuer)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
