package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sprintdeck/sprintdeck/internal/config"
	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/health"
	"github.com/sprintdeck/sprintdeck/internal/http/handler"
	"github.com/sprintdeck/sprintdeck/internal/http/middleware"
	"github.com/sprintdeck/sprintdeck/internal/http/router"
	"github.com/sprintdeck/sprintdeck/internal/observability"
	"github.com/sprintdeck/sprintdeck/internal/repository"
	"github.com/sprintdeck/sprintdeck/internal/security"
	"github.com/sprintdeck/sprintdeck/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	db       *gorm.DB
	redis    *redis.Client
	sessions repository.SessionRepository
}

// Build assembles the whole service: database, optional Redis, token codec,
// services, handlers and the HTTP server. Nothing starts running until Run.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Role{},
		&domain.Session{},
		&domain.LoginAttempt{},
		&domain.ActionToken{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	attempts := repository.NewLoginAttemptRepository(db)
	actionTokens := repository.NewActionTokenRepository(db)

	hasher := security.NewPasswordHasher(cfg.SaltLength)
	codec := security.NewTokenCodec(cfg.OTELServiceName, cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	var abuse service.AuthAbuseGuard = service.NewNoopAuthAbuseGuard()
	if redisClient != nil {
		abuse = service.NewRedisAuthAbuseGuard(redisClient, "auth_abuse", service.AuthAbusePolicy{
			FreeAttempts: 3,
			BaseDelay:    time.Second,
			Multiplier:   2,
			MaxDelay:     5 * time.Minute,
			ResetWindow:  time.Hour,
		})
	}

	auth := service.NewAuthService(service.AuthServiceDeps{
		Users:                 users,
		Sessions:              sessions,
		Attempts:              attempts,
		ActionTokens:          actionTokens,
		Hasher:                hasher,
		Codec:                 codec,
		Lockout:               service.LockoutPolicy{MaxAttempts: cfg.MaxLoginAttempts, LockoutDuration: cfg.LockoutDuration},
		Abuse:                 abuse,
		Mailer:                service.NewSlogMailer(logger),
		Logger:                logger,
		VerificationTokenTTL:  cfg.VerificationTokenTTL,
		PasswordResetTokenTTL: cfg.PasswordResetTokenTTL,
	})
	sessionSvc := service.NewSessionService(sessions)

	dep := router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(auth),
		UserHandler:        handler.NewUserHandler(auth, sessionSvc),
		TokenCodec:         codec,
		CORSOrigins:        cfg.CORSOrigins,
		APIRateLimitRPM:    cfg.APIRateLimitRPM,
		AuthRateLimitRPM:   cfg.AuthRateLimitRPM,
		ForgotRateLimitRPM: cfg.ForgotRateLimitRPM,
		Readiness:          buildReadiness(db, redisClient),
		EnableOTelHTTP:     cfg.OTELTracingEnabled,
	}
	if redisClient != nil {
		// Shared windows across replicas; a Redis outage must not take auth
		// down with it.
		limiter := middleware.NewRedisFixedWindowLimiter(redisClient, "ratelimit")
		dep.GlobalRateLimiter = middleware.NewRateLimiterWith(limiter, cfg.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api", nil).Middleware()
		dep.AuthRateLimiter = middleware.NewRateLimiterWith(limiter, cfg.AuthRateLimitRPM, time.Minute, middleware.FailOpen, "auth", nil).Middleware()
		dep.ForgotRateLimiter = middleware.NewRateLimiterWith(limiter, cfg.ForgotRateLimitRPM, time.Minute, middleware.FailOpen, "forgot", nil).Middleware()
	}

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router.NewRouter(dep),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		db:            db,
		redis:         redisClient,
		sessions:      sessions,
	}, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	}
	// Local development fallback.
	db, err := gorm.Open(sqlite.Open("sprintdeck.db"), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func buildReadiness(db *gorm.DB, redisClient *redis.Client) *health.ProbeRunner {
	checks := []health.Check{{
		Name: "database",
		Probe: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		checks = append(checks, health.Check{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return health.NewProbeRunner(2*time.Second, checks...)
}

// Run serves HTTP and the session-retention sweeper until ctx is cancelled,
// then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.runSessionSweeper(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.Logger.Warn("close redis", "error", cerr)
		}
	}
	if oerr := a.Observability.Shutdown(closeCtx); oerr != nil {
		a.Logger.Warn("shutdown observability", "error", oerr)
	}
	return err
}

// runSessionSweeper prunes session rows whose audit retention has lapsed.
// Revocation is still soft; only long-expired rows leave the table.
func (a *App) runSessionSweeper(ctx context.Context) {
	if a.Config.SessionCleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.Config.SessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.sessions.CleanupExpired(a.Config.SessionRetention)
			if err != nil {
				a.Logger.Warn("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				a.Logger.Info("session sweep", "removed", removed)
			}
		}
	}
}
