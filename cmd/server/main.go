package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/cache"
	"github.com/iliyamo/galleryhub/internal/config"
	"github.com/iliyamo/galleryhub/internal/database"
	"github.com/iliyamo/galleryhub/internal/handler"
	"github.com/iliyamo/galleryhub/internal/logging"
	"github.com/iliyamo/galleryhub/internal/middleware"
	"github.com/iliyamo/galleryhub/internal/queue"
	"github.com/iliyamo/galleryhub/internal/repository"
	"github.com/iliyamo/galleryhub/internal/router"
	"github.com/iliyamo/galleryhub/internal/service"
	"github.com/iliyamo/galleryhub/internal/storage"
)

const (
	principalCacheSize = 4096
	resetSweepInterval = time.Hour
	shutdownTimeout    = 10 * time.Second
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg := config.Load()
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)
	policy, err := config.LoadAuthPolicy()
	if err != nil {
		log.Fatalf("auth config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn(ctx, "redis unavailable, using in-process rate limits and no response cache")
	} else {
		defer rdb.Close()
	}

	var images handler.ImageStore
	if sc := config.LoadStorageConfig(); sc.Enabled() {
		st, err := storage.New(ctx, sc)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		images = st
	} else {
		logger.Warn(ctx, "S3_BUCKET not set, uploads are disabled")
	}

	// ---- Auth ----
	accounts := repository.NewAccountRepo(db)
	resets := repository.NewResetTokenRepo(db)

	mode, err := auth.ParseClaimsMode(policy.ClaimsMode)
	if err != nil {
		log.Fatalf("auth config: %v", err)
	}
	var sessionOpts []auth.SessionOption
	if policy.ClaimsCacheTTL > 0 {
		if rdb != nil {
			sessionOpts = append(sessionOpts, auth.WithPrincipalCache(cache.NewRedisPrincipals(rdb, policy.ClaimsCacheTTL, logger)))
		} else {
			sessionOpts = append(sessionOpts, auth.WithPrincipalCache(cache.NewLocalPrincipals(principalCacheSize, policy.ClaimsCacheTTL)))
		}
	}
	sessions, err := auth.NewSessions(accounts, auth.SessionConfig{
		Secret: cfg.SessionSecret,
		MaxAge: policy.SessionMaxAge,
		Issuer: "galleryhub",
		Mode:   mode,
	}, sessionOpts...)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}

	cacheCfg := config.LoadCacheConfig()
	settings := cache.NewSettings(repository.NewSettingsRepo(db), cacheCfg.SettingsTTL)

	publisher := service.NewPublisher(cfg.AMQPURL, cfg.PublicURL, logger)
	svc, err := auth.NewService(accounts, sessions,
		auth.WithPolicy(auth.Policy{Threshold: policy.LockThreshold, Duration: policy.LockDuration}),
		auth.WithNotifier(publisher),
		auth.WithLogger(logger),
		auth.WithResetTokens(resets),
		auth.WithResetTTL(policy.ResetTokenTTL),
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithSettings(settings),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	if policy.BootstrapAdmin() {
		err := svc.EnsureAdmin(ctx, auth.RegisterInput{
			Name:     policy.AdminName,
			Email:    policy.AdminEmail,
			Password: policy.AdminPassword,
		})
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
	}
	var verifier *auth.AssertionVerifier
	if policy.FederatedSecret != "" {
		verifier = auth.NewAssertionVerifier(policy.FederatedSecret, policy.FederatedAudience)
	}

	// ---- Background workers ----
	if cfg.AMQPURL != "" {
		go func() {
			if err := queue.StartAccountEventConsumer(ctx, cfg.AMQPURL, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "account event consumer stopped", "err", err)
			}
		}()
	}
	go sweepResetTokens(ctx, resets, logger)

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.Authenticate(sessions, policy.CookieName))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)) // after Authenticate: keys use the account
	e.Use(middleware.Maintenance(settings, logger,
		"/healthz", "/readyz", "/v1/auth/login", "/v1/auth/logout", "/v1/auth/federated", "/v1/me"))

	purge := func(ctx context.Context) error { return middleware.PurgeCache(ctx, cacheCfg, rdb) }

	loginLimit := middleware.NewTokenBucket(config.LoadLoginRateLimitConfig(), rdb)
	contact := handler.NewContactHandler(repository.NewContactRepo(db), logger)

	router.RegisterRoutes(e, db, rdb)
	router.RegisterAuth(e,
		handler.NewAuthHandler(svc, sessions, verifier, handler.CookieConfig{Name: policy.CookieName, Secure: policy.CookieSecure}, logger),
		loginLimit)
	router.RegisterContact(e, contact, loginLimit)

	router.RegisterGallery(e,
		handler.NewGalleryHandler(repository.NewArtworkRepo(db), repository.NewLikeRepo(db), repository.NewCommentRepo(db),
			images, settings, purge, logger),
		middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterAdmin(e,
		handler.NewAdminHandler(accounts, repository.NewArtworkRepo(db), repository.NewStatsRepo(db),
			sessions, svc.Policy(), images, purge, logger),
		handler.NewSettingsHandler(settings, logger), contact)

	addr := ":" + cfg.Port
	logger.Info(ctx, "listening", "addr", addr, "env", cfg.Env, "claims_mode", string(mode))
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error(sctx, "shutdown", "err", err)
	}
}

// requestLogger writes one structured line per request.
func requestLogger(l logging.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				l.Error(c.Request().Context(), "request", append(args, "err", v.Error)...)
				return nil
			}
			l.Info(c.Request().Context(), "request", args...)
			return nil
		},
	})
}

// sweepResetTokens drops expired reset tokens once an hour.
func sweepResetTokens(ctx context.Context, r *repository.ResetTokenRepo, l logging.Logger) {
	t := time.NewTicker(resetSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := r.DeleteExpired(ctx, now.UTC())
			if err != nil {
				l.Warn(ctx, "sweep reset tokens", "err", err)
				continue
			}
			if n > 0 {
				l.Debug(ctx, "swept reset tokens", "deleted", n)
			}
		}
	}
}
