package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challenge_gateway/internal/api"
	"challenge_gateway/internal/api/handler"
	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/app/worker"
	"challenge_gateway/internal/common/security"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"
	"challenge_gateway/internal/platform/cache"
	"challenge_gateway/internal/platform/challengeapi"
	"challenge_gateway/internal/platform/config"
	"challenge_gateway/internal/platform/database"
	"challenge_gateway/internal/platform/otp"
	"challenge_gateway/internal/platform/realtime"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// 2. Initialize JWT
	security.InitJWT()

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	if err := database.Migrate(ctx, database.DB); err != nil {
		return err
	}

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()

	// 5. Initialize Repositories
	grantRepo := repository.NewRedisGrantRepository(cache.RDB)
	draftCacheRepo := repository.NewRedisDraftCacheRepository(cache.RDB)
	prefRepo := repository.NewPgPreferenceRepository(database.DB)

	// 6. Initialize Clients
	backend := challengeapi.NewClient(cfg.ChallengeAPIURL, cfg.ChallengeAPITimeout, cfg.DisplayLocation(), logger)
	otpClient := otp.NewClient(cfg.OTPAPIURL, cfg.OTPAPIKey, cfg.ChallengeAPITimeout, logger)

	// 7. Initialize Services
	clockService := service.NewClockService(backend, cfg.ClockResyncInterval, model.StatusOptions{
		PublishedAsUpcoming: cfg.TreatPublishedAsUpcoming,
	}, logger)
	verificationService := service.NewVerificationService(otpClient, grantRepo, service.VerificationConfig{
		CountryCode:       cfg.DefaultCountryCode,
		ResendCooldown:    cfg.OTPResendCooldown,
		SendRatePerMinute: cfg.OTPSendRatePerMinute,
		GrantTTL:          cfg.GrantTTL,
	}, logger)
	registrationService := service.NewRegistrationService(backend, cfg.DisplayLocation(), logger)
	challengeService := service.NewChallengeService(backend, clockService, prefRepo, logger)
	sessionService := service.NewSessionService(
		verificationService,
		registrationService,
		challengeService,
		clockService,
		service.SessionBackends{Drafts: backend, Execution: backend, MCQ: backend},
		draftCacheRepo,
		prefRepo,
		service.SessionConfig{
			DraftSaveDelay:   cfg.DraftSaveDelay,
			MCQTextSaveDelay: cfg.MCQTextSaveDelay,
			APITimeout:       cfg.ChallengeAPITimeout,
			IdleTTL:          cfg.SessionIdleTTL,
		},
		logger,
	)
	hub := realtime.NewHub(logger)

	// 8. Initialize Workers
	clockWorker := worker.NewClockWorker(clockService, cfg.ClockResyncInterval, cfg.ChallengeAPITimeout, logger)
	sessionWorker := worker.NewSessionWorker(sessionService, verificationService, clockService, hub, cache.RDB, worker.SessionWorkerConfig{
		TickInterval:  cfg.SessionTickInterval,
		SweepInterval: cfg.SessionSweepInterval,
		LockKey:       cfg.SweepLockKey,
		LockTTL:       cfg.SweepLockTTL,
	}, logger)

	// 9. Initialize Router & HTTP Server
	router := api.NewRouter(sessionService, challengeService, clockService, hub, map[string]handler.Checker{
		"postgres": dbChecker{database.DB},
		"redis":    redisChecker{cache.RDB},
	}, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 10. Run until a signal arrives, then shut down gracefully
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.APIPort, err)
		}
		return nil
	})
	g.Go(func() error { return clockWorker.Start(gctx) })
	g.Go(func() error { return sessionWorker.Start(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		hub.Close()
		err := server.Shutdown(shutdownCtx)
		sessionService.Close(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server and workers stopped gracefully")
	return nil
}

// dbChecker adapts *sql.DB to handler.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to handler.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
