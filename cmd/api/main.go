package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/chrisdurfee/authgate/internal/auth"
	"github.com/chrisdurfee/authgate/internal/background"
	"github.com/chrisdurfee/authgate/internal/config"
	"github.com/chrisdurfee/authgate/internal/database"
	"github.com/chrisdurfee/authgate/internal/dispatch"
	"github.com/chrisdurfee/authgate/internal/geo"
	"github.com/chrisdurfee/authgate/internal/handlers"
	appmiddleware "github.com/chrisdurfee/authgate/internal/middleware"
	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/chrisdurfee/authgate/internal/notify"
	"github.com/chrisdurfee/authgate/internal/repositories"
	"github.com/chrisdurfee/authgate/internal/routes"
	"github.com/chrisdurfee/authgate/internal/services"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
	pkglogger "github.com/chrisdurfee/authgate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := database.Migrate(&cfg.Database, logger); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	csrfRepo := repositories.NewCsrfTokenRepository(db)
	challengeRepo := repositories.NewMfaChallengeRepository(db)
	secureRequestRepo := repositories.NewSecureRequestRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	locationRepo := repositories.NewLocationRepository(db)
	rateWindowRepo := repositories.NewRateWindowRepository(db)

	// Crypto and token plumbing
	cipher, err := auth.NewCipher(cfg.Auth.CipherKey)
	if err != nil {
		logger.Error("failed to initialize cipher", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.SessionAbsoluteMax)
	csrfGate := auth.NewCsrfGate(csrfRepo, cfg.Auth.CsrfTokenTTL)
	totpManager := auth.NewTOTPManager(cipher, cfg.Mfa.TOTPIssuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: true,
	})
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Collaborators
	registry := dispatch.NewRegistry()
	var notifier notify.Notifier
	if cfg.Server.Env == "production" {
		emailDispatcher, err := dispatch.NewSESDispatcher(cfg.Dispatch.AWSRegion, cfg.Dispatch.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email dispatcher", slog.Any("error", err))
			os.Exit(1)
		}
		registry.Register(models.ChannelEmail, emailDispatcher)

		emailNotifier, err := notify.NewEmailNotifier(cfg.Dispatch.AWSRegion, cfg.Dispatch.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = emailNotifier
	} else {
		registry.Register(models.ChannelEmail, dispatch.NewLogDispatcher(models.ChannelEmail, logger))
		notifier = notify.NewLogNotifier(logger)
	}
	// No SMS or push providers wired up yet; log-only keeps the channels usable in development.
	registry.Register(models.ChannelSMS, dispatch.NewLogDispatcher(models.ChannelSMS, logger))
	registry.Register(models.ChannelPush, dispatch.NewLogDispatcher(models.ChannelPush, logger))

	geoResolver := geo.NewHTTPResolver(cfg.Geo.ResolverURL, cfg.Geo.ResolveTimeout, cfg.Geo.CacheTTL, logger)
	defer geoResolver.Stop()

	// Services
	throttleService := services.NewThrottleService(rateWindowRepo, logger)
	secureRequestService := services.NewSecureRequestService(secureRequestRepo, cfg.Auth.SecureRequestTTL, logger)
	deviceTrustService := services.NewDeviceTrustService(deviceRepo, locationRepo, geoResolver, notifier, auditLogger, logger)
	mfaService := services.NewMfaService(
		challengeRepo, userRepo, sessionRepo, secureRequestService, deviceTrustService,
		registry, totpManager, throttleService, auditLogger, logger,
		services.MfaServiceConfig{
			CodeTTL:         cfg.Mfa.CodeTTL,
			CodeLength:      cfg.Mfa.CodeLength,
			MaxAttempts:     cfg.Mfa.MaxAttempts,
			IssueLimit:      cfg.Mfa.IssueLimit,
			IssueWindow:     cfg.Mfa.IssueWindow,
			VerifyLimit:     cfg.Mfa.VerifyLimit,
			VerifyWindow:    cfg.Mfa.VerifyWindow,
			DispatchTimeout: cfg.Mfa.DispatchTimeout,
		},
	)
	sessionService := services.NewSessionService(
		sessionRepo, userRepo, secureRequestService, deviceTrustService,
		throttleService, tokenManager, cipher, timingDelay, auditLogger, logger,
		services.SessionServiceConfig{
			SlidingWindow:        cfg.Auth.SessionSlidingWindow,
			AbsoluteMax:          cfg.Auth.SessionAbsoluteMax,
			LoginLimitPerIP:      cfg.Auth.LoginLimitPerIP,
			LoginWindow:          cfg.Auth.LoginWindow,
			PulseLimitPerSession: cfg.Auth.PulseLimitPerSession,
			PulseWindow:          cfg.Auth.PulseWindow,
		},
	)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}

	authHandler := handlers.NewAuthHandler(sessionService, csrfGate, ipConfig, cookieConfig, logger)
	sessionHandler := handlers.NewSessionHandler(sessionService, csrfGate)
	mfaHandler := handlers.NewMfaHandler(mfaService)
	csrfHandler := handlers.NewCsrfHandler(csrfGate)
	devicesHandler := handlers.NewDevicesHandler(deviceTrustService, sessionRepo)

	// Router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(appmiddleware.SecurityHeaders(appmiddleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(appmiddleware.CORS(appmiddleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(appmiddleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, sessionHandler, mfaHandler, csrfHandler, devicesHandler, tokenManager, csrfGate, logger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Background expiry sweeps
	sweeper := background.NewSweeper([]background.SweepTask{
		{Name: "secure_requests", Run: secureRequestService.ExpireStale},
		{Name: "sessions", Run: sessionRepo.CleanupExpired},
		{Name: "csrf_tokens", Run: csrfRepo.CleanupExpired},
		{Name: "mfa_challenges", Run: mfaService.CleanupStale},
		{Name: "rate_windows", Run: func(ctx context.Context) (int64, error) {
			return rateWindowRepo.CleanupExpired(ctx, 24*time.Hour)
		}},
	}, logger, cfg.Auth.SweepInterval)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweeper.Start(sweepCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
