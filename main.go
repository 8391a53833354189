package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"habitTrackerAPI/internal/auth"
	"habitTrackerAPI/internal/config"
	"habitTrackerAPI/internal/database"
	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/notification"
	"habitTrackerAPI/middleware"
	"habitTrackerAPI/services"
)

func main() {
	// Stderr only until the configured log dir is known.
	_ = logger.Init(logger.Config{Prefix: "habit-api"})

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, Dir: cfg.LogDir, Prefix: "habit-api"}); err != nil {
		logger.Fatal("Failed to initialize logger", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbPool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.Migrate(ctx, dbPool); err != nil {
		cancel()
		logger.Fatal("Failed to run migrations", "error", err)
	}
	cancel()
	logger.Info("Successfully connected to database")

	defer func() {
		logger.Info("Closing database connection pool...")
		dbPool.Close()
	}()

	issuer := auth.NewIssuer(cfg.JWTSecret, auth.DefaultTokenTTL)
	notificationService := services.NewNotificationService(dbPool)
	authService := services.NewAuthService(dbPool, issuer)
	habitService := services.NewHabitService(dbPool)
	friendService := services.NewFriendService(dbPool, notificationService)

	if cfg.PushEnabled() {
		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
		fcmService, err := notification.NewFCMService(initCtx, cfg.FCMServiceAccountJSON, cfg.FCMCredentialsFile)
		initCancel()
		if err != nil {
			logger.Warn("Could not initialize FCM, push disabled", "error", err)
		} else {
			notificationService.SetPushProvider(fcmService)
			logger.Info("FCM push provider initialized")
		}
	}
	defer notificationService.Stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go rateLimiter.Cleanup()
	defer rateLimiter.Stop()

	handler := newRouter(routerDeps{
		DB:          dbPool,
		Auth:        authService,
		Habits:      habitService,
		Friends:     friendService,
		Devices:     notificationService,
		Verifier:    issuer,
		RateLimiter: rateLimiter,
		Registry:    registry,
		MetricsUser: cfg.MetricsUser,
		MetricsPass: cfg.MetricsPass,
	})

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Error starting server", "error", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Got signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server shutdown complete")
}
