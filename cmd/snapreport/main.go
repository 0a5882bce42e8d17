package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snapreport/internal/appinfo"
	"snapreport/internal/config"
	"snapreport/internal/database"
	"snapreport/internal/handlers"
	"snapreport/internal/identity"
	"snapreport/internal/middleware"
	"snapreport/internal/ratelimit"
	"snapreport/internal/reports"
	"snapreport/pkg/cache"
	"snapreport/pkg/logger"
	"snapreport/pkg/utils"
)

func main() {
	utils.LoadEnv()

	if os.Getenv("STARTUP_LOG_ACTIVE") != "false" {
		printAsciiLogo()
		printSignature()
	}

	config.Load()
	cfg := config.AppConfig

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database.InitDB(cfg.Database.Path)
	cleaner := &database.Cleaner{
		DB:       database.DB,
		Path:     cfg.Database.Path,
		Limit:    utils.SizeToBytes(cfg.Database.MaxSize, 2<<30),
		Interval: config.Duration(cfg.Database.PruneInterval, 10*time.Minute),
	}

	appinfo.StartTime = time.Now()

	appCache := cache.New(cache.Options{
		Enabled:       cfg.Cache.Enabled,
		MaxCapacityMB: cfg.Cache.MaxCapacity,
		TTL:           config.Duration(cfg.Cache.TTL, cache.DefaultTTL),
	})
	appCache.Start(ctx)

	limiter := ratelimit.NewMemory(ratelimit.RulesFromConfig(cfg.RateLimit.Routes))
	go limiter.StartSweeper(ctx, config.Duration(cfg.RateLimit.SweepInterval, 5*time.Minute))

	tokens := &identity.Tokens{
		Secret: []byte(cfg.Auth.TokenSecret),
		TTL:    config.Duration(cfg.Auth.TokenTTL, config.DefaultTokenTTL),
	}
	sessions := &identity.Sessions{
		DB:  database.DB,
		TTL: config.Duration(cfg.Auth.SessionTTL, 30*24*time.Hour),
	}
	sessionAuth := identity.SessionProvider{Store: sessions, CookieName: cfg.Auth.SessionCookie}
	resolver := identity.NewResolver(identity.BearerProvider{Tokens: tokens}, sessionAuth)

	api := &handlers.API{
		Reports:     reports.NewService(reports.NewStore(database.DB)),
		Resolver:    resolver,
		SessionAuth: sessionAuth,
		Tokens:      tokens,
		Sessions:    sessions,
		Limiter:     limiter,
		Cache:       appCache,
		DB:          database.DB,
		Opts: handlers.Options{
			MaxImageBytes: cfg.MaxImageBytes(),
			SessionCookie: cfg.Auth.SessionCookie,
			SessionTTL:    sessions.TTL,
			DevLogin:      cfg.Auth.DevLogin,
			Production:    cfg.IsProduction(),
			ListLimit:     200,
		},
	}
	cleaner.OnClear = api.ForgetScreenshots
	go cleaner.StartCleaner(ctx)

	if cfg.Auth.DevLogin {
		logger.LogWarn("Dev login is enabled at POST /auth/dev-login. Disable auth.dev_login outside development.")
	}

	throttle := middleware.NewThrottle(
		cfg.Security.Throttle.Enabled,
		cfg.Security.Throttle.Requests,
		config.Duration(cfg.Security.Throttle.Window, time.Second),
		cfg.Security.Throttle.Burst,
	)
	go throttle.StartCleanup(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Handler(throttle, cfg.Security.CorsOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.LogError("Graceful shutdown failed: %v", err)
		}
	}()

	logger.LogServerStart(cfg.Server.Port, cfg.GetBaseUrl())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.LogFatal("Server stopped: %v", err)
	}

	if sqlDB, err := database.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.LogInfo("Server stopped.")
}
