package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campaignkit/socialscrape/internal/cache"
	"github.com/campaignkit/socialscrape/internal/config"
	"github.com/campaignkit/socialscrape/internal/httpapi"
	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/ratelimit"
	"github.com/campaignkit/socialscrape/internal/scraper"
)

func main() {
	cfg := config.Load()

	level := logging.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	logger := logging.New(level)

	// Initialize cache backend
	var outcomeCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		logger.Info("Using Redis cache backend", logging.WithField("addr", cfg.Cache.RedisAddr))
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:   cfg.Cache.RedisAddr,
			Prefix: "socialscrape:",
		}, cfg.Cache.TTL)
		if err != nil {
			logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			outcomeCache = cache.NewMemory(cfg.Cache.TTL)
		} else {
			outcomeCache = redisCache
		}
	default:
		logger.Info("Using in-memory cache backend")
		outcomeCache = cache.NewMemory(cfg.Cache.TTL)
	}

	limiter := ratelimit.New(cfg.Server.RateLimitDur)

	creds := scraper.Credentials{
		APIKey:        cfg.Credentials.APIKey,
		SessionCookie: cfg.Credentials.SessionCookie,
		CSRFToken:     cfg.Credentials.CSRFToken,
	}
	engine := scraper.New(creds, limiter, outcomeCache, logger)

	if creds.HasAPIKey() {
		logger.Info("API credential configured from environment")
	}
	if creds.HasSession() {
		logger.Info("Session cookie configured from environment")
	}

	server := httpapi.New(engine, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", logging.WithField("error", err.Error()))
		}
	}()

	logger.Info("Starting HTTP server", logging.WithField("addr", cfg.Server.HTTPAddr))
	if err := server.Start(cfg.Server.HTTPAddr); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server error", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}
