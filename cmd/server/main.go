// Command server runs the WhatsApp webhook gateway.
//
// Startup order: environment, logging, database, Redis, tracing, router.
// The process serves until SIGINT/SIGTERM, then drains in-flight requests
// within the configured shutdown budget before closing its stores.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/config"
	httpapi "github.com/tbourn/go-whatsapp-gateway/internal/http"
	"github.com/tbourn/go-whatsapp-gateway/internal/observability"
	"github.com/tbourn/go-whatsapp-gateway/internal/privacy"
	"github.com/tbourn/go-whatsapp-gateway/internal/repo"
	"github.com/tbourn/go-whatsapp-gateway/internal/sysutil"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("env", cfg.Env).
		Str("version", cfg.Version).
		Str("port", cfg.Port).
		Msg("starting whatsapp gateway")

	db, err := repo.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	ctx := context.Background()

	var store cache.Store
	redisStore, err := cache.NewRedis(ctx, cfg.RedisURL)
	switch {
	case err == nil:
		store = redisStore
	case cfg.IsProduction():
		log.Fatal().Err(err).Msg("redis connection failed")
	default:
		// Development convenience only; counters and context reset on restart.
		log.Warn().Err(err).Msg("redis unavailable, using in-process store")
		store = cache.NewMemory()
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, cfg.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	if !cfg.TrustProxy {
		_ = engine.SetTrustedProxies(nil)
	}

	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:        db,
		Store:     store,
		LLM:       httpapi.NewCompleter(cfg),
		Hasher:    privacy.New(cfg.PrivacyHashSalt),
		StartedAt: time.Now(),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown incomplete")
	}

	if rs, ok := store.(*cache.RedisStore); ok {
		_ = rs.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown incomplete")
	}

	log.Info().Msg("gateway stopped")
}
