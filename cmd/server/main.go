package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ukombozini/fieldsync/internal/auth"
	"github.com/ukombozini/fieldsync/internal/db"
	"github.com/ukombozini/fieldsync/internal/httpapi"
	"github.com/ukombozini/fieldsync/internal/service/syncservice"
	"github.com/ukombozini/fieldsync/internal/storage/postgres"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt32(k string, def int32) int32 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		log.Fatal().Str("key", k).Str("value", v).Msg("invalid integer in environment")
	}
	return int32(n)
}

func main() {
	// Local overrides from .env, ignored when absent
	_ = godotenv.Load()

	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "fieldsync").Logger()

	// Pretty logging for local dev
	if env("ENV", "dev") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	// Database connection
	pgURL := env("DATABASE_URL", "")
	if pgURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	if dir := env("MIGRATIONS_DIR", "migrations"); dir != "" {
		if err := db.Migrate(dir, pgURL); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to apply migrations")
		}
	}

	pool, err := db.Open(ctx, pgURL, db.PoolConfig{
		MaxConns: envInt32("DB_MAX_CONNS", 0),
		MinConns: envInt32("DB_MIN_CONNS", 0),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	store := postgres.NewDB(pool, syncx.SystemClock())

	// HTTP server setup
	srv := &httpapi.Server{
		DB:   store,
		Sync: syncservice.New(store, syncx.SystemClock()),
	}

	jwtCfg := auth.JWTCfg{
		HS256Secret: env("JWT_HS256_SECRET", "dev-secret-change-in-production"),
		DevMode:     env("AUTH_DEV_MODE", "") == "true",
	}

	httpAddr := env("HTTP_ADDR", ":8081")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(jwtCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
