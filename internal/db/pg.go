// Package db owns the postgres bootstrap for the sync API: connection pool
// construction and schema migrations.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig sizes the connection pool. Zero values fall back to defaults
// sized for a single API instance serving field-device sync traffic.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

const (
	defaultMaxConns = 16
	defaultMinConns = 1
)

// poolConfig builds the pgxpool configuration from the URL and sizing knobs.
func poolConfig(url string, pc PoolConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = pc.MaxConns
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	cfg.MinConns = pc.MinConns
	if cfg.MinConns <= 0 {
		cfg.MinConns = defaultMinConns
	}
	// Recycle connections well inside typical LB/proxy idle cutoffs.
	cfg.MaxConnLifetime = 55 * time.Minute
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	return cfg, nil
}

// Open connects a pgx pool and verifies connectivity before returning it.
func Open(ctx context.Context, url string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(url, pc)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("connected to postgres")

	return pool, nil
}
