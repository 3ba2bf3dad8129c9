// Package db owns the postgres connection pool and schema migrations.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hargalist/hargalist-api/migrations"
	"github.com/hargalist/hargalist-api/pkg/config"
)

// NewPool connects a pgx pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database pool ready",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate applies all pending embedded migrations.
func Migrate(cfg config.DatabaseConfig, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("migrations applied", slog.Int64("version", version))
	return nil
}
