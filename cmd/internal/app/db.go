package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwbrown115/GameServer/cmd/internal/migrate"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
// It does not run migrations; see RunMigrations.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// RunMigrations applies the embedded schema when GS_DB_AUTO_MIGRATE is set.
func RunMigrations(cfg Config, log Logger) error {
	if !cfg.DBAutoMigrate || cfg.DatabaseURL == "" {
		return nil
	}
	if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("db.migrate.ok")
	return nil
}
