package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sudo-init-do/agrihub/internal/config"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

var Conn *pgxpool.Pool

// DSN builds the connection string for cfg.
func DSN(cfg config.Database) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": []string{cfg.SslMode}}.Encode(),
	}
	return u.String()
}

// Init connects to Postgres, retrying the first ping while the database comes up,
// and makes sure the tables the engine touches exist.
func Init(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	log := logger.NewSublogger("db")

	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	ping := func() error { return pool.Ping(ctx) }
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("Database not ready")
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(ping, b, notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	log.Info("Connected to Postgres successfully")

	Conn = pool
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
