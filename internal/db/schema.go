package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

// EnsureSchema creates the record table and, for standalone deployments, the
// listing tables the engine reads prices from. Safe to run on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	// The record table is the only one the engine cannot run without
	if err := ensureRecordsTable(ctx, pool); err != nil {
		return err
	}

	ensureNotificationsTable(ctx, pool)

	// Listing tables normally belong to the listing service
	ensureJobsTable(ctx, pool)
	ensureMachineRequestsTable(ctx, pool)
	return nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = $1
        )`, name).Scan(&exists)
	return exists, err
}

// ensureRecordsTable creates kv_records, holding negotiations, payments, disputes and ratings
func ensureRecordsTable(ctx context.Context, pool *pgxpool.Pool) error {
	log := logger.NewSublogger("db")
	exists, err := tableExists(ctx, pool, "kv_records")
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if exists {
		return nil
	}
	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS kv_records (
            key TEXT PRIMARY KEY,
            data JSONB NOT NULL,
            version BIGINT NOT NULL DEFAULT 1,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		return fmt.Errorf("failed to create kv_records: %w", err)
	}
	log.Info("kv_records table ensured")
	return nil
}

// ensureJobsTable creates jobs if missing
func ensureJobsTable(ctx context.Context, pool *pgxpool.Pool) {
	log := logger.NewSublogger("db")
	exists, err := tableExists(ctx, pool, "jobs")
	if err != nil {
		log.WithError(err).Warn("Schema check failed")
		return
	}
	if exists {
		return
	}
	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS jobs (
            id TEXT PRIMARY KEY,
            farmer_id TEXT NOT NULL,
            labourer_id TEXT NULL,
            payment DOUBLE PRECISION NOT NULL,
            status TEXT NOT NULL DEFAULT 'open',
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		log.WithError(err).Error("Failed to create jobs table")
		return
	}
	log.Info("jobs table ensured")
}

// ensureMachineRequestsTable creates machine_requests if missing
func ensureMachineRequestsTable(ctx context.Context, pool *pgxpool.Pool) {
	log := logger.NewSublogger("db")
	exists, err := tableExists(ctx, pool, "machine_requests")
	if err != nil {
		log.WithError(err).Warn("Schema check failed")
		return
	}
	if !exists {
		_, err = pool.Exec(ctx, `
            CREATE TABLE IF NOT EXISTS machine_requests (
                id TEXT PRIMARY KEY,
                farmer_id TEXT NOT NULL,
                owner_id TEXT NOT NULL,
                unit_price DOUBLE PRECISION NOT NULL,
                status TEXT NOT NULL DEFAULT 'requested',
                duration TEXT NULL,
                created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
                updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
            )`)
		if err != nil {
			log.WithError(err).Error("Failed to create machine_requests table")
			return
		}
	}

	// Older listing deployments predate deposits
	if _, err := pool.Exec(ctx, `ALTER TABLE machine_requests ADD COLUMN IF NOT EXISTS deposit DOUBLE PRECISION NULL`); err != nil {
		log.WithError(err).Error("Failed to add machine_requests.deposit")
		return
	}
	log.Info("machine_requests table ensured")
}

// ensureNotificationsTable creates notifications table if it doesn't exist
func ensureNotificationsTable(ctx context.Context, pool *pgxpool.Pool) {
	log := logger.NewSublogger("db")
	exists, err := tableExists(ctx, pool, "notifications")
	if err != nil {
		log.WithError(err).Warn("Schema check failed")
		return
	}
	if exists {
		return
	}
	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id TEXT NOT NULL,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference TEXT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        )`)
	if err != nil {
		log.WithError(err).Error("Failed to create notifications table")
		return
	}
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC)`)
	log.Info("notifications table ensured")
}
