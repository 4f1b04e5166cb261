package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores records in the kv_records table created by db.EnsureSchema.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, key string) (Record, error) {
	r := Record{Key: key}
	err := p.pool.QueryRow(ctx,
		`SELECT data, version FROM kv_records WHERE key = $1`, key,
	).Scan(&r.Data, &r.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	return r, nil
}

func (p *Postgres) Put(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	if version == 0 {
		tag, err := p.pool.Exec(ctx,
			`INSERT INTO kv_records (key, data, version, updated_at)
			 VALUES ($1, $2, 1, NOW())
			 ON CONFLICT (key) DO NOTHING`,
			key, data,
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrConflict
		}
		return 1, nil
	}

	var next int64
	err := p.pool.QueryRow(ctx,
		`UPDATE kv_records SET data = $1, version = version + 1, updated_at = NOW()
		 WHERE key = $2 AND version = $3
		 RETURNING version`,
		data, key, version,
	).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("update %s: %w", key, err)
	}
	return next, nil
}

func (p *Postgres) List(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, data, version FROM kv_records WHERE starts_with(key, $1) ORDER BY key`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s*: %w", prefix, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Data, &r.Version); err != nil {
			return nil, fmt.Errorf("list %s*: %w", prefix, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
