package workitem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gocache "github.com/patrickmn/go-cache"
)

// Source is the job-posting / machine-request collaborator.
type Source interface {
	Get(ctx context.Context, category Category, id string) (*WorkItem, error)
	// UpdatePrice overwrites the advertised price after a negotiation is agreed.
	UpdatePrice(ctx context.Context, category Category, id string, price float64) error
}

// Postgres reads jobs and machine_requests tables owned by the listing service.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, category Category, id string) (*WorkItem, error) {
	w := WorkItem{ID: id, Category: category}
	var err error
	switch category {
	case CategoryLabour:
		err = p.pool.QueryRow(ctx,
			`SELECT farmer_id::text, COALESCE(labourer_id::text, ''), payment, status
			 FROM jobs WHERE id = $1`, id,
		).Scan(&w.RequesterID, &w.FulfillerID, &w.BasePrice, &w.Status)
	case CategoryMachine:
		err = p.pool.QueryRow(ctx,
			`SELECT farmer_id::text, owner_id::text, unit_price, status, COALESCE(duration, ''), deposit
			 FROM machine_requests WHERE id = $1`, id,
		).Scan(&w.RequesterID, &w.FulfillerID, &w.BasePrice, &w.Status, &w.Duration, &w.Deposit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch %s %s: %w", category, id, err)
	}
	return &w, nil
}

func (p *Postgres) UpdatePrice(ctx context.Context, category Category, id string, price float64) error {
	var query string
	switch category {
	case CategoryLabour:
		query = `UPDATE jobs SET payment = $1, updated_at = NOW() WHERE id = $2`
	case CategoryMachine:
		query = `UPDATE machine_requests SET unit_price = $1, updated_at = NOW() WHERE id = $2`
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	res, err := p.pool.Exec(ctx, query, price, id)
	if err != nil {
		return fmt.Errorf("update price of %s %s: %w", category, id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Memory is an in-process Source used in development mode and tests.
type Memory struct {
	mu    sync.Mutex
	items *gocache.Cache
}

func NewMemory(items ...WorkItem) *Memory {
	m := &Memory{items: gocache.New(gocache.NoExpiration, 0)}
	for _, w := range items {
		m.Put(w)
	}
	return m
}

func memoryKey(category Category, id string) string {
	return string(category) + "/" + id
}

// Put inserts or replaces an item.
func (m *Memory) Put(w WorkItem) {
	m.items.Set(memoryKey(w.Category, w.ID), w, gocache.NoExpiration)
}

func (m *Memory) Get(_ context.Context, category Category, id string) (*WorkItem, error) {
	v, ok := m.items.Get(memoryKey(category, id))
	if !ok {
		return nil, ErrNotFound
	}
	w := v.(WorkItem)
	return &w, nil
}

func (m *Memory) UpdatePrice(_ context.Context, category Category, id string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(category, id)
	v, ok := m.items.Get(key)
	if !ok {
		return ErrNotFound
	}
	w := v.(WorkItem)
	w.BasePrice = price
	m.items.Set(key, w, gocache.NoExpiration)
	return nil
}
