package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotificationNotFound = errors.New("not found or already read")

// Inbox stores in-app notifications per user.
type Inbox interface {
	Add(ctx context.Context, n Notification) error
	// List returns the user's notifications, newest first.
	List(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// PostgresInbox uses the notifications table.
type PostgresInbox struct {
	pool *pgxpool.Pool
}

func NewPostgresInbox(pool *pgxpool.Pool) *PostgresInbox {
	return &PostgresInbox{pool: pool}
}

func (p *PostgresInbox) Add(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO notifications (user_id, type, title, body, reference, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`, n.UserID, n.Type, n.Title, n.Body, n.Reference, n.CreatedAt,
	)
	return err
}

func (p *PostgresInbox) List(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id::text, user_id, type, title, COALESCE(body, ''), COALESCE(reference, ''), created_at, read_at
         FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (p *PostgresInbox) MarkRead(ctx context.Context, userID, id string) error {
	res, err := p.pool.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE id::text = $1 AND user_id = $2 AND read_at IS NULL`, id, userID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MemoryInbox keeps notifications in process.
type MemoryInbox struct {
	mu    sync.Mutex
	items map[string][]Notification
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{items: make(map[string][]Notification)}
}

func (m *MemoryInbox) Add(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.items[n.UserID] = append(m.items[n.UserID], n)
	return nil
}

func (m *MemoryInbox) List(_ context.Context, userID string) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]Notification{}, m.items[userID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (m *MemoryInbox) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.items[userID] {
		if n.ID == id && n.ReadAt == nil {
			now := time.Now()
			m.items[userID][i].ReadAt = &now
			return nil
		}
	}
	return ErrNotificationNotFound
}
