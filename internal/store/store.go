// Package store is the key-value persistence port. Records are replaced whole;
// every write carries the version it was computed from so a stale write fails
// instead of silently overwriting a newer one.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record version conflict")
)

// Record is one stored value. Version 0 means "not yet stored".
type Record struct {
	Key     string
	Data    []byte
	Version int64
}

type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	// Put writes data if the stored version still equals version and returns
	// the new version. Use version 0 to create.
	Put(ctx context.Context, key string, data []byte, version int64) (int64, error)
	// List returns the records whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Record, error)
}

// Memory keeps records in process.
type Memory struct {
	mu      sync.Mutex
	records *gocache.Cache
}

func NewMemory() *Memory {
	return &Memory{records: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	v, ok := m.records.Get(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	r := v.(Record)
	r.Data = append([]byte(nil), r.Data...)
	return r, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte, version int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if v, ok := m.records.Get(key); ok {
		current = v.(Record).Version
	}
	if current != version {
		return current, ErrConflict
	}
	next := current + 1
	m.records.Set(key, Record{Key: key, Data: append([]byte(nil), data...), Version: next}, gocache.NoExpiration)
	return next, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Record, error) {
	var out []Record
	for k, item := range m.records.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		r := item.Object.(Record)
		r.Data = append([]byte(nil), r.Data...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Keys lists stored keys in order.
func (m *Memory) Keys() []string {
	items := m.records.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
