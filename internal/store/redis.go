package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "agrihub:"

// Redis keeps each record in a hash {data, version} and uses WATCH/MULTI for
// the version check.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (Record, error) {
	return r.get(ctx, r.client, key)
}

func (r *Redis) get(ctx context.Context, c redis.Cmdable, key string) (Record, error) {
	vals, err := c.HMGet(ctx, redisPrefix+key, "data", "version").Result()
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	if vals[0] == nil {
		return Record{}, ErrNotFound
	}
	data, _ := vals[0].(string)
	var version int64
	if s, ok := vals[1].(string); ok {
		if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
			return Record{}, fmt.Errorf("get %s: bad version %q", key, s)
		}
	}
	return Record{Key: key, Data: []byte(data), Version: version}, nil
}

func (r *Redis) Put(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	next := version + 1
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.get(ctx, tx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			current.Version = 0
		case err != nil:
			return err
		}
		if current.Version != version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, redisPrefix+key, "data", data, "version", next)
			return nil
		})
		return err
	}, redisPrefix+key)

	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrConflict):
		return 0, ErrConflict
	case err != nil:
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return next, nil
}

// List scans for matching keys; records deleted mid-scan are skipped.
func (r *Redis) List(ctx context.Context, prefix string) ([]Record, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisPrefix+escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), redisPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list %s*: %w", prefix, err)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		rec, err := r.get(ctx, r.client, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
