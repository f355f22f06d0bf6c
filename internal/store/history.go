// Package store records conversion history for the ops dashboard. History is
// strictly best-effort: losing an entry never fails the conversion that
// produced it.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Entry is one finished request.
type Entry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Input      string    `json:"input"`
	MIMEType   string    `json:"mime_type,omitempty"`
	Target     string    `json:"target,omitempty"`
	Outcome    string    `json:"outcome"`
	BytesIn    int64     `json:"bytes_in"`
	BytesOut   int64     `json:"bytes_out"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// History receives entries as requests finish and serves them newest-first.
type History interface {
	Record(ctx context.Context, e Entry)
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}

// RedisHistory keeps a capped list shared across instances.
type RedisHistory struct {
	client *redis.Client
	key    string
	max    int
}

// NewRedisHistory connects and verifies the server is reachable.
func NewRedisHistory(redisURL, key string, max int) (*RedisHistory, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 200
	}
	return &RedisHistory{client: c, key: key, max: max}, nil
}

// Record pushes the entry and trims the list to its cap. Failures are logged
// and swallowed.
func (h *RedisHistory) Record(ctx context.Context, e Entry) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Warn().Err(err).Msg("history entry marshal failed")
		return
	}
	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, h.key, b)
	pipe.LTrim(ctx, h.key, 0, int64(h.max)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("history write failed")
	}
}

// Recent returns up to n entries, newest first.
func (h *RedisHistory) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > h.max {
		n = h.max
	}
	rows, err := h.client.LRange(ctx, h.key, 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var e Entry
		if err := json.Unmarshal([]byte(row), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Ping reports Redis reachability for the health checker.
func (h *RedisHistory) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

func (h *RedisHistory) Close() error { return h.client.Close() }

// MemoryHistory is the fallback when no Redis is configured: a ring of the
// most recent entries, newest first.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemoryHistory keeps up to max entries.
func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = 200
	}
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Record(ctx context.Context, e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, Entry{})
	copy(h.entries[1:], h.entries)
	h.entries[0] = e
	if len(h.entries) > h.max {
		h.entries = h.entries[:h.max]
	}
}

func (h *MemoryHistory) Recent(ctx context.Context, n int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Entry, n)
	copy(out, h.entries[:n])
	return out, nil
}

func (h *MemoryHistory) Close() error { return nil }
