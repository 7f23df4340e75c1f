package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers which messages a queue has already processed. Keys are
// marked only after the handler succeeded, so a crash mid-handler leads to
// redelivery instead of a lost message.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func Key(queue, messageID string) string {
	return fmt.Sprintf("idem:%s:%s", queue, messageID)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.SetNX(ctx, key, "1", s.ttl).Err()
}

// Memory is a process-local Store used by tests and single-binary runs.
type Memory struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{keys: map[string]time.Time{}, ttl: ttl, now: time.Now}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.keys[key]
	if !ok {
		return false, nil
	}
	if m.ttl > 0 && m.now().After(exp) {
		delete(m.keys, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = m.now().Add(m.ttl)
	return nil
}
