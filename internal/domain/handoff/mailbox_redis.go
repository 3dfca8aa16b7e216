package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCmdable is the part of *redis.Client the mailbox uses.
type redisCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisMailbox keeps each slot in its own key and takes with GETDEL.
type RedisMailbox struct {
	client redisCmdable
	prefix string
	ttl    time.Duration
}

// NewRedisMailbox returns a mailbox on client. A zero ttl keeps unconsumed
// records until they are taken or overwritten.
func NewRedisMailbox(client redisCmdable, ttl time.Duration) *RedisMailbox {
	return &RedisMailbox{client: client, prefix: "teleconsulta:handoff:", ttl: ttl}
}

func (m *RedisMailbox) key(k string) string {
	return m.prefix + k
}

func (m *RedisMailbox) Put(ctx context.Context, key string, payload []byte) error {
	if err := m.client.Set(ctx, m.key(key), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("put handoff slot: %w", err)
	}
	return nil
}

func (m *RedisMailbox) Take(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := m.client.GetDel(ctx, m.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take handoff slot: %w", err)
	}
	return data, true, nil
}
