package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyKeyPrefix = "biasbreaker:history:"

// RedisStore keeps session histories in Redis lists, newest first.
type RedisStore struct {
	client   redis.UniversalClient
	capacity int
	ttl      time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl keeps histories forever.
func NewRedisStore(client redis.UniversalClient, capacity int, ttl time.Duration) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &RedisStore{client: client, capacity: capacity, ttl: ttl}
}

func historyKey(sessionID string) string {
	return historyKeyPrefix + sessionID
}

// Load returns the session's exchanges oldest first.
func (r *RedisStore) Load(ctx context.Context, sessionID string) ([]Exchange, error) {
	raw, err := r.client.LRange(ctx, historyKey(sessionID), 0, int64(r.capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]Exchange, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e Exchange
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Append pushes an exchange and trims the list to capacity.
func (r *RedisStore) Append(ctx context.Context, sessionID string, e Exchange) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	key := historyKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(r.capacity-1))
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
