package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis, so they survive restarts and can be
// shared between instances
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "session:",
	}, nil
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

// Save implements SessionStore
func (r *RedisStore) Save(ctx context.Context, token string, s Session) error {
	buf, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(s.Expires)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	err = r.client.Set(ctx, r.key(token), buf, ttl).Err()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load implements SessionStore
func (r *RedisStore) Load(ctx context.Context, token string) (
	s Session, err error,
) {
	buf, err := r.client.Get(ctx, r.key(token)).Bytes()
	switch {
	case err == redis.Nil:
		err = common.ErrNoSession
		return
	case err != nil:
		err = fmt.Errorf("lookup session: %w", err)
		return
	}
	err = json.Unmarshal(buf, &s)
	if err != nil {
		err = fmt.Errorf("unmarshal session: %w", err)
	}
	return
}

// Delete implements SessionStore
func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close implements SessionStore
func (r *RedisStore) Close() error {
	return r.client.Close()
}
