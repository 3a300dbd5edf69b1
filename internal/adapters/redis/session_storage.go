package redis

// Package redis provides the Redis-backed durable session mirror.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/cop-agent/internal/ports"
)

var _ ports.SessionStorage = (*SessionStorage)(nil)

const defaultPrefix = "cop:session:"

// SessionStorage keeps session keys in Redis under a per-agent prefix.
// A non-zero TTL bounds how long an abandoned session survives.
type SessionStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// SessionStorageOptions configures a SessionStorage.
type SessionStorageOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewSessionStorage creates a Redis-backed session storage.
func NewSessionStorage(client redis.UniversalClient, opts SessionStorageOptions) *SessionStorage {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &SessionStorage{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *SessionStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *SessionStorage) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("storage key cannot be empty")
	}
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *SessionStorage) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
