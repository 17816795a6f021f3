package mpesa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore caches the gateway access token between requests
type TokenStore interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// RedisTokenStore shares one access token across every API replica
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore creates a token store keyed by the gateway short code
func NewRedisTokenStore(client *redis.Client, shortCode string) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: "mpesa:token:" + shortCode}
}

func (s *RedisTokenStore) Get(ctx context.Context) (string, bool, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached token: %w", err)
	}
	return token, true, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Invalidate(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to drop cached token: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in process when Redis is not configured
type MemoryTokenStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{now: time.Now}
}

func (s *MemoryTokenStore) Get(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !s.now().Before(s.expiresAt) {
		return "", false, nil
	}
	return s.token, true, nil
}

func (s *MemoryTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryTokenStore) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
