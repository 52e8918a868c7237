package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore access_token 缓存
// Get 未命中时返回 ok=false 且 err=nil
type TokenStore interface {
	Get(ctx context.Context, key string) (token string, ok bool, err error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenStore 进程内 TokenStore，适合单实例部署
type MemoryTokenStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTokenStore 创建进程内缓存
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.token, true, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// RedisTokenStore 基于 Redis 的 TokenStore，多实例共享同一个 access_token
type RedisTokenStore struct {
	cli    redis.Cmdable
	prefix string
}

// NewRedisTokenStore 创建 Redis 缓存，key 统一加 prefix
func NewRedisTokenStore(cli redis.Cmdable, prefix string) *RedisTokenStore {
	return &RedisTokenStore{cli: cli, prefix: prefix}
}

func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	token, err := s.cli.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get token: %w", err)
	}
	return token, true, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := s.cli.Set(ctx, s.prefix+key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}
