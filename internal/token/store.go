package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/arango-auth/pkg/secrets"
)

// Store keeps issued tokens keyed by username.
type Store interface {
	// Get returns nil, nil when no token is stored.
	Get(ctx context.Context, username string) (*Token, error)
	Put(ctx context.Context, tok Token) error
	Delete(ctx context.Context, username string) error
	HealthCheck(ctx context.Context) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	cache *secrets.Cache[Token]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: secrets.NewCache[Token](DefaultLifetime)}
}

func (s *MemoryStore) Get(_ context.Context, username string) (*Token, error) {
	tok, ok := s.cache.Get(username)
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *MemoryStore) Put(_ context.Context, tok Token) error {
	s.cache.PutWithTTL(tok.Username, tok, time.Until(tok.ExpiresAt))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, username string) error {
	s.cache.Bust(username)
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// RedisStore shares tokens between processes through Redis. Entries expire
// together with the token they hold.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, db int, password, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreFromClient(rdb, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) key(username string) string {
	return s.prefix + ":" + username
}

func (s *RedisStore) Get(ctx context.Context, username string) (*Token, error) {
	val, err := s.redis.Get(ctx, s.key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(val, &tok); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}
	return &tok, nil
}

func (s *RedisStore) Put(ctx context.Context, tok Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, tok.Username)
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(tok.Username), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return errors.New("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}
