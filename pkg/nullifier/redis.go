// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nullifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/attrib/pkg/ids"
)

// RedisConfig holds connection parameters for a shared registry
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// ReserveTTL bounds how long an in-flight settlement may hold a
	// nullifier before the reservation expires on its own.
	ReserveTTL time.Duration
}

// RedisRegistry is a Registry shared across gateway instances. SETNX
// gives the same first-writer-wins guarantee the local registry gets
// from its mutex.
type RedisRegistry struct {
	client     *redis.Client
	reserveTTL time.Duration
}

// NewRedisRegistry connects to Redis and returns a shared registry
func NewRedisRegistry(ctx context.Context, cfg RedisConfig) (*RedisRegistry, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	ttl := cfg.ReserveTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return &RedisRegistry{client: client, reserveTTL: ttl}, nil
}

func redisUsedKey(n ids.ID) string    { return "attrib:nullifier:used:" + n.String() }
func redisReserveKey(n ids.ID) string { return "attrib:nullifier:resv:" + n.String() }

// IsUsed reports whether the nullifier has been consumed
func (r *RedisRegistry) IsUsed(ctx context.Context, n ids.ID) (bool, error) {
	count, err := r.client.Exists(ctx, redisUsedKey(n)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return count > 0, nil
}

// MarkUsed consumes the nullifier, failing if already consumed
func (r *RedisRegistry) MarkUsed(ctx context.Context, n ids.ID) error {
	ok, err := r.client.SetNX(ctx, redisUsedKey(n), 1, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return ErrAlreadyUsed
	}
	return nil
}

// Reserve holds the nullifier for an in-flight settlement
func (r *RedisRegistry) Reserve(ctx context.Context, n ids.ID) error {
	used, err := r.IsUsed(ctx, n)
	if err != nil {
		return err
	}
	if used {
		return ErrAlreadyUsed
	}

	ok, err := r.client.SetNX(ctx, redisReserveKey(n), 1, r.reserveTTL).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return ErrReserved
	}
	return nil
}

// Commit converts a reservation into permanent consumption
func (r *RedisRegistry) Commit(ctx context.Context, n ids.ID) error {
	held, err := r.client.Exists(ctx, redisReserveKey(n)).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	if held == 0 {
		return ErrNotReserved
	}
	if err := r.MarkUsed(ctx, n); err != nil {
		return err
	}
	return r.client.Del(ctx, redisReserveKey(n)).Err()
}

// Release frees a reservation without consuming the nullifier
func (r *RedisRegistry) Release(ctx context.Context, n ids.ID) error {
	deleted, err := r.client.Del(ctx, redisReserveKey(n)).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if deleted == 0 {
		return ErrNotReserved
	}
	return nil
}

// Close closes the underlying client
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
