// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package sessioncache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Redis implements Cache using a single Redis key.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a cache storing the session blob under key.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Get returns the persisted session blob.
func (r *Redis) Get(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_CACHE_EMPTY").
			With("key", r.key).
			Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_CACHE_GET_FAILED").
			With("key", r.key).
			Wrap(err)
	}
	return data, nil
}

// Set persists the session blob.
func (r *Redis) Set(ctx context.Context, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return oops.Code("SESSION_CACHE_SET_FAILED").
			With("key", r.key).
			Wrap(err)
	}
	return nil
}

// Remove deletes the persisted blob.
func (r *Redis) Remove(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return oops.Code("SESSION_CACHE_REMOVE_FAILED").
			With("key", r.key).
			Wrap(err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return oops.Code("SESSION_CACHE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
