// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package sessioncache stores the locally persisted session blob so a
// restarted process can resume an authenticated session. The cache is a
// shared resource and must tolerate unavailability: Open falls back to
// an in-memory cache rather than failing startup.
package sessioncache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session blob is persisted.
var ErrNotFound = errors.New("not found")

// Cache is the persisted-session key/value contract.
type Cache interface {
	// Get returns the persisted session blob, or an error wrapping
	// ErrNotFound when none exists.
	Get(ctx context.Context) ([]byte, error)

	// Set persists the session blob. A non-zero ttl expires the entry.
	Set(ctx context.Context, data []byte, ttl time.Duration) error

	// Remove deletes the persisted blob. Removing an absent blob is not
	// an error.
	Remove(ctx context.Context) error
}

// openTimeout bounds the initial Redis reachability check.
const openTimeout = 2 * time.Second

// Open returns a Redis-backed cache for the given address and key, or an
// in-memory cache when addr is empty or Redis is unreachable. Startup
// never fails on cache unavailability.
func Open(ctx context.Context, addr, key string, logger *slog.Logger) Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		return NewMemory()
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("session cache unreachable, falling back to memory",
			"addr", addr,
			"error", err,
		)
		_ = client.Close() //nolint:errcheck // best effort, falling back anyway
		return NewMemory()
	}

	return NewRedis(client, key)
}
