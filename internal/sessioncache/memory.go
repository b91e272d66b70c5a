// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Memory implements Cache in process memory. Sessions do not survive a
// restart; used as the fallback when Redis is unavailable and in tests.
type Memory struct {
	mu        sync.Mutex
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns the persisted session blob.
func (m *Memory) Get(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil || (!m.expiresAt.IsZero() && time.Now().After(m.expiresAt)) {
		return nil, oops.Code("SESSION_CACHE_EMPTY").Wrap(ErrNotFound)
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// Set persists the session blob.
func (m *Memory) Set(_ context.Context, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make([]byte, len(data))
	copy(m.data, data)
	if ttl > 0 {
		m.expiresAt = time.Now().Add(ttl)
	} else {
		m.expiresAt = time.Time{}
	}
	return nil
}

// Remove deletes the persisted blob.
func (m *Memory) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	m.expiresAt = time.Time{}
	return nil
}
