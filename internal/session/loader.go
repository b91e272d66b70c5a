// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/authsync/authsync/internal/profile"
	"github.com/authsync/authsync/pkg/errutil"
)

// ProfileLoader fetches profile records, deduplicating concurrent
// fetches per user id: at most one fetch is in flight for a given id.
type ProfileLoader struct {
	profiles profile.Store
	logger   *slog.Logger
	metrics  *Metrics

	mu      sync.Mutex
	pending map[ulid.ULID]struct{}
}

// NewProfileLoader creates a ProfileLoader over a profile store.
func NewProfileLoader(profiles profile.Store, logger *slog.Logger, metrics *Metrics) *ProfileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileLoader{
		profiles: profiles,
		logger:   logger,
		metrics:  metrics,
		pending:  make(map[ulid.ULID]struct{}),
	}
}

// Load fetches the profile for userID. The second return value is false
// when a fetch for the same id was already in flight and this call was
// skipped; callers must not interpret a skip as "confirmed no profile".
// A missing row is expected during the signup window before the
// server-side creation trigger has run and yields (nil, true) without an
// error; any other fetch error is logged and also yields (nil, true).
// The pending marker is always removed, regardless of outcome.
func (l *ProfileLoader) Load(ctx context.Context, userID ulid.ULID) (*profile.Profile, bool) {
	l.mu.Lock()
	if _, inflight := l.pending[userID]; inflight {
		l.mu.Unlock()
		l.metrics.ProfileLoadsSkipped.Inc()
		return nil, false
	}
	l.pending[userID] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.pending, userID)
		l.mu.Unlock()
	}()

	p, err := l.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, true
		}
		errutil.LogError(l.logger, "profile load failed", err)
		return nil, true
	}
	return p, true
}
