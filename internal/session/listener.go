// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/pkg/errutil"
)

// Listener is the sole consumer of the backend's auth change stream and
// the only component that feeds identity events into the store. It
// subscribes exactly once; repeated Start calls do not create a second
// subscription.
type Listener struct {
	client backend.Client
	store  *Store
	logger *slog.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	unsubscribe func() error
}

// NewListener creates a Listener over a backend client.
func NewListener(client backend.Client, store *Store, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Start subscribes to the backend auth stream. The backend guarantees
// the first delivered event reflects any persisted session. If the
// subscribe call itself fails, the store is resolved to the safe signed
// out default so the application never hangs in a loading state; the
// error is still returned for the caller to inspect.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	unsub, err := l.client.Subscribe(l.handle)
	if err != nil {
		l.store.ResolveSafeDefault()
		errutil.LogError(l.logger, "auth subscription failed, resolving signed out", err)
		return oops.Code("AUTH_SUBSCRIBE_FAILED").Wrap(err)
	}

	l.mu.Lock()
	if l.closed {
		// Closed while subscribing; tear the subscription down now.
		l.mu.Unlock()
		if uerr := unsub(); uerr != nil {
			errutil.LogError(l.logger, "auth unsubscribe failed", uerr)
		}
		return nil
	}
	l.unsubscribe = unsub
	l.mu.Unlock()
	return nil
}

// handle forwards one event into the store. The liveness check prevents
// a late callback from mutating state after Close.
func (l *Listener) handle(ev backend.Event) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.store.ApplyEvent(ev)
}

// Close tears down the subscription. Unsubscribe failures are logged,
// not returned. Safe to call more than once.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	unsub := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsub != nil {
		if err := unsub(); err != nil {
			errutil.LogError(l.logger, "auth unsubscribe failed", err)
		}
	}
}
