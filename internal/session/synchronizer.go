// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/internal/profile"
)

// Synchronizer bundles the store, listener, and dispatcher over one
// backend client. Multiple independent synchronizers can exist, each
// with its own backend handle; there is no process-global state.
type Synchronizer struct {
	Store      *Store
	Listener   *Listener
	Dispatcher *Dispatcher
}

// Option configures a Synchronizer.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	registry      prometheus.Registerer
	signupRetries uint64
	signupBackoff time.Duration
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry registers the synchronizer's metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithSignupRetry overrides the bounded retry used to verify the
// trigger-created profile row after signup.
func WithSignupRetry(maxRetries uint64, backoff time.Duration) Option {
	return func(o *options) {
		o.signupRetries = maxRetries
		o.signupBackoff = backoff
	}
}

// New wires a Synchronizer over a backend client and profile store.
// Call Start to subscribe to the auth stream, Close to tear down.
func New(client backend.Client, profiles profile.Store, opts ...Option) *Synchronizer {
	o := &options{
		logger:        slog.Default(),
		signupRetries: defaultSignupRetries,
		signupBackoff: defaultSignupRetryJitter,
	}
	for _, opt := range opts {
		opt(o)
	}

	metrics := NewMetrics(o.registry)
	loader := NewProfileLoader(profiles, o.logger, metrics)
	store := NewStore(loader, o.logger, metrics)
	listener := NewListener(client, store, o.logger)
	dispatcher := NewDispatcher(client, profiles, store, loader, o.logger, metrics)
	dispatcher.signupRetries = o.signupRetries
	dispatcher.signupBackoff = o.signupBackoff

	return &Synchronizer{
		Store:      store,
		Listener:   listener,
		Dispatcher: dispatcher,
	}
}

// Start subscribes to the backend's auth stream.
func (s *Synchronizer) Start() error {
	return s.Listener.Start()
}

// Close tears down the subscription and stops the store.
func (s *Synchronizer) Close() {
	s.Listener.Close()
	s.Store.Close()
}
