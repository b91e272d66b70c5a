// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package session reconciles the backend's push-based auth event stream
// with locally issued credential actions. A single apply goroutine owns
// the auth state; the event stream is the sole authority for identity
// fields, profile data is loaded in the background and freshness-checked,
// and in-flight profile fetches are deduplicated per user id.
package session

import (
	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/internal/profile"
)

// State is a snapshot of the authentication state. Snapshots are
// immutable: the store publishes a fresh copy after every mutation and
// callers must not modify the fields.
type State struct {
	// Authenticated is true while a session is established.
	Authenticated bool

	// Loading is true only before the first event has been applied.
	// Once false it never becomes true again for the store's lifetime.
	Loading bool

	// User and Session are written only from the event stream, or by an
	// explicit session refresh.
	User    *backend.User
	Session *backend.Session

	// Profile is loaded in the background after identity changes and is
	// nil until the load for the current identity resolves.
	Profile *profile.Profile

	// Err is the error of the most recent failed action, nil otherwise.
	Err error
}

// clone returns a copy for the apply goroutine to mutate before
// publishing.
func (s *State) clone() *State {
	cp := *s
	return &cp
}
