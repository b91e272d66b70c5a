// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package backend defines the contract with the external authentication
// backend: the credential operations, the session and user records it
// owns, and the push-based auth change stream.
package backend

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of auth change event.
type EventType string

const (
	// EventInitial is the first event on every subscription and reflects
	// the persisted session, or its absence.
	EventInitial        EventType = "initial"
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

// User is the immutable identity record attached to a session.
type User struct {
	ID       ulid.ULID
	Email    string
	Metadata map[string]any
}

// Session is the opaque token bundle issued by the backend.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// IsExpired returns true if the session's access token has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Event is a discrete, backend-pushed notification of an auth state
// change. A nil Session means there is no authenticated session.
type Event struct {
	Type    EventType
	Session *Session
}

// Credentials is the result of a credential-creating operation.
type Credentials struct {
	User    *User
	Session *Session
}

// UserUpdate carries identity changes; nil fields are left untouched.
// Metadata entries are merged into the existing user metadata.
type UserUpdate struct {
	Email    *string
	Password *string
	Metadata map[string]any
}

// Client is the auth backend surface consumed by the synchronizer.
//
// Subscribe registers the single event consumer and returns an
// unsubscribe function. The first delivered event reflects any persisted
// session (or its absence); implementations deliver it before Subscribe
// returns or immediately after.
type Client interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Credentials, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Credentials, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdateUser(ctx context.Context, update UserUpdate) (*User, error)

	// GetSession returns the current session without contacting the
	// network, or (nil, nil) when none exists.
	GetSession(ctx context.Context) (*Session, error)

	// RefreshSession exchanges the stored refresh token for a new
	// session. A missing refresh token yields an error carrying the
	// CodeRefreshTokenNotFound code.
	RefreshSession(ctx context.Context) (*Session, error)

	Subscribe(fn func(Event)) (func() error, error)
}

// CodeRefreshTokenNotFound classifies refresh failures caused by a
// missing or already-rotated refresh token. The dispatcher treats it as
// a signal to sign out rather than as a transient failure.
const CodeRefreshTokenNotFound = "AUTH_REFRESH_TOKEN_NOT_FOUND"
