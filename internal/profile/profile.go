// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package profile provides the user profile record and its persistence
// contract. A profile is mutable, user-owned metadata keyed by user id,
// distinct from the immutable identity record the backend attaches to a
// session. A profile may legitimately not exist yet: after signup there
// is an eventual-consistency window before the server-side creation
// trigger has run.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a requested profile does not exist.
var ErrNotFound = errors.New("not found")

// Profile is a user-owned metadata record.
type Profile struct {
	UserID    ulid.ULID
	Username  string
	FullName  string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update carries profile field changes; nil fields are left untouched.
type Update struct {
	Username  *string
	FullName  *string
	AvatarURL *string
}

// IsEmpty returns true if the update carries no changes.
func (u Update) IsEmpty() bool {
	return u.Username == nil && u.FullName == nil && u.AvatarURL == nil
}

// Metadata returns the update's set fields as a metadata map, for
// mirroring profile changes into the backend's user metadata.
func (u Update) Metadata() map[string]any {
	m := make(map[string]any)
	if u.Username != nil {
		m["username"] = *u.Username
	}
	if u.FullName != nil {
		m["full_name"] = *u.FullName
	}
	if u.AvatarURL != nil {
		m["avatar_url"] = *u.AvatarURL
	}
	return m
}

// Seed is the profile data supplied at signup, used for the fallback
// manual insert when the server-side creation trigger has not produced a
// row.
type Seed struct {
	Username  string
	FullName  string
	AvatarURL string
}

// Store provides profile persistence.
type Store interface {
	// Get retrieves a profile by user id. Returns an error wrapping
	// ErrNotFound when no row exists.
	Get(ctx context.Context, userID ulid.ULID) (*Profile, error)

	// Insert stores a new profile.
	Insert(ctx context.Context, p *Profile) error

	// Update applies the set fields of update and returns the stored
	// profile. Returns an error wrapping ErrNotFound when no row exists.
	Update(ctx context.Context, userID ulid.ULID, update Update) (*Profile, error)
}
