// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package profile

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemoryStore implements Store in memory. Used in tests and when the
// daemon runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[ulid.ULID]*Profile
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[ulid.ULID]*Profile),
	}
}

// copyProfile returns a defensive copy so callers cannot mutate stored rows.
func copyProfile(p *Profile) *Profile {
	cp := *p
	return &cp
}

// Get retrieves a profile by user id.
func (s *MemoryStore) Get(_ context.Context, userID ulid.ULID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, oops.Code("PROFILE_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(ErrNotFound)
	}
	return copyProfile(p), nil
}

// Insert stores a new profile.
func (s *MemoryStore) Insert(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.UserID]; exists {
		return oops.Code("PROFILE_ALREADY_EXISTS").
			With("user_id", p.UserID.String()).
			Errorf("profile already exists")
	}
	s.profiles[p.UserID] = copyProfile(p)
	return nil
}

// Update applies the set fields of update and returns the stored profile.
func (s *MemoryStore) Update(_ context.Context, userID ulid.ULID, update Update) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, oops.Code("PROFILE_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(ErrNotFound)
	}

	if update.Username != nil {
		p.Username = *update.Username
	}
	if update.FullName != nil {
		p.FullName = *update.FullName
	}
	if update.AvatarURL != nil {
		p.AvatarURL = *update.AvatarURL
	}
	p.UpdatedAt = time.Now()

	return copyProfile(p), nil
}
