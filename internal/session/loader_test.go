// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authsync/authsync/internal/profile"
)

func TestProfileLoader_Load(t *testing.T) {
	profiles := profile.NewMemoryStore()
	userID := ulid.Make()
	require.NoError(t, profiles.Insert(context.Background(), &profile.Profile{
		UserID:   userID,
		Username: "ripley",
	}))

	loader := NewProfileLoader(profiles, testLogger(), NewMetrics(nil))

	p, ok := loader.Load(context.Background(), userID)
	require.True(t, ok)
	require.NotNil(t, p)
	assert.Equal(t, "ripley", p.Username)
}

func TestProfileLoader_MissingRowIsNotAnError(t *testing.T) {
	loader := NewProfileLoader(profile.NewMemoryStore(), testLogger(), NewMetrics(nil))

	p, ok := loader.Load(context.Background(), ulid.Make())
	assert.True(t, ok)
	assert.Nil(t, p)
}

func TestProfileLoader_FetchErrorYieldsNil(t *testing.T) {
	profiles := &stubProfiles{
		get: func(context.Context, ulid.ULID) (*profile.Profile, error) {
			return nil, assert.AnError
		},
	}
	loader := NewProfileLoader(profiles, testLogger(), NewMetrics(nil))

	p, ok := loader.Load(context.Background(), ulid.Make())
	assert.True(t, ok)
	assert.Nil(t, p)
}

func TestProfileLoader_DedupesInflightFetches(t *testing.T) {
	userID := ulid.Make()
	entered := make(chan struct{})
	release := make(chan struct{})
	var enteredOnce sync.Once
	profiles := &stubProfiles{
		get: func(context.Context, ulid.ULID) (*profile.Profile, error) {
			enteredOnce.Do(func() { close(entered) })
			<-release
			return &profile.Profile{UserID: userID, Username: "ripley"}, nil
		},
	}
	metrics := NewMetrics(nil)
	loader := NewProfileLoader(profiles, testLogger(), metrics)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p, ok := loader.Load(context.Background(), userID)
		assert.True(t, ok)
		assert.NotNil(t, p)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first fetch to start")
	}

	// A second load for the same id while the first is in flight is
	// skipped, not queued.
	p, ok := loader.Load(context.Background(), userID)
	assert.False(t, ok)
	assert.Nil(t, p)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProfileLoadsSkipped))

	close(release)
	wg.Wait()

	// The pending marker is cleared once the fetch resolves.
	p, ok = loader.Load(context.Background(), userID)
	require.True(t, ok)
	assert.Equal(t, "ripley", p.Username)
}

func TestProfileLoader_DistinctUsersNotDeduped(t *testing.T) {
	first := ulid.Make()
	second := ulid.Make()
	entered := make(chan struct{})
	release := make(chan struct{})
	profiles := &stubProfiles{
		get: func(_ context.Context, userID ulid.ULID) (*profile.Profile, error) {
			if userID.Compare(first) == 0 {
				close(entered)
				<-release
			}
			return &profile.Profile{UserID: userID}, nil
		},
	}
	loader := NewProfileLoader(profiles, testLogger(), NewMetrics(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := loader.Load(context.Background(), first)
		assert.True(t, ok)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first fetch to start")
	}

	// A different user id is a separate fetch and proceeds immediately.
	p, ok := loader.Load(context.Background(), second)
	require.True(t, ok)
	require.NotNil(t, p)
	assert.Equal(t, second, p.UserID)

	close(release)
	wg.Wait()
}
