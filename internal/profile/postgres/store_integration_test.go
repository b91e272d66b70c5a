// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authsync/authsync/internal/profile"
	"github.com/authsync/authsync/pkg/errutil"
)

// setupDB starts a PostgreSQL container, applies the migrations, and
// returns a connected Store.
func setupDB(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:18-alpine",
		tcpostgres.WithDatabase("authsync_test"),
		tcpostgres.WithUsername("authsync"),
		tcpostgres.WithPassword("authsync"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := NewMigrator(connStr)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	store, pool, err := Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return store
}

func TestStoreIntegration_RoundTrip(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	userID := ulid.Make()

	_, err := store.Get(ctx, userID)
	require.Error(t, err)
	assert.ErrorIs(t, err, profile.ErrNotFound)

	require.NoError(t, store.Insert(ctx, &profile.Profile{
		UserID:   userID,
		Username: "ripley",
		FullName: "Ellen Ripley",
	}))

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "ripley", got.Username)
	assert.False(t, got.CreatedAt.IsZero())

	username := "ellen"
	updated, err := store.Update(ctx, userID, profile.Update{Username: &username})
	require.NoError(t, err)
	assert.Equal(t, "ellen", updated.Username)
	assert.Equal(t, "Ellen Ripley", updated.FullName, "unset fields survive")
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))
}

func TestStoreIntegration_DuplicateUserID(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	userID := ulid.Make()

	require.NoError(t, store.Insert(ctx, &profile.Profile{UserID: userID, Username: "ripley"}))

	err := store.Insert(ctx, &profile.Profile{UserID: userID, Username: "other"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PROFILE_ALREADY_EXISTS")
}

func TestStoreIntegration_UsernameUniqueCaseInsensitive(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &profile.Profile{UserID: ulid.Make(), Username: "Ripley"}))

	err := store.Insert(ctx, &profile.Profile{UserID: ulid.Make(), Username: "ripley"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PROFILE_ALREADY_EXISTS")
}
