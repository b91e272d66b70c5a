// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package profile

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetInsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := ulid.Make()

	_, err := store.Get(ctx, userID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	p := &Profile{
		UserID:    userID,
		Username:  "ripley",
		FullName:  "Ellen Ripley",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Insert(ctx, p))

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ripley", got.Username)
	assert.Equal(t, "Ellen Ripley", got.FullName)
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := ulid.Make()

	require.NoError(t, store.Insert(ctx, &Profile{UserID: userID}))
	err := store.Insert(ctx, &Profile{UserID: userID})
	require.Error(t, err)
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := ulid.Make()

	require.NoError(t, store.Insert(ctx, &Profile{
		UserID:   userID,
		Username: "ripley",
		FullName: "Ellen Ripley",
	}))

	username := "ellen"
	got, err := store.Update(ctx, userID, Update{Username: &username})
	require.NoError(t, err)
	assert.Equal(t, "ellen", got.Username)
	assert.Equal(t, "Ellen Ripley", got.FullName, "unset fields are left untouched")
	assert.False(t, got.UpdatedAt.IsZero())

	// The update is visible to subsequent reads.
	again, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ellen", again.Username)
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	store := NewMemoryStore()

	username := "ellen"
	_, err := store.Update(context.Background(), ulid.Make(), Update{Username: &username})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := ulid.Make()

	require.NoError(t, store.Insert(ctx, &Profile{UserID: userID, Username: "ripley"}))

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	got.Username = "mutated"

	again, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ripley", again.Username)
}

func TestUpdate_IsEmpty(t *testing.T) {
	assert.True(t, Update{}.IsEmpty())

	username := "ripley"
	assert.False(t, Update{Username: &username}.IsEmpty())
}

func TestUpdate_Metadata(t *testing.T) {
	username := "ripley"
	avatar := "https://example.com/a.png"
	m := Update{Username: &username, AvatarURL: &avatar}.Metadata()

	assert.Equal(t, map[string]any{
		"username":   "ripley",
		"avatar_url": "https://example.com/a.png",
	}, m)
	assert.NotContains(t, m, "full_name", "unset fields are omitted")
}
