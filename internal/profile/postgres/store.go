// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package postgres implements profile.Store using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authsync/authsync/internal/profile"
)

// db is the subset of pgxpool.Pool used by Store. It also matches
// pgxmock.PgxPoolIface so unit tests can run without a database.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements profile.Store using PostgreSQL.
type Store struct {
	pool db
}

// NewStore creates a Store over an existing connection pool.
func NewStore(pool db) *Store {
	return &Store{pool: pool}
}

// Connect creates a connection pool for the given DSN and returns a
// Store over it. The returned pool should be closed by the caller at
// shutdown.
func Connect(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, oops.Code("PROFILE_DB_CONNECT_FAILED").
			With("operation", "create connection pool").
			Wrap(err)
	}
	return NewStore(pool), pool, nil
}

// Get retrieves a profile by user id.
func (s *Store) Get(ctx context.Context, userID ulid.ULID) (*profile.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, username, full_name, avatar_url, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID.String())

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(profile.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").
			With("operation", "get profile by user id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return p, nil
}

// Insert stores a new profile.
func (s *Store) Insert(ctx context.Context, p *profile.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, username, full_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		p.UserID.String(),
		p.Username,
		p.FullName,
		p.AvatarURL,
		createdAt,
		updatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("PROFILE_ALREADY_EXISTS").
				With("user_id", p.UserID.String()).
				Wrap(err)
		}
		return oops.Code("PROFILE_INSERT_FAILED").
			With("operation", "insert profile").
			With("user_id", p.UserID.String()).
			Wrap(err)
	}
	return nil
}

// Update applies the set fields of update and returns the stored profile.
func (s *Store) Update(ctx context.Context, userID ulid.ULID, update profile.Update) (*profile.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE profiles SET
			username   = COALESCE($2, username),
			full_name  = COALESCE($3, full_name),
			avatar_url = COALESCE($4, avatar_url),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, username, full_name, avatar_url, created_at, updated_at
	`, userID.String(), update.Username, update.FullName, update.AvatarURL)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(profile.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_UPDATE_FAILED").
			With("operation", "update profile").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return p, nil
}

// scanProfile scans a profile row into a profile.Profile.
func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var p profile.Profile
	var idStr string
	if err := row.Scan(&idStr, &p.Username, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("PROFILE_CORRUPT_ID").
			With("user_id", idStr).
			Wrap(err)
	}
	p.UserID = id
	return &p, nil
}
