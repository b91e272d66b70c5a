// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/internal/profile"
	"github.com/authsync/authsync/pkg/errutil"
)

// Signup profile verification defaults. The server-side creation trigger
// may lag account creation, so existence is checked with a bounded
// retry before falling back to a manual insert.
const (
	defaultSignupRetries     = 4
	defaultSignupRetryJitter = 50 * time.Millisecond
)

// Dispatcher performs credential operations against the auth backend.
// Every action clears the store error first; on failure it records the
// error and returns it so callers can react immediately. On success it
// never writes the identity fields itself: the backend's event stream is
// the sole authority for those, which is what prevents a local action's
// "it succeeded" from racing the backend's asynchronous "it changed".
// RefreshSession is the one exception, as an explicit re-sync.
type Dispatcher struct {
	client   backend.Client
	profiles profile.Store
	store    *Store
	loader   *ProfileLoader
	logger   *slog.Logger
	metrics  *Metrics

	signupRetries uint64
	signupBackoff time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(client backend.Client, profiles profile.Store, store *Store, loader *ProfileLoader, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:        client,
		profiles:      profiles,
		store:         store,
		loader:        loader,
		logger:        logger,
		metrics:       metrics,
		signupRetries: defaultSignupRetries,
		signupBackoff: defaultSignupRetryJitter,
	}
}

// fail records an action failure in the store and metrics.
func (d *Dispatcher) fail(action string, err error) {
	d.store.SetErr(err)
	d.metrics.ActionFailures.WithLabelValues(action).Inc()
	errutil.LogError(d.logger, action+" failed", err)
}

// SignIn authenticates with an email and password. The resulting
// identity change arrives through the event stream.
func (d *Dispatcher) SignIn(ctx context.Context, email, password string) error {
	d.store.ClearErr()
	if _, err := d.client.SignInWithPassword(ctx, email, password); err != nil {
		d.fail("sign in", err)
		return err
	}
	return nil
}

// SignUp creates an account and verifies that a profile row exists,
// covering the eventual-consistency window between account creation and
// the server-side profile-creation trigger. When the row is still absent
// after a bounded retry, a fallback manual insert is performed from
// seed. If the fallback also fails, a hard error is surfaced: the user
// then exists in a known-inconsistent state.
func (d *Dispatcher) SignUp(ctx context.Context, email, password string, seed *profile.Seed) error {
	d.store.ClearErr()

	metadata := map[string]any{}
	if seed != nil {
		if seed.Username != "" {
			metadata["username"] = seed.Username
		}
		if seed.FullName != "" {
			metadata["full_name"] = seed.FullName
		}
		if seed.AvatarURL != "" {
			metadata["avatar_url"] = seed.AvatarURL
		}
	}

	creds, err := d.client.SignUp(ctx, email, password, metadata)
	if err != nil {
		d.fail("sign up", err)
		return err
	}
	if creds == nil || creds.User == nil {
		err := oops.Code("AUTH_SIGNUP_NO_USER").Errorf("backend returned no user for signup")
		d.fail("sign up", err)
		return err
	}

	if err := d.ensureProfile(ctx, creds.User, seed); err != nil {
		d.fail("sign up", err)
		return err
	}
	return nil
}

// ensureProfile waits for the trigger-created profile row and inserts
// one manually when it never appears.
func (d *Dispatcher) ensureProfile(ctx context.Context, user *backend.User, seed *profile.Seed) error {
	backoff := retry.WithMaxRetries(d.signupRetries, retry.NewFibonacci(d.signupBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, getErr := d.profiles.Get(ctx, user.ID)
		if errors.Is(getErr, profile.ErrNotFound) {
			return retry.RetryableError(getErr)
		}
		return getErr
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return oops.Code("AUTH_PROFILE_VERIFY_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	d.logger.Info("profile trigger did not run, inserting manually",
		"user_id", user.ID.String(),
	)

	now := time.Now()
	p := &profile.Profile{
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if seed != nil {
		p.Username = seed.Username
		p.FullName = seed.FullName
		p.AvatarURL = seed.AvatarURL
	}
	if insErr := d.profiles.Insert(ctx, p); insErr != nil {
		// The trigger may have won the race after the last check.
		if _, getErr := d.profiles.Get(ctx, user.ID); getErr == nil {
			return nil
		}
		return oops.Code("AUTH_PROFILE_CONSISTENCY").
			With("user_id", user.ID.String()).
			With("operation", "fallback profile insert").
			Wrap(insErr)
	}
	return nil
}

// SignOut issues the backend sign out. The resulting state change is
// observed through the event stream.
func (d *Dispatcher) SignOut(ctx context.Context) error {
	d.store.ClearErr()
	if err := d.client.SignOut(ctx); err != nil {
		d.fail("sign out", err)
		return err
	}
	return nil
}

// ResetPassword requests a password reset email for the address.
func (d *Dispatcher) ResetPassword(ctx context.Context, email string) error {
	d.store.ClearErr()
	if err := d.client.ResetPasswordForEmail(ctx, email); err != nil {
		d.fail("reset password", err)
		return err
	}
	return nil
}

// UpdateProfile writes the update to the profile store, mirrors it into
// the backend's user metadata, then patches the store's profile
// directly. The profile is not an identity-race-sensitive field, so the
// direct patch is safe; the freshness check in PatchProfile still guards
// against an identity change in between.
func (d *Dispatcher) UpdateProfile(ctx context.Context, update profile.Update) error {
	d.store.ClearErr()

	st := d.store.Snapshot()
	if st.User == nil {
		err := oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("no authenticated user")
		d.fail("update profile", err)
		return err
	}
	userID := st.User.ID

	p, err := d.profiles.Update(ctx, userID, update)
	if err != nil {
		d.fail("update profile", err)
		return err
	}

	if _, err := d.client.UpdateUser(ctx, backend.UserUpdate{Metadata: update.Metadata()}); err != nil {
		d.fail("update profile", err)
		return err
	}

	d.store.PatchProfile(userID, p)
	return nil
}

// RefreshSession explicitly re-syncs the session from the backend. A
// manual refresh has no guaranteed corresponding listener event, so this
// is the one action that writes identity fields directly. A failure
// classified as "refresh token not found" triggers a sign out as the
// recovery path.
func (d *Dispatcher) RefreshSession(ctx context.Context) error {
	d.store.ClearErr()

	sess, err := d.client.RefreshSession(ctx)
	if err != nil {
		if errutil.HasCode(err, backend.CodeRefreshTokenNotFound) {
			d.logger.Warn("refresh token not found, signing out")
			return d.SignOut(ctx)
		}
		d.fail("refresh session", err)
		return err
	}

	var p *profile.Profile
	setProfile := false
	if sess != nil && sess.User != nil {
		if loaded, ok := d.loader.Load(ctx, sess.User.ID); ok {
			p = loaded
			setProfile = true
		}
	}
	d.store.ApplyRefresh(sess, p, setProfile)
	return nil
}
