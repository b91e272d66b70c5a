// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package local is an in-process implementation of the backend contract
// for development and tests. Accounts live in memory; the current
// session is persisted through the session cache so a subscription's
// first event reflects persisted state. It is not a hardened auth
// server.
package local

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/internal/sessioncache"
	"github.com/authsync/authsync/pkg/errutil"
)

const (
	defaultSessionTTL = time.Hour

	// persistTTL bounds how long a persisted session blob survives; it
	// covers the refresh window, not just the access token lifetime.
	persistTTL = 7 * 24 * time.Hour
)

// account is a registered identity.
type account struct {
	id           ulid.ULID
	email        string
	passwordHash string
	metadata     map[string]any
}

// persistedSession is the JSON blob stored in the session cache.
type persistedSession struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	UserID       ulid.ULID      `json:"user_id"`
	Email        string         `json:"email"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Client implements backend.Client in process.
type Client struct {
	signingKey []byte
	sessionTTL time.Duration
	cache      sessioncache.Cache
	logger     *slog.Logger
	trigger    func(*backend.User)

	// orderMu serializes each credential operation's state change,
	// persistence, and event emission as one critical section, so the
	// subscriber observes events in the order the mutations happened.
	// Acquired before mu, never while holding mu or subMu.
	orderMu sync.Mutex

	mu       sync.Mutex
	accounts map[string]*account  // keyed by lowercase email
	byID     map[ulid.ULID]*account
	refresh  map[string]ulid.ULID // refresh token hash -> user id
	current  *backend.Session

	subMu      sync.Mutex
	subscriber func(backend.Event)
}

// Option configures a Client.
type Option func(*Client)

// WithSigningKey sets the JWT signing key. A random key is generated
// when unset.
func WithSigningKey(key []byte) Option {
	return func(c *Client) { c.signingKey = key }
}

// WithSessionTTL sets the access token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Client) { c.sessionTTL = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTrigger installs a hook invoked in a goroutine after each signup,
// standing in for the server-side profile-creation trigger.
func WithTrigger(fn func(*backend.User)) Option {
	return func(c *Client) { c.trigger = fn }
}

// NewClient creates a local backend persisting its session through cache.
func NewClient(cache sessioncache.Cache, opts ...Option) *Client {
	c := &Client{
		sessionTTL: defaultSessionTTL,
		cache:      cache,
		logger:     slog.Default(),
		accounts:   make(map[string]*account),
		byID:       make(map[ulid.ULID]*account),
		refresh:    make(map[string]ulid.ULID),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.signingKey == nil {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// crypto/rand failing means the process has no entropy
			// source; nothing sensible to do but give up early.
			panic(err)
		}
		c.signingKey = key
	}
	return c
}

// user builds the immutable identity record for an account.
func (a *account) user() *backend.User {
	metadata := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	return &backend.User{
		ID:       a.id,
		Email:    a.email,
		Metadata: metadata,
	}
}

// mint creates a session for the account, registers its refresh token,
// and makes it the current session. Caller holds c.mu.
func (c *Client) mint(a *account) (*backend.Session, error) {
	expiresAt := time.Now().Add(c.sessionTTL)
	access, err := mintAccessToken(c.signingKey, a.id, a.email, expiresAt)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	c.refresh[refreshHash] = a.id

	sess := &backend.Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         a.user(),
	}
	c.current = sess
	return sess, nil
}

// persist writes the current session to the cache, best effort.
func (c *Client) persist(ctx context.Context, sess *backend.Session) {
	blob := persistedSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		UserID:       sess.User.ID,
		Email:        sess.User.Email,
		Metadata:     sess.User.Metadata,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		errutil.LogError(c.logger, "session persist marshal failed", err)
		return
	}
	if err := c.cache.Set(ctx, data, persistTTL); err != nil {
		errutil.LogError(c.logger, "session persist failed", err)
	}
}

// emit delivers an event to the subscriber, if any. Callers hold
// c.orderMu. Must not be called with c.mu held: the consumer applies
// the event synchronously.
func (c *Client) emit(ev backend.Event) {
	c.subMu.Lock()
	fn := c.subscriber
	c.subMu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// SignUp registers an account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.Credentials, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Errorf("invalid email address")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	key := strings.ToLower(email)
	if _, exists := c.accounts[key]; exists {
		c.mu.Unlock()
		return nil, oops.Code("AUTH_EMAIL_TAKEN").
			With("email", email).
			Errorf("email already registered")
	}
	a := &account{
		id:           ulid.Make(),
		email:        email,
		passwordHash: hash,
		metadata:     metadata,
	}
	c.accounts[key] = a
	c.byID[a.id] = a

	sess, err := c.mint(a)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.persist(ctx, sess)

	if c.trigger != nil {
		go c.trigger(sess.User)
	}

	c.emit(backend.Event{Type: backend.EventSignedIn, Session: sess})
	return &backend.Credentials{User: sess.User, Session: sess}, nil
}

// SignInWithPassword authenticates an account. Unknown emails still run
// a hash comparison so the response time does not leak existence.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Credentials, error) {
	c.mu.Lock()
	a, exists := c.accounts[strings.ToLower(strings.TrimSpace(email))]
	c.mu.Unlock()

	targetHash := dummyHash
	if exists {
		targetHash = a.passwordHash
	}
	if !verifyPassword(password, targetHash) || !exists {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Errorf("invalid email or password")
	}

	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	sess, err := c.mint(a)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.persist(ctx, sess)
	c.emit(backend.Event{Type: backend.EventSignedIn, Session: sess})
	return &backend.Credentials{User: sess.User, Session: sess}, nil
}

// SignOut clears the current session. Idempotent.
func (c *Client) SignOut(ctx context.Context) error {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	if c.current != nil {
		delete(c.refresh, hashRefreshToken(c.current.RefreshToken))
		c.current = nil
	}
	c.mu.Unlock()

	if err := c.cache.Remove(ctx); err != nil {
		errutil.LogError(c.logger, "session cache remove failed", err)
	}

	c.emit(backend.Event{Type: backend.EventSignedOut, Session: nil})
	return nil
}

// ResetPasswordForEmail requests a password reset. Unknown emails return
// success to prevent enumeration; the reset token is only logged since
// the local backend sends no email.
func (c *Client) ResetPasswordForEmail(_ context.Context, email string) error {
	c.mu.Lock()
	_, exists := c.accounts[strings.ToLower(strings.TrimSpace(email))]
	c.mu.Unlock()
	if !exists {
		return nil
	}

	token, _, err := generateRefreshToken()
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").Wrap(err)
	}
	c.logger.Debug("password reset requested", "email", email, "token", token)
	return nil
}

// UpdateUser applies identity changes to the signed-in account and
// emits a user-updated event carrying the refreshed session.
func (c *Client) UpdateUser(ctx context.Context, update backend.UserUpdate) (*backend.User, error) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil, oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("no session")
	}
	a := c.byID[c.current.User.ID]
	if a == nil {
		c.mu.Unlock()
		return nil, oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("account gone")
	}

	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		key := strings.ToLower(email)
		if other, exists := c.accounts[key]; exists && other != a {
			c.mu.Unlock()
			return nil, oops.Code("AUTH_EMAIL_TAKEN").
				With("email", email).
				Errorf("email already registered")
		}
		delete(c.accounts, strings.ToLower(a.email))
		a.email = email
		c.accounts[key] = a
	}
	if update.Password != nil {
		hash, err := hashPassword(*update.Password)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		a.passwordHash = hash
	}
	if len(update.Metadata) > 0 {
		if a.metadata == nil {
			a.metadata = make(map[string]any)
		}
		for k, v := range update.Metadata {
			a.metadata[k] = v
		}
	}

	// Reissue the session so its user record reflects the update.
	sess, err := c.mint(a)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.persist(ctx, sess)
	c.emit(backend.Event{Type: backend.EventUserUpdated, Session: sess})
	return sess.User, nil
}

// GetSession returns the current session, or (nil, nil) when signed out.
func (c *Client) GetSession(_ context.Context) (*backend.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

// RefreshSession rotates the refresh token and reissues the session. A
// missing or already-rotated refresh token yields the refresh-token-not-
// found code.
func (c *Client) RefreshSession(ctx context.Context) (*backend.Session, error) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil, oops.Code(backend.CodeRefreshTokenNotFound).
			Errorf("no session to refresh")
	}
	oldHash := hashRefreshToken(c.current.RefreshToken)
	userID, ok := c.refresh[oldHash]
	if !ok {
		c.mu.Unlock()
		return nil, oops.Code(backend.CodeRefreshTokenNotFound).
			Errorf("refresh token not found")
	}
	a := c.byID[userID]
	if a == nil {
		c.mu.Unlock()
		return nil, oops.Code(backend.CodeRefreshTokenNotFound).
			Errorf("refresh token owner gone")
	}
	delete(c.refresh, oldHash)

	sess, err := c.mint(a)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.persist(ctx, sess)
	c.emit(backend.Event{Type: backend.EventTokenRefreshed, Session: sess})
	return sess, nil
}

// Subscribe registers the single event consumer and synchronously
// delivers the initial event reflecting any persisted session.
func (c *Client) Subscribe(fn func(backend.Event)) (func() error, error) {
	c.subMu.Lock()
	if c.subscriber != nil {
		c.subMu.Unlock()
		return nil, oops.Code("AUTH_ALREADY_SUBSCRIBED").
			Errorf("auth stream already has a subscriber")
	}
	c.subscriber = fn
	c.subMu.Unlock()

	c.orderMu.Lock()
	sess := c.restore(context.Background())
	fn(backend.Event{Type: backend.EventInitial, Session: sess})
	c.orderMu.Unlock()

	unsubscribe := func() error {
		c.subMu.Lock()
		c.subscriber = nil
		c.subMu.Unlock()
		return nil
	}
	return unsubscribe, nil
}

// restore rebuilds the current session from the cache. An expired
// persisted session is removed; restore never fails the subscription.
func (c *Client) restore(ctx context.Context) *backend.Session {
	c.mu.Lock()
	if c.current != nil {
		sess := c.current
		c.mu.Unlock()
		return sess
	}
	c.mu.Unlock()

	data, err := c.cache.Get(ctx)
	if err != nil {
		if !errutil.HasCode(err, "SESSION_CACHE_EMPTY") {
			errutil.LogError(c.logger, "session restore failed", err)
		}
		return nil
	}

	var blob persistedSession
	if err := json.Unmarshal(data, &blob); err != nil {
		errutil.LogError(c.logger, "session restore corrupt, discarding", err)
		_ = c.cache.Remove(ctx) //nolint:errcheck // best effort cleanup
		return nil
	}
	if time.Now().After(blob.ExpiresAt) {
		_ = c.cache.Remove(ctx) //nolint:errcheck // best effort cleanup
		return nil
	}

	sess := &backend.Session{
		AccessToken:  blob.AccessToken,
		RefreshToken: blob.RefreshToken,
		ExpiresAt:    blob.ExpiresAt,
		User: &backend.User{
			ID:       blob.UserID,
			Email:    blob.Email,
			Metadata: blob.Metadata,
		},
	}

	c.mu.Lock()
	c.current = sess
	c.refresh[hashRefreshToken(sess.RefreshToken)] = sess.User.ID
	c.mu.Unlock()
	return sess
}
