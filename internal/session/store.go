// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/internal/profile"
)

// watchBuffer is the per-watcher channel capacity.
const watchBuffer = 16

// storeOp is a state mutation queued for the apply goroutine.
type storeOp struct {
	apply func(*State)
	done  chan struct{}
}

// Store owns the authentication state. All mutations are funneled
// through a single apply goroutine so events, action errors, and profile
// patches are applied in a serial order; snapshots are published through
// an atomic pointer and are never written concurrently. Mutating calls
// block until the mutation has been applied, so a caller always observes
// its own write in the next Snapshot.
type Store struct {
	state atomic.Pointer[State]
	ops   chan storeOp
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closed       atomic.Bool
	closeOnce    sync.Once
	bootstrapped atomic.Bool

	loader  *ProfileLoader
	logger  *slog.Logger
	metrics *Metrics

	watchMu  sync.Mutex
	watchers []chan *State

	wg sync.WaitGroup
}

// NewStore creates a Store and starts its apply goroutine. The initial
// state is loading and unauthenticated.
func NewStore(loader *ProfileLoader, logger *slog.Logger, metrics *Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		ops:     make(chan storeOp),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		loader:  loader,
		logger:  logger,
		metrics: metrics,
	}
	s.state.Store(&State{Loading: true})

	s.wg.Add(1)
	go s.run()

	return s
}

// run is the apply goroutine: the single writer of the state snapshot.
func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.ops:
			next := s.state.Load().clone()
			op.apply(next)
			s.state.Store(next)
			close(op.done)
			s.notify(next)
		case <-s.done:
			return
		}
	}
}

// do queues a mutation and waits for it to be applied. After Close it is
// a no-op.
func (s *Store) do(apply func(*State)) {
	if s.closed.Load() {
		return
	}
	op := storeOp{apply: apply, done: make(chan struct{})}
	select {
	case s.ops <- op:
	case <-s.done:
		return
	}
	select {
	case <-op.done:
	case <-s.done:
	}
}

// Snapshot returns the current state. The returned value is immutable.
func (s *Store) Snapshot() *State {
	return s.state.Load()
}

// Bootstrapped reports whether the first event has been applied, or the
// store was resolved to the safe default. Used as a readiness signal.
func (s *Store) Bootstrapped() bool {
	return s.bootstrapped.Load()
}

// ApplyEvent applies a backend auth event: resolves loading, replaces
// the identity fields from the event payload, resets the profile, and
// starts a background profile load for the new identity. The profile
// load never blocks the state transition.
func (s *Store) ApplyEvent(ev backend.Event) {
	var loadID ulid.ULID
	var load bool
	s.do(func(st *State) {
		st.Loading = false
		st.Session = ev.Session
		if ev.Session != nil {
			st.User = ev.Session.User
		} else {
			st.User = nil
		}
		st.Authenticated = ev.Session != nil
		st.Profile = nil
		if st.User != nil {
			loadID = st.User.ID
			load = true
		}
	})
	s.bootstrapped.Store(true)
	s.metrics.EventsApplied.WithLabelValues(string(ev.Type)).Inc()

	if load {
		s.wg.Add(1)
		go s.backgroundLoad(loadID)
	}
}

// backgroundLoad fetches the profile for a user and patches it in,
// unless the store was closed or a fetch was already in flight.
func (s *Store) backgroundLoad(userID ulid.ULID) {
	defer s.wg.Done()
	if s.closed.Load() {
		return
	}
	p, ok := s.loader.Load(s.ctx, userID)
	if !ok {
		return
	}
	s.PatchProfile(userID, p)
}

// PatchProfile sets the profile if userID still matches the live
// identity; results for a superseded identity are discarded, never
// merged.
func (s *Store) PatchProfile(userID ulid.ULID, p *profile.Profile) {
	s.do(func(st *State) {
		if st.User == nil || st.User.ID.Compare(userID) != 0 {
			s.metrics.ProfileResultsStale.Inc()
			s.logger.Debug("discarding stale profile result",
				"user_id", userID.String(),
			)
			return
		}
		st.Profile = p
	})
}

// SetErr records a failed action's error.
func (s *Store) SetErr(err error) {
	s.do(func(st *State) {
		st.Err = err
	})
}

// ClearErr clears the last action error.
func (s *Store) ClearErr() {
	s.do(func(st *State) {
		st.Err = nil
	})
}

// ResolveSafeDefault settles the state when the subscription could not
// be established: signed out, not loading, no error. The application
// must never be left in a perpetual loading state because auth could not
// be initialized.
func (s *Store) ResolveSafeDefault() {
	s.do(func(st *State) {
		st.Loading = false
		st.Authenticated = false
		st.User = nil
		st.Session = nil
		st.Profile = nil
		st.Err = nil
	})
	s.bootstrapped.Store(true)
}

// ApplyRefresh replaces the identity fields after an explicit session
// refresh. A manual refresh has no guaranteed corresponding listener
// event, so this is the one path besides ApplyEvent that writes them.
// The profile is replaced only when setProfile is true; a nil session or
// a change of user always clears it, so a previous identity's profile is
// never held against the refreshed one.
func (s *Store) ApplyRefresh(sess *backend.Session, p *profile.Profile, setProfile bool) {
	s.do(func(st *State) {
		st.Loading = false
		prev := st.User
		st.Session = sess
		if sess != nil {
			st.User = sess.User
		} else {
			st.User = nil
		}
		st.Authenticated = sess != nil
		switch {
		case sess == nil:
			st.Profile = nil
		case setProfile:
			st.Profile = p
		case prev == nil || prev.ID.Compare(sess.User.ID) != 0:
			st.Profile = nil
		}
	})
	s.bootstrapped.Store(true)
}

// Watch returns a channel receiving every published state snapshot. If
// the watcher falls behind its buffer, updates are dropped with a warn
// log; the next received snapshot is always the most recent.
func (s *Store) Watch() chan *State {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	ch := make(chan *State, watchBuffer)
	s.watchers = append(s.watchers, ch)
	return ch
}

// Unwatch removes and closes a watcher channel.
func (s *Store) Unwatch(ch chan *State) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for i, sub := range s.watchers {
		if sub == ch {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			close(ch)
			return
		}
	}
}

// notify fans a published snapshot out to watchers.
func (s *Store) notify(st *State) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, ch := range s.watchers {
		select {
		case ch <- st:
		default:
			s.logger.Warn("state update dropped: watcher buffer full")
		}
	}
}

// Close stops the apply goroutine, waits for in-flight profile loads to
// finish, and closes all watcher channels. Pending mutations are
// discarded.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		close(s.done)
		s.wg.Wait()

		s.watchMu.Lock()
		for _, ch := range s.watchers {
			close(ch)
		}
		s.watchers = nil
		s.watchMu.Unlock()
	})
}
