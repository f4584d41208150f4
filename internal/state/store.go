// internal/state/store.go
package state

import (
	"errors"
	"sync"

	"github.com/consistency-app/consistency-server/internal/models"
)

var (
	// ErrNoSession is returned when a user has no hydrated session state.
	ErrNoSession = errors.New("no session state for user")
	// ErrInFlight is returned when an optimistic mutation for the same key
	// has not been confirmed or rolled back yet.
	ErrInFlight = errors.New("mutation already in flight")
)

// Snapshot is the whole client-visible session state for one user.
// It is replaced wholesale on hydration and mutated only through the store.
type Snapshot struct {
	User          *models.User          `json:"user"`
	Stats         *models.UserStats     `json:"stats"`
	Habits        []models.Habit        `json:"habits"`
	Feed          []models.FeedPost     `json:"feed"`
	Friends       []models.Friend       `json:"friends"`
	Conversations []models.Conversation `json:"conversations"`
}

type session struct {
	snap     Snapshot
	inflight map[string]bool
}

// Store holds per-user session state. It replaces the ambient global state of
// a browser client with an explicit, injectable container: reads return copies,
// writes are serialized by the store's lock, and optimistic writes go through
// a two-phase Begin/Commit/Rollback cycle keyed by operation so the pending
// and confirmed worlds stay distinguishable.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// Hydrate replaces the user's session state with a fresh server-truth snapshot.
// Any unconfirmed optimistic state is discarded; this is the reconciliation
// boundary.
func (s *Store) Hydrate(userID string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = &session{snap: snap, inflight: make(map[string]bool)}
}

// Clear drops the user's session state entirely (sign-out).
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// HasSession reports whether the user currently has hydrated state.
func (s *Store) HasSession(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	return ok
}

// View calls fn with the user's current snapshot under the store lock.
// fn must not retain references past the call.
func (s *Store) View(userID string, fn func(Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNoSession
	}
	fn(sess.snap)
	return nil
}

// Update applies a confirmed mutation synchronously.
func (s *Store) Update(userID string, fn func(*Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNoSession
	}
	fn(&sess.snap)
	return nil
}

// Pending is one in-flight optimistic mutation. Exactly one of Commit or
// Rollback must be called once the remote outcome is known.
type Pending struct {
	store  *Store
	userID string
	key    string
	undo   func(*Snapshot)
	done   bool
}

// Begin applies an optimistic mutation and registers it under key.
//
// The key doubles as a single-flight latch: a second Begin with the same key
// before the first resolves fails with ErrInFlight. That closes the
// double-submission race on rapid repeated actions.
func (s *Store) Begin(userID, key string, apply, undo func(*Snapshot)) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	if sess.inflight[key] {
		return nil, ErrInFlight
	}
	sess.inflight[key] = true
	apply(&sess.snap)
	return &Pending{store: s, userID: userID, key: key, undo: undo}, nil
}

// Commit confirms the optimistic mutation.
func (p *Pending) Commit() {
	p.resolve(false)
}

// Rollback reverts the optimistic mutation via its undo function.
func (p *Pending) Rollback() {
	p.resolve(true)
}

func (p *Pending) resolve(rollback bool) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	sess, ok := p.store.sessions[p.userID]
	if !ok {
		// Session cleared while the mutation was in flight; nothing to repair,
		// the next hydration is server truth anyway.
		return
	}
	delete(sess.inflight, p.key)
	if rollback && p.undo != nil {
		p.undo(&sess.snap)
	}
}

// PendingKeys returns the keys of unresolved optimistic mutations, so callers
// can surface the pending/confirmed distinction.
func (s *Store) PendingKeys(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(sess.inflight))
	for k := range sess.inflight {
		keys = append(keys, k)
	}
	return keys
}
