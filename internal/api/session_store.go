package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/eep-importer/internal/importer"
	"github.com/ignite/eep-importer/internal/pkg/logger"
)

// SessionFactory builds a new import session with the given ID.
type SessionFactory func(id string) *importer.Session

// SessionStore keeps the open import sessions in memory. Sessions idle for
// longer than the TTL are dropped by Sweep.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*importer.Session
	ttl      time.Duration
	factory  SessionFactory
	now      func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(ttl time.Duration, factory SessionFactory) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*importer.Session),
		ttl:      ttl,
		factory:  factory,
		now:      time.Now,
	}
}

// Create registers a new session under a fresh random ID.
func (s *SessionStore) Create() *importer.Session {
	sess := s.factory(uuid.NewString())
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	return sess
}

func (s *SessionStore) Get(id string) (*importer.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete removes a session and reports whether it existed.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActive().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Info("expired import sessions", "component", "sessions", "removed", n, "open", s.Len())
			}
		}
	}
}
