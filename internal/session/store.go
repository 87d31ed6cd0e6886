package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tryon-studio/internal/metrics"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create starts a session under a fresh random id.
func (s *Store) Create() *Session {
	return s.GetOrCreate(uuid.NewString())
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(id)
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Reset()
	delete(s.sessions, id)
	metrics.SetSessionsActive(len(s.sessions))
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IDs returns the session ids in lexical order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Prune drops sessions idle for longer than maxIdle. Busy sessions are kept.
func (s *Store) Prune(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Busy() || !sess.LastActivity().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	metrics.SetSessionsActive(len(s.sessions))
	return removed
}

func (s *Store) getOrCreateLocked(id string) *Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	sess := newSession(id, time.Now())
	s.sessions[id] = sess
	metrics.SetSessionsActive(len(s.sessions))
	return sess
}
