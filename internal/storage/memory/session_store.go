package memory

import (
	"context"
	"sync"
	"time"

	"dex-trade-stream/internal/storage"
)

type session struct {
	token     string
	expiresAt time.Time
}

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string][]session // keyed by user public key
	now  func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		data: make(map[string][]session),
		now:  time.Now,
	}
}

// WithClock sets the clock used for expiry checks.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// StoreSession records a token issued to userKey.
func (s *SessionStore) StoreSession(_ context.Context, userKey, token string, expiresAt time.Time) error {
	if userKey == "" || token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[userKey] = append(s.data[userKey], session{token: token, expiresAt: expiresAt})
	return nil
}

// ValidateSession reports whether token was issued to userKey and is unexpired.
func (s *SessionStore) ValidateSession(_ context.Context, userKey, token string) (bool, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.data[userKey] {
		if sess.token == token && sess.expiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpiredSessions removes sessions past their expiry.
func (s *SessionStore) CleanupExpiredSessions(_ context.Context) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sessions := range s.data {
		kept := sessions[:0]
		for _, sess := range sessions {
			if !sess.expiresAt.Before(now) {
				kept = append(kept, sess)
			}
		}
		if len(kept) == 0 {
			delete(s.data, key)
			continue
		}
		s.data[key] = kept
	}
	return nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sessions := range s.data {
		n += len(sessions)
	}
	return n
}

var _ storage.SessionStore = (*SessionStore)(nil)
