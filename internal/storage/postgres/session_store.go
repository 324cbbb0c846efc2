package postgres

import (
	"context"
	"fmt"
	"time"

	"dex-trade-stream/internal/storage"
)

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// StoreSession records a token issued to userKey.
// Returns ErrDuplicateKey if the same token was already stored for userKey.
func (s *SessionStore) StoreSession(ctx context.Context, userKey, token string, expiresAt time.Time) error {
	if userKey == "" || token == "" {
		return storage.ErrInvalidInput
	}
	defer observe("store_session", time.Now())

	query := `
		INSERT INTO sessions (user_pubkey, token, expires_at)
		VALUES ($1, $2, $3)
	`

	if _, err := s.pool.Exec(ctx, query, userKey, token, expiresAt.UTC()); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ValidateSession reports whether token was issued to userKey and is unexpired.
func (s *SessionStore) ValidateSession(ctx context.Context, userKey, token string) (bool, error) {
	defer observe("validate_session", time.Now())

	query := `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE user_pubkey = $1 AND token = $2 AND expires_at > now()
		)
	`

	var ok bool
	if err := s.pool.QueryRow(ctx, query, userKey, token).Scan(&ok); err != nil {
		return false, fmt.Errorf("query session: %w", err)
	}
	return ok, nil
}

// CleanupExpiredSessions removes sessions past their expiry.
func (s *SessionStore) CleanupExpiredSessions(ctx context.Context) error {
	defer observe("cleanup_sessions", time.Now())

	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}
