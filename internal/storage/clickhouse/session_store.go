package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dex-trade-stream/internal/storage"
)

// SessionStore implements storage.SessionStore using ClickHouse.
type SessionStore struct {
	conn *Conn
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(conn *Conn) *SessionStore {
	return &SessionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// StoreSession records a token issued to userKey.
func (s *SessionStore) StoreSession(ctx context.Context, userKey, token string, expiresAt time.Time) error {
	if userKey == "" || token == "" {
		return storage.ErrInvalidInput
	}
	defer observe("store_session", time.Now())

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sessions (user_pubkey, token, created_at, expires_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(userKey, token, time.Now().UTC(), expiresAt.UTC()); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ValidateSession reports whether token was issued to userKey and is unexpired.
func (s *SessionStore) ValidateSession(ctx context.Context, userKey, token string) (bool, error) {
	defer observe("validate_session", time.Now())

	query := `
		SELECT count() FROM sessions
		WHERE user_pubkey = ? AND token = ? AND expires_at > now()
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, userKey, token).Scan(&count); err != nil {
		return false, fmt.Errorf("query session: %w", err)
	}
	return count > 0, nil
}

// CleanupExpiredSessions removes sessions past their expiry. The delete is
// an asynchronous mutation in ClickHouse.
func (s *SessionStore) CleanupExpiredSessions(ctx context.Context) error {
	defer observe("cleanup_sessions", time.Now())

	if err := s.conn.Exec(ctx, `ALTER TABLE sessions DELETE WHERE expires_at < now()`); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}
