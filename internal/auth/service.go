package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"dex-trade-stream/internal/storage"
)

// VerifyRequest is the body of a sign-in attempt.
type VerifyRequest struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// VerifyResponse carries the issued session token.
type VerifyResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"` // RFC3339
}

// Service verifies wallet signatures and manages sessions.
type Service struct {
	issuer   *Issuer
	sessions storage.SessionStore
	logger   *log.Logger
}

// NewService creates a new auth service. sessions may be nil, in which case
// sessions are not persisted and Session only checks the token.
func NewService(issuer *Issuer, sessions storage.SessionStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{issuer: issuer, sessions: sessions, logger: logger}
}

// Verify checks the signed nonce and issues a session token. A failure to
// persist the session is logged and does not fail the sign-in.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	if err := VerifySignature(req.PublicKey, req.Signature, req.Nonce); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(req.PublicKey)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		if err := s.sessions.StoreSession(ctx, req.PublicKey, token, expiresAt); err != nil {
			s.logger.Printf("store session for %s: %v", req.PublicKey, err)
		}
	}

	return &VerifyResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

// Session returns the wallet address a token was issued to, provided the
// token is valid and its session is still stored.
func (s *Service) Session(ctx context.Context, token string) (string, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return "", err
	}

	if s.sessions != nil {
		ok, err := s.sessions.ValidateSession(ctx, claims.Subject, token)
		if err != nil {
			return "", fmt.Errorf("validate session: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("%w: session not found", ErrInvalidToken)
		}
	}
	return claims.Subject, nil
}
