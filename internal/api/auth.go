package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dex-trade-stream/internal/auth"
)

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := auth.NewNonce()
	if err != nil {
		s.logger.Printf("generate nonce: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Nonce generation failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Authentication disabled", "No token issuer is configured")
		return
	}

	var req auth.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	resp, err := s.auth.Verify(r.Context(), req)
	if err != nil {
		status, title := verifyErrorStatus(err)
		s.writeError(w, status, title, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// verifyErrorStatus maps a sign-in failure to its status code and title.
func verifyErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidPublicKey):
		return http.StatusBadRequest, "Invalid public key"
	case errors.Is(err, auth.ErrInvalidSignature):
		return http.StatusBadRequest, "Invalid signature"
	case errors.Is(err, auth.ErrSignatureMismatch):
		return http.StatusUnauthorized, "Signature verification failed"
	default:
		return http.StatusInternalServerError, "Token generation failed"
	}
}

// sessionResponse confirms a live session.
type sessionResponse struct {
	PublicKey string `json:"publicKey"`
	Valid     bool   `json:"valid"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Authentication disabled", "No token issuer is configured")
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing bearer token")
		return
	}

	subject, err := s.auth.Session(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		s.logger.Printf("validate session: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Session lookup failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{PublicKey: subject, Valid: true})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
