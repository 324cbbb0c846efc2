package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-trade-stream/internal/storage/memory"
)

type wallet struct {
	address string
	priv    ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{address: base58.Encode(pub), priv: priv}
}

func (w wallet) sign(nonce string) string {
	return base58.Encode(ed25519.Sign(w.priv, []byte(SignMessage(nonce))))
}

// offCurveKey returns 32 bytes that do not decode to an edwards25519 point.
func offCurveKey(t *testing.T) string {
	t.Helper()
	for i := 0; i < 256; i++ {
		candidate := make([]byte, 32)
		candidate[0] = byte(i)
		candidate[31] = 0x10
		if _, err := new(edwards25519.Point).SetBytes(candidate); err != nil {
			return base58.Encode(candidate)
		}
	}
	t.Fatal("no off-curve encoding found")
	return ""
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)

	assert.Len(t, a, NonceLength)
	assert.Regexp(t, `^[A-Za-z0-9]{32}$`, a)
	assert.NotEqual(t, a, b)
}

func TestVerifySignature(t *testing.T) {
	w := newWallet(t)
	other := newWallet(t)
	nonce := "abcDEF0123456789abcDEF0123456789"

	identity := make([]byte, 32)
	identity[0] = 1

	tests := []struct {
		name      string
		publicKey string
		signature string
		nonce     string
		wantErr   error
	}{
		{"valid", w.address, w.sign(nonce), nonce, nil},
		{"wrong nonce", w.address, w.sign(nonce), "other", ErrSignatureMismatch},
		{"wrong signer", w.address, other.sign(nonce), nonce, ErrSignatureMismatch},
		{"bad base58 key", "0OIl", w.sign(nonce), nonce, ErrInvalidPublicKey},
		{"short key", base58.Encode([]byte{1, 2, 3}), w.sign(nonce), nonce, ErrInvalidPublicKey},
		{"off curve key", offCurveKey(t), w.sign(nonce), nonce, ErrInvalidPublicKey},
		{"small order key", base58.Encode(identity), w.sign(nonce), nonce, ErrInvalidPublicKey},
		{"bad base58 signature", w.address, "0OIl", nonce, ErrInvalidSignature},
		{"short signature", w.address, base58.Encode(make([]byte, 10)), nonce, ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.publicKey, tt.signature, tt.nonce)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, expiresAt, err := issuer.Issue("wallet1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "wallet1", claims.Subject)
	assert.Equal(t, now, claims.IssuedAt.Time.UTC())
	assert.Equal(t, expiresAt, claims.ExpiresAt.Time.UTC())
}

func TestIssuer_RejectsExpiredAndForeignTokens(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, _, err := issuer.Issue("wallet1")
	require.NoError(t, err)

	issuer.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	foreign.now = func() time.Time { return now }
	issuer.now = func() time.Time { return now }
	otherToken, _, err := foreign.Issue("wallet1")
	require.NoError(t, err)
	_, err = issuer.Parse(otherToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestService_VerifyStoresSession(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	sessions := memory.NewSessionStore()
	svc := NewService(issuer, sessions, log.New(io.Discard, "", 0))
	ctx := context.Background()

	w := newWallet(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	resp, err := svc.Verify(ctx, VerifyRequest{PublicKey: w.address, Signature: w.sign(nonce), Nonce: nonce})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	ok, err := sessions.ValidateSession(ctx, w.address, resp.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	subject, err := svc.Session(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, w.address, subject)
}

func TestService_VerifyRejectsBadSignature(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	sessions := memory.NewSessionStore()
	svc := NewService(issuer, sessions, log.New(io.Discard, "", 0))

	w := newWallet(t)
	_, err = svc.Verify(context.Background(), VerifyRequest{PublicKey: w.address, Signature: w.sign("a"), Nonce: "b"})
	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Equal(t, 0, sessions.Len())
}

// failingSessions rejects every write.
type failingSessions struct {
	*memory.SessionStore
}

func (failingSessions) StoreSession(context.Context, string, string, time.Time) error {
	return errors.New("clickhouse unavailable")
}

func TestService_VerifySucceedsWhenSessionStoreFails(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	svc := NewService(issuer, failingSessions{memory.NewSessionStore()}, log.New(io.Discard, "", 0))

	w := newWallet(t)
	resp, err := svc.Verify(context.Background(), VerifyRequest{PublicKey: w.address, Signature: w.sign("n"), Nonce: "n"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	// The session was never stored, so it does not validate.
	_, err = svc.Session(context.Background(), resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
