// Package auth implements wallet sign-in: a random nonce is signed by the
// wallet's ed25519 key, the signature is verified against the base58 public
// key and an HS256 session token is issued and persisted.
package auth

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Errors returned by verification and token parsing.
var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature verification failed")
	ErrInvalidToken      = errors.New("invalid token")
)

// NonceLength is the number of characters in a sign-in nonce.
const NonceLength = 32

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewNonce returns a random alphanumeric nonce.
func NewNonce() (string, error) {
	size := big.NewInt(int64(len(nonceAlphabet)))
	buf := make([]byte, NonceLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[i] = nonceAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// SignMessage returns the text a wallet signs to authenticate with nonce.
func SignMessage(nonce string) string {
	return "Sign this message to authenticate with Trade: " + nonce
}
