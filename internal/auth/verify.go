package auth

import (
	"crypto/ed25519"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DecodePublicKey decodes a base58 wallet address into an ed25519 key.
// The bytes must encode a point on the curve outside the small-order subgroup.
func DecodePublicKey(publicKey string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(raw))
	}

	point, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: not a curve point", ErrInvalidPublicKey)
	}
	if new(edwards25519.Point).MultByCofactor(point).Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, fmt.Errorf("%w: small order point", ErrInvalidPublicKey)
	}

	return ed25519.PublicKey(raw), nil
}

// VerifySignature checks that signature is publicKey's signature of
// SignMessage(nonce). Both inputs are base58.
func VerifySignature(publicKey, signature, nonce string) error {
	key, err := DecodePublicKey(publicKey)
	if err != nil {
		return err
	}

	sig, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidSignature, ed25519.SignatureSize, len(sig))
	}

	if !ed25519.Verify(key, []byte(SignMessage(nonce)), sig) {
		return ErrSignatureMismatch
	}
	return nil
}
