package crypto

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// DHKeySize is the size of Curve25519 private keys, public keys, and
// shared secrets in bytes.
const DHKeySize = 32

var (
	// ErrInvalidPublicKey indicates a peer public key of the wrong size or
	// one that produces an all-zero shared secret (a low-order point).
	ErrInvalidPublicKey = errors.New("invalid Diffie-Hellman public key")
)

// DHFunc is a named Diffie-Hellman function over a fixed curve.
//
// Implementations must be safe for concurrent use; they hold no state.
type DHFunc interface {
	// Name returns the Noise protocol-name component, e.g. "25519".
	Name() string

	// DHLen returns the size of keys and shared secrets in bytes.
	DHLen() int

	// GenerateKeyPair creates a fresh key pair using entropy from random.
	GenerateKeyPair(random io.Reader) (*KeyPair, error)

	// PublicKey derives the public key for the given private key. The
	// private key is clamped in place first when the curve requires it.
	PublicKey(private []byte) ([]byte, error)

	// DH computes the shared secret between a local private key and a
	// remote public key. Low-order remote points are rejected.
	DH(private, public []byte) ([]byte, error)
}

// DH25519 is the Curve25519 Diffie-Hellman function ("25519" in Noise
// protocol names).
var DH25519 DHFunc = dh25519{}

type dh25519 struct{}

func (dh25519) Name() string { return "25519" }

func (dh25519) DHLen() int { return DHKeySize }

func (dh25519) GenerateKeyPair(random io.Reader) (*KeyPair, error) {
	return GenerateKeyPair(random)
}

func (dh25519) PublicKey(private []byte) ([]byte, error) {
	if len(private) != DHKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", DHKeySize, len(private))
	}
	clampPrivateKey(private)
	return curve25519.X25519(private, curve25519.Basepoint)
}

func (dh25519) DH(private, public []byte) ([]byte, error) {
	if len(private) != DHKeySize || len(public) != DHKeySize {
		return nil, ErrInvalidPublicKey
	}
	shared, err := curve25519.X25519(private, public)
	if err != nil {
		// X25519 rejects all-zero outputs, which only happen for
		// low-order peer points.
		return nil, ErrInvalidPublicKey
	}
	return shared, nil
}

// clampPrivateKey applies the standard Curve25519 scalar clamping.
func clampPrivateKey(priv []byte) {
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
}
