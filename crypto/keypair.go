package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// KeyPair represents a Curve25519 key pair used for Noise handshakes.
type KeyPair struct {
	Public  [DHKeySize]byte
	Private [DHKeySize]byte
}

// GenerateKeyPair creates a new random Curve25519 key pair. If random is
// nil, crypto/rand is used.
func GenerateKeyPair(random io.Reader) (*KeyPair, error) {
	if random == nil {
		random = rand.Reader
	}
	kp := &KeyPair{}
	if _, err := io.ReadFull(random, kp.Private[:]); err != nil {
		return nil, err
	}
	clampPrivateKey(kp.Private[:])
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// FromPrivateKey creates a key pair from an existing private key, deriving
// the public component. The private key is clamped.
func FromPrivateKey(private [DHKeySize]byte) (*KeyPair, error) {
	if isZeroKey(private) {
		return nil, errors.New("invalid private key: all zeros")
	}
	kp := &KeyPair{Private: private}
	clampPrivateKey(kp.Private[:])
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Wipe securely erases the private key component.
func (kp *KeyPair) Wipe() {
	if kp != nil {
		ZeroBytes(kp.Private[:])
	}
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [DHKeySize]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
