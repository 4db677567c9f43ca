package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// CipherKeySize is the size of AEAD cipher keys in bytes.
	CipherKeySize = 32

	// TagSize is the size of the AEAD authentication tag in bytes.
	TagSize = 16
)

// ErrAuthenticationFailure indicates that an AEAD tag check failed during
// decryption. Malformed ciphertext and tampered ciphertext are deliberately
// indistinguishable.
var ErrAuthenticationFailure = errors.New("message authentication failed")

// CipherFunc is a named AEAD cipher construction.
type CipherFunc interface {
	// Name returns the Noise protocol-name component, e.g. "ChaChaPoly".
	Name() string

	// Cipher instantiates the AEAD for a 256-bit key.
	Cipher(key [CipherKeySize]byte) AEAD
}

// AEAD encrypts and decrypts with a 64-bit nonce counter formatted into the
// underlying cipher's IV as the Noise specification requires.
//
// Encrypt and Decrypt follow the crypto/cipher append convention: output is
// appended to out and the extended slice returned. Passing in[:0] as out
// reuses in's storage for in-place operation.
type AEAD interface {
	Encrypt(out []byte, n uint64, ad, plaintext []byte) []byte
	Decrypt(out []byte, n uint64, ad, ciphertext []byte) ([]byte, error)
}

// CipherChaChaPoly is the ChaCha20-Poly1305 AEAD ("ChaChaPoly" in Noise
// protocol names). The 64-bit nonce is encoded little-endian into the last
// eight bytes of the 96-bit IV.
var CipherChaChaPoly CipherFunc = cipherChaChaPoly{}

// CipherAESGCM is the AES-256-GCM AEAD ("AESGCM" in Noise protocol names).
// The 64-bit nonce is encoded big-endian into the last eight bytes of the
// 96-bit IV.
var CipherAESGCM CipherFunc = cipherAESGCM{}

type cipherChaChaPoly struct{}

func (cipherChaChaPoly) Name() string { return "ChaChaPoly" }

func (cipherChaChaPoly) Cipher(key [CipherKeySize]byte) AEAD {
	// Key is always 32 bytes, so the constructor cannot fail.
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic(err)
	}
	return aeadCipher{
		aead: aead,
		nonce: func(dst *[12]byte, n uint64) {
			binary.LittleEndian.PutUint64(dst[4:], n)
		},
	}
}

type cipherAESGCM struct{}

func (cipherAESGCM) Name() string { return "AESGCM" }

func (cipherAESGCM) Cipher(key [CipherKeySize]byte) AEAD {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return aeadCipher{
		aead: aead,
		nonce: func(dst *[12]byte, n uint64) {
			binary.BigEndian.PutUint64(dst[4:], n)
		},
	}
}

type aeadCipher struct {
	aead  cipher.AEAD
	nonce func(dst *[12]byte, n uint64)
}

func (c aeadCipher) Encrypt(out []byte, n uint64, ad, plaintext []byte) []byte {
	var iv [12]byte
	c.nonce(&iv, n)
	return c.aead.Seal(out, iv[:], plaintext, ad)
}

func (c aeadCipher) Decrypt(out []byte, n uint64, ad, ciphertext []byte) ([]byte, error) {
	var iv [12]byte
	c.nonce(&iv, n)
	plaintext, err := c.aead.Open(out, iv[:], ciphertext, ad)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}
