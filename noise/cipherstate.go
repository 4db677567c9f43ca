package noise

import (
	"github.com/opd-ai/noiselink/crypto"
)

// maxNonce is reserved by the framework for rekey operations and is never
// used to encrypt a packet.
const maxNonce = ^uint64(0)

// CipherState is one direction of a transport session: a 256-bit key, a
// 64-bit nonce counter, and the AEAD instantiated from them. Two instances
// are produced by HandshakeState.Split, one per direction; after that point
// they share no coupling with the handshake or with each other.
//
// The nonce space is 64 bits. Callers are responsible for calling Rekey or
// rehandshaking before exhaustion; once the counter reaches the reserved
// maximum, packet operations fail.
type CipherState struct {
	cf   crypto.CipherFunc
	k    [crypto.CipherKeySize]byte
	aead crypto.AEAD
	n    uint64
}

func newCipherState(cf crypto.CipherFunc, key [crypto.CipherKeySize]byte) *CipherState {
	c := &CipherState{cf: cf, k: key}
	c.aead = cf.Cipher(c.k)
	return c
}

// NewCipherState creates a transport cipher state with an explicit key.
// Normal sessions obtain cipher states from HandshakeState.Split; this
// constructor exists for test harnesses and key-export scenarios.
func NewCipherState(cf crypto.CipherFunc, key [crypto.CipherKeySize]byte) *CipherState {
	return newCipherState(cf, key)
}

// SetNonce overrides the nonce for the next packet. Needed only on
// unreliable transports where the application tolerates out-of-order
// delivery; care must be taken never to reuse a nonce and to reject
// duplicate packets.
func (c *CipherState) SetNonce(n uint64) {
	c.n = n
}

// Nonce returns the nonce that will be used for the next packet.
func (c *CipherState) Nonce() uint64 {
	return c.n
}

// EncryptPacket encrypts input into output, appending the 16-byte
// authentication tag, and increments the nonce. Returns the total number of
// bytes written. output may overlap input for in-place encryption.
func (c *CipherState) EncryptPacket(output, input []byte) (int, error) {
	if c.aead == nil {
		return 0, ErrCipherStateClosed
	}
	if c.n == maxNonce {
		return 0, ErrNonceExhausted
	}
	total := len(input) + crypto.TagSize
	if len(output) < total {
		return 0, ErrBufferTooSmall
	}
	c.aead.Encrypt(output[:0], c.n, nil, input)
	c.n++
	return total, nil
}

// DecryptPacket verifies and decrypts input into output and increments the
// nonce. On tag failure the output buffer is zeroed, the nonce is left
// unchanged, and an error is returned. Returns the number of plaintext
// bytes written. output may overlap input.
func (c *CipherState) DecryptPacket(output, input []byte) (int, error) {
	if c.aead == nil {
		return 0, ErrCipherStateClosed
	}
	if c.n == maxNonce {
		return 0, ErrNonceExhausted
	}
	if len(input) < crypto.TagSize {
		return 0, crypto.ErrAuthenticationFailure
	}
	total := len(input) - crypto.TagSize
	if len(output) < total {
		return 0, ErrBufferTooSmall
	}
	if _, err := c.aead.Decrypt(output[:0], c.n, nil, input); err != nil {
		crypto.ZeroBytes(output[:total])
		return 0, err
	}
	c.n++
	return total, nil
}

// Rekey replaces the current key with a new one derived by encrypting an
// all-zero block under the reserved nonce. This provides key independence
// between rekey epochs without a new DH exchange: the old key cannot be
// recovered from the new one. The nonce counter is not reset.
func (c *CipherState) Rekey() error {
	if c.aead == nil {
		return ErrCipherStateClosed
	}
	var zeros [crypto.CipherKeySize]byte
	out := c.aead.Encrypt(nil, maxNonce, nil, zeros[:])
	copy(c.k[:], out[:crypto.CipherKeySize])
	crypto.ZeroBytes(out)
	c.aead = c.cf.Cipher(c.k)
	return nil
}

// Clear erases the key. The cipher state is unusable afterwards.
func (c *CipherState) Clear() {
	crypto.ZeroBytes(c.k[:])
	c.aead = nil
	c.n = 0
}
