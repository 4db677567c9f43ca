package noise

import (
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/opd-ai/noiselink/crypto"
)

// Suite is a concrete instantiation of the three primitive collaborators a
// Noise protocol is built from.
type Suite struct {
	DH     crypto.DHFunc
	Cipher crypto.CipherFunc
	Hash   crypto.HashFunc
}

// SymmetricState owns the running handshake hash h and the chaining key ck.
// h accumulates the transcript of everything sent and received, including
// the protocol name and prologue; ck is the secret accumulator from which
// every symmetric key is derived. ck never leaves this object except
// indirectly through the two transport keys produced by Split.
type SymmetricState struct {
	suite Suite

	h  []byte // running transcript hash, HashLen bytes
	ck []byte // chaining key, HashLen bytes

	k      [crypto.CipherKeySize]byte
	aead   crypto.AEAD
	n      uint64
	hasKey bool
}

// NewSymmetricState creates a symmetric state for the given suite. It must
// be initialized with a protocol name before use.
func NewSymmetricState(suite Suite) *SymmetricState {
	hl := suite.Hash.HashLen()
	return &SymmetricState{
		suite: suite,
		h:     make([]byte, hl),
		ck:    make([]byte, hl),
	}
}

// Initialize seeds h and ck from the ASCII protocol name. Names longer than
// the hash length are hashed down; shorter names are zero padded.
func (s *SymmetricState) Initialize(protocolName string) {
	hl := s.suite.Hash.HashLen()
	if len(protocolName) <= hl {
		copy(s.h, protocolName)
		for i := len(protocolName); i < hl; i++ {
			s.h[i] = 0
		}
	} else {
		hash := s.suite.Hash.New()
		hash.Write([]byte(protocolName))
		s.h = hash.Sum(s.h[:0])
	}
	copy(s.ck, s.h)
	crypto.ZeroBytes(s.k[:])
	s.aead = nil
	s.n = 0
	s.hasKey = false
}

// MixHash appends data to the running transcript hash.
func (s *SymmetricState) MixHash(data []byte) {
	hash := s.suite.Hash.New()
	hash.Write(s.h)
	hash.Write(data)
	s.h = hash.Sum(s.h[:0])
}

// MixPrologue hashes prologue data into the transcript. A nil prologue
// still contributes an empty MixHash per the framework's initialization
// rules, which this call performs.
func (s *SymmetricState) MixPrologue(prologue []byte) {
	s.MixHash(prologue)
}

// MixKey ratchets the chaining key with new input key material (typically a
// DH output) and derives a fresh encryption key, resetting the per-message
// nonce to zero.
func (s *SymmetricState) MixKey(input []byte) {
	kdf := hkdf.New(s.suite.Hash.New, input, s.ck, nil)
	mustRead(kdf, s.ck)
	mustRead(kdf, s.k[:])
	s.installKey()
}

// MixKeyAndHash ratchets the chaining key and additionally folds an
// intermediate hash value into the transcript. Used for psk tokens.
func (s *SymmetricState) MixKeyAndHash(input []byte) {
	tempH := make([]byte, s.suite.Hash.HashLen())
	kdf := hkdf.New(s.suite.Hash.New, input, s.ck, nil)
	mustRead(kdf, s.ck)
	mustRead(kdf, tempH)
	mustRead(kdf, s.k[:])
	s.installKey()
	s.MixHash(tempH)
	crypto.ZeroBytes(tempH)
}

// HasKey reports whether an encryption key has been derived yet. Before the
// first MixKey, handshake payloads travel in the clear but are still hashed.
func (s *SymmetricState) HasKey() bool {
	return s.hasKey
}

// EncryptAndHash encrypts input into output using the current key with the
// transcript hash as associated data, then mixes the ciphertext into the
// transcript. Before a key exists the input is copied through unmodified
// but still hashed. Returns the number of bytes written to output.
//
// output may overlap input; in-place encryption of a shared buffer region
// is an explicit part of the contract.
func (s *SymmetricState) EncryptAndHash(output, input []byte) (int, error) {
	if !s.hasKey {
		if len(output) < len(input) {
			return 0, ErrBufferTooSmall
		}
		copy(output, input)
		s.MixHash(output[:len(input)])
		return len(input), nil
	}
	total := len(input) + crypto.TagSize
	if len(output) < total {
		return 0, ErrBufferTooSmall
	}
	s.aead.Encrypt(output[:0], s.n, s.h, input)
	s.MixHash(output[:total])
	s.n++
	return total, nil
}

// DecryptAndHash mixes the ciphertext into the transcript, then decrypts
// and verifies it into output. On authentication failure the output buffer
// is zeroed and an error returned; no partial plaintext escapes. Returns
// the number of plaintext bytes written.
//
// output may overlap input, mirroring EncryptAndHash.
func (s *SymmetricState) DecryptAndHash(output, input []byte) (int, error) {
	if !s.hasKey {
		if len(output) < len(input) {
			return 0, ErrBufferTooSmall
		}
		s.MixHash(input)
		copy(output, input)
		return len(input), nil
	}
	if len(input) < crypto.TagSize {
		return 0, ErrHandshakeFailed
	}
	total := len(input) - crypto.TagSize
	if len(output) < total {
		return 0, ErrBufferTooSmall
	}
	// The transcript covers the wire bytes and must be advanced before
	// decryption replaces them in place, but the AEAD's associated data
	// is the hash from before this message.
	ad := copyBytes(s.h)
	s.MixHash(input)
	if _, err := s.aead.Decrypt(output[:0], s.n, ad, input); err != nil {
		crypto.ZeroBytes(output[:total])
		return 0, err
	}
	s.n++
	return total, nil
}

// Split derives the two independent transport cipher states from ck and
// permanently ends the handshake's use of the chaining key. The first
// cipher state carries initiator-to-responder traffic.
func (s *SymmetricState) Split() (*CipherState, *CipherState) {
	var k1, k2 [crypto.CipherKeySize]byte
	kdf := hkdf.New(s.suite.Hash.New, nil, s.ck, nil)
	mustRead(kdf, k1[:])
	mustRead(kdf, k2[:])

	c1 := newCipherState(s.suite.Cipher, k1)
	c2 := newCipherState(s.suite.Cipher, k2)

	crypto.ZeroBytes(k1[:])
	crypto.ZeroBytes(k2[:])
	crypto.ZeroBytes(s.ck)
	crypto.ZeroBytes(s.k[:])
	s.aead = nil
	s.hasKey = false
	return c1, c2
}

// HandshakeHash returns a copy of the current transcript hash for
// channel-binding use.
func (s *SymmetricState) HandshakeHash() []byte {
	return copyBytes(s.h)
}

// Clear erases all secret state, including the transcript hash.
func (s *SymmetricState) Clear() {
	crypto.ZeroBytes(s.h)
	crypto.ZeroBytes(s.ck)
	crypto.ZeroBytes(s.k[:])
	s.aead = nil
	s.n = 0
	s.hasKey = false
}

func (s *SymmetricState) installKey() {
	s.aead = s.suite.Cipher.Cipher(s.k)
	s.n = 0
	s.hasKey = true
}

// mustRead fills buf from an HKDF reader, which cannot fail for the output
// lengths used here.
func mustRead(r io.Reader, buf []byte) {
	if _, err := io.ReadFull(r, buf); err != nil {
		panic(err)
	}
}
