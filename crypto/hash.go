package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/blake2s"
)

// HashFunc is a named hash function with its Noise-relevant geometry.
type HashFunc interface {
	// Name returns the Noise protocol-name component, e.g. "BLAKE2s".
	Name() string

	// HashLen returns the digest size in bytes.
	HashLen() int

	// BlockLen returns the internal block size in bytes.
	BlockLen() int

	// New returns a fresh hash instance.
	New() hash.Hash
}

// HashSHA256 is the SHA-256 hash function ("SHA256" in Noise protocol names).
var HashSHA256 HashFunc = hashSHA256{}

// HashBLAKE2s is the BLAKE2s hash function ("BLAKE2s" in Noise protocol
// names).
var HashBLAKE2s HashFunc = hashBLAKE2s{}

type hashSHA256 struct{}

func (hashSHA256) Name() string   { return "SHA256" }
func (hashSHA256) HashLen() int   { return sha256.Size }
func (hashSHA256) BlockLen() int  { return sha256.BlockSize }
func (hashSHA256) New() hash.Hash { return sha256.New() }

type hashBLAKE2s struct{}

func (hashBLAKE2s) Name() string  { return "BLAKE2s" }
func (hashBLAKE2s) HashLen() int  { return blake2s.Size }
func (hashBLAKE2s) BlockLen() int { return blake2s.BlockSize }

func (hashBLAKE2s) New() hash.Hash {
	// Unkeyed BLAKE2s never fails.
	h, err := blake2s.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}
