package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDH25519Properties(t *testing.T) {
	assert.Equal(t, "25519", DH25519.Name())
	assert.Equal(t, DHKeySize, DH25519.DHLen())
}

// TestDH25519Vector checks against the RFC 7748 section 6.1 key exchange
// vector.
func TestDH25519Vector(t *testing.T) {
	alicePriv, err := hex.DecodeString("77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	require.NoError(t, err)
	bobPub, err := hex.DecodeString("de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")
	require.NoError(t, err)
	wantShared := "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742"
	wantPub := "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a"

	pub, err := DH25519.PublicKey(alicePriv)
	require.NoError(t, err)
	assert.Equal(t, wantPub, hex.EncodeToString(pub))

	shared, err := DH25519.DH(alicePriv, bobPub)
	require.NoError(t, err)
	assert.Equal(t, wantShared, hex.EncodeToString(shared))
}

func TestDH25519Symmetry(t *testing.T) {
	alice, err := DH25519.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	bob, err := DH25519.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	ab, err := DH25519.DH(alice.Private[:], bob.Public[:])
	require.NoError(t, err)
	ba, err := DH25519.DH(bob.Private[:], alice.Public[:])
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.False(t, IsWiped(ab), "shared secret should not be all zeros")
}

func TestDH25519RejectsLowOrderPoint(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	// The identity element is the canonical low-order point; accepting it
	// would yield an all-zero shared secret.
	var identity [DHKeySize]byte
	_, err = DH25519.DH(kp.Private[:], identity[:])
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestDH25519RejectsBadSizes(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	_, err = DH25519.DH(kp.Private[:16], kp.Public[:])
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
	_, err = DH25519.DH(kp.Private[:], kp.Public[:31])
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
	_, err = DH25519.PublicKey(make([]byte, 16))
	assert.Error(t, err)
}
