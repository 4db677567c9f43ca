package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/noiselink/crypto"
)

func testSuite() Suite {
	return Suite{
		DH:     crypto.DH25519,
		Cipher: crypto.CipherChaChaPoly,
		Hash:   crypto.HashSHA256,
	}
}

// pairedStates returns two symmetric states initialized identically, as the
// two ends of a handshake would be.
func pairedStates(t *testing.T, name string) (*SymmetricState, *SymmetricState) {
	t.Helper()
	a := NewSymmetricState(testSuite())
	b := NewSymmetricState(testSuite())
	a.Initialize(name)
	b.Initialize(name)
	a.MixPrologue(nil)
	b.MixPrologue(nil)
	return a, b
}

func TestSymmetricStateInitialize(t *testing.T) {
	t.Run("ShortNameZeroPadded", func(t *testing.T) {
		s := NewSymmetricState(testSuite())
		s.Initialize("Noise_NN_25519_ChaChaPoly_SHA256")
		h := s.HandshakeHash()
		assert.Equal(t, []byte("Noise_NN_25519_ChaChaPoly_SHA256"), h)
	})

	t.Run("LongNameHashed", func(t *testing.T) {
		s := NewSymmetricState(testSuite())
		long := "Noise_XXfallback_25519_ChaChaPoly_SHA256"
		s.Initialize(long)
		h := s.HandshakeHash()
		require.Len(t, h, testSuite().Hash.HashLen())
		assert.NotEqual(t, []byte(long)[:len(h)], h)
	})
}

func TestSymmetricStatePlaintextPhase(t *testing.T) {
	a, b := pairedStates(t, "Noise_NN_25519_ChaChaPoly_SHA256")

	// Before any MixKey, payloads pass through unencrypted but are still
	// bound into the transcript.
	require.False(t, a.HasKey())
	msg := []byte("cleartext handshake payload")
	out := make([]byte, len(msg))
	n, err := a.EncryptAndHash(out, msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	assert.Equal(t, msg, out)

	got := make([]byte, len(out))
	n, err = b.DecryptAndHash(got, out)
	require.NoError(t, err)
	assert.Equal(t, msg, got[:n])
	assert.Equal(t, a.HandshakeHash(), b.HandshakeHash())
}

func TestSymmetricStateEncryptedPhase(t *testing.T) {
	a, b := pairedStates(t, "Noise_NN_25519_ChaChaPoly_SHA256")

	secret := []byte("derived shared secret material")
	a.MixKey(secret)
	b.MixKey(secret)
	require.True(t, a.HasKey())

	msg := []byte("protected payload")
	ct := make([]byte, len(msg)+crypto.TagSize)
	n, err := a.EncryptAndHash(ct, msg)
	require.NoError(t, err)
	require.Equal(t, len(ct), n)
	assert.NotEqual(t, msg, ct[:len(msg)])

	pt := make([]byte, len(msg))
	n, err = b.DecryptAndHash(pt, ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt[:n])
	assert.Equal(t, a.HandshakeHash(), b.HandshakeHash())
}

func TestSymmetricStateTranscriptBindsCiphertext(t *testing.T) {
	a, b := pairedStates(t, "Noise_NN_25519_ChaChaPoly_SHA256")
	a.MixKey([]byte("k"))
	b.MixKey([]byte("k"))

	msg := []byte("first")
	ct := make([]byte, len(msg)+crypto.TagSize)
	_, err := a.EncryptAndHash(ct, msg)
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0x01
	pt := make([]byte, len(msg))
	_, err = b.DecryptAndHash(pt, tampered)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)
	assert.True(t, crypto.IsWiped(pt))
}

func TestSymmetricStateInPlace(t *testing.T) {
	a, b := pairedStates(t, "Noise_NN_25519_ChaChaPoly_SHA256")
	a.MixKey([]byte("k"))
	b.MixKey([]byte("k"))

	msg := []byte("single buffer on both ends")
	buf := make([]byte, len(msg)+crypto.TagSize)
	copy(buf, msg)

	n, err := a.EncryptAndHash(buf, buf[:len(msg)])
	require.NoError(t, err)

	m, err := b.DecryptAndHash(buf, buf[:n])
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:m])
}

func TestSymmetricStateMixKeyAndHash(t *testing.T) {
	a, b := pairedStates(t, "Noise_NNpsk0_25519_ChaChaPoly_SHA256")
	psk := make([]byte, 32)
	psk[0] = 0x99

	a.MixKeyAndHash(psk)
	b.MixKeyAndHash(psk)
	assert.Equal(t, a.HandshakeHash(), b.HandshakeHash())
	require.True(t, a.HasKey())

	// A different psk diverges both the transcript and the keys.
	c := NewSymmetricState(testSuite())
	c.Initialize("Noise_NNpsk0_25519_ChaChaPoly_SHA256")
	c.MixPrologue(nil)
	c.MixKeyAndHash(make([]byte, 32))
	assert.NotEqual(t, a.HandshakeHash(), c.HandshakeHash())
}

func TestSymmetricStateSplit(t *testing.T) {
	a, b := pairedStates(t, "Noise_NN_25519_ChaChaPoly_SHA256")
	a.MixKey([]byte("shared"))
	b.MixKey([]byte("shared"))

	a1, a2 := a.Split()
	b1, b2 := b.Split()

	// First cipher state carries initiator-to-responder traffic on both
	// sides, so a1 pairs with b1 and a2 with b2.
	msg := []byte("transport data")
	ct := make([]byte, len(msg)+crypto.TagSize)
	_, err := a1.EncryptPacket(ct, msg)
	require.NoError(t, err)
	pt := make([]byte, len(msg))
	n, err := b1.DecryptPacket(pt, ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt[:n])

	_, err = b2.EncryptPacket(ct, msg)
	require.NoError(t, err)
	n, err = a2.DecryptPacket(pt, ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt[:n])

	// The chaining key is consumed by the split.
	assert.True(t, crypto.IsWiped(a.ck))
	assert.False(t, a.HasKey())
}

func TestSymmetricStateClear(t *testing.T) {
	s := NewSymmetricState(testSuite())
	s.Initialize("Noise_NN_25519_ChaChaPoly_SHA256")
	s.MixKey([]byte("secret"))
	s.Clear()

	assert.True(t, crypto.IsWiped(s.h))
	assert.True(t, crypto.IsWiped(s.ck))
	assert.True(t, crypto.IsWiped(s.k[:]))
	assert.False(t, s.HasKey())
}
