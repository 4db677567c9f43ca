package noise

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/noiselink/crypto"
)

func TestDHStateParameters(t *testing.T) {
	d := NewDHState(crypto.DH25519)

	kp, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	t.Run("PrivateKeyDerivesPublic", func(t *testing.T) {
		require.NoError(t, d.SetParameter(LocalStaticPrivateKey, kp.Private[:]))
		pub, err := d.Parameter(LocalStaticPublicKey)
		require.NoError(t, err)
		assert.Equal(t, kp.Public[:], pub)
	})

	t.Run("ParameterReturnsCopy", func(t *testing.T) {
		pub, err := d.Parameter(LocalStaticPublicKey)
		require.NoError(t, err)
		pub[0] ^= 0xFF
		again, err := d.Parameter(LocalStaticPublicKey)
		require.NoError(t, err)
		assert.Equal(t, kp.Public[:], again)
	})

	t.Run("KeyPairEncoding", func(t *testing.T) {
		pair, err := d.Parameter(LocalStaticKeyPair)
		require.NoError(t, err)
		require.Len(t, pair, 2*crypto.DHKeySize)
		assert.Equal(t, kp.Private[:], pair[:crypto.DHKeySize])
		assert.Equal(t, kp.Public[:], pair[crypto.DHKeySize:])
	})

	t.Run("WrongSizeRejected", func(t *testing.T) {
		err := d.SetParameter(RemoteStaticPublicKey, make([]byte, 16))
		assert.ErrorIs(t, err, ErrParameterSize)
	})

	t.Run("UnsetParameter", func(t *testing.T) {
		require.False(t, d.HasParameter(RemoteStaticPublicKey))
		_, err := d.Parameter(RemoteStaticPublicKey)
		assert.ErrorIs(t, err, ErrParameterNotSet)
	})

	t.Run("RemoveParameter", func(t *testing.T) {
		d.RemoveParameter(LocalStaticKeyPair)
		assert.False(t, d.HasParameter(LocalStaticPublicKey))
		_, err := d.Parameter(LocalStaticPrivateKey)
		assert.ErrorIs(t, err, ErrParameterNotSet)
	})
}

func TestEphemeralDHStateRejectsStatics(t *testing.T) {
	d := NewEphemeralDHState(crypto.DH25519)

	kp, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	err = d.SetParameter(LocalStaticPrivateKey, kp.Private[:])
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.False(t, d.HasParameter(LocalStaticPublicKey))
	assert.Zero(t, d.ParameterSize(RemoteStaticPublicKey))

	shared := make([]byte, d.SharedKeySize())
	assert.ErrorIs(t, d.ES(shared), ErrUnknownParameter)
	assert.ErrorIs(t, d.SE(shared), ErrUnknownParameter)
	assert.ErrorIs(t, d.SS(shared), ErrUnknownParameter)
}

func TestDHStateGenerateEphemeral(t *testing.T) {
	d := NewDHState(crypto.DH25519)

	require.NoError(t, d.GenerateEphemeralKeyPair(rand.Reader))
	first, err := d.Parameter(LocalEphemeralPublicKey)
	require.NoError(t, err)

	// A pre-existing ephemeral is kept, not regenerated.
	require.NoError(t, d.GenerateEphemeralKeyPair(rand.Reader))
	second, err := d.Parameter(LocalEphemeralPublicKey)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestDHStateCombinations verifies both parties compute the same shared
// secrets from mirrored key slots: one side's es pairs with the other's se.
func TestDHStateCombinations(t *testing.T) {
	alice := NewDHState(crypto.DH25519)
	bob := NewDHState(crypto.DH25519)

	aliceStatic, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	bobStatic, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	require.NoError(t, alice.SetParameter(LocalStaticPrivateKey, aliceStatic.Private[:]))
	require.NoError(t, bob.SetParameter(LocalStaticPrivateKey, bobStatic.Private[:]))
	require.NoError(t, alice.SetParameter(RemoteStaticPublicKey, bobStatic.Public[:]))
	require.NoError(t, bob.SetParameter(RemoteStaticPublicKey, aliceStatic.Public[:]))

	require.NoError(t, alice.GenerateEphemeralKeyPair(rand.Reader))
	require.NoError(t, bob.GenerateEphemeralKeyPair(rand.Reader))

	alicePub, err := alice.Parameter(LocalEphemeralPublicKey)
	require.NoError(t, err)
	bobPub, err := bob.Parameter(LocalEphemeralPublicKey)
	require.NoError(t, err)
	require.NoError(t, alice.SetParameter(RemoteEphemeralPublicKey, bobPub))
	require.NoError(t, bob.SetParameter(RemoteEphemeralPublicKey, alicePub))

	a := make([]byte, alice.SharedKeySize())
	b := make([]byte, bob.SharedKeySize())

	require.NoError(t, alice.EE(a))
	require.NoError(t, bob.EE(b))
	assert.Equal(t, a, b, "ee mismatch")

	require.NoError(t, alice.ES(a))
	require.NoError(t, bob.SE(b))
	assert.Equal(t, a, b, "es/se mismatch")

	require.NoError(t, alice.SE(a))
	require.NoError(t, bob.ES(b))
	assert.Equal(t, a, b, "se/es mismatch")

	require.NoError(t, alice.SS(a))
	require.NoError(t, bob.SS(b))
	assert.Equal(t, a, b, "ss mismatch")
}

func TestDHStateCopyEphemeralsFrom(t *testing.T) {
	src := NewDHState(crypto.DH25519)
	require.NoError(t, src.GenerateEphemeralKeyPair(rand.Reader))

	re, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	require.NoError(t, src.SetParameter(RemoteEphemeralPublicKey, re.Public[:]))

	dst := NewDHState(crypto.DH25519)
	require.NoError(t, dst.CopyEphemeralsFrom(src))

	srcPair, err := src.Parameter(LocalEphemeralKeyPair)
	require.NoError(t, err)
	dstPair, err := dst.Parameter(LocalEphemeralKeyPair)
	require.NoError(t, err)
	assert.Equal(t, srcPair, dstPair)

	dstRe, err := dst.Parameter(RemoteEphemeralPublicKey)
	require.NoError(t, err)
	assert.Equal(t, re.Public[:], dstRe)
}

func TestDHStateClear(t *testing.T) {
	d := NewDHState(crypto.DH25519)
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	require.NoError(t, d.SetParameter(LocalStaticPrivateKey, kp.Private[:]))
	require.NoError(t, d.GenerateEphemeralKeyPair(rand.Reader))

	d.Clear()

	for _, id := range []Parameter{
		LocalStaticKeyPair,
		LocalEphemeralKeyPair,
		RemoteStaticPublicKey,
		RemoteEphemeralPublicKey,
	} {
		assert.False(t, d.HasParameter(id), "%s survived Clear", id)
	}
}
