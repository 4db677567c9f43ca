package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProtocol(t *testing.T) {
	t.Run("KnownProtocol", func(t *testing.T) {
		p, err := LookupProtocol("Noise_XX_25519_ChaChaPoly_BLAKE2s")
		require.NoError(t, err)
		assert.Equal(t, "Noise_XX_25519_ChaChaPoly_BLAKE2s", p.Name)
		assert.Equal(t, PatternXX, p.Pattern)
		assert.Equal(t, "ChaChaPoly", p.Suite.Cipher.Name())
		assert.Equal(t, "BLAKE2s", p.Suite.Hash.Name())
	})

	t.Run("UnknownProtocol", func(t *testing.T) {
		_, err := LookupProtocol("Noise_KK_25519_ChaChaPoly_SHA256")
		assert.ErrorIs(t, err, ErrUnknownProtocol)
		_, err = LookupProtocol("")
		assert.ErrorIs(t, err, ErrUnknownProtocol)
	})
}

func TestProtocolNames(t *testing.T) {
	names := ProtocolNames()
	// 5 patterns, 2 ciphers, 2 hashes over a single DH curve.
	require.Len(t, names, 20)

	seen := make(map[string]bool)
	for _, name := range names {
		require.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
		p, err := LookupProtocol(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
	}
	assert.True(t, seen["Noise_IK_25519_AESGCM_SHA256"])
	assert.True(t, seen["Noise_XXfallback_25519_ChaChaPoly_BLAKE2s"])
}

func TestNewHandshakeStateValidation(t *testing.T) {
	static := mustKeyPair(t)

	t.Run("MissingLocalStatic", func(t *testing.T) {
		_, err := NewHandshakeState(Config{
			Protocol: "Noise_XX_25519_ChaChaPoly_SHA256",
			Party:    Initiator,
		})
		assert.ErrorIs(t, err, ErrMissingKeyMaterial)
	})

	t.Run("MissingRemoteStatic", func(t *testing.T) {
		_, err := NewHandshakeState(Config{
			Protocol:      "Noise_IK_25519_ChaChaPoly_SHA256",
			Party:         Initiator,
			StaticKeyPair: static,
		})
		assert.ErrorIs(t, err, ErrMissingKeyMaterial)
	})

	t.Run("ResponderNeedsNoRemoteStatic", func(t *testing.T) {
		hs, err := NewHandshakeState(Config{
			Protocol:      "Noise_IK_25519_ChaChaPoly_SHA256",
			Party:         Responder,
			StaticKeyPair: static,
		})
		require.NoError(t, err)
		assert.Equal(t, StateRead, hs.State())
	})

	t.Run("FallbackReturnedUnstarted", func(t *testing.T) {
		hs, err := NewHandshakeState(Config{
			Protocol:      "Noise_XXfallback_25519_ChaChaPoly_SHA256",
			Party:         Responder,
			StaticKeyPair: static,
		})
		require.NoError(t, err)
		assert.Equal(t, StateFailed, hs.State())
	})

	t.Run("FallbackRejectsFixedEphemeral", func(t *testing.T) {
		_, err := NewHandshakeState(Config{
			Protocol:         "Noise_XXfallback_25519_ChaChaPoly_SHA256",
			Party:            Initiator,
			StaticKeyPair:    static,
			EphemeralKeyPair: mustKeyPair(t),
		})
		assert.Error(t, err)
	})

	t.Run("ProtocolNameOnTranscript", func(t *testing.T) {
		hs, err := NewHandshakeState(Config{
			Protocol: "Noise_NN_25519_ChaChaPoly_SHA256",
			Party:    Initiator,
		})
		require.NoError(t, err)
		assert.Equal(t, "Noise_NN_25519_ChaChaPoly_SHA256", hs.ProtocolName())
		assert.Equal(t, Initiator, hs.Party())
	})
}
