// Package noise implements the Noise Protocol Framework handshake and
// transport engine: the token-driven handshake state machine, the symmetric
// key ratchet, Diffie-Hellman key slots, and the post-handshake cipher
// states.
//
// A handshake is driven by a pattern (XX, IK, NN, NNpsk0, XXfallback)
// expressed as data and interpreted by one generic token engine. Callers
// construct a handshake from an explicit Config, alternate WriteMessage and
// ReadMessage until the pattern completes, then call Split to obtain the
// pair of one-way transport cipher states:
//
//	hs, err := noise.NewHandshakeState(noise.Config{
//	    Protocol: "Noise_XX_25519_ChaChaPoly_BLAKE2s",
//	    Party:    noise.Initiator,
//	    StaticKeyPair: keys,
//	})
//	...
//	send, recv, err := hs.Split()
//
// No handshake or cipher object is safe for concurrent use by more than one
// caller; every session owns its objects exclusively, matching the
// sequential nature of the protocol.
package noise
