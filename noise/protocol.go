package noise

import (
	"fmt"
	"io"

	"github.com/opd-ai/noiselink/crypto"
)

// Protocol describes one fully-instantiated Noise protocol: a handshake
// pattern plus the DH, cipher, and hash functions it runs over. Descriptors
// are immutable and shared; per-session state lives in HandshakeState.
type Protocol struct {
	// Name is the full protocol name as it appears on the wire transcript,
	// e.g. "Noise_XX_25519_ChaChaPoly_BLAKE2s".
	Name    string
	Pattern *Pattern
	Suite   Suite
}

var protocols = buildProtocolTable()

func buildProtocolTable() map[string]*Protocol {
	ciphers := []crypto.CipherFunc{crypto.CipherChaChaPoly, crypto.CipherAESGCM}
	hashes := []crypto.HashFunc{crypto.HashSHA256, crypto.HashBLAKE2s}

	table := make(map[string]*Protocol)
	for _, pattern := range Patterns {
		for _, cf := range ciphers {
			for _, hf := range hashes {
				suite := Suite{DH: crypto.DH25519, Cipher: cf, Hash: hf}
				name := fmt.Sprintf("Noise_%s_%s_%s_%s",
					pattern.Name, suite.DH.Name(), cf.Name(), hf.Name())
				table[name] = &Protocol{Name: name, Pattern: pattern, Suite: suite}
			}
		}
	}
	return table
}

// LookupProtocol resolves a full protocol name to its descriptor.
func LookupProtocol(name string) (*Protocol, error) {
	p, ok := protocols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return p, nil
}

// ProtocolNames returns the names of all supported protocols, in pattern
// then suite order.
func ProtocolNames() []string {
	ciphers := []crypto.CipherFunc{crypto.CipherChaChaPoly, crypto.CipherAESGCM}
	hashes := []crypto.HashFunc{crypto.HashSHA256, crypto.HashBLAKE2s}

	names := make([]string, 0, len(protocols))
	for _, pattern := range Patterns {
		for _, cf := range ciphers {
			for _, hf := range hashes {
				names = append(names, fmt.Sprintf("Noise_%s_%s_%s_%s",
					pattern.Name, crypto.DH25519.Name(), cf.Name(), hf.Name()))
			}
		}
	}
	return names
}

// Config collects everything needed to construct and start a handshake.
// Key material required by the pattern for the configured party must be
// present; optional material (a pre-shared key for a non-psk pattern, a
// remote static for NN) is rejected.
type Config struct {
	// Protocol is the full protocol name, e.g.
	// "Noise_IK_25519_ChaChaPoly_SHA256".
	Protocol string

	// Party selects the local role.
	Party Party

	// Prologue is optional data both parties must agree on, bound into
	// the transcript before the first message.
	Prologue []byte

	// StaticKeyPair is the local long-term identity key. Required by
	// patterns that authenticate this party.
	StaticKeyPair *crypto.KeyPair

	// RemoteStaticKey is the peer's long-term public key. Required by
	// patterns where this party must know it ahead of time (IK initiator).
	RemoteStaticKey []byte

	// PreSharedKey is the 32-byte symmetric key for psk patterns.
	PreSharedKey []byte

	// EphemeralKeyPair overrides ephemeral generation with a fixed key.
	// Test vectors only; production handshakes must leave this nil.
	EphemeralKeyPair *crypto.KeyPair

	// Random sources ephemeral keys. Defaults to crypto/rand.
	Random io.Reader
}

// NewHandshakeState builds a handshake from a Config, validates the
// pattern's key requirements for the configured party, and starts it.
// Fallback patterns are the exception: they are returned unstarted and the
// caller completes setup with StartFallback, supplying the failed
// handshake whose ephemerals carry over.
func NewHandshakeState(cfg Config) (*HandshakeState, error) {
	proto, err := LookupProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	hs := newHandshakeState(proto.Pattern, proto.Suite, proto.Name, cfg.Random)

	flags := proto.Pattern.InitiatorFlags
	if cfg.Party == Responder {
		flags = proto.Pattern.ResponderFlags
	}

	if flags&NeedsLocalStatic != 0 && cfg.StaticKeyPair == nil {
		return nil, fmt.Errorf("%w: %s requires a local static key", ErrMissingKeyMaterial, proto.Name)
	}
	if flags&NeedsRemoteStatic != 0 && cfg.RemoteStaticKey == nil {
		return nil, fmt.Errorf("%w: %s %s requires the remote static key", ErrMissingKeyMaterial, proto.Name, cfg.Party)
	}
	if flags&NeedsPSK != 0 && cfg.PreSharedKey == nil {
		return nil, fmt.Errorf("%w: %s requires a pre-shared key", ErrMissingKeyMaterial, proto.Name)
	}

	if cfg.StaticKeyPair != nil {
		if err := setKeyPair(hs, LocalStaticKeyPair, cfg.StaticKeyPair); err != nil {
			return nil, err
		}
	}
	if cfg.RemoteStaticKey != nil {
		if err := hs.SetParameter(RemoteStaticPublicKey, cfg.RemoteStaticKey); err != nil {
			return nil, err
		}
	}
	if cfg.PreSharedKey != nil {
		if err := hs.SetParameter(PreSharedKey, cfg.PreSharedKey); err != nil {
			return nil, err
		}
	}

	if proto.Pattern.Fallback {
		// Started via StartFallback once the failed handshake's ephemerals
		// are available; setting ephemerals here would be discarded.
		if cfg.EphemeralKeyPair != nil {
			return nil, fmt.Errorf("%w: fallback patterns take ephemerals from the failed handshake", ErrUnknownParameter)
		}
		return hs, nil
	}

	hs.Start(cfg.Party, cfg.Prologue)

	// Start clears session keys, so a fixed ephemeral is installed after.
	if cfg.EphemeralKeyPair != nil {
		if err := setKeyPair(hs, LocalEphemeralKeyPair, cfg.EphemeralKeyPair); err != nil {
			return nil, err
		}
	}
	return hs, nil
}

// setKeyPair installs a key pair in the private-then-public wire layout the
// parameter interface expects, wiping the intermediate buffer.
func setKeyPair(hs *HandshakeState, id Parameter, kp *crypto.KeyPair) error {
	buf := make([]byte, 0, 2*crypto.DHKeySize)
	buf = append(buf, kp.Private[:]...)
	buf = append(buf, kp.Public[:]...)
	err := hs.SetParameter(id, buf)
	crypto.ZeroBytes(buf)
	return err
}
