package link

import (
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/noiselink/crypto"
	"github.com/opd-ai/noiselink/keyring"
	"github.com/opd-ai/noiselink/noise"
)

// Padding selects how transport messages are padded before encryption.
// Padding hides message lengths from a network observer at the cost of
// bandwidth: every padded frame is the full buffer size.
type Padding int

const (
	// PaddingNone transmits messages at their natural length.
	PaddingNone Padding = iota
	// PaddingZero pads every message to the buffer size with zero bytes.
	PaddingZero
	// PaddingRandom pads every message to the buffer size with random
	// bytes.
	PaddingRandom
)

// Message buffer limits in bytes. The buffer size bounds the largest frame
// a link will send or accept, including the AEAD tag and the inner length
// prefix.
const (
	MinBufferSize     = 128
	MaxBufferSize     = 2048
	DefaultBufferSize = 512
)

var (
	// ErrNoProtocols indicates an Options with an empty protocol list.
	ErrNoProtocols = errors.New("no protocols configured")

	// ErrMessageTooLarge indicates a payload that does not fit the
	// negotiated buffer size.
	ErrMessageTooLarge = errors.New("message exceeds buffer size")

	// ErrFrameTooLarge indicates an incoming frame larger than the buffer
	// size. The connection is unusable afterwards since the frame cannot
	// be consumed.
	ErrFrameTooLarge = errors.New("incoming frame exceeds buffer size")

	// ErrProtocolMismatch indicates the peer selected a protocol this end
	// does not offer, or switched protocols in a way the negotiation rules
	// do not allow.
	ErrProtocolMismatch = errors.New("peer selected an unsupported protocol")

	// ErrSessionClosed indicates use of a session after Close.
	ErrSessionClosed = errors.New("session is closed")
)

// Options configures one end of a link. The zero value is not usable; at
// minimum Protocols must name one protocol.
type Options struct {
	// Protocols lists full protocol names in preference order. The first
	// entry is attempted initially; a fallback-pattern entry later in the
	// list is used only through negotiation after the first attempt fails.
	Protocols []string

	// StaticKeyPair is the local identity key, required by protocols that
	// authenticate this end.
	StaticKeyPair *crypto.KeyPair

	// RemoteStaticKey is the peer's identity key for protocols that need
	// it ahead of time.
	RemoteStaticKey []byte

	// PreSharedKey is the symmetric key for psk protocols.
	PreSharedKey []byte

	// Prologue is bound into every handshake's transcript.
	Prologue []byte

	// BufferSize bounds frame sizes, clamped to [MinBufferSize,
	// MaxBufferSize]. Zero selects DefaultBufferSize.
	BufferSize int

	// Padding selects transport message padding.
	Padding Padding

	// Random sources ephemeral keys and random padding. Defaults to
	// crypto/rand.
	Random io.Reader
}

// validate checks the protocol list and resolves the effective buffer size.
func (o *Options) validate() (int, error) {
	if len(o.Protocols) == 0 {
		return 0, ErrNoProtocols
	}
	for _, name := range o.Protocols {
		if _, err := noise.LookupProtocol(name); err != nil {
			return 0, err
		}
	}
	size := o.BufferSize
	switch {
	case size == 0:
		size = DefaultBufferSize
	case size < MinBufferSize:
		size = MinBufferSize
	case size > MaxBufferSize:
		size = MaxBufferSize
	}
	return size, nil
}

// newHandshake builds a handshake for the protocol at index. Fallback
// protocols come back unstarted, ready for StartFallback.
func (o *Options) newHandshake(index int, party noise.Party) (*noise.HandshakeState, error) {
	if index < 0 || index >= len(o.Protocols) {
		return nil, fmt.Errorf("%w: protocol index %d", ErrProtocolMismatch, index)
	}
	return noise.NewHandshakeState(noise.Config{
		Protocol:        o.Protocols[index],
		Party:           party,
		Prologue:        o.Prologue,
		StaticKeyPair:   o.StaticKeyPair,
		RemoteStaticKey: o.RemoteStaticKey,
		PreSharedKey:    o.PreSharedKey,
		Random:          o.Random,
	})
}

// fallbackIndex returns the index of the first fallback-pattern protocol in
// the list, or -1 if none is configured.
func (o *Options) fallbackIndex() int {
	for i, name := range o.Protocols {
		if p, err := noise.LookupProtocol(name); err == nil && p.Pattern.Fallback {
			return i
		}
	}
	return -1
}

// LoadStaticKey fills StaticKeyPair from a key ring record.
func (o *Options) LoadStaticKey(ring *keyring.Ring, id uint16) error {
	typ, value, err := ring.Get(id)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(value)
	if typ != keyring.TypeKeyPair {
		return fmt.Errorf("record %d holds %s, want %s", id, typ, keyring.TypeKeyPair)
	}
	kp := &crypto.KeyPair{}
	copy(kp.Private[:], value[:crypto.DHKeySize])
	copy(kp.Public[:], value[crypto.DHKeySize:])
	o.StaticKeyPair = kp
	return nil
}

// SaveStaticKey stores StaticKeyPair in a key ring record.
func (o *Options) SaveStaticKey(ring *keyring.Ring, id uint16) error {
	if o.StaticKeyPair == nil {
		return errors.New("no static key to save")
	}
	value := make([]byte, 2*crypto.DHKeySize)
	copy(value, o.StaticKeyPair.Private[:])
	copy(value[crypto.DHKeySize:], o.StaticKeyPair.Public[:])
	err := ring.Put(id, keyring.TypeKeyPair, value)
	crypto.ZeroBytes(value)
	return err
}

// LoadRemoteKey fills RemoteStaticKey from a key ring record.
func (o *Options) LoadRemoteKey(ring *keyring.Ring, id uint16) error {
	typ, value, err := ring.Get(id)
	if err != nil {
		return err
	}
	if typ != keyring.TypePublicKey {
		crypto.ZeroBytes(value)
		return fmt.Errorf("record %d holds %s, want %s", id, typ, keyring.TypePublicKey)
	}
	o.RemoteStaticKey = value
	return nil
}

// LoadPreSharedKey fills PreSharedKey from a key ring record.
func (o *Options) LoadPreSharedKey(ring *keyring.Ring, id uint16) error {
	typ, value, err := ring.Get(id)
	if err != nil {
		return err
	}
	if typ != keyring.TypeSymmetric {
		crypto.ZeroBytes(value)
		return fmt.Errorf("record %d holds %s, want %s", id, typ, keyring.TypeSymmetric)
	}
	o.PreSharedKey = value
	return nil
}
