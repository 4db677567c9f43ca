package noise

import (
	"fmt"
	"io"

	"github.com/opd-ai/noiselink/crypto"
)

// DHState owns the four Diffie-Hellman key slots of a handshake: local
// static, local ephemeral, remote static, and remote ephemeral. It performs
// the four DH combinations against the primitive DH collaborator and feeds
// key material into the transcript on request.
//
// Two implementations exist: NewDHState returns the full variant, and
// NewEphemeralDHState returns one restricted to ephemeral-only operation for
// patterns like NN that never touch static keys.
type DHState interface {
	// SetParameter installs key material in a slot. Setting a private key
	// derives and caches the paired public key; setting a key pair expects
	// the private key followed by the public key.
	SetParameter(id Parameter, value []byte) error

	// Parameter returns a copy of the value in a slot.
	Parameter(id Parameter) ([]byte, error)

	// ParameterSize returns the encoded size of a parameter, or 0 if the
	// parameter is not supported by this DH state.
	ParameterSize(id Parameter) int

	// HasParameter reports whether a slot holds a value.
	HasParameter(id Parameter) bool

	// RemoveParameter erases a slot. Unknown ids are ignored.
	RemoveParameter(id Parameter)

	// HashPublicKey mixes a stored public key into the symmetric state's
	// transcript without exposing the raw bytes to the caller.
	HashPublicKey(sym *SymmetricState, id Parameter) error

	// SharedKeySize returns the size of DH outputs in bytes.
	SharedKeySize() int

	// GenerateEphemeralKeyPair creates a fresh local ephemeral key pair
	// unless one was pre-supplied (a test-harness affordance).
	GenerateEphemeralKeyPair(random io.Reader) error

	// EE, ES, SE, and SS write the named DH combination into shared.
	// Callers must verify both operands are present first; that is a
	// precondition, not an internally checked invariant.
	EE(shared []byte) error
	ES(shared []byte) error
	SE(shared []byte) error
	SS(shared []byte) error

	// CopyEphemeralsFrom copies the local ephemeral key pair and remote
	// ephemeral public key (whichever are present) from another DH state,
	// for fallback handshakes that reuse a failed session's ephemerals.
	CopyEphemeralsFrom(other DHState) error

	// Clear erases all key material.
	Clear()
}

// ephemeralDHState implements DHState for ephemeral-only patterns, saving
// the memory of unused static-key storage.
type ephemeralDHState struct {
	df crypto.DHFunc

	lePriv []byte // local ephemeral private key
	lePub  []byte // local ephemeral public key
	re     []byte // remote ephemeral public key

	haveLocalEphemeral  bool
	haveRemoteEphemeral bool
}

// dhState extends ephemeralDHState with static key slots.
type dhState struct {
	ephemeralDHState

	lsPriv []byte // local static private key
	lsPub  []byte // local static public key
	rs     []byte // remote static public key

	haveLocalStatic  bool
	haveRemoteStatic bool
}

// NewDHState returns a DH state supporting both static and ephemeral keys.
func NewDHState(df crypto.DHFunc) DHState {
	n := df.DHLen()
	return &dhState{
		ephemeralDHState: ephemeralDHState{
			df:     df,
			lePriv: make([]byte, n),
			lePub:  make([]byte, n),
			re:     make([]byte, n),
		},
		lsPriv: make([]byte, n),
		lsPub:  make([]byte, n),
		rs:     make([]byte, n),
	}
}

// NewEphemeralDHState returns a DH state restricted to ephemeral keys.
func NewEphemeralDHState(df crypto.DHFunc) DHState {
	n := df.DHLen()
	return &ephemeralDHState{
		df:     df,
		lePriv: make([]byte, n),
		lePub:  make([]byte, n),
		re:     make([]byte, n),
	}
}

func (d *ephemeralDHState) SetParameter(id Parameter, value []byte) error {
	n := d.df.DHLen()
	switch id {
	case LocalEphemeralPrivateKey:
		if len(value) != n {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, n)
		}
		copy(d.lePriv, value)
		pub, err := d.df.PublicKey(d.lePriv)
		if err != nil {
			return err
		}
		copy(d.lePub, pub)
		d.haveLocalEphemeral = true
		return nil
	case LocalEphemeralKeyPair:
		if len(value) != 2*n {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, 2*n)
		}
		copy(d.lePriv, value[:n])
		copy(d.lePub, value[n:])
		d.haveLocalEphemeral = true
		return nil
	case RemoteEphemeralPublicKey:
		if len(value) != n {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, n)
		}
		copy(d.re, value)
		d.haveRemoteEphemeral = true
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
}

func (d *ephemeralDHState) Parameter(id Parameter) ([]byte, error) {
	switch id {
	case LocalEphemeralPrivateKey:
		if !d.haveLocalEphemeral {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(d.lePriv), nil
	case LocalEphemeralPublicKey:
		if !d.haveLocalEphemeral {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(d.lePub), nil
	case LocalEphemeralKeyPair:
		if !d.haveLocalEphemeral {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return append(copyBytes(d.lePriv), d.lePub...), nil
	case RemoteEphemeralPublicKey:
		if !d.haveRemoteEphemeral {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(d.re), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
}

func (d *ephemeralDHState) ParameterSize(id Parameter) int {
	switch id {
	case LocalEphemeralKeyPair:
		return 2 * d.df.DHLen()
	case LocalEphemeralPrivateKey, LocalEphemeralPublicKey, RemoteEphemeralPublicKey:
		return d.df.DHLen()
	default:
		return 0
	}
}

func (d *ephemeralDHState) HasParameter(id Parameter) bool {
	switch id {
	case LocalEphemeralKeyPair, LocalEphemeralPrivateKey, LocalEphemeralPublicKey:
		return d.haveLocalEphemeral
	case RemoteEphemeralPublicKey:
		return d.haveRemoteEphemeral
	default:
		return false
	}
}

func (d *ephemeralDHState) RemoveParameter(id Parameter) {
	switch id {
	case LocalEphemeralKeyPair, LocalEphemeralPrivateKey, LocalEphemeralPublicKey:
		crypto.ZeroBytes(d.lePriv)
		crypto.ZeroBytes(d.lePub)
		d.haveLocalEphemeral = false
	case RemoteEphemeralPublicKey:
		crypto.ZeroBytes(d.re)
		d.haveRemoteEphemeral = false
	}
}

func (d *ephemeralDHState) HashPublicKey(sym *SymmetricState, id Parameter) error {
	switch id {
	case LocalEphemeralPublicKey:
		if !d.haveLocalEphemeral {
			return fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		sym.MixHash(d.lePub)
		return nil
	case RemoteEphemeralPublicKey:
		if !d.haveRemoteEphemeral {
			return fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		sym.MixHash(d.re)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
}

func (d *ephemeralDHState) SharedKeySize() int { return d.df.DHLen() }

func (d *ephemeralDHState) GenerateEphemeralKeyPair(random io.Reader) error {
	// The ephemeral pair may have been provided ahead of time by a test
	// harness. Only create a new pair if we need one.
	if d.haveLocalEphemeral {
		return nil
	}
	kp, err := d.df.GenerateKeyPair(random)
	if err != nil {
		return err
	}
	copy(d.lePriv, kp.Private[:])
	copy(d.lePub, kp.Public[:])
	kp.Wipe()
	d.haveLocalEphemeral = true
	return nil
}

func (d *ephemeralDHState) EE(shared []byte) error {
	return d.dh(shared, d.lePriv, d.re)
}

func (d *ephemeralDHState) ES(shared []byte) error {
	return fmt.Errorf("%w: es token in ephemeral-only handshake", ErrUnknownParameter)
}

func (d *ephemeralDHState) SE(shared []byte) error {
	return fmt.Errorf("%w: se token in ephemeral-only handshake", ErrUnknownParameter)
}

func (d *ephemeralDHState) SS(shared []byte) error {
	return fmt.Errorf("%w: ss token in ephemeral-only handshake", ErrUnknownParameter)
}

func (d *ephemeralDHState) CopyEphemeralsFrom(other DHState) error {
	if other.HasParameter(LocalEphemeralKeyPair) {
		pair, err := other.Parameter(LocalEphemeralKeyPair)
		if err != nil {
			return err
		}
		err = d.SetParameter(LocalEphemeralKeyPair, pair)
		crypto.ZeroBytes(pair)
		if err != nil {
			return err
		}
	}
	if other.HasParameter(RemoteEphemeralPublicKey) {
		pub, err := other.Parameter(RemoteEphemeralPublicKey)
		if err != nil {
			return err
		}
		if err := d.SetParameter(RemoteEphemeralPublicKey, pub); err != nil {
			return err
		}
	}
	return nil
}

func (d *ephemeralDHState) Clear() {
	crypto.ZeroBytes(d.lePriv)
	crypto.ZeroBytes(d.lePub)
	crypto.ZeroBytes(d.re)
	d.haveLocalEphemeral = false
	d.haveRemoteEphemeral = false
}

func (d *ephemeralDHState) dh(shared, priv, pub []byte) error {
	out, err := d.df.DH(priv, pub)
	if err != nil {
		return err
	}
	copy(shared, out)
	crypto.ZeroBytes(out)
	return nil
}

func (d *dhState) SetParameter(id Parameter, value []byte) error {
	n := d.df.DHLen()
	switch id {
	case LocalStaticPrivateKey:
		if len(value) != n {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, n)
		}
		copy(d.lsPriv, value)
		pub, err := d.df.PublicKey(d.lsPriv)
		if err != nil {
			return err
		}
		copy(d.lsPub, pub)
		d.haveLocalStatic = true
		return nil
	case LocalStaticKeyPair:
		if len(value) != 2*n {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, 2*n)
		}
		copy(d.lsPriv, value[:n])
		copy(d.lsPub, value[n:])
		d.haveLocalStatic = true
		return nil
	case RemoteStaticPublicKey:
		if len(value) != n {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, n)
		}
		copy(d.rs, value)
		d.haveRemoteStatic = true
		return nil
	default:
		return d.ephemeralDHState.SetParameter(id, value)
	}
}

func (d *dhState) Parameter(id Parameter) ([]byte, error) {
	switch id {
	case LocalStaticPrivateKey:
		if !d.haveLocalStatic {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(d.lsPriv), nil
	case LocalStaticPublicKey:
		if !d.haveLocalStatic {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(d.lsPub), nil
	case LocalStaticKeyPair:
		if !d.haveLocalStatic {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return append(copyBytes(d.lsPriv), d.lsPub...), nil
	case RemoteStaticPublicKey:
		if !d.haveRemoteStatic {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(d.rs), nil
	default:
		return d.ephemeralDHState.Parameter(id)
	}
}

func (d *dhState) ParameterSize(id Parameter) int {
	switch id {
	case LocalStaticKeyPair:
		return 2 * d.df.DHLen()
	case LocalStaticPrivateKey, LocalStaticPublicKey, RemoteStaticPublicKey:
		return d.df.DHLen()
	default:
		return d.ephemeralDHState.ParameterSize(id)
	}
}

func (d *dhState) HasParameter(id Parameter) bool {
	switch id {
	case LocalStaticKeyPair, LocalStaticPrivateKey, LocalStaticPublicKey:
		return d.haveLocalStatic
	case RemoteStaticPublicKey:
		return d.haveRemoteStatic
	default:
		return d.ephemeralDHState.HasParameter(id)
	}
}

func (d *dhState) RemoveParameter(id Parameter) {
	switch id {
	case LocalStaticKeyPair, LocalStaticPrivateKey, LocalStaticPublicKey:
		crypto.ZeroBytes(d.lsPriv)
		crypto.ZeroBytes(d.lsPub)
		d.haveLocalStatic = false
	case RemoteStaticPublicKey:
		crypto.ZeroBytes(d.rs)
		d.haveRemoteStatic = false
	default:
		d.ephemeralDHState.RemoveParameter(id)
	}
}

func (d *dhState) HashPublicKey(sym *SymmetricState, id Parameter) error {
	switch id {
	case LocalStaticPublicKey:
		if !d.haveLocalStatic {
			return fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		sym.MixHash(d.lsPub)
		return nil
	case RemoteStaticPublicKey:
		if !d.haveRemoteStatic {
			return fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		sym.MixHash(d.rs)
		return nil
	default:
		return d.ephemeralDHState.HashPublicKey(sym, id)
	}
}

func (d *dhState) ES(shared []byte) error {
	return d.dh(shared, d.lePriv, d.rs)
}

func (d *dhState) SE(shared []byte) error {
	return d.dh(shared, d.lsPriv, d.re)
}

func (d *dhState) SS(shared []byte) error {
	return d.dh(shared, d.lsPriv, d.rs)
}

func (d *dhState) Clear() {
	d.ephemeralDHState.Clear()
	crypto.ZeroBytes(d.lsPriv)
	crypto.ZeroBytes(d.lsPub)
	crypto.ZeroBytes(d.rs)
	d.haveLocalStatic = false
	d.haveRemoteStatic = false
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
