package noise

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/noiselink/crypto"
)

// PSKSize is the size of pre-shared keys in bytes.
const PSKSize = 32

// HandshakeState drives a fixed token script per handshake pattern and
// message number, invoking the DH state and symmetric state in the order
// the pattern mandates, and serializing the wire format of each handshake
// message.
//
// A handshake object is single-owner and sequential: WriteMessage and
// ReadMessage strictly alternate according to State, any failure is
// terminal, and an abandoned handshake should be scrubbed with Clear.
type HandshakeState struct {
	sym     *SymmetricState
	dh      DHState
	pattern *Pattern

	protocolName string
	party        Party
	state        State
	msgIdx       int

	psk     [PSKSize]byte
	havePSK bool

	random io.Reader
}

// packet tracks a position within a handshake message buffer while the
// token script runs over it.
type packet struct {
	data []byte
	posn int
}

func (p *packet) remaining() []byte {
	return p.data[p.posn:]
}

// newHandshakeState wires the component states together. Callers normally
// go through NewHandshakeState with a Config instead.
func newHandshakeState(pattern *Pattern, suite Suite, protocolName string, random io.Reader) *HandshakeState {
	var dh DHState
	if pattern.EphemeralOnly {
		dh = NewEphemeralDHState(suite.DH)
	} else {
		dh = NewDHState(suite.DH)
	}
	if random == nil {
		random = rand.Reader
	}
	return &HandshakeState{
		sym:          NewSymmetricState(suite),
		dh:           dh,
		pattern:      pattern,
		protocolName: protocolName,
		state:        StateFailed,
		random:       random,
	}
}

// Party returns the local party's role.
func (hs *HandshakeState) Party() Party { return hs.party }

// State returns the current handshake state.
func (hs *HandshakeState) State() State { return hs.state }

// ProtocolName returns the full Noise protocol name, e.g.
// "Noise_XX_25519_ChaChaPoly_BLAKE2s".
func (hs *HandshakeState) ProtocolName() string { return hs.protocolName }

// Pattern returns the handshake pattern being executed.
func (hs *HandshakeState) Pattern() *Pattern { return hs.pattern }

// Start begins the handshake for the local party, resetting per-session key
// slots and priming the symmetric state with the protocol name and
// prologue. The initial state is StateWrite for the first writer and
// StateRead for its peer.
func (hs *HandshakeState) Start(party Party, prologue []byte) {
	hs.party = party
	hs.msgIdx = 0
	hs.removeSessionKeys()

	if hs.localWritesFirst(party) {
		hs.state = StateWrite
	} else {
		hs.state = StateRead
	}

	hs.sym.Initialize(hs.protocolName)
	hs.sym.MixPrologue(prologue)

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"protocol": hs.protocolName,
		"party":    party.String(),
	}).Debug("Handshake started")
}

// StartFallback begins a fallback handshake, reusing the ephemeral keys of
// a previous failed handshake as this pattern's premessage. The party roles
// carry over from the failed handshake: the IK initiator is the XXfallback
// initiator, even though the responder now writes first.
func (hs *HandshakeState) StartFallback(from *HandshakeState, party Party, prologue []byte) error {
	if !hs.pattern.Fallback {
		return ErrNotFallbackPattern
	}
	if from == nil || from == hs {
		hs.state = StateFailed
		return fmt.Errorf("%w: no previous handshake to fall back from", ErrHandshakeFailed)
	}
	if err := hs.dh.CopyEphemeralsFrom(from.dh); err != nil {
		hs.state = StateFailed
		return fmt.Errorf("fallback key transfer failed: %w", err)
	}
	hs.Start(party, prologue)
	return nil
}

// AddPrologue mixes additional prologue data into the transcript. Only
// valid between Start and the first WriteMessage or ReadMessage.
func (hs *HandshakeState) AddPrologue(prologue []byte) error {
	if hs.msgIdx != 0 || (hs.state != StateWrite && hs.state != StateRead) {
		return ErrInvalidState
	}
	hs.sym.MixPrologue(prologue)
	return nil
}

// SetParameter installs key material on the handshake. The pre-shared key
// is held by the handshake itself; all other parameters pass through to the
// DH state.
func (hs *HandshakeState) SetParameter(id Parameter, value []byte) error {
	if id == PreSharedKey {
		if !hs.pattern.hasPSK() {
			return fmt.Errorf("%w: %s not used by pattern %s", ErrUnknownParameter, id, hs.pattern.Name)
		}
		if len(value) != PSKSize {
			return fmt.Errorf("%w: %s must be %d bytes", ErrParameterSize, id, PSKSize)
		}
		copy(hs.psk[:], value)
		hs.havePSK = true
		return nil
	}
	return hs.dh.SetParameter(id, value)
}

// Parameter returns a copy of a parameter's value.
func (hs *HandshakeState) Parameter(id Parameter) ([]byte, error) {
	if id == PreSharedKey {
		if !hs.havePSK {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotSet, id)
		}
		return copyBytes(hs.psk[:]), nil
	}
	return hs.dh.Parameter(id)
}

// HasParameter reports whether a parameter has a value.
func (hs *HandshakeState) HasParameter(id Parameter) bool {
	if id == PreSharedKey {
		return hs.havePSK
	}
	return hs.dh.HasParameter(id)
}

// RemoveParameter erases a parameter.
func (hs *HandshakeState) RemoveParameter(id Parameter) {
	if id == PreSharedKey {
		crypto.ZeroBytes(hs.psk[:])
		hs.havePSK = false
		return
	}
	hs.dh.RemoveParameter(id)
}

// WriteMessage formats the next handshake message into output: it runs the
// current message's token script, then appends the encrypted (or, before
// any key exists, plaintext) application payload. Returns the number of
// bytes written.
//
// Any failure, including an undersized output buffer, transitions the
// handshake to StateFailed; size output for the pattern's message layout
// plus payload and tag before calling.
func (hs *HandshakeState) WriteMessage(output, payload []byte) (int, error) {
	if hs.state != StateWrite {
		return 0, ErrInvalidState
	}

	pkt := packet{data: output}
	if err := hs.runTokens(&pkt, true); err != nil {
		return 0, hs.fail("write", err)
	}
	n, err := hs.sym.EncryptAndHash(pkt.remaining(), payload)
	if err != nil {
		return 0, hs.fail("write", err)
	}
	pkt.posn += n

	hs.advance(StateRead)
	return pkt.posn, nil
}

// ReadMessage consumes the next handshake message from input, running the
// mirror token script and extracting the decrypted payload into the payload
// buffer. Returns the number of payload bytes written.
//
// A message that does not parse into the expected token layout, or whose
// AEAD tag fails to verify, fails the handshake permanently; the two cases
// are deliberately indistinguishable to the caller.
func (hs *HandshakeState) ReadMessage(payload, input []byte) (int, error) {
	if hs.state != StateRead {
		return 0, ErrInvalidState
	}

	pkt := packet{data: input}
	if err := hs.runTokens(&pkt, false); err != nil {
		return 0, hs.fail("read", err)
	}
	n, err := hs.sym.DecryptAndHash(payload, pkt.remaining())
	if err != nil {
		return 0, hs.fail("read", err)
	}

	hs.advance(StateWrite)
	return n, nil
}

// Split derives the two transport cipher states once the handshake is
// cryptographically complete. The send state encrypts traffic to the peer
// and the receive state decrypts traffic from it; the initiator's first
// derived key is its send key, the responder's is its receive key. Only
// HandshakeState knows about this role swap.
func (hs *HandshakeState) Split() (send, recv *CipherState, err error) {
	if hs.state != StateSplit {
		return nil, nil, ErrInvalidState
	}
	c1, c2 := hs.sym.Split()
	if hs.party == Initiator {
		send, recv = c1, c2
	} else {
		send, recv = c2, c1
	}
	hs.state = StateFinished

	logrus.WithFields(logrus.Fields{
		"function": "Split",
		"protocol": hs.protocolName,
		"party":    hs.party.String(),
	}).Debug("Handshake complete, transport keys derived")

	return send, recv, nil
}

// HandshakeHash returns the final transcript hash for channel binding. Only
// available once the handshake has completed (StateSplit or StateFinished).
func (hs *HandshakeState) HandshakeHash() ([]byte, error) {
	if hs.state != StateSplit && hs.state != StateFinished {
		return nil, ErrInvalidState
	}
	return hs.sym.HandshakeHash(), nil
}

// Clear securely erases all secret state owned by the handshake. Valid in
// any state; the object must be restarted with Start before reuse.
func (hs *HandshakeState) Clear() {
	hs.sym.Clear()
	hs.dh.Clear()
	crypto.ZeroBytes(hs.psk[:])
	hs.havePSK = false
	hs.state = StateFailed
	hs.msgIdx = 0
}

// localWritesFirst reports whether the local party writes message 0.
func (hs *HandshakeState) localWritesFirst(party Party) bool {
	if hs.pattern.ResponderFirst {
		return party == Responder
	}
	return party == Initiator
}

// removeSessionKeys clears key slots that must be generated or discovered
// during this handshake. Fallback patterns keep their ephemerals (they are
// the premessage); patterns that discover the remote static key clear any
// stale value.
func (hs *HandshakeState) removeSessionKeys() {
	if !hs.pattern.Fallback {
		hs.dh.RemoveParameter(LocalEphemeralKeyPair)
		hs.dh.RemoveParameter(RemoteEphemeralPublicKey)
	}
	if hs.pattern.discoversRemoteStatic(hs.party) {
		hs.dh.RemoveParameter(RemoteStaticPublicKey)
	}
}

// runTokens executes the token script for the current message, preceded by
// the pattern's premessages when this is message 0.
func (hs *HandshakeState) runTokens(pkt *packet, writing bool) error {
	if hs.msgIdx == 0 {
		if err := hs.runPreMessages(); err != nil {
			return err
		}
	}
	for _, token := range hs.pattern.Messages[hs.msgIdx] {
		var err error
		if writing {
			err = hs.writeToken(token, pkt)
		} else {
			err = hs.readToken(token, pkt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// runPreMessages hashes the public keys both parties know ahead of time
// into the transcript, in pattern order.
func (hs *HandshakeState) runPreMessages() error {
	for _, pre := range hs.pattern.PreMessages {
		local := pre.Initiator == (hs.party == Initiator)
		var id Parameter
		switch {
		case pre.Token == TokenE && local:
			id = LocalEphemeralPublicKey
		case pre.Token == TokenE && !local:
			id = RemoteEphemeralPublicKey
		case pre.Token == TokenS && local:
			id = LocalStaticPublicKey
		default:
			id = RemoteStaticPublicKey
		}
		if err := hs.dh.HashPublicKey(hs.sym, id); err != nil {
			return fmt.Errorf("premessage %s: %w", pre.Token, err)
		}
	}
	return nil
}

func (hs *HandshakeState) writeToken(token Token, pkt *packet) error {
	switch token {
	case TokenE:
		return hs.writeE(pkt)
	case TokenS:
		return hs.writeS(pkt)
	case TokenEE, TokenES, TokenSE, TokenSS:
		return hs.mixDH(token)
	case TokenPSK:
		return hs.mixPSK()
	default:
		return fmt.Errorf("%w: unknown token %q", ErrHandshakeFailed, token)
	}
}

func (hs *HandshakeState) readToken(token Token, pkt *packet) error {
	switch token {
	case TokenE:
		return hs.readE(pkt)
	case TokenS:
		return hs.readS(pkt)
	case TokenEE, TokenES, TokenSE, TokenSS:
		// DH and key mixing are symmetric between reader and writer.
		return hs.mixDH(token)
	case TokenPSK:
		return hs.mixPSK()
	default:
		return fmt.Errorf("%w: unknown token %q", ErrHandshakeFailed, token)
	}
}

// writeE generates (unless pre-supplied) and serializes the local ephemeral
// public key, hashing it into the transcript. In psk handshakes the key is
// additionally mixed into the chaining key.
func (hs *HandshakeState) writeE(pkt *packet) error {
	if err := hs.dh.GenerateEphemeralKeyPair(hs.random); err != nil {
		return err
	}
	pub, err := hs.dh.Parameter(LocalEphemeralPublicKey)
	if err != nil {
		return err
	}
	if len(pkt.remaining()) < len(pub) {
		return ErrBufferTooSmall
	}
	copy(pkt.remaining(), pub)
	hs.sym.MixHash(pub)
	if hs.pattern.hasPSK() {
		hs.sym.MixKey(pub)
	}
	pkt.posn += len(pub)
	return nil
}

// readE receives and validates the remote ephemeral public key.
func (hs *HandshakeState) readE(pkt *packet) error {
	n := hs.dh.ParameterSize(RemoteEphemeralPublicKey)
	if len(pkt.remaining()) < n {
		return fmt.Errorf("%w: truncated e token", ErrHandshakeFailed)
	}
	raw := pkt.remaining()[:n]
	if err := hs.dh.SetParameter(RemoteEphemeralPublicKey, raw); err != nil {
		return err
	}
	hs.sym.MixHash(raw)
	if hs.pattern.hasPSK() {
		hs.sym.MixKey(raw)
	}
	pkt.posn += n
	return nil
}

// writeS serializes the local static public key, encrypted once a key
// exists.
func (hs *HandshakeState) writeS(pkt *packet) error {
	// The application should have supplied the local static key before
	// the handshake started.
	if !hs.dh.HasParameter(LocalStaticPublicKey) {
		return fmt.Errorf("%w: %s", ErrMissingKeyMaterial, LocalStaticPublicKey)
	}
	pub, err := hs.dh.Parameter(LocalStaticPublicKey)
	if err != nil {
		return err
	}
	if len(pkt.remaining()) < len(pub) {
		return ErrBufferTooSmall
	}
	copy(pkt.remaining(), pub)
	n, err := hs.sym.EncryptAndHash(pkt.remaining(), pkt.remaining()[:len(pub)])
	if err != nil {
		return err
	}
	pkt.posn += n
	return nil
}

// readS receives, decrypts, and records the remote static public key.
func (hs *HandshakeState) readS(pkt *packet) error {
	n := hs.dh.ParameterSize(RemoteStaticPublicKey)
	full := n
	if hs.sym.HasKey() {
		full += crypto.TagSize
	}
	if len(pkt.remaining()) < full {
		return fmt.Errorf("%w: truncated s token", ErrHandshakeFailed)
	}
	buf := make([]byte, n)
	defer crypto.ZeroBytes(buf)
	if _, err := hs.sym.DecryptAndHash(buf, pkt.remaining()[:full]); err != nil {
		return err
	}
	if err := hs.dh.SetParameter(RemoteStaticPublicKey, buf); err != nil {
		return err
	}
	pkt.posn += full
	return nil
}

// mixDH performs the named DH combination and ratchets the chaining key
// with the result. es and se are swapped for the responder, since pattern
// tokens are written from the initiator's perspective.
func (hs *HandshakeState) mixDH(token Token) error {
	if err := hs.checkDHKeys(token); err != nil {
		return err
	}
	op := token
	if hs.party == Responder {
		switch token {
		case TokenES:
			op = TokenSE
		case TokenSE:
			op = TokenES
		}
	}

	shared := make([]byte, hs.dh.SharedKeySize())
	defer crypto.ZeroBytes(shared)

	var err error
	switch op {
	case TokenEE:
		err = hs.dh.EE(shared)
	case TokenES:
		err = hs.dh.ES(shared)
	case TokenSE:
		err = hs.dh.SE(shared)
	default:
		err = hs.dh.SS(shared)
	}
	if err != nil {
		return err
	}
	hs.sym.MixKey(shared)
	return nil
}

// checkDHKeys verifies the operands a DH token needs are present. The keys
// should have been provided ahead of time when the handshake started or
// received earlier in the message; the DH state itself does not check.
func (hs *HandshakeState) checkDHKeys(token Token) error {
	need := func(id Parameter) error {
		if !hs.dh.HasParameter(id) {
			return fmt.Errorf("%w: %s token needs %s", ErrMissingKeyMaterial, token, id)
		}
		return nil
	}
	initiator := hs.party == Initiator
	switch token {
	case TokenEE:
		if err := need(LocalEphemeralKeyPair); err != nil {
			return err
		}
		return need(RemoteEphemeralPublicKey)
	case TokenES:
		if initiator {
			return need(RemoteStaticPublicKey)
		}
		return need(LocalStaticPublicKey)
	case TokenSE:
		if initiator {
			return need(LocalStaticPublicKey)
		}
		return need(RemoteStaticPublicKey)
	default: // ss
		if err := need(LocalStaticPrivateKey); err != nil {
			return err
		}
		return need(RemoteStaticPublicKey)
	}
}

// mixPSK folds the pre-shared key into the chaining key and transcript.
func (hs *HandshakeState) mixPSK() error {
	if !hs.havePSK {
		return fmt.Errorf("%w: %s", ErrMissingKeyMaterial, PreSharedKey)
	}
	hs.sym.MixKeyAndHash(hs.psk[:])
	return nil
}

// advance moves to the next message, or to StateSplit after the final one.
func (hs *HandshakeState) advance(next State) {
	if hs.msgIdx == len(hs.pattern.Messages)-1 {
		hs.state = StateSplit
		return
	}
	hs.msgIdx++
	hs.state = next
}

// fail marks the handshake permanently failed.
func (hs *HandshakeState) fail(op string, err error) error {
	hs.state = StateFailed
	logrus.WithFields(logrus.Fields{
		"function": op,
		"protocol": hs.protocolName,
		"party":    hs.party.String(),
		"message":  hs.msgIdx,
		"error":    err.Error(),
	}).Debug("Handshake failed")
	return err
}
