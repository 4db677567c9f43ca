package noise

// Token is an atomic handshake step with a fixed cryptographic meaning.
// Two-key tokens are written from the initiator's perspective, as in the
// framework specification; the engine swaps es/se for the responder.
type Token string

const (
	TokenE   Token = "e"
	TokenS   Token = "s"
	TokenEE  Token = "ee"
	TokenES  Token = "es"
	TokenSE  Token = "se"
	TokenSS  Token = "ss"
	TokenPSK Token = "psk"
)

// PreMessage names a public key that both parties know before the handshake
// starts and that must be bound into the transcript even though it is never
// transmitted in the session.
type PreMessage struct {
	// Initiator is true if the key belongs to the initiator.
	Initiator bool
	// Token is TokenE or TokenS.
	Token Token
}

// Pattern key-requirement flags, evaluated per party before a handshake
// object is constructed.
const (
	NeedsLocalStatic uint8 = 1 << iota
	NeedsRemoteStatic
	NeedsPSK
)

// Pattern is a handshake pattern expressed as data: an ordered list of
// per-message token scripts interpreted by the generic token engine, plus
// the premessages and per-role key requirements. Messages alternate writer
// starting with the initiator, or with the responder when ResponderFirst is
// set (fallback patterns).
type Pattern struct {
	Name string

	PreMessages []PreMessage
	Messages    [][]Token

	// ResponderFirst marks patterns whose first wire message is written
	// by the responder (XXfallback).
	ResponderFirst bool

	// Fallback marks patterns started with StartFallback, which reuse
	// ephemeral keys from a previous failed handshake instead of clearing
	// them.
	Fallback bool

	// EphemeralOnly marks patterns that never touch static keys, allowing
	// the smaller ephemeral-only DH state.
	EphemeralOnly bool

	InitiatorFlags uint8
	ResponderFlags uint8
}

// hasPSK reports whether any message script contains a psk token. In psk
// handshakes the e token additionally mixes the ephemeral public key into
// the chaining key.
func (p *Pattern) hasPSK() bool {
	for _, msg := range p.Messages {
		for _, t := range msg {
			if t == TokenPSK {
				return true
			}
		}
	}
	return false
}

// discoversRemoteStatic reports whether the remote static key is learned
// during the handshake, in which case any stale value is cleared at Start.
func (p *Pattern) discoversRemoteStatic(party Party) bool {
	writerIsInitiator := !p.ResponderFirst
	for _, msg := range p.Messages {
		if writerIsInitiator != (party == Initiator) {
			for _, t := range msg {
				if t == TokenS {
					return true
				}
			}
		}
		writerIsInitiator = !writerIsInitiator
	}
	return false
}

// PatternNN performs an unauthenticated ephemeral-ephemeral exchange:
//
//	-> e
//	<- e, ee
var PatternNN = &Pattern{
	Name: "NN",
	Messages: [][]Token{
		{TokenE},
		{TokenE, TokenEE},
	},
	EphemeralOnly: true,
}

// PatternXX mutually authenticates both parties, exchanging their static
// keys during the handshake:
//
//	-> e
//	<- e, ee, s, es
//	-> s, se
var PatternXX = &Pattern{
	Name: "XX",
	Messages: [][]Token{
		{TokenE},
		{TokenE, TokenEE, TokenS, TokenES},
		{TokenS, TokenSE},
	},
	InitiatorFlags: NeedsLocalStatic,
	ResponderFlags: NeedsLocalStatic,
}

// PatternIK mutually authenticates both parties when the initiator already
// knows the responder's static key:
//
//	<- s
//	...
//	-> e, es, s, ss
//	<- e, ee, se
//
// If the responder's key has changed the first message fails to decrypt and
// the application should fall back to XXfallback to discover the new key.
var PatternIK = &Pattern{
	Name: "IK",
	PreMessages: []PreMessage{
		{Initiator: false, Token: TokenS},
	},
	Messages: [][]Token{
		{TokenE, TokenES, TokenS, TokenSS},
		{TokenE, TokenEE, TokenSE},
	},
	InitiatorFlags: NeedsLocalStatic | NeedsRemoteStatic,
	ResponderFlags: NeedsLocalStatic,
}

// PatternNNpsk0 replaces static-key authentication with a pre-shared
// symmetric key:
//
//	-> psk, e
//	<- e, ee
var PatternNNpsk0 = &Pattern{
	Name: "NNpsk0",
	Messages: [][]Token{
		{TokenPSK, TokenE},
		{TokenE, TokenEE},
	},
	EphemeralOnly:  true,
	InitiatorFlags: NeedsPSK,
	ResponderFlags: NeedsPSK,
}

// PatternXXfallback recovers from a failed IK handshake: the IK first
// message's ephemeral key becomes a premessage and the responder writes
// first, transmitting its new static key:
//
//	-> e
//	...
//	<- e, ee, s, es
//	-> s, se
var PatternXXfallback = &Pattern{
	Name: "XXfallback",
	PreMessages: []PreMessage{
		{Initiator: true, Token: TokenE},
	},
	Messages: [][]Token{
		{TokenE, TokenEE, TokenS, TokenES},
		{TokenS, TokenSE},
	},
	ResponderFirst: true,
	Fallback:       true,
	InitiatorFlags: NeedsLocalStatic,
	ResponderFlags: NeedsLocalStatic,
}

// Patterns lists every handshake pattern known to the engine.
var Patterns = []*Pattern{
	PatternNN,
	PatternXX,
	PatternIK,
	PatternNNpsk0,
	PatternXXfallback,
}
