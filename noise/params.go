package noise

// Party identifies which side of a handshake the local endpoint plays.
type Party uint8

const (
	// Initiator starts the handshake and writes the first message (except
	// in fallback patterns, where the roles carry over but the responder
	// writes first).
	Initiator Party = iota
	// Responder answers a handshake started by the remote party.
	Responder
)

// String returns the party name for logging.
func (p Party) String() string {
	switch p {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is the current state of a handshake object.
type State uint8

const (
	// StateWrite means the next operation is WriteMessage.
	StateWrite State = iota
	// StateRead means the next operation is ReadMessage.
	StateRead
	// StateSplit means the handshake is cryptographically complete and the
	// next operation is Split.
	StateSplit
	// StateFinished means Split has been called and transport keys exist.
	StateFinished
	// StateFailed is terminal: the handshake failed or was never started.
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateWrite:
		return "write"
	case StateRead:
		return "read"
	case StateSplit:
		return "split"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Parameter identifies a piece of key material on a handshake, DH state, or
// key storage collaborator. The same identifiers are used uniformly by all
// three, and are the sole channel through which external key storage or test
// harnesses inject key values.
type Parameter uint8

const (
	// LocalStaticKeyPair is the local long-term key pair, encoded as the
	// 32-byte private key followed by the 32-byte public key.
	LocalStaticKeyPair Parameter = iota + 1
	// LocalStaticPrivateKey is the local long-term private key. Setting it
	// derives and caches the public component.
	LocalStaticPrivateKey
	// LocalStaticPublicKey is the local long-term public key (read only;
	// it always tracks the private component).
	LocalStaticPublicKey
	// RemoteStaticPublicKey is the remote party's long-term public key,
	// either supplied ahead of time or discovered during the handshake.
	RemoteStaticPublicKey
	// PreSharedKey is the optional 32-byte pre-shared symmetric key
	// required by psk patterns.
	PreSharedKey

	// LocalEphemeralKeyPair is the local session key pair, private key
	// followed by public key. Normally generated internally; settable
	// ahead of time only by test harnesses.
	LocalEphemeralKeyPair
	// LocalEphemeralPrivateKey is the local session private key.
	LocalEphemeralPrivateKey
	// LocalEphemeralPublicKey is the local session public key (read only).
	LocalEphemeralPublicKey
	// RemoteEphemeralPublicKey is the remote party's session public key,
	// received during the handshake.
	RemoteEphemeralPublicKey
)

// String returns the parameter name for error messages and logging.
func (p Parameter) String() string {
	switch p {
	case LocalStaticKeyPair:
		return "local static key pair"
	case LocalStaticPrivateKey:
		return "local static private key"
	case LocalStaticPublicKey:
		return "local static public key"
	case RemoteStaticPublicKey:
		return "remote static public key"
	case PreSharedKey:
		return "pre-shared key"
	case LocalEphemeralKeyPair:
		return "local ephemeral key pair"
	case LocalEphemeralPrivateKey:
		return "local ephemeral private key"
	case LocalEphemeralPublicKey:
		return "local ephemeral public key"
	case RemoteEphemeralPublicKey:
		return "remote ephemeral public key"
	default:
		return "unknown parameter"
	}
}
