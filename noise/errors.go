package noise

import "errors"

var (
	// ErrInvalidState indicates an operation was called while the
	// handshake was in the wrong state, e.g. WriteMessage during
	// StateRead. The call is rejected without side effects.
	ErrInvalidState = errors.New("operation invalid for current handshake state")

	// ErrHandshakeFailed indicates a token could not be processed: a
	// required key was missing, a received message did not parse into the
	// expected token layout, or an AEAD tag check failed. The handshake is
	// permanently dead; discard it and start a fresh one.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrBufferTooSmall indicates the supplied output buffer cannot hold
	// the formatted message or decrypted payload.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrUnknownParameter indicates a parameter id not supported by the
	// handshake or DH state it was used with.
	ErrUnknownParameter = errors.New("unknown or unsupported parameter")

	// ErrParameterSize indicates key material of the wrong length.
	ErrParameterSize = errors.New("invalid parameter size")

	// ErrParameterNotSet indicates a parameter was requested before a
	// value was set for it.
	ErrParameterNotSet = errors.New("parameter has not been set")

	// ErrUnknownProtocol indicates a protocol name with no registered
	// descriptor.
	ErrUnknownProtocol = errors.New("unknown Noise protocol name")

	// ErrMissingKeyMaterial indicates construction was attempted without
	// the key material the pattern requires for the chosen party.
	ErrMissingKeyMaterial = errors.New("missing key material required by handshake pattern")

	// ErrNonceExhausted indicates the 64-bit transport nonce space is
	// spent; the session must rekey or rehandshake.
	ErrNonceExhausted = errors.New("cipher nonce space exhausted")

	// ErrCipherStateClosed indicates use of a cipher state after Clear.
	ErrCipherStateClosed = errors.New("cipher state has been cleared")

	// ErrNotFallbackPattern indicates StartFallback on a pattern that does
	// not support fallback.
	ErrNotFallbackPattern = errors.New("pattern does not support fallback")
)
