package link

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/noiselink/noise"
)

// Client performs the initiator side of the handshake on conn and returns
// the established session. The first configured protocol is attempted; if
// the server answers with the configured fallback protocol instead, the
// handshake continues under it, reusing the ephemeral key already sent.
//
// conn deadlines are the caller's responsibility; Client blocks until the
// handshake completes or the connection fails.
func Client(conn net.Conn, opts *Options) (*Session, error) {
	return handshake(conn, opts, noise.Initiator)
}

// Server performs the responder side of the handshake on conn. The client's
// protocol-index byte selects which configured protocol to run. If the
// first message fails to decrypt and a fallback protocol is configured, the
// server switches to it instead of dropping the connection, announcing the
// switch through the index byte of its reply.
func Server(conn net.Conn, opts *Options) (*Session, error) {
	return handshake(conn, opts, noise.Responder)
}

func handshake(conn net.Conn, opts *Options, party noise.Party) (session *Session, err error) {
	bufferSize, err := opts.validate()
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "handshake",
		"status":   StatusConnecting.String(),
		"remote":   conn.RemoteAddr(),
	}).Debug("Handshake starting")
	defer func() {
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handshake",
				"status":   StatusHandshakeFailed.String(),
				"remote":   conn.RemoteAddr(),
			}).Debug("Handshake failed")
		}
	}()

	index := 0
	var hs *noise.HandshakeState
	if party == noise.Initiator {
		proto, err := noise.LookupProtocol(opts.Protocols[0])
		if err != nil {
			return nil, err
		}
		if proto.Pattern.Fallback {
			return nil, fmt.Errorf("%w: cannot initiate with fallback protocol %s", ErrProtocolMismatch, proto.Name)
		}
		if hs, err = opts.newHandshake(0, party); err != nil {
			return nil, err
		}
	}

	frame := make([]byte, bufferSize)
	payload := make([]byte, bufferSize)

	for {
		// The responder builds its handshake lazily, from the protocol
		// index on the client's first frame.
		if hs == nil {
			n, err := readFrame(conn, frame)
			if err != nil {
				return nil, err
			}
			if n < 1 {
				return nil, fmt.Errorf("%w: empty handshake frame", noise.ErrHandshakeFailed)
			}
			index = int(frame[0])
			if hs, err = opts.newHandshake(index, party); err != nil {
				return nil, err
			}
			hs, index, err = serverRead(hs, index, opts, payload, frame[1:n], true)
			if err != nil {
				return nil, err
			}
			continue
		}

		switch hs.State() {
		case noise.StateWrite:
			n, err := hs.WriteMessage(frame[1:], nil)
			if err != nil {
				return nil, err
			}
			frame[0] = byte(index)
			if err := writeFrame(conn, frame[:1+n]); err != nil {
				return nil, err
			}

		case noise.StateRead:
			n, err := readFrame(conn, frame)
			if err != nil {
				return nil, err
			}
			if n < 1 {
				return nil, fmt.Errorf("%w: empty handshake frame", noise.ErrHandshakeFailed)
			}
			got := int(frame[0])
			if got != index {
				if hs, index, err = clientFallback(hs, index, got, opts, party); err != nil {
					return nil, err
				}
			}
			if party == noise.Responder {
				hs, index, err = serverRead(hs, index, opts, payload, frame[1:n], false)
				if err != nil {
					return nil, err
				}
			} else if _, err := hs.ReadMessage(payload, frame[1:n]); err != nil {
				return nil, err
			}

		case noise.StateSplit:
			return newSession(conn, hs, opts, bufferSize)

		default:
			return nil, noise.ErrInvalidState
		}
	}
}

// serverRead consumes one handshake message as the responder. If the
// client's opening message fails to decrypt and a fallback protocol is
// configured, the failed handshake's ephemerals seed a fallback handshake
// whose first write announces the switch; any other failure is fatal.
func serverRead(hs *noise.HandshakeState, index int, opts *Options, payload, msg []byte, opening bool) (*noise.HandshakeState, int, error) {
	if _, err := hs.ReadMessage(payload, msg); err != nil {
		fb := opts.fallbackIndex()
		if !opening || fb < 0 || fb == index {
			return nil, 0, err
		}
		fallback, fbErr := opts.newHandshake(fb, noise.Responder)
		if fbErr != nil {
			return nil, 0, fbErr
		}
		if fbErr := fallback.StartFallback(hs, noise.Responder, opts.Prologue); fbErr != nil {
			return nil, 0, fbErr
		}
		hs.Clear()

		logrus.WithFields(logrus.Fields{
			"function": "serverRead",
			"from":     opts.Protocols[index],
			"to":       opts.Protocols[fb],
		}).Debug("Handshake falling back")
		return fallback, fb, nil
	}
	return hs, index, nil
}

// clientFallback switches the initiator to the protocol the server
// selected. Only a switch to the configured fallback protocol is accepted.
func clientFallback(hs *noise.HandshakeState, index, got int, opts *Options, party noise.Party) (*noise.HandshakeState, int, error) {
	fb := opts.fallbackIndex()
	if party != noise.Initiator || got != fb || got == index {
		return nil, 0, fmt.Errorf("%w: peer switched to protocol index %d", ErrProtocolMismatch, got)
	}
	fallback, err := opts.newHandshake(fb, party)
	if err != nil {
		return nil, 0, err
	}
	if err := fallback.StartFallback(hs, party, opts.Prologue); err != nil {
		return nil, 0, err
	}
	hs.Clear()

	logrus.WithFields(logrus.Fields{
		"function": "clientFallback",
		"from":     opts.Protocols[index],
		"to":       opts.Protocols[fb],
	}).Debug("Handshake falling back")
	return fallback, fb, nil
}
