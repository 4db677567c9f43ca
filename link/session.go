package link

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/noiselink/crypto"
	"github.com/opd-ai/noiselink/noise"
)

// frameHeaderSize is the 2-byte big-endian length prefix on every frame.
const frameHeaderSize = 2

// writeFrame sends one length-prefixed frame. The write is synchronous; no
// internal queueing or buffering happens behind the caller's back.
func writeFrame(w io.Writer, body []byte) error {
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}

// readFrame receives one frame into buf and returns its length. Frames
// larger than buf poison the stream and fail with ErrFrameTooLarge.
func readFrame(r io.Reader, buf []byte) (int, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("failed to read frame header: %w", err)
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n > len(buf) {
		return 0, ErrFrameTooLarge
	}
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return 0, fmt.Errorf("failed to read frame body: %w", err)
	}
	return n, nil
}

// Session is an established link. Write and Read exchange one encrypted
// message per call, preserving message boundaries like a datagram socket;
// they are individually serialized, so one writer and one reader may
// operate concurrently.
type Session struct {
	conn net.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex
	send    *noise.CipherState
	recv    *noise.CipherState

	statusMu sync.Mutex
	status   Status

	protocol       string
	remoteStatic   []byte
	channelBinding []byte

	bufferSize int
	padding    Padding
	random     io.Reader
}

func newSession(conn net.Conn, hs *noise.HandshakeState, opts *Options, bufferSize int) (*Session, error) {
	send, recv, err := hs.Split()
	if err != nil {
		return nil, err
	}
	binding, err := hs.HandshakeHash()
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:           conn,
		status:         StatusConnected,
		send:           send,
		recv:           recv,
		protocol:       hs.ProtocolName(),
		channelBinding: binding,
		bufferSize:     bufferSize,
		padding:        opts.Padding,
		random:         opts.Random,
	}
	if s.random == nil {
		s.random = rand.Reader
	}
	if hs.HasParameter(noise.RemoteStaticPublicKey) {
		s.remoteStatic, err = hs.Parameter(noise.RemoteStaticPublicKey)
		if err != nil {
			return nil, err
		}
	}
	hs.Clear()

	logrus.WithFields(logrus.Fields{
		"function": "newSession",
		"protocol": s.protocol,
		"remote":   conn.RemoteAddr(),
	}).Info("Link established")

	return s, nil
}

// MaxPayload returns the largest message Write accepts, determined by the
// buffer size minus framing and AEAD overhead.
func (s *Session) MaxPayload() int {
	return s.bufferSize - crypto.TagSize - frameHeaderSize
}

// Protocol returns the negotiated protocol name.
func (s *Session) Protocol() string { return s.protocol }

// RemoteStatic returns the peer's static public key, or nil for
// unauthenticated protocols.
func (s *Session) RemoteStatic() []byte { return s.remoteStatic }

// ChannelBinding returns the handshake transcript hash, a value both ends
// share and nobody else can compute.
func (s *Session) ChannelBinding() []byte { return s.channelBinding }

// Status reports the session's lifecycle state.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Write encrypts data and sends it as one frame, flushing before returning.
// The plaintext carries an inner length prefix so padding can be stripped
// by the receiver.
func (s *Session) Write(data []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.send == nil {
		return 0, ErrSessionClosed
	}
	if len(data) > s.MaxPayload() {
		return 0, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), s.MaxPayload())
	}

	inner := frameHeaderSize + len(data)
	if s.padding != PaddingNone {
		inner = s.bufferSize - crypto.TagSize
	}
	plaintext := make([]byte, inner)
	defer crypto.ZeroBytes(plaintext)

	binary.BigEndian.PutUint16(plaintext, uint16(len(data)))
	copy(plaintext[frameHeaderSize:], data)
	if s.padding == PaddingRandom {
		if _, err := io.ReadFull(s.random, plaintext[frameHeaderSize+len(data):]); err != nil {
			return 0, fmt.Errorf("failed to generate padding: %w", err)
		}
	}

	ciphertext := make([]byte, inner+crypto.TagSize)
	n, err := s.send.EncryptPacket(ciphertext, plaintext)
	if err != nil {
		return 0, err
	}
	if err := writeFrame(s.conn, ciphertext[:n]); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Read receives one frame, decrypts it, and copies the message into p. A
// message larger than p is dropped and an error returned; size p to
// MaxPayload to never lose data.
func (s *Session) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.recv == nil {
		return 0, ErrSessionClosed
	}

	frame := make([]byte, s.bufferSize)
	n, err := readFrame(s.conn, frame)
	if err != nil {
		return 0, err
	}

	plaintext := make([]byte, n)
	defer crypto.ZeroBytes(plaintext)
	m, err := s.recv.DecryptPacket(plaintext, frame[:n])
	if err != nil {
		return 0, err
	}
	if m < frameHeaderSize {
		return 0, fmt.Errorf("%w: message missing length prefix", noise.ErrHandshakeFailed)
	}
	length := int(binary.BigEndian.Uint16(plaintext))
	if length > m-frameHeaderSize {
		return 0, fmt.Errorf("inner length %d exceeds message size %d", length, m-frameHeaderSize)
	}
	if length > len(p) {
		return 0, noise.ErrBufferTooSmall
	}
	copy(p, plaintext[frameHeaderSize:frameHeaderSize+length])
	return length, nil
}

// RekeySend ratchets the sending key. The peer must call RekeyRecv at the
// agreed point or subsequent traffic fails to authenticate.
func (s *Session) RekeySend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.send == nil {
		return ErrSessionClosed
	}
	return s.send.Rekey()
}

// RekeyRecv ratchets the receiving key, mirroring the peer's RekeySend.
func (s *Session) RekeyRecv() error {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.recv == nil {
		return ErrSessionClosed
	}
	return s.recv.Rekey()
}

// Close wipes the transport keys and closes the underlying connection.
func (s *Session) Close() error {
	s.writeMu.Lock()
	s.readMu.Lock()
	defer s.writeMu.Unlock()
	defer s.readMu.Unlock()

	if s.send == nil && s.recv == nil {
		return nil
	}
	s.setStatus(StatusClosing)
	if s.send != nil {
		s.send.Clear()
		s.send = nil
	}
	if s.recv != nil {
		s.recv.Clear()
		s.recv = nil
	}
	err := s.conn.Close()
	s.setStatus(StatusClosed)
	return err
}
