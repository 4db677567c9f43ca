package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/noiselink/crypto"
)

// KeyType tags what kind of key a record holds.
type KeyType uint8

const (
	// TypeKeyPair is a Curve25519 key pair, stored private key first.
	TypeKeyPair KeyType = iota + 1
	// TypePublicKey is a bare remote public key.
	TypePublicKey
	// TypeSymmetric is a 32-byte pre-shared key.
	TypeSymmetric
)

func (t KeyType) String() string {
	switch t {
	case TypeKeyPair:
		return "keypair"
	case TypePublicKey:
		return "public-key"
	case TypeSymmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("KeyType(%d)", uint8(t))
	}
}

// valueSize returns the exact record size a type requires, or 0 for an
// unknown type.
func (t KeyType) valueSize() int {
	switch t {
	case TypeKeyPair:
		return 2 * crypto.DHKeySize
	case TypePublicKey, TypeSymmetric:
		return crypto.DHKeySize
	default:
		return 0
	}
}

var (
	// ErrKeyNotFound indicates no record exists under the requested id.
	ErrKeyNotFound = errors.New("key not found in ring")

	// ErrBadKeySize indicates a value whose length does not match its type.
	ErrBadKeySize = errors.New("key value has wrong size for its type")

	// ErrRingClosed indicates use of a ring after Close.
	ErrRingClosed = errors.New("keyring is closed")

	// ErrBadPassphrase indicates the ring file failed to authenticate,
	// either because the passphrase is wrong or the file is corrupted. The
	// two cases are indistinguishable.
	ErrBadPassphrase = errors.New("keyring decryption failed")
)

const (
	// pbkdf2Iterations hardens the passphrase against offline brute force.
	pbkdf2Iterations = 100000
	saltSize         = 32
	formatVersion    = 1

	ringFile = "keyring"
	saltFile = ".salt"
)

type record struct {
	typ   KeyType
	value []byte
}

// Ring is an open key ring. All methods are safe for concurrent use.
// Mutations are held in memory until Close, which flushes them to disk and
// wipes the in-memory copies.
type Ring struct {
	mu      sync.Mutex
	dir     string
	sealKey [32]byte
	records map[uint16]record
	dirty   bool
	closed  bool
}

// Open loads the ring stored in dir, creating an empty one if none exists.
// The passphrase is wiped before Open returns.
func Open(dir string, passphrase []byte) (*Ring, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keyring directory: %w", err)
	}

	r := &Ring{
		dir:     dir,
		records: make(map[uint16]record),
	}

	salt, err := r.loadOrGenerateSalt()
	if err != nil {
		return nil, err
	}

	derived := pbkdf2.Key(passphrase, salt, pbkdf2Iterations, 32, sha256.New)
	copy(r.sealKey[:], derived)
	crypto.ZeroBytes(derived)
	crypto.ZeroBytes(passphrase)

	if err := r.load(); err != nil {
		crypto.ZeroBytes(r.sealKey[:])
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"dir":      dir,
		"records":  len(r.records),
	}).Debug("Keyring opened")

	return r, nil
}

// Put stores a key under id, replacing any existing record. The value must
// be exactly the size the type requires; key pairs are the private key
// followed by the public key. The ring keeps its own copy.
func (r *Ring) Put(id uint16, typ KeyType, value []byte) error {
	want := typ.valueSize()
	if want == 0 {
		return fmt.Errorf("unknown key type %s", typ)
	}
	if len(value) != want {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrBadKeySize, typ, want, len(value))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRingClosed
	}
	if old, ok := r.records[id]; ok {
		crypto.ZeroBytes(old.value)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	r.records[id] = record{typ: typ, value: stored}
	r.dirty = true
	return nil
}

// Get returns a copy of the key stored under id along with its type.
func (r *Ring) Get(id uint16) (KeyType, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, nil, ErrRingClosed
	}
	rec, ok := r.records[id]
	if !ok {
		return 0, nil, fmt.Errorf("%w: id %d", ErrKeyNotFound, id)
	}
	out := make([]byte, len(rec.value))
	copy(out, rec.value)
	return rec.typ, out, nil
}

// Has reports whether a record exists under id.
func (r *Ring) Has(id uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	_, ok := r.records[id]
	return ok
}

// Remove erases the record under id. Removing an absent id is not an error.
func (r *Ring) Remove(id uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRingClosed
	}
	if rec, ok := r.records[id]; ok {
		crypto.ZeroBytes(rec.value)
		delete(r.records, id)
		r.dirty = true
	}
	return nil
}

// Ids returns the identifiers of all stored records, in no particular
// order.
func (r *Ring) Ids() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint16, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids
}

// Close flushes pending changes to disk and wipes all key material from
// memory. The ring is unusable afterwards; Close is idempotent.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	var saveErr error
	if r.dirty {
		saveErr = r.save()
	}

	for id, rec := range r.records {
		crypto.ZeroBytes(rec.value)
		delete(r.records, id)
	}
	crypto.ZeroBytes(r.sealKey[:])
	r.closed = true

	if saveErr != nil {
		return fmt.Errorf("failed to save keyring: %w", saveErr)
	}
	return nil
}

// Flush writes pending changes without closing the ring.
func (r *Ring) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRingClosed
	}
	if !r.dirty {
		return nil
	}
	return r.save()
}

func (r *Ring) loadOrGenerateSalt() ([]byte, error) {
	path := filepath.Join(r.dir, saltFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != saltSize {
			return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), saltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

// load reads and decrypts the ring file. A missing file is an empty ring.
func (r *Ring) load() error {
	data, err := os.ReadFile(filepath.Join(r.dir, ringFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read keyring file: %w", err)
	}

	plaintext, err := r.unseal(data)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(plaintext)

	return r.decodeRecords(plaintext)
}

// save serializes, seals, and atomically replaces the ring file.
func (r *Ring) save() error {
	plaintext := r.encodeRecords()
	defer crypto.ZeroBytes(plaintext)

	sealed, err := r.seal(plaintext)
	if err != nil {
		return err
	}

	tmp := filepath.Join(r.dir, ringFile+".tmp")
	final := filepath.Join(r.dir, ringFile)
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename keyring file: %w", err)
	}
	r.dirty = false

	logrus.WithFields(logrus.Fields{
		"function": "save",
		"records":  len(r.records),
	}).Debug("Keyring saved")
	return nil
}

// Record wire layout inside the sealed file:
//
//	[count:2] then per record [id:2][type:1][len:1][value:len]
//
// all integers big-endian.
func (r *Ring) encodeRecords() []byte {
	size := 2
	for _, rec := range r.records {
		size += 4 + len(rec.value)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.records)))
	for id, rec := range r.records {
		buf = binary.BigEndian.AppendUint16(buf, id)
		buf = append(buf, byte(rec.typ), byte(len(rec.value)))
		buf = append(buf, rec.value...)
	}
	return buf
}

func (r *Ring) decodeRecords(data []byte) error {
	if len(data) < 2 {
		return errors.New("keyring file truncated")
	}
	count := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	for i := 0; i < count; i++ {
		if len(data) < 4 {
			return errors.New("keyring record truncated")
		}
		id := binary.BigEndian.Uint16(data)
		typ := KeyType(data[2])
		n := int(data[3])
		data = data[4:]
		if len(data) < n {
			return errors.New("keyring record truncated")
		}
		if typ.valueSize() != n {
			return fmt.Errorf("record %d: %w", id, ErrBadKeySize)
		}
		value := make([]byte, n)
		copy(value, data[:n])
		r.records[id] = record{typ: typ, value: value}
		data = data[n:]
	}
	return nil
}

// seal encrypts plaintext as [version:2][nonce:12][ciphertext+tag].
func (r *Ring) seal(plaintext []byte) ([]byte, error) {
	gcm, err := r.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, 2, 2+len(nonce)+len(plaintext)+gcm.Overhead())
	binary.BigEndian.PutUint16(out, formatVersion)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (r *Ring) unseal(data []byte) ([]byte, error) {
	gcm, err := r.aead()
	if err != nil {
		return nil, err
	}
	min := 2 + gcm.NonceSize() + gcm.Overhead()
	if len(data) < min {
		return nil, fmt.Errorf("keyring file too short: %d bytes", len(data))
	}
	if v := binary.BigEndian.Uint16(data); v != formatVersion {
		return nil, fmt.Errorf("unsupported keyring version: %d", v)
	}
	nonce := data[2 : 2+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, data[2+gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}

func (r *Ring) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.sealKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
