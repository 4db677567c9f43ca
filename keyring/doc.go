// Package keyring stores long-term Noise key material encrypted at rest.
//
// A ring is a small table of records, each holding one key under a 16-bit
// application-chosen identifier with a type tag distinguishing key pairs,
// bare public keys, and pre-shared symmetric keys. The whole table is
// serialized and sealed with AES-256-GCM under a key derived from a
// passphrase via PBKDF2, and written atomically with owner-only
// permissions.
package keyring
