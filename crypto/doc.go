// Package crypto provides the primitive cryptographic collaborators used by
// the Noise engine: Diffie-Hellman functions, AEAD ciphers, hash functions,
// key pair management, and secure-memory helpers.
//
// The engine in package noise is written against the narrow DHFunc,
// CipherFunc, and HashFunc interfaces defined here, so alternative primitive
// implementations can be swapped in without touching the handshake logic.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair(rand.Reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", hex.EncodeToString(keys.Public[:]))
package crypto
