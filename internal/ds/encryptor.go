package ds

import "io"

// Encryptor seals objects before they leave the machine.
// Sealing uses the public key only; no user intervention is required.
// Opening sealed objects requires a passphrase to unlock the private key,
// producing a DecryptionContext for the session.
type Encryptor interface {
	// Setup performs one-time key generation. It generates a key pair,
	// stores the public key in plaintext, and encrypts the private key with
	// the provided passphrase.
	Setup(passphrase string) error

	// Seal returns a writer that encrypts everything written to it into w.
	// The caller must Close the returned writer to flush the ciphertext;
	// closing it does not close w.
	Seal(w io.Writer) (io.WriteCloser, error)

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext. Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the key material exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of a restore session. The unlocked key is never written to disk.
type DecryptionContext interface {
	// Open returns a reader producing the plaintext of the sealed stream r.
	Open(r io.Reader) (io.Reader, error)
}
