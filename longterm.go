package cryptchats

import "io"

// LongTermKey is a Curve25519 private scalar that identifies one end
// of a session. It is created once at process start and lives for as
// long as the identity does; Session never rotates it.
type LongTermKey struct {
	scalar [32]byte
}

// GenerateLongTermKey mints a fresh LongTermKey using r as the source
// of entropy. Callers should pass crypto/rand.Reader outside of
// tests.
func GenerateLongTermKey(r io.Reader) (LongTermKey, error) {
	scalar, err := defaultPrimitives.generateScalar(r)
	if err != nil {
		return LongTermKey{}, err
	}
	return LongTermKey{scalar: scalar}, nil
}

// Public returns the 32-byte Curve25519 public point for k.
func (k LongTermKey) Public() ([32]byte, error) {
	return defaultPrimitives.publicKey(k.scalar)
}

// Close zeroizes the underlying scalar. A LongTermKey must not be used
// after Close.
func (k *LongTermKey) Close() {
	wipe32(&k.scalar)
}

var defaultPrimitives primitives = curve25519Primitives{}
