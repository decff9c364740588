package cryptchats

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/poly1305"
)

// protoID binds every derived key and every HKDF-Expand call to this
// wire format. Bumping it invalidates every existing session.
const protoID = "cryptchats-protocol-v1"

// poly1305CounterKey is the fixed Poly1305 key used to compress a
// derivation's DH master secret together with its counter. It is
// exactly 32 bytes, which is not a coincidence.
var poly1305CounterKey = mustPad32([]byte(protoID + "::poly1305"))

func mustPad32(b []byte) [32]byte {
	if len(b) != 32 {
		panic(fmt.Sprintf("cryptchats: poly1305 counter key must be 32 bytes, got %d", len(b)))
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

// primitives is the crypto primitives contract required by spec
// section 4.1: Curve25519 DH, HKDF-Expand, a one-time Poly1305
// authenticator, and NaCl-style secretbox. It is kept as an interface,
// in the style of the ratchet backends this package's predecessor
// offered, even though cryptchats only ships one implementation: it
// keeps the key schedule and chaff layer free of direct dependencies
// on any particular curve or AEAD package, and gives tests a seam to
// inject failures.
type primitives interface {
	// generateScalar mints a clamped Curve25519 private scalar.
	generateScalar(r io.Reader) ([32]byte, error)
	// publicKey computes the Curve25519 public point for a scalar.
	publicKey(priv [32]byte) ([32]byte, error)
	// dh computes the Curve25519 shared point.
	dh(priv, pub [32]byte) ([32]byte, error)
	// hkdfExpand runs HKDF-Expand (no extract step) with SHA-256,
	// treating prk as an already-uniform key, per spec section 4.1.
	hkdfExpand(prk []byte, info []byte, length int) ([]byte, error)
	// poly1305Tag authenticates msg under key and returns the
	// 16-byte one-time tag.
	poly1305Tag(key [32]byte, msg []byte) [16]byte
	// seal is XSalsa20-Poly1305 secretbox sealing.
	seal(key [32]byte, nonce [24]byte, plaintext []byte) []byte
	// open is XSalsa20-Poly1305 secretbox opening. ok is false on
	// authentication failure.
	open(key [32]byte, nonce [24]byte, ciphertext []byte) (plaintext []byte, ok bool)
}

// curve25519Primitives is the default, and only shipped,
// implementation of primitives.
type curve25519Primitives struct{}

var _ primitives = curve25519Primitives{}

func (curve25519Primitives) generateScalar(r io.Reader) ([32]byte, error) {
	var scalar [32]byte
	if _, err := io.ReadFull(r, scalar[:]); err != nil {
		return [32]byte{}, fmt.Errorf("cryptchats: generate scalar: %w", err)
	}
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar, nil
}

func (curve25519Primitives) publicKey(priv [32]byte) ([32]byte, error) {
	var pub [32]byte
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("cryptchats: scalar base mult: %w", err)
	}
	copy(pub[:], out)
	return pub, nil
}

func (curve25519Primitives) dh(priv, pub [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return shared, fmt.Errorf("cryptchats: dh: %w", err)
	}
	copy(shared[:], out)
	return shared, nil
}

func (curve25519Primitives) hkdfExpand(prk []byte, info []byte, length int) ([]byte, error) {
	r := hkdf.Expand(hkdfHash, prk, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("cryptchats: hkdf expand: %w", err)
	}
	return out, nil
}

func (curve25519Primitives) poly1305Tag(key [32]byte, msg []byte) [16]byte {
	var tag [16]byte
	poly1305.Sum(&tag, msg, &key)
	return tag
}

func (curve25519Primitives) seal(key [32]byte, nonce [24]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, &nonce, &key)
}

func (curve25519Primitives) open(key [32]byte, nonce [24]byte, ciphertext []byte) ([]byte, bool) {
	return secretbox.Open(nil, ciphertext, &nonce, &key)
}

// indexRNG returns a uniformly distributed index in [0, n). It is the
// seam spec section 9 requires for testing invariant 7 (byte-identical
// frames given identical inputs and a deterministic RNG): production
// sessions use cryptoIndexRNG, tests can inject a seeded one.
type indexRNG interface {
	Intn(n int) (int, error)
}

// cryptoIndexRNG draws uniform indices from a crypto/rand-backed
// reader.
type cryptoIndexRNG struct {
	r io.Reader
}

func newCryptoIndexRNG() cryptoIndexRNG {
	return cryptoIndexRNG{r: rand.Reader}
}

func (c cryptoIndexRNG) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	return randIntn(c.r, n)
}
