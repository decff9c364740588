package cryptchats

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"runtime"
)

// hkdfHash is the hash function every HKDF-Expand call in this
// package uses, per spec section 4.1.
var hkdfHash = sha256.New

// randIntn draws a uniform integer in [0, n) from r. It backs the
// production index RNG, cryptoIndexRNG; the determinism tests inject
// their own seeded index RNG instead.
func randIntn(r io.Reader, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("cryptchats: random index: %w", err)
	}
	return int(v.Int64()), nil
}

// wipe overwrites b with zeroes. It is used to scrub long-term and
// ephemeral scalars, derived keys, and buffered plaintexts once they
// are no longer needed; see spec section 5 and section 9.
//
//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// wipe32 overwrites a fixed-size key or scalar.
func wipe32(b *[32]byte) {
	if b == nil {
		return
	}
	wipe(b[:])
}
