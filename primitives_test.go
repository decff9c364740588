package cryptchats

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurve25519PrimitivesDHAgreement(t *testing.T) {
	p := curve25519Primitives{}

	aScalar, err := p.generateScalar(rand.Reader)
	require.NoError(t, err)
	bScalar, err := p.generateScalar(rand.Reader)
	require.NoError(t, err)

	aPub, err := p.publicKey(aScalar)
	require.NoError(t, err)
	bPub, err := p.publicKey(bScalar)
	require.NoError(t, err)

	ab, err := p.dh(aScalar, bPub)
	require.NoError(t, err)
	ba, err := p.dh(bScalar, aPub)
	require.NoError(t, err)

	require.Equal(t, ab, ba)
}

func TestCurve25519PrimitivesSealOpen(t *testing.T) {
	p := curve25519Primitives{}

	var key [32]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	var nonce [24]byte
	_, err = rand.Read(nonce[:])
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox")
	ct := p.seal(key, nonce, plaintext)

	pt, ok := p.open(key, nonce, ct)
	require.True(t, ok)
	require.Equal(t, plaintext, pt)

	ct[0] ^= 0xff
	_, ok = p.open(key, nonce, ct)
	require.False(t, ok)
}

func TestCurve25519PrimitivesHKDFExpandDeterministic(t *testing.T) {
	p := curve25519Primitives{}

	prk := make([]byte, 32)
	_, err := rand.Read(prk)
	require.NoError(t, err)

	a, err := p.hkdfExpand(prk, []byte(protoID), 96)
	require.NoError(t, err)
	b, err := p.hkdfExpand(prk, []byte(protoID), 96)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 96)
}

func TestPoly1305CounterKeyIs32Bytes(t *testing.T) {
	require.Len(t, poly1305CounterKey, 32)
}
