package cryptchats

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newHandshakenPair(t *testing.T) (alice, bob *Session) {
	t.Helper()
	aLT, err := GenerateLongTermKey(rand.Reader)
	require.NoError(t, err)
	bLT, err := GenerateLongTermKey(rand.Reader)
	require.NoError(t, err)
	aPub, err := aLT.Public()
	require.NoError(t, err)
	bPub, err := bLT.Public()
	require.NoError(t, err)

	alice, err = New(aLT, bPub)
	require.NoError(t, err)
	bob, err = New(bLT, aPub)
	require.NoError(t, err)

	require.False(t, alice.Established())
	require.False(t, bob.Established())

	frame1, err := alice.EncryptInitialKeyx()
	require.NoError(t, err)
	require.True(t, alice.IsInitiator)

	in, err := bob.DecryptMsg(frame1)
	require.NoError(t, err)
	require.Nil(t, in.Plaintext)
	require.False(t, bob.IsInitiator)
	require.NotNil(t, in.Keyx)

	in, err = alice.DecryptMsg(in.Keyx)
	require.NoError(t, err)
	require.Nil(t, in.Plaintext)

	require.True(t, alice.Established())
	require.True(t, bob.Established())
	return alice, bob
}

// TestHandshakeEstablishes exercises scenario S1: two sessions
// complete the initial key exchange and each has learned a peer
// ephemeral.
func TestHandshakeEstablishes(t *testing.T) {
	alice, bob := newHandshakenPair(t)
	require.NotNil(t, alice.Send.PeerEphemeral)
	require.NotNil(t, bob.Receive.PeerEphemeral)
}

// TestMessageRoundTrip exercises scenario S2: a message sent after the
// handshake is delivered (NUL-padded to 16 bytes), and the
// acknowledgement piggybacked on its decryption promotes the sender's
// pending ephemeral.
func TestMessageRoundTrip(t *testing.T) {
	alice, bob := newHandshakenPair(t)

	plaintext := []byte("hello bob")
	frame, err := alice.EncryptMsg(plaintext)
	require.NoError(t, err)
	require.NotNil(t, frame)

	in, err := bob.DecryptMsg(frame)
	require.NoError(t, err)
	require.Equal(t, padTo16(plaintext), in.Plaintext)
	require.NotNil(t, bob.PendingReceive)
	require.NotNil(t, in.Keyx, "decrypting an unacknowledged message should piggyback an ack")

	in, err = alice.DecryptMsg(in.Keyx)
	require.NoError(t, err)
	require.Nil(t, in.Plaintext)
	require.Nil(t, alice.PendingSend)
}

// TestMessageBufferedBeforeEstablished exercises the pre-handshake
// buffering path: EncryptMsg before the peer ephemeral is known
// returns no frame but still records the plaintext in PendingSend.
func TestMessageBufferedBeforeEstablished(t *testing.T) {
	self, err := GenerateLongTermKey(rand.Reader)
	require.NoError(t, err)
	peer, err := GenerateLongTermKey(rand.Reader)
	require.NoError(t, err)
	peerPub, err := peer.Public()
	require.NoError(t, err)

	s, err := New(self, peerPub)
	require.NoError(t, err)

	frame, err := s.EncryptMsg([]byte("too early"))
	require.NoError(t, err)
	require.Nil(t, frame)
	require.NotNil(t, s.PendingSend)
	require.Len(t, s.PendingSend.Msgs, 1)
}

// TestReplayRetransmitAcceptedSilently exercises spec section 4.4's
// retransmit rule: a second message that advertises the same,
// still-pending ephemeral is decrypted and leaves the existing
// PendingReceive in place.
func TestReplayRetransmitAcceptedSilently(t *testing.T) {
	alice, bob := newHandshakenPair(t)

	frame, err := alice.EncryptMsg([]byte("first"))
	require.NoError(t, err)

	in, err := bob.DecryptMsg(frame)
	require.NoError(t, err)
	require.Equal(t, padTo16([]byte("first")), in.Plaintext)
	firstPending := bob.PendingReceive

	frame2, err := alice.EncryptMsg([]byte("second"))
	require.NoError(t, err)

	in, err = bob.DecryptMsg(frame2)
	require.NoError(t, err)
	require.Equal(t, padTo16([]byte("second")), in.Plaintext)
	require.Same(t, firstPending, bob.PendingReceive)
}

func TestDecryptMsgRejectsWrongLength(t *testing.T) {
	alice, _ := newHandshakenPair(t)
	_, err := alice.DecryptMsg(make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestConfigValidation(t *testing.T) {
	self, err := GenerateLongTermKey(rand.Reader)
	require.NoError(t, err)
	peer, err := GenerateLongTermKey(rand.Reader)
	require.NoError(t, err)
	peerPub, err := peer.Public()
	require.NoError(t, err)

	_, err = New(self, peerPub, WithConfig(Config{MaxLength: 10, ChaffBlockSize: 3}))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
