package cryptchats

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Config holds the frame-shape parameters spec section 6 fixes per
// session. Both endpoints of a conversation must agree on the same
// Config out of band; cryptchats has no negotiation for it.
type Config struct {
	// MaxLength is the fixed size, in bytes, of every frame a Session
	// produces or accepts. Defaults to 480.
	MaxLength int
	// ChaffBlockSize is the size, in bytes, of each data (and each mac)
	// half of a block pair. Defaults to 16.
	ChaffBlockSize int
}

// DefaultConfig is the Config New uses when none is supplied.
func DefaultConfig() Config {
	return Config{MaxLength: 480, ChaffBlockSize: 16}
}

func (c Config) validate() error {
	if c.MaxLength <= 0 || c.ChaffBlockSize <= 0 {
		return fmt.Errorf("cryptchats: max_length and chaff_block_size must be positive: %w", ErrInvalidConfig)
	}
	if c.MaxLength%(2*c.ChaffBlockSize) != 0 {
		return fmt.Errorf("cryptchats: chaff_block_size must divide max_length into an even number of blocks: %w", ErrInvalidConfig)
	}
	return nil
}

// Session is one end of a cryptchats conversation: spec section 3's
// top-level state. Construct one with New; it is not safe for
// concurrent use (spec section 5) — callers serialize access to a
// Session themselves, the way they would a net.Conn.
type Session struct {
	self               LongTermKey
	peerLongTermPublic [32]byte

	Send           RatchetHalf
	Receive        RatchetHalf
	PendingSend    *PendingSend
	PendingReceive *PendingReceive

	IsInitiator bool
	Initialized bool

	config Config
	prim   primitives
	rand   io.Reader
	idx    indexRNG
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithConfig overrides the default frame-shape Config.
func WithConfig(c Config) Option {
	return func(s *Session) { s.config = c }
}

// WithRand overrides the CSPRNG used for ephemeral keys, nonces, and
// chaff filler. Intended for deterministic tests; production code
// should leave this at its crypto/rand.Reader default.
func WithRand(r io.Reader) Option {
	return func(s *Session) { s.rand = r }
}

// WithIndexRNG overrides the uniform index source used to choose chaff
// insertion positions (spec section 9's invariant 7 testing seam).
func WithIndexRNG(i indexRNG) Option {
	return func(s *Session) { s.idx = i }
}

// withPrimitives overrides the crypto primitives implementation.
// Unexported: there is exactly one real implementation, and this seam
// exists for this package's own tests to inject primitive failures.
func withPrimitives(p primitives) Option {
	return func(s *Session) { s.prim = p }
}

// New constructs a Session between self and peerLongTermPublic. Both
// ratchet halves start uninitialized (no peer ephemeral known); the
// first frame either side produces must come from EncryptInitialKeyx.
func New(self LongTermKey, peerLongTermPublic [32]byte, opts ...Option) (*Session, error) {
	s := &Session{
		self:               self,
		peerLongTermPublic: peerLongTermPublic,
		config:             DefaultConfig(),
		prim:               curve25519Primitives{},
		rand:               rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idx == nil {
		s.idx = newCryptoIndexRNG()
	}
	if err := s.config.validate(); err != nil {
		return nil, err
	}

	sendEph, err := GenerateLongTermKey(s.rand)
	if err != nil {
		return nil, fmt.Errorf("cryptchats: new session: mint send ephemeral: %w", err)
	}
	recvEph, err := GenerateLongTermKey(s.rand)
	if err != nil {
		return nil, fmt.Errorf("cryptchats: new session: mint receive ephemeral: %w", err)
	}
	s.Send = RatchetHalf{SelfEphemeral: &sendEph, Role: RoleSender}
	s.Receive = RatchetHalf{SelfEphemeral: &recvEph, Role: RoleReceiver}

	return s, nil
}

// Established reports whether Receive has observed a peer ephemeral —
// i.e. whether the initial key exchange has completed from this
// endpoint's point of view.
func (s *Session) Established() bool {
	return s.Receive.PeerEphemeral != nil
}

// Inbound is what DecryptMsg hands back for a successfully processed
// frame: the Go-native shape of spec section 2's
// { plaintext?, keyx?, msgs? } (SPEC_FULL.md §6). Each field is
// zero-valued when absent; callers tell a present Keyx apart from an
// absent one by its length rather than a separate bool.
type Inbound struct {
	// Plaintext is the message carried by the frame, if any. Exchange
	// acknowledgements and pure chaff carry none.
	Plaintext []byte
	// Keyx is an acknowledgement frame this call produced as a side
	// effect — piggybacked per spec section 4.6 rather than left for
	// the caller to notice and request separately — and that must be
	// sent back to the peer over the same transport.
	Keyx []byte
	// Msgs holds plaintexts that were buffered in PendingSend while
	// this Session waited for the peer to catch up, now that the
	// ratchet has advanced and they can be sent for real. Callers
	// should feed each one back through EncryptMsg, in order.
	Msgs [][]byte
}

// DecryptMsg implements spec section 4.6: the single entry point for
// processing an inbound frame. It dechaffs the frame against
// PendingReceive, Receive, and a fresh Initial half, in that priority
// order, then dispatches on what matched.
func (s *Session) DecryptMsg(frame []byte) (*Inbound, error) {
	result, err := s.tryDechaff(frame)
	if err != nil {
		return nil, err
	}

	switch {
	case result.half.PeerEphemeral == nil:
		return s.handleInitialKeyx(result)
	case len(result.msg) > 0:
		return s.handleMessage(result)
	default:
		return s.handleKeyxAck(result)
	}
}

func (s *Session) handleInitialKeyx(result *dechaffResult) (*Inbound, error) {
	// Which sub-channel actually carried the ciphertext settles, on its
	// own, which key decrypts it: the exchange channel iff the peer
	// sent an acknowledgement rather than a first message.
	ack := len(result.ex) > 0
	ct := result.msg
	if ack {
		ct = result.ex
	}

	peerReceive, peerSend, ok, err := s.decryptInitialKeyx(ct, ack, result.half)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Inbound{}, nil
	}

	if !ack && s.IsInitiator && !s.Established() {
		// Both endpoints sent an opening (simultaneous initiation): the
		// one with the lexicographically smaller long-term public key
		// stays initiator and drops the peer's opening, waiting for the
		// ack of its own; the other answers below as responder.
		selfPub, err := s.self.Public()
		if err != nil {
			return nil, fmt.Errorf("cryptchats: decrypt initial keyx: %w", err)
		}
		if lessBytes(selfPub, s.peerLongTermPublic) {
			return &Inbound{}, nil
		}
	}

	in := &Inbound{}

	switch {
	case s.IsInitiator && ack:
		// We sent the first frame; this is the responder's
		// acknowledgement. The responder lists its Send ephemeral
		// first, so peerReceive here is what our Receive must expect
		// and peerSend is what our Send must target.
		s.Receive.PeerEphemeral = &peerReceive
		s.Send.PeerEphemeral = &peerSend
		if s.PendingSend != nil {
			in.Msgs = s.PendingSend.drainMsgs()
		}
	case !ack:
		// Either we are the genuine responder to the peer's first
		// frame, or both sides raced to initiate and we lost the
		// tie-break above: either way we
		// now know the peer's ephemerals and owe an acknowledgement.
		// peerReceive is the peer's Receive ephemeral (our Send
		// target), peerSend is the peer's Send ephemeral (what our
		// Receive must expect) — swapped from the ack case.
		s.Send.PeerEphemeral = &peerReceive
		s.Receive.PeerEphemeral = &peerSend
		if s.PendingSend != nil {
			in.Msgs = s.PendingSend.drainMsgs()
		}

		keyx, err := s.EncryptInitialKeyx()
		if err != nil {
			return nil, fmt.Errorf("cryptchats: decrypt initial keyx: acknowledge: %w", err)
		}
		in.Keyx = keyx
	default:
		// An acknowledgement arrived for a session that never sent the
		// first frame itself: a confused or replayed peer. The frame is
		// rejected; the session is unaffected.
		return nil, fmt.Errorf("cryptchats: decrypt initial keyx: unexpected acknowledgement: %w", ErrProtocolViolation)
	}

	return in, nil
}

func (s *Session) handleMessage(result *dechaffResult) (*Inbound, error) {
	msg, err := s.decryptMessage(result.msg, result.half)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return &Inbound{}, nil
	}

	in := &Inbound{Plaintext: msg}
	if s.PendingReceive != nil && !s.PendingReceive.Acked {
		// Piggyback the acknowledgement rather than leave the caller
		// to notice PendingReceive and request it separately (spec
		// section 4.6 step 3).
		keyx, err := s.EncryptKeyx()
		if err != nil {
			return nil, fmt.Errorf("cryptchats: decrypt message: acknowledge: %w", err)
		}
		in.Keyx = keyx
	}
	return in, nil
}

func (s *Session) handleKeyxAck(result *dechaffResult) (*Inbound, error) {
	peerEph, ok, err := s.decryptKeyx(result.ex, result.half)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Inbound{}, nil
	}

	pending := s.PendingSend
	s.gotKey(peerEph)

	in := &Inbound{}
	if pending != nil && s.PendingSend == nil {
		// gotKey just promoted PendingSend to Send: any plaintext
		// buffered while we waited can now go out for real.
		in.Msgs = pending.drainMsgs()
	}
	return in, nil
}

// lessBytes reports whether a is lexicographically smaller than b.
func lessBytes(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
