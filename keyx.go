package cryptchats

import (
	"fmt"
	"io"
)

// EncryptInitialKeyx implements spec section 4.5's encrypt_initial_keyx:
// the very first frame exchanged on a Session. It fixes IsInitiator by
// whether the ratchet is already Established, derives a one-shot
// Initial half, and seals both sides' ephemeral public keys under
// whichever sub-channel matches the caller's role (message channel for
// the initiator, exchange channel for the responder's acknowledgement).
func (s *Session) EncryptInitialKeyx() ([]byte, error) {
	s.IsInitiator = !s.Established()
	s.Initialized = true

	var nonce [24]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt initial keyx: nonce: %w", err)
	}

	initial := &RatchetHalf{}
	if err := s.deriveKeys(initial); err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt initial keyx: %w", err)
	}

	receivePub, err := s.Receive.SelfEphemeral.Public()
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt initial keyx: %w", err)
	}
	sendPub, err := s.Send.SelfEphemeral.Public()
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt initial keyx: %w", err)
	}

	ephemerals := make([]byte, 0, 64)
	var msgKey, chaffKey [32]byte
	if s.IsInitiator {
		ephemerals = append(ephemerals, receivePub[:]...)
		ephemerals = append(ephemerals, sendPub[:]...)
		msgKey, chaffKey = initial.Keys.MessageKey, initial.Keys.ChaffKey
	} else {
		ephemerals = append(ephemerals, sendPub[:]...)
		ephemerals = append(ephemerals, receivePub[:]...)
		msgKey, chaffKey = initial.Keys.ExchangeKey, initial.Keys.ExchangeChaffKey
	}

	ct := s.prim.seal(msgKey, nonce, padTo16(ephemerals))
	combined := make([]byte, 0, 24+len(ct))
	combined = append(combined, nonce[:]...)
	combined = append(combined, ct...)

	pairs, err := s.macBlocks(combined, chaffKey)
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt initial keyx: %w", err)
	}
	return s.chaffPairs(pairs)
}

// decryptInitialKeyx implements spec section 4.5's decrypt_initial_keyx.
// It is called with whichever half a tryDechaff trial matched while that
// half had no peer ephemeral: before establishment that is Receive
// itself (it derives exactly as a fresh Initial half does), afterwards
// the fresh Initial half. The Keys the trial derived are used directly,
// with no second derivation; the trial already rewound the counter. ack selects
// which sub-channel's key unseals the payload: false for the
// initiator's first message, true for the responder's acknowledgement.
// ok is false, with a nil error, when the AEAD tag fails to verify —
// spec section 7 treats that as no key exchange, not a hard error.
func (s *Session) decryptInitialKeyx(ct []byte, ack bool, half *RatchetHalf) (peerReceive, peerSend [32]byte, ok bool, err error) {
	if len(ct) < 24 {
		return peerReceive, peerSend, false, fmt.Errorf("cryptchats: decrypt initial keyx: %w", ErrInvalidLength)
	}
	var nonce [24]byte
	copy(nonce[:], ct[:24])
	body := ct[24:]

	key := half.Keys.MessageKey
	if ack {
		key = half.Keys.ExchangeKey
	}

	pt, opened := s.prim.open(key, nonce, body)
	if !opened {
		return peerReceive, peerSend, false, nil
	}
	if len(pt) < 64 {
		return peerReceive, peerSend, false, fmt.Errorf("cryptchats: decrypt initial keyx: %w", ErrInvalidLength)
	}
	copy(peerReceive[:], pt[:32])
	copy(peerSend[:], pt[32:64])
	return peerReceive, peerSend, true, nil
}

// EncryptKeyx implements spec section 4.5's encrypt_keyx: the
// exchange-channel acknowledgement that tells the peer which ephemeral
// we expect it to adopt for its next Send. It requires an outstanding
// PendingReceive to acknowledge.
func (s *Session) EncryptKeyx() ([]byte, error) {
	if s.PendingReceive == nil {
		return nil, fmt.Errorf("cryptchats: encrypt keyx: no pending receive to acknowledge")
	}

	if err := s.deriveKeys(&s.Send); err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt keyx: %w", err)
	}

	s.PendingReceive.Acked = true
	advertised, err := s.PendingReceive.Half.SelfEphemeral.Public()
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt keyx: %w", err)
	}

	ct := s.prim.seal(s.Send.Keys.ExchangeKey, s.Send.Keys.ExchangeNonce, padTo16(advertised[:]))
	pairs, err := s.macBlocks(ct, s.Send.Keys.ExchangeChaffKey)
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt keyx: %w", err)
	}
	return s.chaffPairs(pairs)
}

// decryptKeyx implements spec section 4.5's decrypt_keyx: the real,
// counter-advancing derivation on the matched half, then unsealing the
// peer's currently advertised ephemeral from the exchange channel. ok
// is false, with a nil error, when the AEAD tag fails to verify.
func (s *Session) decryptKeyx(ct []byte, half *RatchetHalf) (peerEph [32]byte, ok bool, err error) {
	if err := s.deriveKeys(half); err != nil {
		return peerEph, false, fmt.Errorf("cryptchats: decrypt keyx: %w", err)
	}

	pt, opened := s.prim.open(half.Keys.ExchangeKey, half.Keys.ExchangeNonce, ct)
	if !opened {
		return peerEph, false, nil
	}
	if len(pt) < 32 {
		return peerEph, false, fmt.Errorf("cryptchats: decrypt keyx: %w", ErrInvalidLength)
	}
	copy(peerEph[:], pt[:32])
	return peerEph, true, nil
}

// gotKey implements spec section 4.5's got_key: once we learn which
// ephemeral the peer now expects on our Send half, promote PendingSend
// to Send if the peer's claim is actually new. A no-op if there is no
// outstanding PendingSend or Send has no established peer ephemeral
// yet, or the peer is simply confirming what Send already advertises.
func (s *Session) gotKey(peerEph [32]byte) {
	if s.Send.PeerEphemeral == nil || s.PendingSend == nil {
		return
	}
	if peerEph == *s.Send.PeerEphemeral {
		return
	}

	promoted := s.PendingSend.Half
	promoted.PeerEphemeral = &peerEph
	promoted.Counter = nil

	old := s.Send
	s.Send = promoted
	old.wipe()

	s.PendingSend = nil
}
