package cryptchats

import (
	"fmt"
)

// padTo16 returns pt, zero-padded with NUL bytes up to the next
// 16-byte multiple (spec section 4.4). A pt already a multiple of 16
// is returned unchanged.
func padTo16(pt []byte) []byte {
	rem := len(pt) % 16
	if rem == 0 {
		return pt
	}
	out := make([]byte, len(pt)+(16-rem))
	copy(out, pt)
	return out
}

// EncryptMsg implements spec section 4.4's encrypt_msg: it advances
// Send, mints a PendingSend ephemeral if none is outstanding, prefixes
// the buffered plaintext with that ephemeral's public key, and — once
// Send has seen a peer ephemeral — seals and chaffs the result. Before
// the ratchet has ever heard from the peer, the plaintext is buffered
// in PendingSend.Msgs and nil, nil is returned: there is nothing yet to
// transmit.
func (s *Session) EncryptMsg(plaintext []byte) ([]byte, error) {
	if err := s.deriveKeys(&s.Send); err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt msg: %w", err)
	}

	if s.PendingSend == nil {
		eph, err := GenerateLongTermKey(s.rand)
		if err != nil {
			return nil, fmt.Errorf("cryptchats: encrypt msg: mint ephemeral: %w", err)
		}
		s.PendingSend = newPendingSend(eph)
	}

	advertised, err := s.PendingSend.Half.SelfEphemeral.Public()
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt msg: %w", err)
	}

	s.PendingSend.Msgs = append(s.PendingSend.Msgs, append([]byte(nil), plaintext...))

	if s.Send.PeerEphemeral == nil {
		return nil, nil
	}

	body := make([]byte, 0, 32+len(plaintext))
	body = append(body, advertised[:]...)
	body = append(body, plaintext...)
	padded := padTo16(body)

	ct := s.prim.seal(s.Send.Keys.MessageKey, s.Send.Keys.MessageNonce, padded)
	pairs, err := s.macBlocks(ct, s.Send.Keys.ChaffKey)
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt msg: %w", err)
	}
	frame, err := s.chaffPairs(pairs)
	if err != nil {
		return nil, fmt.Errorf("cryptchats: encrypt msg: %w", err)
	}
	return frame, nil
}

// decryptMessage implements spec section 4.4's decrypt_message. half
// is the candidate a prior tryDechaff matched on the message channel;
// this call performs the real, counter-advancing derivation (the trial
// derivation was speculative and already rewound) before opening ct.
func (s *Session) decryptMessage(ct []byte, half *RatchetHalf) ([]byte, error) {
	if err := s.deriveKeys(half); err != nil {
		return nil, fmt.Errorf("cryptchats: decrypt message: %w", err)
	}

	pt, ok := s.prim.open(half.Keys.MessageKey, half.Keys.MessageNonce, ct)
	if !ok {
		// AEAD tag didn't verify: treated as no plaintext, not an error
		// (spec section 7 — distinct from ErrNotEncrypted, which covers
		// a frame no candidate half's chaff key matched at all).
		return nil, nil
	}
	if len(pt) < 32 {
		return nil, fmt.Errorf("cryptchats: decrypt message: %w", ErrInvalidLength)
	}

	var peerNewEph [32]byte
	copy(peerNewEph[:], pt[:32])
	msg := pt[32:]

	switch {
	case half.PeerEphemeral != nil && peerNewEph == *half.PeerEphemeral:
		return nil, fmt.Errorf("cryptchats: decrypt message: peer re-advertised its established ephemeral: %w", ErrProtocolViolation)
	case s.PendingReceive != nil && s.PendingReceive.Half.PeerEphemeral != nil && peerNewEph == *s.PendingReceive.Half.PeerEphemeral:
		// Retransmission of an already-pending advertisement: accept
		// the message, keep the existing PendingReceive as is.
	default:
		eph, err := GenerateLongTermKey(s.rand)
		if err != nil {
			return nil, fmt.Errorf("cryptchats: decrypt message: mint ephemeral: %w", err)
		}
		old := s.PendingReceive
		s.PendingReceive = newPendingReceive(peerNewEph, eph)
		// half may be (or share its ephemeral with) the old
		// PendingReceive, which becomes Receive below: keep it intact.
		if old != nil && old.Half.SelfEphemeral != half.SelfEphemeral {
			old.wipe()
		}
	}

	s.Receive = *half
	return msg, nil
}
