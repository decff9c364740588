package cryptchats

import (
	"fmt"
	"strconv"
)

// Role distinguishes the two directional ratchet halves a Session
// holds. Role only affects key derivation once a peer ephemeral is
// known (see deriveKeys); before that every half derives identically,
// using only the two long-term keys.
type Role int

const (
	// RoleSender is the Send half: it advertises our own freshly
	// minted ephemeral and mixes in the peer's long-term and
	// ephemeral keys.
	RoleSender Role = iota
	// RoleReceiver is the Receive half (and PendingReceive, which
	// embeds one). New and newPendingReceive mint its ephemeral up
	// front; deriveKeys mints one for a Receiver half that has none.
	RoleReceiver
)

// RatchetKeys are the six values spec section 4.2 derives from a
// combined Diffie-Hellman master secret and a counter. They are
// always present on a RatchetHalf, refreshed by every deriveKeys call.
type RatchetKeys struct {
	MessageKey       [32]byte
	ExchangeKey      [32]byte
	ChaffKey         [32]byte
	ExchangeChaffKey [32]byte
	// MessageNonce and ExchangeNonce are called message_counter and
	// exchange_counter in spec section 3/4.2; despite the name they
	// are secretbox nonces, not counters, and are never incremented
	// independently of a fresh derivation.
	MessageNonce  [24]byte
	ExchangeNonce [24]byte
}

func (k *RatchetKeys) wipe() {
	wipe32(&k.MessageKey)
	wipe32(&k.ExchangeKey)
	wipe32(&k.ChaffKey)
	wipe32(&k.ExchangeChaffKey)
	wipe(k.MessageNonce[:])
	wipe(k.ExchangeNonce[:])
}

// RatchetHalf is one directional ratchet flow: spec section 3's
// RatchetHalf, re-architected as an explicit tagged struct in place of
// the source's open dictionary. A nil PeerEphemeral means this half
// has not yet observed the peer's ephemeral and derives with the
// Initial case of deriveKeys (spec section 4.2 case 1), regardless of
// Role — this is also how the dedicated initial key exchange derives,
// by using a RatchetHalf with no ephemerals at all.
type RatchetHalf struct {
	// SelfEphemeral is "the alice key" in spec section 3's naming
	// convention: our own ephemeral for this half, regardless of
	// which endpoint we are. New mints one for Send and Receive, and
	// PendingSend and PendingReceive mint their own at creation; a
	// Receiver half that still has none gets one from deriveKeys.
	SelfEphemeral *LongTermKey
	// PeerEphemeral is the other side's currently advertised
	// ephemeral public key, once known.
	PeerEphemeral *[32]byte
	// Counter is nil until the first derivation ("reinitialize on
	// first use" per spec section 3), 0 after it, then increments.
	Counter *int64
	Role    Role
	Keys    RatchetKeys
}

func (h *RatchetHalf) wipe() {
	if h.SelfEphemeral != nil {
		h.SelfEphemeral.Close()
	}
	h.Keys.wipe()
}

// deriveKeys implements spec section 4.2. It selects one of three
// cases by inspecting which fields half has, steps half's counter,
// compresses the resulting master secret with the fixed Poly1305
// counter key, expands it to 176 bytes, and splits the result into
// half.Keys.
func (s *Session) deriveKeys(half *RatchetHalf) error {
	var master []byte

	switch {
	case half.PeerEphemeral == nil:
		// Case 1: Initial. Only the two long-term keys are mixed in.
		shared, err := s.prim.dh(s.self.scalar, s.peerLongTermPublic)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (initial): %w", err)
		}
		expanded, err := s.prim.hkdfExpand(shared[:], []byte(protoID), 96)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (initial): %w", err)
		}
		master = expanded

	case half.Role == RoleSender:
		// Case 2: Sending. self_ephemeral must already be minted by
		// the caller (New and PendingSend do this before the half is
		// ever derived).
		if half.SelfEphemeral == nil {
			return fmt.Errorf("cryptchats: derive keys (sending): %w", errMissingSelfEphemeral)
		}
		d1, err := s.prim.dh(s.self.scalar, *half.PeerEphemeral)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (sending): %w", err)
		}
		d2, err := s.prim.dh(half.SelfEphemeral.scalar, s.peerLongTermPublic)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (sending): %w", err)
		}
		d3, err := s.prim.dh(half.SelfEphemeral.scalar, *half.PeerEphemeral)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (sending): %w", err)
		}
		master, err = s.concatExpanded(d1, d2, d3)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (sending): %w", err)
		}

	default:
		// Case 3: Receiving. Mint a self ephemeral lazily if needed.
		if half.SelfEphemeral == nil {
			eph, err := GenerateLongTermKey(s.rand)
			if err != nil {
				return fmt.Errorf("cryptchats: derive keys (receiving): mint ephemeral: %w", err)
			}
			half.SelfEphemeral = &eph
		}
		d1, err := s.prim.dh(half.SelfEphemeral.scalar, s.peerLongTermPublic)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (receiving): %w", err)
		}
		d2, err := s.prim.dh(s.self.scalar, *half.PeerEphemeral)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (receiving): %w", err)
		}
		d3, err := s.prim.dh(half.SelfEphemeral.scalar, *half.PeerEphemeral)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (receiving): %w", err)
		}
		master, err = s.concatExpanded(d1, d2, d3)
		if err != nil {
			return fmt.Errorf("cryptchats: derive keys (receiving): %w", err)
		}
	}

	stepCounter(half)

	tagInput := append(append([]byte(nil), master...), []byte(strconv.FormatInt(*half.Counter, 10))...)
	tag := s.prim.poly1305Tag(poly1305CounterKey, tagInput)

	expanded, err := s.prim.hkdfExpand(tag[:], []byte(protoID), 176)
	if err != nil {
		return fmt.Errorf("cryptchats: derive keys: expand key block: %w", err)
	}
	splitKeyBlock(expanded, &half.Keys)
	return nil
}

// concatExpanded expands each of the three DH components to 96 bytes
// (spec section 4.2: "Each component DH first passes through
// HKDF-Expand to 96 bytes before concatenation") and concatenates
// them in the order given.
func (s *Session) concatExpanded(components ...[32]byte) ([]byte, error) {
	out := make([]byte, 0, 96*len(components))
	for _, c := range components {
		expanded, err := s.prim.hkdfExpand(c[:], []byte(protoID), 96)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// stepCounter implements the "if counter is absent, set to 0; else
// increment by 1" rule from spec section 4.2.
func stepCounter(half *RatchetHalf) {
	if half.Counter == nil {
		zero := int64(0)
		half.Counter = &zero
		return
	}
	*half.Counter++
}

// splitKeyBlock lays the 176-byte HKDF-Expand output into the six
// fields in the order spec section 4.2 specifies:
// message_key(32) || exchange_key(32) || chaff_key(32) ||
// exchange_chaff_key(32) || message_counter(24) || exchange_counter(24).
func splitKeyBlock(b []byte, keys *RatchetKeys) {
	copy(keys.MessageKey[:], b[0:32])
	copy(keys.ExchangeKey[:], b[32:64])
	copy(keys.ChaffKey[:], b[64:96])
	copy(keys.ExchangeChaffKey[:], b[96:128])
	copy(keys.MessageNonce[:], b[128:152])
	copy(keys.ExchangeNonce[:], b[152:176])
}
