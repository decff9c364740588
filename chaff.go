package cryptchats

import (
	"crypto/subtle"
	"fmt"
	"io"
)

// numPairs returns P = max_length / chaff_block_size / 2, the number
// of block-pairs a frame always carries (spec section 4.3).
func (s *Session) numPairs() int {
	return s.config.MaxLength / s.config.ChaffBlockSize / 2
}

// macBlocks implements spec section 4.3's "MAC pairing": splits ct
// into chaff_block_size chunks and tags each with a truncated
// Poly1305 MAC under key.
func (s *Session) macBlocks(ct []byte, key [32]byte) ([][2][]byte, error) {
	b := s.config.ChaffBlockSize
	if len(ct)%b != 0 {
		return nil, fmt.Errorf("cryptchats: mac blocks: %w", ErrInvalidLength)
	}
	pairs := make([][2][]byte, 0, len(ct)/b)
	for i := 0; i < len(ct); i += b {
		block := ct[i : i+b]
		tag := s.prim.poly1305Tag(key, block)
		pairs = append(pairs, [2][]byte{block, tag[:b]})
	}
	return pairs, nil
}

// chaffPairs implements spec section 4.3's "Chaffing": pads real
// pairs out to exactly P = numPairs() pairs with random decoys
// inserted at uniformly random positions, then emits the
// concatenation of data||mac for every pair in final order.
func (s *Session) chaffPairs(real [][2][]byte) ([]byte, error) {
	need := s.numPairs() - len(real)
	if need < 0 {
		return nil, fmt.Errorf("cryptchats: chaff: %w", ErrInvalidLength)
	}

	pairs := append([][2][]byte(nil), real...)
	b := s.config.ChaffBlockSize
	for i := 0; i < need; i++ {
		decoy := [2][]byte{make([]byte, b), make([]byte, b)}
		if _, err := io.ReadFull(s.rand, decoy[0]); err != nil {
			return nil, fmt.Errorf("cryptchats: chaff: decoy data: %w", err)
		}
		if _, err := io.ReadFull(s.rand, decoy[1]); err != nil {
			return nil, fmt.Errorf("cryptchats: chaff: decoy mac: %w", err)
		}
		pos, err := s.idx.Intn(len(pairs) + 1)
		if err != nil {
			return nil, fmt.Errorf("cryptchats: chaff: insertion index: %w", err)
		}
		pairs = append(pairs, [2][]byte{})
		copy(pairs[pos+1:], pairs[pos:])
		pairs[pos] = decoy
	}

	out := make([]byte, 0, s.config.MaxLength)
	for _, p := range pairs {
		out = append(out, p[0]...)
		out = append(out, p[1]...)
	}
	return out, nil
}

// splitFramePairs reverses the frame layout: consecutive
// chaff_block_size chunks grouped two at a time into (data, mac)
// pairs, per the wire format in spec section 6.
func (s *Session) splitFramePairs(frame []byte) ([][2][]byte, error) {
	b := s.config.ChaffBlockSize
	if len(frame) != s.config.MaxLength {
		return nil, fmt.Errorf("cryptchats: frame length %d, want %d: %w", len(frame), s.config.MaxLength, ErrInvalidLength)
	}
	if len(frame)%(2*b) != 0 {
		return nil, fmt.Errorf("cryptchats: frame not a multiple of %d: %w", 2*b, ErrInvalidLength)
	}
	pairs := make([][2][]byte, 0, len(frame)/(2*b))
	for i := 0; i+2*b <= len(frame); i += 2 * b {
		pairs = append(pairs, [2][]byte{frame[i : i+b], frame[i+b : i+2*b]})
	}
	return pairs, nil
}

// dechaffResult is the outcome of a single candidate half's trial in
// tryDechaff.
type dechaffResult struct {
	half *RatchetHalf
	msg  []byte
	ex   []byte
}

// tryDechaff implements spec section 4.3's dechaffing procedure: it
// tries, in priority order, PendingReceive, Receive, and a fresh
// initial half, speculatively deriving each one's keys and testing
// every block-pair's mac against both the message and exchange chaff
// keys. The first candidate with any match wins; every candidate's
// counter — matched or not — is rewound to its pre-trial value
// before returning, so that the real, stateful derivation the message
// and keyx pipelines perform afterwards reproduces the same keys
// (spec section 4.3's counter-rewind rule).
func (s *Session) tryDechaff(frame []byte) (*dechaffResult, error) {
	pairs, err := s.splitFramePairs(frame)
	if err != nil {
		return nil, err
	}

	var candidates []*RatchetHalf
	if s.PendingReceive != nil {
		candidates = append(candidates, &s.PendingReceive.Half)
	}
	candidates = append(candidates, &s.Receive)
	candidates = append(candidates, &RatchetHalf{})

	for _, cand := range candidates {
		var prev *int64
		if cand.Counter != nil {
			v := *cand.Counter
			prev = &v
		}
		if err := s.deriveKeys(cand); err != nil {
			return nil, err
		}

		var msgBlocks, exBlocks [][]byte
		for _, pr := range pairs {
			data, tag := pr[0], pr[1]
			if macMatches(s.prim, cand.Keys.ChaffKey, data, tag) {
				msgBlocks = append(msgBlocks, data)
			} else if macMatches(s.prim, cand.Keys.ExchangeChaffKey, data, tag) {
				exBlocks = append(exBlocks, data)
			}
		}

		cand.Counter = prev

		if len(msgBlocks) > 0 || len(exBlocks) > 0 {
			return &dechaffResult{
				half: cand,
				msg:  joinBlocks(msgBlocks),
				ex:   joinBlocks(exBlocks),
			}, nil
		}
	}

	return nil, ErrNotEncrypted
}

func macMatches(p primitives, key [32]byte, data, tag []byte) bool {
	got := p.poly1305Tag(key, data)
	return subtle.ConstantTimeCompare(got[:len(tag)], tag) == 1
}

func joinBlocks(blocks [][]byte) []byte {
	if len(blocks) == 0 {
		return nil
	}
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}
