package cryptchats

// PendingReceive is a Receiver-role RatchetHalf carrying an Acked
// flag: spec section 3. It represents a peer-advertised ephemeral we
// have seen but not yet folded into Receive; Acked tracks whether
// we've already answered it on the exchange sub-channel.
type PendingReceive struct {
	Half  RatchetHalf
	Acked bool
}

// newPendingReceive creates a PendingReceive for a freshly seen peer
// ephemeral. The self ephemeral is minted eagerly (rather than left
// for deriveKeys to mint lazily) because EncryptKeyx needs its public
// half without first deriving PendingReceive.Half's keys.
func newPendingReceive(peerEph [32]byte, selfEph LongTermKey) *PendingReceive {
	return &PendingReceive{
		Half: RatchetHalf{
			SelfEphemeral: &selfEph,
			PeerEphemeral: &peerEph,
			Role:          RoleReceiver,
		},
	}
}

func (p *PendingReceive) wipe() {
	if p == nil {
		return
	}
	p.Half.wipe()
}

// PendingSend is a Sender-role RatchetHalf whose SelfEphemeral is our
// newly minted ephemeral, not yet adopted by the peer, plus Msgs: a
// FIFO of plaintexts emitted before the ratchet caught up with it
// (spec section 3/9). Its lifetime is exactly the interval between
// advertising a new ephemeral and seeing the peer adopt it; it is
// dropped on promotion to Send.
type PendingSend struct {
	Half RatchetHalf
	Msgs [][]byte
}

func newPendingSend(eph LongTermKey) *PendingSend {
	return &PendingSend{
		Half: RatchetHalf{
			SelfEphemeral: &eph,
			Role:          RoleSender,
		},
	}
}

// drainMsgs removes and returns every buffered plaintext, for replay
// by the caller once the ratchet catches up (spec section 4.6).
func (p *PendingSend) drainMsgs() [][]byte {
	if p == nil || len(p.Msgs) == 0 {
		return nil
	}
	msgs := p.Msgs
	p.Msgs = nil
	return msgs
}

func (p *PendingSend) wipe() {
	if p == nil {
		return
	}
	p.Half.wipe()
	for _, m := range p.Msgs {
		wipe(m)
	}
	p.Msgs = nil
}
