package cryptchats

// DebugState is a point-in-time, I/O-free snapshot of a Session's
// ratchet state, for diagnostic rendering (spec.md's print_key,
// carried forward as a supplemental feature). It never includes
// private scalars, only public material and counters.
type DebugState struct {
	SelfLongTermPublic [32]byte
	PeerLongTermPublic [32]byte
	IsInitiator        bool
	Established        bool

	SendPeerEphemeral    *[32]byte
	SendCounter          *int64
	ReceivePeerEphemeral *[32]byte
	ReceiveCounter       *int64

	PendingSendMsgs     int
	PendingReceiveEph   *[32]byte
	PendingReceiveAcked bool
}

// DebugState snapshots s for diagnostic display. It returns an error
// only if computing the long-term public keys fails, which does not
// happen for a validly constructed Session.
func (s *Session) DebugState() (DebugState, error) {
	selfPub, err := s.self.Public()
	if err != nil {
		return DebugState{}, err
	}

	d := DebugState{
		SelfLongTermPublic: selfPub,
		PeerLongTermPublic: s.peerLongTermPublic,
		IsInitiator:        s.IsInitiator,
		Established:        s.Established(),
		SendCounter:        s.Send.Counter,
		ReceiveCounter:     s.Receive.Counter,
	}
	if s.Send.PeerEphemeral != nil {
		eph := *s.Send.PeerEphemeral
		d.SendPeerEphemeral = &eph
	}
	if s.Receive.PeerEphemeral != nil {
		eph := *s.Receive.PeerEphemeral
		d.ReceivePeerEphemeral = &eph
	}
	if s.PendingSend != nil {
		d.PendingSendMsgs = len(s.PendingSend.Msgs)
	}
	if s.PendingReceive != nil {
		d.PendingReceiveAcked = s.PendingReceive.Acked
		if s.PendingReceive.Half.PeerEphemeral != nil {
			eph := *s.PendingReceive.Half.PeerEphemeral
			d.PendingReceiveEph = &eph
		}
	}
	return d, nil
}
