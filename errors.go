package cryptchats

import "errors"

// Error taxonomy per spec section 7. Every decrypt path surfaces one
// of these (or wraps one with %w); none of them tears down a Session
// — a single bad frame is always survivable.
var (
	// ErrNotEncrypted is returned when dechaffing found no real
	// blocks against any candidate half. Callers should treat this as
	// "drop silently, may be cover traffic".
	ErrNotEncrypted = errors.New("cryptchats: not encrypted")

	// ErrProtocolViolation is returned when the peer advertised an
	// ephemeral equal to the one it had already advertised, or
	// presented an initial-keyx acknowledgement to a session that did
	// not send the opening. The
	// frame is dropped; the session is unaffected.
	ErrProtocolViolation = errors.New("cryptchats: protocol violation")

	// ErrInvalidLength is returned when a frame's length does not
	// match the session's configured max_length, or is not a
	// multiple of 2*chaff_block_size.
	ErrInvalidLength = errors.New("cryptchats: invalid frame length")

	// ErrInvalidConfig is returned by New when chaff_block_size does
	// not evenly divide max_length into an even number of blocks.
	ErrInvalidConfig = errors.New("cryptchats: invalid chaff configuration")

	// errMissingSelfEphemeral signals a programmer error: a Sender
	// half with no ephemeral was asked to derive keys. New and
	// newPendingSend always mint one, so it never reaches a caller, and
	// no attacker-controlled input triggers it.
	errMissingSelfEphemeral = errors.New("cryptchats: sender half has no ephemeral")
)
