package types

import "errors"

// Error taxonomy for the coordination engine. All failures are scoped to a
// single codec call or swap attempt; none of them is fatal to the process.
var (
	// ErrEncoding marks malformed or out-of-range input to a codec.
	ErrEncoding = errors.New("encoding error")

	// ErrOrderHashUnavailable means both the authoritative on-chain order
	// hash and the local fallback failed; the swap attempt is aborted.
	ErrOrderHashUnavailable = errors.New("order hash unavailable")

	// ErrSignatureMismatch means the recovered signer does not match the
	// expected maker; the order is rejected before anything is submitted.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrTransientChain marks a network/RPC failure. Watchers retry these
	// forever; one-shot submission calls retry a bounded number of times.
	ErrTransientChain = errors.New("transient chain error")

	// ErrInvalidCurve marks degenerate auction parameters (zero-length
	// window with an in-range evaluation time).
	ErrInvalidCurve = errors.New("invalid auction curve")

	// ErrUnknownEvent marks an unparseable chain payload. The event is
	// logged and dropped without touching any swap record.
	ErrUnknownEvent = errors.New("unknown chain event")
)
