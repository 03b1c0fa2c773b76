package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Chain identifies one of the two ledgers a swap spans.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainStellar  Chain = "stellar"
)

// EventKind is the normalized lifecycle event emitted by a watcher.
type EventKind string

const (
	EventDeposited EventKind = "Deposited"
	EventClaimed   EventKind = "Claimed"
	EventCancelled EventKind = "Cancelled"
)

// Direction says which side originates on which chain.
type Direction uint8

const (
	Maker2Taker Direction = iota
	Taker2Maker
)

// String returns the variant name the Soroban contract declares.
func (d Direction) String() string {
	if d == Taker2Maker {
		return "Taker2Maker"
	}
	return "Maker2Taker"
}

// EscrowStatus is the per-chain escrow lifecycle status. It only moves
// forward: None -> Deployed -> Withdrawn or Cancelled.
type EscrowStatus uint8

const (
	EscrowNone EscrowStatus = iota
	EscrowDeployed
	EscrowWithdrawn
	EscrowCancelled
)

func (s EscrowStatus) String() string {
	switch s {
	case EscrowDeployed:
		return "Deployed"
	case EscrowWithdrawn:
		return "Withdrawn"
	case EscrowCancelled:
		return "Cancelled"
	default:
		return "None"
	}
}

// Terminal reports whether the status can no longer change.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowWithdrawn || s == EscrowCancelled
}

// SwapState is the collapsed cross-chain state of a swap.
type SwapState string

const (
	StateCreated       SwapState = "CREATED"
	StateSrcDeposited  SwapState = "SRC_DEPOSITED"
	StateDstDeposited  SwapState = "DST_DEPOSITED"
	StateBothDeposited SwapState = "BOTH_DEPOSITED"
	StateSrcWithdrawn  SwapState = "SRC_WITHDRAWN"
	StateDstWithdrawn  SwapState = "DST_WITHDRAWN"
	StateCompleted     SwapState = "COMPLETED"
	StateCancelled     SwapState = "CANCELLED"
)

// Terminal reports whether the swap has reached a final state.
func (s SwapState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Hashlock is the 32-byte digest of the swap secret. It is the sole
// cross-chain correlation key: each chain's contract stores these exact
// bytes, so they are carried verbatim and never re-derived.
type Hashlock [32]byte

// HashlockFromBytes copies b into a Hashlock. b must be exactly 32 bytes.
func HashlockFromBytes(b []byte) (Hashlock, error) {
	var h Hashlock
	if len(b) != len(h) {
		return h, fmt.Errorf("hashlock must be 32 bytes, got %d: %w", len(b), ErrEncoding)
	}
	copy(h[:], b)
	return h, nil
}

// ParseHashlock parses a hex string, with or without 0x prefix.
func ParseHashlock(s string) (Hashlock, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hashlock{}, fmt.Errorf("invalid hashlock hex: %w", ErrEncoding)
	}
	return HashlockFromBytes(b)
}

func (h Hashlock) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Bytes returns a copy of the digest.
func (h Hashlock) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, h[:])
	return b
}

// Timelocks holds the four phase deltas, in seconds relative to escrow
// deployment. The markers are monotonically increasing.
type Timelocks struct {
	Withdrawal         uint64 `json:"withdrawal"`
	PublicWithdrawal   uint64 `json:"publicWithdrawal"`
	Cancellation       uint64 `json:"cancellation"`
	PublicCancellation uint64 `json:"publicCancellation"`
}

// AmountKind discriminates the AmountCalc union.
type AmountKind uint8

const (
	AmountFlat AmountKind = iota
	AmountLinear
)

// AmountCalc is the pricing rule for a swap leg: either a flat quantity or
// a time-linear curve between two amounts (Dutch-auction decay or incline).
type AmountCalc struct {
	Kind AmountKind

	// Flat
	Quantity *big.Int

	// Linear
	StartTime   uint64
	StopTime    uint64
	StartAmount *big.Int
	StopAmount  *big.Int
}

// FlatAmount builds a constant AmountCalc.
func FlatAmount(q *big.Int) AmountCalc {
	return AmountCalc{Kind: AmountFlat, Quantity: new(big.Int).Set(q)}
}

// LinearAmount builds a time-linear AmountCalc between (t0, a0) and (t1, a1).
func LinearAmount(t0, t1 uint64, a0, a1 *big.Int) AmountCalc {
	return AmountCalc{
		Kind:        AmountLinear,
		StartTime:   t0,
		StopTime:    t1,
		StartAmount: new(big.Int).Set(a0),
		StopAmount:  new(big.Int).Set(a1),
	}
}

// StellarAddressKind discriminates the Stellar address union.
type StellarAddressKind uint8

const (
	StellarAccount  StellarAddressKind = iota // G... strkey
	StellarContract                           // C... strkey
)

// StellarAddress is the tagged address union of the destination chain. The
// tag must be discriminated before serialization because the two kinds
// encode differently.
type StellarAddress struct {
	Kind  StellarAddressKind
	Value string
}

// ParseStellarAddress discriminates an address by its strkey prefix.
func ParseStellarAddress(s string) (StellarAddress, error) {
	switch {
	case strings.HasPrefix(s, "G"):
		return StellarAddress{Kind: StellarAccount, Value: s}, nil
	case strings.HasPrefix(s, "C"):
		return StellarAddress{Kind: StellarContract, Value: s}, nil
	default:
		return StellarAddress{}, fmt.Errorf("unrecognized stellar address %q: %w", s, ErrEncoding)
	}
}

func (a StellarAddress) String() string { return a.Value }

// NormalizedEvent is the common shape both watchers emit into the intake.
// Immutable after creation; consumed exactly once by the engine.
type NormalizedEvent struct {
	Chain    Chain
	Kind     EventKind
	Hashlock Hashlock
	Payload  []byte // raw chain payload, opaque to the engine
	Secret   []byte // set on Claimed events when the chain reveals it
	Sequence uint64 // watcher-local FIFO sequence
}

// SwapRecord is the aggregate root for one swap, keyed by hashlock. The
// engine's consumer goroutine is the sole writer.
type SwapRecord struct {
	Hashlock  Hashlock
	Direction Direction
	OrderHash [32]byte

	Maker        string // EVM 160-bit address, hex
	Taker        string
	MakerStellar StellarAddress
	TakerStellar StellarAddress

	// Token is empty for the chain's native asset.
	TokenEthereum string
	TokenStellar  *StellarAddress

	Amount        AmountCalc
	SafetyDeposit *big.Int
	Timelocks     Timelocks
	DeployedAt    uint64 // unix seconds, anchors the timelock deltas

	SrcStatus EscrowStatus // ethereum side
	DstStatus EscrowStatus // stellar side
	State     SwapState

	Secret []byte // set once a Claimed event reveals it

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a detached copy safe to read while the engine keeps
// mutating the original. The big.Int fields are shared: they are never
// written after construction.
func (r *SwapRecord) Clone() *SwapRecord {
	c := *r
	if r.Secret != nil {
		c.Secret = append([]byte(nil), r.Secret...)
	}
	if r.TokenStellar != nil {
		token := *r.TokenStellar
		c.TokenStellar = &token
	}
	return &c
}

// StatusOn returns the escrow status recorded for a chain.
func (r *SwapRecord) StatusOn(chain Chain) EscrowStatus {
	if chain == ChainStellar {
		return r.DstStatus
	}
	return r.SrcStatus
}
