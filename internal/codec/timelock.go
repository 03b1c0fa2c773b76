package codec

import (
	"fmt"
	"math/big"

	"github.com/interstellar-swap/relayer/internal/types"
)

// The EVM escrow packs all four timelock deltas into one uint256 word:
// t0 | t1<<64 | t2<<128 | t3<<192. The Soroban escrow instead takes a map
// of absolute timestamps under these fixed symbol keys.
const (
	TimelockKeyWithdrawal         = "withdrawal"
	TimelockKeyPublicWithdrawal   = "public_withdrawal"
	TimelockKeyCancellation       = "cancellation"
	TimelockKeyPublicCancellation = "public_cancellation"
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// PackTimelocks packs the four deltas into the single uint256 the EVM
// contract expects.
func PackTimelocks(t types.Timelocks) *big.Int {
	packed := new(big.Int).SetUint64(t.Withdrawal)
	packed.Or(packed, new(big.Int).Lsh(new(big.Int).SetUint64(t.PublicWithdrawal), 64))
	packed.Or(packed, new(big.Int).Lsh(new(big.Int).SetUint64(t.Cancellation), 128))
	packed.Or(packed, new(big.Int).Lsh(new(big.Int).SetUint64(t.PublicCancellation), 192))
	return packed
}

// PackTimelockValues packs four untrusted big integers, rejecting any value
// that does not fit in 64 bits.
func PackTimelockValues(t0, t1, t2, t3 *big.Int) (*big.Int, error) {
	vals := [4]*big.Int{t0, t1, t2, t3}
	for i, v := range vals {
		if v == nil || v.Sign() < 0 || v.Cmp(maxUint64) > 0 {
			return nil, fmt.Errorf("timelock %d out of 64-bit range: %w", i, types.ErrEncoding)
		}
	}
	return PackTimelocks(types.Timelocks{
		Withdrawal:         t0.Uint64(),
		PublicWithdrawal:   t1.Uint64(),
		Cancellation:       t2.Uint64(),
		PublicCancellation: t3.Uint64(),
	}), nil
}

// UnpackTimelocks is the exact inverse of PackTimelocks: mask and shift each
// 64-bit lane back out. Fails if the packed value does not fit in 256 bits.
func UnpackTimelocks(packed *big.Int) (types.Timelocks, error) {
	if packed == nil || packed.Sign() < 0 || packed.BitLen() > 256 {
		return types.Timelocks{}, fmt.Errorf("packed timelocks out of 256-bit range: %w", types.ErrEncoding)
	}
	lane := func(shift uint) uint64 {
		return new(big.Int).And(new(big.Int).Rsh(packed, shift), maxUint64).Uint64()
	}
	return types.Timelocks{
		Withdrawal:         lane(0),
		PublicWithdrawal:   lane(64),
		Cancellation:       lane(128),
		PublicCancellation: lane(192),
	}, nil
}

// AbsoluteTimelocks are the four phase markers as absolute unix timestamps,
// the representation the Soroban contract stores.
type AbsoluteTimelocks struct {
	Withdrawal         uint64
	PublicWithdrawal   uint64
	Cancellation       uint64
	PublicCancellation uint64
}

// ToAbsolute anchors the deltas at the given deployment timestamp.
func ToAbsolute(t types.Timelocks, deployedAt uint64) AbsoluteTimelocks {
	return AbsoluteTimelocks{
		Withdrawal:         deployedAt + t.Withdrawal,
		PublicWithdrawal:   deployedAt + t.PublicWithdrawal,
		Cancellation:       deployedAt + t.Cancellation,
		PublicCancellation: deployedAt + t.PublicCancellation,
	}
}

// ToDeltas is the inverse of ToAbsolute. A marker earlier than the anchor
// is malformed input.
func ToDeltas(a AbsoluteTimelocks, deployedAt uint64) (types.Timelocks, error) {
	abs := [4]uint64{a.Withdrawal, a.PublicWithdrawal, a.Cancellation, a.PublicCancellation}
	for i, v := range abs {
		if v < deployedAt {
			return types.Timelocks{}, fmt.Errorf("absolute timelock %d precedes anchor: %w", i, types.ErrEncoding)
		}
	}
	return types.Timelocks{
		Withdrawal:         a.Withdrawal - deployedAt,
		PublicWithdrawal:   a.PublicWithdrawal - deployedAt,
		Cancellation:       a.Cancellation - deployedAt,
		PublicCancellation: a.PublicCancellation - deployedAt,
	}, nil
}
