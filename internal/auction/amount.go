// Package auction evaluates AmountCalc pricing curves. Everything here is
// pure integer arithmetic: the result feeds directly into on-chain-bound
// structures, so no floating point is allowed anywhere on the path.
package auction

import (
	"fmt"
	"math/big"

	"github.com/interstellar-swap/relayer/internal/types"
)

// Evaluate resolves an AmountCalc at unix time t.
//
// Flat(q) is q for all t. Linear(t0,t1,a0,a1) clamps to a0 before t0 and a1
// after t1, and interpolates (a0*(t1-t) + a1*(t-t0)) / (t1-t0) in between.
// The single truncating division on the combined sum is the exact form the
// escrow contract computes, so both sides agree at every second.
func Evaluate(calc types.AmountCalc, t uint64) (*big.Int, error) {
	switch calc.Kind {
	case types.AmountFlat:
		if calc.Quantity == nil {
			return nil, fmt.Errorf("flat amount missing quantity: %w", types.ErrEncoding)
		}
		return new(big.Int).Set(calc.Quantity), nil

	case types.AmountLinear:
		if calc.StartAmount == nil || calc.StopAmount == nil {
			return nil, fmt.Errorf("linear amount missing endpoints: %w", types.ErrEncoding)
		}
		if t <= calc.StartTime {
			return new(big.Int).Set(calc.StartAmount), nil
		}
		if calc.StopTime <= calc.StartTime {
			return nil, fmt.Errorf("linear curve with t1 <= t0: %w", types.ErrInvalidCurve)
		}
		if t >= calc.StopTime {
			return new(big.Int).Set(calc.StopAmount), nil
		}

		span := new(big.Int).SetUint64(calc.StopTime - calc.StartTime)
		remaining := new(big.Int).SetUint64(calc.StopTime - t)
		elapsed := new(big.Int).SetUint64(t - calc.StartTime)
		sum := new(big.Int).Mul(calc.StartAmount, remaining)
		sum.Add(sum, new(big.Int).Mul(calc.StopAmount, elapsed))
		return sum.Quo(sum, span), nil

	default:
		return nil, fmt.Errorf("unknown amount kind %d: %w", calc.Kind, types.ErrEncoding)
	}
}
