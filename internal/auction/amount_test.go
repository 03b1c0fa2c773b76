package auction

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstellar-swap/relayer/internal/types"
)

func TestEvaluateFlat(t *testing.T) {
	calc := types.FlatAmount(big.NewInt(42))

	for _, ts := range []uint64{0, 1, 1_700_000_000, ^uint64(0)} {
		got, err := Evaluate(calc, ts)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.Int64())
	}
}

func TestEvaluateFlatReturnsCopy(t *testing.T) {
	calc := types.FlatAmount(big.NewInt(42))
	got, err := Evaluate(calc, 0)
	require.NoError(t, err)

	got.SetInt64(7)
	again, err := Evaluate(calc, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), again.Int64())
}

func TestEvaluateLinearEndpoints(t *testing.T) {
	calc := types.LinearAmount(100, 200, big.NewInt(1000), big.NewInt(500))

	before, err := Evaluate(calc, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), before.Int64())

	at0, err := Evaluate(calc, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), at0.Int64())

	at1, err := Evaluate(calc, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(500), at1.Int64())

	after, err := Evaluate(calc, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), after.Int64())
}

func TestEvaluateLinearInterpolation(t *testing.T) {
	calc := types.LinearAmount(100, 200, big.NewInt(1000), big.NewInt(500))

	mid, err := Evaluate(calc, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(750), mid.Int64())

	// (1000*67 + 500*33) / 100, truncated.
	skewed, err := Evaluate(calc, 133)
	require.NoError(t, err)
	assert.Equal(t, int64(835), skewed.Int64())
}

func TestEvaluateLinearDecayFloorsCombinedSum(t *testing.T) {
	// A slow decay where the two rounding forms disagree: the contract
	// divides the combined sum, so (1000*99 + 990*1) / 100 = 999, not the
	// 1000 that truncating only the delta term would give.
	calc := types.LinearAmount(0, 100, big.NewInt(1000), big.NewInt(990))

	got, err := Evaluate(calc, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(999), got.Int64())

	// Every interior point sits strictly below the start amount.
	for ts := uint64(1); ts < 100; ts++ {
		v, err := Evaluate(calc, ts)
		require.NoError(t, err)
		assert.Less(t, v.Int64(), int64(1000), "no decay at t=%d", ts)
		assert.GreaterOrEqual(t, v.Int64(), int64(990))
	}
}

func TestEvaluateLinearAscending(t *testing.T) {
	calc := types.LinearAmount(0, 10, big.NewInt(0), big.NewInt(100))

	got, err := Evaluate(calc, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(70), got.Int64())
}

func TestEvaluateLinearMonotonicDecay(t *testing.T) {
	calc := types.LinearAmount(1000, 2000, big.NewInt(1_000_000), big.NewInt(1))

	prev, err := Evaluate(calc, 1000)
	require.NoError(t, err)
	for ts := uint64(1001); ts <= 2000; ts += 37 {
		cur, err := Evaluate(calc, ts)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur.Cmp(prev), 0, "amount rose at t=%d", ts)
		prev = cur
	}
}

func TestEvaluateDegenerateWindow(t *testing.T) {
	calc := types.LinearAmount(100, 100, big.NewInt(10), big.NewInt(20))

	// Before or at t0 still clamps to the start amount.
	got, err := Evaluate(calc, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Int64())

	// Inside the (empty) window the curve is undefined.
	_, err = Evaluate(calc, 101)
	assert.ErrorIs(t, err, types.ErrInvalidCurve)
}

func TestEvaluateMissingFields(t *testing.T) {
	_, err := Evaluate(types.AmountCalc{Kind: types.AmountFlat}, 0)
	assert.ErrorIs(t, err, types.ErrEncoding)

	_, err = Evaluate(types.AmountCalc{Kind: types.AmountLinear, StartTime: 1, StopTime: 2}, 1)
	assert.ErrorIs(t, err, types.ErrEncoding)

	_, err = Evaluate(types.AmountCalc{Kind: types.AmountKind(99)}, 0)
	assert.ErrorIs(t, err, types.ErrEncoding)
}
