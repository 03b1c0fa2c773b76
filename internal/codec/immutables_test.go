package codec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstellar-swap/relayer/internal/types"
)

func TestEscrowImmutablesEncode(t *testing.T) {
	im := EscrowImmutables{
		OrderHash:     [32]byte{0x01},
		Hashlock:      types.Hashlock{0x02},
		Maker:         "0x1111111111111111111111111111111111111111",
		Taker:         "0x2222222222222222222222222222222222222222",
		Token:         "0x3333333333333333333333333333333333333333",
		Amount:        big.NewInt(1_000_000),
		SafetyDeposit: big.NewInt(500),
		Timelocks:     types.Timelocks{Withdrawal: 10, PublicWithdrawal: 120, Cancellation: 300, PublicCancellation: 600},
	}

	encoded, err := im.Encode()
	require.NoError(t, err)
	require.Len(t, encoded, 8*32)

	word := func(i int) []byte { return encoded[i*32 : (i+1)*32] }

	assert.Equal(t, im.OrderHash[:], word(0))
	assert.Equal(t, im.Hashlock[:], word(1))

	// Addresses widen into the low 20 bytes of their word.
	assert.Equal(t, byte(0x11), word(2)[12])
	assert.Equal(t, [12]byte{}, [12]byte(word(2)[:12]))
	assert.Equal(t, byte(0x22), word(3)[12])
	assert.Equal(t, byte(0x33), word(4)[12])

	assert.Equal(t, big.NewInt(1_000_000).FillBytes(make([]byte, 32)), word(5))
	assert.Equal(t, big.NewInt(500).FillBytes(make([]byte, 32)), word(6))
	assert.Equal(t, PackTimelocks(im.Timelocks).FillBytes(make([]byte, 32)), word(7))
}

func TestEscrowImmutablesNativeToken(t *testing.T) {
	im := EscrowImmutables{
		Maker:         "0x1111111111111111111111111111111111111111",
		Taker:         "0x2222222222222222222222222222222222222222",
		Amount:        big.NewInt(1),
		SafetyDeposit: big.NewInt(0),
	}

	encoded, err := im.Encode()
	require.NoError(t, err)

	// Empty token means the zero address word.
	assert.Equal(t, make([]byte, 32), encoded[4*32:5*32])
}

func TestEscrowImmutablesRejectsBadFields(t *testing.T) {
	base := EscrowImmutables{
		Maker:         "0x1111111111111111111111111111111111111111",
		Taker:         "0x2222222222222222222222222222222222222222",
		Amount:        big.NewInt(1),
		SafetyDeposit: big.NewInt(0),
	}

	im := base
	im.Maker = "nope"
	_, err := im.Encode()
	assert.ErrorIs(t, err, types.ErrEncoding)

	im = base
	im.Amount = nil
	_, err = im.Encode()
	assert.ErrorIs(t, err, types.ErrEncoding)

	im = base
	im.SafetyDeposit = big.NewInt(-5)
	_, err = im.Encode()
	assert.ErrorIs(t, err, types.ErrEncoding)
}
