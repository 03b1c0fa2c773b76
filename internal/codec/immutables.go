package codec

import (
	"fmt"
	"math/big"

	"github.com/interstellar-swap/relayer/internal/types"
)

// EscrowImmutables is the fixed, contract-verifiable structure describing
// one EVM escrow. Field order and 32-byte alignment follow the deployed
// IBaseEscrow.Immutables tuple exactly; this is wire format, not an
// internal convenience.
type EscrowImmutables struct {
	OrderHash     [32]byte
	Hashlock      types.Hashlock
	Maker         string // 160-bit hex address, widened to uint256
	Taker         string
	Token         string // zero address for the native asset
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     types.Timelocks
}

// Encode produces the ABI encoding of the tuple: eight 32-byte words in
// declared field order. The escrow contract recomputes this encoding to
// verify callers, so any deviation makes every later call unauthorized.
func (im *EscrowImmutables) Encode() ([]byte, error) {
	maker, err := addressWord("maker", im.Maker)
	if err != nil {
		return nil, err
	}
	taker, err := addressWord("taker", im.Taker)
	if err != nil {
		return nil, err
	}
	token := new(big.Int)
	if im.Token != "" {
		if token, err = addressWord("token", im.Token); err != nil {
			return nil, err
		}
	}
	if im.Amount == nil || im.Amount.Sign() < 0 || im.Amount.BitLen() > 256 {
		return nil, fmt.Errorf("immutables amount out of uint256 range: %w", types.ErrEncoding)
	}
	if im.SafetyDeposit == nil || im.SafetyDeposit.Sign() < 0 || im.SafetyDeposit.BitLen() > 256 {
		return nil, fmt.Errorf("immutables safety deposit out of uint256 range: %w", types.ErrEncoding)
	}

	out := make([]byte, 0, 8*32)
	out = append(out, im.OrderHash[:]...)
	out = append(out, im.Hashlock[:]...)
	out = append(out, maker.FillBytes(make([]byte, 32))...)
	out = append(out, taker.FillBytes(make([]byte, 32))...)
	out = append(out, token.FillBytes(make([]byte, 32))...)
	out = append(out, im.Amount.FillBytes(make([]byte, 32))...)
	out = append(out, im.SafetyDeposit.FillBytes(make([]byte, 32))...)
	out = append(out, PackTimelocks(im.Timelocks).FillBytes(make([]byte, 32))...)
	return out, nil
}
