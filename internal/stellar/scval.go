// Package stellar holds the Soroban side of the swap: the escrow immutables
// codec, the JSON-RPC client, and the event watcher.
package stellar

import (
	"fmt"
	"math/big"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	"github.com/interstellar-swap/relayer/internal/codec"
	"github.com/interstellar-swap/relayer/internal/types"
)

// Immutables is the canonical structured value the Soroban escrow stores.
// The encoded form is an ScMap; the host canonicalizes map keys in sorted
// symbol order, so the codec emits exactly that order. The contract may
// compare or hash the encoded form directly, which makes the order a
// correctness contract rather than a style choice.
type Immutables struct {
	Hashlock      types.Hashlock
	Direction     types.Direction
	Maker         types.StellarAddress
	Token         *types.StellarAddress // nil means the native asset
	Amount        types.AmountCalc
	SafetyDeposit *big.Int
	Timelocks     codec.AbsoluteTimelocks
}

// ScVal builds the full immutables map.
func (im *Immutables) ScVal() (xdr.ScVal, error) {
	maker, err := addressVal(im.Maker)
	if err != nil {
		return xdr.ScVal{}, err
	}

	token := voidVal()
	if im.Token != nil {
		if token, err = addressVal(*im.Token); err != nil {
			return xdr.ScVal{}, err
		}
	}

	amount, err := amountVal(im.Amount)
	if err != nil {
		return xdr.ScVal{}, err
	}

	deposit, err := i128Val(im.SafetyDeposit)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("safety_deposit: %w", err)
	}

	// Sorted symbol order; the host rejects or re-hashes anything else.
	return mapVal([]xdr.ScMapEntry{
		{Key: symVal("amount"), Val: amount},
		{Key: symVal("direction"), Val: directionVal(im.Direction)},
		{Key: symVal("hashlock"), Val: bytesVal(im.Hashlock.Bytes())},
		{Key: symVal("maker"), Val: maker},
		{Key: symVal("safety_deposit"), Val: deposit},
		{Key: symVal("timelocks"), Val: timelocksVal(im.Timelocks)},
		{Key: symVal("token"), Val: token},
	}), nil
}

// MarshalBase64 returns the XDR base64 form used in transaction parameters.
func (im *Immutables) MarshalBase64() (string, error) {
	val, err := im.ScVal()
	if err != nil {
		return "", err
	}
	b64, err := xdr.MarshalBase64(val)
	if err != nil {
		return "", fmt.Errorf("marshal immutables: %w", types.ErrEncoding)
	}
	return b64, nil
}

// directionVal encodes the direction as a unit enum variant: a one-element
// vector holding the variant symbol, never a bare integer.
func directionVal(d types.Direction) xdr.ScVal {
	return vecVal(symVal(d.String()))
}

// amountVal encodes the AmountCalc union as a tagged variant vector:
// [Flat, i128] or [Linear, u64 t0, u64 t1, i128 a0, i128 a1].
func amountVal(a types.AmountCalc) (xdr.ScVal, error) {
	switch a.Kind {
	case types.AmountFlat:
		q, err := i128Val(a.Quantity)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("flat amount: %w", err)
		}
		return vecVal(symVal("Flat"), q), nil
	case types.AmountLinear:
		a0, err := i128Val(a.StartAmount)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("linear start amount: %w", err)
		}
		a1, err := i128Val(a.StopAmount)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("linear stop amount: %w", err)
		}
		return vecVal(symVal("Linear"), u64Val(a.StartTime), u64Val(a.StopTime), a0, a1), nil
	default:
		return xdr.ScVal{}, fmt.Errorf("unknown amount kind %d: %w", a.Kind, types.ErrEncoding)
	}
}

// timelocksVal encodes the four absolute timestamps under their fixed keys,
// again in sorted symbol order.
func timelocksVal(t codec.AbsoluteTimelocks) xdr.ScVal {
	return mapVal([]xdr.ScMapEntry{
		{Key: symVal(codec.TimelockKeyCancellation), Val: u64Val(t.Cancellation)},
		{Key: symVal(codec.TimelockKeyPublicCancellation), Val: u64Val(t.PublicCancellation)},
		{Key: symVal(codec.TimelockKeyPublicWithdrawal), Val: u64Val(t.PublicWithdrawal)},
		{Key: symVal(codec.TimelockKeyWithdrawal), Val: u64Val(t.Withdrawal)},
	})
}

// addressVal encodes the tagged address union. The tag decides the XDR arm,
// so it must be discriminated before serialization.
func addressVal(a types.StellarAddress) (xdr.ScVal, error) {
	var sc xdr.ScAddress
	switch a.Kind {
	case types.StellarAccount:
		accountID, err := xdr.AddressToAccountId(a.Value)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("account address %q: %w", a.Value, types.ErrEncoding)
		}
		sc = xdr.ScAddress{
			Type:      xdr.ScAddressTypeScAddressTypeAccount,
			AccountId: &accountID,
		}
	case types.StellarContract:
		raw, err := strkey.Decode(strkey.VersionByteContract, a.Value)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("contract address %q: %w", a.Value, types.ErrEncoding)
		}
		var contractID xdr.Hash
		copy(contractID[:], raw)
		sc = xdr.ScAddress{
			Type:       xdr.ScAddressTypeScAddressTypeContract,
			ContractId: &contractID,
		}
	default:
		return xdr.ScVal{}, fmt.Errorf("unknown address kind %d: %w", a.Kind, types.ErrEncoding)
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &sc}, nil
}

func symVal(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func bytesVal(b []byte) xdr.ScVal {
	sb := xdr.ScBytes(b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &sb}
}

func u64Val(v uint64) xdr.ScVal {
	u := xdr.Uint64(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &u}
}

func voidVal() xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvVoid}
}

func vecVal(items ...xdr.ScVal) xdr.ScVal {
	vec := xdr.ScVec(items)
	pv := &vec
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &pv}
}

func mapVal(entries []xdr.ScMapEntry) xdr.ScVal {
	m := xdr.ScMap(entries)
	pm := &m
	return xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &pm}
}

// i128Val converts a non-negative big integer into Int128Parts.
func i128Val(v *big.Int) (xdr.ScVal, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 127 {
		return xdr.ScVal{}, fmt.Errorf("value out of i128 range: %w", types.ErrEncoding)
	}
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(v, 64)
	parts := xdr.Int128Parts{
		Hi: xdr.Int64(hi.Int64()),
		Lo: xdr.Uint64(lo.Uint64()),
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, nil
}
