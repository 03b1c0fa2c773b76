package codec

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/types"
)

// orderTypeString is the EIP-712 type of the limit order protocol's Order
// struct. The contract hashes the same string, so it must match byte for
// byte.
const orderTypeString = "Order(uint256 salt,Address maker,Address receiver,Address makerAsset," +
	"Address takerAsset,uint256 makingAmount,uint256 takingAmount," +
	"MakerTraits makerTraits)"

var orderTypehash = crypto.Keccak256Hash([]byte(orderTypeString))

// OrderHashCaller asks the chain's own contract for the order hash. A
// network failure must be reported wrapped in types.ErrTransientChain;
// any other error means the function is unavailable on this deployment.
type OrderHashCaller interface {
	HashOrder(ctx context.Context, order types.LimitOrder) ([32]byte, error)
}

// OrderHasher computes the canonical order hash. It prefers the on-chain
// hashOrder view (authoritative by definition) and falls back to the local
// EIP-712 computation when the contract predates the helper. Both paths
// agree bit for bit on well-formed input.
type OrderHasher struct {
	caller          OrderHashCaller
	domainSeparator [32]byte
	attempts        int
	backoff         time.Duration
	log             zerolog.Logger
}

// NewOrderHasher builds a hasher. caller may be nil, in which case only the
// local path is used.
func NewOrderHasher(caller OrderHashCaller, domainSeparator [32]byte, log zerolog.Logger) *OrderHasher {
	return &OrderHasher{
		caller:          caller,
		domainSeparator: domainSeparator,
		attempts:        3,
		backoff:         500 * time.Millisecond,
		log:             log,
	}
}

// Hash returns the canonical hash for the order. Transient chain failures
// are retried with backoff before the local fallback; if both paths fail the
// swap attempt is aborted with types.ErrOrderHashUnavailable.
func (h *OrderHasher) Hash(ctx context.Context, order types.LimitOrder) ([32]byte, error) {
	var remoteErr error
	if h.caller != nil {
		for attempt := 0; attempt < h.attempts; attempt++ {
			hash, err := h.caller.HashOrder(ctx, order)
			if err == nil {
				return hash, nil
			}
			remoteErr = err
			if !errors.Is(err, types.ErrTransientChain) {
				// Function not present on this deployment; no point retrying.
				h.log.Debug().Err(err).Msg("hashOrder unavailable, using local hash")
				break
			}
			h.log.Warn().Err(err).Int("attempt", attempt+1).Msg("hashOrder call failed, retrying")
			select {
			case <-ctx.Done():
				return [32]byte{}, fmt.Errorf("order hash: %w: %w", types.ErrOrderHashUnavailable, ctx.Err())
			case <-time.After(h.backoff * time.Duration(attempt+1)):
			}
		}
	}

	hash, err := LocalOrderHash(order, h.domainSeparator)
	if err != nil {
		if remoteErr != nil {
			return [32]byte{}, fmt.Errorf("%w: remote: %v, local: %v", types.ErrOrderHashUnavailable, remoteErr, err)
		}
		return [32]byte{}, fmt.Errorf("%w: %v", types.ErrOrderHashUnavailable, err)
	}
	return hash, nil
}

// LocalOrderHash is a bytes-perfect mirror of the contract's hashOrder():
// keccak(0x1901 || domainSeparator || keccak(abi(typehash, order fields))).
func LocalOrderHash(order types.LimitOrder, domainSeparator [32]byte) ([32]byte, error) {
	maker, err := addressWord("maker", order.Maker)
	if err != nil {
		return [32]byte{}, err
	}
	receiver, err := addressWord("receiver", order.Receiver)
	if err != nil {
		return [32]byte{}, err
	}
	makerAsset, err := addressWord("makerAsset", order.MakerAsset)
	if err != nil {
		return [32]byte{}, err
	}
	takerAsset, err := addressWord("takerAsset", order.TakerAsset)
	if err != nil {
		return [32]byte{}, err
	}

	words := make([]byte, 0, 9*32)
	words = append(words, orderTypehash.Bytes()...)
	fields := []struct {
		name string
		val  *big.Int
	}{
		{"salt", order.Salt},
		{"maker", maker},
		{"receiver", receiver},
		{"makerAsset", makerAsset},
		{"takerAsset", takerAsset},
		{"makingAmount", order.MakingAmount},
		{"takingAmount", order.TakingAmount},
		{"makerTraits", order.MakerTraits},
	}
	for _, f := range fields {
		if f.val == nil || f.val.Sign() < 0 || f.val.BitLen() > 256 {
			return [32]byte{}, fmt.Errorf("order field %s out of uint256 range: %w", f.name, types.ErrEncoding)
		}
		words = append(words, f.val.FillBytes(make([]byte, 32))...)
	}

	structHash := crypto.Keccak256(words)

	preimage := make([]byte, 0, 2+32+32)
	preimage = append(preimage, 0x19, 0x01)
	preimage = append(preimage, domainSeparator[:]...)
	preimage = append(preimage, structHash...)

	var out [32]byte
	copy(out[:], crypto.Keccak256(preimage))
	return out, nil
}

// addressWord widens a 160-bit hex address into the uint256 word the order
// schema declares for Address-typed fields.
func addressWord(name, hexAddr string) (*big.Int, error) {
	if !common.IsHexAddress(hexAddr) {
		return nil, fmt.Errorf("order field %s is not an address: %w", name, types.ErrEncoding)
	}
	return new(big.Int).SetBytes(common.HexToAddress(hexAddr).Bytes()), nil
}

// BuildSalt derives the order salt the protocol expects when an extension is
// attached: low 160 bits are the low bits of keccak(extension), high 96 bits
// are random.
func BuildSalt(ext *Extension) (*big.Int, error) {
	extHash := ext.Hash()
	hashPart := new(big.Int).SetBytes(extHash[:])
	hashPart.And(hashPart, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1)))

	randBytes := make([]byte, 12)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, fmt.Errorf("salt entropy: %w", err)
	}
	randomPart := new(big.Int).Lsh(new(big.Int).SetBytes(randBytes), 160)

	return randomPart.Or(randomPart, hashPart), nil
}
