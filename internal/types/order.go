package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// LimitOrder represents a 1inch-style limit order as the EVM contract
// declares it. Address-typed fields are carried as hex strings and widened
// to uint256 words by the codec.
type LimitOrder struct {
	Salt         *big.Int `json:"salt"`
	Maker        string   `json:"maker"`
	Receiver     string   `json:"receiver"`
	MakerAsset   string   `json:"makerAsset"`
	TakerAsset   string   `json:"takerAsset"`
	MakingAmount *big.Int `json:"makingAmount"`
	TakingAmount *big.Int `json:"takingAmount"`
	MakerTraits  *big.Int `json:"makerTraits"`
}

// OrderRequest is the payload of POST /orders: a signed order plus the
// cross-chain parameters the escrows need.
type OrderRequest struct {
	Order               LimitOrder `json:"order"`
	Signature           string     `json:"signature"` // 65-byte r||s||v, hex
	MakerStellarAddress string     `json:"makerStellarAddress"`
	SecretHash          string     `json:"secretHash"` // hashlock, hex
	Direction           string     `json:"direction,omitempty"`
	SafetyDeposit       *big.Int   `json:"safetyDeposit,omitempty"`
	Timelocks           *Timelocks `json:"timelocks,omitempty"`
	Extension           string     `json:"extension,omitempty"`
}

// SwapOrder is a cross-chain swap order row as persisted in the database.
type SwapOrder struct {
	ID                  int64           `json:"id"`
	OrderHash           string          `json:"orderHash"`
	Hashlock            string          `json:"hashlock"`
	State               SwapState       `json:"state"`
	Maker               string          `json:"maker"`
	MakerStellarAddress string          `json:"makerStellarAddress"`
	Receiver            string          `json:"receiver"`
	MakerAsset          string          `json:"makerAsset"`
	TakerAsset          string          `json:"takerAsset"`
	MakingAmount        *big.Int        `json:"makingAmount"`
	TakingAmount        *big.Int        `json:"takingAmount"`
	SafetyDeposit       *big.Int        `json:"safetyDeposit"`
	TimelocksPacked     string          `json:"timelocksPacked"` // decimal uint256
	OriginalOrder       json.RawMessage `json:"originalOrder"`
	Signature           string          `json:"signature"`
	Extension           string          `json:"extension,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	ErrorMessage        string          `json:"errorMessage,omitempty"`
}

// ParseBigInt parses a base-10 integer string, as stored in the database.
func ParseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q: %w", s, ErrEncoding)
	}
	return v, nil
}

// OrderStatusResponse is the response for order status queries.
type OrderStatusResponse struct {
	OrderHash string    `json:"orderHash"`
	Hashlock  string    `json:"hashlock"`
	State     SwapState `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActiveOrdersResponse is the response for the active orders query.
type ActiveOrdersResponse struct {
	Orders []*SwapOrder `json:"orders"`
	Count  int          `json:"count"`
}
