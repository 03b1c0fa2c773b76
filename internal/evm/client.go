// Package evm holds the Ethereum side of the swap: the limit order protocol
// view calls, escrow log filtering, and the event watcher.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/interstellar-swap/relayer/internal/types"
)

// lopABI covers the two view functions the coordinator needs from the limit
// order protocol. Order fields are uint256 words; the Address types in the
// contract are thin uint256 wrappers.
const lopABIJSON = `[
  {"inputs":[{"components":[
      {"internalType":"uint256","name":"salt","type":"uint256"},
      {"internalType":"uint256","name":"maker","type":"uint256"},
      {"internalType":"uint256","name":"receiver","type":"uint256"},
      {"internalType":"uint256","name":"makerAsset","type":"uint256"},
      {"internalType":"uint256","name":"takerAsset","type":"uint256"},
      {"internalType":"uint256","name":"makingAmount","type":"uint256"},
      {"internalType":"uint256","name":"takingAmount","type":"uint256"},
      {"internalType":"uint256","name":"makerTraits","type":"uint256"}],
    "internalType":"struct IOrderMixin.Order","name":"order","type":"tuple"}],
   "name":"hashOrder",
   "outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"DOMAIN_SEPARATOR",
   "outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],
   "stateMutability":"view","type":"function"}
]`

// orderTuple matches the hashOrder tuple argument.
type orderTuple struct {
	Salt         *big.Int
	Maker        *big.Int
	Receiver     *big.Int
	MakerAsset   *big.Int
	TakerAsset   *big.Int
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// Client wraps an Ethereum RPC connection with the escrow- and order-
// related calls the coordinator consumes. It prepares typed arguments
// only; nonces, gas and signing belong to the caller.
type Client struct {
	eth        *ethclient.Client
	lopAddress common.Address
	escrow     common.Address
	lopABI     abi.ABI
}

// Dial connects to an Ethereum RPC endpoint.
func Dial(ctx context.Context, rpcURL string, lopAddress, escrowAddress common.Address) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %v: %w", err, types.ErrTransientChain)
	}
	parsed, err := abi.JSON(strings.NewReader(lopABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse lop abi: %w", err)
	}
	return &Client{eth: eth, lopAddress: lopAddress, escrow: escrowAddress, lopABI: parsed}, nil
}

// Close tears down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HashOrder asks the protocol contract for the authoritative order hash.
// Network failures are reported as types.ErrTransientChain; a revert or an
// empty return means the deployment predates hashOrder.
func (c *Client) HashOrder(ctx context.Context, order types.LimitOrder) ([32]byte, error) {
	tuple, err := packOrderTuple(order)
	if err != nil {
		return [32]byte{}, err
	}
	data, err := c.lopABI.Pack("hashOrder", tuple)
	if err != nil {
		return [32]byte{}, fmt.Errorf("pack hashOrder: %w", types.ErrEncoding)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.lopAddress, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return [32]byte{}, fmt.Errorf("hashOrder not present on %s: %v", c.lopAddress.Hex(), err)
		}
		return [32]byte{}, fmt.Errorf("hashOrder call: %v: %w", err, types.ErrTransientChain)
	}
	if len(out) < 32 {
		return [32]byte{}, fmt.Errorf("hashOrder returned %d bytes", len(out))
	}

	var hash [32]byte
	copy(hash[:], out[:32])
	return hash, nil
}

// DomainSeparator fetches the protocol's EIP-712 domain separator for the
// local hash fallback.
func (c *Client) DomainSeparator(ctx context.Context) ([32]byte, error) {
	data, err := c.lopABI.Pack("DOMAIN_SEPARATOR")
	if err != nil {
		return [32]byte{}, fmt.Errorf("pack DOMAIN_SEPARATOR: %w", types.ErrEncoding)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.lopAddress, Data: data}, nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("DOMAIN_SEPARATOR call: %v: %w", err, types.ErrTransientChain)
	}
	if len(out) < 32 {
		return [32]byte{}, fmt.Errorf("DOMAIN_SEPARATOR returned %d bytes", len(out))
	}
	var sep [32]byte
	copy(sep[:], out[:32])
	return sep, nil
}

// BlockNumber returns the current head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %v: %w", err, types.ErrTransientChain)
	}
	return n, nil
}

// FilterEscrowLogs fetches escrow contract logs in [fromBlock, toBlock].
func (c *Client) FilterEscrowLogs(ctx context.Context, fromBlock, toBlock uint64) ([]ethtypes.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.escrow},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %v: %w", err, types.ErrTransientChain)
	}
	return logs, nil
}

// SubmitSigned broadcasts an already-signed transaction.
func (c *Client) SubmitSigned(ctx context.Context, rawTx []byte) (common.Hash, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return common.Hash{}, fmt.Errorf("decode signed tx: %w", types.ErrEncoding)
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %v: %w", err, types.ErrTransientChain)
	}
	return tx.Hash(), nil
}

func packOrderTuple(order types.LimitOrder) (orderTuple, error) {
	word := func(name, hexAddr string) (*big.Int, error) {
		if !common.IsHexAddress(hexAddr) {
			return nil, fmt.Errorf("order field %s is not an address: %w", name, types.ErrEncoding)
		}
		return new(big.Int).SetBytes(common.HexToAddress(hexAddr).Bytes()), nil
	}
	maker, err := word("maker", order.Maker)
	if err != nil {
		return orderTuple{}, err
	}
	receiver, err := word("receiver", order.Receiver)
	if err != nil {
		return orderTuple{}, err
	}
	makerAsset, err := word("makerAsset", order.MakerAsset)
	if err != nil {
		return orderTuple{}, err
	}
	takerAsset, err := word("takerAsset", order.TakerAsset)
	if err != nil {
		return orderTuple{}, err
	}
	if order.Salt == nil || order.MakingAmount == nil || order.TakingAmount == nil || order.MakerTraits == nil {
		return orderTuple{}, fmt.Errorf("order has nil numeric field: %w", types.ErrEncoding)
	}
	return orderTuple{
		Salt:         order.Salt,
		Maker:        maker,
		Receiver:     receiver,
		MakerAsset:   makerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: order.MakingAmount,
		TakingAmount: order.TakingAmount,
		MakerTraits:  order.MakerTraits,
	}, nil
}

func isRevert(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "revert") || strings.Contains(msg, "method not found")
}
