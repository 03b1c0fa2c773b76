// Package service implements order intake: validation, hashing, signature
// pre-flight, persistence, engine seeding, and resolver notification.
package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/codec"
	"github.com/interstellar-swap/relayer/internal/database"
	"github.com/interstellar-swap/relayer/internal/engine"
	"github.com/interstellar-swap/relayer/internal/types"
)

// Default phase deltas, in seconds, applied when the order omits timelocks.
var defaultTimelocks = types.Timelocks{
	Withdrawal:         10,
	PublicWithdrawal:   120,
	Cancellation:       300,
	PublicCancellation: 600,
}

// OrderService validates and registers incoming swap orders.
type OrderService struct {
	repo      *database.OrderRepository
	hasher    *codec.OrderHasher
	engine    *engine.Engine
	resolvers *ResolverRegistry
	log       zerolog.Logger
}

// NewOrderService wires the intake pipeline.
func NewOrderService(repo *database.OrderRepository, hasher *codec.OrderHasher, eng *engine.Engine, resolvers *ResolverRegistry, log zerolog.Logger) *OrderService {
	return &OrderService{
		repo:      repo,
		hasher:    hasher,
		engine:    eng,
		resolvers: resolvers,
		log:       log.With().Str("component", "orders").Logger(),
	}
}

// CreateOrder runs the full intake pipeline for one signed order: validate,
// hash, check the signature, persist, seed the engine, notify resolvers.
func (s *OrderService) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.SwapOrder, error) {
	hashlock, err := types.ParseHashlock(req.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("secret hash: %w", err)
	}

	makerStellar, err := types.ParseStellarAddress(req.MakerStellarAddress)
	if err != nil {
		return nil, fmt.Errorf("maker stellar address: %w", err)
	}

	direction, err := parseDirection(req.Direction)
	if err != nil {
		return nil, err
	}

	if err := validateExtension(req); err != nil {
		return nil, err
	}

	orderHash, err := s.hasher.Hash(ctx, req.Order)
	if err != nil {
		return nil, fmt.Errorf("order hash: %w", err)
	}

	if err := verifySignature(orderHash, req.Signature, req.Order.Maker); err != nil {
		return nil, err
	}

	timelocks := defaultTimelocks
	if req.Timelocks != nil {
		timelocks = *req.Timelocks
	}
	packed := codec.PackTimelocks(timelocks)

	safetyDeposit := big.NewInt(0)
	if req.SafetyDeposit != nil {
		safetyDeposit = new(big.Int).Set(req.SafetyDeposit)
	}

	originalOrder, err := json.Marshal(req.Order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	now := time.Now()
	order := &types.SwapOrder{
		OrderHash:           "0x" + hex.EncodeToString(orderHash[:]),
		Hashlock:            hashlock.String(),
		State:               types.StateCreated,
		Maker:               req.Order.Maker,
		MakerStellarAddress: makerStellar.String(),
		Receiver:            req.Order.Receiver,
		MakerAsset:          req.Order.MakerAsset,
		TakerAsset:          req.Order.TakerAsset,
		MakingAmount:        req.Order.MakingAmount,
		TakingAmount:        req.Order.TakingAmount,
		SafetyDeposit:       safetyDeposit,
		TimelocksPacked:     packed.String(),
		OriginalOrder:       originalOrder,
		Signature:           req.Signature,
		Extension:           req.Extension,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.CreateOrder(order); err != nil {
		return nil, err
	}

	s.engine.Seed(&types.SwapRecord{
		Hashlock:      hashlock,
		Direction:     direction,
		OrderHash:     orderHash,
		Maker:         req.Order.Maker,
		MakerStellar:  makerStellar,
		TokenEthereum: req.Order.MakerAsset,
		Amount:        types.FlatAmount(req.Order.TakingAmount),
		SafetyDeposit: safetyDeposit,
		Timelocks:     timelocks,
	})

	s.log.Info().
		Str("orderHash", order.OrderHash).
		Str("hashlock", order.Hashlock).
		Str("maker", order.Maker).
		Msg("order accepted")

	s.resolvers.Notify(ctx, order)

	return order, nil
}

// CheckResolvers probes the configured resolver set and keeps the healthy
// ones for order notifications.
func (s *OrderService) CheckResolvers(ctx context.Context) {
	s.resolvers.CheckHealth(ctx)
}

// GetOrderByHash returns an order by order hash, falling back to hashlock
// lookup so either key resolves.
func (s *OrderService) GetOrderByHash(hash string) (*types.SwapOrder, error) {
	order, err := s.repo.GetOrderByHash(hash)
	if err == nil {
		s.refreshState(order)
		return order, nil
	}
	order, err = s.repo.GetOrderByHashlock(hash)
	if err != nil {
		return nil, err
	}
	s.refreshState(order)
	return order, nil
}

// GetActiveOrders returns all non-terminal orders.
func (s *OrderService) GetActiveOrders() ([]*types.SwapOrder, error) {
	orders, err := s.repo.GetActiveOrders()
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		s.refreshState(o)
	}
	return orders, nil
}

// GetOrdersByMaker returns orders submitted by one maker address.
func (s *OrderService) GetOrdersByMaker(maker string) ([]*types.SwapOrder, error) {
	orders, err := s.repo.GetOrdersByMaker(maker)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		s.refreshState(o)
	}
	return orders, nil
}

// SyncState writes an engine transition back to the durable row.
func (s *OrderService) SyncState(hashlock string, state types.SwapState) {
	if err := s.repo.UpdateOrderStateByHashlock(hashlock, state); err != nil {
		s.log.Warn().Err(err).Str("hashlock", hashlock).Msg("failed to persist state")
	}
}

// refreshState overlays the live engine state, which leads the persisted one.
func (s *OrderService) refreshState(order *types.SwapOrder) {
	h, err := types.ParseHashlock(order.Hashlock)
	if err != nil {
		return
	}
	if record, ok := s.engine.Get(h); ok {
		order.State = record.State
	}
}

func parseDirection(raw string) (types.Direction, error) {
	switch strings.ToLower(raw) {
	case "", "maker2taker":
		return types.Maker2Taker, nil
	case "taker2maker":
		return types.Taker2Maker, nil
	default:
		return 0, fmt.Errorf("unknown direction %q: %w", raw, types.ErrEncoding)
	}
}

// validateExtension checks the extension block structure and its binding to
// the salt: the salt's low 160 bits must equal the low 160 bits of
// keccak(extension) whenever an extension is present.
func validateExtension(req *types.OrderRequest) error {
	if req.Extension == "" {
		return nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(req.Extension, "0x"))
	if err != nil {
		return fmt.Errorf("extension hex: %w", types.ErrEncoding)
	}
	if _, err := codec.DecodeExtensionOffsets(raw); err != nil {
		return err
	}
	if req.Order.Salt == nil {
		return fmt.Errorf("order with extension missing salt: %w", types.ErrEncoding)
	}

	mask := new(big.Int).Lsh(big.NewInt(1), 160)
	mask.Sub(mask, big.NewInt(1))
	want := new(big.Int).And(new(big.Int).SetBytes(crypto.Keccak256(raw)), mask)
	got := new(big.Int).And(req.Order.Salt, mask)
	if want.Cmp(got) != 0 {
		return fmt.Errorf("salt does not commit to extension: %w", types.ErrEncoding)
	}
	return nil
}

// verifySignature recovers the signer of the order hash from the 65-byte
// signature and requires it to be the maker.
func verifySignature(orderHash [32]byte, signature, maker string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return fmt.Errorf("signature must be 65 bytes of hex: %w", types.ErrSignatureMismatch)
	}

	// Accept both the raw 0/1 recovery id and the legacy 27/28 form.
	if sig[64] >= 27 {
		sig = append(append([]byte(nil), sig[:64]...), sig[64]-27)
	}

	pub, err := crypto.SigToPub(orderHash[:], sig)
	if err != nil {
		return fmt.Errorf("recover signer: %v: %w", err, types.ErrSignatureMismatch)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if !common.IsHexAddress(maker) || recovered != common.HexToAddress(maker) {
		return fmt.Errorf("signer %s is not maker %s: %w", recovered.Hex(), maker, types.ErrSignatureMismatch)
	}
	return nil
}
