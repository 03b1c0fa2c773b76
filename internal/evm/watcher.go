package evm

import (
	"context"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/types"
)

// Escrow event signatures. The hashlock is the first indexed topic on all
// three; Claimed additionally carries the revealed secret in its data.
var (
	depositedTopic = crypto.Keccak256Hash([]byte("Deposited(bytes32,address,uint256)"))
	claimedTopic   = crypto.Keccak256Hash([]byte("Claimed(bytes32,bytes32)"))
	cancelledTopic = crypto.Keccak256Hash([]byte("Cancelled(bytes32)"))
)

// maxBlockRange caps a single filter query; public providers reject wide
// ranges.
const maxBlockRange = 2000

// LogSource is the slice of the Ethereum RPC surface the watcher consumes.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterEscrowLogs(ctx context.Context, fromBlock, toBlock uint64) ([]ethtypes.Log, error)
}

// Watcher polls the escrow contract logs and normalizes them. The block
// cursor advances only after every log of a batch has been handed off, so
// a restart replays at most one batch and never skips one.
type Watcher struct {
	source       LogSource
	pollInterval time.Duration
	log          zerolog.Logger

	nextBlock uint64
	seq       uint64
}

// NewWatcher builds a watcher starting at startBlock. A zero startBlock
// means the chain head at the time Run is called.
func NewWatcher(source LogSource, startBlock uint64, pollInterval time.Duration, log zerolog.Logger) *Watcher {
	return &Watcher{
		source:       source,
		pollInterval: pollInterval,
		log:          log.With().Str("watcher", "ethereum").Logger(),
		nextBlock:    startBlock,
	}
}

// Run polls until ctx is cancelled, pushing normalized events into out in
// log order.
func (w *Watcher) Run(ctx context.Context, out chan<- types.NormalizedEvent) error {
	if w.nextBlock == 0 {
		head, err := w.waitForHead(ctx)
		if err != nil {
			return err
		}
		w.nextBlock = head
	}
	w.log.Info().Uint64("startBlock", w.nextBlock).Msg("watching escrow logs")

	for {
		if err := w.pollOnce(ctx, out); err != nil {
			return err
		}
		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context, out chan<- types.NormalizedEvent) error {
	head, err := w.source.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn().Err(err).Msg("head unavailable, backing off")
		return nil
	}
	if head < w.nextBlock {
		return nil
	}

	to := head
	if to-w.nextBlock > maxBlockRange {
		to = w.nextBlock + maxBlockRange
	}

	logs, err := w.source.FilterEscrowLogs(ctx, w.nextBlock, to)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn().Err(err).Uint64("from", w.nextBlock).Uint64("to", to).Msg("log query failed, backing off")
		return nil
	}

	for _, lg := range logs {
		ev, ok := w.normalize(lg)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			// Abandon the batch; the unchanged cursor means it will be
			// re-read on the next start.
			return ctx.Err()
		}
	}
	w.nextBlock = to + 1
	return nil
}

// normalize maps one escrow log into the common event shape. Logs with an
// unknown topic or a malformed shape are dropped with a warning.
func (w *Watcher) normalize(lg ethtypes.Log) (types.NormalizedEvent, bool) {
	if lg.Removed || len(lg.Topics) < 2 {
		return types.NormalizedEvent{}, false
	}

	ev := types.NormalizedEvent{Chain: types.ChainEthereum, Payload: lg.Data}

	switch lg.Topics[0] {
	case depositedTopic:
		ev.Kind = types.EventDeposited
	case claimedTopic:
		ev.Kind = types.EventClaimed
	case cancelledTopic:
		ev.Kind = types.EventCancelled
	default:
		w.log.Warn().Str("topic", lg.Topics[0].Hex()).Uint64("block", lg.BlockNumber).Msg("dropping unknown escrow log")
		return types.NormalizedEvent{}, false
	}

	ev.Hashlock = types.Hashlock(lg.Topics[1])

	if ev.Kind == types.EventClaimed {
		secret, ok := claimSecret(lg)
		if !ok {
			w.log.Warn().Str("tx", lg.TxHash.Hex()).Msg("claim log missing secret, dropping")
			return types.NormalizedEvent{}, false
		}
		ev.Secret = secret
	}

	w.seq++
	ev.Sequence = w.seq
	return ev, true
}

// claimSecret pulls the revealed preimage out of a Claimed log: the first
// data word, or a second indexed topic on older escrow deployments.
func claimSecret(lg ethtypes.Log) ([]byte, bool) {
	if len(lg.Data) >= 32 {
		secret := make([]byte, 32)
		copy(secret, lg.Data[:32])
		return secret, true
	}
	if len(lg.Topics) >= 3 {
		secret := make([]byte, 32)
		copy(secret, lg.Topics[2][:])
		return secret, true
	}
	return nil, false
}

func (w *Watcher) waitForHead(ctx context.Context) (uint64, error) {
	for {
		head, err := w.source.BlockNumber(ctx)
		if err == nil {
			return head, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.log.Warn().Err(err).Msg("head unavailable, retrying")
		if err := w.sleep(ctx); err != nil {
			return 0, err
		}
	}
}

func (w *Watcher) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.pollInterval):
		return nil
	}
}
