package evm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstellar-swap/relayer/internal/types"
)

type fakeLogSource struct {
	head    uint64
	headErr error
	logs    []ethtypes.Log
	logsErr error

	gotFrom, gotTo uint64
}

func (f *fakeLogSource) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeLogSource) FilterEscrowLogs(ctx context.Context, fromBlock, toBlock uint64) ([]ethtypes.Log, error) {
	f.gotFrom, f.gotTo = fromBlock, toBlock
	return f.logs, f.logsErr
}

var testHashlockTopic = common.HexToHash("0xabcdef0000000000000000000000000000000000000000000000000000000001")

func depositLog(block uint64) ethtypes.Log {
	return ethtypes.Log{
		BlockNumber: block,
		Topics:      []common.Hash{depositedTopic, testHashlockTopic},
	}
}

func claimLog(block uint64, secret [32]byte) ethtypes.Log {
	return ethtypes.Log{
		BlockNumber: block,
		Topics:      []common.Hash{claimedTopic, testHashlockTopic},
		Data:        secret[:],
	}
}

func newTestWatcher(source LogSource, startBlock uint64) *Watcher {
	return NewWatcher(source, startBlock, time.Millisecond, zerolog.Nop())
}

func TestNormalizeDeposited(t *testing.T) {
	w := newTestWatcher(&fakeLogSource{}, 1)

	ev, ok := w.normalize(depositLog(5))
	require.True(t, ok)
	assert.Equal(t, types.ChainEthereum, ev.Chain)
	assert.Equal(t, types.EventDeposited, ev.Kind)
	assert.Equal(t, types.Hashlock(testHashlockTopic), ev.Hashlock)
	assert.Equal(t, uint64(1), ev.Sequence)
}

func TestNormalizeClaimedCarriesSecret(t *testing.T) {
	w := newTestWatcher(&fakeLogSource{}, 1)

	secret := [32]byte{0x42}
	ev, ok := w.normalize(claimLog(5, secret))
	require.True(t, ok)
	assert.Equal(t, types.EventClaimed, ev.Kind)
	assert.Equal(t, secret[:], ev.Secret)
	// The hashlock comes from the indexed topic, not from rehashing.
	assert.Equal(t, types.Hashlock(testHashlockTopic), ev.Hashlock)
}

func TestNormalizeCancelled(t *testing.T) {
	w := newTestWatcher(&fakeLogSource{}, 1)

	ev, ok := w.normalize(ethtypes.Log{
		Topics: []common.Hash{cancelledTopic, testHashlockTopic},
	})
	require.True(t, ok)
	assert.Equal(t, types.EventCancelled, ev.Kind)
}

func TestNormalizeDropsUnknownAndRemoved(t *testing.T) {
	w := newTestWatcher(&fakeLogSource{}, 1)

	_, ok := w.normalize(ethtypes.Log{
		Topics: []common.Hash{common.HexToHash("0x1234"), testHashlockTopic},
	})
	assert.False(t, ok)

	removed := depositLog(5)
	removed.Removed = true
	_, ok = w.normalize(removed)
	assert.False(t, ok)

	_, ok = w.normalize(ethtypes.Log{Topics: []common.Hash{depositedTopic}})
	assert.False(t, ok)
}

func TestSequenceIsMonotonic(t *testing.T) {
	w := newTestWatcher(&fakeLogSource{}, 1)

	var last uint64
	for i := 0; i < 5; i++ {
		ev, ok := w.normalize(depositLog(uint64(i)))
		require.True(t, ok)
		assert.Greater(t, ev.Sequence, last)
		last = ev.Sequence
	}
}

func TestPollAdvancesCursorAfterDelivery(t *testing.T) {
	source := &fakeLogSource{head: 20, logs: []ethtypes.Log{depositLog(12), claimLog(13, [32]byte{0x01})}}
	w := newTestWatcher(source, 10)

	out := make(chan types.NormalizedEvent, 8)
	require.NoError(t, w.pollOnce(context.Background(), out))

	assert.Equal(t, uint64(10), source.gotFrom)
	assert.Equal(t, uint64(20), source.gotTo)
	assert.Equal(t, uint64(21), w.nextBlock)
	assert.Len(t, out, 2)

	first := <-out
	second := <-out
	assert.Equal(t, types.EventDeposited, first.Kind)
	assert.Equal(t, types.EventClaimed, second.Kind)
	assert.Less(t, first.Sequence, second.Sequence)
}

func TestPollKeepsCursorOnError(t *testing.T) {
	source := &fakeLogSource{head: 20, logsErr: fmt.Errorf("boom: %w", types.ErrTransientChain)}
	w := newTestWatcher(source, 10)

	out := make(chan types.NormalizedEvent, 8)
	require.NoError(t, w.pollOnce(context.Background(), out))
	assert.Equal(t, uint64(10), w.nextBlock)
}

func TestPollClampsRange(t *testing.T) {
	source := &fakeLogSource{head: 10_000}
	w := newTestWatcher(source, 1)

	out := make(chan types.NormalizedEvent, 1)
	require.NoError(t, w.pollOnce(context.Background(), out))

	assert.Equal(t, uint64(1), source.gotFrom)
	assert.Equal(t, uint64(1+maxBlockRange), source.gotTo)
	assert.Equal(t, uint64(1+maxBlockRange+1), w.nextBlock)
}

func TestPollAbandonsBatchOnCancel(t *testing.T) {
	source := &fakeLogSource{head: 20, logs: []ethtypes.Log{depositLog(12)}}
	w := newTestWatcher(source, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered channel with no reader: delivery must hit the ctx branch.
	out := make(chan types.NormalizedEvent)
	err := w.pollOnce(ctx, out)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(10), w.nextBlock)
}
