package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstellar-swap/relayer/internal/types"
)

var testHashlock = types.Hashlock{0xab, 0xcd}

func newTestEngine() *Engine {
	return New(16, time.Hour, zerolog.Nop())
}

func seedTestSwap(e *Engine) {
	e.Seed(&types.SwapRecord{
		Hashlock:      testHashlock,
		Maker:         "0x1111111111111111111111111111111111111111",
		SafetyDeposit: big.NewInt(0),
		Timelocks: types.Timelocks{
			Withdrawal:         10,
			PublicWithdrawal:   120,
			Cancellation:       300,
			PublicCancellation: 600,
		},
	})
}

func event(chain types.Chain, kind types.EventKind) types.NormalizedEvent {
	ev := types.NormalizedEvent{Chain: chain, Kind: kind, Hashlock: testHashlock}
	if kind == types.EventClaimed {
		ev.Secret = []byte("0123456789abcdef0123456789abcdef")
	}
	return ev
}

func TestHappyPathToCompleted(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	steps := []struct {
		ev   types.NormalizedEvent
		want types.SwapState
	}{
		{event(types.ChainEthereum, types.EventDeposited), types.StateSrcDeposited},
		{event(types.ChainStellar, types.EventDeposited), types.StateBothDeposited},
		{event(types.ChainStellar, types.EventClaimed), types.StateDstWithdrawn},
	}

	for _, step := range steps {
		e.apply(step.ev)
		record, ok := e.Get(testHashlock)
		require.True(t, ok)
		assert.Equal(t, step.want, record.State)
	}

	e.apply(event(types.ChainEthereum, types.EventClaimed))
	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateCompleted, record.State)
	assert.NotEmpty(t, record.Secret)

	// Terminal records leave the active set but stay reachable.
	assert.Empty(t, e.Active())
}

func TestDuplicateEventsAreIdempotent(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	dep := event(types.ChainEthereum, types.EventDeposited)
	e.apply(dep)
	e.apply(dep)
	e.apply(dep)

	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateSrcDeposited, record.State)
	assert.Equal(t, types.EscrowDeployed, record.SrcStatus)
}

func TestOutOfOrderClaimSeedsDeposit(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	// Claimed arrives before its Deposited: the terminal status subsumes
	// the skipped step.
	e.apply(event(types.ChainStellar, types.EventClaimed))
	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.EscrowWithdrawn, record.DstStatus)
	assert.Equal(t, types.StateDstWithdrawn, record.State)

	// The late Deposited must not regress the status.
	e.apply(event(types.ChainStellar, types.EventDeposited))
	record, _ = e.Get(testHashlock)
	assert.Equal(t, types.EscrowWithdrawn, record.DstStatus)
	assert.Equal(t, types.StateDstWithdrawn, record.State)
}

func TestCancellationCollapse(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	e.apply(event(types.ChainEthereum, types.EventDeposited))
	e.apply(event(types.ChainEthereum, types.EventCancelled))

	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateCancelled, record.State)
	assert.True(t, record.State.Terminal())
}

func TestLateEventForRetiredSwapIgnored(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	e.apply(event(types.ChainEthereum, types.EventDeposited))
	e.apply(event(types.ChainEthereum, types.EventCancelled))

	// A replayed deposit after retirement changes nothing.
	e.apply(event(types.ChainEthereum, types.EventDeposited))
	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateCancelled, record.State)
}

func TestUnknownHashlockCreatesRecord(t *testing.T) {
	e := newTestEngine()

	e.apply(event(types.ChainStellar, types.EventDeposited))

	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateDstDeposited, record.State)
}

func TestUnknownEventKindDropped(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	e.apply(types.NormalizedEvent{Chain: types.ChainEthereum, Kind: "Reorged", Hashlock: testHashlock})

	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateCreated, record.State)
}

func TestCollapseTable(t *testing.T) {
	cases := []struct {
		src, dst types.EscrowStatus
		want     types.SwapState
	}{
		{types.EscrowNone, types.EscrowNone, types.StateCreated},
		{types.EscrowDeployed, types.EscrowNone, types.StateSrcDeposited},
		{types.EscrowNone, types.EscrowDeployed, types.StateDstDeposited},
		{types.EscrowDeployed, types.EscrowDeployed, types.StateBothDeposited},
		{types.EscrowWithdrawn, types.EscrowDeployed, types.StateSrcWithdrawn},
		{types.EscrowDeployed, types.EscrowWithdrawn, types.StateDstWithdrawn},
		{types.EscrowWithdrawn, types.EscrowWithdrawn, types.StateCompleted},
		{types.EscrowCancelled, types.EscrowDeployed, types.StateCancelled},
		{types.EscrowDeployed, types.EscrowCancelled, types.StateCancelled},
		{types.EscrowCancelled, types.EscrowCancelled, types.StateCancelled},
		// One side paid out, the other refunded: the payout wins the label.
		{types.EscrowWithdrawn, types.EscrowCancelled, types.StateSrcWithdrawn},
		{types.EscrowCancelled, types.EscrowWithdrawn, types.StateDstWithdrawn},
	}

	for _, tc := range cases {
		r := &types.SwapRecord{SrcStatus: tc.src, DstStatus: tc.dst}
		assert.Equal(t, tc.want, collapse(r), "src=%s dst=%s", tc.src, tc.dst)
	}
}

func TestNextActionSequencing(t *testing.T) {
	r := &types.SwapRecord{
		Hashlock:   testHashlock,
		State:      types.StateCreated,
		DeployedAt: 1000,
		Timelocks:  types.Timelocks{Withdrawal: 10, Cancellation: 300},
	}

	action, ok := NextAction(r, 1000)
	require.True(t, ok)
	assert.Equal(t, CallDeploySrc, action.Call)
	assert.Equal(t, types.ChainEthereum, action.Chain)

	r.SrcStatus = types.EscrowDeployed
	action, ok = NextAction(r, 1000)
	require.True(t, ok)
	assert.Equal(t, CallDeployDst, action.Call)
	assert.Equal(t, types.ChainStellar, action.Chain)

	// Both deployed, no secret, inside all windows: nothing to do.
	r.DstStatus = types.EscrowDeployed
	_, ok = NextAction(r, 1000)
	assert.False(t, ok)
}

func TestNextActionWithdrawWaitsForTimelock(t *testing.T) {
	r := &types.SwapRecord{
		Hashlock:   testHashlock,
		State:      types.StateBothDeposited,
		SrcStatus:  types.EscrowDeployed,
		DstStatus:  types.EscrowDeployed,
		Secret:     []byte("s"),
		DeployedAt: 1000,
		Timelocks:  types.Timelocks{Withdrawal: 10, Cancellation: 300},
	}

	_, ok := NextAction(r, 1005)
	assert.False(t, ok)

	action, ok := NextAction(r, 1010)
	require.True(t, ok)
	assert.Equal(t, CallWithdraw, action.Call)
	assert.Equal(t, types.ChainStellar, action.Chain)

	// Destination done: source withdrawal follows.
	r.DstStatus = types.EscrowWithdrawn
	r.State = types.StateDstWithdrawn
	action, ok = NextAction(r, 1010)
	require.True(t, ok)
	assert.Equal(t, CallWithdraw, action.Call)
	assert.Equal(t, types.ChainEthereum, action.Chain)
}

func TestNextActionCancelAfterExpiry(t *testing.T) {
	r := &types.SwapRecord{
		Hashlock:   testHashlock,
		State:      types.StateBothDeposited,
		SrcStatus:  types.EscrowDeployed,
		DstStatus:  types.EscrowDeployed,
		DeployedAt: 1000,
		Timelocks:  types.Timelocks{Withdrawal: 10, Cancellation: 300},
	}

	_, ok := NextAction(r, 1299)
	assert.False(t, ok)

	action, ok := NextAction(r, 1300)
	require.True(t, ok)
	assert.Equal(t, CallCancel, action.Call)
	assert.Equal(t, types.ChainEthereum, action.Chain)
}

func TestNextActionTerminalIsQuiet(t *testing.T) {
	r := &types.SwapRecord{Hashlock: testHashlock, State: types.StateCompleted}
	_, ok := NextAction(r, 99999)
	assert.False(t, ok)
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)
	e.apply(event(types.ChainEthereum, types.EventDeposited))

	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	record.State = types.StateCancelled
	record.SrcStatus = types.EscrowCancelled
	record.Secret = []byte("forged")

	fresh, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateSrcDeposited, fresh.State)
	assert.Equal(t, types.EscrowDeployed, fresh.SrcStatus)
	assert.Empty(t, fresh.Secret)
}

func TestActiveReturnsDetachedCopies(t *testing.T) {
	e := newTestEngine()
	seedTestSwap(e)

	active := e.Active()
	require.Len(t, active, 1)
	active[0].State = types.StateCompleted

	record, ok := e.Get(testHashlock)
	require.True(t, ok)
	assert.Equal(t, types.StateCreated, record.State)
	assert.Len(t, e.Active(), 1)
}

// Scheduler-style reads of the active set must be safe while the consumer
// goroutine is folding events into the same swaps.
func TestConcurrentReadersWhileConsuming(t *testing.T) {
	e := newTestEngine()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			now := uint64(time.Now().Unix())
			for _, record := range e.Active() {
				NextAction(record, now)
			}
			e.Get(testHashlock)
		}
	}()

	secret := []byte("0123456789abcdef0123456789abcdef")
	for i := 0; i < 200; i++ {
		h := types.Hashlock{byte(i), byte(i >> 8)}
		e.Intake() <- types.NormalizedEvent{Chain: types.ChainEthereum, Kind: types.EventDeposited, Hashlock: h}
		e.Intake() <- types.NormalizedEvent{Chain: types.ChainStellar, Kind: types.EventClaimed, Hashlock: h, Secret: secret}
	}

	close(stop)
	wg.Wait()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

type recordingSync struct {
	synced map[string]types.SwapState
}

func (r *recordingSync) SyncState(hashlock string, state types.SwapState) {
	r.synced[hashlock] = state
}

func TestTerminalTransitionIsSynced(t *testing.T) {
	e := newTestEngine()
	sink := &recordingSync{synced: make(map[string]types.SwapState)}
	e.SetStateSync(sink)
	seedTestSwap(e)

	// Non-terminal transitions are the scheduler tick's job.
	e.apply(event(types.ChainEthereum, types.EventDeposited))
	assert.Empty(t, sink.synced)

	// The record retires immediately, so its final state must be pushed
	// from the transition itself.
	e.apply(event(types.ChainEthereum, types.EventCancelled))
	assert.Equal(t, types.StateCancelled, sink.synced[testHashlock.String()])
	assert.Empty(t, e.Active())
}

func TestCompletedTransitionIsSynced(t *testing.T) {
	e := newTestEngine()
	sink := &recordingSync{synced: make(map[string]types.SwapState)}
	e.SetStateSync(sink)
	seedTestSwap(e)

	e.apply(event(types.ChainEthereum, types.EventDeposited))
	e.apply(event(types.ChainStellar, types.EventDeposited))
	e.apply(event(types.ChainStellar, types.EventClaimed))
	e.apply(event(types.ChainEthereum, types.EventClaimed))

	assert.Equal(t, types.StateCompleted, sink.synced[testHashlock.String()])
}
