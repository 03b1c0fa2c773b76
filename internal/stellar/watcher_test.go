package stellar

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstellar-swap/relayer/internal/types"
)

func b64ScVal(t *testing.T, v xdr.ScVal) string {
	t.Helper()
	s, err := xdr.MarshalBase64(v)
	require.NoError(t, err)
	return s
}

func newTestStellarWatcher(source EventSource) *Watcher {
	return NewWatcher(source, testContract, time.Millisecond, 2000, zerolog.Nop())
}

func TestNormalizeDepositEvent(t *testing.T) {
	w := newTestStellarWatcher(nil)

	hashlock := make([]byte, 32)
	hashlock[0] = 0x7f

	raw := ContractEvent{
		ID:     "0001-1",
		Topics: []string{b64ScVal(t, symVal("deposit")), b64ScVal(t, bytesVal(hashlock))},
	}

	ev, err := w.normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, types.ChainStellar, ev.Chain)
	assert.Equal(t, types.EventDeposited, ev.Kind)
	assert.Equal(t, hashlock, ev.Hashlock.Bytes())
	assert.Equal(t, uint64(1), ev.Sequence)
}

func TestNormalizeWithdrawRecomputesHashlock(t *testing.T) {
	w := newTestStellarWatcher(nil)

	secret := make([]byte, 32)
	copy(secret, "super secret preimage")

	value := b64ScVal(t, bytesVal(secret))
	raw := ContractEvent{
		ID:     "0002-1",
		Topics: []string{b64ScVal(t, symVal("withdraw"))},
		Value:  value,
	}

	ev, err := w.normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, types.EventClaimed, ev.Kind)
	assert.Equal(t, secret, ev.Secret)

	// The contract checks sha256(secret) == hashlock; the correlation key
	// is recomputed the same way.
	want := sha256.Sum256(secret)
	assert.Equal(t, types.Hashlock(want), ev.Hashlock)
}

func TestNormalizeCancelEvent(t *testing.T) {
	w := newTestStellarWatcher(nil)

	hashlock := make([]byte, 32)
	hashlock[31] = 0x01

	raw := ContractEvent{
		ID:     "0003-1",
		Topics: []string{b64ScVal(t, symVal("cancel")), b64ScVal(t, bytesVal(hashlock))},
	}

	ev, err := w.normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, types.EventCancelled, ev.Kind)
	assert.Equal(t, hashlock, ev.Hashlock.Bytes())
}

func TestNormalizeCancelCorrelatesByContract(t *testing.T) {
	w := newTestStellarWatcher(nil)

	hashlock := make([]byte, 32)
	hashlock[9] = 0x09

	// The escrow announces its hashlock at deposit time; its cancel event
	// publishes an empty payload, so only the contract id links the two.
	deposit := ContractEvent{
		ID:         "0004-1",
		ContractID: testContract,
		Topics:     []string{b64ScVal(t, symVal("deposit")), b64ScVal(t, bytesVal(hashlock))},
	}
	_, err := w.normalize(deposit)
	require.NoError(t, err)

	cancel := ContractEvent{
		ID:         "0005-1",
		ContractID: testContract,
		Topics:     []string{b64ScVal(t, symVal("cancel"))},
	}
	ev, err := w.normalize(cancel)
	require.NoError(t, err)
	assert.Equal(t, types.EventCancelled, ev.Kind)
	assert.Equal(t, hashlock, ev.Hashlock.Bytes())
}

func TestNormalizeCancelFromUnknownEscrowDropped(t *testing.T) {
	w := newTestStellarWatcher(nil)

	raw := ContractEvent{
		ContractID: testContract,
		Topics:     []string{b64ScVal(t, symVal("cancel"))},
	}
	_, err := w.normalize(raw)
	assert.ErrorIs(t, err, types.ErrUnknownEvent)
}

func TestNormalizeRejectsUnknownTopic(t *testing.T) {
	w := newTestStellarWatcher(nil)

	raw := ContractEvent{
		Topics: []string{b64ScVal(t, symVal("liquidated"))},
	}

	_, err := w.normalize(raw)
	assert.ErrorIs(t, err, types.ErrUnknownEvent)
}

func TestNormalizeRejectsMalformedPayload(t *testing.T) {
	w := newTestStellarWatcher(nil)

	// Withdraw without any 32-byte secret anywhere.
	raw := ContractEvent{
		Topics: []string{b64ScVal(t, symVal("withdraw"))},
	}
	_, err := w.normalize(raw)
	assert.ErrorIs(t, err, types.ErrUnknownEvent)

	// Deposit with a wrong-sized digest.
	raw = ContractEvent{
		Topics: []string{b64ScVal(t, symVal("deposit")), b64ScVal(t, bytesVal(make([]byte, 16)))},
	}
	_, err = w.normalize(raw)
	assert.ErrorIs(t, err, types.ErrUnknownEvent)

	// Undecodable topic XDR.
	raw = ContractEvent{Topics: []string{"!!not-xdr!!"}}
	_, err = w.normalize(raw)
	assert.ErrorIs(t, err, types.ErrUnknownEvent)
}

type scriptedSource struct {
	latest uint32
	pages  []*EventsPage
	calls  int

	gotStart  uint32
	gotCursor []string
}

func (s *scriptedSource) GetLatestLedger(ctx context.Context) (uint32, error) {
	return s.latest, nil
}

func (s *scriptedSource) GetEvents(ctx context.Context, contractID string, startLedger uint32, cursor string, pageSize int) (*EventsPage, error) {
	if s.calls == 0 {
		s.gotStart = startLedger
	}
	s.gotCursor = append(s.gotCursor, cursor)
	page := s.pages[len(s.pages)-1]
	if s.calls < len(s.pages) {
		page = s.pages[s.calls]
	}
	s.calls++
	return page, nil
}

func TestRunBackfillsAndPaginates(t *testing.T) {
	hashlock := make([]byte, 32)
	hashlock[5] = 0x05

	depositEvent := ContractEvent{
		ID:     "a",
		Topics: []string{"", ""},
	}
	depositEvent.Topics[0] = b64ScVal(t, symVal("deposit"))
	depositEvent.Topics[1] = b64ScVal(t, bytesVal(hashlock))

	source := &scriptedSource{
		latest: 5000,
		pages: []*EventsPage{
			{Cursor: "c1", Events: []ContractEvent{depositEvent}},
			{Cursor: "c2"},
		},
	}
	w := newTestStellarWatcher(source)

	out := make(chan types.NormalizedEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	select {
	case ev := <-out:
		assert.Equal(t, types.EventDeposited, ev.Kind)
		assert.Equal(t, hashlock, ev.Hashlock.Bytes())
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	// Give the loop one more cycle so the cursor is consumed.
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Startup looks back the configured number of ledgers.
	assert.Equal(t, uint32(3000), source.gotStart)
	// First page with no cursor, later pages resume from the returned one.
	require.GreaterOrEqual(t, len(source.gotCursor), 2)
	assert.Equal(t, "", source.gotCursor[0])
	assert.Equal(t, "c1", source.gotCursor[1])
}

func TestRunKeepsCursorOnEmptyPageCursor(t *testing.T) {
	source := &scriptedSource{
		latest: 5000,
		pages: []*EventsPage{
			{Cursor: "c1"},
			{Cursor: ""},
		},
	}
	w := newTestStellarWatcher(source)

	out := make(chan types.NormalizedEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// A page with no continuation token must not reset the scan; later
	// polls keep resuming from the last real cursor.
	require.GreaterOrEqual(t, len(source.gotCursor), 3)
	assert.Equal(t, "c1", source.gotCursor[1])
	assert.Equal(t, "c1", source.gotCursor[2])
}
