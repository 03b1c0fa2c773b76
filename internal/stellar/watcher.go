package stellar

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stellar/go/xdr"

	"github.com/interstellar-swap/relayer/internal/types"
)

// EventSource is the slice of the Soroban RPC surface the watcher consumes.
type EventSource interface {
	GetLatestLedger(ctx context.Context) (uint32, error)
	GetEvents(ctx context.Context, contractID string, startLedger uint32, cursor string, pageSize int) (*EventsPage, error)
}

// Watcher polls the escrow contract for lifecycle events and normalizes
// them. Transient RPC failures never terminate the loop; decode failures
// drop the single event and keep going.
type Watcher struct {
	source       EventSource
	contractID   string
	pollInterval time.Duration
	pageSize     int
	backfill     uint32 // ledgers to look back on startup
	log          zerolog.Logger

	cursor string
	seq    uint64

	// escrows maps escrow contract ids to hashlocks. Each escrow is
	// deployed with its hashlock as the salt and its cancel event carries
	// no payload at all, so cancels correlate by emitting contract.
	escrows map[string]types.Hashlock
}

// NewWatcher builds a watcher over the given event source.
func NewWatcher(source EventSource, contractID string, pollInterval time.Duration, backfill uint32, log zerolog.Logger) *Watcher {
	return &Watcher{
		source:       source,
		contractID:   contractID,
		pollInterval: pollInterval,
		pageSize:     100,
		backfill:     backfill,
		log:          log.With().Str("watcher", "stellar").Logger(),
		escrows:      make(map[string]types.Hashlock),
	}
}

// Run polls until ctx is cancelled, pushing normalized events into out.
// A page is either delivered completely or not at all: the cursor only
// advances after every event of the page has been handed off.
func (w *Watcher) Run(ctx context.Context, out chan<- types.NormalizedEvent) error {
	startLedger, err := w.startLedger(ctx)
	if err != nil {
		return err
	}
	w.log.Info().Uint32("startLedger", startLedger).Str("contract", w.contractID).Msg("watching escrow events")

	for {
		page, err := w.source.GetEvents(ctx, w.contractID, startLedger, w.cursor, w.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn().Err(err).Msg("event poll failed, backing off")
			if err := w.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		for _, raw := range page.Events {
			ev, err := w.normalize(raw)
			if err != nil {
				w.log.Warn().Err(err).Str("eventId", raw.ID).Msg("dropping undecodable event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// Abandon the partially-sent page; the unchanged cursor
				// means nothing from it was committed.
				return ctx.Err()
			}
		}
		// An empty cursor would restart the scan from the backfill ledger
		// on the next poll; only a real continuation token replaces one.
		if page.Cursor != "" {
			w.cursor = page.Cursor
		}

		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

func (w *Watcher) startLedger(ctx context.Context) (uint32, error) {
	for {
		latest, err := w.source.GetLatestLedger(ctx)
		if err == nil {
			if latest > w.backfill {
				return latest - w.backfill, nil
			}
			return 0, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.log.Warn().Err(err).Msg("latest ledger unavailable, retrying")
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

// normalize decodes the XDR topics/value of one contract event into the
// common event shape.
func (w *Watcher) normalize(raw ContractEvent) (types.NormalizedEvent, error) {
	topics, err := decodeScVals(raw.Topics)
	if err != nil {
		return types.NormalizedEvent{}, err
	}
	var value xdr.ScVal
	if raw.Value != "" {
		if err := xdr.SafeUnmarshalBase64(raw.Value, &value); err != nil {
			return types.NormalizedEvent{}, fmt.Errorf("event value: %v: %w", err, types.ErrUnknownEvent)
		}
	}

	name := firstSymbol(topics)
	ev := types.NormalizedEvent{Chain: types.ChainStellar, Payload: []byte(raw.Value)}

	switch name {
	case "deposit", "deposited", "1inch_order_created":
		ev.Kind = types.EventDeposited
	case "withdraw":
		ev.Kind = types.EventClaimed
	case "cancel":
		ev.Kind = types.EventCancelled
	default:
		return types.NormalizedEvent{}, fmt.Errorf("topic %q: %w", name, types.ErrUnknownEvent)
	}

	switch ev.Kind {
	case types.EventClaimed:
		secret, ok := firstBytes(append(valueItems(value), topics...))
		if !ok {
			return types.NormalizedEvent{}, fmt.Errorf("withdraw event missing secret: %w", types.ErrUnknownEvent)
		}
		ev.Secret = secret
		// The Soroban escrow verifies sha256(secret) == hashlock, so the
		// correlation key is recomputed the same way.
		ev.Hashlock = sha256.Sum256(secret)

	case types.EventCancelled:
		// The cancel event publishes nothing, not even the hashlock; the
		// escrow address observed at deposit time is the only handle.
		if raw32, ok := firstBytes(append(topics, valueItems(value)...)); ok {
			hl, err := types.HashlockFromBytes(raw32)
			if err != nil {
				return types.NormalizedEvent{}, fmt.Errorf("%v: %w", err, types.ErrUnknownEvent)
			}
			ev.Hashlock = hl
			break
		}
		hl, ok := w.escrows[raw.ContractID]
		if !ok {
			return types.NormalizedEvent{}, fmt.Errorf("cancel from unknown escrow %s: %w", raw.ContractID, types.ErrUnknownEvent)
		}
		ev.Hashlock = hl

	default:
		raw32, ok := firstBytes(append(topics, valueItems(value)...))
		if !ok {
			return types.NormalizedEvent{}, fmt.Errorf("%s event missing hashlock: %w", ev.Kind, types.ErrUnknownEvent)
		}
		hl, err := types.HashlockFromBytes(raw32)
		if err != nil {
			return types.NormalizedEvent{}, fmt.Errorf("%v: %w", err, types.ErrUnknownEvent)
		}
		ev.Hashlock = hl
	}

	// The mapping lives from deposit until the escrow's terminal event.
	if raw.ContractID != "" {
		if ev.Kind == types.EventDeposited {
			w.escrows[raw.ContractID] = ev.Hashlock
		} else {
			delete(w.escrows, raw.ContractID)
		}
	}

	w.seq++
	ev.Sequence = w.seq
	return ev, nil
}

func decodeScVals(b64s []string) ([]xdr.ScVal, error) {
	vals := make([]xdr.ScVal, 0, len(b64s))
	for _, s := range b64s {
		var v xdr.ScVal
		if err := xdr.SafeUnmarshalBase64(s, &v); err != nil {
			return nil, fmt.Errorf("event topic: %v: %w", err, types.ErrUnknownEvent)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func firstSymbol(vals []xdr.ScVal) string {
	for _, v := range vals {
		if v.Type == xdr.ScValTypeScvSymbol && v.Sym != nil {
			return string(*v.Sym)
		}
	}
	return ""
}

// firstBytes returns the first 32-byte Bytes value found, searching nested
// vectors one level deep.
func firstBytes(vals []xdr.ScVal) ([]byte, bool) {
	for _, v := range vals {
		if v.Type == xdr.ScValTypeScvBytes && v.Bytes != nil && len(*v.Bytes) == 32 {
			b := make([]byte, 32)
			copy(b, *v.Bytes)
			return b, true
		}
	}
	return nil, false
}

func valueItems(v xdr.ScVal) []xdr.ScVal {
	if v.Type == xdr.ScValTypeScvVec && v.Vec != nil && *v.Vec != nil {
		return []xdr.ScVal(**v.Vec)
	}
	if v.Type == xdr.ScValTypeScvMap && v.Map != nil && *v.Map != nil {
		items := make([]xdr.ScVal, 0, len(**v.Map))
		for _, entry := range **v.Map {
			items = append(items, entry.Val)
		}
		return items
	}
	if v.Type == xdr.ScValTypeScvBytes {
		return []xdr.ScVal{v}
	}
	return nil
}
