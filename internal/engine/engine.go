package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/types"
)

// StateSync persists swap state transitions the engine decides on.
type StateSync interface {
	SyncState(hashlock string, state types.SwapState)
}

// Engine owns the swap record table. Both watchers feed the intake channel;
// a single consumer goroutine started by Run is the only code that applies
// chain events, so per-chain ordering needs no further synchronization.
// The record pointers never leave the engine: Get and Active hand out
// detached copies. Terminal records move to a TTL cache and age out after
// the retention window.
type Engine struct {
	intake  chan types.NormalizedEvent
	actions chan Action
	log     zerolog.Logger
	now     func() time.Time
	sync    StateSync

	mu      sync.RWMutex
	records map[types.Hashlock]*types.SwapRecord
	retired *ttlcache.Cache[types.Hashlock, *types.SwapRecord]
}

// New builds an engine with the given intake buffer and terminal-record
// retention window.
func New(intakeBuffer int, retention time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		intake:  make(chan types.NormalizedEvent, intakeBuffer),
		actions: make(chan Action, 64),
		log:     log.With().Str("component", "engine").Logger(),
		now:     time.Now,
		records: make(map[types.Hashlock]*types.SwapRecord),
		retired: ttlcache.New[types.Hashlock, *types.SwapRecord](
			ttlcache.WithTTL[types.Hashlock, *types.SwapRecord](retention),
		),
	}
}

// SetStateSync registers the sink that persists terminal transitions.
// Active records are synced by the scheduler tick; a terminal record leaves
// the active set immediately, so its final state is pushed from here.
func (e *Engine) SetStateSync(sync StateSync) {
	e.sync = sync
}

// Intake is the channel the watchers write normalized events into.
func (e *Engine) Intake() chan<- types.NormalizedEvent {
	return e.intake
}

// Actions carries the outbound instructions the engine decides on.
// Consumers that fall behind lose the oldest advisory; NextAction is pure,
// so a dropped action is re-derived on the next event.
func (e *Engine) Actions() <-chan Action {
	return e.actions
}

// Seed registers a freshly accepted order before any chain event exists for
// it. Seeding an already-known hashlock is a no-op.
func (e *Engine) Seed(record *types.SwapRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.records[record.Hashlock]; ok {
		return
	}
	stored := record.Clone()
	if stored.State == "" {
		stored.State = types.StateCreated
	}
	stored.CreatedAt = e.now()
	stored.UpdatedAt = stored.CreatedAt
	e.records[record.Hashlock] = stored
	e.log.Info().Str("hashlock", record.Hashlock.String()).Msg("swap seeded")
}

// Get looks up a swap by hashlock, including retired terminal records still
// inside the retention window. The returned record is a copy.
func (e *Engine) Get(h types.Hashlock) (*types.SwapRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.records[h]; ok {
		return r.Clone(), true
	}
	if item := e.retired.Get(h); item != nil {
		return item.Value().Clone(), true
	}
	return nil, false
}

// Active returns copies of the records that have not reached a terminal
// state.
func (e *Engine) Active() []*types.SwapRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.SwapRecord, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Clone())
	}
	return out
}

// Run drains the intake until ctx is cancelled. It must be called exactly
// once.
func (e *Engine) Run(ctx context.Context) error {
	go e.retired.Start()
	defer e.retired.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.intake:
			e.apply(ev)
		}
	}
}

// apply folds one normalized event into its swap record. A transition into
// a terminal state is persisted immediately: the record leaves the active
// set here, so the scheduler sync will never see it again.
func (e *Engine) apply(ev types.NormalizedEvent) {
	state, terminal := e.fold(ev)
	if terminal && e.sync != nil {
		e.sync.SyncState(ev.Hashlock.String(), state)
	}
}

func (e *Engine) fold(ev types.NormalizedEvent) (types.SwapState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record, ok := e.records[ev.Hashlock]
	if !ok {
		if item := e.retired.Get(ev.Hashlock); item != nil {
			// Late event for a finished swap; terminal statuses never move.
			e.log.Debug().Str("hashlock", ev.Hashlock.String()).Str("kind", string(ev.Kind)).
				Msg("event for retired swap, ignoring")
			return "", false
		}
		// The chain can show an escrow before the order reaches the API.
		record = &types.SwapRecord{
			Hashlock:  ev.Hashlock,
			State:     types.StateCreated,
			CreatedAt: e.now(),
		}
		e.records[ev.Hashlock] = record
		e.log.Info().Str("hashlock", ev.Hashlock.String()).Str("chain", string(ev.Chain)).
			Msg("swap discovered from chain event")
	}

	changed, err := applyStatus(record, ev)
	if err != nil {
		e.log.Warn().Err(err).Str("hashlock", ev.Hashlock.String()).Msg("dropping event")
		return "", false
	}
	if !changed {
		e.log.Debug().Str("hashlock", ev.Hashlock.String()).Str("kind", string(ev.Kind)).
			Str("chain", string(ev.Chain)).Msg("duplicate event")
		return "", false
	}

	if ev.Kind == types.EventDeposited && record.DeployedAt == 0 {
		record.DeployedAt = uint64(e.now().Unix())
	}

	prev := record.State
	record.State = collapse(record)
	record.UpdatedAt = e.now()

	e.log.Info().
		Str("hashlock", ev.Hashlock.String()).
		Str("chain", string(ev.Chain)).
		Str("kind", string(ev.Kind)).
		Str("from", string(prev)).
		Str("to", string(record.State)).
		Msg("swap transition")

	if record.State.Terminal() {
		delete(e.records, ev.Hashlock)
		e.retired.Set(ev.Hashlock, record, ttlcache.DefaultTTL)
		return record.State, true
	}

	if action, ok := NextAction(record, uint64(e.now().Unix())); ok {
		select {
		case e.actions <- action:
		default:
			e.log.Warn().Str("hashlock", ev.Hashlock.String()).Str("call", string(action.Call)).
				Msg("action channel full, dropping")
		}
	}
	return record.State, false
}
