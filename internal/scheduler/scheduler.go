// Package scheduler drives the time-based side of the swap lifecycle.
// Chain events move swaps forward; timelock expiries are only observable by
// watching the clock, so a ticker re-evaluates every active swap and emits
// the action its timelocks now permit.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/engine"
	"github.com/interstellar-swap/relayer/internal/types"
)

// ActionSink receives the actions the scheduler decides on.
type ActionSink interface {
	Dispatch(ctx context.Context, action engine.Action)
}

// StateSync persists engine state transitions.
type StateSync interface {
	SyncState(hashlock string, state types.SwapState)
}

// Scheduler periodically re-derives the next action for every active swap.
type Scheduler struct {
	engine   *engine.Engine
	interval time.Duration
	sink     ActionSink
	sync     StateSync
	log      zerolog.Logger

	lastState map[types.Hashlock]types.SwapState
}

// NewScheduler builds a scheduler over the engine's active set.
func NewScheduler(eng *engine.Engine, interval time.Duration, sink ActionSink, sync StateSync, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:    eng,
		interval:  interval,
		sink:      sink,
		sync:      sync,
		log:       log.With().Str("component", "scheduler").Logger(),
		lastState: make(map[types.Hashlock]types.SwapState),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := uint64(time.Now().Unix())

	for _, record := range s.engine.Active() {
		if s.sync != nil {
			if prev, ok := s.lastState[record.Hashlock]; !ok || prev != record.State {
				s.sync.SyncState(record.Hashlock.String(), record.State)
				s.lastState[record.Hashlock] = record.State
			}
		}

		action, ok := engine.NextAction(record, now)
		if !ok {
			continue
		}
		// Only the clock-driven calls belong here; deploys are resolver
		// territory and withdrawals fire off the Claimed events.
		if action.Call != engine.CallCancel {
			continue
		}
		s.log.Info().Str("hashlock", record.Hashlock.String()).
			Str("chain", string(action.Chain)).Str("call", string(action.Call)).
			Msg("timelock expired")
		if s.sink != nil {
			s.sink.Dispatch(ctx, action)
		}
	}
}
