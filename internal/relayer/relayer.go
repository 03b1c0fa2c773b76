// Package relayer wires the components together and runs them.
package relayer

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/api"
	"github.com/interstellar-swap/relayer/internal/auction"
	"github.com/interstellar-swap/relayer/internal/codec"
	"github.com/interstellar-swap/relayer/internal/config"
	"github.com/interstellar-swap/relayer/internal/database"
	"github.com/interstellar-swap/relayer/internal/engine"
	"github.com/interstellar-swap/relayer/internal/evm"
	"github.com/interstellar-swap/relayer/internal/scheduler"
	"github.com/interstellar-swap/relayer/internal/service"
	"github.com/interstellar-swap/relayer/internal/stellar"
)

// schedulerInterval is how often active swaps are re-checked against their
// timelocks.
const schedulerInterval = 5 * time.Second

// Relayer orchestrates all components of the swap coordinator.
type Relayer struct {
	config *config.Config
	log    zerolog.Logger

	db        *sql.DB
	orderRepo *database.OrderRepository

	evmClient     *evm.Client
	stellarClient *stellar.Client

	engine         *engine.Engine
	evmWatcher     *evm.Watcher
	stellarWatcher *stellar.Watcher
	scheduler      *scheduler.Scheduler
	orderService   *service.OrderService
	apiServer      *api.Server

	stopFunc context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a fully wired relayer.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Relayer, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	orderRepo := database.NewOrderRepository(db)

	evmClient, err := evm.Dial(ctx, cfg.Ethereum.HTTPUrl,
		common.HexToAddress(cfg.Ethereum.LimitOrderProtocolAddress),
		common.HexToAddress(cfg.Ethereum.EscrowAddress))
	if err != nil {
		db.Close()
		return nil, err
	}

	// The domain separator only changes with a redeploy, so one fetch at
	// startup covers the local-hash fallback for the process lifetime.
	domainSeparator, err := evmClient.DomainSeparator(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("domain separator unavailable, local order hashing disabled")
	}

	stellarClient := stellar.NewClient(cfg.Stellar.RPCUrl)

	eng := engine.New(cfg.Relayer.IntakeBuffer, cfg.Relayer.RetentionWindow, log)

	hasher := codec.NewOrderHasher(evmClient, domainSeparator, log)
	resolvers := service.NewResolverRegistry(cfg.Relayer.Resolvers, log)
	orderService := service.NewOrderService(orderRepo, hasher, eng, resolvers, log)
	eng.SetStateSync(orderService)

	r := &Relayer{
		config:        cfg,
		log:           log.With().Str("component", "relayer").Logger(),
		db:            db,
		orderRepo:     orderRepo,
		evmClient:     evmClient,
		stellarClient: stellarClient,
		engine:        eng,
		evmWatcher: evm.NewWatcher(evmClient, cfg.Ethereum.StartBlock,
			cfg.Ethereum.PollInterval, log),
		stellarWatcher: stellar.NewWatcher(stellarClient, cfg.Stellar.ContractID,
			cfg.Stellar.PollInterval, cfg.Stellar.BackfillLedgers, log),
		orderService: orderService,
		apiServer:    api.NewServer(cfg.API, orderService, log),
	}
	r.scheduler = scheduler.NewScheduler(eng, schedulerInterval, r, orderService, log)
	return r, nil
}

// Start launches every component and blocks until ctx is cancelled.
func (r *Relayer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.stopFunc = cancel

	r.orderService.CheckResolvers(ctx)

	r.run(ctx, "engine", r.engine.Run)
	r.run(ctx, "evm watcher", func(ctx context.Context) error {
		return r.evmWatcher.Run(ctx, r.engine.Intake())
	})
	r.run(ctx, "stellar watcher", func(ctx context.Context) error {
		return r.stellarWatcher.Run(ctx, r.engine.Intake())
	})
	r.run(ctx, "scheduler", r.scheduler.Run)
	r.run(ctx, "action drain", func(ctx context.Context) error {
		return r.drainActions(ctx)
	})
	r.run(ctx, "api", r.apiServer.Start)

	r.log.Info().Msg("relayer started")
	<-ctx.Done()
	return ctx.Err()
}

// Stop cancels the run context and waits for the components to exit.
func (r *Relayer) Stop() {
	if r.stopFunc != nil {
		r.stopFunc()
	}
	r.wg.Wait()
	r.evmClient.Close()
	if err := r.db.Close(); err != nil {
		r.log.Warn().Err(err).Msg("database close failed")
	}
	r.log.Info().Msg("relayer stopped")
}

// Dispatch receives decided actions from the engine and the scheduler.
// Submission is the resolvers' job; the coordinator records and announces
// the decision, priced at the current point of the order's amount curve.
func (r *Relayer) Dispatch(ctx context.Context, action engine.Action) {
	ev := r.log.Info().
		Str("hashlock", action.Hashlock.String()).
		Str("chain", string(action.Chain)).
		Str("call", string(action.Call))

	if record, ok := r.engine.Get(action.Hashlock); ok {
		if amount, err := auction.Evaluate(record.Amount, uint64(time.Now().Unix())); err == nil {
			ev = ev.Str("amount", amount.String())
		}
	}
	ev.Msg("action due")
}

// drainActions consumes the engine's event-driven action stream.
func (r *Relayer) drainActions(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case action := <-r.engine.Actions():
			r.Dispatch(ctx, action)
		}
	}
}

func (r *Relayer) run(ctx context.Context, name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Str("task", name).Msg("component exited")
		}
	}()
}
