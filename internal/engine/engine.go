// Package engine runs one mint engine over any number of sale tiers: it
// keeps each tier's snapshot fresh, gates and starts mint sessions and
// reconciles state after every mint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
	"github.com/rovshanmuradov/candymint/internal/budget"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
	"github.com/rovshanmuradov/candymint/internal/confirm"
	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/events"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/logger"
	"github.com/rovshanmuradov/candymint/internal/metrics"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

var (
	// ErrUnknownTier is returned for a tier name the engine was not built with.
	ErrUnknownTier = errors.New("unknown tier")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// Options tune scheduling, commitments and transaction limits.
type Options struct {
	RefreshInterval    time.Duration
	RefreshCommitment  rpc.CommitmentType
	PostMintCommitment rpc.CommitmentType
	TxTimeout          time.Duration
	ConfirmPoll        time.Duration
	TxSizeLimit        uint32
}

// DefaultOptions mirrors the production configuration defaults.
func DefaultOptions() Options {
	return Options{
		RefreshInterval:    20 * time.Second,
		RefreshCommitment:  rpc.CommitmentConfirmed,
		PostMintCommitment: rpc.CommitmentProcessed,
		TxTimeout:          mintflow.DefaultTimeout,
		ConfirmPoll:        confirm.DefaultPollInterval,
		TxSizeLimit:        budget.DefaultLimit,
	}
}

// Engine is safe for concurrent use. Tiers share nothing but the ledger
// client and the signer, both read-only from the engine's side.
type Engine struct {
	ledger    blockchain.LedgerClient
	signer    mintflow.Signer
	builder   *eligibility.Builder
	estimator budget.Estimator
	bus       *events.Bus
	metrics   *metrics.Collector
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	tiers map[string]*tierRuntime
	order []string

	// base bounds background work; Close cancels it
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New builds an engine over tiers.
func New(
	ledger blockchain.LedgerClient,
	signer mintflow.Signer,
	tiers []TierSpec,
	opts Options,
	bus *events.Bus,
	collector *metrics.Collector,
	logger *zap.Logger,
) (*Engine, error) {
	if len(tiers) == 0 {
		return nil, errors.New("no tiers")
	}
	if opts.RefreshInterval <= 0 {
		return nil, fmt.Errorf("invalid refresh interval %s", opts.RefreshInterval)
	}

	base, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ledger:    ledger,
		signer:    signer,
		builder:   eligibility.NewBuilder(ledger, logger),
		estimator: budget.New(opts.TxSizeLimit),
		bus:       bus,
		metrics:   collector,
		opts:      opts,
		logger:    logger.Named("engine"),
		now:       time.Now,
		tiers:     make(map[string]*tierRuntime, len(tiers)),
		base:      base,
		cancel:    cancel,
	}

	for _, spec := range tiers {
		if _, dup := e.tiers[spec.Name]; dup {
			cancel()
			return nil, fmt.Errorf("duplicate tier %q", spec.Name)
		}
		if spec.ProgramID.IsZero() {
			spec.ProgramID = candymachine.ProgramID
		}
		rt := &tierRuntime{spec: spec}

		waiter := confirm.NewWaiter(ledger, logger)
		waiter.PollInterval = opts.ConfirmPoll
		rt.orch = mintflow.New(spec.Name, ledger, signer, waiter, opts.TxTimeout, e.hooksFor(rt), logger)

		e.tiers[spec.Name] = rt
		e.order = append(e.order, spec.Name)
	}
	return e, nil
}

// Tiers returns tier names in configuration order.
func (e *Engine) Tiers() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

func (e *Engine) tier(name string) (*tierRuntime, error) {
	rt, ok := e.tiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, name)
	}
	return rt, nil
}

// Refresh re-reads the tier from the ledger at the refresh commitment. It
// runs even for tiers disabled by a missing config and re-enables them on
// success.
func (e *Engine) Refresh(ctx context.Context, tier string) (eligibility.Snapshot, error) {
	rt, err := e.tier(tier)
	if err != nil {
		return eligibility.Snapshot{}, err
	}
	return e.refresh(ctx, rt, e.opts.RefreshCommitment)
}

// Snapshot returns the tier's latest snapshot, if one was ever produced.
func (e *Engine) Snapshot(tier string) (eligibility.Snapshot, bool) {
	rt, err := e.tier(tier)
	if err != nil {
		return eligibility.Snapshot{}, false
	}
	return rt.current()
}

// Status returns a view of the tier for display.
func (e *Engine) Status(tier string) (TierStatus, error) {
	rt, err := e.tier(tier)
	if err != nil {
		return TierStatus{}, err
	}
	return rt.status(), nil
}

func (e *Engine) refresh(ctx context.Context, rt *tierRuntime, commitment rpc.CommitmentType) (eligibility.Snapshot, error) {
	name := rt.spec.Name
	start := time.Now()
	defer logger.Track(logger.Tier(e.logger, name), "refresh")()

	snap, state, err := e.builder.Refresh(ctx, name, rt.spec.CandyMachine, rt.spec.ProgramID, e.signer.PublicKey(), e.now(), commitment)
	var coll *candymachine.CollectionPDA
	if err == nil {
		coll, err = e.loadCollection(ctx, state, commitment)
	}
	e.metrics.RecordRefresh(name, time.Since(start), err)

	if err != nil {
		ferr := failure.Classify(err)
		rt.fail(ferr)
		e.logger.Debug("Refresh failed",
			zap.String("tier", name),
			zap.String("kind", string(ferr.Kind)),
			zap.Error(err))
		_ = e.bus.PublishSync(ctx, events.NewRefreshFailed(name, ferr))
		return eligibility.Snapshot{}, ferr
	}

	est := e.estimator.Estimate(state.Config, coll != nil && state.Config.RetainAuthority)
	rt.store(snap, state, coll, est)
	e.metrics.ObserveSnapshot(snap)
	_ = e.bus.PublishSync(ctx, events.NewSnapshotRefreshed(snap, false))
	return snap, nil
}

// loadCollection returns the tier's collection PDA, nil when the candy
// machine has none.
func (e *Engine) loadCollection(ctx context.Context, state *candymachine.State, commitment rpc.CommitmentType) (*candymachine.CollectionPDA, error) {
	addr, err := candymachine.FindCollectionPDA(state.Address, state.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive collection pda: %w", err)
	}
	data, err := e.ledger.GetAccount(ctx, addr, commitment)
	switch {
	case errors.Is(err, blockchain.ErrAccountNotFound):
		return nil, nil
	case err != nil:
		return nil, failure.New(failure.NetworkUnavailable, err)
	}

	coll, err := candymachine.DecodeCollectionPDA(addr, data)
	if err != nil {
		e.logger.Warn("Ignoring undecodable collection PDA",
			zap.String("address", addr.String()),
			zap.Error(err))
		return nil, nil
	}
	return coll, nil
}

// refreshAll refreshes every enabled tier concurrently. One tier's failure
// never cancels another's.
func (e *Engine) refreshAll(ctx context.Context, commitment rpc.CommitmentType) {
	var g errgroup.Group
	for _, name := range e.order {
		rt := e.tiers[name]
		if rt.isDisabled() {
			continue
		}
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, e.opts.RefreshInterval)
			defer cancel()
			_, _ = e.refresh(tctx, rt, commitment)
			return nil
		})
	}
	_ = g.Wait()
}

// Run refreshes every tier immediately and then on each interval until ctx
// is cancelled. Each tier runs its own loop so a slow tier never delays
// another.
func (e *Engine) Run(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range e.order {
		rt := e.tiers[name]
		g.Go(func() error {
			e.poll(gctx, rt)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (e *Engine) poll(ctx context.Context, rt *tierRuntime) {
	ticker := time.NewTicker(e.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		if rt.isDisabled() {
			e.logger.Debug("Skipping disabled tier", zap.String("tier", rt.spec.Name))
		} else {
			tctx, cancel := context.WithTimeout(ctx, e.opts.RefreshInterval)
			_, _ = e.refresh(tctx, rt, e.opts.RefreshCommitment)
			cancel()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartMint checks the tier's latest snapshot and starts a mint session.
// The returned channel receives one event per state transition and is
// closed after the terminal one.
func (e *Engine) StartMint(ctx context.Context, tier string) (<-chan mintflow.Event, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	rt, err := e.tier(tier)
	if err != nil {
		return nil, err
	}

	snap, ok := rt.current()
	if !ok {
		if snap, err = e.refresh(ctx, rt, e.opts.RefreshCommitment); err != nil {
			return nil, err
		}
	}
	if ferr := admit(snap, e.now()); ferr != nil {
		e.logger.Info("Mint refused",
			zap.String("tier", tier),
			zap.String("kind", string(ferr.Kind)))
		return nil, ferr
	}

	rt.markStarted(e.now())
	ch, err := rt.orch.Start(ctx, rt.plan(e.opts.PostMintCommitment))
	if err != nil {
		return nil, err
	}

	out := make(chan mintflow.Event, 8)
	go func() {
		defer close(out)
		for ev := range ch {
			e.metrics.RecordTransition(ev)
			_ = e.bus.Publish(events.NewMintTransition(ev))
			out <- ev
		}
	}()
	return out, nil
}

// CancelMint abandons the tier's running session, if any.
func (e *Engine) CancelMint(tier string) error {
	rt, err := e.tier(tier)
	if err != nil {
		return err
	}
	rt.orch.Cancel()
	return nil
}

func (e *Engine) hooksFor(rt *tierRuntime) mintflow.Hooks {
	return mintflow.Hooks{
		OnTerminal: func(ev mintflow.Event) {
			e.metrics.RecordSession(ev, rt.startedAt())
			_ = e.bus.PublishSync(e.base, events.NewMintSettled(ev))
		},
		OnMinted: func(_ context.Context, ev mintflow.Event) {
			if e.closed.Load() {
				return
			}
			if snap, ok := rt.applyOptimistic(); ok {
				e.metrics.ObserveSnapshot(snap)
				_ = e.bus.PublishSync(e.base, events.NewSnapshotRefreshed(snap, true))
			}
			// every tier, not just the minted one
			e.background(func(ctx context.Context) {
				e.refreshAll(ctx, e.opts.PostMintCommitment)
			})
		},
		OnSettled: func(_ context.Context, ev mintflow.Event) {
			if e.closed.Load() {
				return
			}
			e.background(func(ctx context.Context) {
				tctx, cancel := context.WithTimeout(ctx, e.opts.RefreshInterval)
				defer cancel()
				_, _ = e.refresh(tctx, rt, e.opts.RefreshCommitment)
			})
		},
	}
}

func (e *Engine) background(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.base)
	}()
}

// Close cancels running sessions and waits for background refreshes.
// Cancelled sessions never apply their optimistic update.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	for _, name := range e.order {
		e.tiers[name].orch.Cancel()
	}
	e.cancel()
	e.wg.Wait()
}
