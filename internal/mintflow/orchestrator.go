package mintflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
	"github.com/rovshanmuradov/candymint/internal/confirm"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/logger"
)

var (
	// ErrMintInProgress is returned when a session is already running for the tier.
	ErrMintInProgress = errors.New("mint already in progress")
	// ErrInvalidPlan is returned when a plan has no candy machine state.
	ErrInvalidPlan = errors.New("mint plan has no candy machine state")
)

// DefaultTimeout bounds each confirmation wait.
const DefaultTimeout = 30 * time.Second

// eventBuffer holds every event a session can emit, so a slow reader never
// stalls the session.
const eventBuffer = 8

// Orchestrator runs at most one mint session at a time for one tier and
// wallet. A confirmed setup is kept across sessions until a mint consumes it.
type Orchestrator struct {
	tier    string
	ledger  blockchain.LedgerClient
	signer  Signer
	waiter  *confirm.Waiter
	hooks   Hooks
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	setup   *SetupHandle
}

// New creates an orchestrator for tier. A zero timeout uses DefaultTimeout.
func New(
	tier string,
	ledger blockchain.LedgerClient,
	signer Signer,
	waiter *confirm.Waiter,
	timeout time.Duration,
	hooks Hooks,
	logger *zap.Logger,
) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		tier:    tier,
		ledger:  ledger,
		signer:  signer,
		waiter:  waiter,
		hooks:   hooks,
		timeout: timeout,
		logger:  logger.Named("mintflow").With(zap.String("tier", tier)),
		now:     time.Now,
	}
}

// InProgress reports whether a session is running.
func (o *Orchestrator) InProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// PendingSetup returns the retained setup handle, if any.
func (o *Orchestrator) PendingSetup() *SetupHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.setup == nil {
		return nil
	}
	h := *o.setup
	return &h
}

// Start launches a session and returns its event stream. The channel is
// closed after the terminal event. A second call while a session runs
// returns ErrMintInProgress.
func (o *Orchestrator) Start(ctx context.Context, plan Plan) (<-chan Event, error) {
	if plan.State == nil {
		return nil, ErrInvalidPlan
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrMintInProgress
	}
	sctx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.mu.Unlock()

	s := &session{
		id:     uuid.New(),
		plan:   plan,
		events: make(chan Event, eventBuffer),
	}
	s.logger = logger.Operation(o.logger, "mint").With(zap.String("session_id", s.id.String()))

	go o.run(ctx, sctx, s)
	return s.events, nil
}

// Cancel abandons the running session, if any. The session emits Failed and
// its optimistic side effects are not applied. Cancel reports false when no
// session could be stopped, including one whose side effects already started.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

type session struct {
	id     uuid.UUID
	plan   Plan
	events chan Event
	mint   solana.PublicKey
	logger *zap.Logger
}

func (o *Orchestrator) emit(s *session, state State, sig solana.Signature, ferr *failure.Error) Event {
	ev := Event{
		Tier:      o.tier,
		SessionID: s.id,
		State:     state,
		Signature: sig,
		Mint:      s.mint,
		Err:       ferr,
		At:        o.now(),
	}
	s.logger.Debug("Mint session transition",
		zap.Stringer("state", state),
		zap.String("signature", sig.String()))
	s.events <- ev
	return ev
}

func (o *Orchestrator) run(parent, ctx context.Context, s *session) {
	terminal := o.execute(ctx, s)

	if o.hooks.OnTerminal != nil {
		o.hooks.OnTerminal(terminal)
	}

	// Cancel after this point no longer reaches the session.
	o.mu.Lock()
	stop := o.cancel
	committed := ctx.Err() == nil
	if committed {
		o.cancel = nil
	}
	o.mu.Unlock()

	if committed {
		switch {
		case terminal.State == Confirmed && o.hooks.OnMinted != nil:
			o.hooks.OnMinted(parent, terminal)
		case terminal.State != Confirmed && o.hooks.OnSettled != nil:
			o.hooks.OnSettled(parent, terminal)
		}
	} else {
		s.logger.Info("Mint session cancelled, side effects skipped",
			zap.Stringer("state", terminal.State))
	}

	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.mu.Unlock()
	stop()
	close(s.events)
}

// execute walks the state machine and returns the terminal event.
func (o *Orchestrator) execute(ctx context.Context, s *session) Event {
	payer := o.signer.PublicKey()

	o.mu.Lock()
	handle := o.setup
	o.mu.Unlock()

	if s.plan.Estimate.MustSplit && handle == nil {
		mintKey, err := solana.NewRandomPrivateKey()
		if err != nil {
			return o.emit(s, Failed, solana.Signature{}, failure.Classify(fmt.Errorf("generate mint key: %w", err)))
		}
		s.mint = mintKey.PublicKey()
		o.emit(s, AwaitingSetupSignature, solana.Signature{}, nil)

		ixs, err := candymachine.SetupInstructions(payer, s.mint)
		if err != nil {
			return o.emit(s, Failed, solana.Signature{}, failure.Classify(fmt.Errorf("build setup: %w", err)))
		}
		sig, err := o.submit(ctx, ixs, mintKey)
		if err != nil {
			return o.emit(s, Failed, solana.Signature{}, o.submitFailed(ctx, s, err))
		}
		logger.Transaction(s.logger, sig.String()).Info("Setup transaction submitted")
		o.emit(s, SetupSubmitted, sig, nil)

		res, err := o.waiter.Await(ctx, sig, o.timeout)
		if ferr := outcomeError(ctx, res, err); ferr != nil {
			// a stale setup cannot be replayed against new state
			s.logger.Warn("Setup transaction not confirmed, discarding",
				zap.String("signature", sig.String()),
				zap.String("kind", string(ferr.Kind)))
			return o.emit(s, Failed, sig, ferr)
		}

		handle = &SetupHandle{Mint: mintKey, Signature: sig}
		o.mu.Lock()
		o.setup = handle
		o.mu.Unlock()
	} else if handle != nil {
		s.mint = handle.Mint.PublicKey()
		s.logger.Info("Resuming with retained setup",
			zap.String("setup_signature", handle.Signature.String()),
			zap.String("mint", s.mint.String()))
	}

	var (
		ixs       []solana.Instruction
		cosigners []solana.PrivateKey
	)
	if handle == nil {
		mintKey, err := solana.NewRandomPrivateKey()
		if err != nil {
			return o.emit(s, Failed, solana.Signature{}, failure.Classify(fmt.Errorf("generate mint key: %w", err)))
		}
		s.mint = mintKey.PublicKey()
		setupIxs, err := candymachine.SetupInstructions(payer, s.mint)
		if err != nil {
			return o.emit(s, Failed, solana.Signature{}, failure.Classify(fmt.Errorf("build setup: %w", err)))
		}
		ixs = append(ixs, setupIxs...)
		cosigners = append(cosigners, mintKey)
	}
	o.emit(s, AwaitingMintSignature, solana.Signature{}, nil)

	mintIxs, accts, err := candymachine.MintInstructions(candymachine.MintParams{
		State:      s.plan.State,
		Collection: s.plan.Collection,
		Payer:      payer,
		Mint:       s.mint,
	})
	if err != nil {
		return o.emit(s, Failed, solana.Signature{}, failure.Classify(fmt.Errorf("build mint: %w", err)))
	}
	ixs = append(ixs, mintIxs...)

	sig, err := o.submit(ctx, ixs, cosigners...)
	if err != nil {
		return o.emit(s, Failed, solana.Signature{}, o.submitFailed(ctx, s, err))
	}
	logger.Transaction(s.logger, sig.String()).Info("Mint transaction submitted")
	o.emit(s, MintSubmitted, sig, nil)

	res, err := o.waiter.Await(ctx, sig, o.timeout)
	if ferr := outcomeError(ctx, res, err); ferr != nil {
		return o.emit(s, Failed, sig, ferr)
	}

	// the mint account is spent once the mint transaction lands
	o.mu.Lock()
	o.setup = nil
	o.mu.Unlock()

	if _, err := o.ledger.GetAccount(ctx, accts.Metadata, s.plan.MetadataCommitment); err != nil {
		s.logger.Warn("Mint confirmed but metadata not observed",
			zap.String("signature", sig.String()),
			zap.String("metadata", accts.Metadata.String()),
			zap.Error(err))
		return o.emit(s, Ambiguous, sig, failure.New(failure.AmbiguousMintOutcome, err))
	}

	s.logger.Info("Mint confirmed",
		zap.String("signature", sig.String()),
		zap.String("mint", s.mint.String()))
	return o.emit(s, Confirmed, sig, nil)
}

// submit builds, signs and sends one transaction paid by the wallet.
func (o *Orchestrator) submit(ctx context.Context, ixs []solana.Instruction, cosigners ...solana.PrivateKey) (solana.Signature, error) {
	blockhash, err := o.ledger.GetRecentBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(o.signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("create transaction: %w", err)
	}

	if err := o.signer.SignTransaction(ctx, tx, cosigners...); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := o.ledger.SubmitTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// submitFailed classifies a failed submission and logs the program output of a
// rejected preflight simulation.
func (o *Orchestrator) submitFailed(ctx context.Context, s *session, err error) *failure.Error {
	if logs := failure.SimulationLogs(err); len(logs) > 0 {
		s.logger.Warn("Transaction simulation failed", zap.Strings("program_logs", logs))
	}
	return o.classify(ctx, err)
}

func (o *Orchestrator) classify(ctx context.Context, err error) *failure.Error {
	if ctx.Err() != nil {
		return cancelled(ctx.Err())
	}
	return failure.Classify(err)
}

// outcomeError converts a confirmation result into a classified error, nil
// when the transaction confirmed.
func outcomeError(ctx context.Context, res confirm.Result, err error) *failure.Error {
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(err)
		}
		return failure.Classify(err)
	}
	switch res.Outcome {
	case confirm.Confirmed:
		return nil
	case confirm.TimedOut:
		return failure.New(failure.SubmissionTimeout, nil)
	default:
		return failure.ClassifyReason(res.Reason)
	}
}

func cancelled(err error) *failure.Error {
	return &failure.Error{Kind: failure.Rejected, Message: "Mint cancelled.", Err: err}
}
