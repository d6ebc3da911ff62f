package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
	"github.com/rovshanmuradov/candymint/internal/failure"
)

var errPaymentBalanceMissing = errors.New("payment mint balance was not queried")

// Builder reads ledger state for a tier and turns it into a Snapshot.
type Builder struct {
	ledger blockchain.LedgerClient
	logger *zap.Logger
}

// NewBuilder creates a snapshot builder over ledger.
func NewBuilder(ledger blockchain.LedgerClient, logger *zap.Logger) *Builder {
	return &Builder{
		ledger: ledger,
		logger: logger.Named("eligibility"),
	}
}

// Refresh loads the candy machine at machine, queries owner's balances and
// evaluates the result at now. Errors are classified as ConfigNotFound or
// NetworkUnavailable and are not retried here.
func (b *Builder) Refresh(
	ctx context.Context,
	tier string,
	machine, programID, owner solana.PublicKey,
	now time.Time,
	commitment rpc.CommitmentType,
) (Snapshot, *candymachine.State, error) {
	data, err := b.ledger.GetAccount(ctx, machine, commitment)
	if err != nil {
		if errors.Is(err, blockchain.ErrAccountNotFound) {
			return Snapshot{}, nil, failure.New(failure.ConfigNotFound, err)
		}
		return Snapshot{}, nil, failure.New(failure.NetworkUnavailable, err)
	}

	state, err := candymachine.Decode(machine, programID, data)
	if err != nil {
		return Snapshot{}, nil, failure.New(failure.ConfigNotFound, err)
	}

	wallet, err := b.walletContext(ctx, state.Config, owner, commitment)
	if err != nil {
		return Snapshot{}, nil, failure.New(failure.NetworkUnavailable, err)
	}

	snap := Evaluate(tier, state.Config, wallet, now)
	b.logger.Debug("Snapshot evaluated",
		zap.String("tier", tier),
		zap.Bool("active", snap.IsActive),
		zap.Bool("presale", snap.IsPresale),
		zap.Bool("whitelisted", snap.IsWhitelisted),
		zap.Uint64("price", snap.EffectivePrice),
		zap.Uint64("remaining", snap.RemainingItems))
	return snap, state, nil
}

// walletContext queries the balances cfg needs in parallel. Balance failures
// are recorded in the result so Evaluate can fail closed. Context
// cancellation aborts the whole read, and so does an unreachable node when
// the sale is priced in SOL.
func (b *Builder) walletContext(
	ctx context.Context,
	cfg candymachine.SaleConfig,
	owner solana.PublicKey,
	commitment rpc.CommitmentType,
) (WalletContext, error) {
	wallet := WalletContext{Owner: owner}
	if cfg.TokenMint != nil {
		wallet.Payment = &Balance{}
	}
	if cfg.Whitelist != nil {
		wallet.Whitelist = &Balance{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		amount, err := b.ledger.GetNativeBalance(gctx, owner, commitment)
		wallet.Native = Balance{Amount: amount, Err: err}
		return nil
	})
	if cfg.TokenMint != nil {
		mint := *cfg.TokenMint
		g.Go(func() error {
			*wallet.Payment = b.tokenBalance(gctx, mint, owner, commitment)
			return nil
		})
	}
	if cfg.Whitelist != nil {
		mint := cfg.Whitelist.Mint
		g.Go(func() error {
			*wallet.Whitelist = b.tokenBalance(gctx, mint, owner, commitment)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return WalletContext{}, fmt.Errorf("balance queries: %w", err)
	}
	if cfg.TokenMint == nil && errors.Is(wallet.Native.Err, blockchain.ErrUnavailable) {
		return WalletContext{}, fmt.Errorf("native balance: %w", wallet.Native.Err)
	}
	return wallet, nil
}

func (b *Builder) tokenBalance(ctx context.Context, mint, owner solana.PublicKey, commitment rpc.CommitmentType) Balance {
	amount, err := b.ledger.GetTokenBalance(ctx, mint, owner, commitment)
	switch {
	case err == nil:
		return Balance{Amount: amount}
	case errors.Is(err, blockchain.ErrTokenAccountMissing):
		return Balance{Amount: 0}
	default:
		b.logger.Debug("Token balance query failed",
			zap.String("mint", mint.String()),
			zap.Error(err))
		return Balance{Err: err}
	}
}
