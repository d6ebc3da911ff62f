// Package confirm waits for submitted transactions to reach a commitment level.
package confirm

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
)

// DefaultPollInterval is how often the ledger is asked for a status.
const DefaultPollInterval = 500 * time.Millisecond

// Outcome is the terminal result of waiting on one signature.
type Outcome int

const (
	Confirmed Outcome = iota
	TimedOut
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed_out"
	default:
		return "rejected"
	}
}

// Result описывает итог ожидания подтверждения.
type Result struct {
	Outcome Outcome
	// Reason is the on-chain error text for Rejected.
	Reason string
	Slot   uint64
}

// Waiter polls transaction status until the target level, a rejection or the
// timeout. It never resubmits.
type Waiter struct {
	ledger blockchain.LedgerClient
	logger *zap.Logger

	PollInterval time.Duration
	// Level is the lowest state accepted as confirmed.
	Level blockchain.TxState
}

// NewWaiter creates a waiter accepting TxConfirmed or better.
func NewWaiter(ledger blockchain.LedgerClient, logger *zap.Logger) *Waiter {
	return &Waiter{
		ledger:       ledger,
		logger:       logger.Named("confirm"),
		PollInterval: DefaultPollInterval,
		Level:        blockchain.TxConfirmed,
	}
}

// Await blocks until sig settles or timeout elapses. A cancelled ctx returns
// ctx.Err() and no Result.
func (w *Waiter) Await(ctx context.Context, sig solana.Signature, timeout time.Duration) (Result, error) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if res, done := w.check(ctx, sig); done {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-deadline.C:
			w.logger.Info("Confirmation timed out",
				zap.String("signature", sig.String()),
				zap.Duration("timeout", timeout))
			return Result{Outcome: TimedOut}, nil
		case <-ticker.C:
		}
	}
}

func (w *Waiter) check(ctx context.Context, sig solana.Signature) (Result, bool) {
	if ctx.Err() != nil {
		return Result{}, false
	}
	status, err := w.ledger.GetTransactionStatus(ctx, sig)
	if err != nil {
		w.logger.Warn("Status check failed", zap.String("signature", sig.String()), zap.Error(err))
		return Result{}, false
	}

	switch {
	case status.State == blockchain.TxFailed:
		return Result{Outcome: Rejected, Reason: status.Err, Slot: status.Slot}, true
	case status.State >= w.Level && status.State != blockchain.TxPending:
		w.logger.Debug("Transaction confirmed",
			zap.String("signature", sig.String()),
			zap.Stringer("state", status.State),
			zap.Uint64("slot", status.Slot))
		return Result{Outcome: Confirmed, Slot: status.Slot}, true
	default:
		return Result{}, false
	}
}
