package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
	"github.com/rovshanmuradov/candymint/internal/blockchain/mocks"
)

func newTestWaiter(t *testing.T, ledger blockchain.LedgerClient) *Waiter {
	w := NewWaiter(ledger, zaptest.NewLogger(t))
	w.PollInterval = 5 * time.Millisecond
	return w
}

func TestAwaitConfirmedAfterPending(t *testing.T) {
	sig := solana.Signature{1}
	ledger := new(mocks.Ledger)
	ledger.On("GetTransactionStatus", mock.Anything, sig).
		Return(blockchain.TransactionStatus{State: blockchain.TxPending}, nil).Twice()
	ledger.On("GetTransactionStatus", mock.Anything, sig).
		Return(blockchain.TransactionStatus{}, errors.New("node lagging")).Once()
	ledger.On("GetTransactionStatus", mock.Anything, sig).
		Return(blockchain.TransactionStatus{State: blockchain.TxConfirmed, Slot: 99}, nil)

	res, err := newTestWaiter(t, ledger).Await(context.Background(), sig, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, res.Outcome)
	assert.Equal(t, uint64(99), res.Slot)
}

func TestAwaitLevel(t *testing.T) {
	sig := solana.Signature{2}
	ledger := new(mocks.Ledger)
	ledger.On("GetTransactionStatus", mock.Anything, sig).
		Return(blockchain.TransactionStatus{State: blockchain.TxProcessed}, nil)

	w := newTestWaiter(t, ledger)
	res, err := w.Await(context.Background(), sig, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, res.Outcome)

	w.Level = blockchain.TxProcessed
	res, err = w.Await(context.Background(), sig, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, res.Outcome)
}

func TestAwaitRejected(t *testing.T) {
	sig := solana.Signature{3}
	ledger := new(mocks.Ledger)
	ledger.On("GetTransactionStatus", mock.Anything, sig).
		Return(blockchain.TransactionStatus{State: blockchain.TxFailed, Err: "map[InstructionError:[0 map[Custom:311]]]"}, nil)

	res, err := newTestWaiter(t, ledger).Await(context.Background(), sig, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)
	assert.Contains(t, res.Reason, "Custom:311")
}

func TestAwaitCancelled(t *testing.T) {
	sig := solana.Signature{4}
	ledger := new(mocks.Ledger)
	ledger.On("GetTransactionStatus", mock.Anything, sig).
		Return(blockchain.TransactionStatus{State: blockchain.TxPending}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newTestWaiter(t, ledger).Await(ctx, sig, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
