package mintflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
	"github.com/rovshanmuradov/candymint/internal/blockchain/mocks"
	"github.com/rovshanmuradov/candymint/internal/budget"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
	"github.com/rovshanmuradov/candymint/internal/confirm"
	"github.com/rovshanmuradov/candymint/internal/failure"
)

var (
	setupSig = solana.Signature{1}
	mintSig  = solana.Signature{2}
)

type keySigner struct {
	key solana.PrivateKey
}

func (k keySigner) PublicKey() solana.PublicKey { return k.key.PublicKey() }

func (k keySigner) SignTransaction(_ context.Context, tx *solana.Transaction, cosigners ...solana.PrivateKey) error {
	keys := append([]solana.PrivateKey{k.key}, cosigners...)
	_, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(pub) {
				return &keys[i]
			}
		}
		return nil
	})
	return err
}

type recorder struct {
	mu        sync.Mutex
	terminals []Event
	minted    int32
	settled   int32
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnTerminal: func(ev Event) {
			r.mu.Lock()
			r.terminals = append(r.terminals, ev)
			r.mu.Unlock()
		},
		OnMinted:  func(context.Context, Event) { atomic.AddInt32(&r.minted, 1) },
		OnSettled: func(context.Context, Event) { atomic.AddInt32(&r.settled, 1) },
	}
}

func testPlan(mustSplit bool) Plan {
	return Plan{
		State: &candymachine.State{
			Address:   solana.NewWallet().PublicKey(),
			ProgramID: candymachine.ProgramID,
			Authority: solana.NewWallet().PublicKey(),
			Wallet:    solana.NewWallet().PublicKey(),
			Config:    candymachine.SaleConfig{Price: 1, ItemsAvailable: 10},
		},
		Estimate:           budget.Estimate{Bytes: 1300, MustSplit: mustSplit},
		MetadataCommitment: rpc.CommitmentProcessed,
	}
}

func newTestOrchestrator(t *testing.T, ledger blockchain.LedgerClient, timeout time.Duration, rec *recorder) *Orchestrator {
	waiter := confirm.NewWaiter(ledger, zaptest.NewLogger(t))
	waiter.PollInterval = 2 * time.Millisecond
	return New("standard", ledger, keySigner{key: solana.NewWallet().PrivateKey}, waiter, timeout, rec.hooks(), zaptest.NewLogger(t))
}

func baseLedger() *mocks.Ledger {
	ledger := new(mocks.Ledger)
	ledger.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{9}, nil)
	return ledger
}

func status(state blockchain.TxState) blockchain.TransactionStatus {
	return blockchain.TransactionStatus{State: state, Slot: 1}
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("session did not finish")
			return out
		}
	}
}

func statesOf(events []Event) []State {
	out := make([]State, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.State)
	}
	return out
}

func TestMintWithoutSplit(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(mintSig, nil).Once()
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).Return(status(blockchain.TxConfirmed), nil)
	ledger.On("GetAccount", mock.Anything, mock.Anything, rpc.CommitmentProcessed).Return([]byte{1}, nil)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, time.Second, rec)

	ch, err := o.Start(context.Background(), testPlan(false))
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Equal(t, []State{AwaitingMintSignature, MintSubmitted, Confirmed}, statesOf(events))
	last := events[len(events)-1]
	assert.Equal(t, mintSig, last.Signature)
	assert.Nil(t, last.Err)
	assert.False(t, last.Mint.IsZero())

	assert.Len(t, rec.terminals, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.minted))
	assert.Equal(t, int32(0), atomic.LoadInt32(&rec.settled))
	assert.False(t, o.InProgress())
	ledger.AssertNumberOfCalls(t, "SubmitTransaction", 1)
}

func TestMintWithSplit(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(setupSig, nil).Once()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(mintSig, nil).Once()
	ledger.On("GetTransactionStatus", mock.Anything, setupSig).Return(status(blockchain.TxConfirmed), nil)
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).Return(status(blockchain.TxFinalized), nil)
	ledger.On("GetAccount", mock.Anything, mock.Anything, rpc.CommitmentProcessed).Return([]byte{1}, nil)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, time.Second, rec)

	ch, err := o.Start(context.Background(), testPlan(true))
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Equal(t, []State{
		AwaitingSetupSignature, SetupSubmitted, AwaitingMintSignature, MintSubmitted, Confirmed,
	}, statesOf(events))
	assert.Equal(t, setupSig, events[1].Signature)
	assert.Equal(t, events[0].Mint, events[4].Mint)
	assert.Nil(t, o.PendingSetup())
}

func TestConfirmedWithoutMetadataIsAmbiguous(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(mintSig, nil).Once()
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).Return(status(blockchain.TxConfirmed), nil)
	ledger.On("GetAccount", mock.Anything, mock.Anything, rpc.CommitmentProcessed).Return(nil, blockchain.ErrAccountNotFound)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, time.Second, rec)

	ch, err := o.Start(context.Background(), testPlan(false))
	require.NoError(t, err)
	events := collect(t, ch)

	last := events[len(events)-1]
	assert.Equal(t, Ambiguous, last.State)
	require.NotNil(t, last.Err)
	assert.Equal(t, failure.AmbiguousMintOutcome, last.Err.Kind)

	// no optimistic decrement, only a reconcile
	assert.Equal(t, int32(0), atomic.LoadInt32(&rec.minted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.settled))
	assert.Len(t, rec.terminals, 1)
}

func TestSetupTimeoutDiscardsHandle(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(setupSig, nil)
	ledger.On("GetTransactionStatus", mock.Anything, setupSig).Return(status(blockchain.TxPending), nil)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, 30*time.Millisecond, rec)

	ch, err := o.Start(context.Background(), testPlan(true))
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Equal(t, []State{AwaitingSetupSignature, SetupSubmitted, Failed}, statesOf(events))
	last := events[len(events)-1]
	require.NotNil(t, last.Err)
	assert.Equal(t, failure.SubmissionTimeout, last.Err.Kind)
	assert.Nil(t, o.PendingSetup())

	// the next attempt starts a fresh setup
	ch, err = o.Start(context.Background(), testPlan(true))
	require.NoError(t, err)
	retry := collect(t, ch)
	require.NotEmpty(t, retry)
	assert.Equal(t, AwaitingSetupSignature, retry[0].State)
	assert.NotEqual(t, events[0].Mint, retry[0].Mint)
	ledger.AssertNumberOfCalls(t, "SubmitTransaction", 2)
}

func TestConfirmedSetupIsRetainedAfterMintFailure(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(setupSig, nil).Once()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(mintSig, nil)
	ledger.On("GetTransactionStatus", mock.Anything, setupSig).Return(status(blockchain.TxConfirmed), nil)
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).
		Return(blockchain.TransactionStatus{State: blockchain.TxFailed, Err: "map[InstructionError:[2 map[Custom:312]]]"}, nil).Once()
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).Return(status(blockchain.TxConfirmed), nil)
	ledger.On("GetAccount", mock.Anything, mock.Anything, rpc.CommitmentProcessed).Return([]byte{1}, nil)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, time.Second, rec)

	ch, err := o.Start(context.Background(), testPlan(true))
	require.NoError(t, err)
	first := collect(t, ch)
	last := first[len(first)-1]
	assert.Equal(t, Failed, last.State)
	assert.Equal(t, failure.NotYetLive, last.Err.Kind)

	handle := o.PendingSetup()
	require.NotNil(t, handle)
	assert.Equal(t, setupSig, handle.Signature)

	ch, err = o.Start(context.Background(), testPlan(true))
	require.NoError(t, err)
	second := collect(t, ch)
	assert.Equal(t, []State{AwaitingMintSignature, MintSubmitted, Confirmed}, statesOf(second))
	assert.Equal(t, handle.Mint.PublicKey(), second[0].Mint)
	assert.Nil(t, o.PendingSetup())
}

func TestSecondStartIsRejected(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(mintSig, nil)
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).Return(status(blockchain.TxPending), nil)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, time.Minute, rec)

	ch, err := o.Start(context.Background(), testPlan(false))
	require.NoError(t, err)
	assert.True(t, o.InProgress())

	_, err = o.Start(context.Background(), testPlan(false))
	assert.ErrorIs(t, err, ErrMintInProgress)

	assert.True(t, o.Cancel())
	events := collect(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, Failed, last.State)

	// cancelled sessions report once and apply nothing
	assert.Len(t, rec.terminals, 1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&rec.minted))
	assert.Equal(t, int32(0), atomic.LoadInt32(&rec.settled))
	assert.False(t, o.InProgress())
}

func TestStartRejectsEmptyPlan(t *testing.T) {
	o := newTestOrchestrator(t, baseLedger(), time.Second, &recorder{})
	_, err := o.Start(context.Background(), Plan{})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestCancelAfterSideEffectsStartIsIgnored(t *testing.T) {
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(mintSig, nil).Once()
	ledger.On("GetTransactionStatus", mock.Anything, mintSig).Return(status(blockchain.TxConfirmed), nil)
	ledger.On("GetAccount", mock.Anything, mock.Anything, rpc.CommitmentProcessed).Return([]byte{1}, nil)

	rec := &recorder{}
	o := newTestOrchestrator(t, ledger, time.Second, rec)

	var cancelled atomic.Bool
	minted := o.hooks.OnMinted
	o.hooks.OnMinted = func(ctx context.Context, ev Event) {
		// a CancelMint racing the optimistic update
		cancelled.Store(o.Cancel())
		minted(ctx, ev)
	}

	ch, err := o.Start(context.Background(), testPlan(false))
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Equal(t, Confirmed, events[len(events)-1].State)
	assert.False(t, cancelled.Load())
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.minted))
	assert.False(t, o.InProgress())
}

func TestRejectedSimulationLogsProgramOutput(t *testing.T) {
	simErr := &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x137",
		Data: map[string]interface{}{
			"logs": []interface{}{
				"Program cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ invoke [1]",
				"Program log: Custom program error: 0x137",
			},
		},
	}
	ledger := baseLedger()
	ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(solana.Signature{}, simErr).Once()

	core, logs := observer.New(zapcore.DebugLevel)
	waiter := confirm.NewWaiter(ledger, zaptest.NewLogger(t))
	rec := &recorder{}
	o := New("standard", ledger, keySigner{key: solana.NewWallet().PrivateKey}, waiter, time.Second, rec.hooks(), zap.New(core))

	ch, err := o.Start(context.Background(), testPlan(false))
	require.NoError(t, err)
	events := collect(t, ch)

	last := events[len(events)-1]
	assert.Equal(t, Failed, last.State)
	require.NotNil(t, last.Err)

	warned := logs.FilterMessage("Transaction simulation failed").All()
	require.Len(t, warned, 1)
	fields := warned[0].ContextMap()
	assert.Equal(t, "mint", fields["operation"])
	assert.NotEmpty(t, fields["correlation_id"])
	assert.Len(t, fields["program_logs"], 2)
	ledger.AssertNotCalled(t, "GetTransactionStatus", mock.Anything, mock.Anything)
}
