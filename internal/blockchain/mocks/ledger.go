// Package mocks provides testify mocks for the blockchain package.
package mocks

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
)

// Ledger реализует blockchain.LedgerClient для тестов.
type Ledger struct {
	mock.Mock
}

var _ blockchain.LedgerClient = (*Ledger)(nil)

func (m *Ledger) GetAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) ([]byte, error) {
	args := m.Called(ctx, address, commitment)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *Ledger) GetNativeBalance(ctx context.Context, owner solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, owner, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *Ledger) GetTokenBalance(ctx context.Context, mint, owner solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, mint, owner, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *Ledger) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func (m *Ledger) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *Ledger) GetTransactionStatus(ctx context.Context, signature solana.Signature) (blockchain.TransactionStatus, error) {
	args := m.Called(ctx, signature)
	return args.Get(0).(blockchain.TransactionStatus), args.Error(1)
}
