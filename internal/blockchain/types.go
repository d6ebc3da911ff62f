// internal/blockchain/types.go
package blockchain

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrAccountNotFound is returned when the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenAccountMissing is returned when the owner has no associated token account for a mint.
	ErrTokenAccountMissing = errors.New("token account missing")
	// ErrUnavailable marks transport-level failures (all endpoints unreachable).
	ErrUnavailable = errors.New("rpc unavailable")
)

// TxState is the coarse ledger state of a submitted transaction.
type TxState int

const (
	TxPending TxState = iota
	TxProcessed
	TxConfirmed
	TxFinalized
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxProcessed:
		return "processed"
	case TxConfirmed:
		return "confirmed"
	case TxFinalized:
		return "finalized"
	case TxFailed:
		return "failed"
	default:
		return "pending"
	}
}

// TransactionStatus описывает статус транзакции на момент запроса.
type TransactionStatus struct {
	State TxState
	Slot  uint64
	// Err holds the on-chain error rendered as text when State is TxFailed.
	Err string
}

// LedgerClient определяет операции с леджером, которые нужны движку минта.
type LedgerClient interface {
	// Получить сырые данные аккаунта.
	GetAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) ([]byte, error)
	// Получить баланс в лампортах.
	GetNativeBalance(ctx context.Context, owner solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	// Получить баланс ассоциированного токен-аккаунта.
	GetTokenBalance(ctx context.Context, mint, owner solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	// Получить последний blockhash.
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
	// Отправить подписанную транзакцию.
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// Получить статус транзакции.
	GetTransactionStatus(ctx context.Context, signature solana.Signature) (TransactionStatus, error)
}
