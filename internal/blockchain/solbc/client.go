// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
	solrpc "github.com/rovshanmuradov/candymint/internal/blockchain/solbc/rpc"
)

// Client – тонкий адаптер леджера поверх solana-go с пулом RPC узлов.
type Client struct {
	rpc    *solrpc.RPCClient
	logger *zap.Logger
}

// IsAccountNotFoundError проверяет, является ли ошибка "not found"
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account")
}

// NewClient создаёт новый клиент, принимая список RPC URL и логгер через dependency injection.
func NewClient(rpcURLs []string, retries int, logger *zap.Logger) (*Client, error) {
	pool, err := solrpc.NewClient(rpcURLs, retries, logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpc:    pool,
		logger: logger.Named("solbc-client"),
	}, nil
}

// Endpoint возвращает основной RPC URL (для сообщений пользователю).
func (c *Client) Endpoint() string {
	return c.rpc.Primary()
}

// wrap приводит сетевые ошибки к blockchain.ErrUnavailable.
func (c *Client) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	if solrpc.IsRetryableError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", method, blockchain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// GetAccount получает сырые данные аккаунта.
func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) ([]byte, error) {
	var result *rpc.GetAccountInfoResult
	err := c.rpc.ExecuteWithRetry(ctx, "getAccountInfo", func(client *rpc.Client) error {
		var err error
		result, err = client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: commitment,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", address, blockchain.ErrAccountNotFound)
		}
		c.logger.Debug("GetAccount error",
			zap.String("pubkey", address.String()),
			zap.Error(err))
		return nil, c.wrap("getAccountInfo", err)
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("account %s: %w", address, blockchain.ErrAccountNotFound)
	}
	return result.Value.Data.GetBinary(), nil
}

// GetNativeBalance получает баланс аккаунта в лампортах.
func (c *Client) GetNativeBalance(ctx context.Context, owner solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	var balance uint64
	err := c.rpc.ExecuteWithRetry(ctx, "getBalance", func(client *rpc.Client) error {
		result, err := client.GetBalance(ctx, owner, commitment)
		if err != nil {
			return err
		}
		balance = result.Value
		return nil
	})
	if err != nil {
		c.logger.Error("GetBalance error", zap.String("owner", owner.String()), zap.Error(err))
		return 0, c.wrap("getBalance", err)
	}
	return balance, nil
}

// GetTokenBalance получает баланс ассоциированного токен-аккаунта владельца.
func (c *Client) GetTokenBalance(ctx context.Context, mint, owner solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive ATA for mint %s: %w", mint, err)
	}

	var amount string
	err = c.rpc.ExecuteWithRetry(ctx, "getTokenAccountBalance", func(client *rpc.Client) error {
		result, err := client.GetTokenAccountBalance(ctx, ata, commitment)
		if err != nil {
			return err
		}
		if result == nil || result.Value == nil {
			return rpc.ErrNotFound
		}
		amount = result.Value.Amount
		return nil
	})
	if err != nil {
		if IsAccountNotFoundError(err) {
			return 0, fmt.Errorf("ata %s: %w", ata, blockchain.ErrTokenAccountMissing)
		}
		return 0, c.wrap("getTokenAccountBalance", err)
	}

	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", amount, err)
	}
	return value, nil
}

// GetRecentBlockhash получает последний blockhash.
func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.rpc.ExecuteWithRetry(ctx, "getLatestBlockhash", func(client *rpc.Client) error {
		result, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		hash = result.Value.Blockhash
		return nil
	})
	if err != nil {
		c.logger.Error("GetRecentBlockhash error", zap.Error(err))
		return solana.Hash{}, c.wrap("getLatestBlockhash", err)
	}
	return hash, nil
}

// SubmitTransaction отправляет транзакцию. Повтор возможен только пока узел не принял её.
func (c *Client) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.rpc.ExecuteWithRetry(ctx, "sendTransaction", func(client *rpc.Client) error {
		var err error
		sig, err = client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentProcessed,
		})
		return err
	})
	if err != nil {
		c.logger.Error("SendTransaction error", zap.Error(err))
		return solana.Signature{}, c.wrap("sendTransaction", err)
	}
	return sig, nil
}

// GetTransactionStatus получает статус транзакции.
func (c *Client) GetTransactionStatus(ctx context.Context, signature solana.Signature) (blockchain.TransactionStatus, error) {
	var result *rpc.GetSignatureStatusesResult
	err := c.rpc.ExecuteWithRetry(ctx, "getSignatureStatuses", func(client *rpc.Client) error {
		var err error
		result, err = client.GetSignatureStatuses(ctx, true, signature)
		return err
	})
	if err != nil {
		return blockchain.TransactionStatus{}, c.wrap("getSignatureStatuses", err)
	}
	return statusFromResult(result), nil
}

func statusFromResult(result *rpc.GetSignatureStatusesResult) blockchain.TransactionStatus {
	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return blockchain.TransactionStatus{State: blockchain.TxPending}
	}

	status := result.Value[0]
	out := blockchain.TransactionStatus{Slot: status.Slot}

	if status.Err != nil {
		out.State = blockchain.TxFailed
		out.Err = fmt.Sprintf("%v", status.Err)
		return out
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		out.State = blockchain.TxFinalized
	case rpc.ConfirmationStatusConfirmed:
		out.State = blockchain.TxConfirmed
	case rpc.ConfirmationStatusProcessed:
		out.State = blockchain.TxProcessed
	default:
		out.State = blockchain.TxPending
	}
	return out
}

// Гарантируем, что Client реализует интерфейс blockchain.LedgerClient.
var _ blockchain.LedgerClient = (*Client)(nil)
