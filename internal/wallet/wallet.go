// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrNoKey is returned when neither a private key nor a keypair file is configured.
var ErrNoKey = errors.New("no private key or keypair file configured")

// Wallet представляет подключенный кошелёк Solana, подписывающий транзакции минта.
type Wallet struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewWallet создаёт кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return FromPrivateKey(solana.PrivateKey(privateKeyBytes)), nil
}

// FromPrivateKey wraps an existing key.
func FromPrivateKey(key solana.PrivateKey) *Wallet {
	return &Wallet{privateKey: key, publicKey: key.PublicKey()}
}

// LoadKeypairFile читает keypair в формате solana-keygen (JSON массив байт).
func LoadKeypairFile(path string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair %s: %w", path, err)
	}
	return FromPrivateKey(key), nil
}

// Load prefers an inline base58 key over a keypair file.
func Load(privateKeyBase58, keypairPath string) (*Wallet, error) {
	switch {
	case privateKeyBase58 != "":
		return NewWallet(privateKeyBase58)
	case keypairPath != "":
		return LoadKeypairFile(keypairPath)
	default:
		return nil, ErrNoKey
	}
}

// PublicKey возвращает адрес кошелька.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.publicKey
}

// SignTransaction подписывает транзакцию ключом кошелька и дополнительными
// ключами (например, ключом нового mint-аккаунта).
func (w *Wallet) SignTransaction(ctx context.Context, tx *solana.Transaction, cosigners ...solana.PrivateKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.publicKey) {
			return &w.privateKey
		}
		for i := range cosigners {
			if key.Equals(cosigners[i].PublicKey()) {
				return &cosigners[i]
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.publicKey.String()
}
