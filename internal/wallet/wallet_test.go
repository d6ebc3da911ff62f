package wallet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	w, err := Load(key.String(), "")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), w.PublicKey())

	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	w, err = Load("", path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), w.PublicKey())

	_, err = Load("", "")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = NewWallet("abc")
	assert.Error(t, err)
}

func TestSignTransactionWithCosigner(t *testing.T) {
	w := FromPrivateKey(solana.NewWallet().PrivateKey)
	newAccount := solana.NewWallet().PrivateKey

	ix := system.NewCreateAccountInstruction(1, 82, solana.TokenProgramID, w.PublicKey(), newAccount.PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(w.PublicKey()))
	require.NoError(t, err)

	assert.Error(t, w.SignTransaction(context.Background(), tx))

	require.NoError(t, w.SignTransaction(context.Background(), tx, newAccount))
	assert.Len(t, tx.Signatures, 2)
	require.NoError(t, tx.VerifySignatures())
}
