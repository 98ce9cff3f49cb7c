package solana

import (
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lugondev/go-ctoken/pkg/types"
)

func TestWalletFileRoundTrip(t *testing.T) {
	w := NewWallet()
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, w.SaveToFile(path))

	loaded, err := WalletFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), loaded.PublicKey())
	assert.Equal(t, w.String(), loaded.String())
}

func TestWalletFromBase58(t *testing.T) {
	w := NewWallet()
	loaded, err := WalletFromBase58(w.PrivateKey().String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), loaded.PublicKey())

	_, err = WalletFromBase58("not-a-key")
	assert.Error(t, err)
}

func TestWalletFromMissingFile(t *testing.T) {
	_, err := WalletFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSigners(t *testing.T) {
	a, b := NewWallet(), NewWallet()
	signers := Signers{a, nil}

	assert.True(t, signers.Has(a.PublicKey()))
	assert.False(t, signers.Has(b.PublicKey()))
	require.NotNil(t, signers.Key(a.PublicKey()))
	assert.Equal(t, a.PrivateKey(), *signers.Key(a.PublicKey()))
	assert.Nil(t, signers.Key(b.PublicKey()))
}

func signedIx(program solana.PublicKey, signers ...solana.PublicKey) types.Instruction {
	ix := types.Instruction{ProgramID: program, Data: []byte{1}}
	for _, s := range signers {
		ix.Accounts = append(ix.Accounts, types.AccountMeta{Pubkey: s, IsSigner: true, IsWritable: true})
	}
	return ix
}

func TestBuildTransactionRejectsEmpty(t *testing.T) {
	_, err := BuildTransaction(nil, NewWallet().PublicKey(), solana.Hash{1})
	assert.Error(t, err)
}

func TestBuildAndSignTx(t *testing.T) {
	payer, owner := NewWallet(), NewWallet()
	program := NewWallet().PublicKey()
	ixs := []types.Instruction{signedIx(program, owner.PublicKey())}

	tx, err := BuildAndSignTx(ixs, payer.PublicKey(), solana.Hash{1}, Signers{payer, owner})
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 2)
	assert.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	require.NoError(t, tx.VerifySignatures())
}

func TestBuildAndSignTxMissingSigner(t *testing.T) {
	payer, owner := NewWallet(), NewWallet()
	program := NewWallet().PublicKey()
	ixs := []types.Instruction{signedIx(program, owner.PublicKey())}

	_, err := BuildAndSignTx(ixs, payer.PublicKey(), solana.Hash{1}, Signers{payer})
	require.Error(t, err)
	assert.Contains(t, err.Error(), owner.PublicKey().String())

	_, err = BuildAndSignTx(ixs, payer.PublicKey(), solana.Hash{1}, Signers{owner})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee payer")
}
