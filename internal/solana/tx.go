package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-ctoken/pkg/types"
)

// BuildTransaction assembles instructions into an unsigned transaction paid by feePayer.
func BuildTransaction(instructions []types.Instruction, feePayer solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("transaction has no instructions")
	}

	tx, err := solana.NewTransaction(
		types.ToSolanaInstructions(instructions),
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

// BuildAndSignTx builds a transaction and signs it with every required signer.
// It fails when a required signer is missing from signers.
func BuildAndSignTx(instructions []types.Instruction, feePayer solana.PublicKey, blockhash solana.Hash, signers Signers) (*solana.Transaction, error) {
	tx, err := BuildTransaction(instructions, feePayer, blockhash)
	if err != nil {
		return nil, err
	}

	for _, ix := range instructions {
		for _, signer := range ix.Signers() {
			if !signers.Has(signer) {
				return nil, fmt.Errorf("missing signer %s", signer)
			}
		}
	}
	if !signers.Has(feePayer) {
		return nil, fmt.Errorf("missing fee payer signer %s", feePayer)
	}

	if _, err := tx.Sign(signers.Key); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}
