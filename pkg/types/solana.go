// Package types provides the Solana base types and the token data model shared
// by the classifier, selector, packer and instruction builders.
// It wraps the solana-go types for consistency and convenience.
package types

import (
	"github.com/gagliardetto/solana-go"
)

// Pubkey is a Solana public key (32 bytes).
type Pubkey = solana.PublicKey

// Signature is a Solana transaction signature (64 bytes).
type Signature = solana.Signature

// Hash is a Solana hash (32 bytes), typically used for blockhashes.
type Hash = solana.Hash

// Account represents a Solana account with its data and metadata.
type Account struct {
	// Lamports is the number of lamports owned by this account.
	Lamports uint64 `json:"lamports"`

	// Data is the data held in this account.
	Data []byte `json:"data"`

	// Owner is the program that owns this account.
	Owner Pubkey `json:"owner"`

	// Executable indicates if the account contains a program.
	Executable bool `json:"executable"`

	// RentEpoch is the epoch at which this account will next owe rent.
	RentEpoch uint64 `json:"rent_epoch"`
}

// AccountMeta describes a single account involved in an instruction.
type AccountMeta struct {
	// Pubkey is the public key of the account.
	Pubkey Pubkey `json:"pubkey"`

	// IsSigner indicates if the account is a signer.
	IsSigner bool `json:"is_signer"`

	// IsWritable indicates if the account is writable.
	IsWritable bool `json:"is_writable"`
}

// NewAccountMeta returns a meta with the given flags.
func NewAccountMeta(pubkey Pubkey, writable, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsWritable: writable, IsSigner: signer}
}

// ToSolanaAccountMeta converts to solana-go AccountMeta.
func (am *AccountMeta) ToSolanaAccountMeta() *solana.AccountMeta {
	return &solana.AccountMeta{
		PublicKey:  am.Pubkey,
		IsSigner:   am.IsSigner,
		IsWritable: am.IsWritable,
	}
}

// FromSolanaAccountMeta creates AccountMeta from solana-go AccountMeta.
func FromSolanaAccountMeta(meta *solana.AccountMeta) AccountMeta {
	return AccountMeta{
		Pubkey:     meta.PublicKey,
		IsSigner:   meta.IsSigner,
		IsWritable: meta.IsWritable,
	}
}

// Instruction is a ready-to-submit instruction descriptor.
type Instruction struct {
	// ProgramID is the program that will process this instruction.
	ProgramID Pubkey `json:"program_id"`

	// Accounts is the list of accounts to pass to the program.
	Accounts []AccountMeta `json:"accounts"`

	// Data is the instruction data.
	Data []byte `json:"data"`
}

// ToSolana converts the descriptor into a solana-go instruction.
func (ix *Instruction) ToSolana() solana.Instruction {
	metas := make(solana.AccountMetaSlice, len(ix.Accounts))
	for i := range ix.Accounts {
		metas[i] = ix.Accounts[i].ToSolanaAccountMeta()
	}
	return solana.NewInstruction(ix.ProgramID, metas, ix.Data)
}

// FromSolanaInstruction converts a solana-go instruction into a descriptor.
func FromSolanaInstruction(ix solana.Instruction) (Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return Instruction{}, err
	}
	accounts := ix.Accounts()
	metas := make([]AccountMeta, len(accounts))
	for i, meta := range accounts {
		metas[i] = FromSolanaAccountMeta(meta)
	}
	return Instruction{
		ProgramID: ix.ProgramID(),
		Accounts:  metas,
		Data:      data,
	}, nil
}

// ToSolanaInstructions converts a list of descriptors.
func ToSolanaInstructions(ixs []Instruction) []solana.Instruction {
	out := make([]solana.Instruction, len(ixs))
	for i := range ixs {
		out[i] = ixs[i].ToSolana()
	}
	return out
}

// Signers returns the distinct signer keys of the instruction in account order.
func (ix *Instruction) Signers() []Pubkey {
	var signers []Pubkey
	seen := make(map[Pubkey]struct{})
	for _, meta := range ix.Accounts {
		if !meta.IsSigner {
			continue
		}
		if _, ok := seen[meta.Pubkey]; ok {
			continue
		}
		seen[meta.Pubkey] = struct{}{}
		signers = append(signers, meta.Pubkey)
	}
	return signers
}

// LamportsPerSOL is the number of lamports per SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(LamportsPerSOL)
}
