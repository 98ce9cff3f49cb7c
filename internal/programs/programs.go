// Package programs holds the program IDs, fixed accounts and address
// derivations of the light-token protocol and the token programs it bridges.
package programs

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/pkg/types"
)

var (
	// LightTokenProgramID owns hot light-token accounts, pools and compressed token leaves.
	LightTokenProgramID = solana.MustPublicKeyFromBase58("cTokenmWW8bLPjZEBAUgYy3zKxQZW6VKi7bqNFEVv3m")
	// LightSystemProgramID verifies proofs and writes compressed state.
	LightSystemProgramID = solana.MustPublicKeyFromBase58("SySTEM1eSU2p4BGQfQpimFEWWSC1XDFeun3Nqzz3rT7")
	// AccountCompressionProgramID owns the state trees and queues.
	AccountCompressionProgramID = solana.MustPublicKeyFromBase58("compr6CUsB5m2jS4Y3831ztGSTnDpnKJTKS95d64XVq")

	SplTokenProgramID        = solana.TokenProgramID
	Token2022ProgramID       = solana.Token2022ProgramID
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
	SystemProgramID          = solana.SystemProgramID
	ComputeBudgetProgramID   = solana.ComputeBudget

	// LightTokenCPIAuthority signs the light-token program's CPIs.
	LightTokenCPIAuthority = solana.MustPublicKeyFromBase58("GXtd2izAiMJPwMEjfgTRH3d7k9mjn4Jq3JrWFv9gySYy")
	// RegisteredProgramPDA registers the light system program with account compression.
	RegisteredProgramPDA = solana.MustPublicKeyFromBase58("35hkDgaAKwMCaxRz2ocSZ6NaUrtKkyNqU6c4RV3tYJRh")
	// AccountCompressionAuthority is the light system program's authority over the trees.
	AccountCompressionAuthority = solana.MustPublicKeyFromBase58("HwXnGK3tPkkVY6P439H2p68AxpeuWXd5PcrAxFpbmfbA")
)

// Default state trees.
var (
	DefaultTreeV1 = types.TreeInfo{
		Tree:     solana.MustPublicKeyFromBase58("smt1NamzXdq4AMqS2fS2F1i5KTYPZRhoHgWx38d8WsT"),
		Queue:    solana.MustPublicKeyFromBase58("nfq1NvQDJ2GEgnS8zt9prAe8rjjpAW1zFkrvZoBR148"),
		TreeType: types.TreeTypeStateV1,
	}
	DefaultTreeV2 = types.TreeInfo{
		Tree:     solana.MustPublicKeyFromBase58("bmt1LryLZUMmF7ZtqESaw7wifBXLfXHQYoE4GAmrahU"),
		Queue:    solana.MustPublicKeyFromBase58("oq1na8gojfdUhsfCpyjNt6h4JaDWtHf1yQj4koBWfto"),
		TreeType: types.TreeTypeStateV2,
	}
)

// MaxPoolAccounts is the number of token pools a mint can have.
const MaxPoolAccounts = 5

var poolSeed = []byte("pool")

// ProgramForKind returns the program owning on-chain accounts of the kind.
// Compressed leaves belong to the light-token program as well.
func ProgramForKind(kind types.TokenAccountKind) solana.PublicKey {
	switch kind {
	case types.KindCTokenOnchain, types.KindCTokenCompressed:
		return LightTokenProgramID
	case types.KindSplOnchain:
		return SplTokenProgramID
	case types.KindToken2022Onchain:
		return Token2022ProgramID
	default:
		panic(fmt.Sprintf("unhandled token account kind %d", kind))
	}
}

// KindForProgram maps a token program to its on-chain account kind.
func KindForProgram(program solana.PublicKey) (types.TokenAccountKind, error) {
	switch {
	case program.Equals(LightTokenProgramID):
		return types.KindCTokenOnchain, nil
	case program.Equals(SplTokenProgramID):
		return types.KindSplOnchain, nil
	case program.Equals(Token2022ProgramID):
		return types.KindToken2022Onchain, nil
	default:
		return 0, cerrors.UnsupportedProgram(program)
	}
}

// DeriveAssociatedAddress returns the canonical token account of owner for
// mint in the representation of kind.
//
// The light-token ATA is seeded [owner, lightTokenProgram, mint] under the
// light-token program itself; SPL and Token-2022 ATAs go through the
// associated token account program.
func DeriveAssociatedAddress(owner, mint solana.PublicKey, kind types.TokenAccountKind) (solana.PublicKey, uint8, error) {
	switch kind {
	case types.KindCTokenOnchain, types.KindCTokenCompressed:
		return solana.FindProgramAddress(
			[][]byte{owner[:], LightTokenProgramID[:], mint[:]},
			LightTokenProgramID,
		)
	case types.KindSplOnchain:
		return solana.FindAssociatedTokenAddress(owner, mint)
	case types.KindToken2022Onchain:
		return solana.FindProgramAddress(
			[][]byte{owner[:], Token2022ProgramID[:], mint[:]},
			AssociatedTokenProgramID,
		)
	default:
		return solana.PublicKey{}, 0, fmt.Errorf("unhandled token account kind %d", kind)
	}
}

// MustDeriveAssociatedAddress panics when derivation fails. Derivation only
// fails when no bump yields an off-curve point, which does not happen for
// 32-byte seeds in practice.
func MustDeriveAssociatedAddress(owner, mint solana.PublicKey, kind types.TokenAccountKind) solana.PublicKey {
	addr, _, err := DeriveAssociatedAddress(owner, mint, kind)
	if err != nil {
		panic(err)
	}
	return addr
}

// DerivePoolAddress derives the token pool PDA of mint at index.
// Index 0 omits the index seed.
func DerivePoolAddress(mint solana.PublicKey, index uint8) (solana.PublicKey, uint8, error) {
	if index >= MaxPoolAccounts {
		return solana.PublicKey{}, 0, fmt.Errorf("pool index %d out of range [0, %d)", index, MaxPoolAccounts)
	}
	seeds := [][]byte{poolSeed, mint[:]}
	if index > 0 {
		seeds = append(seeds, []byte{index})
	}
	return solana.FindProgramAddress(seeds, LightTokenProgramID)
}

// DeriveAllPoolAddresses derives every pool PDA of mint, in index order.
func DeriveAllPoolAddresses(mint solana.PublicKey) ([]types.TokenPoolInfo, error) {
	pools := make([]types.TokenPoolInfo, 0, MaxPoolAccounts)
	for i := uint8(0); i < MaxPoolAccounts; i++ {
		addr, bump, err := DerivePoolAddress(mint, i)
		if err != nil {
			return nil, err
		}
		pools = append(pools, types.TokenPoolInfo{
			Mint:      mint,
			Address:   addr,
			PoolIndex: i,
			Bump:      bump,
		})
	}
	return pools, nil
}

// IsTokenProgram reports whether program is one of the supported token programs.
func IsTokenProgram(program solana.PublicKey) bool {
	_, err := KindForProgram(program)
	return err == nil
}
