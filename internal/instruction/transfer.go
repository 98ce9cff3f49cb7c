package instruction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// HotTransferParams moves Amount between two on-chain accounts of the same
// representation. The destination must already exist.
type HotTransferParams struct {
	Kind        types.TokenAccountKind
	Source      solana.PublicKey
	Destination solana.PublicKey
	Authority   solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64
	Decimals    uint8

	// RequireCanonicalSource rejects a source other than the authority's ATA.
	RequireCanonicalSource bool
}

// Transfer builds a hot transfer. Light-token accounts use the light-token
// transfer; SPL and Token-2022 accounts use TransferChecked under their
// program.
func Transfer(p HotTransferParams) (types.Instruction, error) {
	if p.Amount == 0 {
		return types.Instruction{}, cerrors.ZeroAmount("transfer")
	}
	if p.Source.Equals(p.Destination) {
		return types.Instruction{}, cerrors.InvalidDestination(p.Destination, p.Source)
	}
	if p.RequireCanonicalSource {
		want, _, err := programs.DeriveAssociatedAddress(p.Authority, p.Mint, p.Kind)
		if err != nil {
			return types.Instruction{}, err
		}
		if !want.Equals(p.Source) {
			return types.Instruction{}, cerrors.InvalidDestination(p.Source, want)
		}
	}

	switch p.Kind {
	case types.KindCTokenOnchain:
		ix, err := token.NewTransferInstructionBuilder().
			SetAmount(p.Amount).
			SetSourceAccount(p.Source).
			SetDestinationAccount(p.Destination).
			SetOwnerAccount(p.Authority).
			ValidateAndBuild()
		if err != nil {
			return types.Instruction{}, fmt.Errorf("failed to build transfer instruction: %w", err)
		}
		return withProgram(ix, programs.LightTokenProgramID)
	case types.KindSplOnchain, types.KindToken2022Onchain:
		ix, err := token.NewTransferCheckedInstructionBuilder().
			SetAmount(p.Amount).
			SetDecimals(p.Decimals).
			SetSourceAccount(p.Source).
			SetMintAccount(p.Mint).
			SetDestinationAccount(p.Destination).
			SetOwnerAccount(p.Authority).
			ValidateAndBuild()
		if err != nil {
			return types.Instruction{}, fmt.Errorf("failed to build transfer checked instruction: %w", err)
		}
		return withProgram(ix, programs.ProgramForKind(p.Kind))
	default:
		return types.Instruction{}, errUnsupportedKind(p.Kind)
	}
}

// withProgram converts a token-program instruction and retargets it. The
// light-token and Token-2022 programs share the SPL token layouts.
func withProgram(ix solana.Instruction, program solana.PublicKey) (types.Instruction, error) {
	out, err := types.FromSolanaInstruction(ix)
	if err != nil {
		return types.Instruction{}, fmt.Errorf("failed to encode token instruction: %w", err)
	}
	out.ProgramID = program
	return out, nil
}

func errUnsupportedKind(kind types.TokenAccountKind) error {
	return cerrors.NewError(cerrors.ErrCodeUnsupportedProgram, fmt.Sprintf("unsupported account kind %s", kind))
}
