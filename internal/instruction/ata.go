package instruction

import (
	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// associated token account program: CreateIdempotent
const splCreateIdempotent uint8 = 1

// CreateAssociatedTokenAccount creates the light-token ATA of owner for mint.
// The idempotent variant succeeds when the account already exists.
func CreateAssociatedTokenAccount(payer, owner, mint solana.PublicKey, idempotent bool) (types.Instruction, error) {
	ata, bump, err := programs.DeriveAssociatedAddress(owner, mint, types.KindCTokenOnchain)
	if err != nil {
		return types.Instruction{}, err
	}

	disc := DiscriminatorCreateAssociatedAccount
	if idempotent {
		disc = DiscriminatorCreateAssociatedIdempotent
	}
	return types.Instruction{
		ProgramID: programs.LightTokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(owner, false, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(programs.SystemProgramID, false, false),
		},
		Data: []byte{disc, bump},
	}, nil
}

// CreateAssociatedTokenAccountIdempotent creates the ATA of owner for mint in
// the representation of kind, succeeding when it already exists.
func CreateAssociatedTokenAccountIdempotent(payer, owner, mint solana.PublicKey, kind types.TokenAccountKind) (types.Instruction, error) {
	switch kind {
	case types.KindCTokenOnchain:
		return CreateAssociatedTokenAccount(payer, owner, mint, true)
	case types.KindSplOnchain, types.KindToken2022Onchain:
		return createTokenAssociatedIdempotent(payer, owner, mint, kind)
	default:
		return types.Instruction{}, errUnsupportedKind(kind)
	}
}

func createTokenAssociatedIdempotent(payer, owner, mint solana.PublicKey, kind types.TokenAccountKind) (types.Instruction, error) {
	ata, _, err := programs.DeriveAssociatedAddress(owner, mint, kind)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programs.AssociatedTokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(owner, false, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(programs.SystemProgramID, false, false),
			types.NewAccountMeta(programs.ProgramForKind(kind), false, false),
		},
		Data: []byte{splCreateIdempotent},
	}, nil
}
